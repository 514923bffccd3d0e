package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks configuration for errors
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", describe(err))
	}

	if err := validateRegistry(&cfg.Index.Registry); err != nil {
		return fmt.Errorf("index registry: %w", err)
	}

	return nil
}

// ValidateOracle checks the fields required to talk to the oracle contract.
// Read-only access needs no signing key.
func ValidateOracle(cfg *OracleConfig, readOnly bool) error {
	if cfg.RPCURL == "" {
		return ErrRPCURLRequired
	}
	if !readOnly && cfg.PrivateKey == "" {
		return ErrPrivateKeyRequired
	}
	return nil
}

func validateRegistry(cfg *RegistryConfig) error {
	seen := make(map[string]struct{})
	for _, hs := range cfg.Hyperscalers {
		key := strings.ToLower(hs.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateProvider, hs.Name)
		}
		seen[key] = struct{}{}

		if hs.Weight < 0 || hs.Weight > 1 {
			return fmt.Errorf("hyperscaler %s: %w", hs.Name, ErrInvalidWeight)
		}
		if hs.Discount != nil && (*hs.Discount < 0 || *hs.Discount >= 1) {
			return fmt.Errorf("hyperscaler %s: %w", hs.Name, ErrInvalidDiscount)
		}
	}

	seen = make(map[string]struct{})
	for _, nc := range cfg.Neoclouds {
		key := strings.ToLower(nc.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateProvider, nc.Name)
		}
		seen[key] = struct{}{}

		if nc.Weight <= 0 || nc.Weight > 1 {
			return fmt.Errorf("neocloud %s: %w", nc.Name, ErrInvalidWeight)
		}
	}

	if cfg.DefaultNeocloudWeight < 0 || cfg.DefaultNeocloudWeight > 1 {
		return fmt.Errorf("default_neocloud_weight: %w", ErrInvalidWeight)
	}
	if cfg.DefaultDiscount < 0 || cfg.DefaultDiscount >= 1 {
		return fmt.Errorf("default_discount: %w", ErrInvalidDiscount)
	}

	return nil
}

// describe flattens validator errors into one readable message.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
