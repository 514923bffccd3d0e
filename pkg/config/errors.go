// Package config provides configuration loading and validation for gpu-index.
package config

import "errors"

var (
	// ErrConfigNotFound indicates that the given config file does not exist.
	ErrConfigNotFound = errors.New("config file not found")
	// ErrInvalidWeight indicates a registry weight outside [0, 1].
	ErrInvalidWeight = errors.New("weight must be within [0, 1]")
	// ErrInvalidDiscount indicates a hyperscaler discount outside [0, 1).
	ErrInvalidDiscount = errors.New("discount must be within [0, 1)")
	// ErrDuplicateProvider indicates the same provider listed twice in one category.
	ErrDuplicateProvider = errors.New("duplicate provider")
	// ErrRPCURLRequired indicates that an RPC endpoint must be configured.
	ErrRPCURLRequired = errors.New("oracle rpc_url must be specified (or set " + EnvRPCURL + ")")
	// ErrPrivateKeyRequired indicates that no updater signing key is configured.
	ErrPrivateKeyRequired = errors.New("oracle private key must be specified (or set " + EnvUpdaterKey + ")")
)
