package main

import (
	"errors"

	"github.com/StrathCole/gpu-index/pkg/feeder"
	"github.com/StrathCole/gpu-index/pkg/feeder/gate"
	"github.com/StrathCole/gpu-index/pkg/feeder/updater"
	"github.com/StrathCole/gpu-index/pkg/sources"
)

// Process exit codes.
const (
	ExitOK           = 0
	ExitError        = 1
	ExitConfig       = 2
	ExitNoData       = 3
	ExitValidation   = 4
	ExitConnectivity = 5
)

// configError marks failures caused by missing or invalid configuration.
type configError struct {
	err error
}

func (e *configError) Error() string {
	return "configuration: " + e.err.Error()
}

func (e *configError) Unwrap() error {
	return e.err
}

func asConfigError(err error) error {
	if err == nil {
		return nil
	}
	return &configError{err: err}
}

func exitCode(err error) int {
	var (
		cfgErr   *configError
		verr     *gate.ValidationError
		cerr     *feeder.ConnectivityError
		mismatch *updater.VerificationMismatchError
	)
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &mismatch):
		return ExitOK
	case errors.As(err, &cfgErr):
		return ExitConfig
	case errors.Is(err, sources.ErrNoData):
		return ExitNoData
	case errors.As(err, &verr):
		return ExitValidation
	case errors.As(err, &cerr):
		return ExitConnectivity
	default:
		return ExitError
	}
}
