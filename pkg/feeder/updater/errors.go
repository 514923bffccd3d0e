// Package updater pushes the index price to the on-chain oracle and keeps a
// local audit trail of every submission.
package updater

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrAssetNotRegistered indicates the oracle does not know the configured asset.
	ErrAssetNotRegistered = errors.New("asset not registered on oracle")
	// ErrReadOnly indicates a push attempted by a read-only updater.
	ErrReadOnly = errors.New("updater is read-only")
)

// VerificationMismatchError is returned after a mined update whose readback
// differs from the submitted value. The transaction is not rolled back.
type VerificationMismatchError struct {
	Expected *big.Int
	Got      *big.Int // nil when the readback itself failed
	Err      error
}

func (e *VerificationMismatchError) Error() string {
	if e.Got == nil {
		return fmt.Sprintf("on-chain readback failed, expected %s: %v", e.Expected, e.Err)
	}
	return fmt.Sprintf("on-chain price mismatch: expected %s, got %s", e.Expected, e.Got)
}

func (e *VerificationMismatchError) Unwrap() error {
	return e.Err
}
