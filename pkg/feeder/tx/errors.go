// Package tx builds, signs and tracks EVM transactions.
package tx

import "errors"

var (
	// ErrTransactionReverted indicates that the transaction was mined with a failed status.
	ErrTransactionReverted = errors.New("transaction reverted")
	// ErrInvalidParameter indicates that an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrReceiptTimeout indicates that no receipt arrived within the wait budget.
	ErrReceiptTimeout = errors.New("timed out waiting for receipt")
)
