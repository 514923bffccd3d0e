// Package oracle encodes index prices for the MultiAssetOracle contract and
// talks to it over JSON-RPC.
package oracle

import "errors"

var (
	// ErrNegativePrice indicates a price that cannot be encoded as uint256.
	ErrNegativePrice = errors.New("price must not be negative")
	// ErrReadOnly indicates a write attempted without a signing key.
	ErrReadOnly = errors.New("oracle client is read-only")
	// ErrChainIDMismatch indicates the RPC endpoint serves a different chain than configured.
	ErrChainIDMismatch = errors.New("chain id mismatch")
)
