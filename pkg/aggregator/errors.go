// Package aggregator computes the weighted GPU rental price index.
package aggregator

import "errors"

var (
	// ErrEmptyRegistry indicates a registry with no hyperscalers and no neoclouds.
	ErrEmptyRegistry = errors.New("registry has no providers")
	// ErrInvalidReport indicates a report file that cannot be decoded into a snapshot.
	ErrInvalidReport = errors.New("invalid index report")
	// ErrNoHistory indicates a history file without data rows.
	ErrNoHistory = errors.New("history file has no rows")
)
