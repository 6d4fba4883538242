package mchown

import "errors"

// Sentinel errors for package mchown.
// These errors can be checked with errors.Is() for specific error handling.
var (
	// Traversal errors
	ErrOpenDir          = errors.New("cannot open directory")
	ErrReadDir          = errors.New("cannot read directory")
	ErrTraversalAborted = errors.New("traversal aborted")

	// Resource errors
	ErrCredentialTableFull = errors.New("credential table full")
	ErrInvalidPoolSize     = errors.New("invalid worker pool size")
	ErrPoolClosed          = errors.New("worker pool closed")
)
