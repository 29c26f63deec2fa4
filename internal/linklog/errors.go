package linklog

import "errors"

var (
	// ErrCorruptLog indicates the persisted store or audit file cannot be
	// parsed. Not recoverable locally; operator intervention is required.
	ErrCorruptLog = errors.New("link log corrupt")

	// ErrInconsistentState indicates two entries exist for the same key with
	// different values, evidence of a prior race or partial write. Fatal.
	ErrInconsistentState = errors.New("link log inconsistent")

	// ErrLocked indicates another process currently holds the link log.
	ErrLocked = errors.New("link log locked by another process")
)
