// Copyright 2025 Ditto Network

package wasmrunner

import "errors"

var (
	// ErrHashMismatch is returned when a fetched module's SHA-256 digest
	// does not match the hash the caller expected.
	ErrHashMismatch = errors.New("wasmrunner: hash mismatch")
	// ErrTimeout is returned when a run exceeds its timeout budget.
	ErrTimeout = errors.New("wasmrunner: execution timed out")
	// ErrOutputTooLarge is returned when guest stdout exceeds the cap.
	ErrOutputTooLarge = errors.New("wasmrunner: output exceeded cap")
	// ErrNoRunExport is returned when the module exports neither a "run"
	// nor a "_start" function for the runner to invoke.
	ErrNoRunExport = errors.New("wasmrunner: module does not export run")
)
