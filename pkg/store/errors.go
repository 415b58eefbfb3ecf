// Copyright 2025 Ditto Network
//
// Package store provides sentinel errors for workflow store operations.

package store

import "errors"

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned when a workflow document does not exist.
	ErrNotFound = errors.New("workflow: document not found")

	// ErrCancelled is returned by an update attempted against a document
	// whose is_cancelled flag is already true (I5: terminal).
	ErrCancelled = errors.New("workflow: document is cancelled")

	// ErrNoWasmBlob is returned when a WASM hash has no stored bytes.
	ErrNoWasmBlob = errors.New("workflow: wasm blob not found")
)
