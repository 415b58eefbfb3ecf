// Copyright 2025 Ditto Network
//
// Package workflow defines the data model shared by every component of the
// scheduling and validation engine: the persisted WorkflowDocument, its
// tagged Trigger and Step variants, and the SimulationResult produced by a
// dry run.

package workflow

import "time"

// Document is the persisted record for one workflow, keyed by ContentHash.
type Document struct {
	ContentHash        string                 `json:"content_hash"`
	Meta               *Meta                  `json:"meta,omitempty"`
	Runs               int64                  `json:"runs"`
	IsCancelled        bool                   `json:"is_cancelled"`
	NextSimulationTime *time.Time             `json:"next_simulation_time,omitempty"`
	BlockTracking      map[string]BlockMark   `json:"block_tracking,omitempty"`
	LastSimulation     *SimulationResult      `json:"last_simulation,omitempty"`
	ValidationDetails  *ValidationDetails     `json:"validation_details,omitempty"`
	ValidAfter         *time.Time             `json:"valid_after,omitempty"`
	ValidUntil         *time.Time             `json:"valid_until,omitempty"`
}

// Meta is the immutable workflow payload resolved from content-addressed
// storage. A Document with Meta == nil has not yet been resolved (I2).
type Meta struct {
	Owner    string    `json:"owner"`
	Triggers []Trigger `json:"triggers"`
	Jobs     []Job     `json:"jobs"`
	// Session carries opaque signed session-key material; the engine never
	// interprets it, only forwards it to the external simulator.
	Session []byte `json:"session,omitempty"`
}

// Job groups an ordered sequence of steps targeting one chain.
type Job struct {
	ChainID string `json:"chain_id"`
	Steps   []Step `json:"steps"`
}

// BlockMark is the per-chain watermark in Document.BlockTracking.
// Invariant (I3): LastProcessedBlock never decreases.
type BlockMark struct {
	LastProcessedBlock uint64    `json:"last_processed_block"`
	LastUpdated        time.Time `json:"last_updated"`
}

// BlockTrackingKey formats the chain id into the block_tracking map key
// convention used throughout the store and spec: "chain_<id>".
func BlockTrackingKey(chainID string) string {
	return "chain_" + chainID
}

// ValidationDetails is populated iff IsCancelled was set true by a
// policy-triggered cancellation (the AA23 cancel pattern, see pkg/worker).
type ValidationDetails struct {
	Reason    string    `json:"reason"`
	ErrorCode string    `json:"error_code"`
	DecidedAt time.Time `json:"decided_at"`
}
