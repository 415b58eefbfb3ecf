// Copyright 2025 Ditto Network
//
// Package worker implements C8: the per-workflow state machine that
// gates on triggers, simulates, optionally executes, reports, and
// reschedules a single workflow document.

package worker

// State names one node of the per-workflow state machine (§4.8).
type State string

const (
	Admitted        State = "admitted"
	ValidateTriggers State = "validate_triggers"
	EventsPending   State = "events_pending"
	Simulate        State = "simulate"
	Execute         State = "execute"
	Report          State = "report"
	Reschedule      State = "reschedule"
	Done            State = "done"
	Cancelled       State = "cancelled"
)
