// Copyright 2025 Ditto Network

package worker

import (
	"context"

	"github.com/dittonetwork/workflow-engine/pkg/eventmonitor"
	"github.com/dittonetwork/workflow-engine/pkg/store"
	"github.com/dittonetwork/workflow-engine/pkg/workflow"
)

// WorkflowStore is the narrow surface worker needs from C7 — a single
// partial-update operation. *store.Adapter satisfies this directly.
type WorkflowStore interface {
	Update(ctx context.Context, hash string, upd store.Update) error
}

// Simulator is the external dry-run service (out of scope: this engine
// does not define user-operation construction or account-abstraction
// semantics). It replays a workflow's jobs and returns the resulting
// per-chain user operations, internally invoking the WASM runner (C3)
// through the bridge (C2) and simulator (C1) for any WASM steps.
type Simulator interface {
	Simulate(ctx context.Context, doc *workflow.Document) (*workflow.SimulationResult, error)
}

// Executor is the opaque on-chain commit operation (out of scope: the
// smart-account execution library is an external dependency). It submits
// a previously simulated user operation and returns the execution's
// outcome in the same shape as a simulation, so the state machine can
// reuse one result type for both phases.
type Executor interface {
	Execute(ctx context.Context, doc *workflow.Document, sim *workflow.SimulationResult) (*workflow.SimulationResult, error)
}

// Reporter is the narrow surface worker needs from the reporting client
// (C11): submit one chain's outcome, suppressing nothing itself — the
// caller decides whether a report is a self-report.
type Reporter interface {
	SubmitReport(ctx context.Context, doc *workflow.Document, result workflow.PerChainResult) error
}

// EventChecker is the narrow surface worker needs from the event monitor
// (C4).
type EventChecker interface {
	Scan(ctx context.Context, chainID string, last uint64, triggers []workflow.Trigger) (eventmonitor.ScanResult, error)
	CurrentHead(ctx context.Context, chainID string) (uint64, error)
}

// OnchainChecker is the narrow surface worker needs from the on-chain
// trigger checker (C5).
type OnchainChecker interface {
	AllTrue(ctx context.Context, triggers []workflow.Trigger) (bool, error)
}
