// Copyright 2025 Ditto Network

package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/dittonetwork/workflow-engine/pkg/cronsched"
	"github.com/dittonetwork/workflow-engine/pkg/store"
	"github.com/dittonetwork/workflow-engine/pkg/workflow"
)

const rescheduleCatchUp = 60 * time.Second

// Worker drives one workflow document through the state machine
// described in §4.8, from Admitted to a terminal state (Done or
// Cancelled).
type Worker struct {
	store     WorkflowStore
	events    EventChecker
	onchain   OnchainChecker
	simulator Simulator
	executor  Executor
	reporter  Reporter
	fullNode  bool
	operator  string
}

// Config bundles Worker's dependencies.
type Config struct {
	Store     WorkflowStore
	Events    EventChecker
	Onchain   OnchainChecker
	Simulator Simulator
	Executor  Executor
	Reporter  Reporter
	FullNode  bool
	// Operator is our own address; reports about our own performer are
	// suppressed by the caller at the validation layer, not here — worker
	// always reports its own executions.
	Operator string
}

// New builds a Worker.
func New(cfg Config) *Worker {
	return &Worker{
		store:     cfg.Store,
		events:    cfg.Events,
		onchain:   cfg.Onchain,
		simulator: cfg.Simulator,
		executor:  cfg.Executor,
		reporter:  cfg.Reporter,
		fullNode:  cfg.FullNode,
		operator:  cfg.Operator,
	}
}

// Process runs doc through the full state machine to a terminal state.
func (w *Worker) Process(ctx context.Context, doc *workflow.Document) error {
	state := Admitted
	executed := false

	for {
		switch state {
		case Admitted:
			state = ValidateTriggers

		case ValidateTriggers:
			hasEventTriggers, eventsFound, err := w.checkTriggers(ctx, doc)
			if err != nil {
				return fmt.Errorf("worker: validate triggers %s: %w", doc.ContentHash, err)
			}
			if hasEventTriggers && !eventsFound {
				state = EventsPending
				continue
			}
			onchainOK, err := w.onchain.AllTrue(ctx, triggersOf(doc))
			if err != nil {
				return fmt.Errorf("worker: onchain check %s: %w", doc.ContentHash, err)
			}
			if !onchainOK {
				state = EventsPending
				continue
			}
			state = Simulate

		case EventsPending:
			state = Reschedule

		case Simulate:
			sim, err := w.simulator.Simulate(ctx, doc)
			if err != nil {
				if isCancelWorthy(err.Error()) {
					if cancelErr := w.cancel(ctx, doc, err); cancelErr != nil {
						return cancelErr
					}
					state = Cancelled
					continue
				}
				if recErr := w.recordSimulation(ctx, doc, failedResult(err)); recErr != nil {
					return recErr
				}
				state = Report
				continue
			}
			if recErr := w.recordSimulation(ctx, doc, sim); recErr != nil {
				return recErr
			}
			if sim.Success && w.fullNode {
				state = Execute
			} else {
				state = Report
			}

		case Execute:
			sim := doc.LastSimulation
			result, err := w.executor.Execute(ctx, doc, sim)
			if err != nil {
				if isCancelWorthy(err.Error()) {
					if cancelErr := w.cancel(ctx, doc, err); cancelErr != nil {
						return cancelErr
					}
					state = Cancelled
					continue
				}
				if recErr := w.recordSimulation(ctx, doc, failedResult(err)); recErr != nil {
					return recErr
				}
				state = Report
				continue
			}
			if recErr := w.recordSimulation(ctx, doc, result); recErr != nil {
				return recErr
			}
			executed = true
			state = Report

		case Report:
			if err := w.report(ctx, doc); err != nil {
				return fmt.Errorf("worker: report %s: %w", doc.ContentHash, err)
			}
			state = Reschedule

		case Reschedule:
			if err := w.reschedule(ctx, doc, executed); err != nil {
				return fmt.Errorf("worker: reschedule %s: %w", doc.ContentHash, err)
			}
			state = Done

		case Done, Cancelled:
			return nil

		default:
			return fmt.Errorf("worker: unknown state %q", state)
		}
	}
}

func triggersOf(doc *workflow.Document) []workflow.Trigger {
	if doc.Meta == nil {
		return nil
	}
	return doc.Meta.Triggers
}

// checkTriggers reports whether doc has any event triggers, and if so
// whether any of them found events. Every chain carrying an event trigger
// is scanned; the per-chain watermark is advanced and persisted
// regardless of outcome (§4.4).
func (w *Worker) checkTriggers(ctx context.Context, doc *workflow.Document) (hasEventTriggers, eventsFound bool, err error) {
	chains := make(map[string][]workflow.Trigger)
	for _, t := range triggersOf(doc) {
		if t.Kind == workflow.TriggerEvent && t.Event != nil {
			chains[t.Event.ChainID] = append(chains[t.Event.ChainID], t)
		}
	}
	if len(chains) == 0 {
		return false, false, nil
	}

	watermarks := make(map[string]workflow.BlockMark, len(doc.BlockTracking))
	for k, v := range doc.BlockTracking {
		watermarks[k] = v
	}

	for chainID, triggers := range chains {
		key := workflow.BlockTrackingKey(chainID)
		last := watermarks[key].LastProcessedBlock

		result, scanErr := w.events.Scan(ctx, chainID, last, triggers)
		if scanErr != nil {
			return true, false, scanErr
		}
		if result.HasEvents {
			eventsFound = true
		}
		watermarks[key] = workflow.BlockMark{LastProcessedBlock: result.NewWatermark, LastUpdated: time.Now()}
	}

	if err := w.store.Update(ctx, doc.ContentHash, store.Update{BlockTracking: watermarks}); err != nil {
		return true, eventsFound, err
	}
	doc.BlockTracking = watermarks
	return true, eventsFound, nil
}

func (w *Worker) cancel(ctx context.Context, doc *workflow.Document, cause error) error {
	cancelled := true
	details := &workflow.ValidationDetails{
		Reason:    summarizeError(cause.Error()),
		ErrorCode: "0xc48cf8ee",
		DecidedAt: time.Now(),
	}
	if err := w.store.Update(ctx, doc.ContentHash, store.Update{
		IsCancelled:       &cancelled,
		ValidationDetails: details,
	}); err != nil {
		return fmt.Errorf("worker: persist cancellation %s: %w", doc.ContentHash, err)
	}
	doc.IsCancelled = true
	doc.ValidationDetails = details
	return nil
}

func (w *Worker) recordSimulation(ctx context.Context, doc *workflow.Document, sim *workflow.SimulationResult) error {
	if err := w.store.Update(ctx, doc.ContentHash, store.Update{LastSimulation: sim}); err != nil {
		return fmt.Errorf("worker: persist simulation %s: %w", doc.ContentHash, err)
	}
	doc.LastSimulation = sim
	return nil
}

func failedResult(err error) *workflow.SimulationResult {
	return &workflow.SimulationResult{Success: false, Error: summarizeError(err.Error())}
}

func (w *Worker) report(ctx context.Context, doc *workflow.Document) error {
	if doc.LastSimulation == nil {
		return nil
	}
	for _, r := range doc.LastSimulation.PerChainResults {
		if err := w.reporter.SubmitReport(ctx, doc, r); err != nil {
			return err
		}
	}
	return nil
}

// reschedule computes the workflow's next fire time and, per I4, advances
// runs only when this pass actually committed a successful execution —
// not on EventsPending's no-op pass through Reschedule, nor on a
// simulate/execute failure that only ever reached Report.
func (w *Worker) reschedule(ctx context.Context, doc *workflow.Document, executed bool) error {
	committed := executed && doc.LastSimulation != nil && doc.LastSimulation.Success

	now := time.Now()
	next, err := cronsched.NextFire(triggersOf(doc), now)
	if err != nil {
		if !committed {
			return nil
		}
		runs := doc.Runs + 1
		return w.store.Update(ctx, doc.ContentHash, store.Update{Runs: &runs})
	}

	if committed {
		next = next.Add(rescheduleCatchUp)
	}

	upd := store.Update{NextSimulationTime: ptrToPtr(next)}
	if committed {
		runs := doc.Runs + 1
		upd.Runs = &runs
	}
	return w.store.Update(ctx, doc.ContentHash, upd)
}

func ptrToPtr(t time.Time) **time.Time {
	p := &t
	return &p
}
