// Copyright 2025 Ditto Network

package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dittonetwork/workflow-engine/pkg/eventmonitor"
	"github.com/dittonetwork/workflow-engine/pkg/store"
	"github.com/dittonetwork/workflow-engine/pkg/workflow"
)

type fakeStore struct {
	updates []store.Update
}

func (f *fakeStore) Update(ctx context.Context, hash string, upd store.Update) error {
	f.updates = append(f.updates, upd)
	return nil
}

type fakeEvents struct {
	hasEvents bool
}

func (f *fakeEvents) Scan(ctx context.Context, chainID string, last uint64, triggers []workflow.Trigger) (eventmonitor.ScanResult, error) {
	return eventmonitor.ScanResult{HasEvents: f.hasEvents, NewWatermark: last + 1}, nil
}

func (f *fakeEvents) CurrentHead(ctx context.Context, chainID string) (uint64, error) {
	return 100, nil
}

type fakeOnchain struct {
	allTrue bool
}

func (f *fakeOnchain) AllTrue(ctx context.Context, triggers []workflow.Trigger) (bool, error) {
	return f.allTrue, nil
}

type fakeSimulator struct {
	result *workflow.SimulationResult
	err    error
}

func (f *fakeSimulator) Simulate(ctx context.Context, doc *workflow.Document) (*workflow.SimulationResult, error) {
	return f.result, f.err
}

type fakeExecutor struct {
	result *workflow.SimulationResult
	err    error
}

func (f *fakeExecutor) Execute(ctx context.Context, doc *workflow.Document, sim *workflow.SimulationResult) (*workflow.SimulationResult, error) {
	return f.result, f.err
}

type fakeReporter struct {
	reports int
}

func (f *fakeReporter) SubmitReport(ctx context.Context, doc *workflow.Document, result workflow.PerChainResult) error {
	f.reports++
	return nil
}

func simpleDoc() *workflow.Document {
	return &workflow.Document{
		ContentHash: "hash1",
		Meta: &workflow.Meta{
			Triggers: []workflow.Trigger{{Kind: workflow.TriggerCron, Cron: &workflow.CronTrigger{Schedule: "@every 1m"}}},
		},
	}
}

func TestProcessHappyPathFullNode(t *testing.T) {
	st := &fakeStore{}
	sim := &fakeSimulator{result: &workflow.SimulationResult{
		Success: true,
		PerChainResults: []workflow.PerChainResult{{ChainID: "1"}},
	}}
	exec := &fakeExecutor{result: &workflow.SimulationResult{Success: true, PerChainResults: []workflow.PerChainResult{{ChainID: "1"}}}}
	reporter := &fakeReporter{}

	w := New(Config{
		Store:     st,
		Events:    &fakeEvents{},
		Onchain:   &fakeOnchain{allTrue: true},
		Simulator: sim,
		Executor:  exec,
		Reporter:  reporter,
		FullNode:  true,
	})

	if err := w.Process(context.Background(), simpleDoc()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if reporter.reports != 1 {
		t.Errorf("reports = %d, want 1", reporter.reports)
	}
	if !runsIncremented(st.updates) {
		t.Error("expected runs to be incremented after a successful execution commit")
	}
}

// runsIncremented reports whether any recorded update bumped Runs.
func runsIncremented(updates []store.Update) bool {
	for _, upd := range updates {
		if upd.Runs != nil {
			return true
		}
	}
	return false
}

func TestProcessSimulationFailureReportsAndReschedules(t *testing.T) {
	st := &fakeStore{}
	sim := &fakeSimulator{err: errors.New("execution reverted: generic failure")}
	reporter := &fakeReporter{}

	w := New(Config{
		Store:     st,
		Events:    &fakeEvents{},
		Onchain:   &fakeOnchain{allTrue: true},
		Simulator: sim,
		Executor:  &fakeExecutor{},
		Reporter:  reporter,
		FullNode:  true,
	})

	doc := simpleDoc()
	if err := w.Process(context.Background(), doc); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if doc.IsCancelled {
		t.Error("expected not cancelled for generic failure")
	}
	if runsIncremented(st.updates) {
		t.Error("runs must not increase when simulation failed before any execution commit (I4)")
	}
}

func TestProcessCancelWorthyError(t *testing.T) {
	st := &fakeStore{}
	sim := &fakeSimulator{err: errors.New("AA23 reverted (or OOG) 0xc48cf8ee")}

	w := New(Config{
		Store:     st,
		Events:    &fakeEvents{},
		Onchain:   &fakeOnchain{allTrue: true},
		Simulator: sim,
		Executor:  &fakeExecutor{},
		Reporter:  &fakeReporter{},
		FullNode:  true,
	})

	doc := simpleDoc()
	if err := w.Process(context.Background(), doc); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !doc.IsCancelled {
		t.Fatal("expected cancellation for AA23 pattern")
	}
	if doc.ValidationDetails == nil {
		t.Fatal("expected validation details to be recorded")
	}
}

func TestProcessEventsPendingReschedulesWithoutSimulating(t *testing.T) {
	st := &fakeStore{}
	sim := &fakeSimulator{}

	doc := &workflow.Document{
		ContentHash: "hash2",
		Meta: &workflow.Meta{
			Triggers: []workflow.Trigger{
				{Kind: workflow.TriggerEvent, Event: &workflow.EventTrigger{Signature: "Transfer(address,address,uint256)", ChainID: "1"}},
			},
		},
	}

	w := New(Config{
		Store:     st,
		Events:    &fakeEvents{hasEvents: false},
		Onchain:   &fakeOnchain{allTrue: true},
		Simulator: sim,
		Executor:  &fakeExecutor{},
		Reporter:  &fakeReporter{},
	})

	if err := w.Process(context.Background(), doc); err != nil {
		t.Fatalf("Process: %v", err)
	}
	// simulator must not have been invoked; verify by checking no
	// last_simulation update was recorded in the store.
	for _, upd := range st.updates {
		if upd.LastSimulation != nil {
			t.Fatal("simulator should not have run while events pending")
		}
	}
	if runsIncremented(st.updates) {
		t.Error("runs must not increase on an EventsPending pass with no execution commit (I4)")
	}
}

func TestRescheduleAddsCatchUpOffsetAfterSuccess(t *testing.T) {
	now := time.Now()
	doc := simpleDoc()
	doc.LastSimulation = &workflow.SimulationResult{Success: true}

	st := &fakeStore{}
	w := New(Config{Store: st})

	if err := w.reschedule(context.Background(), doc, true); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if len(st.updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(st.updates))
	}
	got := *st.updates[0].NextSimulationTime
	if got == nil || !got.After(now.Add(55*time.Second)) {
		t.Errorf("expected next time with catch-up offset, got %v", got)
	}
}
