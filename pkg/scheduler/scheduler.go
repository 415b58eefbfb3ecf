// Copyright 2025 Ditto Network
//
// Package scheduler implements C9: the single cooperative loop that
// selects due workflows and dispatches them to a bounded worker pool
// (§4.9).

package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/dittonetwork/workflow-engine/pkg/store"
	"github.com/dittonetwork/workflow-engine/pkg/workflow"
)

// Store is the narrow surface the scheduler needs from C7.
// *store.Adapter satisfies this directly.
type Store interface {
	UnsyncedChainsCount(ctx context.Context) (int, error)
	GetMissingNextTime(ctx context.Context, limit int) ([]*workflow.Document, error)
	GetDue(ctx context.Context) ([]*workflow.Document, error)
	GetByHashes(ctx context.Context, hashes []string) ([]*workflow.Document, error)
	Update(ctx context.Context, hash string, upd store.Update) error
}

// HeadFetcher exposes C4's current-head query, used to bootstrap a
// newly-admitted workflow's block watermarks before its first scan
// (§4.4 "NOT zero" / §4.9 steps 2 and 4).
type HeadFetcher interface {
	CurrentHead(ctx context.Context, chainID string) (uint64, error)
}

// NextFirer computes a workflow's next cron fire time (C6).
type NextFirer func(triggers []workflow.Trigger, now time.Time) (time.Time, error)

// Processor drives one workflow document through the worker state
// machine (C8).
type Processor interface {
	Process(ctx context.Context, doc *workflow.Document) error
}

// TokenRefresher asks C11 to refresh its auth token.
type TokenRefresher interface {
	RefreshToken(ctx context.Context) error
}

// Config bundles the scheduler's dependencies and tuning.
type Config struct {
	Store     Store
	Heads     HeadFetcher
	NextFire  NextFirer
	Processor Processor
	Refresher TokenRefresher

	MaxWorkers             int
	RunnerNodeSleep        time.Duration
	ChainSyncCheckInterval time.Duration
	TokenRefreshInterval   time.Duration
	MaxMissingNextSimLimit int

	Logger *log.Logger
}

// Scheduler runs the one-cycle algorithm of §4.9 on a loop until its
// context is cancelled.
type Scheduler struct {
	cfg Config
	log *log.Logger
}

// New builds a Scheduler from cfg, applying defaults for anything left
// zero-valued.
func New(cfg Config) *Scheduler {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.RunnerNodeSleep <= 0 {
		cfg.RunnerNodeSleep = 60 * time.Second
	}
	if cfg.ChainSyncCheckInterval <= 0 {
		cfg.ChainSyncCheckInterval = 5 * time.Second
	}
	if cfg.MaxMissingNextSimLimit <= 0 {
		cfg.MaxMissingNextSimLimit = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[Scheduler] ", log.LstdFlags)
	}
	return &Scheduler{cfg: cfg, log: cfg.Logger}
}

// Run blocks, executing cycles until ctx is cancelled. A background
// ticker independently refreshes the reporting client's auth token
// every TokenRefreshInterval (§4.9, "Independently...").
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	if s.cfg.Refresher != nil && s.cfg.TokenRefreshInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runTokenRefresh(ctx)
		}()
	}

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		default:
		}

		sleep, err := s.cycle(ctx)
		if err != nil {
			s.log.Printf("cycle error: %v", err)
		}

		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-time.After(sleep):
		}
	}
}

func (s *Scheduler) runTokenRefresh(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TokenRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.cfg.Refresher.RefreshToken(ctx); err != nil {
				s.log.Printf("token refresh failed: %v", err)
			}
		}
	}
}

// cycle runs one pass of the §4.9 algorithm, returning how long to
// sleep before the next pass.
func (s *Scheduler) cycle(ctx context.Context) (time.Duration, error) {
	unsynced, err := s.cfg.Store.UnsyncedChainsCount(ctx)
	if err != nil {
		return s.cfg.RunnerNodeSleep, err
	}
	if unsynced > 0 {
		s.log.Printf("%d chain(s) unsynced, deferring cycle", unsynced)
		return s.cfg.ChainSyncCheckInterval, nil
	}

	if err := s.bootstrapMissingNextTime(ctx); err != nil {
		s.log.Printf("bootstrap next_simulation_time: %v", err)
	}

	due, err := s.cfg.Store.GetDue(ctx)
	if err != nil {
		return s.cfg.RunnerNodeSleep, err
	}
	if len(due) == 0 {
		return s.cfg.RunnerNodeSleep, nil
	}

	hashes, bootstrapped := s.bootstrapWatermarks(ctx, due)
	if bootstrapped {
		reloaded, err := s.cfg.Store.GetByHashes(ctx, hashes)
		if err != nil {
			s.log.Printf("reload due set: %v", err)
		} else {
			due = reloaded
		}
	}

	s.dispatch(ctx, due)

	return s.cfg.RunnerNodeSleep, nil
}

// bootstrapMissingNextTime fetches up to MaxMissingNextSimLimit
// workflows whose next_simulation_time has never been set, computes it,
// and for those with event triggers also primes block watermarks to the
// current head so they do not replay history on their first scan
// (§4.9 step 2).
func (s *Scheduler) bootstrapMissingNextTime(ctx context.Context) error {
	docs, err := s.cfg.Store.GetMissingNextTime(ctx, s.cfg.MaxMissingNextSimLimit)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		triggers := triggersOf(doc)
		next, err := s.cfg.NextFire(triggers, time.Now())
		upd := store.Update{}
		if err == nil {
			t := next
			upd.NextSimulationTime = ptrToPtr(&t)
		} else {
			upd.NextSimulationTime = ptrToPtr(nil)
		}
		upd.BlockTracking = s.initialWatermarks(ctx, doc, triggers)

		if err := s.cfg.Store.Update(ctx, doc.ContentHash, upd); err != nil {
			s.log.Printf("bootstrap %s: %v", doc.ContentHash, err)
		}
	}
	return nil
}

// bootstrapWatermarks primes block watermarks for due workflows that are
// missing them (§4.9 step 4), returning the hashes of the whole due set
// (for the step-5 reload) and whether any watermark was written.
func (s *Scheduler) bootstrapWatermarks(ctx context.Context, due []*workflow.Document) ([]string, bool) {
	hashes := make([]string, len(due))
	wrote := false
	for i, doc := range due {
		hashes[i] = doc.ContentHash
		triggers := triggersOf(doc)
		marks := s.initialWatermarks(ctx, doc, triggers)
		if len(marks) == 0 {
			continue
		}
		if err := s.cfg.Store.Update(ctx, doc.ContentHash, store.Update{BlockTracking: marks}); err != nil {
			s.log.Printf("bootstrap watermark %s: %v", doc.ContentHash, err)
			continue
		}
		wrote = true
	}
	return hashes, wrote
}

// initialWatermarks returns, for every event-triggered chain the
// workflow is missing a watermark for, the chain's current head. A
// workflow is primed to "now", never zero, so it never replays
// pre-enrollment history.
func (s *Scheduler) initialWatermarks(ctx context.Context, doc *workflow.Document, triggers []workflow.Trigger) map[string]workflow.BlockMark {
	var marks map[string]workflow.BlockMark
	for _, t := range triggers {
		if t.Kind != workflow.TriggerEvent || t.Event == nil {
			continue
		}
		chainID := t.Event.ChainID
		key := workflow.BlockTrackingKey(chainID)
		if doc.BlockTracking != nil {
			if _, ok := doc.BlockTracking[key]; ok {
				continue
			}
		}
		if marks != nil {
			if _, ok := marks[key]; ok {
				continue
			}
		}
		head, err := s.cfg.Heads.CurrentHead(ctx, chainID)
		if err != nil {
			s.log.Printf("fetch head for %s: %v", chainID, err)
			continue
		}
		if marks == nil {
			marks = make(map[string]workflow.BlockMark)
		}
		marks[key] = workflow.BlockMark{LastProcessedBlock: head}
	}
	return marks
}

// dispatch runs the due set through Processor with at most MaxWorkers
// concurrent goroutines (§4.9 step 6), waiting for all to finish before
// returning (§4.9 step 7: "after all workers finish").
func (s *Scheduler) dispatch(ctx context.Context, due []*workflow.Document) {
	sem := make(chan struct{}, s.cfg.MaxWorkers)
	var wg sync.WaitGroup

	for _, doc := range due {
		doc := doc
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.cfg.Processor.Process(ctx, doc); err != nil {
				s.log.Printf("process %s: %v", doc.ContentHash, err)
			}
		}()
	}
	wg.Wait()
}

func triggersOf(doc *workflow.Document) []workflow.Trigger {
	if doc.Meta == nil {
		return nil
	}
	return doc.Meta.Triggers
}

func ptrToPtr(t *time.Time) **time.Time {
	return &t
}
