// Copyright 2025 Ditto Network
//
// Package eventmonitor implements C4: per-chain block watermark tracking
// and chunked log-range queries for event triggers.

package eventmonitor

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dittonetwork/workflow-engine/pkg/config"
	"github.com/dittonetwork/workflow-engine/pkg/workflow"
)

func bigFrom(n uint64) *big.Int {
	return new(big.Int).SetUint64(n)
}

const defaultMaxBlockRange = uint64(10000)

// Chain is the narrow surface eventmonitor needs from a chain client.
type Chain interface {
	Head(ctx context.Context, chainID string) (uint64, error)
	FilterLogs(ctx context.Context, chainID string, q ethereum.FilterQuery) ([]types.Log, error)
}

// Monitor tracks block watermarks and evaluates event triggers (C4).
type Monitor struct {
	chains        Chain
	maxBlockRange map[string]uint64
}

// New builds a Monitor. maxBlockRange maps chain id to its
// MAX_BLOCK_RANGE_<id> tuning (default 10000 when absent).
func New(chains Chain, cfg *config.Config) *Monitor {
	ranges := make(map[string]uint64, len(cfg.Chains))
	for _, c := range cfg.Chains {
		ranges[c.ChainID] = c.MaxBlockRange
	}
	return &Monitor{chains: chains, maxBlockRange: ranges}
}

// CurrentHead exposes the chain head, used by the scheduler to bootstrap
// a workflow's initial watermark at enrollment (§4.4 "NOT zero").
func (m *Monitor) CurrentHead(ctx context.Context, chainID string) (uint64, error) {
	return m.chains.Head(ctx, chainID)
}

// ScanResult is the outcome of scanning one chain's event triggers.
type ScanResult struct {
	HasEvents   bool
	NewWatermark uint64
}

// Scan queries every event trigger on chainID between last+1 and the
// current head (split into MAX_BLOCK_RANGE_<id>-wide chunks), in
// ascending block order. All triggers on a chain share one watermark: it
// advances to the queried head regardless of which trigger(s) matched.
func (m *Monitor) Scan(ctx context.Context, chainID string, last uint64, triggers []workflow.Trigger) (ScanResult, error) {
	head, err := m.chains.Head(ctx, chainID)
	if err != nil {
		return ScanResult{}, fmt.Errorf("eventmonitor: fetch head for chain %s: %w", chainID, err)
	}

	if last >= head {
		return ScanResult{HasEvents: false, NewWatermark: last}, nil
	}

	var eventTriggers []*workflow.EventTrigger
	for _, t := range triggers {
		if t.Kind == workflow.TriggerEvent && t.Event != nil && t.Event.ChainID == chainID {
			eventTriggers = append(eventTriggers, t.Event)
		}
	}
	if len(eventTriggers) == 0 {
		return ScanResult{HasEvents: false, NewWatermark: head}, nil
	}

	maxRange := m.maxBlockRange[chainID]
	if maxRange == 0 {
		maxRange = defaultMaxBlockRange
	}

	found := false
	for from := last + 1; from <= head; from += maxRange {
		to := from + maxRange - 1
		if to > head {
			to = head
		}
		for _, et := range eventTriggers {
			q, err := buildFilterQuery(et, from, to)
			if err != nil {
				return ScanResult{}, err
			}
			logs, err := m.chains.FilterLogs(ctx, chainID, q)
			if err != nil {
				return ScanResult{}, fmt.Errorf("eventmonitor: filter logs chain=%s [%d,%d]: %w", chainID, from, to, err)
			}
			if len(logs) > 0 {
				found = true
			}
		}
	}

	return ScanResult{HasEvents: found, NewWatermark: head}, nil
}

func buildFilterQuery(et *workflow.EventTrigger, from, to uint64) (ethereum.FilterQuery, error) {
	topic0 := crypto.Keccak256Hash([]byte(et.Signature))

	q := ethereum.FilterQuery{
		FromBlock: bigFrom(from),
		ToBlock:   bigFrom(to),
		Topics:    [][]common.Hash{{topic0}},
	}
	if et.Address != "" {
		q.Addresses = []common.Address{common.HexToAddress(et.Address)}
	}

	if len(et.IndexedFilters) > 0 {
		topics := [][]common.Hash{{topic0}}
		for _, values := range et.IndexedFilters {
			var hashes []common.Hash
			for _, v := range values {
				hashes = append(hashes, topicHash(v))
			}
			topics = append(topics, hashes)
		}
		q.Topics = topics
	}

	return q, nil
}

func topicHash(value string) common.Hash {
	if strings.HasPrefix(value, "0x") && len(value) == 66 {
		return common.HexToHash(value)
	}
	return common.BytesToHash(common.HexToAddress(value).Bytes())
}
