// Copyright 2025 Ditto Network

package onchain

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dittonetwork/workflow-engine/pkg/workflow"
)

const (
	checkTimeout  = 5 * time.Second
	defaultRetries = 1
)

// Checker evaluates a workflow's on-chain triggers (C5).
type Checker struct {
	clients *ClientSet
}

// NewChecker wraps a ClientSet for trigger evaluation.
func NewChecker(clients *ClientSet) *Checker {
	return &Checker{clients: clients}
}

// AllTrue reports whether every on-chain trigger among triggers is
// currently satisfied. The query block is pinned to the current head of
// each trigger's chain at the start of the check, fetched once per chain
// so all triggers on that chain observe the same state. An empty or
// all-non-onchain trigger list is vacuously true.
func (c *Checker) AllTrue(ctx context.Context, triggers []workflow.Trigger) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	heads := make(map[string]int64)

	for _, t := range triggers {
		if t.Kind != workflow.TriggerOnchain || t.Onchain == nil {
			continue
		}
		ot := t.Onchain

		head, ok := heads[ot.ChainID]
		if !ok {
			h, err := c.clients.Head(ctx, ot.ChainID)
			if err != nil {
				return false, fmt.Errorf("onchain: fetch head for chain %s: %w", ot.ChainID, err)
			}
			head = int64(h)
			heads[ot.ChainID] = head
		}

		satisfied, err := c.checkOneWithRetry(ctx, ot, head)
		if err != nil {
			return false, err
		}
		if !satisfied {
			return false, nil
		}
	}
	return true, nil
}

func (c *Checker) checkOneWithRetry(ctx context.Context, t *workflow.OnchainTrigger, head int64) (bool, error) {
	var lastErr error
	for attempt := 0; attempt <= defaultRetries; attempt++ {
		ok, err := c.checkOne(ctx, t, head)
		if err == nil {
			return ok, nil
		}
		lastErr = err
	}
	return false, lastErr
}

func (c *Checker) checkOne(ctx context.Context, t *workflow.OnchainTrigger, head int64) (bool, error) {
	outputs, err := c.clients.CallAt(ctx, t.ChainID, common.HexToAddress(t.Target), t.ABI, "", &head, t.Args...)
	if err != nil {
		return false, err
	}
	if len(outputs) == 0 {
		return false, fmt.Errorf("onchain: view call returned no outputs")
	}
	result := outputs[0]

	if t.Condition == nil {
		b, ok := result.(bool)
		return ok && b, nil
	}
	return evaluate(*t.Condition, result, t.Value)
}
