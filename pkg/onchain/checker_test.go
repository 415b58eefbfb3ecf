// Copyright 2025 Ditto Network

package onchain

import (
	"context"
	"testing"

	"github.com/dittonetwork/workflow-engine/pkg/workflow"
)

func TestAllTrueEmptyTriggerList(t *testing.T) {
	c := NewChecker(nil)
	ok, err := c.AllTrue(context.Background(), nil)
	if err != nil || !ok {
		t.Fatalf("expected vacuous true, got ok=%v err=%v", ok, err)
	}
}

func TestAllTrueNoOnchainTriggers(t *testing.T) {
	c := NewChecker(nil)
	triggers := []workflow.Trigger{
		{Kind: workflow.TriggerCron, Cron: &workflow.CronTrigger{Schedule: "@every 1m"}},
	}
	ok, err := c.AllTrue(context.Background(), triggers)
	if err != nil || !ok {
		t.Fatalf("expected vacuous true for non-onchain triggers, got ok=%v err=%v", ok, err)
	}
}
