// Copyright 2025 Ditto Network

package cronsched

import (
	"errors"
	"testing"
	"time"

	"github.com/dittonetwork/workflow-engine/pkg/workflow"
)

func TestValidateScheduleRejectsGarbage(t *testing.T) {
	if err := ValidateSchedule("not a cron schedule"); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if err := ValidateSchedule("*/5 * * * *"); err != nil {
		t.Fatalf("unexpected error for valid schedule: %v", err)
	}
}

func TestNextFireNoTriggers(t *testing.T) {
	_, err := NextFire(nil, time.Now())
	if !errors.Is(err, ErrNoNextTime) {
		t.Fatalf("expected ErrNoNextTime, got %v", err)
	}
}

func TestNextFireNoCronTriggers(t *testing.T) {
	triggers := []workflow.Trigger{
		{Kind: workflow.TriggerEvent, Event: &workflow.EventTrigger{Signature: "Transfer", ChainID: "1"}},
	}
	_, err := NextFire(triggers, time.Now())
	if !errors.Is(err, ErrNoNextTime) {
		t.Fatalf("expected ErrNoNextTime, got %v", err)
	}
}

func TestNextFirePicksEarliest(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	triggers := []workflow.Trigger{
		{Kind: workflow.TriggerCron, Cron: &workflow.CronTrigger{Schedule: "0 0 * * *"}},  // daily at midnight
		{Kind: workflow.TriggerCron, Cron: &workflow.CronTrigger{Schedule: "*/5 * * * *"}}, // every 5 minutes
	}
	next, err := NextFire(triggers, now)
	if err != nil {
		t.Fatalf("NextFire: %v", err)
	}
	want := now.Add(5 * time.Minute)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}
