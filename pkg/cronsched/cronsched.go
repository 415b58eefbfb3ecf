// Copyright 2025 Ditto Network
//
// Package cronsched implements C6: computing a workflow's next cron fire
// time from its cron triggers, using robfig/cron's standard schedule
// parser.

package cronsched

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dittonetwork/workflow-engine/pkg/workflow"
)

// ErrNoNextTime is returned by NextFire when a workflow has no cron
// triggers at all — it is a one-shot, not a recurring job (§4.6).
var ErrNoNextTime = errors.New("cronsched: workflow has no next fire time")

var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSchedule parses a cron expression, rejecting malformed
// schedules up front rather than at evaluation time.
func ValidateSchedule(schedule string) error {
	_, err := parser.Parse(schedule)
	return err
}

// NextFire returns the earliest cron fire time strictly after now across
// every cron trigger in triggers. A workflow whose trigger list is empty
// returns ErrNoNextTime — it never recurs on its own.
func NextFire(triggers []workflow.Trigger, now time.Time) (time.Time, error) {
	if len(triggers) == 0 {
		return time.Time{}, ErrNoNextTime
	}

	var earliest time.Time
	found := false

	for _, t := range triggers {
		if t.Kind != workflow.TriggerCron || t.Cron == nil {
			continue
		}
		schedule, err := parser.Parse(t.Cron.Schedule)
		if err != nil {
			return time.Time{}, err
		}
		next := schedule.Next(now)
		if !found || next.Before(earliest) {
			earliest = next
			found = true
		}
	}

	if !found {
		return time.Time{}, ErrNoNextTime
	}
	return earliest, nil
}
