package workflow

import "fmt"

// TriggerKind tags the Trigger variant.
type TriggerKind string

const (
	TriggerCron    TriggerKind = "cron"
	TriggerEvent   TriggerKind = "event"
	TriggerOnchain TriggerKind = "onchain"
)

// Condition is the comparison applied to an on-chain trigger's returned
// value. An OnchainTrigger with a nil Condition requires the result to be
// boolean true; an empty Condition is rejected as an unknown condition.
type Condition string

const (
	ConditionEqual              Condition = "EQUAL"
	ConditionNotEqual           Condition = "NOT_EQUAL"
	ConditionGreaterThan        Condition = "GREATER_THAN"
	ConditionLessThan           Condition = "LESS_THAN"
	ConditionGreaterOrEqual     Condition = "GREATER_THAN_OR_EQUAL"
	ConditionLessOrEqual        Condition = "LESS_THAN_OR_EQUAL"
	ConditionOneOf              Condition = "ONE_OF"
)

// Trigger is a tagged variant: exactly one of Cron, Event, Onchain is set,
// selected by Kind. Triggers are position-indexed within Meta.Triggers.
type Trigger struct {
	Kind    TriggerKind    `json:"kind"`
	Cron    *CronTrigger   `json:"cron,omitempty"`
	Event   *EventTrigger  `json:"event,omitempty"`
	Onchain *OnchainTrigger `json:"onchain,omitempty"`
}

// CronTrigger fires on a cron schedule.
type CronTrigger struct {
	Schedule string `json:"schedule"`
}

// EventTrigger fires when a matching log is found on chain.
type EventTrigger struct {
	Signature      string              `json:"signature"`
	ChainID        string              `json:"chain_id"`
	Address        string              `json:"address,omitempty"`
	IndexedFilters map[string][]string `json:"indexed_filters,omitempty"`
}

// OnchainTrigger fires when a view-call's result satisfies Condition
// against the comparison value Value.
type OnchainTrigger struct {
	Target    string      `json:"target"`
	ABI       string      `json:"abi"`
	Args      []any       `json:"args"`
	ChainID   string      `json:"chain_id"`
	Condition *Condition  `json:"condition,omitempty"`
	Value     any         `json:"value,omitempty"`
}

// Validate enforces the constructor invariants for a tagged Trigger: the
// variant field named by Kind must be set and carry its required
// sub-fields. The other variant fields are not checked. Unknown kinds are
// a typed error rather than a silently-ignored trigger.
func (t Trigger) Validate() error {
	switch t.Kind {
	case TriggerCron:
		if t.Cron == nil || t.Cron.Schedule == "" {
			return fmt.Errorf("workflow: cron trigger missing schedule")
		}
	case TriggerEvent:
		if t.Event == nil || t.Event.Signature == "" || t.Event.ChainID == "" {
			return fmt.Errorf("workflow: event trigger missing signature or chain_id")
		}
	case TriggerOnchain:
		if t.Onchain == nil || t.Onchain.Target == "" || t.Onchain.ABI == "" || t.Onchain.ChainID == "" {
			return fmt.Errorf("workflow: onchain trigger missing target, abi, or chain_id")
		}
	default:
		return fmt.Errorf("workflow: unknown trigger kind %q", t.Kind)
	}
	return nil
}
