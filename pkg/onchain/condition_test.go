// Copyright 2025 Ditto Network

package onchain

import (
	"math/big"
	"testing"

	"github.com/dittonetwork/workflow-engine/pkg/workflow"
)

func TestEvaluateEqual(t *testing.T) {
	ok, err := evaluate(workflow.ConditionEqual, big.NewInt(42), float64(42))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !ok {
		t.Fatal("expected equal")
	}
}

func TestEvaluateGreaterThan(t *testing.T) {
	ok, err := evaluate(workflow.ConditionGreaterThan, big.NewInt(100), float64(50))
	if err != nil || !ok {
		t.Fatalf("expected 100 > 50, got ok=%v err=%v", ok, err)
	}
	ok, err = evaluate(workflow.ConditionGreaterThan, big.NewInt(10), float64(50))
	if err != nil || ok {
		t.Fatalf("expected 10 not > 50, got ok=%v err=%v", ok, err)
	}
}

func TestEvaluateOneOf(t *testing.T) {
	options := []any{float64(1), float64(2), float64(3)}
	ok, err := evaluate(workflow.ConditionOneOf, big.NewInt(2), options)
	if err != nil || !ok {
		t.Fatalf("expected 2 in {1,2,3}, got ok=%v err=%v", ok, err)
	}
	ok, err = evaluate(workflow.ConditionOneOf, big.NewInt(9), options)
	if err != nil || ok {
		t.Fatalf("expected 9 not in {1,2,3}, got ok=%v err=%v", ok, err)
	}
}

func TestEvaluateNotEqual(t *testing.T) {
	ok, err := evaluate(workflow.ConditionNotEqual, big.NewInt(1), float64(2))
	if err != nil || !ok {
		t.Fatalf("expected not equal, got ok=%v err=%v", ok, err)
	}
}

func TestEvaluateUnknownCondition(t *testing.T) {
	if _, err := evaluate(workflow.Condition("BOGUS"), big.NewInt(1), float64(1)); err == nil {
		t.Fatal("expected error for unknown condition")
	}
}
