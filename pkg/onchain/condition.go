// Copyright 2025 Ditto Network

package onchain

import (
	"fmt"
	"math/big"
	"reflect"

	"github.com/dittonetwork/workflow-engine/pkg/workflow"
)

// evaluate applies condition to the decoded ABI return value result against
// the trigger's configured comparison value.
func evaluate(condition workflow.Condition, result, value any) (bool, error) {
	switch condition {
	case workflow.ConditionEqual:
		return compareEqual(result, value), nil
	case workflow.ConditionNotEqual:
		return !compareEqual(result, value), nil
	case workflow.ConditionGreaterThan:
		cmp, err := compareNumeric(result, value)
		return err == nil && cmp > 0, err
	case workflow.ConditionLessThan:
		cmp, err := compareNumeric(result, value)
		return err == nil && cmp < 0, err
	case workflow.ConditionGreaterOrEqual:
		cmp, err := compareNumeric(result, value)
		return err == nil && cmp >= 0, err
	case workflow.ConditionLessOrEqual:
		cmp, err := compareNumeric(result, value)
		return err == nil && cmp <= 0, err
	case workflow.ConditionOneOf:
		options, ok := value.([]any)
		if !ok {
			return false, fmt.Errorf("onchain: ONE_OF requires a list value")
		}
		for _, opt := range options {
			if compareEqual(result, opt) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("onchain: unknown condition %q", condition)
	}
}

func compareEqual(a, b any) bool {
	if aBig, bBig, ok := asBigInts(a, b); ok {
		return aBig.Cmp(bBig) == 0
	}
	return reflect.DeepEqual(a, b)
}

func compareNumeric(a, b any) (int, error) {
	aBig, bBig, ok := asBigInts(a, b)
	if !ok {
		return 0, fmt.Errorf("onchain: condition requires numeric operands, got %T and %T", a, b)
	}
	return aBig.Cmp(bBig), nil
}

// asBigInts coerces both operands to *big.Int, accepting the shapes
// go-ethereum's abi.Unpack and encoding/json produce.
func asBigInts(a, b any) (*big.Int, *big.Int, bool) {
	aBig, ok := toBigInt(a)
	if !ok {
		return nil, nil, false
	}
	bBig, ok := toBigInt(b)
	if !ok {
		return nil, nil, false
	}
	return aBig, bBig, true
}

func toBigInt(v any) (*big.Int, bool) {
	switch n := v.(type) {
	case *big.Int:
		return n, true
	case big.Int:
		return &n, true
	case int64:
		return big.NewInt(n), true
	case int:
		return big.NewInt(int64(n)), true
	case float64:
		return big.NewInt(int64(n)), true
	case string:
		b, ok := new(big.Int).SetString(n, 0)
		return b, ok
	default:
		return nil, false
	}
}
