package workflow

import "fmt"

// StepKind tags the Step variant.
type StepKind string

const (
	StepContract StepKind = "contract"
	StepWasm     StepKind = "wasm"
)

// Step is one unit of work within a Job: either an on-chain contract call
// or a WASM computation whose output can feed later contract-call args via
// the "$wasm:<wasmId>" sentinel.
type Step struct {
	Kind     StepKind      `json:"kind"`
	Contract *ContractStep `json:"contract,omitempty"`
	Wasm     *WasmStep     `json:"wasm,omitempty"`
}

// ContractStep calls a contract method. Entries in Args may be the string
// sentinel "$wasm:<wasmId>", resolved to that WASM step's output before ABI
// encoding.
type ContractStep struct {
	Target string `json:"target"`
	ABI    string `json:"abi"`
	Args   []any  `json:"args"`
	Value  string `json:"value,omitempty"` // decimal wei amount
}

// WasmStep runs a guest WASM module. WasmHash is the content hash of the
// bytes stored in the WASM blob store; WasmID is the step-local name other
// steps reference via the "$wasm:<wasmId>" sentinel.
type WasmStep struct {
	WasmHash  string `json:"wasm_hash"`
	WasmID    string `json:"wasm_id"`
	InputJSON string `json:"input_json"`
	TimeoutMs int    `json:"timeout_ms"`
}

// Validate enforces the Step constructor invariants.
func (s Step) Validate() error {
	switch s.Kind {
	case StepContract:
		if s.Contract == nil || s.Contract.Target == "" || s.Contract.ABI == "" {
			return fmt.Errorf("workflow: contract step missing target or abi")
		}
	case StepWasm:
		if s.Wasm == nil || s.Wasm.WasmHash == "" || s.Wasm.WasmID == "" {
			return fmt.Errorf("workflow: wasm step missing wasm_hash or wasm_id")
		}
	default:
		return fmt.Errorf("workflow: unknown step kind %q", s.Kind)
	}
	return nil
}

// WasmSentinel returns the wasmId referenced by arg if arg is a
// "$wasm:<wasmId>" sentinel string, and ok=true.
func WasmSentinel(arg any) (wasmID string, ok bool) {
	s, isStr := arg.(string)
	if !isStr || len(s) < len("$wasm:") || s[:6] != "$wasm:" {
		return "", false
	}
	return s[6:], true
}
