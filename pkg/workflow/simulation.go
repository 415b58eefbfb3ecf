package workflow

import "time"

// SimulationResult is the outcome of a dry run (or execution) of a
// workflow's jobs: one PerChainResult per job's chain, plus ContextRefs
// carrying the pinned block numbers and WASM outputs needed to replay the
// same simulation deterministically (used by the validation service).
type SimulationResult struct {
	Success        bool              `json:"success"`
	PerChainResults []PerChainResult `json:"per_chain_results"`
	ContextRefs    *ContextRefs      `json:"context_refs,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// PerChainResult is the simulated (or executed) user-operation for one
// chain, plus timing and gas information.
type PerChainResult struct {
	ChainID       string         `json:"chain_id"`
	Start         time.Time      `json:"start"`
	Finish        time.Time      `json:"finish"`
	UserOp        UserOperation  `json:"user_op"`
	GasBreakdown  GasBreakdown   `json:"gas_breakdown"`
	Error         string         `json:"error,omitempty"`
}

// UserOperation is the packed ERC-4337-style operation produced by
// simulation. CallData and Nonce are the fields the validation service
// compares against a peer's proposal (§4.10 step 7).
type UserOperation struct {
	Sender   string `json:"sender"`
	Nonce    uint64 `json:"nonce"`
	CallData string `json:"call_data"`
}

// GasBreakdown is the estimated gas cost split by phase.
type GasBreakdown struct {
	VerificationGas uint64 `json:"verification_gas"`
	CallGas         uint64 `json:"call_gas"`
	PreVerificationGas uint64 `json:"pre_verification_gas"`
}

// ContextRefs carries everything needed to replay a simulation
// deterministically: the block each chain was pinned to, and any WASM
// step outputs that were computed (so a re-simulation doesn't have to
// re-run nondeterministic guest code).
type ContextRefs struct {
	PinnedBlocks map[string]uint64         `json:"pinned_blocks"`
	WasmOutputs  map[string]map[string]any `json:"wasm_outputs,omitempty"`
}
