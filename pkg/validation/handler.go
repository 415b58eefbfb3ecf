// Copyright 2025 Ditto Network

package validation

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/dittonetwork/workflow-engine/pkg/store"
	"github.com/dittonetwork/workflow-engine/pkg/wasmrunner"
	"github.com/dittonetwork/workflow-engine/pkg/workflow"
)

// userOpTupleABI decodes the single packed user-operation tuple named in
// §4.10 step 7: (address,uint256,bytes,bytes,bytes32,uint256,bytes32,bytes,bytes).
const userOpTupleABI = `[{"name":"decode","type":"function","inputs":[{"name":"op","type":"tuple","components":[
	{"name":"sender","type":"address"},
	{"name":"nonce","type":"uint256"},
	{"name":"initCode","type":"bytes"},
	{"name":"callData","type":"bytes"},
	{"name":"accountGasLimits","type":"bytes32"},
	{"name":"preVerificationGas","type":"uint256"},
	{"name":"gasFees","type":"bytes32"},
	{"name":"paymasterAndData","type":"bytes"},
	{"name":"signature","type":"bytes"}
]}],"outputs":[]}]`

// Finder is the narrow surface validation needs from C7.
type Finder interface {
	Find(ctx context.Context, hash string) (*workflow.Document, error)
}

// Simulator replays a workflow, optionally pinned to previously-recorded
// context refs for deterministic comparison.
type Simulator interface {
	SimulateWithContext(ctx context.Context, doc *workflow.Document, refs *workflow.ContextRefs) (*workflow.SimulationResult, error)
}

// HeadFetcher exposes C4's current-head query. submitReports fetches each
// chain's head before reporting and skips a chain whose head cannot be
// fetched; the head value is not included in the report.
type HeadFetcher interface {
	CurrentHead(ctx context.Context, chainID string) (uint64, error)
}

// Reporter submits a per-chain report, used for every non-self-report
// chain result (§4.10 step 5).
type Reporter interface {
	SubmitReport(ctx context.Context, doc *workflow.Document, result workflow.PerChainResult) error
}

// WasmRunner executes the optional guest validation module (§4.10 step 8).
type WasmRunner interface {
	Run(ctx context.Context, req wasmrunner.Request) (wasmrunner.Result, error)
}

const wasmValidationBudget = 2 * time.Second

// Handler implements POST /task/validate.
type Handler struct {
	store        Finder
	simulator    Simulator
	heads        HeadFetcher
	reporter     Reporter
	runner       WasmRunner
	operatorAddr string
	rpcProxyURL  string
}

// New builds a Handler. rpcProxyURL is passed through to the optional
// guest WASM run (§4.10 step 8) so it reaches C1 the same way C3's
// standalone HTTP surface does; empty means dispatch in-process.
func New(store Finder, simulator Simulator, heads HeadFetcher, reporter Reporter, runner WasmRunner, operatorAddr string, rpcProxyURL string) *Handler {
	return &Handler{store: store, simulator: simulator, heads: heads, reporter: reporter, runner: runner, operatorAddr: operatorAddr, rpcProxyURL: rpcProxyURL}
}

type validateRequest struct {
	ProofOfTask               string `json:"proofOfTask"`
	Data                      string `json:"data"`
	TaskDefinitionID           string `json:"taskDefinitionId"`
	Performer                 string `json:"performer"`
	TargetChainID             string `json:"targetChainId,omitempty"`
	DataRefContextSerialized  string `json:"dataRefContextSerialized,omitempty"`
	WasmRefContextSerialized  string `json:"wasmRefContextSerialized,omitempty"`
	WasmB64                   string `json:"wasmB64,omitempty"`
	WasmHash                  string `json:"wasmHash,omitempty"`
}

type validateResponse struct {
	Data    bool    `json:"data"`
	Error   bool    `json:"error"`
	Message *string `json:"message"`
}

// ServeHTTP implements the 9-step validation algorithm of §4.10. Schema
// and decidable failures always respond HTTP 200 with a boolean
// decision; only unexpected internal errors return HTTP 500.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecision(w, false, msgPtr("malformed request body"))
		return
	}

	pot, err := ParseProofOfTask(req.ProofOfTask)
	if err != nil {
		writeDecision(w, false, msgPtr(err.Error()))
		return
	}
	if req.TaskDefinitionID == "" || req.Performer == "" {
		writeDecision(w, false, msgPtr("missing taskDefinitionId or performer"))
		return
	}

	approved, err := h.validate(r.Context(), pot, req)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeDecision(w, approved, nil)
}

func (h *Handler) validate(ctx context.Context, pot ProofOfTask, req validateRequest) (bool, error) {
	doc, err := h.store.Find(ctx, pot.ContentHash)
	if err != nil {
		if err == store.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("validation: resolve workflow: %w", err)
	}

	refs, err := deserializeContexts(req.DataRefContextSerialized, req.WasmRefContextSerialized)
	if err != nil {
		return false, nil
	}

	sim, err := h.simulator.SimulateWithContext(ctx, doc, refs)
	if err != nil || sim == nil || !sim.Success {
		h.submitReports(ctx, doc, sim, req.Performer)
		return false, nil
	}
	h.submitReports(ctx, doc, sim, req.Performer)

	filtered := sim.PerChainResults
	if req.TargetChainID != "" {
		filtered = filterByChain(sim.PerChainResults, req.TargetChainID)
	}

	op, err := decodeUserOpTuple(req.Data)
	if err != nil {
		return false, nil
	}

	approved := false
	for _, r := range filtered {
		if r.UserOp.CallData == op.callData && r.UserOp.Nonce == op.nonce {
			approved = true
			break
		}
	}
	if !approved {
		return false, nil
	}

	if req.WasmB64 != "" {
		return h.validateWasm(ctx, req, pot.ChainID)
	}

	return true, nil
}

func (h *Handler) submitReports(ctx context.Context, doc *workflow.Document, sim *workflow.SimulationResult, performer string) {
	if sim == nil {
		return
	}
	if isSelf(h.operatorAddr, performer) {
		return
	}
	for _, r := range sim.PerChainResults {
		// Current head is fetched per chain (§4.10 step 5); a chain whose
		// head cannot be fetched is not reported. The submitted report
		// carries the simulation result only, not the fetched head.
		if _, err := h.heads.CurrentHead(ctx, r.ChainID); err != nil {
			continue
		}
		_ = h.reporter.SubmitReport(ctx, doc, r)
	}
}

// isSelf suppresses reports about our own performer (§4.10 step 5),
// comparing addresses via checksummed normalization so a peer's
// differently-cased hex string still matches (§9 open question,
// resolved: normalize rather than lower-case-compare).
func isSelf(operatorAddr, performer string) bool {
	return strings.EqualFold(common.HexToAddress(operatorAddr).Hex(), common.HexToAddress(performer).Hex())
}

func filterByChain(results []workflow.PerChainResult, chainID string) []workflow.PerChainResult {
	var out []workflow.PerChainResult
	for _, r := range results {
		if r.ChainID == chainID {
			out = append(out, r)
		}
	}
	return out
}

func deserializeContexts(dataRef, wasmRef string) (*workflow.ContextRefs, error) {
	if dataRef == "" && wasmRef == "" {
		return nil, nil
	}
	refs := &workflow.ContextRefs{PinnedBlocks: map[string]uint64{}}
	if dataRef != "" {
		if err := json.Unmarshal([]byte(dataRef), &refs.PinnedBlocks); err != nil {
			return nil, fmt.Errorf("validation: decode dataRefContextSerialized: %w", err)
		}
	}
	if wasmRef != "" {
		if err := json.Unmarshal([]byte(wasmRef), &refs.WasmOutputs); err != nil {
			return nil, fmt.Errorf("validation: decode wasmRefContextSerialized: %w", err)
		}
	}
	return refs, nil
}

type decodedUserOp struct {
	callData string
	nonce    uint64
}

func decodeUserOpTuple(dataHex string) (decodedUserOp, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(dataHex, "0x"))
	if err != nil {
		return decodedUserOp{}, fmt.Errorf("validation: data is not valid hex: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(userOpTupleABI))
	if err != nil {
		return decodedUserOp{}, fmt.Errorf("validation: parse user-op abi: %w", err)
	}

	args, err := parsed.Methods["decode"].Inputs.Unpack(raw)
	if err != nil {
		return decodedUserOp{}, fmt.Errorf("validation: unpack user-op tuple: %w", err)
	}
	if len(args) != 1 {
		return decodedUserOp{}, fmt.Errorf("validation: expected 1 decoded tuple, got %d", len(args))
	}

	return extractUserOp(args[0])
}

// extractUserOp reads CallData and Nonce off the anonymous struct
// go-ethereum's ABI unpacker generates for a tuple type, matching its
// ABI-name-to-Go-field-name capitalization convention.
func extractUserOp(tuple any) (decodedUserOp, error) {
	v := reflect.ValueOf(tuple)
	if v.Kind() != reflect.Struct {
		return decodedUserOp{}, fmt.Errorf("validation: decoded tuple has unexpected kind %v", v.Kind())
	}

	callDataField := v.FieldByName("CallData")
	nonceField := v.FieldByName("Nonce")
	if !callDataField.IsValid() || !nonceField.IsValid() {
		return decodedUserOp{}, fmt.Errorf("validation: decoded tuple missing callData or nonce field")
	}

	callDataBytes, ok := callDataField.Interface().([]byte)
	if !ok {
		return decodedUserOp{}, fmt.Errorf("validation: callData field is not bytes")
	}

	nonceBig, ok := nonceField.Interface().(*big.Int)
	if !ok {
		return decodedUserOp{}, fmt.Errorf("validation: nonce field is not uint256")
	}

	return decodedUserOp{
		callData: "0x" + hex.EncodeToString(callDataBytes),
		nonce:    nonceBig.Uint64(),
	}, nil
}

func msgPtr(s string) *string { return &s }

func writeDecision(w http.ResponseWriter, approved bool, message *string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(validateResponse{Data: approved, Error: false, Message: message})
}

func (h *Handler) validateWasm(ctx context.Context, req validateRequest, chainID string) (bool, error) {
	module, err := base64.StdEncoding.DecodeString(req.WasmB64)
	if err != nil {
		return false, nil
	}
	hash := req.WasmHash
	if hash == "" {
		hash = wasmrunner.Hash(module)
	}

	runCtx, cancel := context.WithTimeout(ctx, wasmValidationBudget)
	defer cancel()

	result, err := h.runner.Run(runCtx, wasmrunner.Request{
		ExpectedHash: hash,
		Module:       module,
		TimeoutMS:    int(wasmValidationBudget / time.Millisecond),
		ChainID:      chainID,
		ProxyURL:     h.rpcProxyURL,
	})
	if err != nil || result.Parsed == nil {
		return false, nil
	}

	var out struct {
		Approved bool `json:"approved"`
	}
	if err := json.Unmarshal(result.Parsed, &out); err != nil {
		return false, nil
	}
	return out.Approved, nil
}
