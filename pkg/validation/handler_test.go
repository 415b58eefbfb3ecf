// Copyright 2025 Ditto Network

package validation

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/dittonetwork/workflow-engine/pkg/store"
	"github.com/dittonetwork/workflow-engine/pkg/wasmrunner"
	"github.com/dittonetwork/workflow-engine/pkg/workflow"
)

type fakeFinder struct {
	doc *workflow.Document
	err error
}

func (f *fakeFinder) Find(ctx context.Context, hash string) (*workflow.Document, error) {
	return f.doc, f.err
}

type fakeSimulator struct {
	result *workflow.SimulationResult
	err    error
}

func (f *fakeSimulator) SimulateWithContext(ctx context.Context, doc *workflow.Document, refs *workflow.ContextRefs) (*workflow.SimulationResult, error) {
	return f.result, f.err
}

type fakeHeads struct{}

func (fakeHeads) CurrentHead(ctx context.Context, chainID string) (uint64, error) { return 42, nil }

type fakeReporter struct{ count int }

func (f *fakeReporter) SubmitReport(ctx context.Context, doc *workflow.Document, result workflow.PerChainResult) error {
	f.count++
	return nil
}

type fakeRunner struct {
	result wasmrunner.Result
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, req wasmrunner.Request) (wasmrunner.Result, error) {
	return f.result, f.err
}

func encodeUserOpData(t *testing.T, callData []byte, nonce int64) string {
	t.Helper()
	parsed, err := abi.JSON(bytes.NewReader([]byte(userOpTupleABI)))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	op := struct {
		Sender             common.Address
		Nonce              *big.Int
		InitCode           []byte
		CallData           []byte
		AccountGasLimits   [32]byte
		PreVerificationGas *big.Int
		GasFees            [32]byte
		PaymasterAndData   []byte
		Signature          []byte
	}{
		Sender:             common.Address{},
		Nonce:              big.NewInt(nonce),
		InitCode:           nil,
		CallData:           callData,
		AccountGasLimits:   [32]byte{},
		PreVerificationGas: big.NewInt(0),
		GasFees:            [32]byte{},
		PaymasterAndData:   nil,
		Signature:          nil,
	}
	packed, err := parsed.Methods["decode"].Inputs.Pack(op)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return "0x" + hex.EncodeToString(packed)
}

func TestServeHTTPApprovesMatchingCallData(t *testing.T) {
	doc := &workflow.Document{ContentHash: "hash1", Meta: &workflow.Meta{Owner: "0x0000000000000000000000000000000000000001"}}
	sim := &workflow.SimulationResult{
		Success: true,
		PerChainResults: []workflow.PerChainResult{
			{ChainID: "1", UserOp: workflow.UserOperation{CallData: "0xdeadbeef", Nonce: 7}},
		},
	}

	h := New(&fakeFinder{doc: doc}, &fakeSimulator{result: sim}, fakeHeads{}, &fakeReporter{}, &fakeRunner{}, "0xoperator", "")

	body, _ := json.Marshal(map[string]any{
		"proofOfTask":      "hash1_1735689600000_1",
		"data":             encodeUserOpData(t, []byte{0xde, 0xad, 0xbe, 0xef}, 7),
		"taskDefinitionId": "def1",
		"performer":        "0xperformer",
	})

	req := httptest.NewRequest(http.MethodPost, "/task/validate", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp validateResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Data {
		t.Error("expected approval")
	}
}

func TestServeHTTPRejectsMalformedProofOfTask(t *testing.T) {
	h := New(&fakeFinder{}, &fakeSimulator{}, fakeHeads{}, &fakeReporter{}, &fakeRunner{}, "0xoperator", "")

	body, _ := json.Marshal(map[string]any{"proofOfTask": "bad", "taskDefinitionId": "d", "performer": "p"})
	req := httptest.NewRequest(http.MethodPost, "/task/validate", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (decidable negative)", w.Code)
	}
	var resp validateResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Data {
		t.Error("expected rejection")
	}
}

func TestServeHTTPRejectsWorkflowNotFound(t *testing.T) {
	h := New(&fakeFinder{err: store.ErrNotFound}, &fakeSimulator{}, fakeHeads{}, &fakeReporter{}, &fakeRunner{}, "0xoperator", "")

	body, _ := json.Marshal(map[string]any{
		"proofOfTask":      "hash1_1735689600000_1",
		"taskDefinitionId": "d",
		"performer":        "p",
	})
	req := httptest.NewRequest(http.MethodPost, "/task/validate", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp validateResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Data {
		t.Error("expected rejection for unknown workflow")
	}
}
