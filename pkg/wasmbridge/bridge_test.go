// Copyright 2025 Ditto Network

package wasmbridge

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dittonetwork/workflow-engine/pkg/rpcsim"
)

type stubDispatcher struct {
	response []byte
}

func (s stubDispatcher) DispatchRaw(ctx context.Context, body []byte, chainID string) []byte {
	return s.response
}

func writeRequest(t *testing.T, dir string, body []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, requestFileName), body, 0o644); err != nil {
		t.Fatalf("write request: %v", err)
	}
}

func readResponse(t *testing.T, dir string) rpcsim.Response {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(dir, responseFileName))
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var resp rpcsim.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return resp
}

func TestProcessNothingToDo(t *testing.T) {
	dir := t.TempDir()
	b := New(stubDispatcher{}, "", "")
	if err := b.Process(context.Background(), dir); err != ErrNothingToDo {
		t.Fatalf("expected ErrNothingToDo, got %v", err)
	}
}

func TestProcessRequestTooLarge(t *testing.T) {
	dir := t.TempDir()
	writeRequest(t, dir, make([]byte, maxRequestBytes+1))

	b := New(stubDispatcher{}, "", "")
	if err := b.Process(context.Background(), dir); err != nil {
		t.Fatalf("Process: %v", err)
	}

	resp := readResponse(t, dir)
	if resp.Error == nil || resp.Error.Code != rpcsim.CodeInvalidRequest {
		t.Fatalf("expected CodeInvalidRequest, got %+v", resp.Error)
	}
	if _, err := os.Stat(filepath.Join(dir, requestFileName) + processingSuffix); !os.IsNotExist(err) {
		t.Fatalf("processing marker should be removed")
	}
}

func TestProcessMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	writeRequest(t, dir, []byte("not json"))

	b := New(stubDispatcher{}, "", "")
	if err := b.Process(context.Background(), dir); err != nil {
		t.Fatalf("Process: %v", err)
	}

	resp := readResponse(t, dir)
	if resp.Error == nil || resp.Error.Code != rpcsim.CodeParseError {
		t.Fatalf("expected CodeParseError, got %+v", resp.Error)
	}
}

func TestProcessDispatchesToLocal(t *testing.T) {
	dir := t.TempDir()
	req := rpcsim.Request{JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "eth_blockNumber"}
	body, _ := json.Marshal(req)
	writeRequest(t, dir, body)

	want := rpcsim.Response{JSONRPC: "2.0", ID: json.RawMessage("1"), Result: json.RawMessage(`"0x1"`)}
	raw, _ := json.Marshal(want)

	b := New(stubDispatcher{response: raw}, "", "chain-a")
	if err := b.Process(context.Background(), dir); err != nil {
		t.Fatalf("Process: %v", err)
	}

	resp := readResponse(t, dir)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if strings.TrimSpace(string(resp.Result)) != `"0x1"` {
		t.Errorf("result = %s, want \"0x1\"", resp.Result)
	}
}

func TestProcessSecondClaimFindsNothing(t *testing.T) {
	dir := t.TempDir()
	req := rpcsim.Request{JSONRPC: "2.0", Method: "eth_blockNumber"}
	body, _ := json.Marshal(req)
	writeRequest(t, dir, body)

	resp := rpcsim.Response{JSONRPC: "2.0", Result: json.RawMessage(`"0x1"`)}
	raw, _ := json.Marshal(resp)
	b := New(stubDispatcher{response: raw}, "", "")

	if err := b.Process(context.Background(), dir); err != nil {
		t.Fatalf("first Process: %v", err)
	}
	if err := b.Process(context.Background(), dir); err != ErrNothingToDo {
		t.Fatalf("second Process should find nothing, got %v", err)
	}
}
