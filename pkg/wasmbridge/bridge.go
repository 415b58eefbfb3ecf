// Copyright 2025 Ditto Network
//
// Package wasmbridge implements C2, the WASM Host Bridge: a file-channel
// RPC protocol moving JSON-RPC 2.0 requests from guest WASM code to the
// host's RPC simulator (C1). The guest writes wasm_rpc_request.json into
// its pre-opened work directory and polls for wasm_rpc_response.json; the
// bridge claims the request atomically so concurrent pollers never
// deliver it twice.

package wasmbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dittonetwork/workflow-engine/pkg/rpcsim"
)

const (
	requestFileName    = "wasm_rpc_request.json"
	responseFileName   = "wasm_rpc_response.json"
	processingSuffix   = ".processing"
	maxRequestBytes    = 64 * 1024
	maxResponseBytes   = 1024 * 1024
	dispatchTimeout    = 5 * time.Second
)

// Dispatcher executes a raw JSON-RPC request and returns a raw JSON-RPC
// response. *rpcsim.Simulator satisfies this directly.
type Dispatcher interface {
	DispatchRaw(ctx context.Context, body []byte, chainID string) []byte
}

// Bridge processes one work directory's pending guest RPC call at a time.
type Bridge struct {
	local    Dispatcher
	proxyURL string
	httpClient *http.Client
	chainID  string
}

// New constructs a Bridge. If proxyURL is non-empty, requests are forwarded
// over HTTP instead of dispatched in-process to local.
func New(local Dispatcher, proxyURL string, chainID string) *Bridge {
	return &Bridge{
		local:    local,
		proxyURL: proxyURL,
		httpClient: &http.Client{Timeout: dispatchTimeout},
		chainID:  chainID,
	}
}

// Process handles one pending request in workDir, if any. It returns
// ErrNothingToDo when there is nothing to claim. The processing marker is
// removed whether or not dispatch succeeds, so a malformed or oversized
// request never wedges the channel.
func (b *Bridge) Process(ctx context.Context, workDir string) error {
	reqPath := filepath.Join(workDir, requestFileName)
	claimPath := reqPath + processingSuffix

	if err := os.Rename(reqPath, claimPath); err != nil {
		if os.IsNotExist(err) {
			return ErrNothingToDo
		}
		return fmt.Errorf("wasmbridge: claim request: %w", err)
	}
	defer os.Remove(claimPath)

	respPath := filepath.Join(workDir, responseFileName)

	info, err := os.Stat(claimPath)
	if err != nil {
		return b.writeResponse(respPath, errorEnvelope(nil, rpcsim.CodeInvalidRequest, "too large", "stat failed"))
	}
	if info.Size() > maxRequestBytes {
		return b.writeResponse(respPath, errorEnvelope(nil, rpcsim.CodeInvalidRequest, "request too large", "too large"))
	}

	body, err := os.ReadFile(claimPath)
	if err != nil {
		return fmt.Errorf("wasmbridge: read claimed request: %w", err)
	}

	var req rpcsim.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return b.writeResponse(respPath, errorEnvelope(nil, rpcsim.CodeParseError, "parse error", err.Error()))
	}

	ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	respBody, err := b.dispatch(ctx, body)
	if err != nil {
		return b.writeResponse(respPath, errorEnvelope(req.ID, rpcsim.CodeUpstreamError, "timeout", err.Error()))
	}

	if len(respBody) > maxResponseBytes {
		return b.writeResponse(respPath, errorEnvelope(req.ID, rpcsim.CodeUpstreamError, "response too large", "too large"))
	}

	return b.writeResponse(respPath, respBody)
}

func (b *Bridge) dispatch(ctx context.Context, body []byte) ([]byte, error) {
	if b.proxyURL != "" {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.proxyURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		resp, err := b.httpClient.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		return io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	}

	done := make(chan []byte, 1)
	go func() { done <- b.local.DispatchRaw(ctx, body, b.chainID) }()

	select {
	case result := <-done:
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// writeResponse atomically publishes resp as the response file: write to a
// temp file in the same directory, then rename into place, so a reader
// polling for the final name never observes a torn write.
func (b *Bridge) writeResponse(path string, resp []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, resp, 0o644); err != nil {
		return fmt.Errorf("wasmbridge: write response: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("wasmbridge: publish response: %w", err)
	}
	return nil
}

func errorEnvelope(id json.RawMessage, code int, message, data string) []byte {
	resp := rpcsim.Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcsim.Error{Code: code, Message: message, Data: data},
	}
	raw, _ := json.Marshal(resp)
	return raw
}
