// Copyright 2025 Ditto Network

package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dittonetwork/workflow-engine/pkg/workflow"
)

// HTTPSimulator calls the external workflow simulator (out of scope:
// this engine does not define user-operation construction) over HTTP,
// passing optional replay contexts for deterministic re-simulation
// (§4.10 step 3-4).
type HTTPSimulator struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPSimulator points at the simulator's base URL (WASM_SERVER_URL).
func NewHTTPSimulator(baseURL string) *HTTPSimulator {
	return &HTTPSimulator{baseURL: baseURL, httpClient: &http.Client{Timeout: 30 * time.Second}}
}

type simulateRequest struct {
	ContentHash string         `json:"content_hash"`
	Meta        *workflow.Meta `json:"meta"`
	ContextRefs *workflow.ContextRefs `json:"context_refs,omitempty"`
}

// Simulate implements worker.Simulator.
func (s *HTTPSimulator) Simulate(ctx context.Context, doc *workflow.Document) (*workflow.SimulationResult, error) {
	return s.simulateWithContext(ctx, doc, nil)
}

// SimulateWithContext replays a simulation pinned to previously-recorded
// context refs, used by the validation service (C10) to deterministically
// reproduce a peer's proposal.
func (s *HTTPSimulator) SimulateWithContext(ctx context.Context, doc *workflow.Document, refs *workflow.ContextRefs) (*workflow.SimulationResult, error) {
	return s.simulateWithContext(ctx, doc, refs)
}

func (s *HTTPSimulator) simulateWithContext(ctx context.Context, doc *workflow.Document, refs *workflow.ContextRefs) (*workflow.SimulationResult, error) {
	req := simulateRequest{ContentHash: doc.ContentHash, Meta: doc.Meta, ContextRefs: refs}
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("worker: marshal simulate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/simulate", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("worker: simulate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("worker: simulator returned status %d: %s", resp.StatusCode, string(data))
	}

	var result workflow.SimulationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("worker: decode simulate response: %w", err)
	}
	return &result, nil
}

// HTTPExecutor calls the opaque executeFromIpfs operation (out of scope:
// the smart-account execution library is an external dependency) over
// HTTP, submitting a previously simulated user operation per chain.
type HTTPExecutor struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPExecutor points at the executor's base URL (IPFS_SERVICE_URL,
// which fronts both content resolution and the execution call in the
// upstream smart-account stack).
func NewHTTPExecutor(baseURL string) *HTTPExecutor {
	return &HTTPExecutor{baseURL: baseURL, httpClient: &http.Client{Timeout: 30 * time.Second}}
}

type executeRequest struct {
	ContentHash string                    `json:"content_hash"`
	Simulation  *workflow.SimulationResult `json:"simulation"`
}

// Execute implements worker.Executor.
func (e *HTTPExecutor) Execute(ctx context.Context, doc *workflow.Document, sim *workflow.SimulationResult) (*workflow.SimulationResult, error) {
	req := executeRequest{ContentHash: doc.ContentHash, Simulation: sim}
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("worker: marshal execute request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/executeFromIpfs", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("worker: execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("worker: executor returned status %d: %s", resp.StatusCode, string(data))
	}

	var result workflow.SimulationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("worker: decode execute response: %w", err)
	}
	return &result, nil
}
