// Copyright 2025 Ditto Network
//
// wasmrunner hosts C3, the sandboxed WASM executor: it accepts a module
// and input over HTTP, runs it under wazero with a hard timeout, and
// bridges any guest RPC calls to the chain simulator.

package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dittonetwork/workflow-engine/pkg/config"
	"github.com/dittonetwork/workflow-engine/pkg/rpcsim"
	"github.com/dittonetwork/workflow-engine/pkg/wasmrunner"
)

type runRequest struct {
	JobID          string          `json:"jobId"`
	WasmHash       string          `json:"wasmHash,omitempty"`
	WasmB64        string          `json:"wasmB64"`
	Input          json.RawMessage `json:"input"`
	TimeoutMS      int             `json:"timeoutMs"`
	MaxStdoutBytes int             `json:"maxStdoutBytes,omitempty"`
	MaxStderrBytes int             `json:"maxStderrBytes,omitempty"`
	ChainID        string          `json:"chainId,omitempty"`
}

type runResponse struct {
	JobID      string          `json:"jobId"`
	OK         bool            `json:"ok"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Stderr     string          `json:"stderr,omitempty"`
	DurationMS int64           `json:"durationMs"`
}

func main() {
	log.SetFlags(log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	workRoot, err := os.MkdirTemp("", "wasmrunner-work-")
	if err != nil {
		log.Fatalf("create work root: %v", err)
	}
	defer os.RemoveAll(workRoot)

	cacheDir := os.Getenv("WASM_CACHE_DIR")
	if cacheDir == "" {
		cacheDir = workRoot + "/cache"
	}
	cache, err := wasmrunner.NewCache(cacheDir)
	if err != nil {
		log.Fatalf("create wasm cache: %v", err)
	}

	sim, err := rpcsim.New(cfg)
	if err != nil {
		log.Fatalf("create rpc simulator: %v", err)
	}
	defer sim.Close()

	runner := wasmrunner.New(cache, sim, workRoot)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "service": "wasm-sandbox"})
	})
	mux.HandleFunc("/wasm/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	mux.HandleFunc("/wasm/run", func(w http.ResponseWriter, r *http.Request) {
		handleRun(w, r, runner, cfg)
	})

	server := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.HTTPPort),
		Handler: mux,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		log.Printf("wasmrunner listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down wasmrunner")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("http server shutdown: %v", err)
	}
}

func handleRun(w http.ResponseWriter, r *http.Request, runner *wasmrunner.Runner, cfg *config.Config) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, runResponse{OK: false, Error: "malformed request body"})
		return
	}

	module, err := base64.StdEncoding.DecodeString(req.WasmB64)
	if err != nil {
		writeJSON(w, http.StatusOK, runResponse{JobID: req.JobID, OK: false, Error: "wasmB64 is not valid base64"})
		return
	}
	if int64(len(module)) > cfg.MaxWasmBytes {
		writeJSON(w, http.StatusOK, runResponse{JobID: req.JobID, OK: false, Error: "module exceeds MAX_WASM_BYTES"})
		return
	}

	timeoutMS := req.TimeoutMS
	if timeoutMS <= 0 || timeoutMS > cfg.MaxTimeoutMs {
		timeoutMS = cfg.MaxTimeoutMs
	}

	hash := req.WasmHash
	if hash == "" {
		hash = wasmrunner.Hash(module)
	}

	start := time.Now()
	result, err := runner.Run(r.Context(), wasmrunner.Request{
		ExpectedHash: hash,
		Module:       module,
		Input:        req.Input,
		TimeoutMS:    timeoutMS,
		ChainID:      req.ChainID,
		ProxyURL:     cfg.RPCProxyURL,
	})
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		writeJSON(w, http.StatusOK, runResponse{JobID: req.JobID, OK: false, Error: err.Error(), DurationMS: elapsed})
		return
	}

	writeJSON(w, http.StatusOK, runResponse{
		JobID:      req.JobID,
		OK:         true,
		Result:     result.Parsed,
		Stderr:     string(result.Stderr),
		DurationMS: elapsed,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

