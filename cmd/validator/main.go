// Copyright 2025 Ditto Network
//
// validator hosts C10, the HTTP service that re-simulates a peer's
// proposed user operation against our own copy of a workflow and
// approves or rejects it.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/dittonetwork/workflow-engine/pkg/config"
	"github.com/dittonetwork/workflow-engine/pkg/eventmonitor"
	"github.com/dittonetwork/workflow-engine/pkg/metrics"
	"github.com/dittonetwork/workflow-engine/pkg/onchain"
	"github.com/dittonetwork/workflow-engine/pkg/reporting"
	"github.com/dittonetwork/workflow-engine/pkg/rpcsim"
	"github.com/dittonetwork/workflow-engine/pkg/store"
	"github.com/dittonetwork/workflow-engine/pkg/validation"
	"github.com/dittonetwork/workflow-engine/pkg/wasmrunner"
	"github.com/dittonetwork/workflow-engine/pkg/worker"
)

// health tracks component status for /health and /health/detailed,
// updated as dependencies come online during startup.
type health struct {
	mu        sync.RWMutex
	startedAt time.Time
	database  string
	chains    string
	reporting string
}

func (h *health) set(field *string, status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	*field = status
}

func (h *health) overall() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.database == "disconnected" || h.chains == "disconnected" {
		return "error"
	}
	if h.reporting != "authenticated" {
		return "degraded"
	}
	return "ok"
}

func (h *health) snapshot() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return map[string]any{
		"status":         h.overall(),
		"database":       h.database,
		"chains":         h.chains,
		"reporting":      h.reporting,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}
}

func main() {
	log.SetFlags(log.LstdFlags)
	log.Println("starting validation api")

	httpPort := flag.Int("http-port", 0, "overrides HTTP_PORT env var when > 0")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	if *httpPort > 0 {
		cfg.HTTPPort = *httpPort
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	h := &health{startedAt: time.Now(), database: "unknown", chains: "unknown", reporting: "unknown"}

	dbClient, err := store.NewClient(cfg, store.WithLogger(log.New(log.Writer(), "[Store] ", log.LstdFlags)))
	if err != nil {
		log.Fatalf("connect to document store: %v", err)
	}
	h.set(&h.database, "connected")
	adapter := store.NewAdapter(dbClient)

	chains, err := onchain.NewClientSet(cfg)
	if err != nil {
		log.Fatalf("dial chain rpc clients: %v", err)
	}
	defer chains.Close()
	h.set(&h.chains, "connected")
	monitor := eventmonitor.New(chains, cfg)

	reporter, err := reporting.New(cfg.ReportingServiceURL, cfg.ExecutorPrivateKey, cfg.ExecutorAddress)
	if err != nil {
		log.Fatalf("create reporting client: %v", err)
	}
	if err := reporter.EnsureAuth(context.Background()); err != nil {
		log.Printf("reporting auth bootstrap failed, will retry lazily: %v", err)
		h.set(&h.reporting, "unauthenticated")
	} else {
		h.set(&h.reporting, "authenticated")
	}

	workRoot, err := os.MkdirTemp("", "validator-wasm-work-")
	if err != nil {
		log.Fatalf("create wasm work root: %v", err)
	}
	defer os.RemoveAll(workRoot)
	cache, err := wasmrunner.NewCache(workRoot + "/cache")
	if err != nil {
		log.Fatalf("create wasm cache: %v", err)
	}
	sim, err := rpcsim.New(cfg)
	if err != nil {
		log.Fatalf("create rpc simulator: %v", err)
	}
	defer sim.Close()
	runner := wasmrunner.New(cache, sim, workRoot)

	handler := validation.New(
		adapter,
		worker.NewHTTPSimulator(cfg.WasmServerURL),
		monitor,
		reporter,
		runner,
		reporter.Address(),
		cfg.RPCProxyURL,
	)

	mux := http.NewServeMux()
	mux.Handle("/task/validate", http.MaxBytesHandler(handler, cfg.MaxBodyBytes))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		snap := h.snapshot()
		w.Header().Set("Content-Type", "application/json")
		if snap["status"] == "error" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(snap)
	})
	mux.HandleFunc("/health/detailed", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(h.snapshot())
	})

	server := &http.Server{Addr: ":" + strconv.Itoa(cfg.HTTPPort), Handler: mux}

	go func() {
		log.Printf("validation api listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down validation api")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("http server shutdown: %v", err)
	}
}
