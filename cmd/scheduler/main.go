// Copyright 2025 Ditto Network
//
// scheduler is the cooperative loop (C9) that selects due workflows and
// dispatches them to the worker state machine (C8), plus this process's
// own Prometheus metrics and health endpoints.

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
	"github.com/dittonetwork/workflow-engine/pkg/cronsched"
	"github.com/dittonetwork/workflow-engine/pkg/eventmonitor"
	"github.com/dittonetwork/workflow-engine/pkg/metrics"
	"github.com/dittonetwork/workflow-engine/pkg/onchain"
	"github.com/dittonetwork/workflow-engine/pkg/reporting"
	"github.com/dittonetwork/workflow-engine/pkg/scheduler"
	"github.com/dittonetwork/workflow-engine/pkg/store"
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
	log.Println("starting scheduler")

	var (
		maxWorkers = flag.Int("max-workers", 0, "overrides MAX_WORKERS env var when > 0")
		httpPort   = flag.Int("http-port", 0, "overrides HTTP_PORT env var when > 0")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	if *maxWorkers > 0 {
		cfg.MaxWorkers = *maxWorkers
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
	if err := dbClient.MigrateUp(context.Background()); err != nil {
		log.Fatalf("run migrations: %v", err)
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
	checker := onchain.NewChecker(chains)

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

	w := worker.New(worker.Config{
		Store:     adapter,
		Events:    monitor,
		Onchain:   checker,
		Simulator: worker.NewHTTPSimulator(cfg.WasmServerURL),
		Executor:  worker.NewHTTPExecutor(cfg.IPFSServiceURL),
		Reporter:  reporter,
		FullNode:  cfg.FullNode,
		Operator:  reporter.Address(),
	})

	sched := scheduler.New(scheduler.Config{
		Store:                  adapter,
		Heads:                  monitor,
		NextFire:               cronsched.NextFire,
		Processor:              w,
		Refresher:              reporter,
		MaxWorkers:             cfg.MaxWorkers,
		RunnerNodeSleep:        cfg.RunnerNodeSleep,
		ChainSyncCheckInterval: cfg.ChainSyncCheckInterval,
		TokenRefreshInterval:   cfg.TokenRefreshInterval,
		MaxMissingNextSimLimit: cfg.MaxMissingNextSimLimit,
	})

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		snap := h.snapshot()
		w.Header().Set("Content-Type", "application/json")
		if snap["status"] == "error" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(snap)
	})
	metricsMux.HandleFunc("/health/detailed", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(h.snapshot())
	})
	metricsServer := &http.Server{Addr: ":" + strconv.Itoa(cfg.HTTPPort), Handler: metricsMux}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		log.Printf("metrics listening on %s", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("metrics server: %v", err)
		}
	}()

	go sched.Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down scheduler")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown: %v", err)
	}
}
