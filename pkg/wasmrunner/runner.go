// Copyright 2025 Ditto Network

package wasmrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/dittonetwork/workflow-engine/pkg/wasmbridge"
)

const (
	defaultTimeoutMS = 2000
	maxTimeoutMS     = 2000
	stdoutCap        = 256 * 1024
	stderrCap        = 64 * 1024
	pollInterval     = 50 * time.Millisecond
)

// Request describes one guest WASM invocation.
type Request struct {
	ExpectedHash string
	Module       []byte
	Input        []byte
	TimeoutMS    int
	ChainID      string
	ProxyURL     string
}

// Result is the outcome of a guest WASM invocation.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	// Parsed is the first line of Stdout decoded as JSON, when the guest
	// followed the convention of emitting its structured result there.
	Parsed json.RawMessage
}

// Runner executes guest WASM modules under wazero, bridging their
// file-channel RPC requests to a Dispatcher while they run.
type Runner struct {
	cache      *Cache
	dispatcher wasmbridge.Dispatcher
	workRoot   string
}

// New builds a Runner backed by cache and rooted at workRoot for ephemeral
// per-invocation work directories. dispatcher is wired to the host bridge
// unless the request carries its own ProxyURL.
func New(cache *Cache, dispatcher wasmbridge.Dispatcher, workRoot string) *Runner {
	return &Runner{cache: cache, dispatcher: dispatcher, workRoot: workRoot}
}

// Run verifies req's module against its expected hash (fetching it into
// the cache if not already present), allocates an ephemeral work
// directory, and executes the module's exported "run" function under a
// timeout, bridging any guest RPC calls concurrently. A module without a
// "run" export runs its WASI "_start" function instead.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	hash := req.ExpectedHash
	if _, ok := r.cache.Get(hash); !ok {
		if len(req.Module) == 0 {
			return Result{}, fmt.Errorf("wasmrunner: module %s not cached and no bytes supplied", hash)
		}
		if err := r.cache.Put(hash, req.Module); err != nil {
			return Result{}, err
		}
	}
	module, ok := r.cache.Get(hash)
	if !ok {
		return Result{}, fmt.Errorf("wasmrunner: cache miss for %s after store", hash)
	}

	timeoutMS := req.TimeoutMS
	if timeoutMS <= 0 {
		timeoutMS = defaultTimeoutMS
	}
	if timeoutMS > maxTimeoutMS {
		timeoutMS = maxTimeoutMS
	}

	workDir := filepath.Join(r.workRoot, uuid.NewString())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("wasmrunner: allocate work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMS)*time.Millisecond)
	defer cancel()

	bridge := wasmbridge.New(r.dispatcher, req.ProxyURL, req.ChainID)
	pollerDone := make(chan struct{})
	go r.pollBridge(runCtx, bridge, workDir, pollerDone)

	result, err := r.invoke(runCtx, module, workDir, req.Input)
	<-pollerDone

	if err != nil {
		if runCtx.Err() != nil {
			return result, ErrTimeout
		}
		return result, err
	}
	return result, nil
}

func (r *Runner) pollBridge(ctx context.Context, bridge *wasmbridge.Bridge, workDir string, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := bridge.Process(ctx, workDir); err != nil && err != wasmbridge.ErrNothingToDo {
				continue
			}
		}
	}
}

func (r *Runner) invoke(ctx context.Context, module []byte, workDir string, input []byte) (Result, error) {
	runtime := wazero.NewRuntime(ctx)
	defer runtime.Close(ctx)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		return Result{}, fmt.Errorf("wasmrunner: instantiate WASI: %w", err)
	}

	compiled, err := runtime.CompileModule(ctx, module)
	if err != nil {
		return Result{}, fmt.Errorf("wasmrunner: compile module: %w", err)
	}

	exports := compiled.ExportedFunctions()
	if _, hasRun := exports["run"]; !hasRun {
		if _, hasStart := exports["_start"]; !hasStart {
			return Result{}, ErrNoRunExport
		}
	}

	stdout := newCapWriter(stdoutCap)
	stderr := newCapWriter(stderrCap)

	config := wazero.NewModuleConfig().
		WithStdin(bytes.NewReader(input)).
		WithStdout(stdout).
		WithStderr(stderr).
		WithFSConfig(wazero.NewFSConfig().WithDirMount(workDir, "/work")).
		WithName("guest")
	if _, hasRun := exports["run"]; hasRun {
		config = config.WithStartFunctions("_initialize")
	}

	exitCode := 0
	instance, runErr := runtime.InstantiateModule(ctx, compiled, config)
	if runErr == nil {
		if fn := instance.ExportedFunction("run"); fn != nil {
			if _, callErr := fn.Call(ctx); callErr != nil && exitCodeFromError(callErr) != 0 {
				runErr = callErr
			}
		}
	}
	if runErr != nil {
		exitCode = exitCodeFromError(runErr)
	} else {
		instance.Close(ctx)
	}

	if stdout.overflow {
		return Result{ExitCode: exitCode, Stdout: stdout.buf.Bytes(), Stderr: stderr.buf.Bytes()}, ErrOutputTooLarge
	}

	res := Result{
		ExitCode: exitCode,
		Stdout:   stdout.buf.Bytes(),
		Stderr:   stderr.buf.Bytes(),
	}
	res.Parsed = parseFirstLine(res.Stdout)

	if runErr != nil && exitCode == 0 {
		return res, runErr
	}
	return res, nil
}

// parseFirstLine extracts the first non-empty line of stdout and attempts
// to decode it as JSON, the convention guest steps use to return
// structured results alongside free-form log output.
func parseFirstLine(stdout []byte) json.RawMessage {
	for _, line := range strings.Split(string(stdout), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if json.Valid([]byte(trimmed)) {
			return json.RawMessage(trimmed)
		}
		return nil
	}
	return nil
}

func exitCodeFromError(err error) int {
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		return int(exitErr.ExitCode())
	}
	return 1
}
