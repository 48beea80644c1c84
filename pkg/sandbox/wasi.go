package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

// WasiConfig bounds a WASI execution.
type WasiConfig struct {
	MemoryLimitBytes int64
	Timeout          time.Duration
	OutputMaxBytes   int
}

// DefaultWasiConfig is the standard per-unit envelope.
func DefaultWasiConfig() WasiConfig {
	return WasiConfig{
		MemoryLimitBytes: 256 << 20,
		Timeout:          120 * time.Second,
		OutputMaxBytes:   1 << 20,
	}
}

// WasiRunner executes candidate scripts compiled to WASI. Each invocation
// gets a fresh wazero runtime so no state survives between units; WASI is
// deny-by-default, so the script has no filesystem and no network.
type WasiRunner struct {
	config WasiConfig
}

// NewWasiRunner returns a runner with the given limits.
func NewWasiRunner(config WasiConfig) *WasiRunner {
	if config.OutputMaxBytes <= 0 {
		config.OutputMaxBytes = 1 << 20
	}
	return &WasiRunner{config: config}
}

// wasiRequest is the JSON document the script reads from stdin.
type wasiRequest struct {
	Entrypoint string          `json:"entrypoint"`
	Payload    json.RawMessage `json:"payload"`
	Context    Invocation      `json:"context"`
	Token      string          `json:"token"`
}

// Run compiles and executes the script, feeding the request on stdin and
// reading the JSON result from stdout.
func (r *WasiRunner) Run(ctx context.Context, code []byte, entrypoint string, payload json.RawMessage, inv Invocation) (json.RawMessage, error) {
	stdin, err := json.Marshal(wasiRequest{
		Entrypoint: entrypoint,
		Payload:    payload,
		Context:    inv,
		Token:      inv.Token,
	})
	if err != nil {
		return nil, fmt.Errorf("sandbox: encode request: %w", err)
	}

	execCtx := ctx
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if r.config.MemoryLimitBytes > 0 {
		pages := uint32(r.config.MemoryLimitBytes / 65536)
		if pages == 0 {
			pages = 1
		}
		rtConfig = rtConfig.WithMemoryLimitPages(pages)
	}
	runtime := wazero.NewRuntimeWithConfig(execCtx, rtConfig)
	defer func() { _ = runtime.Close(context.Background()) }()

	if _, err := wasi_snapshot_preview1.Instantiate(execCtx, runtime); err != nil {
		return nil, fmt.Errorf("sandbox: instantiate WASI: %w", err)
	}

	compiled, err := runtime.CompileModule(execCtx, code)
	if err != nil {
		return nil, &SandboxError{Code: CodeEntrypointError, Message: fmt.Sprintf("compile: %v", err)}
	}
	defer func() { _ = compiled.Close(context.Background()) }()

	var stdout, stderr bytes.Buffer
	moduleConfig := wazero.NewModuleConfig().
		WithStdin(bytes.NewReader(stdin)).
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithName("candidate")

	mod, err := runtime.InstantiateModule(execCtx, compiled, moduleConfig)
	if err != nil {
		if execCtx.Err() != nil {
			return nil, &SandboxError{
				Code:    CodeTimeout,
				Message: fmt.Sprintf("execution exceeded %s", r.config.Timeout),
			}
		}
		if isMemoryError(err) {
			return nil, &SandboxError{
				Code:    CodeOOM,
				Message: fmt.Sprintf("execution exceeded memory limit (%d bytes)", r.config.MemoryLimitBytes),
			}
		}
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() != 0 {
			return nil, &SandboxError{
				Code:    CodeEntrypointError,
				Message: fmt.Sprintf("exit code %d: %s", exitErr.ExitCode(), truncate(stderr.String(), 512)),
			}
		}
		return nil, &SandboxError{Code: CodeEntrypointError, Message: err.Error()}
	}
	defer func() { _ = mod.Close(context.Background()) }()

	if stdout.Len()+stderr.Len() > r.config.OutputMaxBytes {
		return nil, &SandboxError{
			Code:    CodeOutputLimit,
			Message: fmt.Sprintf("output size %d exceeds limit %d", stdout.Len()+stderr.Len(), r.config.OutputMaxBytes),
		}
	}

	result := bytes.TrimSpace(stdout.Bytes())
	if !json.Valid(result) {
		return nil, &SandboxError{
			Code:    CodeEntrypointError,
			Message: "script produced non-JSON output",
		}
	}
	return json.RawMessage(result), nil
}

func isMemoryError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "memory") &&
		(strings.Contains(msg, "limit") || strings.Contains(msg, "grow") || strings.Contains(msg, "exceeded"))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
