// Package sandbox executes untrusted candidate scripts under strict
// isolation. A Runner receives the script bytes, an entrypoint name, and a
// JSON payload, and returns the script's JSON result; all tool access happens
// out-of-band through the mediated proxy using the session token carried in
// the invocation context.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Deterministic error codes for sandbox failures. They land verbatim in the
// unit result's error_code field.
const (
	CodeTimeout         = "timeout"
	CodeEntrypointError = "entrypoint_error"
	CodeOutputLimit     = "output_limit"
	CodeOOM             = "oom"
)

// SandboxError is a typed, deterministic sandbox failure.
type SandboxError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *SandboxError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Invocation carries the per-unit context a script needs to reach the tool
// proxy. The token is the only credential the script ever sees.
type Invocation struct {
	SessionID  uuid.UUID      `json:"session_id"`
	Token      string         `json:"-"`
	UID        int            `json:"uid"`
	ClaimID    string         `json:"claim_id"`
	ToolConfig map[string]any `json:"tool_config,omitempty"`
}

// Runner executes one entrypoint of a candidate script.
type Runner interface {
	Run(ctx context.Context, code []byte, entrypoint string, payload json.RawMessage, inv Invocation) (json.RawMessage, error)
}

// Environment is a scoped sandbox backing resource, such as a container the
// HTTPRunner drives. Start must succeed before Run is called; Stop always
// runs, success or failure.
type Environment interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
