package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPRunner drives an external sandbox container that exposes the script's
// entrypoints over HTTP. The container never holds credentials beyond the
// per-unit session token it receives in headers.
type HTTPRunner struct {
	BaseURL string
	Client  *http.Client
	Env     Environment
}

// NewHTTPRunner returns a runner for the container at baseURL. env may be
// nil when the container lifecycle is managed externally.
func NewHTTPRunner(baseURL string, env Environment) *HTTPRunner {
	return &HTTPRunner{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 5 * time.Minute},
		Env:     env,
	}
}

type httpRunRequest struct {
	Payload    json.RawMessage `json:"payload"`
	Context    Invocation      `json:"context"`
	ToolConfig map[string]any  `json:"tool_config,omitempty"`
}

type httpRunResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *SandboxError   `json:"error,omitempty"`
}

// Run posts the payload to the container's entrypoint route. The code bytes
// are ignored here: the container was provisioned with the script at Start.
func (r *HTTPRunner) Run(ctx context.Context, _ []byte, entrypoint string, payload json.RawMessage, inv Invocation) (json.RawMessage, error) {
	if r.Env != nil {
		if err := r.Env.Start(ctx); err != nil {
			return nil, fmt.Errorf("sandbox: start environment: %w", err)
		}
		defer func() { _ = r.Env.Stop(context.Background()) }()
	}

	body, err := json.Marshal(httpRunRequest{
		Payload:    payload,
		Context:    inv,
		ToolConfig: inv.ToolConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("sandbox: encode request: %w", err)
	}

	url := fmt.Sprintf("%s/entry/%s", r.BaseURL, entrypoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-caster-token", inv.Token)
	req.Header.Set("x-caster-session-id", inv.SessionID.String())

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || (ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded)) {
			return nil, &SandboxError{Code: CodeTimeout, Message: "entrypoint call exceeded deadline"}
		}
		return nil, fmt.Errorf("sandbox: call entrypoint: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("sandbox: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &SandboxError{
			Code:    CodeEntrypointError,
			Message: fmt.Sprintf("entrypoint %q returned %d: %s", entrypoint, resp.StatusCode, truncate(string(raw), 512)),
		}
	}

	var decoded httpRunResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &SandboxError{Code: CodeEntrypointError, Message: "container produced non-JSON response"}
	}
	if decoded.Error != nil {
		return nil, decoded.Error
	}
	return decoded.Result, nil
}
