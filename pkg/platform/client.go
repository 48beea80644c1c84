// Package platform holds both halves of the validator↔platform protocol:
// the signed HTTP client validators use to pull batches, artifacts, and
// weights, and the platform-side handlers for script submission, validator
// registration, result ingestion, and the gated weights endpoint.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ChainSafe/go-schnorrkel"

	"github.com/caster-hub/caster/pkg/api"
	"github.com/caster-hub/caster/pkg/auth"
	"github.com/caster-hub/caster/pkg/batch"
	"github.com/caster-hub/caster/pkg/gate"
)

// Client is the validator's signed HTTP client. Every request carries a
// detached sr25519 signature over the canonical request string.
type Client struct {
	baseURL string
	hotkey  string
	secret  *schnorrkel.SecretKey
	http    *http.Client
}

// NewClient builds a client signing as the given hotkey.
func NewClient(baseURL, hotkey string, secret *schnorrkel.SecretKey) *Client {
	return &Client{
		baseURL: baseURL,
		hotkey:  hotkey,
		secret:  secret,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// Hotkey returns the ss58 identity the client signs as.
func (c *Client) Hotkey() string { return c.hotkey }

// WeightsResponse is the gated weights document. FinalTop carries the three
// roster slots in order; empty slots are null.
type WeightsResponse struct {
	Weights  map[string]float64 `json:"weights"`
	FinalTop []*string          `json:"final_top"`
}

// GetBatch fetches an assigned batch.
func (c *Client) GetBatch(ctx context.Context, batchID string) (batch.Batch, error) {
	var out batch.Batch
	if err := c.doJSON(ctx, http.MethodGet, "/v1/batches/"+batchID, nil, &out); err != nil {
		return batch.Batch{}, err
	}
	return out, nil
}

// FetchArtifact downloads a candidate script blob. Satisfies the artifact
// resolver's fetcher contract.
func (c *Client) FetchArtifact(ctx context.Context, batchID, artifactID string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/batches/%s/artifacts/%s", batchID, artifactID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeProblem(resp)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 64<<20))
}

// GetWeights fetches the current weights. Gate denials come back as
// gate.ErrNeverFunctioning or gate.ErrStale so callers can tell a brand-new
// validator from a lapsed one.
func (c *Client) GetWeights(ctx context.Context) (WeightsResponse, error) {
	var out WeightsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/weights", nil, &out); err != nil {
		return WeightsResponse{}, err
	}
	return out, nil
}

// Register announces the validator's callback URL to the platform.
func (c *Client) Register(ctx context.Context, callbackURL string) error {
	body := map[string]string{"base_url": callbackURL}
	return c.doJSON(ctx, http.MethodPost, "/v1/validators/register", body, nil)
}

// SubmitResults uploads a completed batch's result set.
func (c *Client) SubmitResults(ctx context.Context, batchID string, results []batch.MinerTaskResult) error {
	body := map[string]any{"miner_task_results": results}
	return c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/v1/batches/%s/results", batchID), body, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("platform: encode request: %w", err)
		}
	}
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeProblem(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("platform: decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	header, err := auth.SignRequest(c.secret, c.hotkey, method, path, body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", header)
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("platform: %s %s: %w", method, path, err)
	}
	return resp, nil
}

// decodeProblem turns an RFC 7807 response into a typed error where the code
// is part of the protocol contract.
func decodeProblem(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var problem api.ProblemDetail
	if err := json.Unmarshal(raw, &problem); err == nil && problem.Status != 0 {
		switch problem.Code {
		case api.CodeNeverFunctioning:
			return fmt.Errorf("%w: %s", gate.ErrNeverFunctioning, problem.Detail)
		case api.CodeStaleValidator:
			return fmt.Errorf("%w: %s", gate.ErrStale, problem.Detail)
		}
		return &problem
	}
	return errors.New("platform: request failed with status " + resp.Status)
}
