package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Adapter executes the provider-side half of a tool call. The payload it
// returns is hashed into the receipt verbatim.
type Adapter interface {
	Invoke(ctx context.Context, args map[string]any) (map[string]any, error)
}

// AdapterFunc adapts a function to the Adapter interface.
type AdapterFunc func(ctx context.Context, args map[string]any) (map[string]any, error)

// Invoke calls f.
func (f AdapterFunc) Invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	return f(ctx, args)
}

// TestAdapter echoes its arguments back at zero cost. It exists so candidate
// scripts and integration tests can exercise the full proxy path without
// touching a paid provider.
type TestAdapter struct{}

// Invoke returns the arguments under an "echo" key.
func (TestAdapter) Invoke(_ context.Context, args map[string]any) (map[string]any, error) {
	return map[string]any{"echo": args}, nil
}

// SearchAdapter calls an HTTP search provider. The provider returns
// `{"results": [{"title", "url", "snippet"}, ...]}`.
type SearchAdapter struct {
	BaseURL string
	APIKey  string
	Source  string // provider-side source selector, e.g. "web" or "x"
	Client  *http.Client
}

// Invoke posts the query to the provider and decodes its result list.
func (a *SearchAdapter) Invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	body, err := json.Marshal(map[string]any{
		"query":  args["query"],
		"top_k":  args["top_k"],
		"source": a.Source,
	})
	if err != nil {
		return nil, fmt.Errorf("tools: encode search request: %w", err)
	}
	payload, err := a.post(ctx, a.BaseURL+"/v1/search", body)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (a *SearchAdapter) post(ctx context.Context, url string, body []byte) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.APIKey)
	}
	client := a.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tools: search provider: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("tools: read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tools: search provider returned %d", resp.StatusCode)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("tools: decode search response: %w", err)
	}
	return payload, nil
}

// LLMAdapter calls an OpenAI-compatible chat completions endpoint.
type LLMAdapter struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
	Provider     string
	Client       *http.Client
}

// Invoke forwards the chat request and returns the assistant message plus
// the provider's usage block.
func (a *LLMAdapter) Invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	model := a.DefaultModel
	if m, ok := args["model"].(string); ok && m != "" {
		model = m
	}
	reqBody := map[string]any{
		"model":    model,
		"messages": args["messages"],
	}
	if temp, ok := args["temperature"]; ok {
		reqBody["temperature"] = temp
	}
	if maxTokens, ok := args["max_tokens"]; ok {
		reqBody["max_tokens"] = maxTokens
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("tools: encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.APIKey)
	}
	client := a.Client
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tools: llm provider: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("tools: read llm response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tools: llm provider returned %d", resp.StatusCode)
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("tools: decode llm response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("tools: llm provider returned no choices")
	}

	return map[string]any{
		"content": decoded.Choices[0].Message.Content,
		"model":   model,
		"usage": map[string]any{
			"provider":          a.Provider,
			"model":             model,
			"prompt_tokens":     decoded.Usage.PromptTokens,
			"completion_tokens": decoded.Usage.CompletionTokens,
			"total_tokens":      decoded.Usage.TotalTokens,
		},
	}, nil
}
