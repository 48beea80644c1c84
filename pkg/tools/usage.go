package tools

import (
	"sync"

	"github.com/google/uuid"

	"github.com/caster-hub/caster/pkg/receipts"
)

// ModelUsage is the per-provider/model slice of a session's token spend.
type ModelUsage struct {
	Provider         string  `json:"provider"`
	Model            string  `json:"model"`
	Calls            int     `json:"calls"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// SessionUsage summarizes all tool spend within one session. It is attached
// to the unit result so the platform can audit per-candidate consumption.
type SessionUsage struct {
	Calls            int          `json:"calls"`
	PromptTokens     int          `json:"prompt_tokens"`
	CompletionTokens int          `json:"completion_tokens"`
	TotalTokens      int          `json:"total_tokens"`
	CostUSD          float64      `json:"cost_usd"`
	ByModel          []ModelUsage `json:"by_model,omitempty"`
}

// UsageTracker accumulates tool usage per session.
type UsageTracker struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*sessionUsage
}

type sessionUsage struct {
	calls            int
	promptTokens     int
	completionTokens int
	totalTokens      int
	costUSD          float64
	byModel          map[string]*ModelUsage
}

// NewUsageTracker returns an empty tracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{sessions: make(map[uuid.UUID]*sessionUsage)}
}

// RecordCall adds one completed tool call to the session's running totals.
// usage may be nil for tools without token accounting.
func (t *UsageTracker) RecordCall(sessionID uuid.UUID, costUSD float64, usage *receipts.Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.sessions[sessionID]
	if s == nil {
		s = &sessionUsage{byModel: make(map[string]*ModelUsage)}
		t.sessions[sessionID] = s
	}
	s.calls++
	s.costUSD += costUSD
	if usage == nil {
		return
	}
	s.promptTokens += usage.PromptTokens
	s.completionTokens += usage.CompletionTokens
	s.totalTokens += usage.TotalTokens

	key := usage.Provider + "/" + usage.Model
	m := s.byModel[key]
	if m == nil {
		m = &ModelUsage{Provider: usage.Provider, Model: usage.Model}
		s.byModel[key] = m
	}
	m.Calls++
	m.PromptTokens += usage.PromptTokens
	m.CompletionTokens += usage.CompletionTokens
	m.TotalTokens += usage.TotalTokens
	m.CostUSD += usage.CostUSD
}

// Summary returns the session's accumulated usage.
func (t *UsageTracker) Summary(sessionID uuid.UUID) SessionUsage {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.sessions[sessionID]
	if s == nil {
		return SessionUsage{}
	}
	out := SessionUsage{
		Calls:            s.calls,
		PromptTokens:     s.promptTokens,
		CompletionTokens: s.completionTokens,
		TotalTokens:      s.totalTokens,
		CostUSD:          s.costUSD,
	}
	for _, m := range s.byModel {
		out.ByModel = append(out.ByModel, *m)
	}
	return out
}

// ClearSession drops the session's totals after its unit completes.
func (t *UsageTracker) ClearSession(sessionID uuid.UUID) {
	t.mu.Lock()
	delete(t.sessions, sessionID)
	t.mu.Unlock()
}
