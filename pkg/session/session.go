// Package session manages the budget-scoped execution contexts minted for
// each (candidate, claim) evaluation unit. A session lives exactly as long as
// one sandbox invocation; the tool proxy resolves budget and token questions
// against it.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusExhausted Status = "exhausted"
	StatusError     Status = "error"
	StatusTimedOut  Status = "timed_out"
)

// Session is one budget-scoped execution context.
type Session struct {
	SessionID uuid.UUID `json:"session_id"`
	UID       int       `json:"uid"`
	ClaimID   string    `json:"claim_id"`
	Status    Status    `json:"status"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	BudgetUSD float64   `json:"budget_usd"`
}

// Expired reports whether the session has passed its expiry at the given time.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
