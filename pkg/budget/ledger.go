// Package budget implements fail-closed, per-session spend accounting for
// tool execution. Each session carries a hard USD cap; every charge is a
// single atomic check-and-decrement so concurrent tool calls can never
// jointly overspend the cap.
package budget

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrBudgetExceeded is returned when a charge would push the session past
	// its cap. The charge is not applied.
	ErrBudgetExceeded = errors.New("budget: session budget exceeded")
	// ErrUnknownSession is returned for charges against sessions the ledger
	// has never opened.
	ErrUnknownSession = errors.New("budget: unknown session")
)

// Snapshot is the budget state reported back with every tool receipt.
type Snapshot struct {
	SessionBudgetUSD          float64 `json:"session_budget_usd"`
	SessionUsedBudgetUSD      float64 `json:"session_used_budget_usd"`
	SessionRemainingBudgetUSD float64 `json:"session_remaining_budget_usd"`
}

type account struct {
	limitUSD float64
	usedUSD  float64
}

// Ledger tracks per-session spend against hard caps.
type Ledger struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*account
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[uuid.UUID]*account)}
}

// Open registers a session with its spending cap. Reopening an existing
// session is an error; budgets are immutable once set.
func (l *Ledger) Open(sessionID uuid.UUID, limitUSD float64) error {
	if limitUSD < 0 {
		return fmt.Errorf("budget: limit must be non-negative, got %f", limitUSD)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.accounts[sessionID]; ok {
		return fmt.Errorf("budget: session %s already open", sessionID)
	}
	l.accounts[sessionID] = &account{limitUSD: limitUSD}
	return nil
}

// Charge atomically applies costUSD to the session. The check and the
// decrement happen under one lock: if the projected total exceeds the cap the
// call fails with ErrBudgetExceeded and nothing is billed.
func (l *Ledger) Charge(sessionID uuid.UUID, costUSD float64) (Snapshot, error) {
	if costUSD < 0 {
		return Snapshot{}, fmt.Errorf("budget: cost must be non-negative, got %f", costUSD)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[sessionID]
	if !ok {
		return Snapshot{}, ErrUnknownSession
	}
	projected := acct.usedUSD + costUSD
	if projected > acct.limitUSD {
		return snapshotOf(acct), ErrBudgetExceeded
	}
	acct.usedUSD = projected
	return snapshotOf(acct), nil
}

// Peek returns the current budget state without charging.
func (l *Ledger) Peek(sessionID uuid.UUID) (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[sessionID]
	if !ok {
		return Snapshot{}, ErrUnknownSession
	}
	return snapshotOf(acct), nil
}

// Close drops the session's account once its unit has finished.
func (l *Ledger) Close(sessionID uuid.UUID) {
	l.mu.Lock()
	delete(l.accounts, sessionID)
	l.mu.Unlock()
}

func snapshotOf(acct *account) Snapshot {
	return Snapshot{
		SessionBudgetUSD:          acct.limitUSD,
		SessionUsedBudgetUSD:      acct.usedUSD,
		SessionRemainingBudgetUSD: acct.limitUSD - acct.usedUSD,
	}
}
