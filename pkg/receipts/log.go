package receipts

import (
	"sync"

	"github.com/google/uuid"
)

// Log stores receipts in memory for the lifetime of their sessions, indexed
// by session for citation validation and cleanup.
type Log struct {
	mu           sync.Mutex
	byReceiptID  map[string]Receipt
	bySession    map[uuid.UUID][]string
	resultOwners map[uuid.UUID]map[string]bool
}

// NewLog returns an empty receipt log.
func NewLog() *Log {
	return &Log{
		byReceiptID:  make(map[string]Receipt),
		bySession:    make(map[uuid.UUID][]string),
		resultOwners: make(map[uuid.UUID]map[string]bool),
	}
}

// Record stores a receipt. Receipts are immutable; recording the same
// receipt_id twice is a programming error and the second write is ignored.
func (l *Log) Record(r Receipt) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.byReceiptID[r.ReceiptID]; exists {
		return
	}
	l.byReceiptID[r.ReceiptID] = r
	l.bySession[r.SessionID] = append(l.bySession[r.SessionID], r.ReceiptID)

	if r.Policy == PolicyReferenceable {
		owners := l.resultOwners[r.SessionID]
		if owners == nil {
			owners = make(map[string]bool)
			l.resultOwners[r.SessionID] = owners
		}
		for _, result := range r.Results {
			owners[result.ResultID] = true
		}
	}
}

// Lookup returns the receipt with the given id.
func (l *Log) Lookup(receiptID string) (Receipt, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.byReceiptID[receiptID]
	return r, ok
}

// ForSession returns all receipts issued for the session, in issue order.
func (l *Log) ForSession(sessionID uuid.UUID) []Receipt {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := l.bySession[sessionID]
	out := make([]Receipt, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.byReceiptID[id])
	}
	return out
}

// HasResult reports whether a referenceable result with result_id was issued
// for the session. Log-only results never validate.
func (l *Log) HasResult(sessionID uuid.UUID, resultID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resultOwners[sessionID][resultID]
}

// ClearSession drops all receipts belonging to the session.
func (l *Log) ClearSession(sessionID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range l.bySession[sessionID] {
		delete(l.byReceiptID, id)
	}
	delete(l.bySession, sessionID)
	delete(l.resultOwners, sessionID)
}
