package tools

import (
	"sync"

	"github.com/google/uuid"
)

// resultIndexer hands out monotonically increasing result indexes per
// session, across receipts.
type resultIndexer struct {
	mu  sync.Mutex
	seq map[uuid.UUID]int
}

func newResultIndexer() *resultIndexer {
	return &resultIndexer{seq: make(map[uuid.UUID]int)}
}

func (r *resultIndexer) next(sessionID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.seq[sessionID]
	r.seq[sessionID] = n + 1
	return n
}

func (r *resultIndexer) clear(sessionID uuid.UUID) {
	r.mu.Lock()
	delete(r.seq, sessionID)
	r.mu.Unlock()
}
