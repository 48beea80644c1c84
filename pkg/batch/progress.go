package batch

import "sync"

// Progress is a point-in-time view of a running batch. The invariant
// completed + remaining == total holds in every snapshot, and completed only
// moves forward.
type Progress struct {
	BatchID   string            `json:"batch_id"`
	Status    Status            `json:"status"`
	Total     int               `json:"total"`
	Completed int               `json:"completed"`
	Remaining int               `json:"remaining"`
	Results   []MinerTaskResult `json:"miner_task_results"`
}

// tracker accumulates unit results for one batch.
type tracker struct {
	mu        sync.Mutex
	batchID   string
	status    Status
	total     int
	completed int
	results   []MinerTaskResult
}

func newTracker(batchID string, total int) *tracker {
	return &tracker{batchID: batchID, status: StatusAccepted, total: total}
}

func (t *tracker) setStatus(s Status) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

// record appends one terminal unit outcome.
func (t *tracker) record(result MinerTaskResult) {
	t.mu.Lock()
	t.results = append(t.results, result)
	t.completed++
	t.mu.Unlock()
}

// snapshot is non-blocking with respect to unit workers: it copies under the
// lock and releases immediately.
func (t *tracker) snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	results := make([]MinerTaskResult, len(t.results))
	copy(results, t.results)
	return Progress{
		BatchID:   t.batchID,
		Status:    t.status,
		Total:     t.total,
		Completed: t.completed,
		Remaining: t.total - t.completed,
		Results:   results,
	}
}
