package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/caster-hub/caster/pkg/budget"
	"github.com/caster-hub/caster/pkg/claims"
	"github.com/caster-hub/caster/pkg/receipts"
	"github.com/caster-hub/caster/pkg/sandbox"
	"github.com/caster-hub/caster/pkg/scoring"
	"github.com/caster-hub/caster/pkg/session"
	"github.com/caster-hub/caster/pkg/tools"
)

// Execution error codes recorded on failed units.
const (
	errorCodeArtifact  = "artifact_error"
	errorCodeSession   = "session_error"
	errorCodeMalformed = "malformed_output"
	errorCodeInternal  = "internal_error"
)

// CodeResolver serves verified candidate script bytes.
type CodeResolver interface {
	Resolve(ctx context.Context, batchID, artifactID, contentHash string) ([]byte, error)
}

// CompletionSink is notified once per completed batch. The validator's
// functioning record hangs off this signal.
type CompletionSink interface {
	BatchCompleted(ctx context.Context, batchID string, at time.Time)
}

// Acceptance is the synchronous answer to a batch submission. Caller echoes
// the authenticated identity that submitted the batch; the transport layer
// fills it in.
type Acceptance struct {
	BatchID string `json:"batch_id"`
	Status  Status `json:"status"`
	Caller  string `json:"caller,omitempty"`
}

// WorkerStatus is the coordinator's self-report for the status endpoint.
type WorkerStatus struct {
	Queued           int        `json:"queued"`
	Running          bool       `json:"running"`
	LastError        string     `json:"last_error,omitempty"`
	LastCompletionAt *time.Time `json:"last_completion_at,omitempty"`
}

// Options tune batch execution.
type Options struct {
	MaxWorkers  int
	UnitTimeout time.Duration
	SessionTTL  time.Duration
	InboxSize   int
	ToolConfig  map[string]any
}

func (o *Options) applyDefaults() {
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = 4
	}
	if o.UnitTimeout <= 0 {
		o.UnitTimeout = 2 * time.Minute
	}
	if o.SessionTTL <= 0 {
		o.SessionTTL = 10 * time.Minute
	}
	if o.InboxSize <= 0 {
		o.InboxSize = 16
	}
}

// Coordinator accepts batches, queues them, and runs them one at a time on a
// background worker. Units within a batch fan out over a bounded pool.
type Coordinator struct {
	resolver  CodeResolver
	sessions  *session.Manager
	ledger    *budget.Ledger
	runner    sandbox.Runner
	scorer    *scoring.Scorer
	toolExec  *tools.Executor
	usage     *tools.UsageTracker
	receipts  *receipts.Log
	sink      CompletionSink
	logger    *slog.Logger
	opts      Options
	clock     func() time.Time

	mu       sync.Mutex
	batches  map[string]*tracker
	queued   int
	running  bool
	lastErr  string
	lastDone *time.Time

	inbox chan Batch
	wg    sync.WaitGroup
}

// NewCoordinator wires the evaluation pipeline.
func NewCoordinator(
	resolver CodeResolver,
	sessions *session.Manager,
	ledger *budget.Ledger,
	runner sandbox.Runner,
	scorer *scoring.Scorer,
	toolExec *tools.Executor,
	usage *tools.UsageTracker,
	log *receipts.Log,
	sink CompletionSink,
	logger *slog.Logger,
	opts Options,
) *Coordinator {
	opts.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		resolver: resolver,
		sessions: sessions,
		ledger:   ledger,
		runner:   runner,
		scorer:   scorer,
		toolExec: toolExec,
		usage:    usage,
		receipts: log,
		sink:     sink,
		logger:   logger,
		opts:     opts,
		clock:    time.Now,
		batches:  make(map[string]*tracker),
		inbox:    make(chan Batch, opts.InboxSize),
	}
}

// WithClock overrides the clock for tests.
func (c *Coordinator) WithClock(clock func() time.Time) *Coordinator {
	c.clock = clock
	return c
}

// Start launches the background evaluation worker. It drains the inbox until
// ctx is cancelled.
func (c *Coordinator) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case b := <-c.inbox:
				c.mu.Lock()
				c.queued--
				c.running = true
				c.mu.Unlock()

				c.runBatch(ctx, b)

				now := c.clock()
				c.mu.Lock()
				c.running = false
				c.lastDone = &now
				c.mu.Unlock()
			}
		}
	}()
}

// Wait blocks until the worker has exited after Start's context ends.
func (c *Coordinator) Wait() { c.wg.Wait() }

// Accept validates and enqueues a batch. Accepting a known batch_id again is
// a no-op that reports the batch's current status.
func (c *Coordinator) Accept(batch Batch) (Acceptance, error) {
	if err := batch.Validate(); err != nil {
		return Acceptance{}, err
	}

	c.mu.Lock()
	if existing, ok := c.batches[batch.BatchID]; ok {
		snap := existing.snapshot()
		c.mu.Unlock()
		return Acceptance{BatchID: batch.BatchID, Status: snap.Status}, nil
	}
	t := newTracker(batch.BatchID, len(batch.Claims)*len(batch.Candidates))
	c.batches[batch.BatchID] = t
	c.queued++
	c.mu.Unlock()

	select {
	case c.inbox <- batch:
		return Acceptance{BatchID: batch.BatchID, Status: StatusAccepted}, nil
	default:
		c.mu.Lock()
		delete(c.batches, batch.BatchID)
		c.queued--
		c.mu.Unlock()
		return Acceptance{}, errors.New("batch: inbox full")
	}
}

// Progress returns the batch's current progress view.
func (c *Coordinator) Progress(batchID string) (Progress, error) {
	c.mu.Lock()
	t, ok := c.batches[batchID]
	c.mu.Unlock()
	if !ok {
		return Progress{}, fmt.Errorf("%w: %s", ErrUnknownBatch, batchID)
	}
	return t.snapshot(), nil
}

// Status reports the worker's own state.
func (c *Coordinator) Status() WorkerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return WorkerStatus{
		Queued:           c.queued,
		Running:          c.running,
		LastError:        c.lastErr,
		LastCompletionAt: c.lastDone,
	}
}

func (c *Coordinator) runBatch(ctx context.Context, b Batch) {
	c.mu.Lock()
	t := c.batches[b.BatchID]
	c.mu.Unlock()
	t.setStatus(StatusRunning)
	c.logger.InfoContext(ctx, "batch running",
		"batch_id", b.BatchID, "claims", len(b.Claims), "candidates", len(b.Candidates))

	// Resolve each candidate's code once. A candidate whose artifact cannot
	// be resolved fails all its units; if no candidate resolves, the batch
	// itself fails.
	code := make(map[int][]byte, len(b.Candidates))
	resolveErr := make(map[int]error, len(b.Candidates))
	for _, cand := range b.Candidates {
		data, err := c.resolver.Resolve(ctx, b.BatchID, cand.ArtifactID, cand.ContentHash)
		if err != nil {
			c.logger.WarnContext(ctx, "artifact resolution failed",
				"batch_id", b.BatchID, "uid", cand.UID, "error", err)
			resolveErr[cand.UID] = err
			continue
		}
		code[cand.UID] = data
	}
	if len(code) == 0 {
		t.setStatus(StatusFailed)
		c.setLastError(fmt.Sprintf("batch %s: artifact resolution failed for every candidate", b.BatchID))
		return
	}

	type unit struct {
		candidate Candidate
		claim     claims.Claim
	}
	units := make(chan unit)
	var workers sync.WaitGroup
	for i := 0; i < c.opts.MaxWorkers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for u := range units {
				if err := resolveErr[u.candidate.UID]; err != nil {
					t.record(c.failedResult(b, u.candidate, u.claim, errorCodeArtifact, err.Error()))
					continue
				}
				t.record(c.runUnit(ctx, b, u.candidate, u.claim, code[u.candidate.UID]))
			}
		}()
	}
	for _, cand := range b.Candidates {
		for _, claim := range b.Claims {
			units <- unit{candidate: cand, claim: claim}
		}
	}
	close(units)
	workers.Wait()

	t.setStatus(StatusCompleted)
	done := c.clock()
	c.logger.InfoContext(ctx, "batch completed", "batch_id", b.BatchID, "units", t.snapshot().Total)
	if c.sink != nil {
		c.sink.BatchCompleted(ctx, b.BatchID, done)
	}
}

// runUnit executes one (candidate, claim) pair end to end. Every failure
// mode yields a recorded result; nothing here aborts the batch.
func (c *Coordinator) runUnit(ctx context.Context, b Batch, cand Candidate, claim claims.Claim, code []byte) MinerTaskResult {
	issued, err := c.sessions.Issue(cand.UID, claim.ClaimID, claim.BudgetUSD, c.opts.SessionTTL)
	if err != nil {
		return c.failedResult(b, cand, claim, errorCodeSession, err.Error())
	}
	sessionID := issued.Session.SessionID
	defer func() {
		c.sessions.Revoke(sessionID)
		c.ledger.Close(sessionID)
		c.receipts.ClearSession(sessionID)
		c.usage.ClearSession(sessionID)
		if c.toolExec != nil {
			c.toolExec.CloseSession(sessionID)
		}
	}()
	if err := c.ledger.Open(sessionID, claim.BudgetUSD); err != nil {
		return c.failedResult(b, cand, claim, errorCodeSession, err.Error())
	}

	payload, err := json.Marshal(map[string]any{
		"claim_text":         claim.Text,
		"rubric_title":       claim.Rubric.Title,
		"rubric_description": claim.Rubric.Description,
		"verdict_options":    claim.Rubric.VerdictOptions,
		"context":            claim.Context,
	})
	if err != nil {
		return c.failedResult(b, cand, claim, errorCodeInternal, err.Error())
	}

	unitCtx, cancel := context.WithTimeout(ctx, c.opts.UnitTimeout)
	defer cancel()

	raw, err := c.runner.Run(unitCtx, code, b.Entrypoint, payload, sandbox.Invocation{
		SessionID:  sessionID,
		Token:      issued.Token,
		UID:        cand.UID,
		ClaimID:    claim.ClaimID,
		ToolConfig: c.opts.ToolConfig,
	})
	if err != nil {
		var serr *sandbox.SandboxError
		if errors.As(err, &serr) {
			status := session.StatusError
			if serr.Code == sandbox.CodeTimeout {
				status = session.StatusTimedOut
			}
			_, _ = c.sessions.MarkStatus(sessionID, status)
			return c.resultWithScore(b, cand, claim, sessionID, CriterionEvaluation{},
				scoring.ZeroScore(serr.Code, serr.Message))
		}
		_, _ = c.sessions.MarkStatus(sessionID, session.StatusError)
		return c.resultWithScore(b, cand, claim, sessionID, CriterionEvaluation{},
			scoring.ZeroScore(errorCodeInternal, err.Error()))
	}

	var answer scoring.CandidateAnswer
	if err := json.Unmarshal(raw, &answer); err != nil {
		_, _ = c.sessions.MarkStatus(sessionID, session.StatusError)
		return c.resultWithScore(b, cand, claim, sessionID, CriterionEvaluation{},
			scoring.ZeroScore(errorCodeMalformed, "entrypoint did not return a JSON object"))
	}

	score := c.scorer.Score(ctx, claim, answer, sessionID)
	_, _ = c.sessions.MarkStatus(sessionID, session.StatusCompleted)
	return c.resultWithScore(b, cand, claim, sessionID, CriterionEvaluation{
		Verdict:       answer.Verdict,
		Justification: answer.Justification,
		Citations:     answer.Citations,
	}, score)
}

func (c *Coordinator) resultWithScore(b Batch, cand Candidate, claim claims.Claim, sessionID uuid.UUID, eval CriterionEvaluation, score scoring.Score) MinerTaskResult {
	return MinerTaskResult{
		BatchID:             b.BatchID,
		UID:                 cand.UID,
		ClaimID:             claim.ClaimID,
		CriterionEvaluation: eval,
		Score:               score,
		Usage:               c.usage.Summary(sessionID),
		SessionID:           sessionID,
	}
}

func (c *Coordinator) failedResult(b Batch, cand Candidate, claim claims.Claim, code, message string) MinerTaskResult {
	return MinerTaskResult{
		BatchID: b.BatchID,
		UID:     cand.UID,
		ClaimID: claim.ClaimID,
		Score:   scoring.ZeroScore(code, message),
	}
}

func (c *Coordinator) setLastError(msg string) {
	c.mu.Lock()
	c.lastErr = msg
	c.mu.Unlock()
}
