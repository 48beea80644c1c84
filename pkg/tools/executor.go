package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/caster-hub/caster/pkg/budget"
	"github.com/caster-hub/caster/pkg/receipts"
	"github.com/caster-hub/caster/pkg/session"
)

var (
	// ErrUnknownSession is returned when the session does not exist.
	ErrUnknownSession = errors.New("tools: unknown session")
	// ErrSessionInactive is returned for sessions that have left the active
	// state or expired.
	ErrSessionInactive = errors.New("tools: session not active")
	// ErrInvalidToken is returned when the presented token does not match.
	ErrInvalidToken = errors.New("tools: invalid session token")
	// ErrRateLimited is returned when the session exceeds its call rate.
	ErrRateLimited = errors.New("tools: rate limited")
)

// ExecuteRequest is one tool call from a sandboxed script. Positional args
// bind to the tool's parameters in declaration order; kwargs bind by name.
type ExecuteRequest struct {
	SessionID uuid.UUID      `json:"session_id"`
	Token     string         `json:"-"`
	Tool      string         `json:"tool"`
	Args      []any          `json:"args"`
	Kwargs    map[string]any `json:"kwargs"`
}

// ExecuteResult is the proxy's answer to the sandbox. A budget-exceeded call
// is not an error from the script's perspective: it gets zero results, the
// flag, and the budget snapshot, and may continue with what it already has.
type ExecuteResult struct {
	ReceiptID      string            `json:"receipt_id,omitempty"`
	Results        []receipts.Result `json:"results"`
	Payload        map[string]any    `json:"payload,omitempty"`
	CostUSD        float64           `json:"cost_usd"`
	Budget         budget.Snapshot   `json:"budget"`
	BudgetExceeded bool              `json:"budget_exceeded,omitempty"`
}

// ExecutorOptions tune per-session throttling.
type ExecutorOptions struct {
	CallsPerSecond float64
	Burst          int
}

// Executor is the mediated tool proxy: every sandbox tool call flows through
// Execute and nothing else.
type Executor struct {
	catalog  *Catalog
	adapters map[string]Adapter
	sessions *session.Manager
	ledger   *budget.Ledger
	log      *receipts.Log
	usage    *UsageTracker
	pricing  Pricing
	limiter  *sessionLimiter
	logger   *slog.Logger
	clock    func() time.Time

	indexes *resultIndexer
}

// NewExecutor wires the proxy. Adapters must cover every allow-listed tool
// the deployment intends to serve; calls to tools without an adapter fail.
func NewExecutor(
	catalog *Catalog,
	adapters map[string]Adapter,
	sessions *session.Manager,
	ledger *budget.Ledger,
	log *receipts.Log,
	usage *UsageTracker,
	pricing Pricing,
	opts ExecutorOptions,
	logger *slog.Logger,
) *Executor {
	if opts.CallsPerSecond <= 0 {
		opts.CallsPerSecond = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		catalog:  catalog,
		adapters: adapters,
		sessions: sessions,
		ledger:   ledger,
		log:      log,
		usage:    usage,
		pricing:  pricing,
		limiter:  newSessionLimiter(opts.CallsPerSecond, opts.Burst),
		logger:   logger,
		clock:    time.Now,
		indexes:  newResultIndexer(),
	}
}

// WithClock overrides the clock for tests.
func (e *Executor) WithClock(clock func() time.Time) *Executor {
	e.clock = clock
	return e
}

// Execute runs one mediated tool call end to end.
func (e *Executor) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	sess, ok := e.sessions.Get(req.SessionID)
	if !ok {
		return ExecuteResult{}, ErrUnknownSession
	}
	now := e.clock()
	if sess.Status != session.StatusActive || sess.Expired(now) {
		return ExecuteResult{}, ErrSessionInactive
	}
	if !e.sessions.VerifyToken(req.SessionID, req.Token) {
		return ExecuteResult{}, ErrInvalidToken
	}
	if !e.limiter.allow(req.SessionID) {
		return ExecuteResult{}, ErrRateLimited
	}

	spec, bound, err := e.catalog.Validate(req.Tool, req.Args, req.Kwargs)
	if err != nil {
		return ExecuteResult{}, err
	}
	adapter, ok := e.adapters[req.Tool]
	if !ok {
		return ExecuteResult{}, fmt.Errorf("%w: no adapter for %q", ErrUnknownTool, req.Tool)
	}

	// An exhausted session never reaches a paid provider. Flat-priced tools
	// are pre-checked against their exact cost; token-priced tools only
	// against a zero remainder, with the real charge applied after dispatch.
	snap, err := e.ledger.Peek(req.SessionID)
	if err != nil {
		return ExecuteResult{}, err
	}
	if snap.SessionRemainingBudgetUSD <= 0 || e.pricing.FlatCost(req.Tool) > snap.SessionRemainingBudgetUSD {
		e.logger.WarnContext(ctx, "budget exceeded before dispatch",
			"session_id", req.SessionID, "tool", req.Tool)
		return ExecuteResult{
			Results:        []receipts.Result{},
			Budget:         snap,
			BudgetExceeded: true,
		}, nil
	}

	e.logger.InfoContext(ctx, "tool call",
		"session_id", req.SessionID,
		"uid", sess.UID,
		"tool", req.Tool,
		"args", RedactArgs(bound),
	)

	payload, err := adapter.Invoke(ctx, bound)
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("tools: %s: %w", req.Tool, err)
	}

	costUSD, tokenUsage := e.pricing.Price(req.Tool, payload)
	snap, chargeErr := e.ledger.Charge(req.SessionID, costUSD)
	if chargeErr != nil {
		if errors.Is(chargeErr, budget.ErrBudgetExceeded) {
			// Rejected charges are not billed and the script keeps running.
			e.logger.WarnContext(ctx, "budget exceeded",
				"session_id", req.SessionID, "tool", req.Tool, "cost_usd", costUSD)
			return ExecuteResult{
				Results:        []receipts.Result{},
				Budget:         snap,
				BudgetExceeded: true,
			}, nil
		}
		return ExecuteResult{}, chargeErr
	}

	results := e.buildResults(req.SessionID, spec, payload)

	requestHash, err := receipts.HashPayload(map[string]any{
		"tool":   req.Tool,
		"args":   req.Args,
		"kwargs": req.Kwargs,
	})
	if err != nil {
		return ExecuteResult{}, err
	}
	responseHash, err := receipts.HashPayload(payload)
	if err != nil {
		return ExecuteResult{}, err
	}

	receipt := receipts.Receipt{
		ReceiptID:    uuid.NewString(),
		SessionID:    req.SessionID,
		UID:          sess.UID,
		Tool:         req.Tool,
		IssuedAt:     now.UTC(),
		Results:      results,
		Policy:       spec.Policy,
		CostUSD:      costUSD,
		Usage:        tokenUsage,
		RequestHash:  requestHash,
		ResponseHash: responseHash,
	}
	e.log.Record(receipt)
	e.usage.RecordCall(req.SessionID, costUSD, tokenUsage)

	return ExecuteResult{
		ReceiptID: receipt.ReceiptID,
		Results:   results,
		Payload:   payload,
		CostUSD:   costUSD,
		Budget:    snap,
	}, nil
}

// CloseSession drops per-session throttling state once a unit finishes.
func (e *Executor) CloseSession(sessionID uuid.UUID) {
	e.limiter.clear(sessionID)
	e.indexes.clear(sessionID)
}

// buildResults assigns fresh result ids and session-monotonic indexes to
// referenceable payload entries. Log-only tools get no result list.
func (e *Executor) buildResults(sessionID uuid.UUID, spec *Spec, payload map[string]any) []receipts.Result {
	if spec.Policy != receipts.PolicyReferenceable {
		return []receipts.Result{}
	}
	rawResults, _ := payload["results"].([]any)
	out := make([]receipts.Result, 0, len(rawResults))
	for _, raw := range rawResults {
		entry, _ := raw.(map[string]any)
		r := receipts.Result{
			ResultID: uuid.NewString(),
			Index:    e.indexes.next(sessionID),
			Raw:      entry,
		}
		if entry != nil {
			if s, ok := entry["title"].(string); ok {
				r.Title = s
			}
			if s, ok := entry["url"].(string); ok {
				r.URL = s
			}
			if s, ok := entry["snippet"].(string); ok {
				r.Note = s
			}
		}
		out = append(out, r)
	}
	return out
}
