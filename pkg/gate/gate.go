// Package gate guards the weights endpoint: a validator may read weights
// only while it is demonstrably functioning, meaning it has completed an
// evaluation batch within the last 120 hours. Registration alone never opens
// the gate, and re-registration never resets the clock.
package gate

import (
	"context"
	"errors"
	"time"
)

// FunctioningWindow is how recently a validator must have completed a batch.
const FunctioningWindow = 120 * time.Hour

var (
	// ErrUnknownValidator is returned for hotkeys that never registered.
	ErrUnknownValidator = errors.New("gate: unknown validator")
	// ErrNeverFunctioning is returned for validators that registered but
	// never completed a batch.
	ErrNeverFunctioning = errors.New("gate: validator never functioning")
	// ErrStale is returned when the last completion is older than the window.
	ErrStale = errors.New("gate: validator stale")
)

// FunctioningRecord is one validator's lifecycle state.
type FunctioningRecord struct {
	Hotkey           string     `json:"hotkey"`
	BaseURL          string     `json:"base_url"`
	RegisteredAt     time.Time  `json:"registered_at"`
	LastCompletionAt *time.Time `json:"last_completion_at,omitempty"`
}

// RecordStore persists functioning records.
type RecordStore interface {
	Get(ctx context.Context, hotkey string) (FunctioningRecord, error)
	Register(ctx context.Context, hotkey, baseURL string, at time.Time) error
	RecordCompletion(ctx context.Context, hotkey string, at time.Time) error
}

// Gate answers whether a validator may read weights right now.
type Gate struct {
	store RecordStore
	clock func() time.Time
}

// New returns a gate over the given store.
func New(store RecordStore) *Gate {
	return &Gate{store: store, clock: time.Now}
}

// WithClock overrides the clock for tests.
func (g *Gate) WithClock(clock func() time.Time) *Gate {
	g.clock = clock
	return g
}

// Register creates or refreshes a validator's registration. For an existing
// record only base_url and registered_at move; the completion clock is
// untouched, so re-registering cannot fake freshness.
func (g *Gate) Register(ctx context.Context, hotkey, baseURL string) error {
	return g.store.Register(ctx, hotkey, baseURL, g.clock())
}

// RecordCompletion marks a finished batch. This is the only path that opens
// the gate.
func (g *Gate) RecordCompletion(ctx context.Context, hotkey string, at time.Time) error {
	return g.store.RecordCompletion(ctx, hotkey, at)
}

// Check reports whether the validator may read weights at the current time.
func (g *Gate) Check(ctx context.Context, hotkey string) error {
	record, err := g.store.Get(ctx, hotkey)
	if err != nil {
		return err
	}
	if record.LastCompletionAt == nil {
		return ErrNeverFunctioning
	}
	if g.clock().Sub(*record.LastCompletionAt) > FunctioningWindow {
		return ErrStale
	}
	return nil
}
