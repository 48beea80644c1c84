// Package roster maintains the sticky top-3 leaderboard of candidate
// identities. Only a new batch winner can change the roster: it pushes the
// incumbents down one slot each, and positions two and three are never
// entered directly.
package roster

import (
	"errors"
	"sync"
)

// State is the roster triple. Slots are nullable until a challenger has ever
// filled them; the triple never holds duplicate identities.
type State struct {
	Top1 *string `json:"top_1"`
	Top2 *string `json:"top_2"`
	Top3 *string `json:"top_3"`
}

// Equal reports slot-wise equality.
func (s State) Equal(other State) bool {
	return ptrEq(s.Top1, other.Top1) && ptrEq(s.Top2, other.Top2) && ptrEq(s.Top3, other.Top3)
}

func ptrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// validate enforces the no-duplicates invariant.
func (s State) validate() error {
	seen := make(map[string]bool, 3)
	for _, slot := range []*string{s.Top1, s.Top2, s.Top3} {
		if slot == nil {
			continue
		}
		if seen[*slot] {
			return errors.New("roster: duplicate identity in roster")
		}
		seen[*slot] = true
	}
	return nil
}

// Engine applies batch rankings to the roster under a single-writer lock.
type Engine struct {
	mu    sync.Mutex
	state State
}

// NewEngine starts from the given state, typically loaded from the store.
func NewEngine(initial State) *Engine {
	return &Engine{state: initial}
}

// State returns the current roster.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Apply folds a batch ranking into the roster and reports whether anything
// changed. Only the ranking's winner matters: a winner equal to the
// incumbent top-1 leaves the roster untouched; a new winner shifts every
// incumbent down one slot. Ties upstream favor the incumbent, so a ranking
// led by the incumbent is the no-change case.
func (e *Engine) Apply(ranking []string) (State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(ranking) == 0 {
		return e.state, false
	}
	challenger := ranking[0]
	if e.state.Top1 != nil && *e.state.Top1 == challenger {
		return e.state, false
	}

	next := State{
		Top1: &challenger,
		Top2: e.state.Top1,
		Top3: e.state.Top2,
	}
	// A returning former champion vacates its old slot instead of appearing
	// twice.
	if next.Top2 != nil && *next.Top2 == challenger {
		next.Top2 = nil
	}
	if next.Top3 != nil && *next.Top3 == challenger {
		next.Top3 = nil
	}
	if next.Top2 == nil && next.Top3 != nil {
		next.Top2, next.Top3 = next.Top3, nil
	}
	if err := next.validate(); err != nil {
		return e.state, false
	}
	e.state = next
	return e.state, true
}
