package budget_test

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caster-hub/caster/pkg/budget"
)

func TestChargeWithinLimit(t *testing.T) {
	ledger := budget.NewLedger()
	id := uuid.New()
	require.NoError(t, ledger.Open(id, 0.10))

	snap, err := ledger.Charge(id, 0.04)
	require.NoError(t, err)
	assert.InDelta(t, 0.04, snap.SessionUsedBudgetUSD, 1e-9)
	assert.InDelta(t, 0.06, snap.SessionRemainingBudgetUSD, 1e-9)

	snap, err = ledger.Charge(id, 0.06)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, snap.SessionRemainingBudgetUSD, 1e-9)
}

func TestChargeRejectsOverspendWithoutBilling(t *testing.T) {
	ledger := budget.NewLedger()
	id := uuid.New()
	require.NoError(t, ledger.Open(id, 0.05))

	_, err := ledger.Charge(id, 0.03)
	require.NoError(t, err)

	snap, err := ledger.Charge(id, 0.03)
	assert.ErrorIs(t, err, budget.ErrBudgetExceeded)
	// Rejected call is not billed.
	assert.InDelta(t, 0.03, snap.SessionUsedBudgetUSD, 1e-9)

	snap, err = ledger.Peek(id)
	require.NoError(t, err)
	assert.InDelta(t, 0.03, snap.SessionUsedBudgetUSD, 1e-9)
}

func TestChargeUnknownSession(t *testing.T) {
	ledger := budget.NewLedger()
	_, err := ledger.Charge(uuid.New(), 0.01)
	assert.ErrorIs(t, err, budget.ErrUnknownSession)
}

func TestOpenRejectsReopen(t *testing.T) {
	ledger := budget.NewLedger()
	id := uuid.New()
	require.NoError(t, ledger.Open(id, 0.05))
	assert.Error(t, ledger.Open(id, 0.10))
}

func TestCloseDropsAccount(t *testing.T) {
	ledger := budget.NewLedger()
	id := uuid.New()
	require.NoError(t, ledger.Open(id, 0.05))
	ledger.Close(id)
	_, err := ledger.Peek(id)
	assert.ErrorIs(t, err, budget.ErrUnknownSession)
}

// Concurrent charges must never jointly overspend the cap: the check and the
// decrement are one atomic step.
func TestConcurrentChargesNeverOverspend(t *testing.T) {
	ledger := budget.NewLedger()
	id := uuid.New()
	require.NoError(t, ledger.Open(id, 1.00))

	const workers = 50
	const perCharge = 0.03 // 50 * 0.03 = 1.50 > 1.00

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Charge(id, perCharge); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	snap, err := ledger.Peek(id)
	require.NoError(t, err)
	assert.LessOrEqual(t, snap.SessionUsedBudgetUSD, 1.00+1e-9)
	assert.InDelta(t, float64(granted)*perCharge, snap.SessionUsedBudgetUSD, 1e-9)
}
