package receipts_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caster-hub/caster/pkg/receipts"
)

func newReceipt(session uuid.UUID, tool string, policy receipts.ResultPolicy, resultIDs ...string) receipts.Receipt {
	results := make([]receipts.Result, len(resultIDs))
	for i, id := range resultIDs {
		results[i] = receipts.Result{ResultID: id, Index: i}
	}
	return receipts.Receipt{
		ReceiptID: uuid.NewString(),
		SessionID: session,
		UID:       7,
		Tool:      tool,
		IssuedAt:  time.Now().UTC(),
		Results:   results,
		Policy:    policy,
	}
}

func TestRecordAndLookup(t *testing.T) {
	log := receipts.NewLog()
	session := uuid.New()
	r := newReceipt(session, "search_web", receipts.PolicyReferenceable, "res-1", "res-2")
	log.Record(r)

	got, ok := log.Lookup(r.ReceiptID)
	require.True(t, ok)
	assert.Equal(t, r.ReceiptID, got.ReceiptID)
	assert.Len(t, got.Results, 2)
}

func TestForSessionPreservesIssueOrder(t *testing.T) {
	log := receipts.NewLog()
	session := uuid.New()
	first := newReceipt(session, "search_web", receipts.PolicyReferenceable, "a")
	second := newReceipt(session, "llm_chat", receipts.PolicyLogOnly)
	log.Record(first)
	log.Record(second)
	log.Record(newReceipt(uuid.New(), "search_web", receipts.PolicyReferenceable, "other"))

	got := log.ForSession(session)
	require.Len(t, got, 2)
	assert.Equal(t, first.ReceiptID, got[0].ReceiptID)
	assert.Equal(t, second.ReceiptID, got[1].ReceiptID)
}

func TestHasResultScopedToSessionAndPolicy(t *testing.T) {
	log := receipts.NewLog()
	session := uuid.New()
	other := uuid.New()

	log.Record(newReceipt(session, "search_web", receipts.PolicyReferenceable, "cite-me"))
	log.Record(newReceipt(session, "llm_chat", receipts.PolicyLogOnly, "log-only"))

	assert.True(t, log.HasResult(session, "cite-me"))
	// Results from another session are never citable here.
	assert.False(t, log.HasResult(other, "cite-me"))
	// Log-only results are never citable anywhere.
	assert.False(t, log.HasResult(session, "log-only"))
	assert.False(t, log.HasResult(session, "never-issued"))
}

func TestDuplicateRecordIgnored(t *testing.T) {
	log := receipts.NewLog()
	session := uuid.New()
	r := newReceipt(session, "search_web", receipts.PolicyReferenceable, "a")
	log.Record(r)
	r.Tool = "mutated"
	log.Record(r)

	got, ok := log.Lookup(r.ReceiptID)
	require.True(t, ok)
	assert.Equal(t, "search_web", got.Tool)
	assert.Len(t, log.ForSession(session), 1)
}

func TestClearSession(t *testing.T) {
	log := receipts.NewLog()
	session := uuid.New()
	r := newReceipt(session, "search_web", receipts.PolicyReferenceable, "a")
	log.Record(r)

	log.ClearSession(session)
	_, ok := log.Lookup(r.ReceiptID)
	assert.False(t, ok)
	assert.Empty(t, log.ForSession(session))
	assert.False(t, log.HasResult(session, "a"))
}

func TestHashPayloadStableAcrossKeyOrder(t *testing.T) {
	a, err := receipts.HashPayload(map[string]any{"query": "go", "top_k": 3})
	require.NoError(t, err)
	b, err := receipts.HashPayload(map[string]any{"top_k": 3, "query": "go"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := receipts.HashPayload(map[string]any{"query": "rust", "top_k": 3})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
