package platform_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/caster-hub/caster/pkg/auth"
	"github.com/caster-hub/caster/pkg/batch"
	"github.com/caster-hub/caster/pkg/claims"
	"github.com/caster-hub/caster/pkg/gate"
	"github.com/caster-hub/caster/pkg/platform"
	"github.com/caster-hub/caster/pkg/registry"
	"github.com/caster-hub/caster/pkg/roster"
	"github.com/caster-hub/caster/pkg/scoring"

	"github.com/caster-hub/caster/pkg/artifacts"
)

type env struct {
	server *platform.Server
	mux    *http.ServeMux
	gate   *gate.Gate
	now    time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.TempDir()+"/platform.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gateStore, err := gate.NewSQLiteStore(db)
	require.NoError(t, err)
	rosterStore, err := roster.NewStore(db)
	require.NoError(t, err)
	fileStore, err := artifacts.NewFileStore(t.TempDir())
	require.NoError(t, err)

	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	g := gate.New(gateStore).WithClock(func() time.Time { return now })

	server := platform.NewServer(fileStore, platform.NewScriptRegistry(), g, roster.NewEngine(roster.State{}), rosterStore, nil)
	server.WithClock(func() time.Time { return now })

	mux := http.NewServeMux()
	server.Routes(mux)
	return &env{server: server, mux: mux, gate: g, now: now}
}

// requestAs stands in for the signature middleware: it injects the caller
// identity and role the way auth.NewMiddleware would after verification.
func (e *env) requestAs(t *testing.T, hotkey string, role registry.Role, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	ctx := auth.WithCaller(req.Context(), auth.Caller{SS58: hotkey, Role: string(role)})
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func (e *env) request(t *testing.T, hotkey, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return e.requestAs(t, hotkey, registry.RoleValidator, method, path, body)
}

// submitScript submits on behalf of the given miner identity and returns the
// server-assigned uid and artifact id.
func submitScript(t *testing.T, e *env, miner string, code []byte) (int, string) {
	t.Helper()
	sum := sha256.Sum256(code)
	rec := e.requestAs(t, miner, registry.RoleNone, http.MethodPost, "/v1/scripts", map[string]any{
		"script_b64": base64.StdEncoding.EncodeToString(code),
		"sha256":     hex.EncodeToString(sum[:]),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		UID         int    `json:"uid"`
		ArtifactID  string `json:"artifact_id"`
		ContentHash string `json:"content_hash"`
		SizeBytes   int64  `json:"size_bytes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, resp.ArtifactID, resp.ContentHash)
	assert.Equal(t, int64(len(code)), resp.SizeBytes)
	return resp.UID, resp.ArtifactID
}

func TestSubmitScriptAndDownload(t *testing.T) {
	e := newEnv(t)
	code := []byte("def evaluate_claim(payload): ...")
	uid, artifactID := submitScript(t, e, "5FMiner1", code)
	assert.Equal(t, 1, uid)

	require.NoError(t, e.server.AddBatch(resultBatch("batch-1", uid, artifactID)))
	rec := e.request(t, "5FAlice", http.MethodGet, "/v1/batches/batch-1/artifacts/"+artifactID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, code, rec.Body.Bytes())
}

func TestSubmitScriptAssignsStableUIDPerSubmitter(t *testing.T) {
	e := newEnv(t)
	uid1, _ := submitScript(t, e, "5FMiner1", []byte("first script"))
	uid2, _ := submitScript(t, e, "5FMiner2", []byte("second script"))
	uid1again, _ := submitScript(t, e, "5FMiner1", []byte("third script"))

	assert.Equal(t, 1, uid1)
	assert.Equal(t, 2, uid2)
	assert.Equal(t, uid1, uid1again)
}

func TestSubmitScriptShaMismatch(t *testing.T) {
	e := newEnv(t)
	rec := e.requestAs(t, "5FMiner1", registry.RoleNone, http.MethodPost, "/v1/scripts", map[string]any{
		"script_b64": base64.StdEncoding.EncodeToString([]byte("code")),
		"sha256":     "deadbeef",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "sha_mismatch")
}

func TestSubmitScriptDuplicateRejectedGlobally(t *testing.T) {
	e := newEnv(t)
	code := []byte("identical script body")
	submitScript(t, e, "5FMiner1", code)

	// Same bytes from a different candidate still collide.
	sum := sha256.Sum256(code)
	rec := e.requestAs(t, "5FMiner2", registry.RoleNone, http.MethodPost, "/v1/scripts", map[string]any{
		"script_b64": base64.StdEncoding.EncodeToString(code),
		"sha256":     hex.EncodeToString(sum[:]),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "duplicate_script")
}

func TestValidatorOnlyEndpointsRejectNonValidators(t *testing.T) {
	e := newEnv(t)

	for _, tc := range []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodPost, "/v1/validators/register", map[string]string{"base_url": "http://v:8080"}},
		{http.MethodPost, "/v1/batches/batch-1/results", map[string]any{"miner_task_results": []batch.MinerTaskResult{}}},
		{http.MethodGet, "/v1/weights", nil},
	} {
		rec := e.requestAs(t, "5FMiner1", registry.RoleNone, tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusForbidden, rec.Code, tc.path)
		assert.Contains(t, rec.Body.String(), "unknown_hotkey", tc.path)
	}

	// Script submission stays open to non-validators.
	submitScript(t, e, "5FMiner1", []byte("miner script"))
}

func resultBatch(id string, uid int, artifactID string) batch.Batch {
	return batch.Batch{
		BatchID:    id,
		Entrypoint: "evaluate_claim",
		CreatedAt:  time.Now(),
		Claims: []claims.Claim{{
			ClaimID: "c1",
			Text:    "claim",
			Rubric: claims.Rubric{
				Title:       "Accuracy",
				Description: "d",
				VerdictOptions: claims.VerdictOptions{
					{Value: -1, Description: "Fail"},
					{Value: 1, Description: "Pass"},
				},
			},
			ReferenceAnswer: claims.ReferenceAnswer{Verdict: 1, Justification: "j"},
		}},
		Candidates: []batch.Candidate{{UID: uid, ArtifactID: artifactID, ContentHash: artifactID}},
	}
}

func unitResult(batchID string, uid int, claimID string, verdictScore float64) batch.MinerTaskResult {
	return batch.MinerTaskResult{
		BatchID: batchID,
		UID:     uid,
		ClaimID: claimID,
		Score:   scoring.Score{VerdictScore: verdictScore, SupportScore: verdictScore, FailedCitationIDs: []string{}},
	}
}

func TestWeightsGateLifecycle(t *testing.T) {
	e := newEnv(t)

	// Unregistered.
	rec := e.request(t, "5FAlice", http.MethodGet, "/v1/weights", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown_hotkey")

	// Registered but never functioning.
	rec = e.request(t, "5FAlice", http.MethodPost, "/v1/validators/register", map[string]string{"base_url": "http://v:8080"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = e.request(t, "5FAlice", http.MethodGet, "/v1/weights", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "validator_never_functioning")

	// Ingesting results opens the gate.
	uid, artifactID := submitScript(t, e, "5FMiner1", []byte("script"))
	require.NoError(t, e.server.AddBatch(resultBatch("batch-1", uid, artifactID)))
	rec = e.request(t, "5FAlice", http.MethodPost, "/v1/batches/batch-1/results", map[string]any{
		"miner_task_results": []batch.MinerTaskResult{unitResult("batch-1", uid, "c1", 1)},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.request(t, "5FAlice", http.MethodGet, "/v1/weights", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var weights platform.WeightsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &weights))
	require.Len(t, weights.FinalTop, 3)
	require.NotNil(t, weights.FinalTop[0])
	assert.Equal(t, "1", *weights.FinalTop[0])
	assert.Nil(t, weights.FinalTop[1])
	assert.Nil(t, weights.FinalTop[2])
	assert.InDelta(t, 1.0, weights.Weights["1"], 1e-9)
}

func TestStaleValidatorDenied(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.gate.Register(ctx, "5FAlice", "http://v:8080"))
	require.NoError(t, e.gate.RecordCompletion(ctx, "5FAlice", e.now.Add(-121*time.Hour)))

	rec := e.request(t, "5FAlice", http.MethodGet, "/v1/weights", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "validator_stale")
}

func TestResultsUpdateRoster(t *testing.T) {
	e := newEnv(t)
	uid1, a1 := submitScript(t, e, "5FMiner1", []byte("script one"))
	uid2, _ := submitScript(t, e, "5FMiner2", []byte("script two"))
	require.NoError(t, e.server.AddBatch(resultBatch("batch-1", uid1, a1)))

	rec := e.request(t, "5FAlice", http.MethodPost, "/v1/batches/batch-1/results", map[string]any{
		"miner_task_results": []batch.MinerTaskResult{
			unitResult("batch-1", uid1, "c1", 0.5),
			unitResult("batch-1", uid2, "c1", 1.0),
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Ranking       []string     `json:"ranking"`
		Roster        roster.State `json:"roster"`
		RosterChanged bool         `json:"roster_changed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"2", "1"}, resp.Ranking)
	assert.True(t, resp.RosterChanged)
	require.NotNil(t, resp.Roster.Top1)
	assert.Equal(t, "2", *resp.Roster.Top1)
}

func TestResultsRejectDuplicateUnits(t *testing.T) {
	e := newEnv(t)
	uid, a1 := submitScript(t, e, "5FMiner1", []byte("script"))
	require.NoError(t, e.server.AddBatch(resultBatch("batch-1", uid, a1)))

	rec := e.request(t, "5FAlice", http.MethodPost, "/v1/batches/batch-1/results", map[string]any{
		"miner_task_results": []batch.MinerTaskResult{
			unitResult("batch-1", uid, "c1", 1),
			unitResult("batch-1", uid, "c1", 0.5),
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBatch(t *testing.T) {
	e := newEnv(t)
	uid, a1 := submitScript(t, e, "5FMiner1", []byte("script"))
	require.NoError(t, e.server.AddBatch(resultBatch("batch-1", uid, a1)))

	rec := e.request(t, "5FAlice", http.MethodGet, "/v1/batches/batch-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var b batch.Batch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, "batch-1", b.BatchID)

	rec = e.request(t, "5FAlice", http.MethodGet, "/v1/batches/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
