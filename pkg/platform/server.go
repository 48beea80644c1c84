package platform

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/caster-hub/caster/pkg/api"
	"github.com/caster-hub/caster/pkg/artifacts"
	"github.com/caster-hub/caster/pkg/auth"
	"github.com/caster-hub/caster/pkg/batch"
	"github.com/caster-hub/caster/pkg/gate"
	"github.com/caster-hub/caster/pkg/roster"
)

// Server carries the platform-side state and handlers.
type Server struct {
	store    artifacts.Store
	scripts  *ScriptRegistry
	gate     *gate.Gate
	roster   *roster.Engine
	rosterDB *roster.Store
	logger   *slog.Logger
	clock    func() time.Time

	mu      sync.Mutex
	batches map[string]batch.Batch
}

// NewServer wires the platform. rosterDB may be nil when persistence is
// handled elsewhere.
func NewServer(store artifacts.Store, scripts *ScriptRegistry, g *gate.Gate, engine *roster.Engine, rosterDB *roster.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:    store,
		scripts:  scripts,
		gate:     g,
		roster:   engine,
		rosterDB: rosterDB,
		logger:   logger,
		clock:    time.Now,
		batches:  make(map[string]batch.Batch),
	}
}

// WithClock overrides the clock for tests.
func (s *Server) WithClock(clock func() time.Time) *Server {
	s.clock = clock
	return s
}

// AddBatch registers a batch for assignment. Claim ingestion itself is an
// upstream concern; the platform only serves batches it was handed.
func (s *Server) AddBatch(b batch.Batch) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.batches[b.BatchID] = b
	s.mu.Unlock()
	return nil
}

// Routes registers all platform handlers on the mux. The caller wraps the
// mux with the signature middleware; handlers assume an authenticated
// caller is present in the request context. Validator-only endpoints carry
// an additional role guard.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/scripts", s.handleSubmitScript)
	mux.HandleFunc("GET /v1/batches/{batch_id}", s.handleGetBatch)
	mux.HandleFunc("GET /v1/batches/{batch_id}/artifacts/{artifact_id}", s.handleGetArtifact)
	mux.Handle("POST /v1/batches/{batch_id}/results", auth.RequireValidator(http.HandlerFunc(s.handleSubmitResults)))
	mux.Handle("GET /v1/weights", auth.RequireValidator(http.HandlerFunc(s.handleGetWeights)))
	mux.Handle("POST /v1/validators/register", auth.RequireValidator(http.HandlerFunc(s.handleRegisterValidator)))
}

type submitScriptRequest struct {
	ScriptB64 string `json:"script_b64"`
	SHA256    string `json:"sha256"`
}

type submitScriptResponse struct {
	UID         int    `json:"uid"`
	ArtifactID  string `json:"artifact_id"`
	ContentHash string `json:"content_hash"`
	SizeBytes   int64  `json:"size_bytes"`
}

func (s *Server) handleSubmitScript(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.CallerFrom(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, api.CodeMissingAuthorization, "")
		return
	}
	var req submitScriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "request body must be valid JSON")
		return
	}
	code, err := base64.StdEncoding.DecodeString(req.ScriptB64)
	if err != nil || len(code) == 0 {
		api.WriteBadRequest(w, "script_b64 must be non-empty base64")
		return
	}

	sum := sha256.Sum256(code)
	if !strings.EqualFold(hex.EncodeToString(sum[:]), strings.TrimPrefix(req.SHA256, artifacts.HashPrefix)) {
		api.WriteUnprocessable(w, api.CodeShaMismatch, "sha256 does not match the decoded script bytes")
		return
	}

	contentHash := artifacts.HashBytes(code)
	record, err := s.scripts.Add(caller.SS58, contentHash, int64(len(code)), s.clock())
	if err != nil {
		if errors.Is(err, ErrDuplicateScript) {
			api.WriteConflict(w, api.CodeDuplicateScript, "an identical script was already submitted")
			return
		}
		api.WriteInternal(w, err)
		return
	}
	if _, err := s.store.Put(r.Context(), code); err != nil {
		api.WriteInternal(w, err)
		return
	}

	s.logger.InfoContext(r.Context(), "script accepted",
		"uid", record.UID, "content_hash", contentHash, "size_bytes", len(code))
	api.WriteJSON(w, http.StatusCreated, submitScriptResponse{
		UID:         record.UID,
		ArtifactID:  record.ArtifactID,
		ContentHash: record.ContentHash,
		SizeBytes:   record.SizeBytes,
	})
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("batch_id")
	s.mu.Lock()
	b, ok := s.batches[batchID]
	s.mu.Unlock()
	if !ok {
		api.WriteNotFound(w, "no such batch")
		return
	}
	api.WriteJSON(w, http.StatusOK, b)
}

func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	artifactID := r.PathValue("artifact_id")
	data, err := s.store.Get(r.Context(), artifactID)
	if err != nil {
		if errors.Is(err, artifacts.ErrNotFound) {
			api.WriteNotFound(w, "no such artifact")
			return
		}
		api.WriteBadRequest(w, "invalid artifact id")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type submitResultsRequest struct {
	Results []batch.MinerTaskResult `json:"miner_task_results"`
}

func (s *Server) handleSubmitResults(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.CallerFrom(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, api.CodeMissingAuthorization, "")
		return
	}
	batchID := r.PathValue("batch_id")
	s.mu.Lock()
	_, known := s.batches[batchID]
	s.mu.Unlock()
	if !known {
		api.WriteNotFound(w, "no such batch")
		return
	}

	var req submitResultsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "request body must be valid JSON")
		return
	}
	if len(req.Results) == 0 {
		api.WriteBadRequest(w, "results must not be empty")
		return
	}
	if err := validateResultSet(batchID, req.Results); err != nil {
		api.WriteBadRequest(w, err.Error())
		return
	}

	ranking := RankResults(req.Results, s.scripts.SubmissionOrder)
	state, changed := s.roster.Apply(ranking)
	if changed && s.rosterDB != nil {
		if err := s.persistRoster(r.Context(), state); err != nil {
			api.WriteInternal(w, err)
			return
		}
	}

	// A delivered result set is the proof of a functioning validator.
	if err := s.gate.RecordCompletion(r.Context(), caller.SS58, s.clock()); err != nil &&
		!errors.Is(err, gate.ErrUnknownValidator) {
		s.logger.WarnContext(r.Context(), "completion record failed",
			"hotkey", caller.SS58, "error", err)
	}

	s.logger.InfoContext(r.Context(), "results ingested",
		"batch_id", batchID, "results", len(req.Results), "roster_changed", changed)
	api.WriteJSON(w, http.StatusOK, map[string]any{
		"ranking":        ranking,
		"roster":         state,
		"roster_changed": changed,
	})
}

// persistRoster retries the compare-and-swap once after reloading; the
// engine is the single writer, so a second conflict is a real fault.
func (s *Server) persistRoster(ctx context.Context, state roster.State) error {
	_, version, err := s.rosterDB.Load(ctx)
	if err != nil {
		return err
	}
	if err := s.rosterDB.Save(ctx, state, version); err != nil {
		if !errors.Is(err, roster.ErrVersionConflict) {
			return err
		}
		_, version, err = s.rosterDB.Load(ctx)
		if err != nil {
			return err
		}
		return s.rosterDB.Save(ctx, state, version)
	}
	return nil
}

func (s *Server) handleGetWeights(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.CallerFrom(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, api.CodeMissingAuthorization, "")
		return
	}
	if err := s.gate.Check(r.Context(), caller.SS58); err != nil {
		switch {
		case errors.Is(err, gate.ErrNeverFunctioning):
			api.WriteForbidden(w, api.CodeNeverFunctioning, "validator has never completed a batch")
		case errors.Is(err, gate.ErrStale):
			api.WriteForbidden(w, api.CodeStaleValidator, "validator has not completed a batch within the functioning window")
		case errors.Is(err, gate.ErrUnknownValidator):
			api.WriteForbidden(w, api.CodeUnknownHotkey, "validator is not registered")
		default:
			api.WriteInternal(w, err)
		}
		return
	}

	state := s.roster.State()
	weights := make(map[string]float64)
	if state.Top1 != nil {
		weights[*state.Top1] = 1.0
	}
	api.WriteJSON(w, http.StatusOK, WeightsResponse{
		Weights:  weights,
		FinalTop: []*string{state.Top1, state.Top2, state.Top3},
	})
}

type registerValidatorRequest struct {
	BaseURL string `json:"base_url"`
}

func (s *Server) handleRegisterValidator(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.CallerFrom(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, api.CodeMissingAuthorization, "")
		return
	}
	var req registerValidatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "request body must be valid JSON")
		return
	}
	if strings.TrimSpace(req.BaseURL) == "" {
		api.WriteBadRequest(w, "base_url must not be empty")
		return
	}
	if err := s.gate.Register(r.Context(), caller.SS58, req.BaseURL); err != nil {
		api.WriteInternal(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "registered"})
}

// validateResultSet rejects result sets violating per-batch uniqueness.
func validateResultSet(batchID string, results []batch.MinerTaskResult) error {
	seen := make(map[string]bool, len(results))
	for _, result := range results {
		if result.BatchID != batchID {
			return errors.New("result batch_id does not match the submission path")
		}
		key := result.ClaimID + "/" + strconv.Itoa(result.UID)
		if seen[key] {
			return errors.New("duplicate (claim_id, uid) pair in result set")
		}
		seen[key] = true
	}
	return nil
}
