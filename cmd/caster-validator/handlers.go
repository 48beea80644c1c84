package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/caster-hub/caster/pkg/api"
	"github.com/caster-hub/caster/pkg/auth"
	"github.com/caster-hub/caster/pkg/batch"
	"github.com/caster-hub/caster/pkg/platform"
	"github.com/caster-hub/caster/pkg/tools"
)

func handleAcceptBatch(coordinator *batch.Coordinator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var b batch.Batch
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			api.WriteBadRequest(w, "request body must be a valid batch document")
			return
		}
		acceptance, err := coordinator.Accept(b)
		if err != nil {
			api.WriteBadRequest(w, err.Error())
			return
		}
		if caller, err := auth.CallerFrom(r.Context()); err == nil {
			acceptance.Caller = caller.SS58
		}
		api.WriteJSON(w, http.StatusAccepted, acceptance)
	})
}

func handleProgress(coordinator *batch.Coordinator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		progress, err := coordinator.Progress(r.PathValue("batch_id"))
		if err != nil {
			if errors.Is(err, batch.ErrUnknownBatch) {
				api.WriteNotFound(w, "no such batch")
				return
			}
			api.WriteInternal(w, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, progress)
	})
}

type toolExecuteBody struct {
	SessionID uuid.UUID      `json:"session_id"`
	Tool      string         `json:"tool"`
	Args      []any          `json:"args"`
	Kwargs    map[string]any `json:"kwargs"`
}

// handleToolExecute is the sandbox-facing tool proxy endpoint. It is
// authenticated by session token, not by request signature: the sandboxed
// script holds nothing else.
func handleToolExecute(executor *tools.Executor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body toolExecuteBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			api.WriteBadRequest(w, "request body must be valid JSON")
			return
		}
		result, err := executor.Execute(r.Context(), tools.ExecuteRequest{
			SessionID: body.SessionID,
			Token:     r.Header.Get("x-caster-token"),
			Tool:      body.Tool,
			Args:      body.Args,
			Kwargs:    body.Kwargs,
		})
		if err != nil {
			switch {
			case errors.Is(err, tools.ErrUnknownSession), errors.Is(err, tools.ErrInvalidToken):
				api.WriteUnauthorized(w, api.CodeInvalidAuthorization, "session token rejected")
			case errors.Is(err, tools.ErrSessionInactive):
				api.WriteForbidden(w, "", "session is no longer active")
			case errors.Is(err, tools.ErrUnknownTool):
				api.WriteProblem(w, http.StatusNotFound, api.CodeUnknownTool, "Not Found", err.Error())
			case errors.Is(err, tools.ErrInvalidArgs):
				api.WriteBadRequest(w, err.Error())
			case errors.Is(err, tools.ErrRateLimited):
				api.WriteProblem(w, http.StatusTooManyRequests, "", "Too Many Requests", "tool call rate exceeded")
			default:
				api.WriteInternal(w, err)
			}
			return
		}
		api.WriteJSON(w, http.StatusOK, result)
	}
}

func handleStatus(coordinator *batch.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		api.WriteJSON(w, http.StatusOK, coordinator.Status())
	}
}

// resultUploader reports completed batches back to the platform. Submitting
// the result set is also what marks this validator as functioning.
type resultUploader struct {
	client      *platform.Client
	coordinator *batch.Coordinator
	logger      *slog.Logger
}

func (u *resultUploader) BatchCompleted(ctx context.Context, batchID string, _ time.Time) {
	if u.coordinator == nil {
		return
	}
	progress, err := u.coordinator.Progress(batchID)
	if err != nil {
		u.logger.ErrorContext(ctx, "completed batch vanished", "batch_id", batchID, "error", err)
		return
	}
	if err := u.client.SubmitResults(ctx, batchID, progress.Results); err != nil {
		u.logger.ErrorContext(ctx, "result upload failed", "batch_id", batchID, "error", err)
		return
	}
	u.logger.InfoContext(ctx, "results uploaded", "batch_id", batchID, "results", len(progress.Results))
}
