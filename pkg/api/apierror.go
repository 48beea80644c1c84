// Package api implements RFC 7807 Problem Detail error responses for the
// caster services.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// Stable error codes surfaced to callers. Auth and gate codes are part of the
// protocol contract and must not change between releases.
const (
	CodeMissingAuthorization   = "missing_authorization"
	CodeInvalidAuthorization   = "invalid_authorization_header"
	CodeInvalidSignature       = "invalid_signature"
	CodeInvalidSignatureHex    = "invalid_signature_hex"
	CodeInvalidSignatureLength = "invalid_signature_length"
	CodeInvalidSS58            = "invalid_ss58"
	CodeUnknownHotkey          = "unknown_hotkey"
	CodeRegistryUnavailable    = "registry_unavailable"
	CodeUnknownTool            = "unknown_tool"
	CodeInvalidVerdict         = "invalid_verdict"
	CodeDuplicateScript        = "duplicate_script"
	CodeShaMismatch            = "sha_mismatch"
	CodeNeverFunctioning       = "validator_never_functioning"
	CodeStaleValidator         = "validator_stale"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs), extended
// with a machine-readable caster error code.
type ProblemDetail struct {
	// Type is a URI reference that identifies the problem type.
	Type string `json:"type"`
	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`
	// Status is the HTTP status code.
	Status int `json:"status"`
	// Code is the stable caster error code for programmatic handling.
	Code string `json:"code,omitempty"`
	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`
	// Instance is a URI reference identifying the specific occurrence.
	Instance string `json:"instance,omitempty"`
}

// Error implements the error interface.
func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// WriteProblem writes an RFC 7807 Problem Detail JSON response with a caster
// error code.
func WriteProblem(w http.ResponseWriter, status int, code, title, detail string) {
	problem := &ProblemDetail{
		Type:   fmt.Sprintf("https://caster-hub.github.io/errors/%d", status),
		Title:  title,
		Status: status,
		Code:   code,
		Detail: detail,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

// WriteError writes a problem response without a caster code.
func WriteError(w http.ResponseWriter, status int, title, detail string) {
	WriteProblem(w, status, "", title, detail)
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadRequest, "Bad Request", detail)
}

// WriteUnauthorized writes a 401 error response carrying an auth error code.
func WriteUnauthorized(w http.ResponseWriter, code, detail string) {
	if detail == "" {
		detail = "Authentication required"
	}
	WriteProblem(w, http.StatusUnauthorized, code, "Unauthorized", detail)
}

// WriteForbidden writes a 403 error response carrying an authz/gate error code.
func WriteForbidden(w http.ResponseWriter, code, detail string) {
	if detail == "" {
		detail = "Insufficient permissions"
	}
	WriteProblem(w, http.StatusForbidden, code, "Forbidden", detail)
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusNotFound, "Not Found", detail)
}

// WriteMethodNotAllowed writes a 405 error response.
func WriteMethodNotAllowed(w http.ResponseWriter) {
	WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "The HTTP method is not supported for this endpoint")
}

// WriteConflict writes a 409 error response.
func WriteConflict(w http.ResponseWriter, code, detail string) {
	WriteProblem(w, http.StatusConflict, code, "Conflict", detail)
}

// WriteUnprocessable writes a 422 error response.
func WriteUnprocessable(w http.ResponseWriter, code, detail string) {
	WriteProblem(w, http.StatusUnprocessableEntity, code, "Unprocessable Entity", detail)
}

// WriteServiceUnavailable writes a 503 error response. Used when a dependency
// required for a fail-closed decision cannot be reached.
func WriteServiceUnavailable(w http.ResponseWriter, code, detail string) {
	WriteProblem(w, http.StatusServiceUnavailable, code, "Service Unavailable", detail)
}

// WriteInternal writes a 500 error response.
// The err parameter is logged but NEVER exposed to the client.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	WriteError(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred. Please try again later.")
}

// WriteJSON writes a JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
