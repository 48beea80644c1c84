package auth

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/caster-hub/caster/pkg/api"
	"github.com/caster-hub/caster/pkg/identity"
	"github.com/caster-hub/caster/pkg/registry"
)

// maxSignedBodyBytes caps how much request body the middleware buffers for
// signature verification.
const maxSignedBodyBytes = 16 << 20

// NewMiddleware authenticates signed requests and authorizes them against the
// participant registry. When requireValidator is set, only identities holding
// the validator role pass. The authenticated caller is injected into the
// request context for downstream handlers.
//
// Registry failures deny the request (fail closed, never default-allow).
func NewMiddleware(verifier *Verifier, reg registry.Client, requireValidator bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBodyBytes))
			if err != nil {
				api.WriteBadRequest(w, "failed to read request body")
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			ss58, err := verifier.Verify(r.Method, r.URL.RequestURI(), body, r.Header.Get("Authorization"))
			if err != nil {
				writeAuthError(w, err)
				return
			}

			registered, err := reg.IsRegistered(r.Context(), ss58)
			if err != nil {
				slog.Error("registry lookup failed, denying request", "ss58", ss58, "error", err)
				api.WriteServiceUnavailable(w, api.CodeRegistryUnavailable, "participant registry is unavailable")
				return
			}
			if !registered {
				api.WriteForbidden(w, api.CodeUnknownHotkey, "caller is not a registered participant")
				return
			}

			role, err := reg.RoleOf(r.Context(), ss58)
			if err != nil {
				slog.Error("registry role lookup failed, denying request", "ss58", ss58, "error", err)
				api.WriteServiceUnavailable(w, api.CodeRegistryUnavailable, "participant registry is unavailable")
				return
			}
			if requireValidator && role != registry.RoleValidator {
				api.WriteForbidden(w, api.CodeUnknownHotkey, "caller does not hold the validator role")
				return
			}

			ctx := WithCaller(r.Context(), Caller{SS58: ss58, Role: string(role)})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireValidator guards validator-only endpoints. It runs inside the
// signature middleware and rejects authenticated callers that do not hold
// the validator role.
func RequireValidator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := CallerFrom(r.Context())
		if err != nil {
			api.WriteUnauthorized(w, api.CodeMissingAuthorization, "")
			return
		}
		if caller.Role != string(registry.RoleValidator) {
			api.WriteForbidden(w, api.CodeUnknownHotkey, "caller does not hold the validator role")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrMissingAuthorization):
		api.WriteUnauthorized(w, api.CodeMissingAuthorization, "Authorization header is required")
	case errors.Is(err, ErrInvalidHeader):
		api.WriteUnauthorized(w, api.CodeInvalidAuthorization, "Authorization header is invalid")
	case errors.Is(err, ErrInvalidSignatureHex):
		api.WriteUnauthorized(w, api.CodeInvalidSignatureHex, "signature must be hex-encoded")
	case errors.Is(err, ErrInvalidSignatureLength):
		api.WriteUnauthorized(w, api.CodeInvalidSignatureLength, "signature must be 64 bytes")
	case errors.Is(err, identity.ErrInvalidAddress):
		api.WriteUnauthorized(w, api.CodeInvalidSS58, "hotkey address is invalid")
	default:
		api.WriteUnauthorized(w, api.CodeInvalidSignature, "signature verification failed")
	}
}
