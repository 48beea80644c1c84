package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ChainSafe/go-schnorrkel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caster-hub/caster/pkg/auth"
	"github.com/caster-hub/caster/pkg/identity"
	"github.com/caster-hub/caster/pkg/registry"
)

type testKey struct {
	secret *schnorrkel.SecretKey
	ss58   string
}

func newTestKey(t *testing.T) testKey {
	t.Helper()
	secret, public, err := schnorrkel.GenerateKeypair()
	require.NoError(t, err)
	encoded := public.Encode()
	address, err := identity.Encode(encoded[:], identity.DefaultPrefix)
	require.NoError(t, err)
	return testKey{secret: secret, ss58: address}
}

func signedRequest(t *testing.T, key testKey, method, target string, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	header, err := auth.SignRequest(key.secret, key.ss58, method, req.URL.RequestURI(), body)
	require.NoError(t, err)
	req.Header.Set("Authorization", header)
	return req
}

func echoCaller() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := auth.CallerFrom(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(caller.SS58))
	})
}

func TestMiddlewareAcceptsValidSignature(t *testing.T) {
	key := newTestKey(t)
	reg := registry.NewStatic(map[string]registry.Role{key.ss58: registry.RoleValidator})
	handler := auth.NewMiddleware(auth.NewVerifier(), reg, false)(echoCaller())

	body := []byte(`{"hello":"world"}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(t, key, http.MethodPost, "/rpc/evaluations/batch?x=1", body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, key.ss58, rec.Body.String())
}

func TestMiddlewareRejectsMissingHeader(t *testing.T) {
	key := newTestKey(t)
	reg := registry.NewStatic(map[string]registry.Role{key.ss58: registry.RoleValidator})
	handler := auth.NewMiddleware(auth.NewVerifier(), reg, false)(echoCaller())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rpc/status", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing_authorization", problemCode(t, rec))
}

func TestMiddlewareRejectsTamperedBody(t *testing.T) {
	key := newTestKey(t)
	reg := registry.NewStatic(map[string]registry.Role{key.ss58: registry.RoleValidator})
	handler := auth.NewMiddleware(auth.NewVerifier(), reg, false)(echoCaller())

	body := []byte(`{"hello":"world"}`)
	req := signedRequest(t, key, http.MethodPost, "/rpc/evaluations/batch", body)
	req.Body = nopBody([]byte(`{"hello":"tampered"}`))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_signature", problemCode(t, rec))
}

func TestMiddlewareRejectsPathConfusion(t *testing.T) {
	key := newTestKey(t)
	reg := registry.NewStatic(map[string]registry.Role{key.ss58: registry.RoleValidator})
	handler := auth.NewMiddleware(auth.NewVerifier(), reg, false)(echoCaller())

	// Signature computed for a different path than the one routed.
	body := []byte(`{}`)
	req := httptest.NewRequest(http.MethodPost, "/rpc/evaluations/batch", bytes.NewReader(body))
	header, err := auth.SignRequest(key.secret, key.ss58, http.MethodPost, "/rpc/other", body)
	require.NoError(t, err)
	req.Header.Set("Authorization", header)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_signature", problemCode(t, rec))
}

func TestMiddlewareRejectsUnregisteredCaller(t *testing.T) {
	key := newTestKey(t)
	reg := registry.NewStatic(nil)
	handler := auth.NewMiddleware(auth.NewVerifier(), reg, false)(echoCaller())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(t, key, http.MethodGet, "/rpc/status", nil))

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "unknown_hotkey", problemCode(t, rec))
}

func TestMiddlewareEnforcesValidatorRole(t *testing.T) {
	key := newTestKey(t)
	reg := registry.NewStatic(map[string]registry.Role{key.ss58: registry.RoleNone})
	handler := auth.NewMiddleware(auth.NewVerifier(), reg, true)(echoCaller())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(t, key, http.MethodGet, "/v1/weights", nil))

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireValidatorGuardsRole(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := auth.RequireValidator(next)

	// No authenticated caller at all.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/weights", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Authenticated but not a validator.
	req := httptest.NewRequest(http.MethodGet, "/v1/weights", nil)
	ctx := auth.WithCaller(req.Context(), auth.Caller{SS58: "5FMiner", Role: string(registry.RoleNone)})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(ctx))
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "unknown_hotkey", problemCode(t, rec))

	// Validator passes through.
	req = httptest.NewRequest(http.MethodGet, "/v1/weights", nil)
	ctx = auth.WithCaller(req.Context(), auth.Caller{SS58: "5FAlice", Role: string(registry.RoleValidator)})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(ctx))
	assert.Equal(t, http.StatusOK, rec.Code)
}

type failingRegistry struct{}

func (failingRegistry) IsRegistered(context.Context, string) (bool, error) {
	return false, registry.ErrUnavailable
}

func (failingRegistry) RoleOf(context.Context, string) (registry.Role, error) {
	return registry.RoleNone, registry.ErrUnavailable
}

func TestMiddlewareFailsClosedOnRegistryError(t *testing.T) {
	key := newTestKey(t)
	handler := auth.NewMiddleware(auth.NewVerifier(), failingRegistry{}, false)(echoCaller())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(t, key, http.MethodGet, "/rpc/status", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestVerifierErrorTaxonomy(t *testing.T) {
	key := newTestKey(t)
	verifier := auth.NewVerifier()

	_, err := verifier.Verify("GET", "/x", nil, "")
	assert.ErrorIs(t, err, auth.ErrMissingAuthorization)

	_, err = verifier.Verify("GET", "/x", nil, "Bearer abc")
	assert.ErrorIs(t, err, auth.ErrInvalidHeader)

	_, err = verifier.Verify("GET", "/x", nil, `Bittensor ss58="`+key.ss58+`",sig="abcd"`)
	assert.ErrorIs(t, err, auth.ErrInvalidSignatureLength)

	_, err = verifier.Verify("GET", "/x", nil, `Bittensor ss58="not-an-address",sig="`+validHex(128)+`"`)
	assert.ErrorIs(t, err, identity.ErrInvalidAddress)
}

func validHex(n int) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = 'a'
	}
	return string(buf)
}

func problemCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var problem struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	return problem.Code
}

func nopBody(b []byte) *readCloser { return &readCloser{Reader: bytes.NewReader(b)} }

type readCloser struct{ *bytes.Reader }

func (rc *readCloser) Close() error { return nil }
