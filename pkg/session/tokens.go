package session

import (
	"crypto/subtle"
	"encoding/hex"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// TokenRegistry stores hashed session tokens. Raw tokens never persist beyond
// the issuing call; verification hashes the presented token and compares in
// constant time.
type TokenRegistry struct {
	mu     sync.Mutex
	hashes map[uuid.UUID]string
}

// NewTokenRegistry returns an empty in-memory token registry.
func NewTokenRegistry() *TokenRegistry {
	return &TokenRegistry{hashes: make(map[uuid.UUID]string)}
}

// Register stores the hash of rawToken for sessionID and returns the hash.
func (r *TokenRegistry) Register(sessionID uuid.UUID, rawToken string) string {
	tokenHash := hashToken(rawToken)
	r.mu.Lock()
	r.hashes[sessionID] = tokenHash
	r.mu.Unlock()
	return tokenHash
}

// Verify reports whether the presented token matches the registered hash.
func (r *TokenRegistry) Verify(sessionID uuid.UUID, presented string) bool {
	r.mu.Lock()
	stored, ok := r.hashes[sessionID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	presentedHash := hashToken(presented)
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presentedHash)) == 1
}

// Revoke removes the token for sessionID.
func (r *TokenRegistry) Revoke(sessionID uuid.UUID) {
	r.mu.Lock()
	delete(r.hashes, sessionID)
	r.mu.Unlock()
}

func hashToken(raw string) string {
	sum := blake2b.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
