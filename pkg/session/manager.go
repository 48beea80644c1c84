package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// tokenSecretBytes is the entropy of freshly issued session tokens.
const tokenSecretBytes = 32

// Issued pairs a new session with its raw token. The raw token is handed to
// the sandbox exactly once and never stored.
type Issued struct {
	Session Session
	Token   string
}

// Manager coordinates session issuance and lifecycle transitions.
type Manager struct {
	tokens *TokenRegistry
	clock  func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]Session
}

// NewManager returns a Manager backed by the given token registry.
func NewManager(tokens *TokenRegistry) *Manager {
	return &Manager{
		tokens:   tokens,
		clock:    time.Now,
		sessions: make(map[uuid.UUID]Session),
	}
}

// WithClock overrides the clock for tests.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// Issue mints a new active session scoped to one (candidate, claim) unit.
func (m *Manager) Issue(uid int, claimID string, budgetUSD float64, ttl time.Duration) (Issued, error) {
	token, err := newToken()
	if err != nil {
		return Issued{}, err
	}
	now := m.clock()
	s := Session{
		SessionID: uuid.New(),
		UID:       uid,
		ClaimID:   claimID,
		Status:    StatusActive,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
		BudgetUSD: budgetUSD,
	}

	m.mu.Lock()
	m.sessions[s.SessionID] = s
	m.mu.Unlock()
	m.tokens.Register(s.SessionID, token)

	return Issued{Session: s, Token: token}, nil
}

// Get returns the session if it exists.
func (m *Manager) Get(sessionID uuid.UUID) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// VerifyToken reports whether the presented token belongs to sessionID.
func (m *Manager) VerifyToken(sessionID uuid.UUID, presented string) bool {
	return m.tokens.Verify(sessionID, presented)
}

// MarkStatus transitions the session to the given status.
func (m *Manager) MarkStatus(sessionID uuid.UUID, status Status) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, fmt.Errorf("session %s not found", sessionID)
	}
	s.Status = status
	m.sessions[sessionID] = s
	return s, nil
}

// Revoke removes session and token state once the unit has finished.
func (m *Manager) Revoke(sessionID uuid.UUID) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	m.tokens.Revoke(sessionID)
}

func newToken() (string, error) {
	buf := make([]byte, tokenSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("session: token entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
