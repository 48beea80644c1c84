package tools

import (
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// sessionLimiter caps tool-call rate per session so one runaway script
// cannot monopolize provider quota.
type sessionLimiter struct {
	mu       sync.Mutex
	perSec   rate.Limit
	burst    int
	limiters map[uuid.UUID]*rate.Limiter
}

func newSessionLimiter(perSec float64, burst int) *sessionLimiter {
	return &sessionLimiter{
		perSec:   rate.Limit(perSec),
		burst:    burst,
		limiters: make(map[uuid.UUID]*rate.Limiter),
	}
}

func (s *sessionLimiter) allow(sessionID uuid.UUID) bool {
	s.mu.Lock()
	lim, ok := s.limiters[sessionID]
	if !ok {
		lim = rate.NewLimiter(s.perSec, s.burst)
		s.limiters[sessionID] = lim
	}
	s.mu.Unlock()
	return lim.Allow()
}

func (s *sessionLimiter) clear(sessionID uuid.UUID) {
	s.mu.Lock()
	delete(s.limiters, sessionID)
	s.mu.Unlock()
}
