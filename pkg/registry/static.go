package registry

import (
	"context"
	"sync"
)

// Static is an in-memory Client used in tests and local development.
type Static struct {
	mu    sync.RWMutex
	roles map[string]Role
}

// NewStatic builds a Static registry from an ss58 -> role map.
func NewStatic(roles map[string]Role) *Static {
	copied := make(map[string]Role, len(roles))
	for k, v := range roles {
		copied[k] = v
	}
	return &Static{roles: copied}
}

func (s *Static) IsRegistered(_ context.Context, ss58 string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.roles[ss58]
	return ok, nil
}

func (s *Static) RoleOf(_ context.Context, ss58 string) (Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[ss58]
	if !ok {
		return RoleNone, nil
	}
	return role, nil
}

// Set registers or updates an identity.
func (s *Static) Set(ss58 string, role Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[ss58] = role
}
