// Package registry exposes the external participant registry (the metagraph)
// to the rest of the system. The core only reads it: registration checks and
// role lookups. Ledger synchronization lives outside this module.
package registry

import (
	"context"
	"errors"
)

// Role is the participation level a registered identity holds.
type Role string

const (
	RoleNone      Role = "none"
	RoleValidator Role = "validator"
)

// ErrUnavailable is returned when the registry cannot be consulted. Callers
// must fail closed on it.
var ErrUnavailable = errors.New("registry: unavailable")

// Client answers registration and role questions about ss58 identities.
type Client interface {
	// IsRegistered reports whether the identity is a registered participant.
	IsRegistered(ctx context.Context, ss58 string) (bool, error)
	// RoleOf returns the role held by the identity. Unregistered identities
	// report RoleNone.
	RoleOf(ctx context.Context, ss58 string) (Role, error)
}
