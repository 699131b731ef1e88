// Package auth carries the verified caller identity through request contexts.
// Verification itself happens upstream; this package only transports the result.
package auth

import (
	"context"
	"errors"
	"regexp"
)

// Role is the caller's role inside the tenant.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleCashier Role = "CASHIER"
	RoleWaiter  Role = "WAITER"
	RoleKitchen Role = "KITCHEN"
)

// Identity is the verified {tenant, role} pair for a call.
type Identity struct {
	TenantID string
	UserID   string
	Role     Role
}

// ErrNoIdentity is returned when a context carries no tenant identity.
var ErrNoIdentity = errors.New("no tenant identity in context")

var tenantPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_]{0,47}$`)

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored in ctx.
func FromContext(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	if !ok || id.TenantID == "" {
		return Identity{}, ErrNoIdentity
	}
	return id, nil
}

// ValidTenantID reports whether id can be used as a schema suffix.
func ValidTenantID(id string) bool {
	return tenantPattern.MatchString(id)
}

// Actor returns a short label for audit columns such as changed_by.
func (id Identity) Actor() string {
	if id.UserID != "" {
		return id.UserID
	}
	if id.Role != "" {
		return string(id.Role)
	}
	return "system"
}
