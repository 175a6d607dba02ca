package auth

import (
	"fmt"
	"strings"
)

// assignableRoles is the authoritative table of which roles an actor may
// assign when creating or editing users. Endpoints must consult this table
// instead of comparing role strings themselves.
var assignableRoles = map[Role]map[Role]bool{
	RoleSuperadmin: {RoleSuperadmin: true, RoleAgency: true, RoleAdmin: true, RoleViewer: true},
	RoleAgency:     {RoleAgency: true, RoleAdmin: true, RoleViewer: true},
	RoleAdmin:      {RoleAdmin: true, RoleViewer: true},
	RoleViewer:     {},
}

// ParseRole normalizes and validates a raw role string.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.TrimSpace(strings.ToLower(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, raw)
	}
	return role, nil
}

// CanAccessTenant reports whether the principal may see data belonging to
// tenantID. Agency accounts see every tenant; everyone else only their own.
// Superadmin is deliberately not special-cased here: cross-tenant user
// administration and cross-tenant submission visibility are distinct
// privileges.
func CanAccessTenant(p Principal, tenantID string) bool {
	if p.Role == RoleAgency {
		return true
	}
	return p.TenantID != nil && *p.TenantID == tenantID
}

// CanModify reports whether the principal may mutate data at all. Viewers
// are read-only.
func CanModify(p Principal) bool {
	return p.Role != RoleViewer
}

// CanManageUsers reports whether the principal may reach user-management
// operations at all.
func CanManageUsers(p Principal) bool {
	return p.Role != RoleViewer
}

// CanAssignRole reports whether an actor with the given role may assign
// target to a new or edited user.
func CanAssignRole(actor, target Role) bool {
	return assignableRoles[actor][target]
}

// CanManageUser reports whether the actor may edit or delete a user holding
// targetRole. Superadmin users are untouchable by everyone else; this check
// runs on every user-management operation, not only at the entry gate.
func CanManageUser(actor Principal, targetRole Role) bool {
	if targetRole == RoleSuperadmin && actor.Role != RoleSuperadmin {
		return false
	}
	return CanAssignRole(actor.Role, targetRole)
}

// CanViewUser reports whether the actor may see a user in listings and
// lookups. Only the superadmin guard applies to reads.
func CanViewUser(actor Principal, targetRole Role) bool {
	if targetRole == RoleSuperadmin && actor.Role != RoleSuperadmin {
		return false
	}
	return CanManageUsers(actor)
}

// ValidateTenantScope enforces the write-time invariant that tenant-scoped
// roles carry a tenant id and unscoped roles do not. Empty-string tenant ids
// are rejected outright; the schema is null-only.
func ValidateTenantScope(role Role, tenantID *string) error {
	if tenantID != nil && strings.TrimSpace(*tenantID) == "" {
		return fmt.Errorf("%w: tenant_id must be null or non-empty", ErrInvalidInput)
	}
	if role.RequiresTenant() {
		if tenantID == nil {
			return fmt.Errorf("%w: role %s requires a tenant_id", ErrInvalidInput, role)
		}
		return nil
	}
	if tenantID != nil {
		return fmt.Errorf("%w: role %s must not be scoped to a tenant", ErrInvalidInput, role)
	}
	return nil
}
