package auth

import (
	"context"
	"time"
)

// UserStore manages admin user persistence.
type UserStore interface {
	Create(ctx context.Context, u AdminUser) (AdminUser, error)
	GetByID(ctx context.Context, id int64) (AdminUser, error)
	GetByEmail(ctx context.Context, email string) (AdminUser, error)
	// List returns users ordered by creation time. Superadmin rows are
	// omitted unless includeSuperadmins is set.
	List(ctx context.Context, includeSuperadmins bool) ([]AdminUser, error)
	Update(ctx context.Context, id int64, upd UserUpdate) (AdminUser, error)
	Delete(ctx context.Context, id int64) error
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
	CountByRole(ctx context.Context, role Role) (int64, error)
}

// UserUpdate carries optional field changes; nil means leave unchanged.
// ClearTenant removes the tenant scope (TenantID is ignored when set).
type UserUpdate struct {
	Email        *string
	Name         *string
	PasswordHash *string
	Role         *Role
	TenantID     *string
	ClearTenant  bool
	NotifyForms  *NotifyPref
	IsActive     *bool
}

// SessionStore manages the durable session records backing token revocation.
type SessionStore interface {
	Create(ctx context.Context, userID int64, sessionID string, expiresAt time.Time) error
	// Validate reports whether the session exists and has not expired.
	// Missing and expired rows are indistinguishable to callers.
	Validate(ctx context.Context, sessionID string) (bool, error)
	// Delete is idempotent; removing an unknown session is not an error.
	Delete(ctx context.Context, sessionID string) error
	DeleteForUser(ctx context.Context, userID int64) error
	// CleanupExpired bulk-deletes dead sessions. Storage hygiene only; it is
	// never required for correctness because Validate already treats expired
	// rows as invalid.
	CleanupExpired(ctx context.Context) (int64, error)
}
