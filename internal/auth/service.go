package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const minPasswordLength = 8

// Service provides the login lifecycle and admin user management on top of
// the stores. All policy decisions are delegated to policy.go so the rules
// live in exactly one place.
type Service struct {
	users    UserStore
	sessions SessionStore
	tokens   *TokenService
	now      func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the auth service.
func NewService(users UserStore, sessions SessionStore, tokens *TokenService, opts ...ServiceOption) (*Service, error) {
	if users == nil || sessions == nil {
		return nil, errors.New("auth: user and session stores are required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	s := &Service{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// LoginResult bundles the signed token with the authenticated user.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	SessionID string
	User      AdminUser
}

// Login verifies credentials, creates a session and issues a token bound to
// it. Unknown email, wrong password and deactivated account all collapse to
// ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if !user.IsActive {
		return LoginResult{}, ErrInvalidCredentials
	}
	if !VerifyPassword(password, user.PasswordHash) {
		return LoginResult{}, ErrInvalidCredentials
	}

	sessionID := uuid.NewString()
	now := s.now().UTC()
	expiresAt := now.Add(s.tokens.TTL())
	if err := s.sessions.Create(ctx, user.ID, sessionID, expiresAt); err != nil {
		return LoginResult{}, fmt.Errorf("auth: create session: %w", err)
	}
	token, exp, err := s.tokens.Issue(user, sessionID)
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		return LoginResult{}, fmt.Errorf("auth: record last login: %w", err)
	}
	user.LastLogin = &now
	return LoginResult{Token: token, ExpiresAt: exp, SessionID: sessionID, User: user}, nil
}

// Logout revokes the session. Idempotent.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	return s.sessions.Delete(ctx, sessionID)
}

// TokenTTL exposes the token lifetime for cookie Max-Age.
func (s *Service) TokenTTL() time.Duration { return s.tokens.TTL() }

// CreateAdminParams carries fields for a new admin user.
type CreateAdminParams struct {
	Email       string
	Name        string
	Password    string
	Role        Role
	TenantID    *string
	NotifyForms NotifyPref
}

// CreateAdmin creates a user on behalf of actor, enforcing the role
// assignment table and the tenant scoping invariant at write time.
func (s *Service) CreateAdmin(ctx context.Context, actor Principal, p CreateAdminParams) (AdminUser, error) {
	if !CanManageUsers(actor) {
		return AdminUser{}, ErrForbidden
	}
	if !p.Role.Valid() {
		return AdminUser{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, p.Role)
	}
	if !CanAssignRole(actor.Role, p.Role) {
		return AdminUser{}, ErrForbidden
	}
	if err := ValidateTenantScope(p.Role, p.TenantID); err != nil {
		return AdminUser{}, err
	}
	email := strings.TrimSpace(strings.ToLower(p.Email))
	if email == "" || !strings.Contains(email, "@") {
		return AdminUser{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return AdminUser{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len(p.Password) < minPasswordLength {
		return AdminUser{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	notify := p.NotifyForms
	if notify == "" {
		notify = NotifyNone
	}
	if !notify.Valid() {
		return AdminUser{}, fmt.Errorf("%w: unknown notify preference %q", ErrInvalidInput, notify)
	}
	hash, err := HashPassword(p.Password)
	if err != nil {
		return AdminUser{}, err
	}
	return s.users.Create(ctx, AdminUser{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         p.Role,
		TenantID:     p.TenantID,
		NotifyForms:  notify,
		IsActive:     true,
	})
}

// ListAdmins returns users visible to actor. Non-superadmin actors never see
// superadmin accounts.
func (s *Service) ListAdmins(ctx context.Context, actor Principal) ([]AdminUser, error) {
	if !CanManageUsers(actor) {
		return nil, ErrForbidden
	}
	return s.users.List(ctx, actor.Role == RoleSuperadmin)
}

// GetAdmin loads a single user. A superadmin target is reported as not found
// to non-superadmin actors so its existence does not leak.
func (s *Service) GetAdmin(ctx context.Context, actor Principal, id int64) (AdminUser, error) {
	if !CanManageUsers(actor) {
		return AdminUser{}, ErrForbidden
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return AdminUser{}, err
	}
	if !CanViewUser(actor, user.Role) {
		return AdminUser{}, ErrNotFound
	}
	return user, nil
}

// AdminUpdate carries optional changes to a user; nil means unchanged.
type AdminUpdate struct {
	Email       *string
	Name        *string
	Password    *string
	Role        *Role
	TenantID    *string
	ClearTenant bool
	NotifyForms *NotifyPref
	IsActive    *bool
}

// UpdateAdmin edits a user on behalf of actor. The management policy is
// re-checked against both the target's current role and any new role, and
// the tenant invariant is validated against the resulting state. Deactivating
// a user revokes all of their sessions.
func (s *Service) UpdateAdmin(ctx context.Context, actor Principal, id int64, upd AdminUpdate) (AdminUser, error) {
	if !CanManageUsers(actor) {
		return AdminUser{}, ErrForbidden
	}
	target, err := s.users.GetByID(ctx, id)
	if err != nil {
		return AdminUser{}, err
	}
	if target.Role == RoleSuperadmin && actor.Role != RoleSuperadmin {
		return AdminUser{}, ErrNotFound
	}
	if !CanManageUser(actor, target.Role) {
		return AdminUser{}, ErrForbidden
	}

	store := UserUpdate{
		NotifyForms: upd.NotifyForms,
		IsActive:    upd.IsActive,
		ClearTenant: upd.ClearTenant,
		TenantID:    upd.TenantID,
	}
	newRole := target.Role
	if upd.Role != nil {
		if !upd.Role.Valid() {
			return AdminUser{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, *upd.Role)
		}
		if !CanAssignRole(actor.Role, *upd.Role) {
			return AdminUser{}, ErrForbidden
		}
		newRole = *upd.Role
		store.Role = upd.Role
	}
	newTenant := target.TenantID
	if upd.ClearTenant {
		newTenant = nil
	} else if upd.TenantID != nil {
		newTenant = upd.TenantID
	}
	if err := ValidateTenantScope(newRole, newTenant); err != nil {
		return AdminUser{}, err
	}
	if upd.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*upd.Email))
		if email == "" || !strings.Contains(email, "@") {
			return AdminUser{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		store.Email = &email
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return AdminUser{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
		}
		store.Name = &name
	}
	if upd.NotifyForms != nil && !upd.NotifyForms.Valid() {
		return AdminUser{}, fmt.Errorf("%w: unknown notify preference %q", ErrInvalidInput, *upd.NotifyForms)
	}
	if upd.Password != nil {
		if len(*upd.Password) < minPasswordLength {
			return AdminUser{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
		}
		hash, err := HashPassword(*upd.Password)
		if err != nil {
			return AdminUser{}, err
		}
		store.PasswordHash = &hash
	}

	updated, err := s.users.Update(ctx, id, store)
	if err != nil {
		return AdminUser{}, err
	}
	if upd.IsActive != nil && !*upd.IsActive {
		if err := s.sessions.DeleteForUser(ctx, id); err != nil {
			return AdminUser{}, fmt.Errorf("auth: revoke sessions: %w", err)
		}
	}
	return updated, nil
}

// DeleteAdmin removes a user. Self-deletion is forbidden unconditionally;
// the superadmin guard applies as on every other management operation.
// Session rows cascade with the user row.
func (s *Service) DeleteAdmin(ctx context.Context, actor Principal, id int64) error {
	if !CanManageUsers(actor) {
		return ErrForbidden
	}
	if actor.ID == id {
		return fmt.Errorf("%w: cannot delete own account", ErrForbidden)
	}
	target, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if target.Role == RoleSuperadmin && actor.Role != RoleSuperadmin {
		return ErrNotFound
	}
	if !CanManageUser(actor, target.Role) {
		return ErrForbidden
	}
	return s.users.Delete(ctx, id)
}

// Bootstrap creates the initial superadmin account when none exists yet.
// Called once at startup; a no-op on an already-seeded database.
func (s *Service) Bootstrap(ctx context.Context, email, name, password string) (bool, error) {
	count, err := s.users.CountByRole(ctx, RoleSuperadmin)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || len(password) < minPasswordLength {
		return false, fmt.Errorf("%w: bootstrap email and password (min %d chars) are required", ErrInvalidInput, minPasswordLength)
	}
	if strings.TrimSpace(name) == "" {
		name = "Superadmin"
	}
	hash, err := HashPassword(password)
	if err != nil {
		return false, err
	}
	_, err = s.users.Create(ctx, AdminUser{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         RoleSuperadmin,
		NotifyForms:  NotifyNone,
		IsActive:     true,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
