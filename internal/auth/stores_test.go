package auth

import (
	"context"
	"sync"
	"time"
)

// In-memory store fakes shared across the package tests.

type memUserStore struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]AdminUser
}

func newMemUserStore() *memUserStore {
	return &memUserStore{nextID: 1, users: make(map[int64]AdminUser)}
}

func (m *memUserStore) Create(_ context.Context, u AdminUser) (AdminUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return AdminUser{}, ErrConflict
		}
	}
	u.ID = m.nextID
	m.nextID++
	u.CreatedAt = time.Now().UTC()
	m.users[u.ID] = u
	return u, nil
}

func (m *memUserStore) GetByID(_ context.Context, id int64) (AdminUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return AdminUser{}, ErrNotFound
	}
	return u, nil
}

func (m *memUserStore) GetByEmail(_ context.Context, email string) (AdminUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return AdminUser{}, ErrNotFound
}

func (m *memUserStore) List(_ context.Context, includeSuperadmins bool) ([]AdminUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AdminUser
	for _, u := range m.users {
		if u.Role == RoleSuperadmin && !includeSuperadmins {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (m *memUserStore) Update(_ context.Context, id int64, upd UserUpdate) (AdminUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return AdminUser{}, ErrNotFound
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.ClearTenant {
		u.TenantID = nil
	} else if upd.TenantID != nil {
		u.TenantID = upd.TenantID
	}
	if upd.NotifyForms != nil {
		u.NotifyForms = *upd.NotifyForms
	}
	if upd.IsActive != nil {
		u.IsActive = *upd.IsActive
	}
	m.users[id] = u
	return u, nil
}

func (m *memUserStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *memUserStore) TouchLastLogin(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.LastLogin = &at
	m.users[id] = u
	return nil
}

func (m *memUserStore) CountByRole(_ context.Context, role Role) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, u := range m.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

type memSessionStore struct {
	mu       sync.Mutex
	now      func() time.Time
	sessions map[string]Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{now: time.Now, sessions: make(map[string]Session)}
}

func (m *memSessionStore) Create(_ context.Context, userID int64, sessionID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = Session{ID: sessionID, UserID: userID, ExpiresAt: expiresAt, CreatedAt: m.now()}
	return nil
}

func (m *memSessionStore) Validate(_ context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return false, nil
	}
	return s.ExpiresAt.After(m.now()), nil
}

func (m *memSessionStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

func (m *memSessionStore) DeleteForUser(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *memSessionStore) CleanupExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if !s.ExpiresAt.After(m.now()) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func strptr(s string) *string { return &s }
