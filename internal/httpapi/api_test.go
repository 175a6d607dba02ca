package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"formgate.dev/internal/auth"
	"formgate.dev/internal/blob"
	"formgate.dev/internal/intake"
)

// --- in-memory stores ---

type memUsers struct {
	mu   sync.Mutex
	seq  int64
	byID map[int64]auth.AdminUser
}

func newMemUsers() *memUsers { return &memUsers{byID: make(map[int64]auth.AdminUser)} }

func (m *memUsers) Create(_ context.Context, u auth.AdminUser) (auth.AdminUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == u.Email {
			return auth.AdminUser{}, auth.ErrConflict
		}
	}
	m.seq++
	u.ID = m.seq
	u.CreatedAt = time.Now().UTC()
	m.byID[u.ID] = u
	return u, nil
}

func (m *memUsers) GetByID(_ context.Context, id int64) (auth.AdminUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return auth.AdminUser{}, auth.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (auth.AdminUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return auth.AdminUser{}, auth.ErrNotFound
}

func (m *memUsers) List(_ context.Context, includeSuperadmins bool) ([]auth.AdminUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []auth.AdminUser
	for _, u := range m.byID {
		if u.Role == auth.RoleSuperadmin && !includeSuperadmins {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (m *memUsers) Update(_ context.Context, id int64, upd auth.UserUpdate) (auth.AdminUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return auth.AdminUser{}, auth.ErrNotFound
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
	m.byID[id] = u
	return u, nil
}

func (m *memUsers) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return auth.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memUsers) TouchLastLogin(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.LastLogin = &at
	m.byID[id] = u
	return nil
}

func (m *memUsers) CountByRole(_ context.Context, role auth.Role) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, u := range m.byID {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

type memSessions struct {
	mu   sync.Mutex
	rows map[string]auth.Session
}

func newMemSessions() *memSessions { return &memSessions{rows: make(map[string]auth.Session)} }

func (m *memSessions) Create(_ context.Context, userID int64, sessionID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[sessionID] = auth.Session{ID: sessionID, UserID: userID, ExpiresAt: expiresAt}
	return nil
}

func (m *memSessions) Validate(_ context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[sessionID]
	if !ok {
		return false, nil
	}
	return s.ExpiresAt.After(time.Now()), nil
}

func (m *memSessions) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, sessionID)
	return nil
}

func (m *memSessions) DeleteForUser(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.rows {
		if s.UserID == userID {
			delete(m.rows, id)
		}
	}
	return nil
}

func (m *memSessions) CleanupExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := time.Now()
	for id, s := range m.rows {
		if !s.ExpiresAt.After(now) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

type memSubs struct {
	mu   sync.Mutex
	rows map[string]intake.Submission
}

func newMemSubs() *memSubs { return &memSubs{rows: make(map[string]intake.Submission)} }

func (m *memSubs) CreateDual(_ context.Context, sub intake.Submission) (intake.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[sub.ID] = sub
	agency := sub
	agency.ID = sub.ID + "-agency"
	agency.IsAgencyCopy = true
	m.rows[agency.ID] = agency
	return sub, nil
}

func (m *memSubs) List(_ context.Context, f intake.ListFilter) ([]intake.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []intake.Submission
	for _, sub := range m.rows {
		if sub.IsAgencyCopy != f.AgencyCopies {
			continue
		}
		if f.TenantID != nil && sub.TenantID != *f.TenantID {
			continue
		}
		if f.Kind != nil && sub.Kind != *f.Kind {
			continue
		}
		if sub.DeletedAt != nil && !f.IncludeDeleted {
			continue
		}
		out = append(out, sub)
	}
	return out, nil
}

func (m *memSubs) Get(_ context.Context, id string) (intake.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.rows[id]
	if !ok {
		return intake.Submission{}, intake.ErrNotFound
	}
	return sub, nil
}

func (m *memSubs) Update(_ context.Context, id string, upd intake.Update) (intake.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.rows[id]
	if !ok {
		return intake.Submission{}, intake.ErrNotFound
	}
	if upd.Status != nil {
		sub.Status = *upd.Status
	}
	if upd.Notes != nil {
		sub.Notes = *upd.Notes
	}
	m.rows[id] = sub
	return sub, nil
}

func (m *memSubs) SoftDelete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.rows[id]
	if !ok {
		return intake.ErrNotFound
	}
	now := time.Now().UTC()
	sub.DeletedAt = &now
	m.rows[id] = sub
	return nil
}

func (m *memSubs) Recipients(_ context.Context, _ string, _ intake.Kind) ([]intake.Recipient, error) {
	return nil, nil
}

// --- harness ---

type fixture struct {
	handler http.Handler
	users   *memUsers
	subs    *memSubs
}

func newTestAPI(t *testing.T) *fixture {
	t.Helper()
	users := newMemUsers()
	sessions := newMemSessions()
	subs := newMemSubs()

	tokens, err := auth.NewTokenService([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	svc, err := auth.NewService(users, sessions, tokens)
	if err != nil {
		t.Fatalf("auth.NewService: %v", err)
	}
	authn, err := auth.NewAuthenticator(tokens, sessions)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	blobs, err := blob.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("blob.NewFS: %v", err)
	}
	intakeSvc, err := intake.NewService(subs, blobs, nil, intake.WithSyncNotifications())
	if err != nil {
		t.Fatalf("intake.NewService: %v", err)
	}

	api := New(Config{
		Auth:    svc,
		Authn:   authn,
		Tokens:  tokens,
		Intake:  intakeSvc,
		Version: "test",
	})
	return &fixture{handler: api.Handler(), users: users, subs: subs}
}

func (f *fixture) seedUser(t *testing.T, email string, role auth.Role, tenant *string) auth.AdminUser {
	t.Helper()
	hash, err := auth.HashPassword("password123")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	u, err := f.users.Create(context.Background(), auth.AdminUser{
		Email: email, Name: "Test User", PasswordHash: hash,
		Role: role, TenantID: tenant, NotifyForms: auth.NotifyNone, IsActive: true,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func (f *fixture) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func (f *fixture) login(t *testing.T, email string) string {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email": email, "password": "password123",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected token in login response")
	}
	return resp.Token
}

func (f *fixture) postContact(t *testing.T, tenant, message string) string {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/v1/forms/contact", "", map[string]string{
		"tenant": tenant, "name": "Visitor", "email": "v@x.com", "message": message,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("contact form: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode contact response: %v", err)
	}
	return resp.ID
}

// --- tests ---

func TestLoginSetsCookieAndScopesAccess(t *testing.T) {
	f := newTestAPI(t)
	tenantA := "tenant-a"
	f.seedUser(t, "admin@a.com", auth.RoleAdmin, &tenantA)
	f.postContact(t, "tenant-a", "hello from a")
	f.postContact(t, "tenant-b", "hello from b")

	rr := f.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email": "admin@a.com", "password": "password123",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == tokenCookie {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value == "" || !cookie.HttpOnly {
		t.Fatalf("expected HttpOnly session cookie, got %+v", cookie)
	}

	// Cookie alone authenticates the review API.
	req := httptest.NewRequest(http.MethodGet, "/v1/submissions", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("cookie auth: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var list struct {
		Items []submissionResponse `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].TenantID != "tenant-a" {
		t.Fatalf("expected only tenant-a submissions, got %+v", list.Items)
	}

	// Another tenant's data is forbidden.
	token := cookie.Value
	rr = f.do(t, http.MethodGet, "/v1/submissions?tenant=tenant-b", token, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("cross-tenant: expected 403, got %d", rr.Code)
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	f := newTestAPI(t)
	tenantA := "tenant-a"
	f.seedUser(t, "admin@a.com", auth.RoleAdmin, &tenantA)

	cases := []map[string]string{
		{"email": "admin@a.com", "password": "wrong-password"},
		{"email": "ghost@a.com", "password": "password123"},
	}
	var bodies []string
	for _, c := range cases {
		rr := f.do(t, http.MethodPost, "/v1/auth/login", "", c)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
		var resp map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		bodies = append(bodies, fmt.Sprint(resp["error"]))
	}
	if bodies[0] != bodies[1] {
		t.Fatalf("login failure bodies differ: %q vs %q", bodies[0], bodies[1])
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newTestAPI(t)
	tenantA := "tenant-a"
	f.seedUser(t, "admin@a.com", auth.RoleAdmin, &tenantA)
	token := f.login(t, "admin@a.com")

	if rr := f.do(t, http.MethodGet, "/v1/auth/me", token, nil); rr.Code != http.StatusOK {
		t.Fatalf("me before logout: expected 200, got %d", rr.Code)
	}
	rr := f.do(t, http.MethodPost, "/v1/auth/logout", token, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	// The signature is still valid but the session is gone.
	if rr := f.do(t, http.MethodGet, "/v1/auth/me", token, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("me after logout: expected 401, got %d", rr.Code)
	}
}

func TestPublicFormsNeedNoAuth(t *testing.T) {
	f := newTestAPI(t)
	f.postContact(t, "tenant-a", "no auth needed")

	rr := f.do(t, http.MethodPost, "/v1/forms/contact", "", map[string]string{
		"tenant": "tenant-a", "name": "V", "email": "v@x.com",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing message: expected 400, got %d", rr.Code)
	}
}

func TestApplicationFormWithResume(t *testing.T) {
	f := newTestAPI(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("tenant", "tenant-a")
	_ = mw.WriteField("name", "Sam")
	_ = mw.WriteField("email", "sam@x.com")
	_ = mw.WriteField("position", "Designer")
	fw, err := mw.CreateFormFile("resume", "cv.pdf")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = fw.Write([]byte("%PDF-1.4 resume"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/forms/application", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("application: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	f.seedUser(t, "agency@x.com", auth.RoleAgency, nil)
	token := f.login(t, "agency@x.com")
	dl := f.do(t, http.MethodGet, "/v1/submissions/"+resp.ID+"/resume", token, nil)
	if dl.Code != http.StatusOK {
		t.Fatalf("resume download: expected 200, got %d: %s", dl.Code, dl.Body.String())
	}
	if !strings.HasPrefix(dl.Body.String(), "%PDF") {
		t.Fatalf("unexpected resume bytes: %q", dl.Body.String())
	}
}

func TestAdminManagementOverHTTP(t *testing.T) {
	f := newTestAPI(t)
	f.seedUser(t, "root@x.com", auth.RoleSuperadmin, nil)
	token := f.login(t, "root@x.com")

	rr := f.do(t, http.MethodPost, "/v1/admins", token, map[string]any{
		"email": "viewer@a.com", "name": "Viewer", "password": "password123",
		"role": "viewer", "tenant_id": "tenant-a",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create admin: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Location") == "" {
		t.Fatal("expected Location header")
	}
	var created userResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}

	// Viewer role cannot be created without a tenant.
	rr = f.do(t, http.MethodPost, "/v1/admins", token, map[string]any{
		"email": "viewer2@a.com", "name": "V2", "password": "password123", "role": "viewer",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("tenantless viewer: expected 400, got %d", rr.Code)
	}

	// Deactivate, then the target can no longer log in.
	rr = f.do(t, http.MethodPatch, fmt.Sprintf("/v1/admins/%d", created.ID), token, map[string]any{
		"is_active": false,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("deactivate: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	login := f.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email": "viewer@a.com", "password": "password123",
	})
	if login.Code != http.StatusUnauthorized {
		t.Fatalf("deactivated login: expected 401, got %d", login.Code)
	}

	// Self-deletion is forbidden.
	me := f.do(t, http.MethodGet, "/v1/auth/me", token, nil)
	var p auth.Principal
	if err := json.Unmarshal(me.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	rr = f.do(t, http.MethodDelete, fmt.Sprintf("/v1/admins/%d", p.ID), token, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("self delete: expected 403, got %d", rr.Code)
	}

	rr = f.do(t, http.MethodDelete, fmt.Sprintf("/v1/admins/%d", created.ID), token, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rr.Code)
	}
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	f := newTestAPI(t)
	for _, target := range []string{"/v1/submissions", "/v1/admins", "/v1/auth/me"} {
		rr := f.do(t, http.MethodGet, target, "", nil)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", target, rr.Code)
		}
	}
	rr := f.do(t, http.MethodGet, "/v1/submissions", "not-a-token", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: expected 401, got %d", rr.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	f := newTestAPI(t)
	for _, target := range []string{"/healthz", "/readyz", "/v1/info"} {
		rr := f.do(t, http.MethodGet, target, "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", target, rr.Code)
		}
	}
}
