package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAuthenticateHappyPath(t *testing.T) {
	sessions := newMemSessionStore()
	tokens, _ := NewTokenService(testSecret)
	authn, err := NewAuthenticator(tokens, sessions)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}

	user := testUser()
	if err := sessions.Create(context.Background(), user.ID, "sess-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("create session: %v", err)
	}
	token, _, err := tokens.Issue(user, "sess-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	principal, err := authn.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if principal.ID != user.ID || principal.Role != RoleAdmin {
		t.Fatalf("unexpected principal: %+v", principal)
	}
	if principal.TenantID == nil || *principal.TenantID != "tenant-a" {
		t.Fatalf("tenant missing from principal: %v", principal.TenantID)
	}
}

func TestAuthenticateMissingToken(t *testing.T) {
	sessions := newMemSessionStore()
	tokens, _ := NewTokenService(testSecret)
	authn, _ := NewAuthenticator(tokens, sessions)

	if _, err := authn.Authenticate(context.Background(), ""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

// Revocation must take effect through the full pipeline while the raw token
// signature check alone keeps succeeding; the two layers are distinct.
func TestAuthenticateRevokedSession(t *testing.T) {
	sessions := newMemSessionStore()
	tokens, _ := NewTokenService(testSecret)
	authn, _ := NewAuthenticator(tokens, sessions)

	user := testUser()
	if err := sessions.Create(context.Background(), user.ID, "sess-2", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("create session: %v", err)
	}
	token, _, err := tokens.Issue(user, "sess-2")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := authn.Authenticate(context.Background(), token); err != nil {
		t.Fatalf("pre-revocation Authenticate: %v", err)
	}

	if err := sessions.Delete(context.Background(), "sess-2"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := tokens.Verify(token); err != nil {
		t.Fatalf("signature-only verify should still succeed: %v", err)
	}
	if _, err := authn.Authenticate(context.Background(), token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated after revocation, got %v", err)
	}
}

func TestAuthenticateExpiredSession(t *testing.T) {
	sessions := newMemSessionStore()
	tokens, _ := NewTokenService(testSecret)
	authn, _ := NewAuthenticator(tokens, sessions)

	user := testUser()
	// Session already past expiry even though the token itself is fresh.
	if err := sessions.Create(context.Background(), user.ID, "sess-3", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("create session: %v", err)
	}
	token, _, err := tokens.Issue(user, "sess-3")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := authn.Authenticate(context.Background(), token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for expired session, got %v", err)
	}
}

func TestSessionCleanupDoesNotAffectLiveSessions(t *testing.T) {
	sessions := newMemSessionStore()
	if err := sessions.Create(context.Background(), 1, "live", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := sessions.Create(context.Background(), 1, "dead", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}
	n, err := sessions.CleanupExpired(context.Background())
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 removed, got %d", n)
	}
	live, _ := sessions.Validate(context.Background(), "live")
	if !live {
		t.Fatalf("live session must survive cleanup")
	}
	dead, _ := sessions.Validate(context.Background(), "dead")
	if dead {
		t.Fatalf("expired session must be invalid")
	}
}
