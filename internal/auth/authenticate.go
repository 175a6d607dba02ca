package auth

import (
	"context"
	"errors"
	"fmt"
)

// Authenticator composes token verification with the session store. A token
// is accepted only if its signature and expiry check out AND its session row
// is still live; the second check is how logout and forced revocation take
// effect on otherwise-valid tokens.
type Authenticator struct {
	tokens   *TokenService
	sessions SessionStore
}

// NewAuthenticator wires the token service to the session store.
func NewAuthenticator(tokens *TokenService, sessions SessionStore) (*Authenticator, error) {
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	if sessions == nil {
		return nil, errors.New("auth: session store is required")
	}
	return &Authenticator{tokens: tokens, sessions: sessions}, nil
}

// Authenticate validates the bearer token and its backing session, returning
// the request principal. Every rejection surfaces as ErrUnauthenticated so
// callers cannot distinguish a malformed token from a revoked session.
// Storage failures propagate as-is and map to a 5xx upstream.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrUnauthenticated
	}
	claims, err := a.tokens.Verify(token)
	if err != nil {
		return Principal{}, ErrUnauthenticated
	}
	live, err := a.sessions.Validate(ctx, claims.ID)
	if err != nil {
		return Principal{}, fmt.Errorf("auth: validate session: %w", err)
	}
	if !live {
		return Principal{}, ErrUnauthenticated
	}
	principal, err := claims.Principal()
	if err != nil {
		return Principal{}, ErrUnauthenticated
	}
	return principal, nil
}
