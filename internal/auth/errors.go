package auth

import "errors"

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
	ErrInvalidInput = errors.New("auth: invalid input")

	// ErrInvalidCredentials covers unknown email, wrong password and
	// deactivated accounts alike so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrInvalidToken indicates the token failed signature or expiry checks.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrUnauthenticated covers every rejection of the request pipeline:
	// missing token, invalid token and revoked session are indistinguishable
	// to the caller.
	ErrUnauthenticated = errors.New("auth: authentication required")

	// ErrForbidden means the caller authenticated but lacks the role or
	// tenant scope for the operation.
	ErrForbidden = errors.New("auth: forbidden")
)
