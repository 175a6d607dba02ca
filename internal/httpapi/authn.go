package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"formgate.dev/internal/auth"
)

const (
	authHeader  = "Authorization"
	bearer      = "Bearer "
	tokenCookie = "auth_token"
)

var publicPaths = []string{
	"/v1/auth/login",
	"/v1/forms/contact",
	"/v1/forms/application",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		principal, err := a.authn.Authenticate(r.Context(), tokenFromRequest(r))
		if err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) {
				writeError(w, r, http.StatusUnauthorized, "authentication required")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// tokenFromRequest prefers the Authorization header over the session cookie
// so API clients can override a stale browser cookie.
func tokenFromRequest(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get(authHeader))
	if strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		if token := strings.TrimSpace(header[len(bearer):]); token != "" {
			return token
		}
	}
	if c, err := r.Cookie(tokenCookie); err == nil {
		return c.Value
	}
	return ""
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

func principalFrom(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}
