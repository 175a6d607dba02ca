package httpapi

import (
	"net/http"
	"time"

	"formgate.dev/internal/audit"
	"formgate.dev/internal/auth"
	"formgate.dev/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID          int64           `json:"id"`
	Email       string          `json:"email"`
	Name        string          `json:"name"`
	Role        auth.Role       `json:"role"`
	TenantID    *string         `json:"tenant_id"`
	NotifyForms auth.NotifyPref `json:"notify_forms"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	LastLogin   *time.Time      `json:"last_login,omitempty"`
}

func toUserResponse(u auth.AdminUser) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Role:        u.Role,
		TenantID:    u.TenantID,
		NotifyForms: u.NotifyForms,
		IsActive:    u.IsActive,
		CreatedAt:   u.CreatedAt,
		LastLogin:   u.LastLogin,
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	ip := clientIP(r)
	if a.limiter != nil {
		ok, err := a.limiter.Allow(r.Context(), ip)
		if err != nil {
			obs.LogRequest(map[string]any{
				"level": "warn", "msg": "login_limiter_unavailable", "error": err.Error(),
			})
		}
		if !ok {
			obs.LoginAttempted("limited")
			w.Header().Set("Retry-After", "60")
			writeError(w, r, http.StatusTooManyRequests, "too many login attempts")
			return
		}
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	result, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		obs.LoginAttempted("denied")
		handleAuthError(w, r, err)
		return
	}
	obs.LoginAttempted("ok")
	if a.limiter != nil {
		a.limiter.Reset(r.Context(), ip)
	}
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id": result.User.ID,
		"email":   result.User.Email,
	})

	a.setSessionCookie(w, result.Token, int(a.auth.TokenTTL().Seconds()))
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      result.Token,
		"expires_at": result.ExpiresAt.UTC().Format(time.RFC3339),
		"user":       toUserResponse(result.User),
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	// The middleware has already authenticated this token; re-verify only to
	// recover the session id to revoke.
	claims, err := a.tokens.Verify(tokenFromRequest(r))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := a.auth.Logout(r.Context(), claims.ID); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{
		"session_id": claims.ID,
	})
	a.setSessionCookie(w, "", -1)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, principalFrom(r))
}

func (a *API) setSessionCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
