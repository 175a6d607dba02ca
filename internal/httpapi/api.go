// Package httpapi is the HTTP layer: routing, authentication middleware and
// request/response mapping around the auth and intake services.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"formgate.dev/internal/auth"
	"formgate.dev/internal/intake"
	"formgate.dev/internal/kv"
	"formgate.dev/internal/obs"
)

// ReadyProbe reports whether the service can reach its database.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config carries the API collaborators.
type Config struct {
	Auth    *auth.Service
	Authn   *auth.Authenticator
	Tokens  *auth.TokenService
	Intake  *intake.Service
	Limiter *kv.LoginLimiter

	Ready         ReadyProbe
	Version       string
	SecureCookies bool
	CORSOrigins   []string
}

// API is the HTTP layer.
type API struct {
	mux     *http.ServeMux
	auth    *auth.Service
	authn   *auth.Authenticator
	tokens  *auth.TokenService
	intake  *intake.Service
	limiter *kv.LoginLimiter

	ready         ReadyProbe
	version       string
	secureCookies bool
	corsOrigins   []string
}

func New(cfg Config) *API {
	a := &API{
		mux:           http.NewServeMux(),
		auth:          cfg.Auth,
		authn:         cfg.Authn,
		tokens:        cfg.Tokens,
		intake:        cfg.Intake,
		limiter:       cfg.Limiter,
		ready:         cfg.Ready,
		version:       cfg.Version,
		secureCookies: cfg.SecureCookies,
		corsOrigins:   cfg.CORSOrigins,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.healthz)
	a.mux.HandleFunc("/readyz", a.readyz)
	a.mux.HandleFunc("/v1/info", a.info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// public form intake
	a.mux.HandleFunc("/v1/forms/contact", a.handleContactForm)
	a.mux.HandleFunc("/v1/forms/application", a.handleApplicationForm)

	// session lifecycle
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)

	// authenticated review API
	a.mux.HandleFunc("/v1/submissions", a.handleSubmissions)
	a.mux.HandleFunc("/v1/submissions/", a.handleSubmissionResource)
	a.mux.HandleFunc("/v1/admins", a.handleAdmins)
	a.mux.HandleFunc("/v1/admins/", a.handleAdminResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = CORS(h, a.corsOrigins)
	h = SecurityHeaders(h)
	h = MaxBodyBytes(h, 10<<20)
	h = RateLimit(h, 20, 10)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "formgate-api",
		"version": a.version,
	})
}

func (a *API) readyz(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "formgate-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
