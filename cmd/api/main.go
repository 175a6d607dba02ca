package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"formgate.dev/internal/auth"
	"formgate.dev/internal/blob"
	"formgate.dev/internal/httpapi"
	"formgate.dev/internal/intake"
	"formgate.dev/internal/kv"
	"formgate.dev/internal/mail"
	"formgate.dev/internal/obs"
	"formgate.dev/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("FORMGATE_PG_DSN")
	if dsn == "" {
		log.Fatal("FORMGATE_PG_DSN is required")
	}
	secret := os.Getenv("FORMGATE_TOKEN_SECRET")

	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	tokens, err := auth.NewTokenService([]byte(secret))
	if err != nil {
		log.Fatalf("token service: %v", err)
	}
	users := store.Users()
	sessions := store.Sessions()

	authSvc, err := auth.NewService(users, sessions, tokens)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	authn, err := auth.NewAuthenticator(tokens, sessions)
	if err != nil {
		log.Fatalf("authenticator: %v", err)
	}

	blobs, err := blob.NewFS(envDefault("FORMGATE_BLOB_DIR", "data/blobs"))
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	var notifier mail.Notifier
	if host := os.Getenv("FORMGATE_SMTP_HOST"); host != "" {
		notifier, err = mail.NewSMTP(
			host,
			envInt("FORMGATE_SMTP_PORT", 587),
			os.Getenv("FORMGATE_SMTP_USER"),
			os.Getenv("FORMGATE_SMTP_PASSWORD"),
			os.Getenv("FORMGATE_SMTP_FROM"),
		)
		if err != nil {
			log.Fatalf("smtp notifier: %v", err)
		}
	}

	intakeSvc, err := intake.NewService(store.Submissions(), blobs, notifier)
	if err != nil {
		log.Fatalf("intake service: %v", err)
	}

	limiter, err := kv.NewLoginLimiter(
		os.Getenv("FORMGATE_REDIS_URL"),
		int64(envInt("FORMGATE_LOGIN_LIMIT", 10)),
		time.Duration(envInt("FORMGATE_LOGIN_WINDOW_SEC", 60))*time.Second,
	)
	if err != nil {
		log.Fatalf("login limiter: %v", err)
	}
	defer limiter.Close()

	// Seed the first superadmin on an empty database.
	if email := os.Getenv("FORMGATE_BOOTSTRAP_EMAIL"); email != "" {
		created, err := authSvc.Bootstrap(context.Background(), email,
			os.Getenv("FORMGATE_BOOTSTRAP_NAME"),
			os.Getenv("FORMGATE_BOOTSTRAP_PASSWORD"))
		if err != nil {
			log.Fatalf("bootstrap superadmin: %v", err)
		}
		if created {
			log.Printf("bootstrap superadmin %s created", email)
		}
	}

	api := httpapi.New(httpapi.Config{
		Auth:          authSvc,
		Authn:         authn,
		Tokens:        tokens,
		Intake:        intakeSvc,
		Limiter:       limiter,
		Ready:         httpapi.ReadyProbe{DB: store.DB()},
		Version:       version,
		SecureCookies: os.Getenv("FORMGATE_ENV") == "production",
		CORSOrigins:   splitList(os.Getenv("FORMGATE_CORS_ORIGINS")),
	})

	srv := &http.Server{
		Addr:              envDefault("FORMGATE_ADDR", ":8080"),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Dead sessions are only hygiene; validation already rejects them.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sweepSessions(sweepCtx, sessions, time.Duration(envInt("FORMGATE_SESSION_SWEEP_SEC", 3600))*time.Second)

	log.Printf("Starting formgate-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}

func sweepSessions(ctx context.Context, sessions *pg.Sessions, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.CleanupExpired(ctx)
			if err != nil {
				obs.LogRequest(map[string]any{
					"level": "error", "msg": "session_sweep_failed", "error": err.Error(),
				})
				continue
			}
			if n > 0 {
				obs.LogRequest(map[string]any{
					"level": "info", "msg": "session_sweep", "removed": n,
				})
			}
		}
	}
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("%s must be an integer, got %q", key, v)
	}
	return n
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
