package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	authtoken "github.com/NordCoder/Taskly/internal/auth"
	config "github.com/NordCoder/Taskly/internal/config/api-gateway"
	"github.com/NordCoder/Taskly/internal/obs"
	"github.com/NordCoder/Taskly/internal/ratelimit"
	"github.com/NordCoder/Taskly/internal/services/api-gateway/auth"
	"github.com/NordCoder/Taskly/internal/services/api-gateway/tasks"
	"github.com/NordCoder/Taskly/internal/services/api-gateway/users"
)

func buildHTTPServer(cfg *config.Config, logger *zap.Logger, st *stores, limiter ratelimit.Limiter) (*http.Server, error) {
	codec, err := authtoken.NewCodec([]byte(cfg.Auth.Secret), authtoken.WithTTL(cfg.Auth.TokenTTL))
	if err != nil {
		return nil, err
	}
	authn := authtoken.NewAuthenticator(codec, cfg.Auth.CookieName)
	cookies := authtoken.NewCookieTransport(authtoken.CookieOptions{
		Name:   cfg.Auth.CookieName,
		Domain: cfg.Auth.CookieDomain,
		Secure: cfg.CookieSecure(),
		MaxAge: cfg.Auth.TokenTTL,
	})

	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	authUC, err := auth.NewUseCase(st.users, st.outbox, st.tx, hasher, auth.Config{
		Codec:                 codec,
		Lockout:               cfg.Auth.LockoutPolicy(),
		VerifyTTL:             cfg.Auth.VerifyTTL,
		ResetTTL:              cfg.Auth.ResetTTL,
		BaseURL:               cfg.App.BaseURL,
		SkipEmailVerification: !cfg.Auth.RequireVerifiedEmail,
		DevMode:               cfg.App.IsDevelopment(),
		Logger:                logger,
	})
	if err != nil {
		return nil, err
	}

	router := mux.NewRouter()
	router.Use(obs.TraceMiddleware("api-gateway"), obs.HTTPMetrics)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		auth.WriteError(w, http.StatusNotFound, "Not found")
	})
	router.HandleFunc("/healthz", obs.HealthHandler(st.health)).Methods(http.MethodGet)

	auth.NewServer(authUC, auth.Opts{
		Logger:        logger,
		Authenticator: authn,
		Cookies:       cookies,
		Limiter:       limiter,
		SignInLimit: ratelimit.MiddlewareConfig{
			Name:       "signin",
			Limit:      cfg.RateLimit.SignInLimit,
			Window:     cfg.RateLimit.SignInWindow,
			TrustProxy: cfg.Server.TrustProxy,
		},
	}).Register(router)
	users.NewServer(logger, users.New(st.users, hasher), authn).Register(router)
	tasks.NewServer(logger, tasks.New(st.tasks), authn).Register(router)

	return &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           cors(cfg.Server.CORSOrigins)(router),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}, nil
}

// cors answers preflight requests itself; credentials are allowed so the
// session cookie travels with cross-origin calls from listed origins.
func cors(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" && (allowed[origin] || allowed["*"]) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				h.Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func serveHTTP(srv *http.Server, logger *zap.Logger) error {
	logger.Info("http listening", zap.String("addr", srv.Addr))
	return srv.ListenAndServe()
}
