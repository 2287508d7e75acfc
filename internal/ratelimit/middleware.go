package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

type MiddlewareConfig struct {
	Name       string // key namespace, e.g. "signin"
	Limit      int
	Window     time.Duration
	TrustProxy bool // take the client address from X-Forwarded-For / X-Real-IP
}

// Middleware rejects requests over the limit with 429 and a Retry-After
// header. Limiter failures let the request through.
func Middleware(l Limiter, cfg MiddlewareConfig, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "ratelimit"), zap.String("limit_name", cfg.Name))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := cfg.Name + ":" + ClientIP(r, cfg.TrustProxy)
			res, err := l.Check(r.Context(), key, cfg.Limit, cfg.Window)
			if err != nil {
				log.Warn("rate limiter unavailable, allowing request", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			if !res.Allowed {
				log.Info("rate limited", zap.String("key", key), zap.Duration("retry_after", res.RetryAfter))
				w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfterSeconds()))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"error":   "Too many attempts. Please try again later.",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
			return xr
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
