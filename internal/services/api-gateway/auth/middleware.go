package auth

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	authtoken "github.com/NordCoder/Taskly/internal/auth"
)

// Response is the JSON envelope shared by gateway handlers.
type Response struct {
	Success         bool   `json:"success"`
	Message         string `json:"message,omitempty"`
	Error           string `json:"error,omitempty"`
	User            any    `json:"user,omitempty"`
	Token           string `json:"token,omitempty"`
	VerificationURL string `json:"verificationUrl,omitempty"`
	ResetURL        string `json:"resetUrl,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, Response{Success: false, Error: msg})
}

// RequireAuth rejects requests without a valid session and stores the
// verified claims in the request context.
func RequireAuth(a *authtoken.Authenticator) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := a.Authenticate(r)
			if !ok {
				WriteError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(authtoken.WithClaims(r.Context(), claims)))
		})
	}
}

// RequirePrivileged must run after RequireAuth.
func RequirePrivileged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := authtoken.ClaimsFromContext(r.Context())
		if !ok {
			WriteError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if !authtoken.IsPrivileged(claims.Role) {
			WriteError(w, http.StatusForbidden, "Forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}
