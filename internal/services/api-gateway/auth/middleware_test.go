package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authtoken "github.com/NordCoder/Taskly/internal/auth"
)

func TestRequirePrivileged(t *testing.T) {
	codec, err := authtoken.NewCodec([]byte("mw-secret"))
	require.NoError(t, err)
	authn := authtoken.NewAuthenticator(codec, "")

	h := RequireAuth(authn)(RequirePrivileged(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := authtoken.ClaimsFromContext(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(claims.UserID))
	})))

	issue := func(role authtoken.Role) string {
		tok, err := codec.Issue(authtoken.Subject{UserID: "u1", Email: "u1@example.com", Role: role})
		require.NoError(t, err)
		return tok
	}

	cases := []struct {
		name  string
		token string
		code  int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"user", issue(authtoken.RoleUser), http.StatusForbidden},
		{"moderator", issue(authtoken.RoleModerator), http.StatusOK},
		{"admin", issue(authtoken.RoleAdmin), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.token != "" {
				req.AddCookie(&http.Cookie{Name: authtoken.CookieName, Value: tc.token})
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.code, rec.Code)
			if tc.code == http.StatusOK {
				assert.Equal(t, "u1", rec.Body.String())
			}
		})
	}
}

func TestRequirePrivileged_WithoutClaims(t *testing.T) {
	rec := httptest.NewRecorder()
	RequirePrivileged(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Unauthorized"}`, rec.Body.String())
}
