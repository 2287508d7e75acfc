package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	authtoken "github.com/NordCoder/Taskly/internal/auth"
	"github.com/NordCoder/Taskly/internal/ratelimit"
)

type testResponse struct {
	Success         bool            `json:"success"`
	Message         string          `json:"message"`
	Error           string          `json:"error"`
	User            json.RawMessage `json:"user"`
	Token           string          `json:"token"`
	VerificationURL string          `json:"verificationUrl"`
	ResetURL        string          `json:"resetUrl"`
}

func newTestRouter(t *testing.T, f *fixture, signInLimit int) *mux.Router {
	t.Helper()
	srv := NewServer(f.uc, Opts{
		Authenticator: authtoken.NewAuthenticator(f.codec, ""),
		Cookies:       authtoken.NewCookieTransport(authtoken.CookieOptions{}),
		Limiter:       ratelimit.NewMemory(time.Minute),
		SignInLimit:   ratelimit.MiddlewareConfig{Limit: signInLimit, Window: 15 * time.Minute},
	})
	r := mux.NewRouter()
	srv.Register(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, mutate ...func(*http.Request)) (*httptest.ResponseRecorder, testResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out testResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == authtoken.CookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", authtoken.CookieName)
	return nil
}

func TestServer_SignInAndMe(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ann@example.com", goodPassword, true, authtoken.RoleUser)
	r := newTestRouter(t, f, 100)

	rec, body := do(t, r, http.MethodPost, "/v1/auth/sign-in",
		`{"email":"ann@example.com","password":"`+goodPassword+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)
	assert.NotEmpty(t, body.Token)
	assert.Contains(t, string(body.User), `"email":"ann@example.com"`)
	assert.NotContains(t, string(body.User), "PasswordHash")

	c := sessionCookie(t, rec)
	assert.Equal(t, body.Token, c.Value)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, 604800, c.MaxAge)
	assert.Equal(t, "/", c.Path)

	rec, body = do(t, r, http.MethodGet, "/v1/auth/me", "", func(req *http.Request) { req.AddCookie(c) })
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(body.User), `"email":"ann@example.com"`)

	rec, _ = do(t, r, http.MethodGet, "/v1/auth/me", "", func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+c.Value)
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = do(t, r, http.MethodGet, "/v1/auth/me", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, body.Success)
	assert.Equal(t, "Unauthorized", body.Error)

	rec, _ = do(t, r, http.MethodGet, "/v1/auth/me", "", func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+c.Value+"x")
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_SignInErrors(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "bob@example.com", goodPassword, true, authtoken.RoleUser)
	f.seed(t, "cy@example.com", goodPassword, false, authtoken.RoleUser)
	r := newTestRouter(t, f, 100)

	cases := []struct {
		name string
		body string
		code int
		msg  string
	}{
		{"bad json", `{`, http.StatusBadRequest, "Invalid request body"},
		{"missing password", `{"email":"bob@example.com"}`, http.StatusBadRequest, "Email and password are required"},
		{"unknown user", `{"email":"zed@example.com","password":"x"}`, http.StatusUnauthorized, "Invalid credentials"},
		{"wrong password", `{"email":"bob@example.com","password":"x"}`, http.StatusUnauthorized, "Invalid credentials"},
		{"unverified", `{"email":"cy@example.com","password":"` + goodPassword + `"}`, http.StatusForbidden, "Please verify your email before signing in"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := do(t, r, http.MethodPost, "/v1/auth/sign-in", tc.body)
			assert.Equal(t, tc.code, rec.Code)
			assert.False(t, body.Success)
			assert.Equal(t, tc.msg, body.Error)
			assert.Empty(t, rec.Result().Cookies())
		})
	}
}

func TestServer_LockedAccount(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "dee@example.com", goodPassword, true, authtoken.RoleUser)
	r := newTestRouter(t, f, 100)

	for i := 0; i < 5; i++ {
		rec, _ := do(t, r, http.MethodPost, "/v1/auth/sign-in", `{"email":"dee@example.com","password":"nope"}`)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec, body := do(t, r, http.MethodPost, "/v1/auth/sign-in",
		`{"email":"dee@example.com","password":"`+goodPassword+`"}`)
	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.Contains(t, body.Error, "locked")
}

func TestServer_SignInRateLimited(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(t, f, 2)

	for i := 0; i < 2; i++ {
		rec, _ := do(t, r, http.MethodPost, "/v1/auth/sign-in", `{"email":"x@example.com","password":"y"}`)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec, body := do(t, r, http.MethodPost, "/v1/auth/sign-in", `{"email":"x@example.com","password":"y"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.False(t, body.Success)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// other routes are not limited
	rec, _ = do(t, r, http.MethodPost, "/v1/auth/sign-out", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_SignOutClearsCookie(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(t, f, 100)

	rec, body := do(t, r, http.MethodPost, "/v1/auth/sign-out", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)

	raw := rec.Header().Get("Set-Cookie")
	assert.Contains(t, raw, authtoken.CookieName+"=;")
	assert.Contains(t, raw, "Max-Age=0")
	assert.Contains(t, raw, "HttpOnly")
	assert.Contains(t, raw, "SameSite=Lax")
}

func TestServer_SignUpAndVerify(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(t, f, 100)

	rec, body := do(t, r, http.MethodPost, "/v1/auth/sign-up",
		`{"name":"Eve","email":"eve@example.com","password":"`+goodPassword+`","confirmPassword":"`+goodPassword+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, body.Error)
	require.NotEmpty(t, body.VerificationURL)
	tok := tokenFromLink(t, body.VerificationURL)

	rec, _ = do(t, r, http.MethodPost, "/v1/auth/sign-up",
		`{"name":"Eve","email":"eve@example.com","password":"`+goodPassword+`","confirmPassword":"`+goodPassword+`"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, body = do(t, r, http.MethodPost, "/v1/auth/sign-up",
		`{"name":"Eve","email":"eve2@example.com","password":"short","confirmPassword":"short"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body.Error, "Password is too weak")

	rec, body = do(t, r, http.MethodGet, "/v1/auth/verify-email?token=deadbeef", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid or expired token", body.Error)

	rec, body = do(t, r, http.MethodGet, "/v1/auth/verify-email?token="+tok, "")
	require.Equal(t, http.StatusOK, rec.Code, body.Error)
	assert.Contains(t, string(body.User), `"emailVerified":true`)
}

func TestServer_PasswordReset(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "fin@example.com", goodPassword, true, authtoken.RoleUser)
	r := newTestRouter(t, f, 100)

	rec, body := do(t, r, http.MethodPost, "/v1/auth/request-password-reset", `{"email":"fin@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, body.ResetURL)
	tok := tokenFromLink(t, body.ResetURL)

	rec, body = do(t, r, http.MethodPost, "/v1/auth/reset-password",
		`{"token":"`+tok+`","newPassword":"`+otherPassword+`","confirmPassword":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Passwords do not match", body.Error)

	rec, _ = do(t, r, http.MethodPost, "/v1/auth/reset-password",
		`{"token":"`+tok+`","newPassword":"`+otherPassword+`","confirmPassword":"`+otherPassword+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, r, http.MethodPost, "/v1/auth/sign-in",
		`{"email":"fin@example.com","password":"`+otherPassword+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_SendVerification(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "gil@example.com", goodPassword, true, authtoken.RoleUser)
	r := newTestRouter(t, f, 100)

	rec, body := do(t, r, http.MethodPost, "/v1/auth/send-verification", `{"email":"nobody@example.com"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)
	assert.Empty(t, body.VerificationURL)

	rec, body = do(t, r, http.MethodPost, "/v1/auth/send-verification", `{"email":"gil@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email is already verified", body.Error)

	rec, _ = do(t, r, http.MethodPost, "/v1/auth/send-verification", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_EmailOnlyLoggedAtDebug(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ann@example.com", goodPassword, true, authtoken.RoleUser)

	core, logs := observer.New(zapcore.InfoLevel)
	srv := NewServer(f.uc, Opts{
		Logger:        zap.New(core),
		Authenticator: authtoken.NewAuthenticator(f.codec, ""),
		Cookies:       authtoken.NewCookieTransport(authtoken.CookieOptions{}),
		Limiter:       ratelimit.NewMemory(time.Minute),
		SignInLimit:   ratelimit.MiddlewareConfig{Limit: 100, Window: 15 * time.Minute},
	})
	r := mux.NewRouter()
	srv.Register(r)

	rec, _ := do(t, r, http.MethodPost, "/v1/auth/sign-in",
		`{"email":"ann@example.com","password":"`+goodPassword+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, r, http.MethodPost, "/v1/auth/sign-up",
		`{"name":"Bo","email":"bo@example.com","password":"`+goodPassword+`","confirmPassword":"`+goodPassword+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.NotZero(t, logs.FilterMessage("auth.signin").Len())
	require.NotZero(t, logs.FilterMessage("auth.signup").Len())
	for _, e := range logs.All() {
		for k, v := range e.ContextMap() {
			assert.NotEqual(t, "email", k, "%s logs an email at %s", e.Message, e.Level)
			assert.NotContains(t, []string{"ann@example.com", "bo@example.com"}, fmt.Sprint(v), "%s field %s", e.Message, k)
		}
	}
}
