package users

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authtoken "github.com/NordCoder/Taskly/internal/auth"
	"github.com/NordCoder/Taskly/internal/domain/user"
	"github.com/NordCoder/Taskly/internal/repository/memory"
	"github.com/NordCoder/Taskly/internal/services/api-gateway/auth"
	"github.com/NordCoder/Taskly/internal/services/api-gateway/paging"
)

type env struct {
	router *mux.Router
	codec  *authtoken.Codec
	repo   *memory.UserRepo
}

func newEnv(t *testing.T, n int) *env {
	t.Helper()
	codec, err := authtoken.NewCodec([]byte("users-secret"))
	require.NoError(t, err)

	repo := memory.NewUserRepo()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		require.NoError(t, repo.Create(context.Background(), &user.User{
			ID:        fmt.Sprintf("u%02d", i),
			Email:     fmt.Sprintf("u%02d@example.com", i),
			Name:      "User",
			Role:      authtoken.RoleUser,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	r := mux.NewRouter()
	NewServer(nil, New(repo, auth.NewBcryptHasher(4)), authtoken.NewAuthenticator(codec, "")).Register(r)
	return &env{router: r, codec: codec, repo: repo}
}

func (e *env) get(t *testing.T, path, id string, role authtoken.Role) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, http.MethodGet, path, nil, id, role)
}

func (e *env) do(t *testing.T, method, path string, body any, id string, role authtoken.Role) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if role != "" {
		tok, err := e.codec.Issue(authtoken.Subject{UserID: id, Email: id + "@example.com", Role: role})
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestList_Pagination(t *testing.T) {
	e := newEnv(t, 25)

	rec := e.get(t, "/v1/users?page=3&limit=10", "admin-1", authtoken.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code)

	var body listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, paging.Pagination{Page: 3, Limit: 10, Total: 25, TotalPages: 3}, body.Pagination)
	require.Len(t, body.Data, 5)
	// newest first
	assert.Equal(t, "u04", body.Data[0].ID)
	assert.Equal(t, "u00", body.Data[4].ID)
}

func TestList_Defaults(t *testing.T) {
	e := newEnv(t, 3)
	rec := e.get(t, "/v1/users?limit=1000&page=-2", "mod-1", authtoken.RoleModerator)
	require.Equal(t, http.StatusOK, rec.Code)

	var body listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Pagination.Page)
	assert.Equal(t, paging.MaxLimit, body.Pagination.Limit)
	assert.Len(t, body.Data, 3)
}

func TestList_HugePage(t *testing.T) {
	e := newEnv(t, 3)

	var rec *httptest.ResponseRecorder
	require.NotPanics(t, func() {
		rec = e.get(t, "/v1/users?page=922337203685477582&limit=10", "admin-1", authtoken.RoleAdmin)
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Data)
	assert.Equal(t, 3, body.Pagination.Total)
	assert.Positive(t, body.Pagination.Page)
}

func TestList_Search(t *testing.T) {
	e := newEnv(t, 12)

	rec := e.get(t, "/v1/users?search=u1", "admin-1", authtoken.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code)

	var body listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Pagination.Total)
	require.Len(t, body.Data, 2)
	assert.Equal(t, "u11", body.Data[0].ID)
}

func TestList_Authorization(t *testing.T) {
	e := newEnv(t, 1)
	assert.Equal(t, http.StatusUnauthorized, e.get(t, "/v1/users", "", "").Code)
	assert.Equal(t, http.StatusForbidden, e.get(t, "/v1/users", "u00", authtoken.RoleUser).Code)
}

func TestGet(t *testing.T) {
	e := newEnv(t, 2)

	cases := []struct {
		name string
		path string
		as   string
		role authtoken.Role
		code int
	}{
		{"self", "/v1/users/u01", "u01", authtoken.RoleUser, http.StatusOK},
		{"other user", "/v1/users/u00", "u01", authtoken.RoleUser, http.StatusForbidden},
		{"admin", "/v1/users/u00", "admin-1", authtoken.RoleAdmin, http.StatusOK},
		{"missing", "/v1/users/nope", "admin-1", authtoken.RoleAdmin, http.StatusNotFound},
		{"anonymous", "/v1/users/u00", "", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := e.get(t, tc.path, tc.as, tc.role)
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
			if tc.code == http.StatusOK {
				var body getResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tc.path[len("/v1/users/"):], body.Data.ID)
			}
		})
	}
}

func TestCreate(t *testing.T) {
	e := newEnv(t, 1)

	cases := []struct {
		name string
		body any
		as   string
		role authtoken.Role
		code int
	}{
		{"admin creates", map[string]any{"name": "Neo", "email": "Neo@Example.com", "role": "moderator"}, "admin-1", authtoken.RoleAdmin, http.StatusCreated},
		{"missing name", map[string]any{"email": "x@example.com"}, "admin-1", authtoken.RoleAdmin, http.StatusBadRequest},
		{"bad role", map[string]any{"name": "X", "email": "x@example.com", "role": "root"}, "admin-1", authtoken.RoleAdmin, http.StatusBadRequest},
		{"weak password", map[string]any{"name": "X", "email": "x@example.com", "password": "abc"}, "admin-1", authtoken.RoleAdmin, http.StatusBadRequest},
		{"duplicate email", map[string]any{"name": "X", "email": "u00@example.com"}, "admin-1", authtoken.RoleAdmin, http.StatusConflict},
		{"moderator grants admin", map[string]any{"name": "X", "email": "y@example.com", "role": "admin"}, "mod-1", authtoken.RoleModerator, http.StatusForbidden},
		{"plain user", map[string]any{"name": "X", "email": "z@example.com"}, "u00", authtoken.RoleUser, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/v1/users", tc.body, tc.as, tc.role)
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
		})
	}

	u, err := e.repo.GetByEmail(context.Background(), "neo@example.com")
	require.NoError(t, err)
	assert.Equal(t, authtoken.RoleModerator, u.Role)
	assert.Empty(t, u.PasswordHash)
}

func TestCreate_MissingNameMessage(t *testing.T) {
	e := newEnv(t, 0)
	rec := e.do(t, http.MethodPost, "/v1/users", map[string]any{"name": " "}, "admin-1", authtoken.RoleAdmin)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body auth.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Name and email are required", body.Error)
}

func TestUpdate(t *testing.T) {
	e := newEnv(t, 2)

	rec := e.do(t, http.MethodPut, "/v1/users/u01", map[string]any{"name": "Renamed"}, "u01", authtoken.RoleUser)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body getResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Renamed", body.Data.Name)

	rec = e.do(t, http.MethodPut, "/v1/users/u01", map[string]any{"role": "admin"}, "u01", authtoken.RoleUser)
	assert.Equal(t, http.StatusForbidden, rec.Code, "users cannot change their own role")

	rec = e.do(t, http.MethodPut, "/v1/users/u00", map[string]any{"name": "X"}, "u01", authtoken.RoleUser)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodPut, "/v1/users/u00", map[string]any{"role": "moderator", "emailVerified": true}, "admin-1", authtoken.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	u, err := e.repo.GetByID(context.Background(), "u00")
	require.NoError(t, err)
	assert.Equal(t, authtoken.RoleModerator, u.Role)
	assert.True(t, u.EmailVerified)

	rec = e.do(t, http.MethodPut, "/v1/users/nope", map[string]any{"name": "X"}, "admin-1", authtoken.RoleAdmin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDelete(t *testing.T) {
	e := newEnv(t, 2)

	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodDelete, "/v1/users/u00", nil, "u01", authtoken.RoleUser).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodDelete, "/v1/users/u00", nil, "u00", authtoken.RoleAdmin).Code)

	rec := e.do(t, http.MethodDelete, "/v1/users/u00", nil, "admin-1", authtoken.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	var body auth.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "User deleted successfully", body.Message)

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodDelete, "/v1/users/u00", nil, "admin-1", authtoken.RoleAdmin).Code)
}
