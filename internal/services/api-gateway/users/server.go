package users

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	authtoken "github.com/NordCoder/Taskly/internal/auth"
	"github.com/NordCoder/Taskly/internal/domain/user"
	"github.com/NordCoder/Taskly/internal/services/api-gateway/auth"
	"github.com/NordCoder/Taskly/internal/services/api-gateway/paging"
)

const maxBodyBytes = 1 << 16

type Server struct {
	log   *zap.Logger
	uc    *Usecase
	authn *authtoken.Authenticator
}

func NewServer(log *zap.Logger, uc *Usecase, authn *authtoken.Authenticator) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{log: log.With(zap.String("component", "users.http")), uc: uc, authn: authn}
}

func (s *Server) Register(r *mux.Router) {
	sr := r.PathPrefix("/v1/users").Subrouter()
	sr.Use(auth.RequireAuth(s.authn))
	sr.Handle("", auth.RequirePrivileged(http.HandlerFunc(s.List))).Methods(http.MethodGet)
	sr.Handle("", auth.RequirePrivileged(http.HandlerFunc(s.Create))).Methods(http.MethodPost)
	sr.HandleFunc("/{id}", s.Get).Methods(http.MethodGet)
	sr.HandleFunc("/{id}", s.Update).Methods(http.MethodPut)
	sr.Handle("/{id}", auth.RequirePrivileged(http.HandlerFunc(s.Delete))).Methods(http.MethodDelete)
}

type listResponse struct {
	Success    bool              `json:"success"`
	Data       []*user.User      `json:"data"`
	Pagination paging.Pagination `json:"pagination"`
}

type getResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Data    *user.User `json:"data"`
}

func (s *Server) List(w http.ResponseWriter, r *http.Request) {
	claims, _ := authtoken.ClaimsFromContext(r.Context())
	q := r.URL.Query()

	res, err := s.uc.List(r.Context(), claims, paging.FromQuery(q), q.Get("search"))
	if err != nil {
		s.mapErr(w, "users.list", err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, listResponse{Success: true, Data: res.Users, Pagination: res.Pagination})
}

func (s *Server) Get(w http.ResponseWriter, r *http.Request) {
	claims, _ := authtoken.ClaimsFromContext(r.Context())
	u, err := s.uc.Get(r.Context(), claims, mux.Vars(r)["id"])
	if err != nil {
		s.mapErr(w, "users.get", err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, getResponse{Success: true, Data: u})
}

type createRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	Password      string `json:"password"`
	EmailVerified bool   `json:"emailVerified"`
}

func (s *Server) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !decode(w, r, &req) {
		return
	}
	claims, _ := authtoken.ClaimsFromContext(r.Context())
	u, err := s.uc.Create(r.Context(), claims, CreateInput{
		Name:          req.Name,
		Email:         req.Email,
		Role:          authtoken.Role(req.Role),
		Password:      req.Password,
		EmailVerified: req.EmailVerified,
	})
	if err != nil {
		s.mapErr(w, "users.create", err)
		return
	}
	s.log.Info("users.create", zap.String("id", u.ID), zap.String("by", claims.UserID))
	auth.WriteJSON(w, http.StatusCreated, getResponse{Success: true, Message: "User created successfully", Data: u})
}

type updateRequest struct {
	Name          *string `json:"name"`
	Role          *string `json:"role"`
	EmailVerified *bool   `json:"emailVerified"`
}

func (s *Server) Update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !decode(w, r, &req) {
		return
	}
	in := UpdateInput{Name: req.Name, EmailVerified: req.EmailVerified}
	if req.Role != nil {
		role := authtoken.Role(*req.Role)
		in.Role = &role
	}
	claims, _ := authtoken.ClaimsFromContext(r.Context())
	u, err := s.uc.Update(r.Context(), claims, mux.Vars(r)["id"], in)
	if err != nil {
		s.mapErr(w, "users.update", err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, getResponse{Success: true, Message: "User updated successfully", Data: u})
}

func (s *Server) Delete(w http.ResponseWriter, r *http.Request) {
	claims, _ := authtoken.ClaimsFromContext(r.Context())
	id := mux.Vars(r)["id"]
	if err := s.uc.Delete(r.Context(), claims, id); err != nil {
		s.mapErr(w, "users.delete", err)
		return
	}
	s.log.Info("users.delete", zap.String("id", id), zap.String("by", claims.UserID))
	auth.WriteJSON(w, http.StatusOK, auth.Response{Success: true, Message: "User deleted successfully"})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		auth.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (s *Server) mapErr(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrForbidden):
		auth.WriteError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, user.ErrNotFound):
		auth.WriteError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, user.ErrEmailTaken):
		auth.WriteError(w, http.StatusConflict, "An account with this email already exists")
	case errors.Is(err, ErrNameEmailRequired):
		auth.WriteError(w, http.StatusBadRequest, "Name and email are required")
	case errors.Is(err, ErrInvalidRole):
		auth.WriteError(w, http.StatusBadRequest, "Invalid role")
	case errors.Is(err, ErrDeleteSelf):
		auth.WriteError(w, http.StatusBadRequest, "You cannot delete your own account")
	case errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrInvalidName),
		errors.Is(err, auth.ErrWeakPassword):
		auth.WriteError(w, http.StatusBadRequest, auth.Capitalize(err.Error()))
	default:
		s.log.Error(op, zap.Error(err))
		auth.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}
