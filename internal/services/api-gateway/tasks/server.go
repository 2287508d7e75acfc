package tasks

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	authtoken "github.com/NordCoder/Taskly/internal/auth"
	"github.com/NordCoder/Taskly/internal/domain/task"
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
	return &Server{log: log.With(zap.String("component", "tasks.http")), uc: uc, authn: authn}
}

func (s *Server) Register(r *mux.Router) {
	sr := r.PathPrefix("/v1/tasks").Subrouter()
	sr.Use(auth.RequireAuth(s.authn))
	sr.HandleFunc("", s.List).Methods(http.MethodGet)
	sr.HandleFunc("", s.Create).Methods(http.MethodPost)
	sr.HandleFunc("/stats", s.Stats).Methods(http.MethodGet)
	sr.HandleFunc("/{id}", s.Get).Methods(http.MethodGet)
	sr.HandleFunc("/{id}", s.Update).Methods(http.MethodPatch)
	sr.HandleFunc("/{id}", s.Delete).Methods(http.MethodDelete)
}

type listResponse struct {
	Success    bool              `json:"success"`
	Data       []*task.Task      `json:"data"`
	Pagination paging.Pagination `json:"pagination"`
}

type taskResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Data    *task.Task `json:"data"`
}

type statsResponse struct {
	Success bool       `json:"success"`
	Data    task.Stats `json:"data"`
}

func (s *Server) List(w http.ResponseWriter, r *http.Request) {
	claims, _ := authtoken.ClaimsFromContext(r.Context())
	q := r.URL.Query()
	res, err := s.uc.List(r.Context(), claims, ListInput{
		Page:      paging.FromQuery(q),
		Status:    q.Get("status"),
		Priority:  q.Get("priority"),
		Search:    q.Get("search"),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
		UserID:    q.Get("userId"),
	})
	if err != nil {
		s.mapErr(w, "tasks.list", err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, listResponse{Success: true, Data: res.Tasks, Pagination: res.Pagination})
}

func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	claims, _ := authtoken.ClaimsFromContext(r.Context())
	st, err := s.uc.Stats(r.Context(), claims, r.URL.Query().Get("userId"))
	if err != nil {
		s.mapErr(w, "tasks.stats", err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, statsResponse{Success: true, Data: st})
}

type createRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	UserID      string  `json:"userId"`
	DueDate     dueDate `json:"dueDate"`
}

func (s *Server) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !decode(w, r, &req) {
		return
	}
	claims, _ := authtoken.ClaimsFromContext(r.Context())
	t, err := s.uc.Create(r.Context(), claims, CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      task.Status(req.Status),
		Priority:    task.Priority(req.Priority),
		UserID:      req.UserID,
		DueDate:     req.DueDate.Time,
	})
	if err != nil {
		s.mapErr(w, "tasks.create", err)
		return
	}
	auth.WriteJSON(w, http.StatusCreated, taskResponse{Success: true, Message: "Task created successfully", Data: t})
}

func (s *Server) Get(w http.ResponseWriter, r *http.Request) {
	claims, _ := authtoken.ClaimsFromContext(r.Context())
	t, err := s.uc.Get(r.Context(), claims, mux.Vars(r)["id"])
	if err != nil {
		s.mapErr(w, "tasks.get", err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, taskResponse{Success: true, Data: t})
}

type updateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
	UserID      *string `json:"userId"`
	DueDate     dueDate `json:"dueDate"`
}

func (req updateRequest) patch() task.Patch {
	p := task.Patch{Title: req.Title, Description: req.Description, UserID: req.UserID}
	if req.Status != nil {
		st := task.Status(*req.Status)
		p.Status = &st
	}
	if req.Priority != nil {
		pr := task.Priority(*req.Priority)
		p.Priority = &pr
	}
	if req.DueDate.Set {
		p.DueDate = &time.Time{}
		if req.DueDate.Time != nil {
			p.DueDate = req.DueDate.Time
		}
	}
	return p
}

func (s *Server) Update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !decode(w, r, &req) {
		return
	}
	claims, _ := authtoken.ClaimsFromContext(r.Context())
	t, err := s.uc.Update(r.Context(), claims, mux.Vars(r)["id"], req.patch())
	if err != nil {
		s.mapErr(w, "tasks.update", err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, taskResponse{Success: true, Message: "Task updated successfully", Data: t})
}

func (s *Server) Delete(w http.ResponseWriter, r *http.Request) {
	claims, _ := authtoken.ClaimsFromContext(r.Context())
	if err := s.uc.Delete(r.Context(), claims, mux.Vars(r)["id"]); err != nil {
		s.mapErr(w, "tasks.delete", err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, auth.Response{Success: true, Message: "Task deleted successfully"})
}

// dueDate tells an absent field (Set false) from an explicit null.
type dueDate struct {
	Set  bool
	Time *time.Time
}

var dueDateLayouts = []string{time.RFC3339Nano, "2006-01-02"}

func (d *dueDate) UnmarshalJSON(b []byte) error {
	d.Set = true
	if bytes.Equal(b, []byte("null")) {
		d.Time = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		d.Time = nil
		return nil
	}
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			d.Time = &t
			return nil
		}
	}
	return fmt.Errorf("invalid dueDate %q", s)
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
	case errors.Is(err, task.ErrNotFound):
		auth.WriteError(w, http.StatusNotFound, "Task not found")
	case errors.Is(err, user.ErrNotFound):
		auth.WriteError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, ErrTitleRequired):
		auth.WriteError(w, http.StatusBadRequest, "Title is required")
	case errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrInvalidPriority),
		errors.Is(err, ErrInvalidSort):
		auth.WriteError(w, http.StatusBadRequest, auth.Capitalize(err.Error()))
	default:
		s.log.Error(op, zap.Error(err))
		auth.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}
