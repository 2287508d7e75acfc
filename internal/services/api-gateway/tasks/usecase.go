package tasks

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	authtoken "github.com/NordCoder/Taskly/internal/auth"
	"github.com/NordCoder/Taskly/internal/domain/task"
	"github.com/NordCoder/Taskly/internal/services/api-gateway/paging"
)

var (
	ErrForbidden       = errors.New("forbidden")
	ErrTitleRequired   = errors.New("title is required")
	ErrInvalidSort     = errors.New("invalid sort field")
	ErrInvalidStatus   = task.ErrInvalidStatus
	ErrInvalidPriority = task.ErrInvalidPriority
)

type Usecase struct {
	repo task.Repo
	now  func() time.Time
}

func New(repo task.Repo) *Usecase { return &Usecase{repo: repo, now: time.Now} }

type ListInput struct {
	Page     paging.Request
	Status   string
	Priority string
	Search   string
	SortBy   string
	// SortOrder is "asc" or "desc"; anything else means desc.
	SortOrder string
	// UserID narrows a privileged listing to one owner. Everyone else only
	// ever sees their own tasks.
	UserID string
}

type ListResult struct {
	Tasks      []*task.Task
	Pagination paging.Pagination
}

func (u *Usecase) List(ctx context.Context, requester authtoken.Claims, in ListInput) (*ListResult, error) {
	f := task.Filter{
		UserID: ownerScope(requester, in.UserID),
		Search: strings.TrimSpace(in.Search),
		Asc:    strings.EqualFold(in.SortOrder, "asc"),
		Offset: in.Page.Offset,
		Limit:  in.Page.Limit,
	}
	if in.Status != "" {
		if f.Status = task.Status(in.Status); !f.Status.Valid() {
			return nil, ErrInvalidStatus
		}
	}
	if in.Priority != "" {
		if f.Priority = task.Priority(in.Priority); !f.Priority.Valid() {
			return nil, ErrInvalidPriority
		}
	}
	by, ok := task.ParseSortField(in.SortBy)
	if !ok {
		return nil, ErrInvalidSort
	}
	f.SortBy = by

	items, total, err := u.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return &ListResult{Tasks: items, Pagination: in.Page.Result(total)}, nil
}

type CreateInput struct {
	Title       string
	Description string
	Status      task.Status
	Priority    task.Priority
	// UserID assigns the task; only privileged requesters may name
	// someone other than themselves.
	UserID  string
	DueDate *time.Time
}

func (u *Usecase) Create(ctx context.Context, requester authtoken.Claims, in CreateInput) (*task.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	owner := in.UserID
	if owner == "" {
		owner = requester.UserID
	}
	if owner != requester.UserID && !authtoken.IsPrivileged(requester.Role) {
		return nil, ErrForbidden
	}
	if in.Status == "" {
		in.Status = task.StatusPending
	}
	if !in.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	if in.Priority == "" {
		in.Priority = task.PriorityMedium
	}
	if !in.Priority.Valid() {
		return nil, ErrInvalidPriority
	}

	now := u.now()
	t := &task.Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Status:      in.Status,
		Priority:    in.Priority,
		UserID:      owner,
		DueDate:     in.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := u.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (u *Usecase) Get(ctx context.Context, requester authtoken.Claims, id string) (*task.Task, error) {
	t, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAccess(requester, t) {
		return nil, ErrForbidden
	}
	return t, nil
}

func (u *Usecase) Update(ctx context.Context, requester authtoken.Claims, id string, p task.Patch) (*task.Task, error) {
	if _, err := u.Get(ctx, requester, id); err != nil {
		return nil, err
	}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return nil, ErrTitleRequired
		}
		p.Title = &title
	}
	if p.Status != nil && !p.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return nil, ErrInvalidPriority
	}
	if p.UserID != nil && *p.UserID != requester.UserID && !authtoken.IsPrivileged(requester.Role) {
		return nil, ErrForbidden
	}
	return u.repo.Update(ctx, id, p, u.now())
}

func (u *Usecase) Delete(ctx context.Context, requester authtoken.Claims, id string) error {
	if _, err := u.Get(ctx, requester, id); err != nil {
		return err
	}
	return u.repo.Delete(ctx, id)
}

// Stats counts the requester's tasks, or every task (optionally narrowed to
// userID) for a privileged requester.
func (u *Usecase) Stats(ctx context.Context, requester authtoken.Claims, userID string) (task.Stats, error) {
	return u.repo.Stats(ctx, ownerScope(requester, userID))
}

func ownerScope(requester authtoken.Claims, userID string) string {
	if authtoken.IsPrivileged(requester.Role) {
		return userID
	}
	return requester.UserID
}

func canAccess(requester authtoken.Claims, t *task.Task) bool {
	return t.UserID == requester.UserID || authtoken.IsPrivileged(requester.Role)
}
