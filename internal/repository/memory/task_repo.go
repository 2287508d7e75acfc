package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/NordCoder/Taskly/internal/domain/task"
	"github.com/NordCoder/Taskly/internal/domain/user"
)

var _ task.Repo = (*TaskRepo)(nil)

// TaskRepo keeps tasks in process memory. Assignees are resolved through
// the user store on every read, like the SQL join.
type TaskRepo struct {
	users *UserRepo

	mu   sync.RWMutex
	byID map[string]*task.Task
}

func NewTaskRepo(users *UserRepo) *TaskRepo {
	r := &TaskRepo{users: users, byID: make(map[string]*task.Task)}
	users.OnDelete(r.deleteByUser)
	return r
}

func (r *TaskRepo) Create(ctx context.Context, t *task.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a, err := r.assignee(ctx, t.UserID)
	if err != nil {
		return err
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}

	r.mu.Lock()
	cp := copyTask(t)
	cp.Assignee = nil
	r.byID[t.ID] = cp
	r.mu.Unlock()

	t.Assignee = a
	return nil
}

func (r *TaskRepo) GetByID(ctx context.Context, id string) (*task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	t, ok := r.byID[id]
	if ok {
		t = copyTask(t)
	}
	r.mu.RUnlock()

	if !ok {
		return nil, task.ErrNotFound
	}
	r.join(ctx, t)
	return t, nil
}

func (r *TaskRepo) List(ctx context.Context, f task.Filter) ([]*task.Task, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	all := r.snapshot(f.UserID)

	out := all[:0]
	for _, t := range all {
		r.join(ctx, t)
		if f.Matches(t) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return f.Less(out[i], out[j]) })
	return window(out, f.Offset, f.Limit), len(out), nil
}

func (r *TaskRepo) Update(ctx context.Context, id string, p task.Patch, now time.Time) (*task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.UserID != nil {
		if _, err := r.users.GetByID(ctx, *p.UserID); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	t, ok := r.byID[id]
	if ok {
		applyPatch(t, p, now)
		t = copyTask(t)
	}
	r.mu.Unlock()

	if !ok {
		return nil, task.ErrNotFound
	}
	r.join(ctx, t)
	return t, nil
}

func applyPatch(t *task.Task, p task.Patch, now time.Time) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.UserID != nil {
		t.UserID = *p.UserID
	}
	if p.DueDate != nil {
		if p.DueDate.IsZero() {
			t.DueDate = nil
		} else {
			d := *p.DueDate
			t.DueDate = &d
		}
	}
	t.UpdatedAt = now
}

func (r *TaskRepo) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return task.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *TaskRepo) Stats(ctx context.Context, userID string) (task.Stats, error) {
	if err := ctx.Err(); err != nil {
		return task.Stats{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var s task.Stats
	for _, t := range r.byID {
		if userID == "" || t.UserID == userID {
			s.Add(t.Status, 1)
		}
	}
	return s, nil
}

func (r *TaskRepo) deleteByUser(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.byID {
		if t.UserID == userID {
			delete(r.byID, id)
		}
	}
}

func (r *TaskRepo) snapshot(userID string) []*task.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*task.Task, 0, len(r.byID))
	for _, t := range r.byID {
		if userID == "" || t.UserID == userID {
			out = append(out, copyTask(t))
		}
	}
	return out
}

func (r *TaskRepo) join(ctx context.Context, t *task.Task) {
	t.Assignee, _ = r.assignee(ctx, t.UserID)
}

func (r *TaskRepo) assignee(ctx context.Context, userID string) (*task.Assignee, error) {
	u, err := r.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return assigneeOf(u), nil
}

func assigneeOf(u *user.User) *task.Assignee {
	return &task.Assignee{ID: u.ID, Name: u.Name, Email: u.Email}
}

func copyTask(t *task.Task) *task.Task {
	cp := *t
	if t.DueDate != nil {
		d := *t.DueDate
		cp.DueDate = &d
	}
	if t.Assignee != nil {
		a := *t.Assignee
		cp.Assignee = &a
	}
	return &cp
}
