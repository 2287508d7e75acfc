package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/Taskly/internal/domain/task"
	"github.com/NordCoder/Taskly/internal/domain/user"
)

var _ task.Repo = (*TaskRepo)(nil)

type TaskRepo struct {
	db *DB
}

func NewTaskRepo(db *DB) *TaskRepo { return &TaskRepo{db: db} }

const taskColumns = `t.id::text, t.title, t.description, t.status, t.priority, t.user_id::text,
       u.name, u.email, t.due_date, t.created_at, t.updated_at`

// taskFilter expects user id, status, priority and search pattern as $1..$4.
const taskFilter = `
WHERE ($1 = '' OR t.user_id::text = $1)
  AND ($2 = '' OR t.status = $2)
  AND ($3 = '' OR t.priority = $3)
  AND ($4 = '' OR t.title ILIKE $4 OR t.description ILIKE $4 OR u.name ILIKE $4)`

const (
	qTaskInsert = `
WITH t AS (
    INSERT INTO tasks (id, title, description, status, priority, user_id, due_date, created_at, updated_at)
    VALUES ($1::uuid, $2, $3, $4, $5, $6::uuid, $7, $8, $8)
    RETURNING *
)
SELECT ` + taskColumns + `
FROM t JOIN users u ON u.id = t.user_id;`

	qTaskByID = `
SELECT ` + taskColumns + `
FROM tasks t JOIN users u ON u.id = t.user_id
WHERE t.id = $1::uuid;`

	qTaskCount = `
SELECT count(*)
FROM tasks t JOIN users u ON u.id = t.user_id` + taskFilter + `;`

	// %s is an ORDER BY clause built from taskOrder only.
	qTaskList = `
SELECT ` + taskColumns + `
FROM tasks t JOIN users u ON u.id = t.user_id` + taskFilter + `
ORDER BY %s
LIMIT NULLIF($5::int, 0) OFFSET $6;`

	qTaskUpdate = `
WITH t AS (
    UPDATE tasks
    SET title       = COALESCE($2, title),
        description = COALESCE($3, description),
        status      = COALESCE($4, status),
        priority    = COALESCE($5, priority),
        user_id     = COALESCE($6::uuid, user_id),
        due_date    = CASE WHEN $7::boolean THEN $8::timestamptz ELSE due_date END,
        updated_at  = $9
    WHERE id = $1::uuid
    RETURNING *
)
SELECT ` + taskColumns + `
FROM t JOIN users u ON u.id = t.user_id;`

	qTaskDelete = `DELETE FROM tasks WHERE id = $1::uuid;`

	qTaskStats = `
SELECT count(*),
       count(*) FILTER (WHERE status = 'pending'),
       count(*) FILTER (WHERE status = 'in-progress'),
       count(*) FILTER (WHERE status = 'completed'),
       count(*) FILTER (WHERE status = 'cancelled')
FROM tasks
WHERE $1 = '' OR user_id::text = $1;`
)

var taskSortColumns = map[task.SortField]string{
	task.SortCreatedAt: "t.created_at",
	task.SortUpdatedAt: "t.updated_at",
	task.SortDueDate:   "t.due_date",
	task.SortTitle:     "t.title",
	task.SortPriority:  "CASE t.priority WHEN 'low' THEN 1 WHEN 'medium' THEN 2 WHEN 'high' THEN 3 ELSE 4 END",
}

func taskOrder(f task.Filter) string {
	col, ok := taskSortColumns[f.SortBy]
	if !ok {
		col = taskSortColumns[task.SortCreatedAt]
	}
	dir := "DESC"
	if f.Asc {
		dir = "ASC"
	}
	return col + " " + dir + ", t.id"
}

func (r *TaskRepo) Create(ctx context.Context, t *task.Task) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	row := r.db.execQueryer(ctx).QueryRow(ctx, qTaskInsert,
		t.ID, t.Title, t.Description, string(t.Status), string(t.Priority), t.UserID, t.DueDate, t.CreatedAt)
	if err := scanTask(row, t); err != nil {
		if isForeignKeyViolation(err) || isInvalidText(err) {
			return fmt.Errorf("%w: %w", user.ErrNotFound, ErrNotFound)
		}
		return fmt.Errorf("task insert: %w", err)
	}
	return nil
}

func (r *TaskRepo) GetByID(ctx context.Context, id string) (*task.Task, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var t task.Task
	if err := scanTask(r.db.execQueryer(ctx).QueryRow(ctx, qTaskByID, id), &t); err != nil {
		if isInvalidText(err) {
			return nil, fmt.Errorf("%w: %w", task.ErrNotFound, ErrNotFound)
		}
		return nil, err
	}
	return &t, nil
}

func (r *TaskRepo) List(ctx context.Context, f task.Filter) ([]*task.Task, int, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	args := []any{f.UserID, string(f.Status), string(f.Priority), likePattern(f.Search)}
	eq := r.db.execQueryer(ctx)
	var total int
	if err := eq.QueryRow(ctx, qTaskCount, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("task count: %w", err)
	}

	rows, err := eq.Query(ctx, fmt.Sprintf(qTaskList, taskOrder(f)), append(args, f.Limit, max(f.Offset, 0))...)
	if err != nil {
		return nil, 0, fmt.Errorf("task list: %w", err)
	}
	defer rows.Close()

	out := make([]*task.Task, 0, f.Limit)
	for rows.Next() {
		var t task.Task
		if err := scanTask(rows, &t); err != nil {
			return nil, 0, err
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("task list: %w", err)
	}
	return out, total, nil
}

func (r *TaskRepo) Update(ctx context.Context, id string, p task.Patch, now time.Time) (*task.Task, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var (
		setDue bool
		due    *time.Time
	)
	if p.DueDate != nil {
		setDue = true
		if !p.DueDate.IsZero() {
			due = p.DueDate
		}
	}
	var t task.Task
	row := r.db.execQueryer(ctx).QueryRow(ctx, qTaskUpdate,
		id, p.Title, p.Description, optString(p.Status), optString(p.Priority), p.UserID, setDue, due, now)
	if err := scanTask(row, &t); err != nil {
		switch {
		case isForeignKeyViolation(err):
			return nil, fmt.Errorf("%w: %w", user.ErrNotFound, ErrNotFound)
		case isInvalidText(err):
			return nil, fmt.Errorf("%w: %w", task.ErrNotFound, ErrNotFound)
		}
		return nil, err
	}
	return &t, nil
}

func (r *TaskRepo) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qTaskDelete, id)
	if err != nil {
		if isInvalidText(err) {
			return fmt.Errorf("%w: %w", task.ErrNotFound, ErrNotFound)
		}
		return fmt.Errorf("task delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %w", task.ErrNotFound, ErrNotFound)
	}
	return nil
}

func (r *TaskRepo) Stats(ctx context.Context, userID string) (task.Stats, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var s task.Stats
	err := r.db.execQueryer(ctx).QueryRow(ctx, qTaskStats, userID).
		Scan(&s.Total, &s.Pending, &s.InProgress, &s.Completed, &s.Cancelled)
	if err != nil {
		return task.Stats{}, fmt.Errorf("task stats: %w", err)
	}
	return s, nil
}

func scanTask(row pgx.Row, out *task.Task) error {
	var (
		status, priority string
		a                task.Assignee
	)
	err := row.Scan(
		&out.ID, &out.Title, &out.Description, &status, &priority, &out.UserID,
		&a.Name, &a.Email, &out.DueDate, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %w", task.ErrNotFound, ErrNotFound)
		}
		return fmt.Errorf("scan task: %w", err)
	}
	out.Status = task.Status(status)
	out.Priority = task.Priority(priority)
	a.ID = out.UserID
	out.Assignee = &a
	return nil
}

func optString[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
