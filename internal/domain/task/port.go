package task

import (
	"context"
	"time"
)

type Repo interface {
	// Create stores t and fills its Assignee.
	Create(ctx context.Context, t *Task) error
	GetByID(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context, f Filter) ([]*Task, int, error)
	Update(ctx context.Context, id string, p Patch, now time.Time) (*Task, error)
	Delete(ctx context.Context, id string) error
	// Stats counts the tasks of userID, or of everyone when it is empty.
	Stats(ctx context.Context, userID string) (Stats, error)
}
