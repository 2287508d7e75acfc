package task

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("task not found")
	ErrInvalidStatus   = errors.New("invalid task status")
	ErrInvalidPriority = errors.New("invalid task priority")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool { return p.Rank() > 0 }

// Rank orders priorities from low (1) to urgent (4); unknown values rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	}
	return 0
}

// Assignee is the owning user as shown next to a task.
type Assignee struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	UserID      string     `json:"userId"`
	Assignee    *Assignee  `json:"assignee,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Patch carries the fields to change; nil means keep. A non-nil DueDate
// pointing at the zero time clears the due date.
type Patch struct {
	Title       *string
	Description *string
	Status      *Status
	Priority    *Priority
	UserID      *string
	DueDate     *time.Time
}

type SortField string

const (
	SortCreatedAt SortField = "createdAt"
	SortUpdatedAt SortField = "updatedAt"
	SortDueDate   SortField = "dueDate"
	SortTitle     SortField = "title"
	SortPriority  SortField = "priority"
)

func ParseSortField(s string) (SortField, bool) {
	switch f := SortField(s); f {
	case SortCreatedAt, SortUpdatedAt, SortDueDate, SortTitle, SortPriority:
		return f, true
	case "":
		return SortCreatedAt, true
	}
	return "", false
}

// Filter selects and orders tasks. Empty fields do not filter.
type Filter struct {
	UserID   string
	Status   Status
	Priority Priority
	// Search matches title, description or assignee name, case-insensitively.
	Search string
	SortBy SortField
	Asc    bool
	Offset int
	Limit  int
}

// Matches reports whether t passes every filter except paging.
func (f Filter) Matches(t *Task) bool {
	if f.UserID != "" && t.UserID != f.UserID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	needle := strings.ToLower(strings.TrimSpace(f.Search))
	if needle == "" {
		return true
	}
	if strings.Contains(strings.ToLower(t.Title), needle) ||
		strings.Contains(strings.ToLower(t.Description), needle) {
		return true
	}
	return t.Assignee != nil && strings.Contains(strings.ToLower(t.Assignee.Name), needle)
}

// Less orders a before b under the filter's sort; tasks without a due date
// sort after dated ones in ascending order. Ties fall back to id.
func (f Filter) Less(a, b *Task) bool {
	c := compare(f.SortBy, a, b)
	if c == 0 {
		return a.ID < b.ID
	}
	if f.Asc {
		return c < 0
	}
	return c > 0
}

func compare(by SortField, a, b *Task) int {
	switch by {
	case SortTitle:
		return strings.Compare(a.Title, b.Title)
	case SortPriority:
		return a.Priority.Rank() - b.Priority.Rank()
	case SortDueDate:
		switch {
		case a.DueDate == nil && b.DueDate == nil:
			return 0
		case a.DueDate == nil:
			return 1
		case b.DueDate == nil:
			return -1
		}
		return a.DueDate.Compare(*b.DueDate)
	case SortUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	}
	return a.CreatedAt.Compare(b.CreatedAt)
}

// Stats counts tasks per status.
type Stats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
	Cancelled  int `json:"cancelled"`
}

func (s *Stats) Add(st Status, n int) {
	s.Total += n
	switch st {
	case StatusPending:
		s.Pending += n
	case StatusInProgress:
		s.InProgress += n
	case StatusCompleted:
		s.Completed += n
	case StatusCancelled:
		s.Cancelled += n
	}
}
