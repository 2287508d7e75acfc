package user

import (
	"context"
	"time"

	"github.com/NordCoder/Taskly/internal/auth"
)

type Page struct {
	Offset int
	Limit  int
	// Search matches name or email, case-insensitively.
	Search string
}

// Patch carries the fields an administrator may change; nil means keep.
type Patch struct {
	Name          *string
	Role          *auth.Role
	EmailVerified *bool
}

type Repo interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, p Page) ([]*User, int, error)
	Update(ctx context.Context, id string, p Patch, now time.Time) (*User, error)
	// Delete removes the user together with the tasks it owns.
	Delete(ctx context.Context, id string) error

	// RecordLoginFailure increments the failed attempt counter and applies
	// the lockout policy as one atomic step, returning the new state.
	RecordLoginFailure(ctx context.Context, id string, p LockoutPolicy, now time.Time) (LoginState, error)
	// RecordLoginSuccess clears the lockout state and stamps the last login.
	RecordLoginSuccess(ctx context.Context, id string, now time.Time) error

	SetEmailVerifyToken(ctx context.Context, id, tokenHash string, expires time.Time) error
	// ConsumeEmailVerifyToken marks the owner of a live token verified.
	ConsumeEmailVerifyToken(ctx context.Context, tokenHash string, now time.Time) (*User, error)
	SetPasswordResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error
	// ConsumePasswordResetToken swaps the password hash of the owner of a
	// live token and clears its lockout state.
	ConsumePasswordResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*User, error)
}
