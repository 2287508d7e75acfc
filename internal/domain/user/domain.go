package user

import (
	"errors"
	"time"

	"github.com/NordCoder/Taskly/internal/auth"
)

var (
	ErrNotFound     = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
	ErrTokenInvalid = errors.New("invalid or expired token")
)

type User struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	Name                string     `json:"name"`
	PasswordHash        string     `json:"-"`
	Role                auth.Role  `json:"role"`
	EmailVerified       bool       `json:"emailVerified"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	LastLoginAt         *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

func (u *User) LockedAt(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

func (u *User) Subject() auth.Subject {
	return auth.Subject{UserID: u.ID, Email: u.Email, Role: u.Role}
}

// LoginState is the lockout bookkeeping stored with a user.
type LoginState struct {
	FailedLoginAttempts int
	LockedUntil         *time.Time
}

// LockoutPolicy locks an account once failed attempts reach Threshold.
// The lock length grows with every further failure along Steps and stays at
// the last step.
type LockoutPolicy struct {
	Threshold int
	Steps     []time.Duration
}

func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		Threshold: 5,
		Steps: []time.Duration{
			5 * time.Minute,
			15 * time.Minute,
			30 * time.Minute,
			60 * time.Minute,
			120 * time.Minute,
		},
	}
}

func (p LockoutPolicy) Backoff(attempts int) time.Duration {
	if len(p.Steps) == 0 {
		return 0
	}
	i := attempts - p.Threshold
	if i < 0 {
		i = 0
	}
	if i >= len(p.Steps) {
		i = len(p.Steps) - 1
	}
	return p.Steps[i]
}

// StepSeconds is Steps as whole seconds, the shape stored procedures want.
func (p LockoutPolicy) StepSeconds() []int64 {
	out := make([]int64, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = int64(s / time.Second)
	}
	return out
}

// Fail returns the state after one more failed attempt at now.
func (p LockoutPolicy) Fail(s LoginState, now time.Time) LoginState {
	s.FailedLoginAttempts++
	if p.Threshold > 0 && s.FailedLoginAttempts >= p.Threshold {
		until := now.Add(p.Backoff(s.FailedLoginAttempts))
		s.LockedUntil = &until
	}
	return s
}
