package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/NordCoder/Taskly/internal/domain/user"
)

var _ user.Repo = (*UserRepo)(nil)

type userRecord struct {
	user          user.User
	verifyToken   string
	verifyExpires time.Time
	resetToken    string
	resetExpires  time.Time
}

// UserRepo keeps users in process memory. Every method holds the lock for
// its whole read-modify-write, so counters never lose updates.
type UserRepo struct {
	mu      sync.RWMutex
	byID    map[string]*userRecord
	byEmail map[string]string

	onDelete []func(id string)
}

func NewUserRepo() *UserRepo {
	return &UserRepo{
		byID:    make(map[string]*userRecord),
		byEmail: make(map[string]string),
	}
}

func (r *UserRepo) Create(ctx context.Context, u *user.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(u.Email)
	if _, ok := r.byEmail[key]; ok {
		return user.ErrEmailTaken
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}
	r.byID[u.ID] = &userRecord{user: *u}
	r.byEmail[key] = u.ID
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return copyUser(&rec.user), nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, user.ErrNotFound
	}
	return copyUser(&r.byID[id].user), nil
}

func (r *UserRepo) List(ctx context.Context, p user.Page) ([]*user.User, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	needle := strings.ToLower(strings.TrimSpace(p.Search))
	r.mu.RLock()
	all := make([]*user.User, 0, len(r.byID))
	for _, rec := range r.byID {
		if needle != "" &&
			!strings.Contains(strings.ToLower(rec.user.Name), needle) &&
			!strings.Contains(strings.ToLower(rec.user.Email), needle) {
			continue
		}
		all = append(all, copyUser(&rec.user))
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return window(all, p.Offset, p.Limit), len(all), nil
}

// window slices items[offset:offset+limit] without trusting either bound.
func window[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset > len(items) {
		offset = len(items)
	}
	end := len(items)
	if limit > 0 && limit < end-offset {
		end = offset + limit
	}
	return items[offset:end]
}

func (r *UserRepo) Update(ctx context.Context, id string, p user.Patch, now time.Time) (*user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	if p.Name != nil {
		rec.user.Name = *p.Name
	}
	if p.Role != nil {
		rec.user.Role = *p.Role
	}
	if p.EmailVerified != nil {
		rec.user.EmailVerified = *p.EmailVerified
	}
	rec.user.UpdatedAt = now
	return copyUser(&rec.user), nil
}

func (r *UserRepo) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	rec, ok := r.byID[id]
	if ok {
		delete(r.byEmail, strings.ToLower(rec.user.Email))
		delete(r.byID, id)
	}
	hooks := r.onDelete
	r.mu.Unlock()

	if !ok {
		return user.ErrNotFound
	}
	for _, h := range hooks {
		h(id)
	}
	return nil
}

// OnDelete registers fn to run after a user is removed; the task store uses
// it to mirror the ON DELETE CASCADE of the SQL schema.
func (r *UserRepo) OnDelete(fn func(id string)) {
	r.mu.Lock()
	r.onDelete = append(r.onDelete, fn)
	r.mu.Unlock()
}

func (r *UserRepo) RecordLoginFailure(ctx context.Context, id string, p user.LockoutPolicy, now time.Time) (user.LoginState, error) {
	if err := ctx.Err(); err != nil {
		return user.LoginState{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return user.LoginState{}, user.ErrNotFound
	}
	st := p.Fail(user.LoginState{
		FailedLoginAttempts: rec.user.FailedLoginAttempts,
		LockedUntil:         rec.user.LockedUntil,
	}, now)
	rec.user.FailedLoginAttempts = st.FailedLoginAttempts
	rec.user.LockedUntil = st.LockedUntil
	rec.user.UpdatedAt = now
	return st, nil
}

func (r *UserRepo) RecordLoginSuccess(ctx context.Context, id string, now time.Time) error {
	return r.update(ctx, id, func(rec *userRecord) {
		rec.user.FailedLoginAttempts = 0
		rec.user.LockedUntil = nil
		t := now
		rec.user.LastLoginAt = &t
		rec.user.UpdatedAt = now
	})
}

func (r *UserRepo) SetEmailVerifyToken(ctx context.Context, id, tokenHash string, expires time.Time) error {
	return r.update(ctx, id, func(rec *userRecord) {
		rec.verifyToken = tokenHash
		rec.verifyExpires = expires
	})
}

func (r *UserRepo) ConsumeEmailVerifyToken(ctx context.Context, tokenHash string, now time.Time) (*user.User, error) {
	return r.consume(ctx, now, func(rec *userRecord) bool {
		if rec.verifyToken == "" || rec.verifyToken != tokenHash || !rec.verifyExpires.After(now) {
			return false
		}
		rec.verifyToken, rec.verifyExpires = "", time.Time{}
		rec.user.EmailVerified = true
		return true
	})
}

func (r *UserRepo) SetPasswordResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error {
	return r.update(ctx, id, func(rec *userRecord) {
		rec.resetToken = tokenHash
		rec.resetExpires = expires
	})
}

func (r *UserRepo) ConsumePasswordResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*user.User, error) {
	return r.consume(ctx, now, func(rec *userRecord) bool {
		if rec.resetToken == "" || rec.resetToken != tokenHash || !rec.resetExpires.After(now) {
			return false
		}
		rec.resetToken, rec.resetExpires = "", time.Time{}
		rec.user.PasswordHash = passwordHash
		rec.user.FailedLoginAttempts = 0
		rec.user.LockedUntil = nil
		return true
	})
}

func (r *UserRepo) update(ctx context.Context, id string, fn func(*userRecord)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return user.ErrNotFound
	}
	fn(rec)
	return nil
}

func (r *UserRepo) consume(ctx context.Context, now time.Time, match func(*userRecord) bool) (*user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.byID {
		if match(rec) {
			rec.user.UpdatedAt = now
			return copyUser(&rec.user), nil
		}
	}
	return nil, user.ErrTokenInvalid
}

func copyUser(u *user.User) *user.User {
	cp := *u
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		cp.LockedUntil = &t
	}
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		cp.LastLoginAt = &t
	}
	return &cp
}
