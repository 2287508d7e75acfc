package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NordCoder/Taskly/internal/auth"
	"github.com/NordCoder/Taskly/internal/domain/user"
)

func seedUser(t *testing.T, r *UserRepo, id, email string, created time.Time) *user.User {
	t.Helper()
	u := &user.User{ID: id, Email: email, Role: auth.RoleUser, PasswordHash: "h", CreatedAt: created}
	require.NoError(t, r.Create(context.Background(), u))
	return u
}

func TestUserRepo_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	r := NewUserRepo()
	seedUser(t, r, "1", "Ann@Example.com", time.Now())

	err := r.Create(ctx, &user.User{ID: "2", Email: "ann@example.com"})
	require.ErrorIs(t, err, user.ErrEmailTaken)

	u, err := r.GetByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, "1", u.ID)

	_, err = r.GetByID(ctx, "missing")
	require.ErrorIs(t, err, user.ErrNotFound)

	u.Name = "mutated"
	again, err := r.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, again.Name, "stored record must not alias returned value")
}

func TestUserRepo_List(t *testing.T) {
	r := NewUserRepo()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedUser(t, r, fmt.Sprint(i), fmt.Sprintf("u%d@x.io", i), base.Add(time.Duration(i)*time.Hour))
	}

	page, total, err := r.List(context.Background(), user.Page{Offset: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "3", page[0].ID)
	assert.Equal(t, "2", page[1].ID)

	page, _, err = r.List(context.Background(), user.Page{Offset: 10, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestUserRepo_ListNegativeOffset(t *testing.T) {
	r := NewUserRepo()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		seedUser(t, r, fmt.Sprint(i), fmt.Sprintf("u%d@x.io", i), base.Add(time.Duration(i)*time.Hour))
	}

	var page []*user.User
	require.NotPanics(t, func() {
		var err error
		page, _, err = r.List(context.Background(), user.Page{Offset: -20, Limit: 2})
		require.NoError(t, err)
	})
	require.Len(t, page, 2)
	assert.Equal(t, "2", page[0].ID)
}

func TestUserRepo_ListSearch(t *testing.T) {
	r := NewUserRepo()
	seedUser(t, r, "1", "ann@x.io", time.Now())
	seedUser(t, r, "2", "bob@x.io", time.Now())
	name := "Annette"
	_, err := r.Update(context.Background(), "2", user.Patch{Name: &name}, time.Now())
	require.NoError(t, err)

	page, total, err := r.List(context.Background(), user.Page{Search: " ANN ", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, page, 2)

	page, total, err = r.List(context.Background(), user.Page{Search: "bob@", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "2", page[0].ID)
}

func TestUserRepo_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	r := NewUserRepo()
	seedUser(t, r, "1", "a@x.io", time.Now())

	var removed []string
	r.OnDelete(func(id string) { removed = append(removed, id) })

	role := auth.RoleModerator
	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	u, err := r.Update(ctx, "1", user.Patch{Role: &role}, now)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleModerator, u.Role)
	assert.Equal(t, now, u.UpdatedAt)

	_, err = r.Update(ctx, "nope", user.Patch{Role: &role}, now)
	require.ErrorIs(t, err, user.ErrNotFound)

	require.NoError(t, r.Delete(ctx, "1"))
	require.ErrorIs(t, r.Delete(ctx, "1"), user.ErrNotFound)
	assert.Equal(t, []string{"1"}, removed)

	_, err = r.GetByEmail(ctx, "a@x.io")
	require.ErrorIs(t, err, user.ErrNotFound)
}

func TestUserRepo_LoginFailureIsAtomic(t *testing.T) {
	ctx := context.Background()
	r := NewUserRepo()
	seedUser(t, r, "1", "a@x.io", time.Now())
	p := user.DefaultLockoutPolicy()
	now := time.Now()

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.RecordLoginFailure(ctx, "1", p, now)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	u, err := r.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, n, u.FailedLoginAttempts)
	require.NotNil(t, u.LockedUntil)
	assert.Equal(t, now.Add(120*time.Minute), *u.LockedUntil)
}

func TestUserRepo_LoginSuccessResets(t *testing.T) {
	ctx := context.Background()
	r := NewUserRepo()
	seedUser(t, r, "1", "a@x.io", time.Now())
	now := time.Now()

	for i := 0; i < 5; i++ {
		_, err := r.RecordLoginFailure(ctx, "1", user.DefaultLockoutPolicy(), now)
		require.NoError(t, err)
	}
	require.NoError(t, r.RecordLoginSuccess(ctx, "1", now))

	u, err := r.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Zero(t, u.FailedLoginAttempts)
	assert.Nil(t, u.LockedUntil)
	require.NotNil(t, u.LastLoginAt)
	assert.Equal(t, now, *u.LastLoginAt)

	require.ErrorIs(t, r.RecordLoginSuccess(ctx, "nope", now), user.ErrNotFound)
}

func TestUserRepo_OneShotTokens(t *testing.T) {
	ctx := context.Background()
	r := NewUserRepo()
	seedUser(t, r, "1", "a@x.io", time.Now())
	now := time.Now()

	require.NoError(t, r.SetEmailVerifyToken(ctx, "1", "vh", now.Add(time.Hour)))
	_, err := r.ConsumeEmailVerifyToken(ctx, "other", now)
	require.ErrorIs(t, err, user.ErrTokenInvalid)
	_, err = r.ConsumeEmailVerifyToken(ctx, "vh", now.Add(2*time.Hour))
	require.ErrorIs(t, err, user.ErrTokenInvalid, "expired")

	u, err := r.ConsumeEmailVerifyToken(ctx, "vh", now)
	require.NoError(t, err)
	assert.True(t, u.EmailVerified)
	_, err = r.ConsumeEmailVerifyToken(ctx, "vh", now)
	require.ErrorIs(t, err, user.ErrTokenInvalid, "single use")

	_, err = r.RecordLoginFailure(ctx, "1", user.LockoutPolicy{Threshold: 1, Steps: []time.Duration{time.Hour}}, now)
	require.NoError(t, err)
	require.NoError(t, r.SetPasswordResetToken(ctx, "1", "rh", now.Add(time.Hour)))
	u, err = r.ConsumePasswordResetToken(ctx, "rh", "new-hash", now)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", u.PasswordHash)
	assert.Zero(t, u.FailedLoginAttempts)
	assert.Nil(t, u.LockedUntil)
}
