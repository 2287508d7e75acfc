package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/NordCoder/Taskly/internal/auth"
	"github.com/NordCoder/Taskly/internal/domain/user"
)

var _ user.Repo = (*UserRepo)(nil)

type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id::text, email, name, password_hash, role, email_verified,
       failed_login_attempts, locked_until, last_login_at, created_at, updated_at`

const (
	qUserInsert = `
INSERT INTO users (id, email, name, password_hash, role, email_verified, created_at, updated_at)
VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $7)
RETURNING ` + userColumns + `;`

	qUserByID = `
SELECT ` + userColumns + `
FROM users
WHERE id = $1::uuid;`

	qUserByEmail = `
SELECT ` + userColumns + `
FROM users
WHERE email = $1;`

	qUserList = `
SELECT ` + userColumns + `
FROM users
WHERE $3 = '' OR name ILIKE $3 OR email ILIKE $3
ORDER BY created_at DESC, id
LIMIT $1 OFFSET $2;`

	qUserCount = `
SELECT count(*)
FROM users
WHERE $1 = '' OR name ILIKE $1 OR email ILIKE $1;`

	qUserUpdate = `
UPDATE users
SET name           = COALESCE($2, name),
    role           = COALESCE($3, role),
    email_verified = COALESCE($4, email_verified),
    updated_at     = $5
WHERE id = $1::uuid
RETURNING ` + userColumns + `;`

	qUserDelete = `DELETE FROM users WHERE id = $1::uuid;`

	// All SET expressions read the pre-update row, so the increment and the
	// lock decision see the same counter value.
	qUserLoginFailure = `
UPDATE users
SET failed_login_attempts = failed_login_attempts + 1,
    locked_until = CASE
        WHEN $2::int > 0 AND failed_login_attempts + 1 >= $2::int THEN
            $3::timestamptz + make_interval(secs => (($4::bigint[])[
                LEAST(GREATEST(failed_login_attempts + 1 - $2::int, 0) + 1, cardinality($4::bigint[]))
            ])::double precision)
        ELSE locked_until
    END,
    updated_at = NOW()
WHERE id = $1::uuid
RETURNING failed_login_attempts, locked_until;`

	qUserLoginSuccess = `
UPDATE users
SET failed_login_attempts = 0,
    locked_until          = NULL,
    last_login_at         = $2,
    updated_at            = NOW()
WHERE id = $1::uuid;`

	qUserSetVerifyToken = `
UPDATE users
SET email_verify_token   = $2,
    email_verify_expires = $3,
    updated_at           = NOW()
WHERE id = $1::uuid;`

	qUserConsumeVerifyToken = `
UPDATE users
SET email_verified       = TRUE,
    email_verify_token   = NULL,
    email_verify_expires = NULL,
    updated_at           = NOW()
WHERE email_verify_token = $1
  AND email_verify_expires > $2
RETURNING ` + userColumns + `;`

	qUserSetResetToken = `
UPDATE users
SET password_reset_token   = $2,
    password_reset_expires = $3,
    updated_at             = NOW()
WHERE id = $1::uuid;`

	qUserConsumeResetToken = `
UPDATE users
SET password_hash          = $2,
    password_reset_token   = NULL,
    password_reset_expires = NULL,
    failed_login_attempts  = 0,
    locked_until           = NULL,
    updated_at             = NOW()
WHERE password_reset_token = $1
  AND password_reset_expires > $3
RETURNING ` + userColumns + `;`
)

func (r *UserRepo) Create(ctx context.Context, u *user.User) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	row := r.db.execQueryer(ctx).QueryRow(ctx, qUserInsert,
		u.ID, u.Email, u.Name, u.PasswordHash, string(u.Role), u.EmailVerified, u.CreatedAt)
	if err := scanUser(row, u); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %w", user.ErrEmailTaken, ErrConflict)
		}
		return fmt.Errorf("user insert: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*user.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var u user.User
	if err := scanUser(r.db.execQueryer(ctx).QueryRow(ctx, qUserByID, id), &u); err != nil {
		if isInvalidText(err) {
			return nil, fmt.Errorf("%w: %w", user.ErrNotFound, ErrNotFound)
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var u user.User
	if err := scanUser(r.db.execQueryer(ctx).QueryRow(ctx, qUserByEmail, email), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) List(ctx context.Context, p user.Page) ([]*user.User, int, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	pattern := likePattern(p.Search)
	eq := r.db.execQueryer(ctx)
	var total int
	if err := eq.QueryRow(ctx, qUserCount, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("user count: %w", err)
	}

	rows, err := eq.Query(ctx, qUserList, p.Limit, max(p.Offset, 0), pattern)
	if err != nil {
		return nil, 0, fmt.Errorf("user list: %w", err)
	}
	defer rows.Close()

	out := make([]*user.User, 0, p.Limit)
	for rows.Next() {
		var u user.User
		if err := scanUser(rows, &u); err != nil {
			return nil, 0, err
		}
		out = append(out, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("user list: %w", err)
	}
	return out, total, nil
}

func (r *UserRepo) Update(ctx context.Context, id string, p user.Patch, now time.Time) (*user.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var role *string
	if p.Role != nil {
		s := string(*p.Role)
		role = &s
	}
	var u user.User
	row := r.db.execQueryer(ctx).QueryRow(ctx, qUserUpdate, id, p.Name, role, p.EmailVerified, now)
	if err := scanUser(row, &u); err != nil {
		if isInvalidText(err) {
			return nil, fmt.Errorf("%w: %w", user.ErrNotFound, ErrNotFound)
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) Delete(ctx context.Context, id string) error {
	err := r.execOne(ctx, "user delete", qUserDelete, id)
	if isInvalidText(err) {
		return fmt.Errorf("%w: %w", user.ErrNotFound, ErrNotFound)
	}
	return err
}

func (r *UserRepo) RecordLoginFailure(ctx context.Context, id string, p user.LockoutPolicy, now time.Time) (user.LoginState, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var st user.LoginState
	err := r.db.execQueryer(ctx).
		QueryRow(ctx, qUserLoginFailure, id, p.Threshold, now, p.StepSeconds()).
		Scan(&st.FailedLoginAttempts, &st.LockedUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.LoginState{}, fmt.Errorf("%w: %w", user.ErrNotFound, ErrNotFound)
		}
		return user.LoginState{}, fmt.Errorf("user login failure: %w", err)
	}
	return st, nil
}

func (r *UserRepo) RecordLoginSuccess(ctx context.Context, id string, now time.Time) error {
	return r.execOne(ctx, "user login success", qUserLoginSuccess, id, now)
}

func (r *UserRepo) SetEmailVerifyToken(ctx context.Context, id, tokenHash string, expires time.Time) error {
	return r.execOne(ctx, "user set verify token", qUserSetVerifyToken, id, tokenHash, expires)
}

func (r *UserRepo) ConsumeEmailVerifyToken(ctx context.Context, tokenHash string, now time.Time) (*user.User, error) {
	return r.consume(ctx, qUserConsumeVerifyToken, tokenHash, now)
}

func (r *UserRepo) SetPasswordResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error {
	return r.execOne(ctx, "user set reset token", qUserSetResetToken, id, tokenHash, expires)
}

func (r *UserRepo) ConsumePasswordResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*user.User, error) {
	return r.consume(ctx, qUserConsumeResetToken, tokenHash, passwordHash, now)
}

func (r *UserRepo) consume(ctx context.Context, q string, args ...any) (*user.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var u user.User
	if err := scanUser(r.db.execQueryer(ctx).QueryRow(ctx, q, args...), &u); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, user.ErrTokenInvalid
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) execOne(ctx context.Context, op, q string, args ...any) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %w", user.ErrNotFound, ErrNotFound)
	}
	return nil
}

func scanUser(row pgx.Row, out *user.User) error {
	var role string
	err := row.Scan(
		&out.ID, &out.Email, &out.Name, &out.PasswordHash, &role, &out.EmailVerified,
		&out.FailedLoginAttempts, &out.LockedUntil, &out.LastLoginAt, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %w", user.ErrNotFound, ErrNotFound)
		}
		return fmt.Errorf("scan user: %w", err)
	}
	out.Role = auth.Role(role)
	return nil
}

func isInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}
