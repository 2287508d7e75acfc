package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	authtoken "github.com/NordCoder/Taskly/internal/auth"
	"github.com/NordCoder/Taskly/internal/domain/user"
	"github.com/NordCoder/Taskly/internal/services/api-gateway/auth"
	"github.com/NordCoder/Taskly/internal/services/api-gateway/paging"
)

var (
	ErrForbidden         = errors.New("forbidden")
	ErrNameEmailRequired = errors.New("name and email are required")
	ErrInvalidRole       = errors.New("invalid role")
	ErrDeleteSelf        = errors.New("you cannot delete your own account")
)

type ListResult struct {
	Users      []*user.User
	Pagination paging.Pagination
}

type Usecase struct {
	repo   user.Repo
	hasher auth.Hasher
	now    func() time.Time
}

func New(repo user.Repo, hasher auth.Hasher) *Usecase {
	return &Usecase{repo: repo, hasher: hasher, now: time.Now}
}

// List pages through all users, newest first. Only privileged roles may list.
func (u *Usecase) List(ctx context.Context, requester authtoken.Claims, req paging.Request, search string) (*ListResult, error) {
	if !authtoken.IsPrivileged(requester.Role) {
		return nil, ErrForbidden
	}
	items, total, err := u.repo.List(ctx, user.Page{Offset: req.Offset, Limit: req.Limit, Search: search})
	if err != nil {
		return nil, err
	}
	return &ListResult{Users: items, Pagination: req.Result(total)}, nil
}

// Get returns a user to a privileged requester or to the user themself.
func (u *Usecase) Get(ctx context.Context, requester authtoken.Claims, id string) (*user.User, error) {
	if requester.UserID != id && !authtoken.IsPrivileged(requester.Role) {
		return nil, ErrForbidden
	}
	return u.repo.GetByID(ctx, id)
}

type CreateInput struct {
	Name  string
	Email string
	Role  authtoken.Role
	// Password is optional; without one the account can only be entered
	// after a password reset.
	Password      string
	EmailVerified bool
}

func (u *Usecase) Create(ctx context.Context, requester authtoken.Claims, in CreateInput) (*user.User, error) {
	if !authtoken.IsPrivileged(requester.Role) {
		return nil, ErrForbidden
	}
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if name == "" || email == "" {
		return nil, ErrNameEmailRequired
	}
	if !auth.ValidEmail(email) {
		return nil, auth.ErrInvalidEmail
	}
	role, err := grantable(requester, in.Role)
	if err != nil {
		return nil, err
	}

	var hash string
	if in.Password != "" {
		if err := auth.ValidatePassword(in.Password); err != nil {
			return nil, err
		}
		if hash, err = u.hasher.Hash(in.Password); err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
	}

	now := u.now()
	nu := &user.User{
		ID:            uuid.NewString(),
		Email:         email,
		Name:          name,
		PasswordHash:  hash,
		Role:          role,
		EmailVerified: in.EmailVerified,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := u.repo.Create(ctx, nu); err != nil {
		return nil, err
	}
	return nu, nil
}

type UpdateInput struct {
	Name          *string
	Role          *authtoken.Role
	EmailVerified *bool
}

// Update lets a user rename themself; every other change needs a
// privileged requester.
func (u *Usecase) Update(ctx context.Context, requester authtoken.Claims, id string, in UpdateInput) (*user.User, error) {
	privileged := authtoken.IsPrivileged(requester.Role)
	if !privileged && (requester.UserID != id || in.Role != nil || in.EmailVerified != nil) {
		return nil, ErrForbidden
	}

	p := user.Patch{EmailVerified: in.EmailVerified}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, auth.ErrInvalidName
		}
		p.Name = &name
	}
	if in.Role != nil {
		role, err := grantable(requester, *in.Role)
		if err != nil {
			return nil, err
		}
		p.Role = &role
	}
	return u.repo.Update(ctx, id, p, u.now())
}

func (u *Usecase) Delete(ctx context.Context, requester authtoken.Claims, id string) error {
	if !authtoken.IsPrivileged(requester.Role) {
		return ErrForbidden
	}
	if requester.UserID == id {
		return ErrDeleteSelf
	}
	return u.repo.Delete(ctx, id)
}

// grantable defaults an empty role to user. Only admins hand out admin.
func grantable(requester authtoken.Claims, r authtoken.Role) (authtoken.Role, error) {
	if r == "" {
		return authtoken.RoleUser, nil
	}
	if !r.Valid() {
		return "", ErrInvalidRole
	}
	if r == authtoken.RoleAdmin && requester.Role != authtoken.RoleAdmin {
		return "", ErrForbidden
	}
	return r, nil
}
