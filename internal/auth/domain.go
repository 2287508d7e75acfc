package auth

import (
	"errors"
	"fmt"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleUser      Role = "user"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleUser:
		return true
	}
	return false
}

// IsPrivileged reports whether the role may use moderation and admin endpoints.
func (r Role) IsPrivileged() bool {
	return r == RoleAdmin || r == RoleModerator
}

func IsPrivileged(r Role) bool { return r.IsPrivileged() }

// Claims is the session token payload. Field order is the wire order.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	Exp    int64  `json:"exp"` // expires at, unix seconds
}

// Subject is the identity a token is issued for.
type Subject struct {
	UserID string
	Email  string
	Role   Role
}

var ErrInvalidSubject = errors.New("invalid token subject")

func (s Subject) validate() error {
	switch {
	case s.UserID == "":
		return fmt.Errorf("%w: empty user id", ErrInvalidSubject)
	case s.Email == "":
		return fmt.Errorf("%w: empty email", ErrInvalidSubject)
	case !s.Role.Valid():
		return fmt.Errorf("%w: unknown role %q", ErrInvalidSubject, s.Role)
	}
	return nil
}

// claimsWire is the decode-side view of Claims; nil fields mark missing keys.
type claimsWire struct {
	UserID *string `json:"userId"`
	Email  *string `json:"email"`
	Role   *string `json:"role"`
	Exp    *int64  `json:"exp"`
}

func (w claimsWire) claims() (Claims, bool) {
	if w.UserID == nil || w.Email == nil || w.Role == nil || w.Exp == nil {
		return Claims{}, false
	}
	c := Claims{UserID: *w.UserID, Email: *w.Email, Role: Role(*w.Role), Exp: *w.Exp}
	if c.UserID == "" || c.Email == "" || !c.Role.Valid() || c.Exp <= 0 {
		return Claims{}, false
	}
	return c, true
}
