package auth

import (
	"context"
	"net/http"
	"strings"
)

const CookieName = "authToken"

const bearerPrefix = "bearer "

// TokenFromRequest looks for a session token in the named cookie first and
// then in an "Authorization: Bearer" header.
func TokenFromRequest(r *http.Request, cookieName string) (string, bool) {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	v := r.Header.Get("Authorization")
	if len(v) < len(bearerPrefix) || !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(v[len(bearerPrefix):])
	return token, token != ""
}

// Authenticator resolves the session of an inbound request.
type Authenticator struct {
	codec      *Codec
	cookieName string
}

func NewAuthenticator(codec *Codec, cookieName string) *Authenticator {
	if cookieName == "" {
		cookieName = CookieName
	}
	return &Authenticator{codec: codec, cookieName: cookieName}
}

func (a *Authenticator) ExtractToken(r *http.Request) (string, bool) {
	return TokenFromRequest(r, a.cookieName)
}

func (a *Authenticator) Authenticate(r *http.Request) (Claims, bool) {
	token, ok := a.ExtractToken(r)
	if !ok {
		return Claims{}, false
	}
	return a.codec.Verify(token)
}

type ctxKey int

const claimsKey ctxKey = 1

func WithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(claimsKey).(Claims)
	return c, ok
}
