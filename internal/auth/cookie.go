package auth

import (
	"net/http"
	"time"
)

type CookieOptions struct {
	Name   string
	Domain string
	Path   string
	Secure bool
	MaxAge time.Duration
}

// CookieTransport writes the session token as an HttpOnly, SameSite=Lax cookie.
type CookieTransport struct {
	opts CookieOptions
}

func NewCookieTransport(o CookieOptions) *CookieTransport {
	if o.Name == "" {
		o.Name = CookieName
	}
	if o.Path == "" {
		o.Path = "/"
	}
	if o.MaxAge <= 0 {
		o.MaxAge = DefaultTTL
	}
	return &CookieTransport{opts: o}
}

func (t *CookieTransport) Name() string { return t.opts.Name }

func (t *CookieTransport) Attach(w http.ResponseWriter, token string) {
	c := t.cookie(token)
	c.MaxAge = int(t.opts.MaxAge / time.Second)
	http.SetCookie(w, c)
}

// Clear expires the cookie immediately (Max-Age=0 on the wire).
func (t *CookieTransport) Clear(w http.ResponseWriter) {
	c := t.cookie("")
	c.MaxAge = -1
	http.SetCookie(w, c)
}

func (t *CookieTransport) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     t.opts.Name,
		Value:    value,
		Path:     t.opts.Path,
		Domain:   t.opts.Domain,
		HttpOnly: true,
		Secure:   t.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
