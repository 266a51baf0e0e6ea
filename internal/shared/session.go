package shared

import (
	"net/http"
	"time"
)

// SessionCookies writes and clears the cookie carrying the session credential.
type SessionCookies struct {
	name   string
	secure bool
}

// NewSessionCookies constructs a SessionCookies for cookie name.
func NewSessionCookies(name string, secure bool) *SessionCookies {
	return &SessionCookies{name: name, secure: secure}
}

// Name returns the cookie name.
func (c *SessionCookies) Name() string {
	return c.name
}

// Commit sets the credential cookie, expiring with the credential.
func (c *SessionCookies) Commit(w http.ResponseWriter, token string, expires time.Time) {
	maxAge := int(time.Until(expires).Seconds())
	if maxAge <= 0 {
		c.Destroy(w)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Destroy clears the credential cookie.
func (c *SessionCookies) Destroy(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	})
}
