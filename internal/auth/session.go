// Package auth issues session tokens and carries the signed-in user through
// a request.
package auth

import "github.com/gin-gonic/gin"

const sessionKey = "auth.session"

// Session is the identity of the caller for one request.
type Session struct {
	UserID int64
	Roles  []string
}

func (s Session) HasRole(name string) bool {
	for _, r := range s.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// PrimaryRole is the most privileged role, used to brief the assistant.
func (s Session) PrimaryRole() string {
	for _, r := range []string{"Admin", "Agent", "User"} {
		if s.HasRole(r) {
			return r
		}
	}
	return "Guest"
}

func SetSession(c *gin.Context, s Session) {
	c.Set(sessionKey, s)
}

// SessionFrom returns the session set by the auth middleware, if any.
func SessionFrom(c *gin.Context) (Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return Session{}, false
	}
	s, ok := v.(Session)
	return s, ok
}
