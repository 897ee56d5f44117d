package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/auth"
)

// SessionCookie is the cookie browsers send instead of a bearer header.
const SessionCookie = "session"

// RoleLoader returns the current role names of a user. Roles are read on
// every request so that a demotion takes effect without a new login.
type RoleLoader func(ctx context.Context, userID int64) ([]string, error)

// Authenticator turns request credentials into an auth.Session.
type Authenticator struct {
	tokens *auth.Tokens
	roles  RoleLoader
	log    *slog.Logger
}

func NewAuthenticator(tokens *auth.Tokens, roles RoleLoader, log *slog.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, roles: roles, log: log.With("component", "auth")}
}

// tokenFrom reads the bearer header, then the session cookie, then the
// token query parameter (websocket clients cannot set headers).
func tokenFrom(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
		return cookie, true
	}
	if q := c.Query("token"); q != "" {
		return q, true
	}
	return "", false
}

func (a *Authenticator) session(c *gin.Context) (auth.Session, int, string) {
	token, ok := tokenFrom(c)
	if !ok {
		return auth.Session{}, http.StatusUnauthorized, "Authorization header required"
	}
	userID, err := a.tokens.ValidateToken(token)
	if err != nil {
		return auth.Session{}, http.StatusUnauthorized, "Invalid or expired token"
	}
	roles, err := a.roles(c.Request.Context(), userID)
	if err != nil {
		a.log.Error("failed to load roles", "userID", userID, "error", err)
		return auth.Session{}, http.StatusInternalServerError, "Failed to load session"
	}
	return auth.Session{UserID: userID, Roles: roles}, 0, ""
}

// RequireAuth aborts with 401 unless the request carries a valid token.
func (a *Authenticator) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, status, msg := a.session(c)
		if status != 0 {
			c.JSON(status, gin.H{"error": msg})
			c.Abort()
			return
		}
		auth.SetSession(c, s)
		c.Next()
	}
}

// OptionalAuth sets the session when the token is valid and otherwise lets
// the request through as a guest.
func (a *Authenticator) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s, status, _ := a.session(c); status == 0 {
			auth.SetSession(c, s)
		}
		c.Next()
	}
}

// RequireRole must run after RequireAuth. Any one of names is enough.
func RequireRole(names ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := auth.SessionFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not logged in"})
			c.Abort()
			return
		}
		for _, name := range names {
			if s.HasRole(name) {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied: " + strings.Join(names, " or ") + " role required"})
		c.Abort()
	}
}
