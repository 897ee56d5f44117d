package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/auth"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/middleware"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/models"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/users"
)

// --- User Registration ---

// RegisterUserInput is separate from models.User so that clients cannot
// send an id or roles.
type RegisterUserInput struct {
	FullName    string `json:"fullName" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	PhoneNumber string `json:"phoneNumber"`
}

// Register handles POST /api/auth/register. New accounts get the basic role;
// the Agent role comes with the first paid package.
func (h *Handlers) Register(c *gin.Context) {
	var input RegisterUserInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := &models.User{
		Email:    input.Email,
		FullName: strings.TrimSpace(input.FullName),
	}
	if phone := strings.TrimSpace(input.PhoneNumber); phone != "" {
		user.PhoneNumber = &phone
	}

	var password models.Password
	if err := password.Set(input.Password); err != nil {
		h.internalError(c, "Failed to hash password", err)
		return
	}
	user.PasswordHash = password.Hash

	if err := h.Users.Create(c.Request.Context(), user, h.BasicRole); err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "Email is already registered"})
			return
		}
		h.internalError(c, "Failed to create user", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Registered successfully",
		"user":    user,
	})
}

// --- User Login ---

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /api/auth/login. A package check for the user is queued
// in the background; the response does not wait for it.
func (h *Handlers) Login(c *gin.Context) {
	// 1. --- Bind Input ---
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 2. --- Find User & Check Password ---
	user, err := h.Users.GetByEmail(c.Request.Context(), input.Email)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		h.internalError(c, "Database error", err)
		return
	}

	password := models.Password{Hash: user.PasswordHash}
	match, err := password.Matches(input.Password)
	if err != nil {
		h.internalError(c, "Failed to check password", err)
		return
	}
	if !match {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	// 3. --- Issue Token ---
	token, err := h.Tokens.GenerateToken(user.ID)
	if err != nil {
		h.internalError(c, "Failed to generate token", err)
		return
	}

	// 4. --- Queue Package Check (does not block the response) ---
	if h.LoginChecks != nil {
		h.LoginChecks.Enqueue(user.ID)
	}

	// 5. --- Set Cookie & Respond ---
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, token, int(auth.DefaultTokenTTL/time.Second), "/", "", c.Request.TLS != nil, true)
	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"token":   token,
		"user":    user,
	})
}

// Logout clears the session cookie. Bearer tokens simply expire.
func (h *Handlers) Logout(c *gin.Context) {
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", c.Request.TLS != nil, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me handles GET /api/auth/me.
func (h *Handlers) Me(c *gin.Context) {
	s, _ := currentUser(c)
	c.JSON(http.StatusOK, gin.H{
		"userId": s.UserID,
		"roles":  s.Roles,
	})
}
