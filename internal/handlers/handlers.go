// Package handlers holds the gin handlers of the JSON API.
package handlers

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/ai"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/auth"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/listings"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/models"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/packages"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/payments"
)

// UserStore is the account storage the auth handlers need.
type UserStore interface {
	Create(ctx context.Context, user *models.User, roleName string) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// ListingService is implemented by *listings.Service.
type ListingService interface {
	Search(ctx context.Context, f listings.Filter) (*listings.Page, error)
	GetBySlug(ctx context.Context, slug string) (*models.Property, error)
	Create(ctx context.Context, userID int64, in listings.CreateInput) (*models.Property, error)
	Delete(ctx context.Context, userID, propertyID int64) error
	ListForAgent(ctx context.Context, userID int64) ([]models.Property, error)
	AddPhoto(ctx context.Context, userID, propertyID int64, name, contentType string, data []byte) (*models.PropertyPhoto, error)
	ToggleFavorite(ctx context.Context, userID, propertyID int64) (bool, error)
	ListFavorites(ctx context.Context, userID int64) ([]models.Property, error)
	AddInquiry(ctx context.Context, in *models.Inquiry) error
	AddReview(ctx context.Context, r *models.Review) error
	ListReviews(ctx context.Context, propertyID int64) ([]models.Review, error)
}

// PaymentService is implemented by *payments.Service.
type PaymentService interface {
	Checkout(ctx context.Context, userID, planID int64, clientIP string) (*payments.Checkout, error)
	HandleReturn(ctx context.Context, values url.Values) (payments.Outcome, error)
	Status(ctx context.Context, txnRef string) (*models.PaymentTransaction, error)
	QRCode(ctx context.Context, userID int64, txnRef string) ([]byte, error)
}

// Expirer is implemented by *packages.Service.
type Expirer interface {
	ProcessExpiredPackages(ctx context.Context) (packages.Result, error)
	ProcessExpiredPackageForUser(ctx context.Context, userID int64) (packages.Result, error)
}

// LoginQueue schedules the post-login package check. *jobs.LoginChecks
// implements it.
type LoginQueue interface {
	Enqueue(userID int64) bool
}

// Chatter answers assistant messages. *ai.Assistant implements it.
type Chatter interface {
	Chat(ctx context.Context, userID *int64, role, message string) (ai.Reply, error)
}

// Handlers struct holds all dependencies for our handlers.
type Handlers struct {
	DB          *sql.DB // plans, packages and notifications are read directly
	Users       UserStore
	Tokens      *auth.Tokens
	Listings    ListingService
	Payments    PaymentService
	Expiration  Expirer
	LoginChecks LoginQueue
	Assistant   Chatter // nil when no Gemini key is configured
	BasicRole   string
	ResultURL   string // front-end page the VNPay return redirects to
	Log         *slog.Logger
}

// currentUser returns the session set by the auth middleware. Routes behind
// RequireAuth always have one.
func currentUser(c *gin.Context) (auth.Session, bool) {
	return auth.SessionFrom(c)
}

// idParam parses a positive integer path parameter and writes a 400 when it
// is not one.
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

// internalError logs err and answers with a generic 500.
func (h *Handlers) internalError(c *gin.Context, msg string, err error) {
	h.Log.Error(msg, "path", c.FullPath(), "error", err)
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
