package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/ai"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/handlers"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/middleware"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/models"
)

// Options are the router settings that do not belong to a handler.
type Options struct {
	CORSOrigins []string
	// UploadDir is served under /uploads when photos are stored locally.
	UploadDir string
	Log       *slog.Logger
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// SetupRouter wires every route. hub may be nil when the assistant is not
// configured.
func SetupRouter(h *handlers.Handlers, authn *middleware.Authenticator, hub *ai.Hub, opts Options) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Recovery(opts.Log))
	router.Use(middleware.RequestLogger(opts.Log))

	// Must come before any route so preflight requests are answered.
	router.Use(corsMiddleware(opts.CORSOrigins))

	if opts.UploadDir != "" {
		router.Static("/uploads", opts.UploadDir)
	}

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong!"})
	})

	requireAuth := authn.RequireAuth()
	optionalAuth := authn.OptionalAuth()

	if hub != nil {
		router.GET("/ws/chat", optionalAuth, hub.ServeWs)
	}

	api := router.Group("/api")
	{
		// --- Auth Routes (Public) ---
		api.POST("/auth/register", h.Register)
		api.POST("/auth/login", h.Login)
		api.POST("/auth/logout", h.Logout)
		api.GET("/auth/me", requireAuth, h.Me)

		// --- Listings ---
		api.GET("/properties", h.SearchProperties)
		api.GET("/listings/:slug", h.GetProperty)
		api.GET("/properties/:id/reviews", h.GetReviews)
		api.POST("/properties/:id/inquiries", optionalAuth, h.CreateInquiry)

		// --- Plans & Payments ---
		api.GET("/plans", h.GetPlans)
		api.GET("/payments/vnpay-return", h.VNPayReturn)

		// --- Package Expiration ---
		api.POST("/PackageExpiration/CheckExpired", h.CheckExpired)
		api.POST("/PackageExpiration/CheckMyPackage", optionalAuth, h.CheckMyPackage)

		// --- AI Chat ---
		api.POST("/ai/chat", optionalAuth, h.ChatAI)

		// --- Protected Routes (Login Required) ---
		user := api.Group("/")
		user.Use(requireAuth)
		{
			user.POST("/payments/checkout", h.Checkout)
			user.GET("/payments/:txnRef", h.GetPaymentStatus)
			user.GET("/payments/:txnRef/qr", h.GetPaymentQR)

			user.GET("/me/packages", h.GetMyPackages)
			user.GET("/me/favorites", h.GetMyFavorites)
			user.POST("/properties/:id/favorite", h.ToggleFavorite)
			user.POST("/properties/:id/reviews", h.CreateReview)

			user.GET("/notifications", h.GetMyNotifications)
			user.PATCH("/notifications/:id/read", h.MarkNotificationAsRead)
		}

		// --- Agent-Only Routes ---
		agent := api.Group("/")
		agent.Use(requireAuth, middleware.RequireRole(models.RoleAgent, models.RoleAdmin))
		{
			agent.GET("/agent/properties", h.GetMyProperties)
			agent.GET("/agent/dashboard-stats", h.GetAgentStats)
			agent.POST("/properties", h.CreateProperty)
			agent.DELETE("/properties/:id", h.DeleteProperty)
			agent.POST("/properties/:id/photos", h.UploadPropertyPhoto)
		}
	}

	return router
}
