package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/ai"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/auth"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/config"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/database"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/handlers"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/jobs"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/listings"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/lock"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/logger"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/media"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/middleware"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/packages"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/payments"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/routes"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/users"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/vnpay"
	"github.com/redis/go-redis/v9"
)

func main() {
	// 0. --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 1. --- Logger ---
	logCfg := logger.Config{Level: logger.ParseLevel(cfg.LogLevel), UseColor: true}
	if cfg.FluentBit.Enabled {
		fl, err := logger.NewFluentClient(cfg.FluentBit.Host, cfg.FluentBit.Port, cfg.AppName)
		if err != nil {
			log.Printf("WARNING: Fluent Bit disabled: %v", err)
		} else {
			defer fl.Close()
			logCfg.Fluent = fl
			logCfg.FluentLevel = logger.ParseLevel(cfg.FluentBit.Level)
		}
	}
	appLog := logger.New(logCfg)
	slog.SetDefault(appLog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. --- Databases ---
	db, err := database.OpenDB(cfg.Database.PrimaryDSN, appLog)
	if err != nil {
		fatal(appLog, "Failed to connect to primary database", err)
	}
	defer db.Close()

	dbReadOnly, err := database.OpenDB(cfg.Database.ReadOnlyDSN, appLog)
	if err != nil {
		fatal(appLog, "Failed to connect to read-only database", err)
	}
	defer dbReadOnly.Close()

	// 3. --- Per-user lock ---
	var locker lock.Locker
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			fatal(appLog, "Failed to connect to Redis", err)
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, appLog)
		appLog.Info("Using Redis locks", "addr", cfg.Redis.Addr)
	} else {
		locker = lock.NewLocalLocker()
		appLog.Warn("REDIS_ADDR not set, using in-process locks (single instance only)")
	}

	// 4. --- Photo storage ---
	var storage media.Storage
	uploadDir := ""
	if cfg.S3.Bucket != "" {
		storage, err = media.NewS3Storage(ctx, media.S3Config{
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Endpoint:        cfg.S3.Endpoint,
		}, appLog)
	} else {
		uploadDir = cfg.UploadDir
		storage, err = media.NewLocalStorage(cfg.UploadDir, cfg.BaseURL, appLog)
	}
	if err != nil {
		fatal(appLog, "Failed to initialize photo storage", err)
	}

	// 5. --- Services ---
	userStore := users.NewStore(db)
	listingService := listings.NewService(db, dbReadOnly, storage, locker, appLog)
	expiration := packages.NewService(packages.NewMySQLStore(db), locker, storage, appLog, packages.Options{
		BasicRole:   cfg.Expiration.BasicRole,
		GracePeriod: cfg.Expiration.GracePeriod,
	})
	gateway := vnpay.NewClient(vnpay.Config{
		TmnCode:    cfg.VNPay.TmnCode,
		HashSecret: cfg.VNPay.HashSecret,
		PaymentURL: cfg.VNPay.PaymentURL,
	})
	paymentService := payments.NewService(payments.NewMySQLStore(db), gateway, locker, appLog, cfg.VNPay.ReturnURL)

	// 6. --- AI Assistant (optional) ---
	var assistant *ai.Assistant
	var hub *ai.Hub
	if cfg.GeminiAPIKey != "" {
		aiService, err := ai.NewAIService(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, dbReadOnly, appLog)
		if err != nil {
			fatal(appLog, "Failed to initialize AI Service", err)
		}
		defer aiService.Close()
		assistant = ai.NewAssistant(aiService, db, appLog)
		hub = ai.NewHub(assistant, cfg.CORSOrigins, appLog)
		go hub.Run(ctx)
	} else {
		appLog.Warn("GEMINI_API_KEY not set, chat assistant disabled")
	}

	// 7. --- Background Workers ---
	scheduler, err := jobs.NewScheduler(expiration, cfg.Expiration.Schedule, cfg.Expiration.Timeout, appLog)
	if err != nil {
		fatal(appLog, "Failed to schedule expiration job", err)
	}
	scheduler.Start()

	loginChecks := jobs.NewLoginChecks(expiration, cfg.Expiration.QueueSize, cfg.Expiration.Timeout, appLog)
	loginChecks.Start(ctx)

	// --- Application Setup ---
	app := &handlers.Handlers{
		DB:          db,
		Users:       userStore,
		Tokens:      auth.NewTokens(cfg.JWTSecret, auth.DefaultTokenTTL),
		Listings:    listingService,
		Payments:    paymentService,
		Expiration:  expiration,
		LoginChecks: loginChecks,
		BasicRole:   cfg.Expiration.BasicRole,
		ResultURL:   cfg.VNPay.ResultURL,
		Log:         appLog,
	}
	if assistant != nil {
		app.Assistant = assistant
	}

	authn := middleware.NewAuthenticator(app.Tokens, func(ctx context.Context, userID int64) ([]string, error) {
		return users.RolesForUser(ctx, db, userID)
	}, appLog)

	gin.SetMode(gin.ReleaseMode)
	router := routes.SetupRouter(app, authn, hub, routes.Options{
		CORSOrigins: cfg.CORSOrigins,
		UploadDir:   uploadDir,
		Log:         appLog,
	})

	// --- Start Server ---
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		appLog.Info("Starting HomeLengo API server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(appLog, "Failed to start server", err)
		}
	}()

	<-ctx.Done()
	appLog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP server shutdown failed", "error", err)
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		appLog.Warn("Expiration job did not stop in time", "error", err)
	}
	loginChecks.Wait()
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
