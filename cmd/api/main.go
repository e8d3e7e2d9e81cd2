package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/avikram1/campusauth/internal/background"
	"github.com/avikram1/campusauth/internal/config"
	"github.com/avikram1/campusauth/internal/database"
	"github.com/avikram1/campusauth/internal/handlers"
	middlewareCustom "github.com/avikram1/campusauth/internal/middleware"
	"github.com/avikram1/campusauth/internal/models"
	"github.com/avikram1/campusauth/internal/repositories"
	"github.com/avikram1/campusauth/internal/routes"
	"github.com/avikram1/campusauth/internal/services"
	pkgauth "github.com/avikram1/campusauth/pkg/auth"
	pkghttp "github.com/avikram1/campusauth/pkg/http"
	pkglogger "github.com/avikram1/campusauth/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.Migrate(migrateCtx, db.Pool); err != nil {
		migrateCancel()
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	migrateCancel()

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db.Pool)
	passwordHistoryRepo := repositories.NewPasswordHistoryRepository(db.Pool)
	verificationHistoryRepo := repositories.NewVerificationHistoryRepository(db.Pool)
	authStore := repositories.NewAuthStore(db, accountRepo, passwordHistoryRepo, verificationHistoryRepo)

	// Audit logging
	auditLogger := pkglogger.NewAuditLogger(logger)

	// AWS SES email delivery for one-time codes
	emailService, err := services.NewAWSSESEmailService(
		cfg.Email.AWSRegion,
		cfg.Email.FromAddress,
		logger,
	)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	// Core services
	lockoutService := services.NewLockoutService(accountRepo, services.LockoutConfig{
		MaxLoginAttempts:   cfg.Auth.MaxLoginAttempts,
		LockoutDuration:    cfg.Auth.LockoutDuration,
		MaxLockoutDuration: cfg.Auth.MaxLockoutDuration,
		AttemptWindow:      cfg.Auth.AttemptWindow,
	}, logger, auditLogger)

	otpService := services.NewOtpService(&otpStore{accountRepo, authStore}, emailService, services.OtpConfig{
		Expiry:            cfg.Auth.OtpExpiry,
		MaxVerifyAttempts: cfg.Auth.MaxOtpVerifyAttempts,
		VerifyLockoutDur:  cfg.Auth.OtpVerifyLockDuration,
	}, logger, auditLogger)

	sessionService := services.NewSessionService(accountRepo, services.SessionConfig{
		Expiry:         cfg.Auth.SessionExpiry,
		MaxAge:         cfg.Auth.SessionMaxAge,
		TakeoverSecret: cfg.Auth.TakeoverTokenSecret,
		TakeoverExpiry: cfg.Auth.TakeoverTokenExpiry,
	}, logger, auditLogger)

	resetService := services.NewPasswordResetService(
		&otpStore{accountRepo, authStore},
		passwordHistoryRepo,
		authStore,
		otpService,
		logger,
		auditLogger,
	)

	authService := services.NewAuthService(accountRepo, lockoutService, otpService, sessionService, logger, auditLogger)

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(sessionService, logger, cfg.Auth.CleanupInterval)

	// Trusted proxy config for client IP extraction
	ipConfig := &pkghttp.IPConfig{}
	if proxies := os.Getenv("TRUSTED_PROXIES"); proxies != "" {
		ipConfig.TrustedProxies = splitAndTrim(proxies)
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, lockoutService, sessionService, ipConfig)
	otpHandler := handlers.NewOtpHandler(otpService, ipConfig)
	resetHandler := handlers.NewPasswordResetHandler(resetService, ipConfig)
	adminHandler := handlers.NewAdminHandler(sessionService, cfg.Auth.CleanupSecret)

	// Bootstrap first admin account if configured
	bootstrapCtx, bootstrapCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminAccount(bootstrapCtx, accountRepo, logger); err != nil {
		logger.Error("failed to ensure admin account", slog.Any("error", err))
	}
	bootstrapCancel()

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.Env)
	corsConfig.AllowedOrigins = cfg.Server.AllowedOrigins

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, authHandler, otpHandler, resetHandler, adminHandler)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// otpStore adapts the account repository plus the transactional auth store
// to the services.OtpRepository interface.
type otpStore struct {
	*repositories.AccountRepository
	*repositories.AuthStore
}

// ensureAdminAccount creates the first admin if ADMIN_EMAIL and
// ADMIN_PASSWORD are set
func ensureAdminAccount(ctx context.Context, accountRepo *repositories.AccountRepository, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin account creation")
		return nil
	}

	_, err := accountRepo.GetByEmail(ctx, adminEmail)
	if err == nil {
		logger.Info("admin account already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &models.Account{
		Email:        adminEmail,
		PasswordHash: hashedPassword,
		Name:         "Admin",
		Role:         "admin",
	}

	if _, err := accountRepo.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin account: %w", err)
	}

	logger.Info("admin account created successfully")
	return nil
}

func splitAndTrim(s string) []string {
	var parts []string
	for _, p := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
