package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/h1bconnect/account-service/internal/handlers"
	"github.com/h1bconnect/account-service/internal/hasher"
	"github.com/h1bconnect/account-service/internal/mailer"
	"github.com/h1bconnect/account-service/internal/repository"
	"github.com/h1bconnect/account-service/internal/service"
	"github.com/h1bconnect/account-service/pkg/config"
	"github.com/h1bconnect/account-service/pkg/database"
	"github.com/h1bconnect/account-service/pkg/events"
	"github.com/h1bconnect/account-service/pkg/logger"
	mw "github.com/h1bconnect/account-service/pkg/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx := context.Background()

	// Connect to the user directory
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Connect to Redis (token store + rate limiting)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// Connect to event bus
	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	// Initialize repositories
	accountRepo := repository.NewAccountRepository(pool)
	tokenStore := repository.NewTokenStore(redisClient)
	rateLimitRepo := repository.NewRateLimitRepository(redisClient)

	// Initialize services
	accountService := service.NewAccountService(
		accountRepo,
		tokenStore,
		selectMailer(cfg),
		eventBus,
		hasher.New(cfg.Auth.PasswordHashAlgo, cfg.Auth.BcryptCost),
		cfg,
	)

	// Initialize handlers
	h := handlers.New(accountService, rateLimitRepo, cfg)

	// Setup router
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("accounts"))
	r.Use(mw.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.Server.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(mw.Health)

	r.Mount("/api/auth", h.Routes())

	// Start server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down account service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Account service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting account service", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Account service error", "error", err)
		os.Exit(1)
	}
}

func selectMailer(cfg *config.Config) mailer.Service {
	if cfg.Email.DevMode {
		return mailer.NewDevMailer()
	}
	if cfg.Email.MailerSendKey != "" {
		return mailer.NewMailerSend(cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.SMTPFrom)
	}
	return mailer.NewSMTPMailer(
		cfg.Email.SMTPHost,
		cfg.Email.SMTPPort,
		cfg.Email.SMTPFrom,
		cfg.Email.SMTPUser,
		cfg.Email.SMTPPass,
		cfg.Email.SMTPUseTLS,
	)
}
