package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/pauljones0/dealboard/internal/ai"
	"github.com/pauljones0/dealboard/internal/api"
	"github.com/pauljones0/dealboard/internal/auth"
	"github.com/pauljones0/dealboard/internal/cache"
	"github.com/pauljones0/dealboard/internal/config"
	"github.com/pauljones0/dealboard/internal/logging"
	"github.com/pauljones0/dealboard/internal/media"
	"github.com/pauljones0/dealboard/internal/notifier"
	"github.com/pauljones0/dealboard/internal/payment"
	"github.com/pauljones0/dealboard/internal/processor"
	"github.com/pauljones0/dealboard/internal/scheduler"
	"github.com/pauljones0/dealboard/internal/scraper"
	"github.com/pauljones0/dealboard/internal/storage"
)

func main() {
	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Critical error loading configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(cfg.LogLevel))
	slog.Info("Starting dealboard server...", "env", cfg.AppEnv, "storage", cfg.StorageBackend)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("Critical error initializing storage", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	keys, closeKeys := openKeyStore(ctx, cfg)
	defer closeKeys()

	var mailer auth.Mailer = auth.LogMailer{}
	if cfg.SMTPHost != "" {
		mailer = auth.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)
	} else {
		slog.Warn("SMTP_HOST not set, verification emails are only logged")
	}
	tokens := auth.NewTokenManager(cfg.JWTSecret)
	verifier := auth.NewVerifier(keys, mailer, store, cfg.PublicBaseURL)
	authService := auth.NewService(store, tokens, verifier, cfg.AdminEmails)

	var uploader media.Uploader
	if cfg.UploadsEnabled() {
		r2, err := media.NewR2Uploader(ctx, cfg)
		if err != nil {
			slog.Error("Critical error initializing R2 uploads", "error", err)
			os.Exit(1)
		}
		uploader = r2
	} else {
		slog.Warn("R2 credentials not set, image uploads are disabled")
	}

	var gateway api.Payments
	if cfg.PaymentsEnabled() {
		gateway = payment.NewGateway(cfg, keys)
	} else {
		slog.Warn("Payment keys not set, submissions are accepted without payment")
	}

	selectors := scraper.LoadConfig()
	var renderer scraper.Renderer
	if cfg.HeadlessFallback {
		chrome := scraper.NewChromeRenderer(selectors.UserAgent, cfg.ExtractTimeout)
		defer chrome.Close()
		renderer = chrome
	}
	extractor := scraper.New(cfg, selectors, renderer)

	opts := []processor.Option{processor.WithKeyStore(keys)}
	enricher, err := ai.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, nil)
	if err != nil {
		slog.Warn("AI enrichment disabled", "error", err)
	} else if enricher != nil {
		opts = append(opts, processor.WithEnricher(enricher))
	}
	deals := processor.New(store, notifier.New(cfg.DiscordWebhookURL), extractor, cfg, opts...)

	sweeper := scheduler.New(store, cfg.ExpirySweepSpec)
	if err := sweeper.Start(ctx); err != nil {
		slog.Error("Critical error starting expiry sweep", "spec", cfg.ExpirySweepSpec, "error", err)
		os.Exit(1)
	}
	defer sweeper.Stop()

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Deps{
		Auth:        authService,
		Deals:       deals,
		Store:       store,
		Uploader:    uploader,
		Payments:    gateway,
		CORSOrigins: cfg.CORSOrigins,
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT
	go func() {
		<-ctx.Done()
		slog.Info("Received signal, shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
	}()

	slog.Info("Listening on port", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Failed to listen and serve", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped.")
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageBackend {
	case config.BackendFirestore:
		return storage.NewFirestore(ctx, cfg.ProjectID)
	case config.BackendMemory:
		return storage.NewMemoryStore(), nil
	default:
		return storage.NewPostgres(ctx, cfg.DatabaseURL)
	}
}

// openKeyStore connects to redis, falling back to process memory outside
// production when redis is unreachable.
func openKeyStore(ctx context.Context, cfg *config.Config) (cache.KeyStore, func()) {
	rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
	if err == nil {
		return cache.NewRedisStore(rdb), func() { _ = rdb.Close() }
	}
	if cfg.AppEnv == "production" {
		slog.Error("Critical error connecting to redis", "error", err)
		os.Exit(1)
	}
	slog.Warn("Redis unavailable, using in-memory key store", "error", err)
	return cache.NewMemoryStore(), func() {}
}
