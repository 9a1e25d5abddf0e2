package app

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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"collegenetwork/docs"
	"collegenetwork/internal/config"
	"collegenetwork/internal/db"
	"collegenetwork/internal/handlers"
	"collegenetwork/internal/jobs"
	"collegenetwork/internal/metrics"
	"collegenetwork/internal/middleware"
	"collegenetwork/internal/models"
	"collegenetwork/internal/repositories"
	"collegenetwork/internal/routes"
	"collegenetwork/internal/services"
	"collegenetwork/internal/utils"
)

func Run() {
	cfg := config.LoadConfig()
	logger := NewLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", "err", err)
		os.Exit(1)
	}
}

func NewLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// === Store ===
	repo, err := newChallengeRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Warn("store close failed", "err", err)
		}
	}()

	// === Metrics ===
	mp, err := metrics.NewMeterProvider(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName, cfg.Telemetry.Insecure)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = mp.Shutdown(shutdownCtx)
	}()
	otpMetrics, err := metrics.NewOTPMetrics(mp)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// === Delivery ===
	dispatcher, tg, err := newDispatcher(cfg, logger)
	if err != nil {
		return err
	}

	// === Services ===
	otpService := services.NewOTPService(repo, dispatcher, services.OTPOptions{
		TTL:           cfg.OTP.TTL,
		Cooldown:      cfg.OTP.Cooldown,
		MaxAttempts:   cfg.OTP.MaxAttempts,
		MaxSends:      cfg.OTP.MaxSends,
		SendWindow:    cfg.OTP.SendWindow,
		CodeLength:    cfg.OTP.CodeLength,
		Alphabet:      cfg.OTP.Alphabet,
		BcryptCost:    cfg.OTP.BcryptCost,
		AsyncDelivery: cfg.Delivery.Mode == "async",
	})
	otpService.Metrics = otpMetrics
	otpService.Logger = logger

	if cfg.Delivery.Mode == "async" {
		pool := services.NewDeliveryPool(dispatcher, cfg.Delivery.Workers, cfg.Delivery.QueueSize, logger)
		pool.Start()
		otpService.Pool = pool
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			pool.Stop(stopCtx)
		}()
	}

	var tokens *services.TokenService
	if cfg.JWT.Secret != "" {
		tokens = services.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)
		otpService.Tokens = tokens
	} else {
		logger.Warn("jwt.secret is empty: verify responses carry no token")
	}

	// === Rate limit ===
	var limiter middleware.Limiter
	var ipLimiter *middleware.IPRateLimiter
	if cfg.RateLimit.Enabled {
		switch cfg.RateLimit.Backend {
		case "redis":
			rdb, err := repositories.ConnectToRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
			if err != nil {
				return err
			}
			defer rdb.Close()
			limiter = middleware.NewRedisRateLimiter(rdb, float64(cfg.RateLimit.Burst), cfg.RateLimit.RPS)
		default:
			ipLimiter = middleware.NewIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
			limiter = ipLimiter
		}
	}

	// === Janitor ===
	janitor := jobs.NewJanitor(otpService, cfg.Store.Retention, logger)
	if ipLimiter != nil {
		janitor.AddSweep(ipLimiter.Cleanup)
	}
	if err := janitor.Start(cfg.Janitor.Schedule); err != nil {
		return err
	}
	defer janitor.Stop()

	// === Handlers ===
	otpHandler := handlers.NewOTPHandler(otpService)
	var integrations *handlers.IntegrationsHandler
	if tg != nil {
		integrations = handlers.NewIntegrationsHandler(tg, otpService, cfg.Telegram.WebhookSecret, logger)
	}

	// === Gin ===
	docs.SwaggerInfo.BasePath = cfg.Server.BasePath
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(corsMiddleware(cfg.Server.CORSOrigins))

	if _, err := routes.SetupRoutes(router, otpHandler, routes.Options{
		BasePath:     cfg.Server.BasePath,
		Limiter:      limiter,
		Tokens:       tokens,
		Integrations: integrations,
		Swagger:      cfg.Server.Swagger,
		Logger:       logger,
	}); err != nil {
		return err
	}

	// === Run ===
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started", "addr", srv.Addr, "store", cfg.Store.Backend, "delivery", cfg.Delivery.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newChallengeRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repositories.OTPChallengeRepository, error) {
	switch cfg.Store.Backend {
	case "postgres":
		if cfg.Database.Migrate {
			if err := db.Migrate(cfg.Database.DSN); err != nil {
				return nil, err
			}
			logger.Info("migrations applied")
		}
		conn, err := db.Open(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		return repositories.NewPostgresOTPChallengeRepository(conn), nil
	case "redis":
		rdb, err := repositories.ConnectToRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		return repositories.NewRedisOTPChallengeRepository(rdb, cfg.Store.Retention), nil
	default:
		return repositories.NewMemoryOTPChallengeRepository(), nil
	}
}

// newDispatcher: каналы по конфигу; без ключей провайдера канал работает в dry-run.
func newDispatcher(cfg *config.Config, logger *slog.Logger) (*services.Dispatcher, *services.TelegramService, error) {
	d := services.NewDispatcher(cfg.Delivery.Timeout, logger)

	switch {
	case cfg.Email.DryRun:
		d.Register(models.ChannelEmail, services.DryRunChannel{Name: models.ChannelEmail, Logger: logger})
	case cfg.Email.Provider == "sendgrid":
		d.Register(models.ChannelEmail, services.NewSendGridEmailService(cfg.Email.SendGridAPIKey, cfg.Email.FromEmail, cfg.Email.FromName))
	default:
		d.Register(models.ChannelEmail, services.NewEmailService(
			cfg.Email.SMTPHost,
			cfg.Email.SMTPPort,
			cfg.Email.SMTPUser,
			cfg.Email.SMTPPassword,
			cfg.Email.FromEmail,
			cfg.Email.FromName,
		))
	}

	// SMS провайдер (Mobizon) из конфига
	mobizonClient := utils.NewClientWithOptions(
		cfg.Mobizon.APIKey,
		cfg.Mobizon.SenderID,
		cfg.Mobizon.DryRun,
		cfg.Delivery.Timeout,
		logger,
	)
	d.Register(models.ChannelSMS, services.NewSMSService(mobizonClient))

	var tg *services.TelegramService
	if cfg.Telegram.DryRun || cfg.Telegram.BotToken == "" {
		d.Register(models.ChannelTelegram, services.DryRunChannel{Name: models.ChannelTelegram, Logger: logger})
	} else {
		var err error
		tg, err = services.NewTelegramService(cfg.Telegram.BotToken)
		if err != nil {
			return nil, nil, err
		}
		d.Register(models.ChannelTelegram, tg)
	}
	return d, tg, nil
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Retry-After", middleware.RequestIDHeader},
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return cors.New(c)
}
