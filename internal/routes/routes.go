package routes

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"collegenetwork/internal/handlers"
	"collegenetwork/internal/middleware"
	"collegenetwork/internal/services"
)

type Options struct {
	BasePath     string
	Limiter      middleware.Limiter // nil — без лимита по IP
	Tokens       *services.TokenService
	Integrations *handlers.IntegrationsHandler // nil — без Telegram-вебхука
	Swagger      bool
	Logger       *slog.Logger
}

func SetupRoutes(r *gin.Engine, otpHandler *handlers.OTPHandler, opts Options) (*gin.Engine, error) {
	if err := handlers.RegisterValidators(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// ---- public
	r.GET("/healthz", handlers.Health)
	if opts.Swagger {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	if opts.Integrations != nil {
		r.POST("/integrations/telegram/webhook", opts.Integrations.Webhook)
	}

	// ---- OTP
	otp := r.Group(opts.BasePath)
	if opts.Limiter != nil {
		otp.Use(middleware.RateLimit(opts.Limiter, logger))
	}
	{
		otp.POST("/send", otpHandler.Send)
		otp.POST("/verify", otpHandler.Verify)
		otp.POST("/resend", otpHandler.Resend)
	}

	// ---- verification token
	session := middleware.RequireVerification(nil)
	if opts.Tokens != nil {
		session = middleware.RequireVerification(opts.Tokens)
	}
	r.GET(opts.BasePath+"/session", session, otpHandler.Session)

	return r, nil
}
