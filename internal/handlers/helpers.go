package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"collegenetwork/internal/services"
	"collegenetwork/internal/utils"
)

// ErrorResponse — единый формат ошибки.
type ErrorResponse struct {
	Error   string `json:"error" example:"invalid_code"`
	Message string `json:"message" example:"code invalid"`
}

// Стабильные коды ошибок для клиентов.
const (
	CodeValidation      = "validation_error"
	CodeInvalidCode     = "invalid_code"
	CodeExpired         = "code_expired"
	CodeTooManyAttempts = "too_many_attempts"
	CodeRateLimited     = "rate_limited"
	CodeDeliveryFailed  = "delivery_failed"
	CodeUnauthorized    = "unauthorized"
	CodeInternal        = "internal_error"
)

// mapError — sentinel-ошибки сервиса в HTTP-статус и код.
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, services.ErrInvalidCode):
		return http.StatusBadRequest, CodeInvalidCode
	case errors.Is(err, services.ErrCodeExpired):
		return http.StatusGone, CodeExpired
	case errors.Is(err, services.ErrTooManyAttempts):
		return http.StatusForbidden, CodeTooManyAttempts
	case errors.Is(err, services.ErrRateLimited):
		return http.StatusTooManyRequests, CodeRateLimited
	case errors.Is(err, services.ErrDelivery):
		return http.StatusBadGateway, CodeDeliveryFailed
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func abortWithError(c *gin.Context, err error) {
	status, code := mapError(err)

	var rl *services.RateLimitError
	if errors.As(err, &rl) {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rl.RetryAfter.Seconds()))))
	}

	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		_ = c.Error(err)
		msg = "internal error"
	case http.StatusBadGateway:
		// текст провайдера клиенту не отдаём
		_ = c.Error(err)
		msg = "could not deliver the code, try again later"
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: code, Message: msg})
}

// RegisterValidators — тег otp_recipient для gin binding.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin validator engine is not go-playground/validator")
	}
	return v.RegisterValidation("otp_recipient", func(fl validator.FieldLevel) bool {
		_, _, err := utils.NormalizeRecipient(fl.Field().String())
		return err == nil
	})
}
