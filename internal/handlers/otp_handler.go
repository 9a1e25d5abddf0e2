package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"collegenetwork/internal/middleware"
	"collegenetwork/internal/services"
)

type OTPHandler struct {
	OTP services.OTP
}

func NewOTPHandler(s services.OTP) *OTPHandler { return &OTPHandler{OTP: s} }

type SendRequest struct {
	Recipient string `json:"recipient" binding:"required,otp_recipient" example:"a@x.com"`
}

type VerifyRequest struct {
	Recipient string `json:"recipient" binding:"required,otp_recipient" example:"a@x.com"`
	Code      string `json:"code" binding:"required" example:"123456"`
}

type SendResponse struct {
	Status      string    `json:"status" example:"sent"`
	ChallengeID string    `json:"challenge_id"`
	Channel     string    `json:"channel" example:"email"`
	ExpiresAt   time.Time `json:"expires_at"`
	ResendAfter time.Time `json:"resend_after"`
}

type VerifyResponse struct {
	Status         string     `json:"status" example:"verified"`
	Recipient      string     `json:"recipient" example:"a@x.com"`
	VerifiedAt     time.Time  `json:"verified_at"`
	Token          string     `json:"token,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
}

func bindError(c *gin.Context, err error) {
	abortWithError(c, &services.ValidationError{Field: "body", Reason: err.Error()})
}

// Send godoc
// @Summary      Send a one-time code
// @Tags         otp
// @Accept       json
// @Produce      json
// @Param        request body SendRequest true "recipient (email, phone or tg:<chat_id>)"
// @Success      200 {object} SendResponse
// @Failure      400 {object} ErrorResponse
// @Failure      429 {object} ErrorResponse
// @Failure      502 {object} ErrorResponse
// @Router       /send [post]
func (h *OTPHandler) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.OTP.Send(c.Request.Context(), req.Recipient)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSendResponse(res))
}

// Verify godoc
// @Summary      Verify a one-time code
// @Tags         otp
// @Accept       json
// @Produce      json
// @Param        request body VerifyRequest true "recipient and code"
// @Success      200 {object} VerifyResponse
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      410 {object} ErrorResponse
// @Router       /verify [post]
func (h *OTPHandler) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.OTP.Verify(c.Request.Context(), req.Recipient, req.Code)
	if err != nil {
		abortWithError(c, err)
		return
	}
	out := VerifyResponse{
		Status:     "verified",
		Recipient:  res.Recipient,
		VerifiedAt: res.VerifiedAt,
		Token:      res.Token,
	}
	if res.Token != "" {
		exp := res.TokenExpiresAt
		out.TokenExpiresAt = &exp
	}
	c.JSON(http.StatusOK, out)
}

// Resend godoc
// @Summary      Invalidate the current code and send a new one
// @Tags         otp
// @Accept       json
// @Produce      json
// @Param        request body SendRequest true "recipient"
// @Success      200 {object} SendResponse
// @Failure      400 {object} ErrorResponse
// @Failure      429 {object} ErrorResponse
// @Failure      502 {object} ErrorResponse
// @Router       /resend [post]
func (h *OTPHandler) Resend(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.OTP.Resend(c.Request.Context(), req.Recipient)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSendResponse(res))
}

type SessionResponse struct {
	Recipient   string    `json:"recipient"`
	ChallengeID string    `json:"challenge_id"`
	Channel     string    `json:"channel"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Session godoc
// @Summary      Describe the verification token
// @Tags         otp
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} SessionResponse
// @Failure      401 {object} ErrorResponse
// @Router       /session [get]
func (h *OTPHandler) Session(c *gin.Context) {
	v, ok := c.Get(middleware.ClaimsKey)
	claims, _ := v.(*services.VerificationClaims)
	if !ok || claims == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: CodeUnauthorized, Message: "verification token required"})
		return
	}
	out := SessionResponse{
		Recipient:   claims.Subject,
		ChallengeID: claims.ChallengeID,
		Channel:     claims.Channel,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	c.JSON(http.StatusOK, out)
}

// Health godoc
// @Summary  Liveness probe
// @Tags     system
// @Produce  json
// @Success  200 {object} map[string]string
// @Router   /healthz [get]
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func toSendResponse(res *services.SendResult) SendResponse {
	return SendResponse{
		Status:      "sent",
		ChallengeID: res.ChallengeID,
		Channel:     res.Channel,
		ExpiresAt:   res.ExpiresAt,
		ResendAfter: res.ResendAfter,
	}
}
