package models

import "time"

// ChallengeState: жизненный цикл одноразового кода.
type ChallengeState string

const (
	ChallengeIssued      ChallengeState = "issued"
	ChallengeVerified    ChallengeState = "verified"
	ChallengeExpired     ChallengeState = "expired"
	ChallengeInvalidated ChallengeState = "invalidated"
)

// Причины перевода в invalidated. Замена кода новым просто перезаписывает запись.
const (
	ReasonAttempts = "attempts"
	ReasonDelivery = "delivery"
)

// Каналы доставки.
const (
	ChannelEmail    = "email"
	ChannelSMS      = "sms"
	ChannelTelegram = "telegram"
)

// OTPChallenge: одна выданная запись на получателя.
// Храним только bcrypt-хэш кода (CodeHash), TTL и счётчик попыток.
type OTPChallenge struct {
	ID                string         `json:"id"`
	Recipient         string         `json:"recipient"`
	Channel           string         `json:"channel"`
	CodeHash          string         `json:"-"`
	IssuedAt          time.Time      `json:"issued_at"`
	ExpiresAt         time.Time      `json:"expires_at"`
	Attempts          int            `json:"attempts"`
	MaxAttempts       int            `json:"max_attempts"`
	State             ChallengeState `json:"state"`
	InvalidatedReason string         `json:"invalidated_reason,omitempty"`
	VerifiedAt        *time.Time     `json:"verified_at,omitempty"`

	// троттлинг отправок переживает замену записи
	Sends       int       `json:"sends"`
	WindowStart time.Time `json:"window_start"`
}

// Active: код ещё можно проверять.
func (c *OTPChallenge) Active(now time.Time) bool {
	return c.State == ChallengeIssued && now.Before(c.ExpiresAt)
}

func (c *OTPChallenge) Invalidate(reason string) {
	c.State = ChallengeInvalidated
	c.InvalidatedReason = reason
}
