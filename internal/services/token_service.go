package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"collegenetwork/internal/models"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// VerificationClaims — подтверждение того, что получатель ввёл верный код.
type VerificationClaims struct {
	ChallengeID string `json:"challenge_id"`
	Channel     string `json:"channel"`
	jwt.RegisteredClaims
}

// TokenService выпускает и проверяет HS256 verification-токены.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	nowF   func() time.Time
}

func NewTokenService(secret, issuer string, ttl time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), issuer: issuer, ttl: ttl, nowF: time.Now}
}

func (t *TokenService) Issue(ch *models.OTPChallenge, now time.Time) (string, time.Time, error) {
	exp := now.Add(t.ttl)
	claims := VerificationClaims{
		ChallengeID: ch.ID,
		Channel:     ch.Channel,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   ch.Recipient,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign verification token: %w", err)
	}
	return signed, exp, nil
}

func (t *TokenService) Parse(tokenStr string) (*VerificationClaims, error) {
	claims := &VerificationClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		// принимаем только HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return t.secret, nil
	},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.nowF),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
