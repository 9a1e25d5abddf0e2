package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"collegenetwork/internal/metrics"
	"collegenetwork/internal/models"
	"collegenetwork/internal/repositories"
	"collegenetwork/internal/utils"
)

// OTP — операции, которые отдаёт HTTP-слой.
type OTP interface {
	Send(ctx context.Context, recipient string) (*SendResult, error)
	Verify(ctx context.Context, recipient, code string) (*VerifyResult, error)
	Resend(ctx context.Context, recipient string) (*SendResult, error)
}

// TokenIssuer подписывает verification-токен после успешной проверки.
type TokenIssuer interface {
	Issue(ch *models.OTPChallenge, now time.Time) (string, time.Time, error)
}

type SendResult struct {
	ChallengeID string
	Recipient   string
	Channel     string
	ExpiresAt   time.Time
	ResendAfter time.Time
}

type VerifyResult struct {
	ChallengeID    string
	Recipient      string
	VerifiedAt     time.Time
	Token          string
	TokenExpiresAt time.Time
}

type OTPOptions struct {
	TTL           time.Duration
	Cooldown      time.Duration
	MaxAttempts   int
	MaxSends      int
	SendWindow    time.Duration
	CodeLength    int
	Alphabet      string
	BcryptCost    int
	AsyncDelivery bool
}

func DefaultOTPOptions() OTPOptions {
	return OTPOptions{
		TTL:         5 * time.Minute,
		Cooldown:    30 * time.Second,
		MaxAttempts: 5,
		MaxSends:    3,
		SendWindow:  10 * time.Minute,
		CodeLength:  6,
		Alphabet:    utils.AlphabetNumeric,
		BcryptCost:  bcrypt.DefaultCost,
	}
}

type OTPService struct {
	Repo     repositories.OTPChallengeRepository
	Delivery Deliverer
	Pool     *DeliveryPool // только для AsyncDelivery
	Codes    utils.CodeGenerator
	Tokens   TokenIssuer // nil — токен не выдаём
	Metrics  *metrics.OTPMetrics
	Logger   *slog.Logger
	Opts     OTPOptions
	Now      func() time.Time

	locks *utils.KeyedMutex
}

func NewOTPService(repo repositories.OTPChallengeRepository, delivery Deliverer, opts OTPOptions) *OTPService {
	return &OTPService{
		Repo:     repo,
		Delivery: delivery,
		Codes:    utils.NewRandomCodes(opts.CodeLength, opts.Alphabet),
		Logger:   slog.Default(),
		Opts:     opts,
		Now:      time.Now,
		locks:    utils.NewKeyedMutex(),
	}
}

// Send — новый код; предыдущий активный становится недействительным.
func (s *OTPService) Send(ctx context.Context, recipient string) (*SendResult, error) {
	return s.issue(ctx, recipient, "send")
}

// Resend — то же, что Send, под теми же лимитами.
func (s *OTPService) Resend(ctx context.Context, recipient string) (*SendResult, error) {
	return s.issue(ctx, recipient, "resend")
}

func (s *OTPService) issue(ctx context.Context, raw, op string) (*SendResult, error) {
	recipient, channel, err := utils.NormalizeRecipient(raw)
	if err != nil {
		return nil, &ValidationError{Field: "recipient", Reason: err.Error()}
	}
	log := s.Logger.With("op", op, "recipient", utils.MaskRecipient(recipient), "channel", channel)

	unlock := s.locks.Lock(recipient)
	defer unlock()

	now := s.Now()
	prev, err := s.Repo.Get(ctx, recipient)
	if err != nil {
		return nil, err
	}

	sends, windowStart := 0, now
	if prev != nil {
		// неудачная доставка не должна блокировать повтор
		if prev.InvalidatedReason != models.ReasonDelivery {
			if next := prev.IssuedAt.Add(s.Opts.Cooldown); now.Before(next) {
				log.Info(fmt.Sprintf("[otp][%s] cooldown", op))
				return nil, &RateLimitError{RetryAfter: next.Sub(now), Reason: "cooldown"}
			}
		}
		if windowEnd := prev.WindowStart.Add(s.Opts.SendWindow); now.Before(windowEnd) {
			sends, windowStart = prev.Sends, prev.WindowStart
			if sends >= s.Opts.MaxSends {
				log.Info(fmt.Sprintf("[otp][%s] throttled", op), "sends", sends)
				return nil, &RateLimitError{RetryAfter: windowEnd.Sub(now), Reason: "window"}
			}
		}
	}

	code, err := s.Codes.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.Opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("bcrypt generate: %w", err)
	}

	ch := &models.OTPChallenge{
		ID:          uuid.NewString(),
		Recipient:   recipient,
		Channel:     channel,
		CodeHash:    string(hash),
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.Opts.TTL),
		MaxAttempts: s.Opts.MaxAttempts,
		State:       models.ChallengeIssued,
		Sends:       sends + 1,
		WindowStart: windowStart,
	}
	msg := Message{Recipient: recipient, Channel: channel, Code: code, TTL: s.Opts.TTL, ChallengeID: ch.ID}

	if s.Opts.AsyncDelivery && s.Pool != nil {
		if err := s.Repo.Save(ctx, ch); err != nil {
			return nil, err
		}
		job := DeliveryJob{Msg: msg, OnFailure: func(err error) { s.markDeliveryFailed(recipient, ch.ID, channel) }}
		if err := s.Pool.Submit(job); err != nil {
			ch.Invalidate(models.ReasonDelivery)
			if saveErr := s.Repo.Save(ctx, ch); saveErr != nil {
				log.Error(fmt.Sprintf("[otp][%s] invalidate after enqueue failure", op), "err", saveErr)
			}
			s.Metrics.DeliveryFailed(ctx, channel)
			return nil, err
		}
	} else {
		// запись сохраняем только после успешной доставки — иначе прежний код остаётся в силе
		if err := s.Delivery.Deliver(ctx, msg); err != nil {
			s.Metrics.DeliveryFailed(ctx, channel)
			if !errors.Is(err, ErrDelivery) {
				err = fmt.Errorf("%w: %v", ErrDelivery, err)
			}
			return nil, err
		}
		if err := s.Repo.Save(ctx, ch); err != nil {
			return nil, err
		}
	}

	if prev != nil && prev.Active(now) {
		s.Metrics.Superseded(ctx)
		log.Info(fmt.Sprintf("[otp][%s] superseded", op), "previous_id", prev.ID)
	}
	s.Metrics.Sent(ctx, channel)
	log.Info(fmt.Sprintf("[otp][%s] ok", op), "challenge_id", ch.ID, "sends", ch.Sends)

	return &SendResult{
		ChallengeID: ch.ID,
		Recipient:   recipient,
		Channel:     channel,
		ExpiresAt:   ch.ExpiresAt,
		ResendAfter: now.Add(s.Opts.Cooldown),
	}, nil
}

// markDeliveryFailed — асинхронная доставка не удалась, код не дошёл до получателя.
func (s *OTPService) markDeliveryFailed(recipient, challengeID, channel string) {
	ctx := context.Background()
	s.Metrics.DeliveryFailed(ctx, channel)

	unlock := s.locks.Lock(recipient)
	defer unlock()

	cur, err := s.Repo.Get(ctx, recipient)
	if err != nil || cur == nil || cur.ID != challengeID || cur.State != models.ChallengeIssued {
		return
	}
	cur.Invalidate(models.ReasonDelivery)
	if err := s.Repo.Save(ctx, cur); err != nil {
		s.Logger.Error("[otp][delivery] invalidate failed", "challenge_id", challengeID, "err", err)
	}
}

// Verify — сверяет код с bcrypt-хэшем, считает попытки, TTL.
func (s *OTPService) Verify(ctx context.Context, raw, code string) (*VerifyResult, error) {
	recipient, _, err := utils.NormalizeRecipient(raw)
	if err != nil {
		return nil, &ValidationError{Field: "recipient", Reason: err.Error()}
	}
	code = strings.TrimSpace(code)
	if s.Opts.Alphabet == utils.AlphabetAlphanumeric {
		code = strings.ToUpper(code)
	}
	if err := utils.CheckCodeFormat(code, s.Opts.CodeLength, s.Opts.Alphabet); err != nil {
		return nil, &ValidationError{Field: "code", Reason: fmt.Sprintf("expected %d %s characters", s.Opts.CodeLength, s.Opts.Alphabet)}
	}
	log := s.Logger.With("op", "verify", "recipient", utils.MaskRecipient(recipient))

	unlock := s.locks.Lock(recipient)
	defer unlock()

	ch, err := s.Repo.Get(ctx, recipient)
	if err != nil {
		return nil, err
	}
	now := s.Now()

	if err := s.checkVerifiable(ctx, ch, now); err != nil {
		s.Metrics.VerifyFailed(ctx, failureReason(err))
		log.Info("[otp][verify] rejected", "reason", err.Error())
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(ch.CodeHash), []byte(code)); err != nil {
		// неверный код => увеличиваем attempts
		ch.Attempts++
		if ch.Attempts >= ch.MaxAttempts {
			ch.Invalidate(models.ReasonAttempts)
		}
		if err := s.Repo.Save(ctx, ch); err != nil {
			return nil, err
		}
		s.Metrics.VerifyFailed(ctx, failureReason(ErrInvalidCode))
		log.Info("[otp][verify] wrong code", "attempts", ch.Attempts, "max_attempts", ch.MaxAttempts)
		return nil, ErrInvalidCode
	}

	// Успех. Токен подписываем до сохранения, чтобы ошибка подписи не сжигала код.
	res := &VerifyResult{ChallengeID: ch.ID, Recipient: recipient, VerifiedAt: now}
	if s.Tokens != nil {
		token, exp, err := s.Tokens.Issue(ch, now)
		if err != nil {
			return nil, err
		}
		res.Token, res.TokenExpiresAt = token, exp
	}

	ch.State = models.ChallengeVerified
	verifiedAt := now
	ch.VerifiedAt = &verifiedAt
	if err := s.Repo.Save(ctx, ch); err != nil {
		return nil, err
	}
	s.Metrics.Verified(ctx, ch.Channel)
	log.Info("[otp][verify] ok", "challenge_id", ch.ID)
	return res, nil
}

// checkVerifiable — порядок важен: использованный код, лимит попыток, TTL.
func (s *OTPService) checkVerifiable(ctx context.Context, ch *models.OTPChallenge, now time.Time) error {
	if ch == nil {
		return ErrInvalidCode
	}
	switch ch.State {
	case models.ChallengeVerified:
		return ErrInvalidCode
	case models.ChallengeInvalidated:
		if ch.InvalidatedReason == models.ReasonAttempts {
			return ErrTooManyAttempts
		}
		return ErrInvalidCode
	case models.ChallengeExpired:
		return ErrCodeExpired
	}

	if !now.Before(ch.ExpiresAt) {
		ch.State = models.ChallengeExpired
		if err := s.Repo.Save(ctx, ch); err != nil {
			return err
		}
		return ErrCodeExpired
	}
	if ch.Attempts >= ch.MaxAttempts {
		ch.Invalidate(models.ReasonAttempts)
		if err := s.Repo.Save(ctx, ch); err != nil {
			return err
		}
		return ErrTooManyAttempts
	}
	return nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrTooManyAttempts):
		return "too_many_attempts"
	case errors.Is(err, ErrCodeExpired):
		return "expired"
	case errors.Is(err, ErrInvalidCode):
		return "invalid_code"
	default:
		return "internal"
	}
}

// PurgeExpired — для джобы очистки.
func (s *OTPService) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	return s.Repo.PurgeExpired(ctx, s.Now().Add(-retention))
}
