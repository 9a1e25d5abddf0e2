package repositories

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"collegenetwork/internal/models"
)

const redisChallengePrefix = "otp:challenge:"

// RedisOTPChallengeRepository хранит запись в hash "otp:challenge:<recipient>".
// Ключ живёт до expires_at + retention, поэтому PurgeExpired здесь ничего не делает.
type RedisOTPChallengeRepository struct {
	Client    *redis.Client
	Retention time.Duration
	nowF      func() time.Time
}

func NewRedisOTPChallengeRepository(client *redis.Client, retention time.Duration) *RedisOTPChallengeRepository {
	return &RedisOTPChallengeRepository{Client: client, Retention: retention, nowF: time.Now}
}

func ConnectToRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func challengeKey(recipient string) string { return redisChallengePrefix + recipient }

func (r *RedisOTPChallengeRepository) Get(ctx context.Context, recipient string) (*models.OTPChallenge, error) {
	data, err := r.Client.HGetAll(ctx, challengeKey(recipient)).Result()
	if err != nil {
		return nil, fmt.Errorf("otp_challenge get: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	ch, err := decodeChallenge(data)
	if err != nil {
		return nil, fmt.Errorf("otp_challenge decode %s: %w", recipient, err)
	}
	return ch, nil
}

func (r *RedisOTPChallengeRepository) Save(ctx context.Context, ch *models.OTPChallenge) error {
	key := challengeKey(ch.Recipient)
	ttl := ch.ExpiresAt.Add(r.Retention).Sub(r.nowF())
	if ttl <= 0 {
		ttl = time.Second
	}
	pipe := r.Client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, encodeChallenge(ch))
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("otp_challenge save: %w", err)
	}
	return nil
}

func (r *RedisOTPChallengeRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (r *RedisOTPChallengeRepository) Close() error {
	return r.Client.Close()
}

func encodeChallenge(ch *models.OTPChallenge) map[string]any {
	verifiedAt := ""
	if ch.VerifiedAt != nil {
		verifiedAt = ch.VerifiedAt.UTC().Format(time.RFC3339Nano)
	}
	return map[string]any{
		"id":                 ch.ID,
		"recipient":          ch.Recipient,
		"channel":            ch.Channel,
		"code_hash":          ch.CodeHash,
		"issued_at":          ch.IssuedAt.UTC().Format(time.RFC3339Nano),
		"expires_at":         ch.ExpiresAt.UTC().Format(time.RFC3339Nano),
		"attempts":           ch.Attempts,
		"max_attempts":       ch.MaxAttempts,
		"state":              string(ch.State),
		"invalidated_reason": ch.InvalidatedReason,
		"verified_at":        verifiedAt,
		"sends":              ch.Sends,
		"window_start":       ch.WindowStart.UTC().Format(time.RFC3339Nano),
	}
}

func decodeChallenge(data map[string]string) (*models.OTPChallenge, error) {
	ch := &models.OTPChallenge{
		ID:                data["id"],
		Recipient:         data["recipient"],
		Channel:           data["channel"],
		CodeHash:          data["code_hash"],
		State:             models.ChallengeState(data["state"]),
		InvalidatedReason: data["invalidated_reason"],
	}
	var err error
	if ch.IssuedAt, err = time.Parse(time.RFC3339Nano, data["issued_at"]); err != nil {
		return nil, fmt.Errorf("issued_at: %w", err)
	}
	if ch.ExpiresAt, err = time.Parse(time.RFC3339Nano, data["expires_at"]); err != nil {
		return nil, fmt.Errorf("expires_at: %w", err)
	}
	if ch.WindowStart, err = time.Parse(time.RFC3339Nano, data["window_start"]); err != nil {
		return nil, fmt.Errorf("window_start: %w", err)
	}
	if v := data["verified_at"]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("verified_at: %w", err)
		}
		ch.VerifiedAt = &t
	}
	if ch.Attempts, err = strconv.Atoi(data["attempts"]); err != nil {
		return nil, fmt.Errorf("attempts: %w", err)
	}
	if ch.MaxAttempts, err = strconv.Atoi(data["max_attempts"]); err != nil {
		return nil, fmt.Errorf("max_attempts: %w", err)
	}
	if ch.Sends, err = strconv.Atoi(data["sends"]); err != nil {
		return nil, fmt.Errorf("sends: %w", err)
	}
	return ch, nil
}
