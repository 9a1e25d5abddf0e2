package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"collegenetwork/internal/models"
)

type PostgresOTPChallengeRepository struct {
	DB *sql.DB
}

func NewPostgresOTPChallengeRepository(db *sql.DB) *PostgresOTPChallengeRepository {
	return &PostgresOTPChallengeRepository{DB: db}
}

func (r *PostgresOTPChallengeRepository) Get(ctx context.Context, recipient string) (*models.OTPChallenge, error) {
	const q = `
		SELECT id, recipient, channel, code_hash, issued_at, expires_at, attempts, max_attempts,
		       state, invalidated_reason, verified_at, sends, window_start
		FROM otp_challenges
		WHERE recipient = $1
	`
	var (
		ch         models.OTPChallenge
		state      string
		verifiedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, q, recipient).Scan(
		&ch.ID, &ch.Recipient, &ch.Channel, &ch.CodeHash, &ch.IssuedAt, &ch.ExpiresAt, &ch.Attempts, &ch.MaxAttempts,
		&state, &ch.InvalidatedReason, &verifiedAt, &ch.Sends, &ch.WindowStart,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("otp_challenge get: %w", err)
	}
	ch.State = models.ChallengeState(state)
	if verifiedAt.Valid {
		t := verifiedAt.Time
		ch.VerifiedAt = &t
	}
	return &ch, nil
}

// Save: один INSERT ... ON CONFLICT, запись получателя заменяется целиком.
func (r *PostgresOTPChallengeRepository) Save(ctx context.Context, ch *models.OTPChallenge) error {
	const q = `
		INSERT INTO otp_challenges (id, recipient, channel, code_hash, issued_at, expires_at, attempts, max_attempts,
		                            state, invalidated_reason, verified_at, sends, window_start)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (recipient) DO UPDATE SET
			id = EXCLUDED.id,
			channel = EXCLUDED.channel,
			code_hash = EXCLUDED.code_hash,
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at,
			attempts = EXCLUDED.attempts,
			max_attempts = EXCLUDED.max_attempts,
			state = EXCLUDED.state,
			invalidated_reason = EXCLUDED.invalidated_reason,
			verified_at = EXCLUDED.verified_at,
			sends = EXCLUDED.sends,
			window_start = EXCLUDED.window_start
	`
	var verifiedAt sql.NullTime
	if ch.VerifiedAt != nil {
		verifiedAt = sql.NullTime{Time: *ch.VerifiedAt, Valid: true}
	}
	if _, err := r.DB.ExecContext(ctx, q,
		ch.ID, ch.Recipient, ch.Channel, ch.CodeHash, ch.IssuedAt, ch.ExpiresAt, ch.Attempts, ch.MaxAttempts,
		string(ch.State), ch.InvalidatedReason, verifiedAt, ch.Sends, ch.WindowStart,
	); err != nil {
		return fmt.Errorf("otp_challenge save: %w", err)
	}
	return nil
}

func (r *PostgresOTPChallengeRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM otp_challenges WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("otp_challenge purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("otp_challenge purge rows: %w", err)
	}
	return n, nil
}

func (r *PostgresOTPChallengeRepository) Close() error {
	return r.DB.Close()
}
