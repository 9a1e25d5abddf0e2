package repositories

import (
	"context"
	"time"

	"collegenetwork/internal/models"
)

// OTPChallengeRepository: хранилище челленджей, одна запись на получателя.
type OTPChallengeRepository interface {
	// Get возвращает текущую запись получателя или nil, если её нет.
	Get(ctx context.Context, recipient string) (*models.OTPChallenge, error)
	// Save: upsert по recipient; предыдущая запись заменяется.
	Save(ctx context.Context, ch *models.OTPChallenge) error
	// PurgeExpired удаляет записи, истёкшие раньше before.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
	Close() error
}
