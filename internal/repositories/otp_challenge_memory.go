package repositories

import (
	"context"
	"sync"
	"time"

	"collegenetwork/internal/models"
)

// MemoryOTPChallengeRepository: in-memory реализация (по умолчанию и в тестах).
type MemoryOTPChallengeRepository struct {
	mu sync.RWMutex
	m  map[string]models.OTPChallenge
}

func NewMemoryOTPChallengeRepository() *MemoryOTPChallengeRepository {
	return &MemoryOTPChallengeRepository{m: make(map[string]models.OTPChallenge)}
}

func (r *MemoryOTPChallengeRepository) Get(ctx context.Context, recipient string) (*models.OTPChallenge, error) {
	r.mu.RLock()
	ch, ok := r.m[recipient]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return cloneChallenge(ch), nil
}

func (r *MemoryOTPChallengeRepository) Save(ctx context.Context, ch *models.OTPChallenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[ch.Recipient] = *cloneChallenge(*ch)
	return nil
}

func (r *MemoryOTPChallengeRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, ch := range r.m {
		if ch.ExpiresAt.Before(before) {
			delete(r.m, k)
			n++
		}
	}
	return n, nil
}

func (r *MemoryOTPChallengeRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

func (r *MemoryOTPChallengeRepository) Close() error { return nil }

func cloneChallenge(ch models.OTPChallenge) *models.OTPChallenge {
	if ch.VerifiedAt != nil {
		t := *ch.VerifiedAt
		ch.VerifiedAt = &t
	}
	return &ch
}
