package repositories

import (
	"context"
	"testing"
	"time"

	"collegenetwork/internal/models"
)

func newChallenge(recipient string, issuedAt time.Time) *models.OTPChallenge {
	return &models.OTPChallenge{
		ID:          "ch-" + recipient,
		Recipient:   recipient,
		Channel:     models.ChannelEmail,
		CodeHash:    "hash",
		IssuedAt:    issuedAt,
		ExpiresAt:   issuedAt.Add(5 * time.Minute),
		MaxAttempts: 5,
		State:       models.ChallengeIssued,
		Sends:       1,
		WindowStart: issuedAt,
	}
}

func TestMemoryRepository_SaveGet(t *testing.T) {
	repo := NewMemoryOTPChallengeRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repo.Save(ctx, newChallenge("a@x.com", now)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := repo.Get(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.ID != "ch-a@x.com" {
		t.Fatalf("Get = %+v", got)
	}
}

func TestMemoryRepository_GetMissing(t *testing.T) {
	repo := NewMemoryOTPChallengeRepository()
	got, err := repo.Get(context.Background(), "nobody@x.com")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("Get = %+v, want nil", got)
	}
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryOTPChallengeRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	ch := newChallenge("a@x.com", now)
	verified := now
	ch.VerifiedAt = &verified
	if err := repo.Save(ctx, ch); err != nil {
		t.Fatalf("Save: %v", err)
	}
	ch.Attempts = 4

	got, _ := repo.Get(ctx, "a@x.com")
	if got.Attempts != 0 {
		t.Errorf("stored record changed through caller pointer: attempts = %d", got.Attempts)
	}
	got.State = models.ChallengeExpired
	*got.VerifiedAt = now.Add(time.Hour)

	again, _ := repo.Get(ctx, "a@x.com")
	if again.State != models.ChallengeIssued {
		t.Errorf("State = %q, want issued", again.State)
	}
	if !again.VerifiedAt.Equal(now) {
		t.Errorf("VerifiedAt changed through returned pointer")
	}
}

func TestMemoryRepository_SaveReplaces(t *testing.T) {
	repo := NewMemoryOTPChallengeRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	_ = repo.Save(ctx, newChallenge("a@x.com", now))
	next := newChallenge("a@x.com", now.Add(time.Minute))
	next.ID = "ch-2"
	_ = repo.Save(ctx, next)

	if repo.Len() != 1 {
		t.Fatalf("Len = %d, want 1", repo.Len())
	}
	got, _ := repo.Get(ctx, "a@x.com")
	if got.ID != "ch-2" {
		t.Errorf("ID = %q, want ch-2", got.ID)
	}
}

func TestMemoryRepository_PurgeExpired(t *testing.T) {
	repo := NewMemoryOTPChallengeRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	_ = repo.Save(ctx, newChallenge("old@x.com", now.Add(-time.Hour)))
	_ = repo.Save(ctx, newChallenge("new@x.com", now))

	n, err := repo.PurgeExpired(ctx, now)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}
	if got, _ := repo.Get(ctx, "old@x.com"); got != nil {
		t.Error("expired record survived purge")
	}
	if got, _ := repo.Get(ctx, "new@x.com"); got == nil {
		t.Error("active record was purged")
	}
}
