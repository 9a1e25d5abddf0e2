package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"collegenetwork/internal/models"
	"collegenetwork/internal/repositories"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// seqCodes отдаёт коды по порядку, последний повторяется.
type seqCodes struct {
	mu    sync.Mutex
	codes []string
}

func (g *seqCodes) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	code := g.codes[0]
	if len(g.codes) > 1 {
		g.codes = g.codes[1:]
	}
	return code, nil
}

type fakeChannel struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (f *fakeChannel) Deliver(ctx context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeChannel) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeChannel) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeChannel) last() Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

var errProviderDown = errors.New("provider down")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type serviceFixture struct {
	svc   *OTPService
	repo  *repositories.MemoryOTPChallengeRepository
	ch    *fakeChannel
	clock *fakeClock
}

func newFixture(codes ...string) *serviceFixture {
	if len(codes) == 0 {
		codes = []string{"123456"}
	}
	repo := repositories.NewMemoryOTPChallengeRepository()
	ch := &fakeChannel{}
	clock := newFakeClock()

	d := NewDispatcher(time.Second, discardLogger())
	d.Register(models.ChannelEmail, ch)
	d.Register(models.ChannelSMS, ch)
	d.Register(models.ChannelTelegram, ch)

	opts := DefaultOTPOptions()
	opts.BcryptCost = bcrypt.MinCost
	svc := NewOTPService(repo, d, opts)
	svc.Codes = &seqCodes{codes: codes}
	svc.Now = clock.Now
	svc.Logger = discardLogger()

	return &serviceFixture{svc: svc, repo: repo, ch: ch, clock: clock}
}
