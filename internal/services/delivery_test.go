package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collegenetwork/internal/models"
	"collegenetwork/internal/utils"
)

func TestMessageText(t *testing.T) {
	msg := Message{Code: "123456", TTL: 5 * time.Minute}
	assert.Equal(t, "College Network code: 123456. Valid for 5 min.", msg.Text())

	msg.TTL = 10 * time.Second
	assert.Contains(t, msg.Text(), "Valid for 1 min.")
}

func TestDispatcher_RoutesByChannel(t *testing.T) {
	email, sms := &fakeChannel{}, &fakeChannel{}
	d := NewDispatcher(time.Second, discardLogger())
	d.Register(models.ChannelEmail, email)
	d.Register(models.ChannelSMS, sms)

	require.NoError(t, d.Deliver(context.Background(), Message{Recipient: "+77011234567", Channel: models.ChannelSMS}))
	assert.Equal(t, 0, email.count())
	assert.Equal(t, 1, sms.count())
}

func TestDispatcher_UnknownChannel(t *testing.T) {
	d := NewDispatcher(time.Second, discardLogger())
	err := d.Deliver(context.Background(), Message{Channel: models.ChannelTelegram})
	assert.ErrorIs(t, err, ErrDelivery)
}

func TestDispatcher_WrapsChannelError(t *testing.T) {
	d := NewDispatcher(time.Second, discardLogger())
	d.Register(models.ChannelEmail, &fakeChannel{err: errProviderDown})

	err := d.Deliver(context.Background(), Message{Recipient: "a@x.com", Channel: models.ChannelEmail})
	assert.ErrorIs(t, err, ErrDelivery)
	assert.Contains(t, err.Error(), "provider down")
}

type slowChannel struct{}

func (slowChannel) Deliver(ctx context.Context, msg Message) error {
	return runWithContext(ctx, func() error {
		time.Sleep(time.Second)
		return nil
	})
}

func TestDispatcher_Timeout(t *testing.T) {
	d := NewDispatcher(20*time.Millisecond, discardLogger())
	d.Register(models.ChannelEmail, slowChannel{})

	start := time.Now()
	err := d.Deliver(context.Background(), Message{Recipient: "a@x.com", Channel: models.ChannelEmail})
	assert.ErrorIs(t, err, ErrDelivery)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDryRunChannel(t *testing.T) {
	c := DryRunChannel{Name: models.ChannelEmail, Logger: discardLogger()}
	assert.NoError(t, c.Deliver(context.Background(), Message{Recipient: "a@x.com", Code: "123456"}))
}

func TestDeliveryPool_RunsJobsAndReportsFailures(t *testing.T) {
	ch := &fakeChannel{}
	pool := NewDeliveryPool(ch, 2, 10, discardLogger())
	pool.Start()

	require.NoError(t, pool.Submit(DeliveryJob{Msg: Message{Recipient: "a@x.com"}}))
	require.Eventually(t, func() bool { return ch.count() == 1 }, time.Second, 5*time.Millisecond)

	ch.setErr(errProviderDown)
	failed := make(chan error, 1)
	require.NoError(t, pool.Submit(DeliveryJob{
		Msg:       Message{Recipient: "b@x.com"},
		OnFailure: func(err error) { failed <- err },
	}))
	select {
	case err := <-failed:
		assert.ErrorIs(t, err, errProviderDown)
	case <-time.After(time.Second):
		t.Fatal("OnFailure was not called")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	pool.Stop(ctx)

	err := pool.Submit(DeliveryJob{Msg: Message{Recipient: "c@x.com"}})
	assert.ErrorIs(t, err, ErrDelivery)
}

func TestDeliveryPool_QueueFull(t *testing.T) {
	pool := NewDeliveryPool(&fakeChannel{}, 1, 1, discardLogger())
	// воркеры не запущены: очередь из одного места

	require.NoError(t, pool.Submit(DeliveryJob{}))
	err := pool.Submit(DeliveryJob{})
	assert.ErrorIs(t, err, ErrDelivery)
}

func newAsyncFixture(t *testing.T, workers, queue int, start bool) *serviceFixture {
	t.Helper()
	f := newFixture("111111", "222222")
	pool := NewDeliveryPool(f.svc.Delivery, workers, queue, discardLogger())
	if start {
		pool.Start()
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		pool.Stop(ctx)
	})
	f.svc.Pool = pool
	f.svc.Opts.AsyncDelivery = true
	return f
}

func TestOTPService_AsyncDelivery(t *testing.T) {
	f := newAsyncFixture(t, 1, 10, true)
	ctx := context.Background()

	_, err := f.svc.Send(ctx, "a@x.com")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.ch.count() == 1 }, time.Second, 5*time.Millisecond)

	_, err = f.svc.Verify(ctx, "a@x.com", "111111")
	assert.NoError(t, err)
}

func TestOTPService_AsyncDeliveryFailureInvalidates(t *testing.T) {
	f := newAsyncFixture(t, 1, 10, true)
	ctx := context.Background()
	f.ch.setErr(errProviderDown)

	_, err := f.svc.Send(ctx, "a@x.com")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		ch, _ := f.repo.Get(ctx, "a@x.com")
		return ch != nil && ch.InvalidatedReason == models.ReasonDelivery
	}, time.Second, 5*time.Millisecond)

	_, err = f.svc.Verify(ctx, "a@x.com", "111111")
	assert.ErrorIs(t, err, ErrInvalidCode)

	// недоставленный код не включает cooldown
	f.ch.setErr(nil)
	_, err = f.svc.Resend(ctx, "a@x.com")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.ch.count() == 1 }, time.Second, 5*time.Millisecond)
	_, err = f.svc.Verify(ctx, "a@x.com", "222222")
	assert.NoError(t, err)
}

func TestOTPService_AsyncQueueFull(t *testing.T) {
	f := newAsyncFixture(t, 1, 1, false)
	ctx := context.Background()

	_, err := f.svc.Send(ctx, "a@x.com")
	require.NoError(t, err)

	_, err = f.svc.Send(ctx, "b@x.com")
	require.ErrorIs(t, err, ErrDelivery)

	ch, _ := f.repo.Get(ctx, "b@x.com")
	require.NotNil(t, ch)
	assert.Equal(t, models.ChallengeInvalidated, ch.State)
	assert.Equal(t, models.ReasonDelivery, ch.InvalidatedReason)
}

func TestTokenService(t *testing.T) {
	now := time.Now()
	tokens := NewTokenService("secret", "college-network-otp", time.Minute)
	ch := &models.OTPChallenge{ID: "ch-1", Recipient: "a@x.com", Channel: models.ChannelEmail}

	token, exp, err := tokens.Issue(ch, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute), exp)

	claims, err := tokens.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", claims.Subject)
	assert.Equal(t, "ch-1", claims.ChallengeID)
	assert.Equal(t, models.ChannelEmail, claims.Channel)

	tests := []struct {
		name   string
		parser *TokenService
		token  string
	}{
		{"wrong secret", NewTokenService("other", "college-network-otp", time.Minute), token},
		{"wrong issuer", NewTokenService("secret", "someone-else", time.Minute), token},
		{"garbage", tokens, "not.a.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.parser.Parse(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	t.Run("expired", func(t *testing.T) {
		late := NewTokenService("secret", "college-network-otp", time.Minute)
		late.nowF = func() time.Time { return now.Add(2 * time.Minute) }
		_, err := late.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

type fakeSMSSender struct {
	to, text string
	err      error
}

func (f *fakeSMSSender) SendSMS(ctx context.Context, to, text string) (*utils.SendSMSResponse, error) {
	f.to, f.text = to, text
	if f.err != nil {
		return nil, f.err
	}
	return &utils.SendSMSResponse{}, nil
}

func TestSMSService_Deliver(t *testing.T) {
	sender := &fakeSMSSender{}
	s := &SMSService{Client: sender}

	err := s.Deliver(context.Background(), Message{Recipient: "+77011234567", Code: "123456", TTL: 5 * time.Minute})
	require.NoError(t, err)
	assert.Equal(t, "+77011234567", sender.to)
	assert.Contains(t, sender.text, "123456")

	sender.err = errProviderDown
	err = s.Deliver(context.Background(), Message{Recipient: "+77011234567"})
	assert.ErrorIs(t, err, errProviderDown)
}

type fakeBot struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	err  error
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return tgbotapi.Message{}, b.err
	}
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		b.sent = append(b.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func TestTelegramService_Deliver(t *testing.T) {
	bot := &fakeBot{}
	tg := &TelegramService{bot: bot}

	err := tg.Deliver(context.Background(), Message{Recipient: "tg:42", Code: "123456", TTL: 5 * time.Minute})
	require.NoError(t, err)
	require.Len(t, bot.sent, 1)
	assert.Equal(t, int64(42), bot.sent[0].ChatID)
	assert.True(t, strings.Contains(bot.sent[0].Text, "<b>123456</b>"))
	assert.Equal(t, tgbotapi.ModeHTML, bot.sent[0].ParseMode)

	err = tg.Deliver(context.Background(), Message{Recipient: "tg:abc"})
	assert.Error(t, err)

	bot.err = errors.New("chat not found")
	err = tg.Deliver(context.Background(), Message{Recipient: "tg:42"})
	assert.Error(t, err)
	assert.Error(t, tg.Reply(42, "hi"))
}
