package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"collegenetwork/internal/utils"
)

// Message — что и куда доставить.
type Message struct {
	Recipient   string
	Channel     string
	Code        string
	TTL         time.Duration
	ChallengeID string
}

// Text — общий текст для SMS/Telegram.
func (m Message) Text() string {
	return fmt.Sprintf("College Network code: %s. Valid for %d min.", m.Code, ttlMinutes(m.TTL))
}

func ttlMinutes(ttl time.Duration) int {
	min := int(ttl.Round(time.Minute) / time.Minute)
	if min < 1 {
		min = 1
	}
	return min
}

// Channel — внешний провайдер доставки (email/SMS/Telegram).
type Channel interface {
	Deliver(ctx context.Context, msg Message) error
}

// Deliverer — то, чем пользуется OTPService.
type Deliverer interface {
	Deliver(ctx context.Context, msg Message) error
}

// Dispatcher выбирает канал по msg.Channel и ограничивает доставку таймаутом.
type Dispatcher struct {
	channels map[string]Channel
	timeout  time.Duration
	logger   *slog.Logger
}

func NewDispatcher(timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{channels: make(map[string]Channel), timeout: timeout, logger: logger}
}

func (d *Dispatcher) Register(name string, ch Channel) {
	d.channels[name] = ch
}

func (d *Dispatcher) Deliver(ctx context.Context, msg Message) error {
	ch, ok := d.channels[msg.Channel]
	if !ok {
		return fmt.Errorf("%w: no channel registered for %q", ErrDelivery, msg.Channel)
	}
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	start := time.Now()
	if err := ch.Deliver(ctx, msg); err != nil {
		d.logger.Error("[delivery] failed",
			"channel", msg.Channel,
			"recipient", utils.MaskRecipient(msg.Recipient),
			"duration_ms", time.Since(start).Milliseconds(),
			"err", err,
		)
		return fmt.Errorf("%w: %s: %v", ErrDelivery, msg.Channel, err)
	}
	d.logger.Debug("[delivery] ok",
		"channel", msg.Channel,
		"recipient", utils.MaskRecipient(msg.Recipient),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// DryRunChannel только пишет код в лог. Для разработки без провайдеров.
type DryRunChannel struct {
	Name   string
	Logger *slog.Logger
}

func (c DryRunChannel) Deliver(ctx context.Context, msg Message) error {
	c.Logger.Info("[delivery][dry-run]", "channel", c.Name, "to", msg.Recipient, "code", msg.Code)
	return nil
}

// runWithContext запускает блокирующий вызов без поддержки context и ждёт его или ctx.
func runWithContext(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
