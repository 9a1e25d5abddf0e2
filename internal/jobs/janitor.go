package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type purger interface {
	PurgeExpired(ctx context.Context, retention time.Duration) (int64, error)
}

// Janitor периодически удаляет истёкшие челленджи и простаивающие лимитеры.
type Janitor struct {
	cron      *cron.Cron
	store     purger
	retention time.Duration
	extra     []func() int
	logger    *slog.Logger
}

func NewJanitor(store purger, retention time.Duration, logger *slog.Logger) *Janitor {
	return &Janitor{
		cron:      cron.New(),
		store:     store,
		retention: retention,
		logger:    logger.With(slog.String("service", "janitor")),
	}
}

// AddSweep: дополнительная очистка (например, IPRateLimiter.Cleanup).
func (j *Janitor) AddSweep(fn func() int) {
	j.extra = append(j.extra, fn)
}

func (j *Janitor) Start(schedule string) error {
	if _, err := j.cron.AddFunc(schedule, j.RunOnce); err != nil {
		return fmt.Errorf("janitor schedule %q: %w", schedule, err)
	}
	j.cron.Start()
	j.logger.Info("janitor_started", slog.String("schedule", schedule))
	return nil
}

func (j *Janitor) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := j.store.PurgeExpired(ctx, j.retention)
	if err != nil {
		j.logger.Error("purge_failed", slog.String("reason", err.Error()))
		return
	}
	swept := 0
	for _, fn := range j.extra {
		swept += fn()
	}
	if n > 0 || swept > 0 {
		j.logger.Info("purged", slog.Int64("challenges", n), slog.Int("idle_limiters", swept))
	}
}

// Stop ждёт завершения текущего запуска.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}
