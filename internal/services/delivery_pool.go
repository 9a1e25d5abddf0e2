package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"collegenetwork/internal/utils"
)

var errPoolStopped = errors.New("delivery pool stopped")

// DeliveryJob — асинхронная доставка; OnFailure вызывается из воркера.
type DeliveryJob struct {
	Msg       Message
	OnFailure func(err error)
}

// DeliveryPool — фиксированное число воркеров и ограниченная очередь.
type DeliveryPool struct {
	workers  int
	jobs     chan DeliveryJob
	delivery Deliverer
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

func NewDeliveryPool(delivery Deliverer, workers, queueSize int, logger *slog.Logger) *DeliveryPool {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &DeliveryPool{
		workers:  workers,
		jobs:     make(chan DeliveryJob, queueSize),
		delivery: delivery,
		logger:   logger.With(slog.String("service", "delivery_pool")),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (p *DeliveryPool) Start() {
	for i := 1; i <= p.workers; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
}

func (p *DeliveryPool) work(id int) {
	defer p.wg.Done()
	log := p.logger.With(slog.Int("worker_id", id))
	for job := range p.jobs {
		p.run(log, job)
	}
	log.Debug("worker_stopped")
}

func (p *DeliveryPool) run(log *slog.Logger, job DeliveryJob) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("worker_panicked", slog.String("reason", fmt.Sprint(r)))
		}
	}()
	start := time.Now()
	err := p.delivery.Deliver(p.ctx, job.Msg)
	if err != nil {
		log.Error("delivery_job_failed",
			slog.String("recipient", utils.MaskRecipient(job.Msg.Recipient)),
			slog.String("reason", err.Error()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		if job.OnFailure != nil {
			job.OnFailure(err)
		}
		return
	}
	log.Debug("delivery_job_completed", slog.Int64("duration_ms", time.Since(start).Milliseconds()))
}

// Submit не блокирует: при полной очереди возвращает ErrDelivery.
func (p *DeliveryPool) Submit(job DeliveryJob) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return fmt.Errorf("%w: %v", ErrDelivery, errPoolStopped)
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		p.logger.Warn("delivery_job_dropped", slog.Int("queue_size", len(p.jobs)))
		return fmt.Errorf("%w: delivery queue is full", ErrDelivery)
	}
}

// Stop дожидается очереди; по истечении ctx отменяет текущие доставки.
func (p *DeliveryPool) Stop(ctx context.Context) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		p.logger.Warn("delivery_pool_stop_timeout")
	}
	p.cancel()
}
