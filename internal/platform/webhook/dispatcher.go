package webhook

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrQueueFull = errors.New("webhook queue full")
	ErrStopped   = errors.New("webhook dispatcher stopped")
)

// Job is a delivery owned by some persisted record, identified by ID.
type Job struct {
	ID       string
	TenantID string
	Request  Request
}

// StatusRecorder persists the outcome of a job. It is called exactly once
// per dequeued job.
type StatusRecorder interface {
	RecordDelivery(ctx context.Context, job Job, res Result) error
}

type DispatcherConfig struct {
	Workers   int
	QueueSize int
	// RecordTimeout bounds each StatusRecorder call.
	RecordTimeout time.Duration
}

// Dispatcher runs deliveries on a fixed worker pool fed by a bounded queue.
type Dispatcher struct {
	deliverer *Deliverer
	recorder  StatusRecorder
	logger    zerolog.Logger
	cfg       DispatcherConfig

	mu       sync.RWMutex
	queue    chan Job
	stopped  bool
	stopping chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewDispatcher(d *Deliverer, recorder StatusRecorder, logger zerolog.Logger, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = 5 * time.Second
	}
	return &Dispatcher{
		deliverer: d,
		recorder:  recorder,
		logger:    logger.With().Str("component", "webhook").Logger(),
		cfg:       cfg,
		queue:     make(chan Job, cfg.QueueSize),
		stopping:  make(chan struct{}),
	}
}

// Start launches the workers. Deliveries run under ctx, so cancelling it
// aborts in-flight requests (they are then recorded as failed).
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Enqueue hands a job to the pool without blocking.
func (d *Dispatcher) Enqueue(job Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}
	select {
	case d.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// EnqueueWait hands a job to the pool, waiting for queue room until ctx ends
// or the dispatcher stops.
func (d *Dispatcher) EnqueueWait(ctx context.Context, job Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}
	select {
	case d.queue <- job:
		return nil
	case <-d.stopping:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new jobs and waits for queued and in-flight ones to finish.
// If ctx expires first, in-flight deliveries are cancelled and ctx.Err() is
// returned; jobs never dequeued stay pending in the recorder's store.
func (d *Dispatcher) Stop(ctx context.Context) error {
	// Release blocked EnqueueWait callers before taking the write lock.
	d.stopOnce.Do(func() { close(d.stopping) })
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if d.cancel != nil {
			d.cancel()
		}
		return nil
	case <-ctx.Done():
		if d.cancel != nil {
			d.cancel()
		}
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for job := range d.queue {
		if ctx.Err() != nil {
			// Hard stop: leave the remainder for startup recovery.
			return
		}
		d.process(ctx, job)
	}
}

func (d *Dispatcher) process(ctx context.Context, job Job) {
	res := d.deliverer.Deliver(ctx, job.Request)

	evt := d.logger.Info()
	if res.Status != StatusSent {
		evt = d.logger.Warn().Str("error", res.Error)
	}
	evt.
		Str("submission_id", job.ID).
		Str("tenant_id", job.TenantID).
		Str("status", string(res.Status)).
		Int("status_code", res.StatusCode).
		Dur("duration", res.Duration).
		Msg("webhook delivery")

	// The outcome must be recorded even when ctx was cancelled mid-attempt.
	recCtx, cancel := context.WithTimeout(context.Background(), d.cfg.RecordTimeout)
	defer cancel()
	if err := d.recorder.RecordDelivery(recCtx, job, res); err != nil {
		d.logger.Error().Err(err).Str("submission_id", job.ID).Msg("record webhook outcome")
	}
}
