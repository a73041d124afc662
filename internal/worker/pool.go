package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JFenderson/BandHub-sub007/internal/domain"
)

// JobStore is the slice of the job store a pool consumes.
type JobStore interface {
	Dequeue(ctx context.Context, queue string, block time.Duration) (*domain.Job, error)
	Complete(ctx context.Context, job *domain.Job) error
	Fail(ctx context.Context, job *domain.Job, cause error) error
	Release(ctx context.Context, job *domain.Job) error
	MoveDue(ctx context.Context, queue string, now time.Time, batch int64) (int, error)
}

// Handler processes one job. Returning nil completes the job; any error
// sends it through the queue's retry/backoff until attempts run out.
type Handler interface {
	Handle(ctx context.Context, job *domain.Job) error
}

type HandlerFunc func(ctx context.Context, job *domain.Job) error

func (f HandlerFunc) Handle(ctx context.Context, job *domain.Job) error { return f(ctx, job) }

// Pool runs a fixed number of consumers against one queue. Concurrency
// is a per-queue setting: the maintenance queue runs with one consumer
// so only one sync-all campaign is ever in flight.
type Pool struct {
	store       JobStore
	queue       string
	handlers    map[string]Handler
	concurrency int
	timeout     time.Duration
	log         *zap.Logger
}

func NewPool(store JobStore, queueName string, handlers map[string]Handler, concurrency int, timeout time.Duration, log *zap.Logger) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{
		store:       store,
		queue:       queueName,
		handlers:    handlers,
		concurrency: concurrency,
		timeout:     timeout,
		log:         log.With(zap.String("queue", queueName)),
	}
}

// Run blocks until ctx is cancelled. One goroutine promotes due delayed
// jobs; the rest consume.
func (p *Pool) Run(ctx context.Context) {
	go p.moveDueLoop(ctx)

	done := make(chan struct{})
	for i := 0; i < p.concurrency; i++ {
		go func(id int) {
			defer func() { done <- struct{}{} }()
			p.consume(ctx, id)
		}(i)
	}
	for i := 0; i < p.concurrency; i++ {
		<-done
	}
}

func (p *Pool) moveDueLoop(ctx context.Context) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if _, err := p.store.MoveDue(ctx, p.queue, now, 200); err != nil && ctx.Err() == nil {
				p.log.Warn("move due failed", zap.Error(err))
			}
		}
	}
}

func (p *Pool) consume(ctx context.Context, id int) {
	for ctx.Err() == nil {
		job, err := p.store.Dequeue(ctx, p.queue, 5*time.Second)
		if err != nil {
			if ctx.Err() == nil {
				p.log.Warn("dequeue failed", zap.Int("consumer", id), zap.Error(err))
				time.Sleep(time.Second)
			}
			continue
		}
		if job == nil {
			continue
		}
		p.process(ctx, job)
	}
}

func (p *Pool) process(ctx context.Context, job *domain.Job) {
	log := p.log.With(
		zap.String("job_id", job.ID),
		zap.String("type", job.Type),
		zap.Int("attempt", job.Attempt))

	h, ok := p.handlers[job.Type]
	if !ok {
		log.Error("no handler for job type")
		_ = p.store.Fail(ctx, job, domain.NewConfigurationError("no handler for %q", job.Type))
		return
	}

	jctx, cancel := context.WithTimeout(ctx, p.timeout)
	err := h.Handle(jctx, job)
	cancel()

	if jctx.Err() == context.DeadlineExceeded {
		// a timed-out job is a transient failure, retried like any other
		err = domain.NewTransientError("job timeout", jctx.Err())
	}
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		// shutdown interrupted the handler; hand the job back without
		// burning an attempt. The pool's ctx is already cancelled, so the
		// release gets its own short deadline.
		rctx, rcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer rcancel()
		if rerr := p.store.Release(rctx, job); rerr != nil {
			log.Error("releasing job on shutdown failed", zap.Error(rerr))
		} else {
			log.Info("job released on shutdown")
		}
		return
	}
	if err != nil {
		log.Warn("job failed", zap.Error(err))
		if ferr := p.store.Fail(ctx, job, err); ferr != nil {
			log.Error("recording failure failed", zap.Error(ferr))
		}
		return
	}
	if cerr := p.store.Complete(ctx, job); cerr != nil {
		log.Error("recording completion failed", zap.Error(cerr))
		return
	}
	log.Info("job completed")
}
