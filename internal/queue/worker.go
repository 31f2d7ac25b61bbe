// Package queue – worker pool.
//
// The pool runs a fixed number of worker goroutines that lease jobs from the
// durable queue under two simultaneous caps: a concurrency cap (pool size)
// and a throughput cap (shared token bucket on job starts). Failure
// escalation is pluggable: the default is per-job isolation with a
// consecutive-failure circuit breaker that pauses leasing for a cooldown;
// purging the entire queue on any processing error can be enabled instead
// via PurgeOnFailure.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/deepanshu1531/gemini-backend-clone/internal/domain"
)

// Processor executes one leased job: call the AI collaborator with the job's
// content and append the resulting reply to the job's chatroom. Any returned
// error is a recoverable failure from the queue's point of view and counts
// against the job's retry budget.
type Processor interface {
	Process(ctx context.Context, job *domain.Job) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, job *domain.Job) error

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, job *domain.Job) error { return f(ctx, job) }

// PoolOptions tunes the worker pool. Zero values fall back to the defaults
// below.
type PoolOptions struct {
	Concurrency   int           // simultaneous workers (default 5)
	RatePerSecond float64       // job-starts per second across the pool (default 30)
	PollInterval  time.Duration // lease retry interval when idle (default 250ms)

	// Failure escalation. With PurgeOnFailure set, any processing error
	// drops every job in every state before the error is recorded.
	PurgeOnFailure   bool
	BreakerThreshold int           // consecutive failures before leasing pauses (default 5)
	BreakerCooldown  time.Duration // pause duration once the breaker opens (default 30s)
}

func (o *PoolOptions) normalize() {
	if o.Concurrency <= 0 {
		o.Concurrency = 5
	}
	if o.RatePerSecond <= 0 {
		o.RatePerSecond = 30
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 250 * time.Millisecond
	}
	if o.BreakerThreshold <= 0 {
		o.BreakerThreshold = 5
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 30 * time.Second
	}
}

// Pool is a bounded set of concurrent job consumers.
type Pool struct {
	queue   *Queue
	proc    Processor
	opts    PoolOptions
	limiter *rate.Limiter
	log     zerolog.Logger

	mu          sync.Mutex
	failures    int       // consecutive failures since last success
	pausedUntil time.Time // breaker open until this instant

	cancel context.CancelFunc
	done   chan struct{}
	g      *errgroup.Group
}

// NewPool constructs a worker pool over q that hands leased jobs to proc.
func NewPool(q *Queue, proc Processor, opts PoolOptions, log zerolog.Logger) *Pool {
	opts.normalize()
	return &Pool{
		queue:   q,
		proc:    proc,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1),
		log:     log.With().Str("component", "worker_pool").Logger(),
		done:    make(chan struct{}),
	}
}

// Start launches the worker goroutines. It returns immediately; call Stop
// (or cancel ctx) to begin shutdown.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	p.g = g
	for i := 0; i < p.opts.Concurrency; i++ {
		id := i
		g.Go(func() error {
			p.run(ctx, id)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(p.done)
	}()
	p.log.Info().
		Int("concurrency", p.opts.Concurrency).
		Float64("rate_per_second", p.opts.RatePerSecond).
		Msg("worker pool started")
}

// Stop halts leasing and waits for in-flight jobs to finish naturally, up to
// grace. It returns an error when the deadline expires with jobs still
// running.
func (p *Pool) Stop(grace time.Duration) error {
	if p.cancel != nil {
		p.cancel()
	}
	select {
	case <-p.done:
		p.log.Info().Msg("worker pool drained")
		return nil
	case <-time.After(grace):
		return errors.New("worker pool: shutdown grace expired with jobs in flight")
	}
}

// run is one worker's loop: respect the breaker, lease, throttle, process.
func (p *Pool) run(ctx context.Context, id int) {
	log := p.log.With().Int("worker", id).Logger()
	for {
		if ctx.Err() != nil {
			return
		}
		if wait := p.breakerWait(); wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}

		job, err := p.queue.Lease(ctx)
		if errors.Is(err, ErrEmpty) {
			select {
			case <-ctx.Done():
				return
			case <-p.queue.Notify():
			case <-time.After(p.opts.PollInterval):
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("lease failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.opts.PollInterval):
			}
			continue
		}

		// Throughput cap: one token per job start.
		if err := p.limiter.Wait(ctx); err != nil {
			// Shutting down while holding a lease: push the job back
			// untouched so a later run can pick it up.
			p.release(job)
			return
		}

		p.execute(ctx, log, job)
	}
}

// execute runs one leased job to a terminal or requeued state. The job keeps
// running on a detached context so cancellation stops leasing without
// killing work already in flight.
func (p *Pool) execute(ctx context.Context, log zerolog.Logger, job *domain.Job) {
	jobsInflight.Inc()
	defer jobsInflight.Dec()

	start := time.Now()
	jobCtx := context.WithoutCancel(ctx)
	err := p.proc.Process(jobCtx, job)
	jobDuration.Observe(time.Since(start).Seconds())

	if err == nil {
		p.recordSuccess()
		if cerr := p.queue.Complete(jobCtx, job); cerr != nil {
			log.Error().Err(cerr).Str("job_id", job.ID).Msg("complete failed")
		}
		log.Debug().Str("job_id", job.ID).Str("chatroom_id", job.ChatroomID).Msg("job completed")
		return
	}

	log.Warn().Err(err).
		Str("job_id", job.ID).
		Int("attempts", job.Attempts+1).
		Msg("job processing failed")

	if p.opts.PurgeOnFailure {
		// Fail-safe mode: a poison job must not stall the pipeline, so
		// the whole queue goes with it.
		n, perr := p.queue.PurgeAll(jobCtx)
		if perr != nil {
			log.Error().Err(perr).Msg("queue purge failed")
			return
		}
		log.Error().Err(err).Int64("purged", n).Msg("queue purged after job failure")
		return
	}

	p.recordFailure(log)
	requeued, ferr := p.queue.Fail(jobCtx, job, err)
	if ferr != nil {
		log.Error().Err(ferr).Str("job_id", job.ID).Msg("failure bookkeeping failed")
		return
	}
	if !requeued {
		log.Error().Str("job_id", job.ID).Str("last_error", job.LastError).Msg("job parked in dead set")
	}
}

// release puts a leased-but-unstarted job back in the waiting state.
func (p *Pool) release(job *domain.Job) {
	err := p.queue.db.Model(&domain.Job{}).
		Where("id = ?", job.ID).
		Updates(map[string]any{
			"state":      domain.JobWaiting,
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		p.log.Error().Err(err).Str("job_id", job.ID).Msg("release failed")
	}
}

// breakerWait returns how long leasing must stay paused, or 0 when closed.
func (p *Pool) breakerWait() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if until := p.pausedUntil; time.Now().Before(until) {
		return time.Until(until)
	}
	return 0
}

func (p *Pool) recordSuccess() {
	p.mu.Lock()
	p.failures = 0
	p.mu.Unlock()
}

func (p *Pool) recordFailure(log zerolog.Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures++
	if p.failures >= p.opts.BreakerThreshold && time.Now().After(p.pausedUntil) {
		p.pausedUntil = time.Now().Add(p.opts.BreakerCooldown)
		p.failures = 0
		breakerOpens.Inc()
		log.Warn().
			Dur("cooldown", p.opts.BreakerCooldown).
			Msg("circuit breaker opened, pausing job intake")
	}
}
