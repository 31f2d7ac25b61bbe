// Package queue implements the durable job queue and bounded worker pool
// that decouple "append user message" from "compute and append AI reply".
//
// Jobs are GORM rows (domain.Job), so an accepted message survives process
// restarts. Enqueue persists the job before returning its handle; workers
// lease jobs transactionally, invoke the processor, and either discard the
// job (success), push it back with an exponential backoff delay (recoverable
// failure), or park it in the bounded dead set (retry budget exhausted).
//
// State transitions:
//
//	waiting ──lease──▶ active ──success──▶ (row deleted)
//	   ▲                  │
//	   └──delay elapsed── failed ──cap reached──▶ dead (FIFO-bounded)
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/deepanshu1531/gemini-backend-clone/internal/domain"
)

// ErrEmpty is returned by Lease when no job is currently eligible.
var ErrEmpty = errors.New("queue: no leasable job")

// Options tunes queue durability behavior. Zero values fall back to the
// defaults below.
type Options struct {
	MaxAttempts int           // retry budget before a job goes dead (default 3)
	BackoffBase time.Duration // first retry delay, doubles per attempt (default 2s)
	DeadSetCap  int           // dead jobs retained, oldest evicted first (default 100)
}

func (o *Options) normalize() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 2000 * time.Millisecond
	}
	if o.DeadSetCap <= 0 {
		o.DeadSetCap = 100
	}
}

// Queue is the durable job store. It is safe for concurrent use by many
// producers and workers; all coordination goes through the database.
type Queue struct {
	db     *gorm.DB
	opts   Options
	notify chan struct{}
}

// New constructs a Queue on top of db. The jobs table must already be
// migrated (repo.AutoMigrate).
func New(db *gorm.DB, opts Options) *Queue {
	opts.normalize()
	return &Queue{
		db:     db,
		opts:   opts,
		notify: make(chan struct{}, 1),
	}
}

// Notify returns a channel that receives a tick whenever a job is enqueued,
// so idle workers can wake up without waiting for the poll interval.
func (q *Queue) Notify() <-chan struct{} { return q.notify }

// MaxAttempts exposes the configured retry budget.
func (q *Queue) MaxAttempts() int { return q.opts.MaxAttempts }

// Enqueue durably persists a generation job in the waiting state and returns
// its handle. The caller's request completes here; nothing waits for the AI
// collaborator.
func (q *Queue) Enqueue(ctx context.Context, chatroomID, userID, content string) (*domain.Job, error) {
	now := time.Now().UTC()
	job := &domain.Job{
		ID:         uuid.NewString(),
		ChatroomID: chatroomID,
		UserID:     userID,
		Content:    content,
		State:      domain.JobWaiting,
		NextRunAt:  now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := q.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	jobsEnqueued.Inc()
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return job, nil
}

// Lease transactionally claims the oldest eligible job (waiting, or failed
// with its backoff delay elapsed) and marks it active. Returns ErrEmpty when
// nothing is leasable.
func (q *Queue) Lease(ctx context.Context) (*domain.Job, error) {
	var job domain.Job
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.
			Where("state IN ? AND next_run_at <= ?",
				[]domain.JobState{domain.JobWaiting, domain.JobFailed}, time.Now().UTC()).
			Order("created_at ASC, id ASC").
			First(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEmpty
		}
		if err != nil {
			return err
		}
		job.State = domain.JobActive
		job.UpdatedAt = time.Now().UTC()
		return tx.Model(&domain.Job{}).
			Where("id = ?", job.ID).
			Updates(map[string]any{"state": job.State, "updated_at": job.UpdatedAt}).Error
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Complete discards a successfully processed job. Completed jobs are not
// retained.
func (q *Queue) Complete(ctx context.Context, job *domain.Job) error {
	if err := q.db.WithContext(ctx).Unscoped().Delete(&domain.Job{}, "id = ?", job.ID).Error; err != nil {
		return err
	}
	jobsProcessed.WithLabelValues("completed").Inc()
	return nil
}

// Fail records a processing failure for an active job. Below the retry cap
// the job re-enters the failed state with an exponential backoff delay;
// at the cap it is parked dead and the dead set is trimmed to its bounded
// size, oldest first. It reports whether the job will run again.
func (q *Queue) Fail(ctx context.Context, job *domain.Job, cause error) (requeued bool, err error) {
	now := time.Now().UTC()
	job.Attempts++
	job.LastError = cause.Error()
	job.UpdatedAt = now

	if job.Attempts < q.opts.MaxAttempts {
		job.State = domain.JobFailed
		job.NextRunAt = now.Add(q.BackoffDelay(job.Attempts))
		err = q.db.WithContext(ctx).Model(&domain.Job{}).
			Where("id = ?", job.ID).
			Updates(map[string]any{
				"state":       job.State,
				"attempts":    job.Attempts,
				"last_error":  job.LastError,
				"next_run_at": job.NextRunAt,
				"updated_at":  job.UpdatedAt,
			}).Error
		if err != nil {
			return false, err
		}
		jobsProcessed.WithLabelValues("retried").Inc()
		return true, nil
	}

	job.State = domain.JobDead
	err = q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if uerr := tx.Model(&domain.Job{}).
			Where("id = ?", job.ID).
			Updates(map[string]any{
				"state":      job.State,
				"attempts":   job.Attempts,
				"last_error": job.LastError,
				"updated_at": job.UpdatedAt,
			}).Error; uerr != nil {
			return uerr
		}
		return q.trimDeadSet(tx)
	})
	if err != nil {
		return false, err
	}
	jobsProcessed.WithLabelValues("dead").Inc()
	return false, nil
}

// trimDeadSet enforces the bounded dead set inside the caller's transaction,
// deleting the oldest entries first until the cap holds.
func (q *Queue) trimDeadSet(tx *gorm.DB) error {
	var total int64
	if err := tx.Model(&domain.Job{}).
		Where("state = ?", domain.JobDead).
		Count(&total).Error; err != nil {
		return err
	}
	excess := total - int64(q.opts.DeadSetCap)
	if excess <= 0 {
		return nil
	}
	var victims []string
	if err := tx.Model(&domain.Job{}).
		Where("state = ?", domain.JobDead).
		Order("updated_at ASC, id ASC").
		Limit(int(excess)).
		Pluck("id", &victims).Error; err != nil {
		return err
	}
	return tx.Unscoped().Delete(&domain.Job{}, "id IN ?", victims).Error
}

// BackoffDelay returns the delay imposed after the given (1-based) failed
// attempt: base, 2*base, 4*base, ... with no jitter.
func (q *Queue) BackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return q.opts.BackoffBase << uint(attempt-1)
}

// PurgeAll removes every job in every state and returns the number dropped.
// This is the drastic fail-safe escalation: one poison job takes the whole
// queue with it. It stays available behind PoolOptions.PurgeOnFailure as an
// explicit, testable behavior; the circuit breaker is the default.
func (q *Queue) PurgeAll(ctx context.Context) (int64, error) {
	res := q.db.WithContext(ctx).Unscoped().Where("1 = 1").Delete(&domain.Job{})
	if res.Error != nil {
		return 0, res.Error
	}
	queuePurges.Inc()
	return res.RowsAffected, res.Error
}

// CountByState returns the number of jobs per state, for health reporting
// and tests.
func (q *Queue) CountByState(ctx context.Context) (map[domain.JobState]int64, error) {
	type row struct {
		State domain.JobState
		N     int64
	}
	var rows []row
	err := q.db.WithContext(ctx).Model(&domain.Job{}).
		Select("state, COUNT(*) AS n").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.JobState]int64, len(rows))
	for _, r := range rows {
		out[r.State] = r.N
	}
	return out, nil
}

// Get fetches a job by id, primarily for tests and support tooling.
func (q *Queue) Get(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	if err := q.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}
