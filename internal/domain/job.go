// Job model for the durable generation queue. Jobs are persisted rows so an
// accepted message survives process restarts; the queue package owns their
// lifecycle.
package domain

import "time"

// JobState enumerates the lifecycle states of a queued generation job.
type JobState string

// Job lifecycle: waiting → active on lease, active → completed on success
// (completed jobs are deleted, not retained), active → waiting after a
// backoff delay on recoverable error, and waiting → dead once the attempt
// count exhausts the retry budget.
const (
	JobWaiting   JobState = "waiting"
	JobActive    JobState = "active"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobDead      JobState = "dead"
)

// Job is one unit of deferred work: "generate an AI reply for this message".
//
// Fields:
//   - ID: UUID primary key, returned to the caller as the job handle.
//   - ChatroomID / UserID / Content: the payload the worker needs.
//   - State: current lifecycle state (indexed for lease queries).
//   - Attempts: number of processing attempts so far.
//   - NextRunAt: earliest eligible lease time; pushed forward by backoff.
//   - LastError: the triggering error recorded when a job parks as dead.
type Job struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	ChatroomID string    `json:"chatroom_id" gorm:"type:char(36);not null;index"`
	UserID     string    `json:"user_id"     gorm:"type:varchar(64);not null"`
	Content    string    `json:"content"     gorm:"type:text;not null"`
	State      JobState  `json:"state"       gorm:"type:varchar(16);not null;index:idx_jobs_state_run,priority:1"`
	Attempts   int       `json:"attempts"    gorm:"not null;default:0"`
	NextRunAt  time.Time `json:"next_run_at" gorm:"index:idx_jobs_state_run,priority:2"`
	LastError  string    `json:"last_error,omitempty" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for Job.
func (Job) TableName() string { return "jobs" }
