package scheduler

import (
	"errors"
	"time"

	"dialer-platform/internal/queue"
)

// SubmitRequest asks for one outbound call to be placed as soon as
// capacity allows.
type SubmitRequest struct {
	UserID      string     `json:"user_id"`
	Kind        queue.Kind `json:"kind"`
	AgentID     string     `json:"agent_id"`
	Destination string     `json:"destination"`
	CampaignID  string     `json:"campaign_id,omitempty"`
}

// Disposition is the admission answer. A full system is never an error;
// the job is accepted either way and the disposition says what happened.
type Disposition string

const (
	DispositionAdmitted Disposition = "admitted"
	DispositionQueued   Disposition = "queued"
)

// Submission reports where an accepted job landed.
type Submission struct {
	JobID       string      `json:"job_id"`
	Disposition Disposition `json:"disposition"`

	// Reason, Position and EstimatedWait are set for queued jobs only.
	// Reason is the capacity deny reason (user_full or system_full).
	// Position is 1-based and an upper bound for campaign jobs (rotation
	// can only move them forward).
	Reason        string        `json:"reason,omitempty"`
	Position      int           `json:"position,omitempty"`
	EstimatedWait time.Duration `json:"estimated_wait,omitempty"`
}

// UserStatus is a user's live view: running calls against their cap plus
// their backlog.
type UserStatus struct {
	UserID string `json:"user_id"`

	ActiveCalls int `json:"active_calls"`
	ActiveLimit int `json:"active_limit"`

	QueuedDirect   int `json:"queued_direct"`
	QueuedCampaign int `json:"queued_campaign"`

	// NextPosition is the place of the user's best queued job, 0 when the
	// backlog is empty.
	NextPosition int `json:"next_position,omitempty"`
}

// CancelResult says how a cancel was honored.
type CancelResult struct {
	JobID string `json:"job_id"`

	// Removed reports the job left the queue before ever dialing.
	Removed bool `json:"removed"`

	// HangupRequested reports an active call was asked to end. The slot
	// frees only when the provider confirms on the status webhook.
	HangupRequested bool `json:"hangup_requested"`
}

// DispatchJob is one admitted call handed to the dispatcher.
type DispatchJob struct {
	JobID       string
	UserID      string
	Kind        queue.Kind
	AgentID     string
	Destination string
}

var (
	// ErrInvalidJob rejects a submission before it touches capacity.
	ErrInvalidJob = errors.New("invalid job")

	// ErrNotCancelable marks the brief dispatching window between pop and
	// provider handoff; callers should retry the cancel shortly.
	ErrNotCancelable = errors.New("job is being dispatched, retry shortly")

	// ErrAlreadyFinished rejects cancels of jobs that already reached a
	// terminal status.
	ErrAlreadyFinished = errors.New("job already finished")
)
