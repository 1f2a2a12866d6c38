package calls

import (
	"errors"
	"time"
)

// Call represents one outbound phone call owned by a user.
//
// NOTE: This is a domain model only. Provider-specific fields (like the
// Twilio CallSid) live in provider_call_id, not mixed into the core model.
//
// The row is the durable record of a job's outcome; queue rows and
// capacity reservations are ephemeral and point here by sharing the id.
type Call struct {
	ID         string `json:"id" db:"id"`
	UserID     string `json:"user_id" db:"user_id"`
	CampaignID string `json:"campaign_id,omitempty" db:"campaign_id"`
	AgentID    string `json:"agent_id" db:"agent_id"`

	// Kind is direct or campaign, mirroring the job that produced the call.
	Kind string `json:"kind" db:"kind"`

	From string `json:"from" db:"from_number"`
	To   string `json:"to" db:"to_number"`

	Status CallStatus `json:"status" db:"status"`

	// Reason carries terminal detail: a dispatch error, a provider error
	// code, or a cancel note. Empty for clean completions.
	Reason string `json:"reason,omitempty" db:"reason"`

	// Duration is the call duration in seconds.
	// Keep as an int for JSON friendliness; store as INT in Postgres.
	DurationSeconds int `json:"duration" db:"duration"`

	// Cost is annotated at completion from minute pricing; zero when no
	// rate was found. Billing mutation happens elsewhere.
	CostMinor int64  `json:"cost_minor" db:"cost_minor"`
	Currency  string `json:"currency,omitempty" db:"currency"`

	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CallStatus string

const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusNoAnswer   CallStatus = "no_answer"
	CallStatusBusy       CallStatus = "busy"
	CallStatusCanceled   CallStatus = "canceled"
)

// Terminal reports whether the status is final; finalize never moves a
// call out of a terminal status.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusNoAnswer, CallStatusBusy, CallStatusCanceled:
		return true
	default:
		return false
	}
}

// Summary aggregates a user's call outcomes.
type Summary struct {
	Total                int                `json:"total"`
	ByStatus             map[CallStatus]int `json:"by_status"`
	TotalDurationSeconds int                `json:"total_duration_seconds"`
	TotalCostMinor       int64              `json:"total_cost_minor"`
}

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
)
