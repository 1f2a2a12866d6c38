package campaigns

import (
	"errors"
	"time"
)

// Campaign is a named batch-dialing context owned by one user. It does not
// store destinations; those arrive with each activation request and turn
// into individual queued jobs.
type Campaign struct {
	ID      string `json:"id" db:"id"`
	UserID  string `json:"user_id" db:"user_id"`
	AgentID string `json:"agent_id" db:"agent_id"`
	Name    string `json:"name" db:"name"`

	Status Status `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusActive Status = "active"
	StatusPaused Status = "paused"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused:
		return true
	default:
		return false
	}
}

// ActivationReport tallies what happened to each destination in one
// activation batch. Requested = Admitted + Queued + Rejected + Skipped.
type ActivationReport struct {
	CampaignID string `json:"campaign_id"`
	Requested  int    `json:"requested"`
	Admitted   int    `json:"admitted"`
	Queued     int    `json:"queued"`

	// Rejected counts destinations the scheduler refused outright
	// (malformed numbers). They produce no job.
	Rejected int `json:"rejected"`

	// Skipped counts destinations never submitted because the campaign
	// was paused mid-batch.
	Skipped int `json:"skipped"`

	Outcomes []DestinationOutcome `json:"outcomes"`
}

// DestinationOutcome is the per-number line item of an activation batch.
type DestinationOutcome struct {
	Destination string `json:"destination"`
	JobID       string `json:"job_id,omitempty"`
	Disposition string `json:"disposition"`
	Error       string `json:"error,omitempty"`
}

const (
	dispositionRejected = "rejected"
	dispositionSkipped  = "skipped"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPaused means the campaign was paused before the batch started.
	// A pause that lands mid-batch is not an error; the report says so.
	ErrPaused = errors.New("campaign is paused")
)
