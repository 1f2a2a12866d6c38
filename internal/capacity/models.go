package capacity

import (
	"errors"
	"time"
)

// Reservation is one granted concurrency slot for an in-flight call.
// A job holds at most one reservation, keyed by its job id; the row is
// deleted when the call reaches a terminal state.
type Reservation struct {
	JobID      string    `json:"job_id"`
	UserID     string    `json:"user_id"`
	Kind       string    `json:"kind"` // direct | campaign, recorded for observability
	ReservedAt time.Time `json:"reserved_at"`
}

// DenyReason says which cap blocked a reservation.
type DenyReason string

const (
	DenyUserFull   DenyReason = "user_full"
	DenySystemFull DenyReason = "system_full"
)

// Decision is the outcome of one reservation attempt. Counts reflect the
// state after the attempt (the new slot is included when granted), so the
// caller can log and estimate queue positions without a second read.
type Decision struct {
	Granted bool       `json:"granted"`
	Reason  DenyReason `json:"reason,omitempty"`

	SystemActive int `json:"system_active"`
	SystemLimit  int `json:"system_limit"`
	UserActive   int `json:"user_active"`
	UserLimit    int `json:"user_limit"`
}

// UserLimit is an explicit per-user cap override.
type UserLimit struct {
	UserID        string    `json:"user_id"`
	MaxConcurrent int       `json:"max_concurrent"`
	UpdatedAt     time.Time `json:"updated_at"`
}

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
)
