package reporting

import "time"

// TimeRange bounds a report to [From, To).
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated outcome metrics for one user.
type CallsSummaryRequest struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`
}

type CallsSummary struct {
	UserID string `json:"user_id"`

	TotalCalls      int `json:"total_calls"`
	CompletedCalls  int `json:"completed_calls"`
	FailedCalls     int `json:"failed_calls"`
	NoAnswerCalls   int `json:"no_answer_calls"`
	BusyCalls       int `json:"busy_calls"`
	CanceledCalls   int `json:"canceled_calls"`
	InFlightCalls   int `json:"in_flight_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	TotalCostMinor int64 `json:"total_cost_minor"`
}

// QueueHealth is the operator's live snapshot: how full the system is and
// who is waiting.
type QueueHealth struct {
	GeneratedAt time.Time `json:"generated_at"`

	SystemActive int `json:"system_active"`
	SystemLimit  int `json:"system_limit"`
	TotalQueued  int `json:"total_queued"`

	// OldestQueuedAt is nil when the queue is empty.
	OldestQueuedAt *time.Time `json:"oldest_queued_at,omitempty"`
	OldestWait     int        `json:"oldest_wait_seconds"`

	// Users is sorted by queued depth, deepest backlog first.
	Users []UserQueueHealth `json:"users"`
}

type UserQueueHealth struct {
	UserID string `json:"user_id"`
	Queued int    `json:"queued"`
	Active int    `json:"active"`
}
