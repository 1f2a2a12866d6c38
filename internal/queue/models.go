package queue

import (
	"errors"
	"time"
)

// Kind classifies how a job entered the system. Direct jobs are
// user-initiated single calls; campaign jobs come from bulk activation.
type Kind string

const (
	KindDirect   Kind = "direct"
	KindCampaign Kind = "campaign"
)

func (k Kind) Valid() bool {
	switch k {
	case KindDirect, KindCampaign:
		return true
	default:
		return false
	}
}

// Priorities per kind. Any direct job outranks any campaign job; the gap
// leaves room for future tiers without renumbering.
const (
	PriorityDirect   = 100
	PriorityCampaign = 10
)

func PriorityFor(k Kind) int {
	if k == KindDirect {
		return PriorityDirect
	}
	return PriorityCampaign
}

// Status of a queue row. Rows are ephemeral: they exist only while the
// job is waiting (queued) or mid-promotion (dispatching); a promoted or
// canceled job has no row at all.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDispatching Status = "dispatching"
)

// Item is one backlogged call job.
type Item struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Kind     Kind   `json:"kind"`
	Priority int    `json:"priority"`

	// Sequence is a monotonically increasing arrival number; FIFO order
	// within a priority band is defined by it, not by timestamps.
	Sequence int64  `json:"sequence"`
	Status   Status `json:"status"`

	AgentID     string `json:"agent_id"`
	Destination string `json:"destination"`
	CampaignID  string `json:"campaign_id,omitempty"`

	EnqueuedAt    time.Time  `json:"enqueued_at"`
	DispatchingAt *time.Time `json:"dispatching_at,omitempty"`
}

// UserCounts is a per-user backlog snapshot.
type UserCounts struct {
	QueuedDirect   int `json:"queued_direct"`
	QueuedCampaign int `json:"queued_campaign"`
}

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
)
