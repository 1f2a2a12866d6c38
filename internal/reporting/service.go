package reporting

import (
	"context"
	"errors"
	"sort"
	"time"

	"dialer-platform/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Sources abstracts the stores reporting reads from. StoreSources adapts
// the live call/queue/capacity stores; tests can wire the memory variants
// through the same adapter.
type Sources interface {
	CallsSummary(ctx context.Context, userID string, from, to time.Time) (calls.Summary, error)

	QueuedByUser(ctx context.Context) (map[string]int, error)
	OldestQueuedAt(ctx context.Context) (*time.Time, error)
	ActiveByUser(ctx context.Context) (map[string]int, error)
	SystemLimit(ctx context.Context) (int, error)
}

type Service struct {
	src   Sources
	clock func() time.Time
}

func NewService(src Sources) *Service {
	return &Service{src: src, clock: time.Now}
}

// CallsSummary aggregates one user's outcomes over the requested range.
func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.UserID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.src == nil {
		return CallsSummary{}, errors.New("reporting: sources not configured")
	}

	agg, err := s.src.CallsSummary(ctx, req.UserID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{
		UserID:               req.UserID,
		TotalCalls:           agg.Total,
		TotalDurationSeconds: agg.TotalDurationSeconds,
		TotalCostMinor:       agg.TotalCostMinor,
	}
	for status, n := range agg.ByStatus {
		switch status {
		case calls.CallStatusCompleted:
			out.CompletedCalls += n
		case calls.CallStatusFailed:
			out.FailedCalls += n
		case calls.CallStatusNoAnswer:
			out.NoAnswerCalls += n
		case calls.CallStatusBusy:
			out.BusyCalls += n
		case calls.CallStatusCanceled:
			out.CanceledCalls += n
		default:
			// queued, ringing, in_progress: still moving.
			out.InFlightCalls += n
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}
	return out, nil
}

// QueueHealth snapshots backlog depth against live capacity. The numbers
// come from separate reads, so under load they can be off by a job or two;
// this is an operator view, not an admission input.
func (s *Service) QueueHealth(ctx context.Context) (QueueHealth, error) {
	if s.src == nil {
		return QueueHealth{}, errors.New("reporting: sources not configured")
	}

	queued, err := s.src.QueuedByUser(ctx)
	if err != nil {
		return QueueHealth{}, err
	}
	active, err := s.src.ActiveByUser(ctx)
	if err != nil {
		return QueueHealth{}, err
	}
	limit, err := s.src.SystemLimit(ctx)
	if err != nil {
		return QueueHealth{}, err
	}
	oldest, err := s.src.OldestQueuedAt(ctx)
	if err != nil {
		return QueueHealth{}, err
	}

	now := s.clock().UTC()
	out := QueueHealth{
		GeneratedAt:    now,
		SystemLimit:    limit,
		OldestQueuedAt: oldest,
	}
	if oldest != nil {
		out.OldestWait = int(now.Sub(*oldest).Seconds())
		if out.OldestWait < 0 {
			out.OldestWait = 0
		}
	}

	users := map[string]UserQueueHealth{}
	for userID, n := range queued {
		u := users[userID]
		u.UserID = userID
		u.Queued = n
		users[userID] = u
		out.TotalQueued += n
	}
	for userID, n := range active {
		u := users[userID]
		u.UserID = userID
		u.Active = n
		users[userID] = u
		out.SystemActive += n
	}

	out.Users = make([]UserQueueHealth, 0, len(users))
	for _, u := range users {
		out.Users = append(out.Users, u)
	}
	sort.Slice(out.Users, func(i, j int) bool {
		if out.Users[i].Queued != out.Users[j].Queued {
			return out.Users[i].Queued > out.Users[j].Queued
		}
		return out.Users[i].UserID < out.Users[j].UserID
	})
	return out, nil
}
