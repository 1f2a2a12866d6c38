package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"dialer-platform/internal/capacity"
)

// LedgerSink adapts the audit service to the capacity sweeper. A failed
// append is logged and swallowed; a sweep must never block on audit.
type LedgerSink struct {
	events *Service
	log    *slog.Logger
}

func NewLedgerSink(events *Service, log *slog.Logger) *LedgerSink {
	if log == nil {
		log = slog.Default()
	}
	return &LedgerSink{events: events, log: log}
}

func (s *LedgerSink) StaleReleased(ctx context.Context, r capacity.Reservation, cutoff time.Time) {
	meta, _ := json.Marshal(map[string]string{
		"kind":        r.Kind,
		"reserved_at": r.ReservedAt.UTC().Format(time.RFC3339),
		"cutoff":      cutoff.UTC().Format(time.RFC3339),
	})
	e := Event{
		Type:     EventTypeStaleRelease,
		UserID:   r.UserID,
		JobID:    r.JobID,
		Message:  "reservation released by stale sweep",
		Metadata: string(meta),
	}
	if err := s.events.Append(ctx, e); err != nil {
		s.log.Warn("audit append failed", "type", e.Type, "job_id", r.JobID, "error", err)
	}
}
