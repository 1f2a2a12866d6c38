package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dialer-platform/internal/capacity"
	"dialer-platform/internal/queue"
	"dialer-platform/pkg/utils"
)

// Promoter converts a popped queue row into a held reservation. The two
// writes must be atomic: a job either waits in the queue or holds a slot,
// never both and never neither.
type Promoter interface {
	Promote(ctx context.Context, item queue.Item) (capacity.Decision, error)
}

// PostgresPromoter runs the reserve, the queue-row delete, and (for
// campaign jobs) the rotation watermark bump in one transaction. A denied
// reserve writes nothing, so committing is harmless and the caller
// requeues the row.
type PostgresPromoter struct {
	db          *sql.DB
	userDefault int
	clock       func() time.Time
}

func NewPostgresPromoter(db *sql.DB, userDefault int) *PostgresPromoter {
	return &PostgresPromoter{db: db, userDefault: userDefault, clock: time.Now}
}

func (p *PostgresPromoter) Promote(ctx context.Context, item queue.Item) (capacity.Decision, error) {
	now := p.clock().UTC()
	var out capacity.Decision
	err := utils.WithTx(ctx, p.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		d, err := capacity.ReserveTx(ctx, tx, p.userDefault, capacity.Reservation{
			JobID:      item.ID,
			UserID:     item.UserID,
			Kind:       string(item.Kind),
			ReservedAt: now,
		})
		if err != nil {
			return err
		}
		out = d
		if !d.Granted {
			return nil
		}
		if err := queue.DeleteItemTx(ctx, tx, item.ID); err != nil {
			return fmt.Errorf("delete queue row: %w", err)
		}
		if item.Kind == queue.KindCampaign {
			if err := queue.MarkGrantedTx(ctx, tx, item.UserID, now); err != nil {
				return fmt.Errorf("mark rotation grant: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return capacity.Decision{}, err
	}
	return out, nil
}

// MemoryPromoter composes the in-memory ledger and queue for tests and
// local runs. The two steps are not one atomic unit, but the single
// process makes the gap unobservable.
type MemoryPromoter struct {
	Ledger *capacity.MemoryLedger
	Store  *queue.MemoryStore
}

func (p *MemoryPromoter) Promote(ctx context.Context, item queue.Item) (capacity.Decision, error) {
	d, err := p.Ledger.TryReserve(ctx, capacity.Reservation{
		JobID:  item.ID,
		UserID: item.UserID,
		Kind:   string(item.Kind),
	})
	if err != nil || !d.Granted {
		return d, err
	}
	if err := p.Store.Remove(ctx, item.ID); err != nil {
		return capacity.Decision{}, fmt.Errorf("remove queue row: %w", err)
	}
	if item.Kind == queue.KindCampaign {
		p.Store.MarkGranted(item.UserID)
	}
	return d, nil
}
