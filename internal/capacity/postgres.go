package capacity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dialer-platform/pkg/utils"
)

// ReserveTx is the serialized check-and-insert at the heart of admission.
// It locks the system limits row, so concurrent attempts across processes
// queue on that lock and every count read afterwards is exact. Exported so
// the queue processor can compose it with the queue-row delete inside one
// transaction when promoting a queued job.
func ReserveTx(ctx context.Context, tx *sql.Tx, userDefault int, r Reservation) (Decision, error) {
	systemLimit, err := lockSystemLimitTx(ctx, tx)
	if err != nil {
		return Decision{}, fmt.Errorf("lock system limit: %w", err)
	}

	userLimit, ok, err := getUserLimitTx(ctx, tx, r.UserID)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		userLimit = userDefault
	}

	systemActive, err := countActiveTx(ctx, tx)
	if err != nil {
		return Decision{}, err
	}
	userActive, err := countActiveForUserTx(ctx, tx, r.UserID)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{
		SystemActive: systemActive,
		SystemLimit:  systemLimit,
		UserActive:   userActive,
		UserLimit:    userLimit,
	}
	if userActive >= userLimit {
		d.Reason = DenyUserFull
		return d, nil
	}
	if systemActive >= systemLimit {
		d.Reason = DenySystemFull
		return d, nil
	}

	if err := insertReservationTx(ctx, tx, r); err != nil {
		return Decision{}, err
	}
	d.Granted = true
	d.SystemActive++
	d.UserActive++
	return d, nil
}

// PostgresLedger enforces caps against the call_reservations table.
type PostgresLedger struct {
	db          *sql.DB
	userDefault int
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewPostgresLedger(db *sql.DB, userDefault int) *PostgresLedger {
	return &PostgresLedger{db: db, userDefault: userDefault, clock: time.Now}
}

func (l *PostgresLedger) TryReserve(ctx context.Context, r Reservation) (Decision, error) {
	if r.JobID == "" || r.UserID == "" {
		return Decision{}, ErrInvalidArgument
	}
	if r.ReservedAt.IsZero() {
		r.ReservedAt = l.clock().UTC()
	}

	var out Decision
	err := utils.WithTx(ctx, l.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		d, err := ReserveTx(ctx, tx, l.userDefault, r)
		if err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	return out, nil
}

func (l *PostgresLedger) Release(ctx context.Context, jobID string) (*Reservation, error) {
	if jobID == "" {
		return nil, ErrInvalidArgument
	}
	return deleteReservation(ctx, l.db, jobID)
}

func (l *PostgresLedger) ActiveCounts(ctx context.Context, userID string) (int, int, error) {
	systemActive, err := countActive(ctx, l.db)
	if err != nil {
		return 0, 0, err
	}
	if userID == "" {
		return systemActive, 0, nil
	}
	userActive, err := countActiveForUser(ctx, l.db, userID)
	if err != nil {
		return 0, 0, err
	}
	return systemActive, userActive, nil
}

func (l *PostgresLedger) ActiveByUser(ctx context.Context) (map[string]int, error) {
	return listActiveByUser(ctx, l.db)
}

func (l *PostgresLedger) ReleaseStale(ctx context.Context, before time.Time) ([]Reservation, error) {
	return deleteStaleReservations(ctx, l.db, before)
}

// PostgresLimits manages the capacity_limits table.
type PostgresLimits struct {
	db            *sql.DB
	systemDefault int
	userDefault   int
	clock         func() time.Time
}

func NewPostgresLimits(db *sql.DB, systemDefault, userDefault int) *PostgresLimits {
	return &PostgresLimits{
		db:            db,
		systemDefault: systemDefault,
		userDefault:   userDefault,
		clock:         time.Now,
	}
}

func (s *PostgresLimits) EnsureSystemRow(ctx context.Context) error {
	return insertSystemLimitIfAbsent(ctx, s.db, s.systemDefault, s.clock().UTC())
}

func (s *PostgresLimits) SystemLimit(ctx context.Context) (int, error) {
	limit, ok, err := getLimit(ctx, s.db, scopeSystem, "")
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNotFound
	}
	return limit, nil
}

func (s *PostgresLimits) SetSystemLimit(ctx context.Context, limit int) error {
	if limit <= 0 {
		return ErrInvalidArgument
	}
	return upsertLimit(ctx, s.db, scopeSystem, "", limit, s.clock().UTC())
}

func (s *PostgresLimits) ResolveUserLimit(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrInvalidArgument
	}
	limit, ok, err := getLimit(ctx, s.db, scopeUser, userID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return s.userDefault, nil
	}
	return limit, nil
}

func (s *PostgresLimits) SetUserLimit(ctx context.Context, userID string, limit int) error {
	if userID == "" || limit <= 0 {
		return ErrInvalidArgument
	}
	return upsertLimit(ctx, s.db, scopeUser, userID, limit, s.clock().UTC())
}

func (s *PostgresLimits) ClearUserLimit(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidArgument
	}
	return deleteUserLimit(ctx, s.db, userID)
}

func (s *PostgresLimits) ListUserLimits(ctx context.Context) ([]UserLimit, error) {
	return listUserLimitRows(ctx, s.db)
}
