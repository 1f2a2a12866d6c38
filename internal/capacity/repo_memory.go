package capacity

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryLedger is an in-memory Ledger for tests and local runs. A single
// mutex serializes attempts, giving the same exactness the Postgres
// guard-row lock provides.
type MemoryLedger struct {
	mu           sync.Mutex
	reservations map[string]Reservation
	systemLimit  int
	userDefault  int
	userLimits   map[string]int
	clock        func() time.Time
}

func NewMemoryLedger(systemLimit, userDefault int) *MemoryLedger {
	return &MemoryLedger{
		reservations: map[string]Reservation{},
		systemLimit:  systemLimit,
		userDefault:  userDefault,
		userLimits:   map[string]int{},
		clock:        time.Now,
	}
}

// SetSystemLimit and SetUserLimit adjust caps between attempts.
func (m *MemoryLedger) SetSystemLimit(limit int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.systemLimit = limit
}

func (m *MemoryLedger) SetUserLimit(userID string, limit int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userLimits[userID] = limit
}

func (m *MemoryLedger) TryReserve(ctx context.Context, r Reservation) (Decision, error) {
	if r.JobID == "" || r.UserID == "" {
		return Decision{}, ErrInvalidArgument
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.reservations[r.JobID]; exists {
		return Decision{}, fmt.Errorf("job %s already holds a reservation", r.JobID)
	}

	userLimit, ok := m.userLimits[r.UserID]
	if !ok {
		userLimit = m.userDefault
	}

	systemActive := len(m.reservations)
	userActive := 0
	for _, held := range m.reservations {
		if held.UserID == r.UserID {
			userActive++
		}
	}

	d := Decision{
		SystemActive: systemActive,
		SystemLimit:  m.systemLimit,
		UserActive:   userActive,
		UserLimit:    userLimit,
	}
	if userActive >= userLimit {
		d.Reason = DenyUserFull
		return d, nil
	}
	if systemActive >= m.systemLimit {
		d.Reason = DenySystemFull
		return d, nil
	}

	if r.ReservedAt.IsZero() {
		r.ReservedAt = m.clock().UTC()
	}
	m.reservations[r.JobID] = r
	d.Granted = true
	d.SystemActive++
	d.UserActive++
	return d, nil
}

func (m *MemoryLedger) Release(ctx context.Context, jobID string) (*Reservation, error) {
	if jobID == "" {
		return nil, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[jobID]
	if !ok {
		return nil, nil
	}
	delete(m.reservations, jobID)
	return &r, nil
}

// HasUserHeadroom reports whether userID can hold one more slot. Useful
// as a queue headroom func in tests and local runs.
func (m *MemoryLedger) HasUserHeadroom(ctx context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit, ok := m.userLimits[userID]
	if !ok {
		limit = m.userDefault
	}
	active := 0
	for _, r := range m.reservations {
		if r.UserID == userID {
			active++
		}
	}
	return active < limit, nil
}

func (m *MemoryLedger) ActiveCounts(ctx context.Context, userID string) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	systemActive := len(m.reservations)
	userActive := 0
	for _, r := range m.reservations {
		if r.UserID == userID {
			userActive++
		}
	}
	return systemActive, userActive, nil
}

func (m *MemoryLedger) ActiveByUser(ctx context.Context) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := map[string]int{}
	for _, r := range m.reservations {
		out[r.UserID]++
	}
	return out, nil
}

func (m *MemoryLedger) ReleaseStale(ctx context.Context, before time.Time) ([]Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Reservation
	for id, r := range m.reservations {
		if r.ReservedAt.Before(before) {
			out = append(out, r)
			delete(m.reservations, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReservedAt.Before(out[j].ReservedAt) })
	return out, nil
}

// MemoryLimits is an in-memory LimitStore for tests.
type MemoryLimits struct {
	mu            sync.Mutex
	system        int
	systemSeeded  bool
	users         map[string]int
	systemDefault int
	userDefault   int
	clock         func() time.Time
}

func NewMemoryLimits(systemDefault, userDefault int) *MemoryLimits {
	return &MemoryLimits{
		users:         map[string]int{},
		systemDefault: systemDefault,
		userDefault:   userDefault,
		clock:         time.Now,
	}
}

func (m *MemoryLimits) EnsureSystemRow(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.systemSeeded {
		m.system = m.systemDefault
		m.systemSeeded = true
	}
	return nil
}

func (m *MemoryLimits) SystemLimit(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.systemSeeded {
		return 0, ErrNotFound
	}
	return m.system, nil
}

func (m *MemoryLimits) SetSystemLimit(ctx context.Context, limit int) error {
	if limit <= 0 {
		return ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.system = limit
	m.systemSeeded = true
	return nil
}

func (m *MemoryLimits) ResolveUserLimit(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit, ok := m.users[userID]; ok {
		return limit, nil
	}
	return m.userDefault, nil
}

func (m *MemoryLimits) SetUserLimit(ctx context.Context, userID string, limit int) error {
	if userID == "" || limit <= 0 {
		return ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID] = limit
	return nil
}

func (m *MemoryLimits) ClearUserLimit(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, userID)
	return nil
}

func (m *MemoryLimits) ListUserLimits(ctx context.Context) ([]UserLimit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]UserLimit, 0, len(m.users))
	now := m.clock().UTC()
	for userID, limit := range m.users {
		out = append(out, UserLimit{UserID: userID, MaxConcurrent: limit, UpdatedAt: now})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
