package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu    sync.Mutex
	calls map[string]Call
	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{calls: map[string]Call{}, clock: time.Now}
}

func (m *MemoryStore) Create(ctx context.Context, c Call) error {
	if c.ID == "" || c.UserID == "" || c.To == "" {
		return ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	if c.Status == "" {
		c.Status = CallStatusQueued
	}
	m.calls[c.ID] = c
	return nil
}

func (m *MemoryStore) MarkRinging(ctx context.Context, id, providerCallID string) error {
	if id == "" {
		return ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.calls[id]
	if !ok || c.Status != CallStatusQueued {
		return ErrNotFound
	}
	c.Status = CallStatusRinging
	c.ProviderCallID = providerCallID
	c.UpdatedAt = m.clock().UTC()
	m.calls[id] = c
	return nil
}

func (m *MemoryStore) Finalize(ctx context.Context, id string, status CallStatus, reason string, durationSeconds int, costMinor int64, currency string) error {
	if id == "" || !status.Terminal() {
		return ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.calls[id]
	if !ok {
		return nil
	}
	if c.Status.Terminal() {
		return nil
	}
	c.Status = status
	c.Reason = reason
	c.DurationSeconds = durationSeconds
	c.CostMinor = costMinor
	if currency != "" {
		c.Currency = currency
	}
	c.UpdatedAt = m.clock().UTC()
	m.calls[id] = c
	return nil
}

func (m *MemoryStore) MarkCanceled(ctx context.Context, id, reason string) error {
	if id == "" {
		return ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.calls[id]
	if !ok || c.Status != CallStatusQueued {
		return ErrNotFound
	}
	c.Status = CallStatusCanceled
	c.Reason = reason
	c.UpdatedAt = m.clock().UTC()
	m.calls[id] = c
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (Call, error) {
	if id == "" {
		return Call{}, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.calls[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]Call, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Call
	for _, c := range m.calls {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) SummaryForUser(ctx context.Context, userID string, from, to time.Time) (Summary, error) {
	if userID == "" {
		return Summary{}, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Summary{ByStatus: map[CallStatus]int{}}
	for _, c := range m.calls {
		if c.UserID != userID || c.CreatedAt.Before(from) || !c.CreatedAt.Before(to) {
			continue
		}
		s.ByStatus[c.Status]++
		s.Total++
		s.TotalDurationSeconds += c.DurationSeconds
		s.TotalCostMinor += c.CostMinor
	}
	return s, nil
}
