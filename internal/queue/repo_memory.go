package queue

import (
	"context"
	"sync"
	"time"
)

// HeadroomFunc reports whether a user can hold one more reservation. The
// memory store uses it where the Postgres store consults the capacity
// tables inside the pop statement.
type HeadroomFunc func(ctx context.Context, userID string) (bool, error)

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu        sync.Mutex
	items     map[string]Item
	nextSeq   int64
	watermark map[string]time.Time
	headroom  HeadroomFunc
	clock     func() time.Time
}

// NewMemoryStore builds a store; a nil headroom treats every user as
// eligible.
func NewMemoryStore(headroom HeadroomFunc) *MemoryStore {
	return &MemoryStore{
		items:     map[string]Item{},
		nextSeq:   1,
		watermark: map[string]time.Time{},
		headroom:  headroom,
		clock:     time.Now,
	}
}

func (m *MemoryStore) Enqueue(ctx context.Context, item Item) (Item, error) {
	if item.ID == "" || item.UserID == "" || !item.Kind.Valid() {
		return Item{}, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if item.Priority == 0 {
		item.Priority = PriorityFor(item.Kind)
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = m.clock().UTC()
	}
	item.Status = StatusQueued
	item.Sequence = m.nextSeq
	m.nextSeq++
	m.items[item.ID] = item
	return item, nil
}

func (m *MemoryStore) PopNextEligible(ctx context.Context, req PopRequest) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	excluded := map[string]bool{}
	for _, u := range req.ExcludeUsers {
		excluded[u] = true
	}

	eligible := func(it Item, kind Kind) (bool, error) {
		if it.Status != StatusQueued || it.Kind != kind || excluded[it.UserID] {
			return false, nil
		}
		if m.headroom == nil {
			return true, nil
		}
		return m.headroom(ctx, it.UserID)
	}

	// Direct pass: highest priority, then strict FIFO.
	var best *Item
	for _, it := range m.items {
		ok, err := eligible(it, KindDirect)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if best == nil || it.Priority > best.Priority || (it.Priority == best.Priority && it.Sequence < best.Sequence) {
			cp := it
			best = &cp
		}
	}

	// Campaign pass: least-recently-granted user first, then FIFO.
	if best == nil {
		for _, it := range m.items {
			ok, err := eligible(it, KindCampaign)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if best == nil {
				cp := it
				best = &cp
				continue
			}
			wmIt, wmBest := m.watermark[it.UserID], m.watermark[best.UserID]
			if wmIt.Before(wmBest) || (wmIt.Equal(wmBest) && it.Sequence < best.Sequence) {
				cp := it
				best = &cp
			}
		}
	}

	if best == nil {
		return nil, nil
	}
	now := m.clock().UTC()
	best.Status = StatusDispatching
	best.DispatchingAt = &now
	m.items[best.ID] = *best
	cp := *best
	return &cp, nil
}

// MarkGranted moves the user's campaign fairness watermark.
func (m *MemoryStore) MarkGranted(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watermark[userID] = m.clock().UTC()
}

func (m *MemoryStore) Requeue(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok || it.Status != StatusDispatching {
		return ErrNotFound
	}
	it.Status = StatusQueued
	it.DispatchingAt = nil
	m.items[id] = it
	return nil
}

func (m *MemoryStore) RequeueStale(ctx context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, it := range m.items {
		if it.Status == StatusDispatching && it.DispatchingAt != nil && it.DispatchingAt.Before(before) {
			it.Status = StatusQueued
			it.DispatchingAt = nil
			m.items[id] = it
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Remove(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *MemoryStore) CancelQueued(ctx context.Context, id, userID string) (bool, error) {
	if id == "" || userID == "" {
		return false, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok || it.UserID != userID || it.Status != StatusQueued {
		return false, nil
	}
	delete(m.items, id)
	return true, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (Item, error) {
	if id == "" {
		return Item{}, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return it, nil
}

func (m *MemoryStore) FirstQueuedForUser(ctx context.Context, userID string) (*Item, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *Item
	for _, it := range m.items {
		if it.UserID != userID || it.Status != StatusQueued {
			continue
		}
		if best == nil || it.Priority > best.Priority || (it.Priority == best.Priority && it.Sequence < best.Sequence) {
			cp := it
			best = &cp
		}
	}
	return best, nil
}

func (m *MemoryStore) Position(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.items[id]
	if !ok || target.Status != StatusQueued {
		return 0, ErrNotFound
	}
	n := 0
	for _, it := range m.items {
		if it.Status != StatusQueued {
			continue
		}
		if it.Priority > target.Priority || (it.Priority == target.Priority && it.Sequence <= target.Sequence) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CountsForUser(ctx context.Context, userID string) (UserCounts, error) {
	if userID == "" {
		return UserCounts{}, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var c UserCounts
	for _, it := range m.items {
		if it.UserID != userID || it.Status != StatusQueued {
			continue
		}
		if it.Kind == KindDirect {
			c.QueuedDirect++
		} else {
			c.QueuedCampaign++
		}
	}
	return c, nil
}

func (m *MemoryStore) QueuedByUser(ctx context.Context) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := map[string]int{}
	for _, it := range m.items {
		if it.Status == StatusQueued {
			out[it.UserID]++
		}
	}
	return out, nil
}

func (m *MemoryStore) OldestQueuedAt(ctx context.Context) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var oldest *time.Time
	for _, it := range m.items {
		if it.Status != StatusQueued {
			continue
		}
		t := it.EnqueuedAt
		if oldest == nil || t.Before(*oldest) {
			oldest = &t
		}
	}
	return oldest, nil
}
