package mocks

import (
	"context"
	"sync"

	"github.com/V4T54L/agenda-ingest/internal/domain"
)

// MockEventRepository is an in-memory domain.EventRepository with insert-or-ignore semantics.
type MockEventRepository struct {
	mu          sync.Mutex
	Stored      map[string]*domain.Event
	UpsertCalls int
	ExistingErr error
	UpsertErr   error
	SchemaErr   error
}

func NewMockEventRepository(existing ...string) *MockEventRepository {
	m := &MockEventRepository{Stored: make(map[string]*domain.Event)}
	for _, uid := range existing {
		m.Stored[uid] = &domain.Event{UID: uid}
	}
	return m
}

func (m *MockEventRepository) ExistingUIDs(ctx context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ExistingErr != nil {
		return nil, m.ExistingErr
	}
	out := make(map[string]struct{}, len(m.Stored))
	for uid := range m.Stored {
		out[uid] = struct{}{}
	}
	return out, nil
}

func (m *MockEventRepository) Upsert(ctx context.Context, events []*domain.Event) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCalls++
	if m.UpsertErr != nil {
		return 0, m.UpsertErr
	}
	if m.Stored == nil {
		m.Stored = make(map[string]*domain.Event)
	}
	inserted := 0
	for _, e := range events {
		if _, ok := m.Stored[e.UID]; ok {
			continue
		}
		m.Stored[e.UID] = e
		inserted++
	}
	return inserted, nil
}

func (m *MockEventRepository) EnsureSchema(ctx context.Context) error {
	return m.SchemaErr
}

// Count returns the number of stored events.
func (m *MockEventRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Stored)
}

// MockGeocoder returns scripted outcomes per address query and records every call.
type MockGeocoder struct {
	mu       sync.Mutex
	Outcomes map[string][]domain.GeocodeOutcome // consumed in order; last one repeats
	Default  domain.GeocodeOutcome
	Calls    []string
}

func (m *MockGeocoder) Geocode(ctx context.Context, addr domain.Address) domain.GeocodeOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := addr.Query()
	m.Calls = append(m.Calls, q)
	scripted := m.Outcomes[q]
	if len(scripted) == 0 {
		return m.Default
	}
	out := scripted[0]
	if len(scripted) > 1 {
		m.Outcomes[q] = scripted[1:]
	}
	return out
}

// CallCount returns how many provider calls were made.
func (m *MockGeocoder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockSpoolRepository keeps spooled batches in memory.
type MockSpoolRepository struct {
	mu       sync.Mutex
	Batches  [][]*domain.Event
	WriteErr error
}

func (m *MockSpoolRepository) Write(ctx context.Context, events []*domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Batches = append(m.Batches, events)
	return nil
}

func (m *MockSpoolRepository) Replay(ctx context.Context, handler func(events []*domain.Event) error) error {
	m.mu.Lock()
	batches := m.Batches
	m.mu.Unlock()
	for _, b := range batches {
		if err := handler(b); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockSpoolRepository) Truncate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Batches = nil
	return nil
}
