package downtime

import (
	"context"
	"sync"

	"github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"
)

// MemoryRepository is a StopRepository kept in process memory. Stops are returned in insertion order.
type MemoryRepository struct {
	stops map[string]datamodel.StopEvent
	order []string
	mu    sync.RWMutex
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{stops: make(map[string]datamodel.StopEvent)}
}

func (m *MemoryRepository) InsertStop(_ context.Context, stop datamodel.StopEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.stops[stop.ID]; exists {
		return datamodel.NewConflictError("stop %s already exists", stop.ID)
	}
	m.stops[stop.ID] = stop
	m.order = append(m.order, stop.ID)
	return nil
}

func (m *MemoryRepository) GetStop(_ context.Context, id string) (datamodel.StopEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stop, ok := m.stops[id]
	if !ok {
		return datamodel.StopEvent{}, datamodel.NewNotFoundError("stop", id)
	}
	return stop, nil
}

func (m *MemoryRepository) UpdateStop(_ context.Context, stop datamodel.StopEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stops[stop.ID]; !ok {
		return datamodel.NewNotFoundError("stop", stop.ID)
	}
	m.stops[stop.ID] = stop
	return nil
}

func (m *MemoryRepository) DeleteStop(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stops[id]; !ok {
		return datamodel.NewNotFoundError("stop", id)
	}
	delete(m.stops, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryRepository) FindStops(_ context.Context, filter datamodel.StopFilter) ([]datamodel.StopEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	found := make([]datamodel.StopEvent, 0)
	for _, id := range m.order {
		if stop := m.stops[id]; filter.Matches(stop) {
			found = append(found, stop)
		}
	}
	return found, nil
}
