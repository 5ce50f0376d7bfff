package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vanpelt/livesync/internal/models"
)

// Memory is a process-local Store
type Memory struct {
	mu        sync.RWMutex
	resources map[string]*models.Resource
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{resources: make(map[string]*models.Resource)}
}

func (m *Memory) Get(_ context.Context, id string) (*models.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res, ok := m.resources[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return res.Clone(), nil
}

func (m *Memory) List(_ context.Context) ([]*models.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Resource, 0, len(m.resources))
	for _, res := range m.resources {
		out = append(out, res.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Put(_ context.Context, res *models.Resource) (*models.Resource, error) {
	if res == nil || res.ID == "" {
		return nil, fmt.Errorf("put: resource id is required")
	}

	stored := res.Clone()
	stored.UpdatedAt = time.Now().UTC()

	m.mu.Lock()
	m.resources[stored.ID] = stored
	m.mu.Unlock()

	return stored.Clone(), nil
}

func (m *Memory) Apply(_ context.Context, id string, fields map[string]any, resetSection string) (*models.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.resources[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	applyFields(res, fields, resetSection)
	return res.Clone(), nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.resources[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.resources, id)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
