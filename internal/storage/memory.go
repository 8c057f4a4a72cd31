package storage

import (
	"context"
	"sync"

	"github.com/civicsignal/civicsignal/internal/models"
)

// Memory is an in-memory Store used in tests and in storage-less
// development runs (no postgres.dsn configured). It honors the same
// idempotence contract as the Postgres implementation.
type Memory struct {
	mu     sync.Mutex
	raw    map[string]*models.RawRecord
	events map[string]*models.Event
	leads  map[string]*models.Lead
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		raw:    make(map[string]*models.RawRecord),
		events: make(map[string]*models.Event),
		leads:  make(map[string]*models.Lead),
	}
}

// UpsertRaw implements Store.
func (m *Memory) UpsertRaw(_ context.Context, rec *models.RawRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.raw[rec.ID] = &cp
	return nil
}

// InsertEvent implements Store.
func (m *Memory) InsertEvent(_ context.Context, ev *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.events[ev.EventID]; exists {
		return nil
	}
	cp := *ev
	m.events[ev.EventID] = &cp
	return nil
}

// InsertLead implements Store.
func (m *Memory) InsertLead(_ context.Context, lead *models.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.leads[lead.LeadID]; exists {
		return nil
	}
	cp := *lead
	m.leads[lead.LeadID] = &cp
	return nil
}

// Close implements Store.
func (m *Memory) Close() {}

// Raw returns the stored raw record for id.
func (m *Memory) Raw(id string) (*models.RawRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.raw[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// Event returns the stored event for id.
func (m *Memory) Event(id string) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ev
	return &cp, nil
}

// Lead returns the stored lead for id.
func (m *Memory) Lead(id string) (*models.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.leads[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *lead
	return &cp, nil
}

// RawCount returns the number of stored raw records.
func (m *Memory) RawCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.raw)
}

// EventCount returns the number of stored events.
func (m *Memory) EventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// LeadCount returns the number of stored leads.
func (m *Memory) LeadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.leads)
}
