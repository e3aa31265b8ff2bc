package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/idealoop/idealoop/internal/store"
)

// MemoryStore is an in-memory store.Store with injectable failures.
type MemoryStore struct {
	CreateErr error
	UpdateErr error
	ListErr   error

	// BeforeFind, when set, runs at the start of every FindBySummary
	// without the store locked. Tests use it to hold a save midway.
	BeforeFind func()

	mu      sync.Mutex
	next    int
	records map[string]store.Record
	creates int
	updates int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]store.Record)}
}

// Seed inserts rec as-is and returns its id.
func (m *MemoryStore) Seed(rec store.Record) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		m.next++
		rec.ID = fmt.Sprintf("rec-%d", m.next)
	}
	m.records[rec.ID] = rec
	return rec.ID
}

func (m *MemoryStore) Create(ctx context.Context, rec store.Record) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	m.creates++
	m.next++
	rec.ID = fmt.Sprintf("rec-%d", m.next)
	m.records[rec.ID] = rec
	return rec.ID, nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, patch store.Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	rec, ok := m.records[id]
	if !ok {
		return store.ErrNotFound
	}
	m.updates++
	if patch.Summary != nil {
		rec.Summary = *patch.Summary
	}
	if patch.Script != nil {
		rec.Script = *patch.Script
	}
	if patch.FullConversation != nil {
		rec.FullConversation = *patch.FullConversation
	}
	if !patch.LastOpenedAt.IsZero() {
		rec.LastOpenedAt = patch.LastOpenedAt
	}
	m.records[id] = rec
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (store.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) FindBySummary(ctx context.Context, userID, summary string) (store.Record, bool, error) {
	if m.BeforeFind != nil {
		m.BeforeFind()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.UserID == userID && rec.Summary == summary {
			return rec, true, nil
		}
	}
	return store.Record{}, false, nil
}

func (m *MemoryStore) ListByLastOpened(ctx context.Context, userID string) ([]store.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []store.Record
	for _, rec := range m.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastOpenedAt.After(out[j].LastOpenedAt)
	})
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

// All returns every record, in no particular order.
func (m *MemoryStore) All() []store.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	return out
}

// Counts returns the number of successful creates and updates.
func (m *MemoryStore) Counts() (creates, updates int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates, m.updates
}
