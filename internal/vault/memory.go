package vault

import (
	"context"
	"sync"
	"time"

	"facturas/internal/model"
)

// Memory is an in-process Vault guarded by a RWMutex. Readers take a
// snapshot under the read lock; the write lock is held only around the
// mutation itself, so a List never observes a half-written record.
type Memory struct {
	mu      sync.RWMutex
	nextID  int64
	byUUID  map[string]int // uuid -> index into records
	records []model.Invoice
}

// NewMemory creates an empty in-memory vault.
func NewMemory() *Memory {
	return &Memory{byUUID: make(map[string]int)}
}

// Insert stores inv unless its UUID is already present.
func (m *Memory) Insert(ctx context.Context, inv *model.Invoice) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byUUID[inv.UUID]; ok {
		return AlreadyExists, nil
	}

	m.nextID++
	stored := *inv
	stored.ID = m.nextID
	stored.CreatedAt = time.Now().UTC()

	m.byUUID[stored.UUID] = len(m.records)
	m.records = append(m.records, stored)

	inv.ID = stored.ID
	inv.CreatedAt = stored.CreatedAt
	return Inserted, nil
}

// List returns one page, most recent insertion first.
func (m *Memory) List(ctx context.Context, page, perPage int) (*Page, error) {
	page, perPage = normalizePaging(page, perPage)

	m.mu.RLock()
	snapshot := m.snapshotLocked()
	m.mu.RUnlock()

	total := len(snapshot)
	start := (page - 1) * perPage
	end := start + perPage
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return &Page{
		Items:       snapshot[start:end],
		Total:       total,
		Pages:       pageCount(total, perPage),
		CurrentPage: page,
	}, nil
}

// Delete removes the record with the given id.
func (m *Memory) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.records {
		if m.records[i].ID == id {
			delete(m.byUUID, m.records[i].UUID)
			m.records = append(m.records[:i], m.records[i+1:]...)
			// Reindex the tail shifted left by the removal.
			for j := i; j < len(m.records); j++ {
				m.byUUID[m.records[j].UUID] = j
			}
			return nil
		}
	}
	return model.ErrInvoiceNotFound
}

// All returns a snapshot of every stored invoice, newest first.
func (m *Memory) All(ctx context.Context) ([]model.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked(), nil
}

// snapshotLocked copies records in reverse insertion order. Caller holds
// at least the read lock.
func (m *Memory) snapshotLocked() []model.Invoice {
	out := make([]model.Invoice, 0, len(m.records))
	for i := len(m.records) - 1; i >= 0; i-- {
		out = append(out, m.records[i])
	}
	return out
}
