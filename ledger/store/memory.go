// Package store provides an in-memory ledger.Store and ledger.Directory.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/splitledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	entries map[ledger.EntryID]ledger.Entry
	order   []ledger.EntryID // sorted by RecordedAt
	parties map[ledger.PartyID]ledger.Party
	groups  map[ledger.GroupID]ledger.Group
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[ledger.EntryID]ledger.Entry),
		parties: make(map[ledger.PartyID]ledger.Party),
		groups:  make(map[ledger.GroupID]ledger.Group),
	}
}

// Insert adds an entry. Ids are unique.
func (m *Memory) Insert(_ context.Context, e ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[e.ID]; ok {
		return fmt.Errorf("entry %s already exists", e.ID)
	}
	m.entries[e.ID] = clone(e)

	// Binary search for insertion point, ties keep insertion order
	i := sort.Search(len(m.order), func(i int) bool {
		return m.entries[m.order[i]].RecordedAt.After(e.RecordedAt)
	})
	m.order = append(m.order, "")
	copy(m.order[i+1:], m.order[i:])
	m.order[i] = e.ID
	return nil
}

func (m *Memory) Get(_ context.Context, id ledger.EntryID) (*ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	c := clone(e)
	return &c, nil
}

func (m *Memory) ListByScope(_ context.Context, scope ledger.Scope) ([]ledger.Entry, error) {
	return m.collect(func(e ledger.Entry) bool { return e.Scope == scope }), nil
}

func (m *Memory) ListByParty(_ context.Context, party ledger.PartyID) ([]ledger.Entry, error) {
	return m.collect(func(e ledger.Entry) bool {
		return e.CreatedBy == party || e.Involves(party)
	}), nil
}

func (m *Memory) ListPendingExternal(_ context.Context, cutoff time.Time) ([]ledger.Entry, error) {
	return m.collect(func(e ledger.Entry) bool {
		return e.IsSettlement() && !e.Deleted &&
			e.Method == ledger.MethodExternal &&
			e.Status == ledger.StatusPending &&
			e.RecordedAt.Before(cutoff)
	}), nil
}

func (m *Memory) collect(match func(ledger.Entry) bool) []ledger.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Entry
	for _, id := range m.order {
		if e := m.entries[id]; match(e) {
			result = append(result, clone(e))
		}
	}
	return result
}

func (m *Memory) SetDeleted(_ context.Context, id ledger.EntryID, deleted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return ledger.ErrNotFound
	}
	e.Deleted = deleted
	m.entries[id] = e
	return nil
}

func (m *Memory) UpdateSettlement(_ context.Context, id ledger.EntryID, status ledger.SettlementStatus, transactionRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return ledger.ErrNotFound
	}
	e.Status = status
	e.TransactionRef = transactionRef
	m.entries[id] = e
	return nil
}

// Put stores an entry as-is, bypassing every check. Tests use it to plant
// corrupt rows.
func (m *Memory) Put(e ledger.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.ID]; !ok {
		m.order = append(m.order, e.ID)
	}
	m.entries[e.ID] = clone(e)
}

func clone(e ledger.Entry) ledger.Entry {
	e.Contributions = append([]ledger.Line(nil), e.Contributions...)
	e.Shares = append([]ledger.Line(nil), e.Shares...)
	return e
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (m *Memory) SaveParty(_ context.Context, p ledger.Party) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	m.parties[p.ID] = p
	return nil
}

// SaveGroup stores a group. Every member must already exist.
func (m *Memory) SaveGroup(_ context.Context, g ledger.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range g.Members {
		if _, ok := m.parties[id]; !ok {
			return fmt.Errorf("unknown group member %s", id)
		}
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	g.Members = append([]ledger.PartyID(nil), g.Members...)
	m.groups[g.ID] = g
	return nil
}

func (m *Memory) GroupMembers(_ context.Context, id ledger.GroupID) ([]ledger.PartyID, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, false, nil
	}
	return append([]ledger.PartyID(nil), g.Members...), true, nil
}

func (m *Memory) PartyExists(_ context.Context, id ledger.PartyID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.parties[id]
	return ok, nil
}
