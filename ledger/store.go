/*
store.go - Persistence interfaces consumed by the service

PURPOSE:
  Defines the boundary between the ledger service and the database, plus
  the membership lookups the service needs from its collaborators.

KEY INTERFACES:
  Store:     Entry persistence (insert, load, soft-delete flag, status)
  Directory: Party and group membership lookups

SOFT DELETE CONTRACT:
  Entries are never removed. SetDeleted flips a flag; UpdateSettlement
  touches only status and transaction reference. Financial fields are
  written once, by Insert.

ATOMICITY:
  Insert writes an entry together with all its lines. Readers see either
  the whole entry or none of it.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory, for tests and demos
  - store/sqlite: SQLite (default)
  - store/postgres: PostgreSQL via lib/pq or pgx

SEE ALSO:
  - service.go: Uses Store and Directory
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Entry persistence (soft delete only)
// =============================================================================

// Store persists ledger entries. Implementations return ErrNotFound from
// methods addressing a missing id, and (nil, nil) from Get.
type Store interface {
	// Insert persists a fully validated entry with its lines, atomically.
	Insert(ctx context.Context, e Entry) error

	// Get returns the entry, or nil when the id is unknown.
	Get(ctx context.Context, id EntryID) (*Entry, error)

	// ListByScope returns every entry of a scope, deleted ones included,
	// ordered by RecordedAt.
	ListByScope(ctx context.Context, scope Scope) ([]Entry, error)

	// ListByParty returns every entry where party is a payer, a sharer or the
	// creator, deleted ones included, ordered by RecordedAt.
	ListByParty(ctx context.Context, party PartyID) ([]Entry, error)

	// SetDeleted flips the soft-delete flag. Nothing else changes.
	SetDeleted(ctx context.Context, id EntryID, deleted bool) error

	// UpdateSettlement sets status and transaction reference of a settlement.
	UpdateSettlement(ctx context.Context, id EntryID, status SettlementStatus, transactionRef string) error

	// ListPendingExternal returns active external settlements still pending
	// that were recorded before cutoff.
	ListPendingExternal(ctx context.Context, cutoff time.Time) ([]Entry, error)
}

// =============================================================================
// DIRECTORY - Membership lookups (collaborator)
// =============================================================================

// Directory answers the only questions the core asks about people.
type Directory interface {
	// GroupMembers returns the members of a group; (nil, false, nil) when the
	// group does not exist.
	GroupMembers(ctx context.Context, id GroupID) ([]PartyID, bool, error)

	// PartyExists reports whether a party is known.
	PartyExists(ctx context.Context, id PartyID) (bool, error)
}

// Party and Group are the directory records kept by the bundled stores.
type Party struct {
	ID        PartyID
	Name      string
	Email     string
	CreatedAt time.Time
}

type Group struct {
	ID        GroupID
	Name      string
	CreatedBy PartyID
	Members   []PartyID
	CreatedAt time.Time
}
