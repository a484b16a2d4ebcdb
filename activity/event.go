/*
Package activity turns committed ledger changes into a feed.

PURPOSE:
  The ledger service announces every committed write as a ledger.Change.
  This package converts those into Events and delivers them asynchronously
  to one or more sinks (log, SQL feed table, Redis) without ever blocking
  the write path.

KEY TYPES:
  Event:  One feed item, with the parties it concerns
  Sink:   Somewhere events are delivered
  Worker: Buffered fan-out, implements ledger.Notifier

DELIVERY:
  Best effort. A full buffer drops the event with a warning; a failing sink
  is logged and does not affect the other sinks.

SEE ALSO:
  - worker.go: The async worker
  - redis.go: Redis list + pub/sub sink
  - store/sqlstore/activity.go: SQL sink and feed queries
*/
package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/splitledger/ledger"
)

type Event struct {
	ID          uuid.UUID         `json:"id"`
	Type        ledger.ChangeType `json:"event_type"`
	EntryID     ledger.EntryID    `json:"entry_id"`
	Actor       ledger.PartyID    `json:"actor,omitempty"`
	Scope       string            `json:"scope"`
	Amount      decimal.Decimal   `json:"amount"`
	Description string            `json:"description,omitempty"`
	Parties     []ledger.PartyID  `json:"parties"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

type EventOption func(*Event)

func WithType(t ledger.ChangeType) EventOption {
	return func(e *Event) {
		e.Type = t
	}
}

func WithActor(p ledger.PartyID) EventOption {
	return func(e *Event) {
		e.Actor = p
	}
}

// WithEntry copies the identifying fields of an entry and lists everyone it
// touches, creator included.
func WithEntry(entry ledger.Entry) EventOption {
	return func(e *Event) {
		e.EntryID = entry.ID
		e.Scope = entry.Scope.Key()
		e.Amount = entry.Amount
		e.Description = entry.Description
		e.Parties = entry.Parties()
		if entry.CreatedBy != "" && !contains(e.Parties, entry.CreatedBy) {
			e.Parties = append(e.Parties, entry.CreatedBy)
		}
		if entry.IsSettlement() {
			e.Metadata["method"] = string(entry.Method)
			e.Metadata["status"] = string(entry.Status)
		}
	}
}

func WithTime(t time.Time) EventOption {
	return func(e *Event) {
		e.CreatedAt = t
	}
}

func NewEvent(opts ...EventOption) Event {
	e := Event{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
		Metadata:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// FromChange builds the feed event for a committed change.
func FromChange(c ledger.Change) Event {
	opts := []EventOption{
		WithType(c.Type),
		WithEntry(c.Entry),
		WithActor(c.Actor),
	}
	if !c.At.IsZero() {
		opts = append(opts, WithTime(c.At))
	}
	return NewEvent(opts...)
}

// Concerns reports whether the event should show up in p's feed.
func (e Event) Concerns(p ledger.PartyID) bool {
	return e.Actor == p || contains(e.Parties, p)
}

func contains(ps []ledger.PartyID, p ledger.PartyID) bool {
	for _, q := range ps {
		if q == p {
			return true
		}
	}
	return false
}

// =============================================================================
// SINKS
// =============================================================================

// Sink receives events from the worker.
type Sink interface {
	Name() string
	Save(ctx context.Context, e Event) error
}

// Feed reads a party's recent events back, newest first.
type Feed interface {
	ListActivity(ctx context.Context, party ledger.PartyID, limit int) ([]Event, error)
}
