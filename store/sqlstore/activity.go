package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/warp/splitledger/activity"
	"github.com/warp/splitledger/ledger"
)

// =============================================================================
// ACTIVITY FEED (activity.Sink and activity.Feed interfaces)
// =============================================================================

func (s *Store) Name() string { return "sql" }

// Save writes an event and indexes it under every party it concerns.
func (s *Store) Save(ctx context.Context, e activity.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO activity (id, type, entry_id, actor, scope_key, amount, description, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, s.rebind(query),
		e.ID.String(),
		string(e.Type),
		string(e.EntryID),
		nullString(string(e.Actor)),
		e.Scope,
		e.Amount.String(),
		nullString(e.Description),
		string(metadataJSON),
		formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}

	insert := s.rebind(`INSERT INTO activity_parties (activity_id, party_id) VALUES (?, ?)`)
	seen := make(map[ledger.PartyID]bool)
	for _, p := range append(append([]ledger.PartyID{}, e.Parties...), e.Actor) {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		if _, err := tx.ExecContext(ctx, insert, e.ID.String(), string(p)); err != nil {
			return fmt.Errorf("failed to index activity: %w", err)
		}
	}
	return tx.Commit()
}

// ListActivity returns the newest events concerning party.
func (s *Store) ListActivity(ctx context.Context, party ledger.PartyID, limit int) ([]activity.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT a.id, a.type, a.entry_id, a.actor, a.scope_key, a.amount, a.description, a.metadata_json, a.created_at
		FROM activity a
		JOIN activity_parties ap ON ap.activity_id = a.id
		WHERE ap.party_id = ?
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), string(party), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	defer rows.Close()

	var events []activity.Event
	var ids []any
	for rows.Next() {
		var (
			e            activity.Event
			id           string
			typ, entryID string
			actor        sql.NullString
			scope        string
			amount       sql.NullString
			description  sql.NullString
			metadataJSON sql.NullString
			createdAt    string
		)
		if err := rows.Scan(&id, &typ, &entryID, &actor, &scope, &amount, &description, &metadataJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		e.ID, _ = uuid.Parse(id)
		e.Type = ledger.ChangeType(typ)
		e.EntryID = ledger.EntryID(entryID)
		e.Actor = ledger.PartyID(actor.String)
		e.Scope = scope
		e.Amount = parseAmount(amount.String)
		e.Description = description.String
		e.CreatedAt = parseTime(createdAt)
		if metadataJSON.String != "" {
			_ = json.Unmarshal([]byte(metadataJSON.String), &e.Metadata)
		}
		events = append(events, e)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	return events, s.attachActivityParties(ctx, events, ids)
}

func (s *Store) attachActivityParties(ctx context.Context, events []activity.Event, ids []any) error {
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id.(string)] = i
	}

	for _, b := range batches(len(ids), maxBatch) {
		if err := s.attachPartyBatch(ctx, events, index, ids[b[0]:b[1]]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) attachPartyBatch(ctx context.Context, events []activity.Event, index map[string]int, ids []any) error {
	query := `SELECT activity_id, party_id FROM activity_parties
		WHERE activity_id IN (` + placeholders(len(ids)) + `)
		ORDER BY activity_id, party_id`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), ids...)
	if err != nil {
		return fmt.Errorf("failed to query activity parties: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, party string
		if err := rows.Scan(&id, &party); err != nil {
			return fmt.Errorf("failed to scan activity party: %w", err)
		}
		if i, ok := index[id]; ok {
			events[i].Parties = append(events[i].Parties, ledger.PartyID(party))
		}
	}
	return rows.Err()
}
