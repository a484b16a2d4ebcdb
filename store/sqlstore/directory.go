package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/warp/splitledger/ledger"
)

// =============================================================================
// DIRECTORY (ledger.Directory interface)
// =============================================================================

// SaveParty creates or updates a party.
func (s *Store) SaveParty(ctx context.Context, p ledger.Party) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO parties (id, name, email, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email
	`
	_, err := s.db.ExecContext(ctx, s.rebind(query),
		string(p.ID), p.Name, nullString(p.Email), formatTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save party: %w", err)
	}
	return nil
}

// SaveGroup creates or replaces a group and its member list. Every member
// must already exist.
func (s *Store) SaveGroup(ctx context.Context, g ledger.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range g.Members {
		var n int
		err := tx.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM parties WHERE id = ?`), string(m)).Scan(&n)
		if err != nil {
			return fmt.Errorf("failed to check member: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("unknown group member %s", m)
		}
	}

	query := `
		INSERT INTO ledger_groups (id, name, created_by, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name
	`
	if _, err := tx.ExecContext(ctx, s.rebind(query),
		string(g.ID), g.Name, nullString(string(g.CreatedBy)), formatTime(g.CreatedAt)); err != nil {
		return fmt.Errorf("failed to save group: %w", err)
	}

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM group_members WHERE group_id = ?`), string(g.ID)); err != nil {
		return fmt.Errorf("failed to replace members: %w", err)
	}
	insert := s.rebind(`INSERT INTO group_members (group_id, party_id, position) VALUES (?, ?, ?)`)
	for i, m := range g.Members {
		if _, err := tx.ExecContext(ctx, insert, string(g.ID), string(m), i); err != nil {
			return fmt.Errorf("failed to add member %s: %w", m, err)
		}
	}
	return tx.Commit()
}

func (s *Store) GroupMembers(ctx context.Context, id ledger.GroupID) ([]ledger.PartyID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var name string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT name FROM ledger_groups WHERE id = ?`), string(id)).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load group: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT party_id FROM group_members WHERE group_id = ? ORDER BY position`), string(id))
	if err != nil {
		return nil, false, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []ledger.PartyID
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, false, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, ledger.PartyID(p))
	}
	return members, true, rows.Err()
}

func (s *Store) PartyExists(ctx context.Context, id ledger.PartyID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM parties WHERE id = ?`), string(id)).Scan(&count)
	return count > 0, err
}

// GetParty returns a party, or nil when unknown.
func (s *Store) GetParty(ctx context.Context, id ledger.PartyID) (*ledger.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		p         ledger.Party
		pid       string
		email     sql.NullString
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT id, name, email, created_at FROM parties WHERE id = ?`), string(id)).
		Scan(&pid, &p.Name, &email, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load party: %w", err)
	}
	p.ID = ledger.PartyID(pid)
	p.Email = email.String
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// ListParties returns every party ordered by id.
func (s *Store) ListParties(ctx context.Context) ([]ledger.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, email, created_at FROM parties ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query parties: %w", err)
	}
	defer rows.Close()

	var parties []ledger.Party
	for rows.Next() {
		var (
			p         ledger.Party
			id        string
			email     sql.NullString
			createdAt string
		)
		if err := rows.Scan(&id, &p.Name, &email, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan party: %w", err)
		}
		p.ID = ledger.PartyID(id)
		p.Email = email.String
		p.CreatedAt = parseTime(createdAt)
		parties = append(parties, p)
	}
	return parties, rows.Err()
}
