/*
Package sqlstore implements ledger.Store and ledger.Directory on database/sql.

PURPOSE:
  One implementation of the persistence interfaces shared by the SQLite and
  PostgreSQL backends. The two differ only in driver and placeholder style;
  queries are written with '?' and rebound for PostgreSQL.

SOFT DELETE ENFORCEMENT:
  - No DELETE statements on entries or entry_lines
  - Financial columns are written once, by Insert
  - Only deleted, status and transaction_ref are ever updated

KEY TABLES:
  entries:        One row per expense or settlement
  entry_lines:    Contributions and shares, role + position
  parties:        Directory of people
  ledger_groups:  Groups, with members in group_members
  activity:       Feed events written by the activity worker

CONCURRENCY:
  Uses sync.RWMutex around multi-statement reads and writes. Per-entry
  mutation ordering is the service's job.

USAGE:
  db, _ := sql.Open("sqlite3", "ledger.db")
  st := sqlstore.New(db, sqlstore.SQLite)
  if err := st.Migrate(ctx); err != nil { ... }
  svc := ledger.NewService(st, st)

SEE ALSO:
  - store/sqlite: Opens SQLite with the right pragmas
  - store/postgres: Opens PostgreSQL via lib/pq or pgx
  - ledger/store: In-memory implementation for tests
*/
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/splitledger/ledger"
)

// Dialect selects placeholder style.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// timeLayout is fixed width so string order equals time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const (
	roleContribution = "contribution"
	roleShare        = "share"
)

// Store implements ledger.Store, ledger.Directory and the activity feed.
type Store struct {
	db      *sql.DB
	dialect Dialect
	mu      sync.RWMutex
}

func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

func (s *Store) Dialect() Dialect { return s.dialect }

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection, for health endpoints.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the schema. Safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	return nil
}

// Reset clears every table. Used by the demo scenario loader.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range resetOrder {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// rebind rewrites '?' placeholders to '$n' for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// =============================================================================
// ENTRY STORE (ledger.Store interface)
// =============================================================================

// Insert writes the entry and its lines in one transaction.
func (s *Store) Insert(ctx context.Context, e ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.insertEntry(ctx, tx, e); err != nil {
		return err
	}
	if err := s.insertLines(ctx, tx, e.ID, roleContribution, e.Contributions); err != nil {
		return err
	}
	if err := s.insertLines(ctx, tx, e.ID, roleShare, e.Shares); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) insertEntry(ctx context.Context, db execer, e ledger.Entry) error {
	query := `
		INSERT INTO entries
		(id, kind, scope_key, scope_kind, group_id, party_a, party_b, description, amount,
		 created_by, occurred_at, recorded_at, method, provider, transaction_ref, status, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, s.rebind(query),
		string(e.ID),
		string(e.Kind),
		e.Scope.Key(),
		string(e.Scope.Kind),
		nullString(string(e.Scope.GroupID)),
		nullString(string(e.Scope.Pair[0])),
		nullString(string(e.Scope.Pair[1])),
		e.Description,
		e.Amount.String(),
		string(e.CreatedBy),
		formatTime(e.OccurredAt),
		formatTime(e.RecordedAt),
		nullString(string(e.Method)),
		nullString(e.Provider),
		nullString(e.TransactionRef),
		nullString(string(e.Status)),
		e.Deleted,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("entry %s already exists: %w", e.ID, err)
		}
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

func (s *Store) insertLines(ctx context.Context, db execer, id ledger.EntryID, role string, lines []ledger.Line) error {
	query := s.rebind(`INSERT INTO entry_lines (entry_id, role, position, party_id, amount) VALUES (?, ?, ?, ?, ?)`)
	for i, l := range lines {
		if _, err := db.ExecContext(ctx, query, string(id), role, i, string(l.Party), l.Amount.String()); err != nil {
			return fmt.Errorf("failed to insert %s line: %w", role, err)
		}
	}
	return nil
}

const entryColumns = `id, kind, scope_kind, group_id, party_a, party_b, description, amount,
	created_by, occurred_at, recorded_at, method, provider, transaction_ref, status, deleted`

func (s *Store) Get(ctx context.Context, id ledger.EntryID) (*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.queryEntries(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

func (s *Store) ListByScope(ctx context.Context, scope ledger.Scope) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + entryColumns + ` FROM entries
		WHERE scope_key = ?
		ORDER BY recorded_at ASC, id ASC`
	return s.queryEntries(ctx, query, scope.Key())
}

func (s *Store) ListByParty(ctx context.Context, party ledger.PartyID) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + entryColumns + ` FROM entries
		WHERE created_by = ?
		   OR id IN (SELECT entry_id FROM entry_lines WHERE party_id = ?)
		ORDER BY recorded_at ASC, id ASC`
	return s.queryEntries(ctx, query, string(party), string(party))
}

func (s *Store) ListPendingExternal(ctx context.Context, cutoff time.Time) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + entryColumns + ` FROM entries
		WHERE kind = ? AND method = ? AND status = ? AND deleted = ? AND recorded_at < ?
		ORDER BY recorded_at ASC, id ASC`
	return s.queryEntries(ctx, query,
		string(ledger.KindSettlement),
		string(ledger.MethodExternal),
		string(ledger.StatusPending),
		false,
		formatTime(cutoff),
	)
}

func (s *Store) SetDeleted(ctx context.Context, id ledger.EntryID, deleted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE entries SET deleted = ? WHERE id = ?`), deleted, string(id))
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}
	return requireRow(res, id)
}

func (s *Store) UpdateSettlement(ctx context.Context, id ledger.EntryID, status ledger.SettlementStatus, transactionRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE entries SET status = ?, transaction_ref = ? WHERE id = ? AND kind = ?`),
		string(status), nullString(transactionRef), string(id), string(ledger.KindSettlement))
	if err != nil {
		return fmt.Errorf("failed to update settlement: %w", err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id ledger.EntryID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
	}
	return nil
}

// queryEntries runs an entry query and attaches the lines of every row.
func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	if err := s.attachLines(ctx, s.db, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (ledger.Entry, error) {
	var (
		e           ledger.Entry
		id, kind    string
		scopeKind   string
		groupID     sql.NullString
		partyA      sql.NullString
		partyB      sql.NullString
		description sql.NullString
		amount      string
		createdBy   string
		occurredAt  string
		recordedAt  string
		method      sql.NullString
		provider    sql.NullString
		txRef       sql.NullString
		status      sql.NullString
	)

	err := rows.Scan(
		&id, &kind, &scopeKind, &groupID, &partyA, &partyB, &description, &amount,
		&createdBy, &occurredAt, &recordedAt, &method, &provider, &txRef, &status, &e.Deleted,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}

	e.ID = ledger.EntryID(id)
	e.Kind = ledger.Kind(kind)
	e.Scope = ledger.Scope{
		Kind:    ledger.ScopeKind(scopeKind),
		GroupID: ledger.GroupID(groupID.String),
		Pair:    [2]ledger.PartyID{ledger.PartyID(partyA.String), ledger.PartyID(partyB.String)},
	}
	e.Description = description.String
	e.Amount = parseAmount(amount)
	e.CreatedBy = ledger.PartyID(createdBy)
	e.OccurredAt = parseTime(occurredAt)
	e.RecordedAt = parseTime(recordedAt)
	e.Method = ledger.Method(method.String)
	e.Provider = provider.String
	e.TransactionRef = txRef.String
	e.Status = ledger.SettlementStatus(status.String)
	return e, nil
}

// attachLines loads contributions and shares for entries, one query per
// batch of maxBatch ids.
func (s *Store) attachLines(ctx context.Context, db querier, entries []ledger.Entry) error {
	index := make(map[ledger.EntryID]int, len(entries))
	args := make([]any, len(entries))
	for i, e := range entries {
		index[e.ID] = i
		args[i] = string(e.ID)
	}

	for _, b := range batches(len(args), maxBatch) {
		if err := s.attachLineBatch(ctx, db, entries, index, args[b[0]:b[1]]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) attachLineBatch(ctx context.Context, db querier, entries []ledger.Entry, index map[ledger.EntryID]int, ids []any) error {
	query := `SELECT entry_id, role, party_id, amount FROM entry_lines
		WHERE entry_id IN (` + placeholders(len(ids)) + `)
		ORDER BY entry_id, role, position`

	rows, err := db.QueryContext(ctx, s.rebind(query), ids...)
	if err != nil {
		return fmt.Errorf("failed to query entry lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entryID, role, party, amount string
		if err := rows.Scan(&entryID, &role, &party, &amount); err != nil {
			return fmt.Errorf("failed to scan entry line: %w", err)
		}
		i, ok := index[ledger.EntryID(entryID)]
		if !ok {
			continue
		}
		l := ledger.Line{Party: ledger.PartyID(party), Amount: parseAmount(amount)}
		switch role {
		case roleContribution:
			entries[i].Contributions = append(entries[i].Contributions, l)
		case roleShare:
			entries[i].Shares = append(entries[i].Shares, l)
		}
	}
	return rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

// maxBatch bounds the ids bound into one IN list. Postgres accepts at most
// 65535 parameters per statement and older SQLite builds 999.
var maxBatch = 500

// batches splits [0, n) into half-open ranges of at most size.
func batches(n, size int) [][2]int {
	var out [][2]int
	for lo := 0; lo < n; lo += size {
		out = append(out, [2]int{lo, min(lo+size, n)})
	}
	return out
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}

// parseAmount maps a malformed value to -1 so the fold reports the entry as
// corrupt instead of counting it as zero.
func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NewFromInt(-1)
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key")
}
