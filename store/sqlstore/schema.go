package sqlstore

// schema is portable between SQLite and PostgreSQL. Amounts are decimal
// strings and timestamps fixed-width UTC strings, so both sort and compare
// the same way on either engine.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS parties (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS ledger_groups (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_by TEXT,
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS group_members (
		group_id TEXT NOT NULL REFERENCES ledger_groups(id),
		party_id TEXT NOT NULL REFERENCES parties(id),
		position INTEGER NOT NULL,
		PRIMARY KEY (group_id, party_id)
	)`,

	// Entries are never removed; deleted is the soft-delete flag.
	`CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		scope_key TEXT NOT NULL,
		scope_kind TEXT NOT NULL,
		group_id TEXT,
		party_a TEXT,
		party_b TEXT,
		description TEXT,
		amount TEXT NOT NULL,
		created_by TEXT NOT NULL,
		occurred_at TEXT NOT NULL,
		recorded_at TEXT NOT NULL,
		method TEXT,
		provider TEXT,
		transaction_ref TEXT,
		status TEXT,
		deleted BOOLEAN NOT NULL DEFAULT FALSE
	)`,

	`CREATE INDEX IF NOT EXISTS idx_entries_scope_recorded
		ON entries(scope_key, recorded_at)`,

	`CREATE INDEX IF NOT EXISTS idx_entries_created_by
		ON entries(created_by)`,

	// Hot path for the pending settlement sweeper
	`CREATE INDEX IF NOT EXISTS idx_entries_status
		ON entries(kind, method, status)`,

	// role is 'contribution' or 'share'; position keeps input order.
	`CREATE TABLE IF NOT EXISTS entry_lines (
		entry_id TEXT NOT NULL REFERENCES entries(id),
		role TEXT NOT NULL,
		position INTEGER NOT NULL,
		party_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		PRIMARY KEY (entry_id, role, position)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_entry_lines_party
		ON entry_lines(party_id)`,

	`CREATE TABLE IF NOT EXISTS activity (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		entry_id TEXT NOT NULL,
		actor TEXT,
		scope_key TEXT NOT NULL,
		amount TEXT,
		description TEXT,
		metadata_json TEXT,
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS activity_parties (
		activity_id TEXT NOT NULL REFERENCES activity(id),
		party_id TEXT NOT NULL,
		PRIMARY KEY (activity_id, party_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_activity_parties_party
		ON activity_parties(party_id)`,

	`CREATE INDEX IF NOT EXISTS idx_activity_created
		ON activity(created_at)`,
}

// resetOrder lists tables children first so foreign keys hold while clearing.
var resetOrder = []string{
	"activity_parties",
	"activity",
	"entry_lines",
	"entries",
	"group_members",
	"ledger_groups",
	"parties",
}
