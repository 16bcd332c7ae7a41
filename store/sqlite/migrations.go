package sqlite

import (
	"context"
	"fmt"

	"github.com/xraph/credits"
)

type migration struct {
	name    string
	version string
	up      string
}

// migrations are applied in order, each in its own transaction, and
// recorded in credit_migrations.
var migrations = []migration{
	{
		name:    "create_credit_accounts",
		version: "20240501000001",
		up: `
CREATE TABLE IF NOT EXISTS credit_accounts (
    id            TEXT PRIMARY KEY,
    owner_id      TEXT UNIQUE,
    bank          INTEGER NOT NULL DEFAULT 0,
    balance       INTEGER NOT NULL DEFAULT 0,
    last_grant_at INTEGER,
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL,
    CHECK (bank = 1 OR balance >= 0)
);

CREATE INDEX IF NOT EXISTS idx_credit_accounts_bank ON credit_accounts (bank, id);
`,
	},
	{
		name:    "create_credit_transactions",
		version: "20240501000002",
		up: `
CREATE TABLE IF NOT EXISTS credit_transactions (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    id          TEXT NOT NULL UNIQUE,
    account_id  TEXT NOT NULL REFERENCES credit_accounts (id),
    amount      INTEGER NOT NULL,
    kind        TEXT NOT NULL CHECK (kind IN ('INITIAL_GRANT', 'SESSION_PAYMENT', 'BOUNTY_REWARD', 'PENALTY', 'TAX', 'DONATION', 'SUPPORT_GRANT')),
    description TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_credit_transactions_account ON credit_transactions (account_id, seq);
CREATE INDEX IF NOT EXISTS idx_credit_transactions_kind ON credit_transactions (account_id, kind, seq);

CREATE TRIGGER IF NOT EXISTS credit_transactions_no_update
BEFORE UPDATE ON credit_transactions
BEGIN
    SELECT RAISE(ABORT, 'credit_transactions is append-only');
END;

CREATE TRIGGER IF NOT EXISTS credit_transactions_no_delete
BEFORE DELETE ON credit_transactions
BEGIN
    SELECT RAISE(ABORT, 'credit_transactions is append-only');
END;
`,
	},
}

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS credit_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at INTEGER NOT NULL
)`

// Migrate creates the credit tables, indexes and triggers. Already applied
// migrations are skipped.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("credits/sqlite: create migrations table: %w: %w", credits.ErrMigrationFailed, err)
	}
	for _, m := range migrations {
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("credits/sqlite: migration %s: %w: %w", m.name, credits.ErrMigrationFailed, err)
		}
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var applied int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM credit_migrations WHERE version = ?`, m.version,
	).Scan(&applied); err != nil {
		return err
	}
	if applied > 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx, m.up); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO credit_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
		m.version, m.name, now().UnixNano(),
	); err != nil {
		return err
	}
	return tx.Commit()
}
