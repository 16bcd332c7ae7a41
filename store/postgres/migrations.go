package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/credits"
)

// migrationLockKey serializes concurrent Migrate calls across processes.
const migrationLockKey int64 = 0x63726564697473 // "credits"

type migration struct {
	name    string
	version string
	up      string
}

var migrations = []migration{
	{
		name:    "create_credit_accounts",
		version: "20240501000001",
		up: `
CREATE TABLE IF NOT EXISTS credit_accounts (
    id            TEXT PRIMARY KEY,
    owner_id      TEXT,
    bank          BOOLEAN NOT NULL DEFAULT FALSE,
    balance       BIGINT NOT NULL DEFAULT 0,
    last_grant_at TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT credit_accounts_owner_id_key UNIQUE (owner_id),
    CONSTRAINT credit_accounts_balance_check CHECK (bank OR balance >= 0)
);

CREATE INDEX IF NOT EXISTS idx_credit_accounts_bank ON credit_accounts (bank, id);
`,
	},
	{
		name:    "create_credit_transactions",
		version: "20240501000002",
		up: `
CREATE TABLE IF NOT EXISTS credit_transactions (
    seq         BIGSERIAL PRIMARY KEY,
    id          TEXT NOT NULL UNIQUE,
    account_id  TEXT NOT NULL REFERENCES credit_accounts (id),
    amount      BIGINT NOT NULL,
    kind        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT credit_transactions_kind_check CHECK (kind IN (
        'INITIAL_GRANT', 'SESSION_PAYMENT', 'BOUNTY_REWARD', 'PENALTY',
        'TAX', 'DONATION', 'SUPPORT_GRANT'
    ))
);

CREATE INDEX IF NOT EXISTS idx_credit_transactions_account ON credit_transactions (account_id, seq);
CREATE INDEX IF NOT EXISTS idx_credit_transactions_kind ON credit_transactions (account_id, kind, seq);

CREATE OR REPLACE FUNCTION credit_transactions_append_only() RETURNS trigger AS $$
BEGIN
    RAISE EXCEPTION 'credit_transactions is append-only';
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS credit_transactions_append_only ON credit_transactions;
CREATE TRIGGER credit_transactions_append_only
    BEFORE UPDATE OR DELETE ON credit_transactions
    FOR EACH ROW EXECUTE FUNCTION credit_transactions_append_only();
`,
	},
}

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS credit_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Migrate creates the credit tables, indexes and the append-only trigger.
// Already applied migrations are skipped.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("credits/postgres: create migrations table: %w: %w", credits.ErrMigrationFailed, err)
	}
	for _, m := range migrations {
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("credits/postgres: migration %s: %w: %w", m.name, credits.ErrMigrationFailed, err)
		}
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m migration) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey); err != nil {
			return err
		}

		var applied bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM credit_migrations WHERE version = $1)`, m.version,
		).Scan(&applied); err != nil {
			return err
		}
		if applied {
			return nil
		}

		if _, err := tx.Exec(ctx, m.up); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO credit_migrations (version, name) VALUES ($1, $2)`,
			m.version, m.name,
		)
		return err
	})
}
