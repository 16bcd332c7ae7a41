package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/postgres"
	"github.com/xraph/credits/store/storetest"
)

// openStore returns a migrated store in a throwaway schema. Tests are
// skipped unless CREDITS_TEST_POSTGRES_DSN points at a database.
func openStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv("CREDITS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CREDITS_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	schema := fmt.Sprintf("credits_test_%d", time.Now().UnixNano())
	admin, err := pgx.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := admin.Exec(ctx, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		_ = admin.Close(context.Background())
	})

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatal(err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}

	s := postgres.New(pool, postgres.WithLockTimeout(2*time.Second))
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return openStore(t)
	})
}

func TestTransactionsAreAppendOnly(t *testing.T) {
	s := openStore(t)
	defer s.Close()
	ctx := context.Background()

	_, err := s.Pool().Exec(ctx, `INSERT INTO credit_accounts (id, bank, balance) VALUES ($1, TRUE, 0)`, id.BankAccountID.String())
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.Pool().Exec(ctx,
		`INSERT INTO credit_transactions (id, account_id, amount, kind) VALUES ($1, $2, 5, 'TAX')`,
		id.NewTransactionID().String(), id.BankAccountID.String(),
	)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Pool().Exec(ctx, `UPDATE credit_transactions SET amount = 500`); err == nil {
		t.Error("UPDATE on credit_transactions succeeded")
	}
	if _, err := s.Pool().Exec(ctx, `DELETE FROM credit_transactions`); err == nil {
		t.Error("DELETE on credit_transactions succeeded")
	}

	sum, err := s.SumTransactions(ctx, id.BankAccountID)
	if err != nil {
		t.Fatal(err)
	}
	if sum != 5 {
		t.Errorf("sum = %d, want 5", sum)
	}
}
