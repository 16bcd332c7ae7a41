// Package storetest is a conformance suite every store.Store backend runs
// from its own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/transaction"
)

// Factory returns a fresh, migrated and empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"MigrateIsIdempotent", testMigrateIsIdempotent},
		{"CreateAndGet", testCreateAndGet},
		{"OwnerIsUnique", testOwnerIsUnique},
		{"BankHasNoOwner", testBankHasNoOwner},
		{"RollbackOnError", testRollbackOnError},
		{"UpdatePersistsBalanceAndGrant", testUpdatePersists},
		{"WritesRequireLock", testWritesRequireLock},
		{"RejectsUnknownKind", testRejectsUnknownKind},
		{"TransactionsInOrder", testTransactionsInOrder},
		{"TransactionFilters", testTransactionFilters},
		{"ListAccounts", testListAccounts},
		{"ConcurrentUpdates", testConcurrentUpdates},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

// baseTime is truncated to the millisecond so every backend round-trips it.
var baseTime = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// create provisions an account with the given balance and a matching
// transaction so the log stays consistent.
func create(t *testing.T, s store.Store, owner string, balance int64) *account.Account {
	t.Helper()
	a := account.New(owner, baseTime)
	err := s.Atomic(context.Background(), nil, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateAccount(ctx, a); err != nil {
			return err
		}
		if balance == 0 {
			return nil
		}
		a.Balance = balance
		if err := tx.Append(ctx, transaction.New(a.ID, balance, transaction.KindInitialGrant, "seed", baseTime)); err != nil {
			return err
		}
		return tx.UpdateAccount(ctx, a)
	})
	if err != nil {
		t.Fatalf("create %q: %v", owner, err)
	}
	return a
}

// credit adds amount to accountID in its own unit of work, retrying on
// contention.
func credit(ctx context.Context, s store.Store, accountID id.AccountID, amount int64, at time.Time) error {
	for {
		err := s.Atomic(ctx, []id.AccountID{accountID}, func(ctx context.Context, tx store.Tx) error {
			a, err := tx.Account(ctx, accountID)
			if err != nil {
				return err
			}
			if err := tx.Append(ctx, transaction.New(accountID, amount, transaction.KindBountyReward, "credit", at)); err != nil {
				return err
			}
			a.Balance += amount
			return tx.UpdateAccount(ctx, a)
		})
		if !errors.Is(err, credits.ErrConflict) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func testMigrateIsIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func testCreateAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := create(t, s, "alice", 15)

	got, err := s.GetAccount(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got.ID != a.ID || got.OwnerID != "alice" || got.Balance != 15 || got.Bank {
		t.Errorf("GetAccount = %+v", got)
	}
	if got.LastGrantAt != nil {
		t.Errorf("LastGrantAt = %v, want nil", got.LastGrantAt)
	}

	byOwner, err := s.GetAccountByOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("GetAccountByOwner: %v", err)
	}
	if byOwner.ID != a.ID {
		t.Errorf("GetAccountByOwner ID = %s, want %s", byOwner.ID, a.ID)
	}

	if _, err := s.GetAccount(ctx, id.NewAccountID()); !errors.Is(err, credits.ErrAccountNotFound) {
		t.Errorf("GetAccount(unknown) error = %v, want ErrAccountNotFound", err)
	}
	if _, err := s.GetAccountByOwner(ctx, "nobody"); !errors.Is(err, credits.ErrAccountNotFound) {
		t.Errorf("GetAccountByOwner(unknown) error = %v, want ErrAccountNotFound", err)
	}
}

func testOwnerIsUnique(t *testing.T, s store.Store) {
	ctx := context.Background()
	first := create(t, s, "bob", 0)

	err := s.Atomic(ctx, nil, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateAccount(ctx, account.New("bob", baseTime))
	})
	if !errors.Is(err, credits.ErrAccountExists) {
		t.Fatalf("duplicate owner error = %v, want ErrAccountExists", err)
	}

	err = s.Atomic(ctx, nil, func(ctx context.Context, tx store.Tx) error {
		dup := account.New("carol", baseTime)
		dup.ID = first.ID
		return tx.CreateAccount(ctx, dup)
	})
	if err == nil {
		t.Fatal("duplicate ID accepted")
	}
	if _, err := s.GetAccountByOwner(ctx, "carol"); !errors.Is(err, credits.ErrAccountNotFound) {
		t.Errorf("rejected account is visible: %v", err)
	}
}

func testBankHasNoOwner(t *testing.T, s store.Store) {
	ctx := context.Background()
	err := s.Atomic(ctx, []id.AccountID{id.BankAccountID}, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Account(ctx, id.BankAccountID); !errors.Is(err, credits.ErrAccountNotFound) {
			return fmt.Errorf("bank exists before creation: %w", err)
		}
		return tx.CreateAccount(ctx, account.NewBank(id.BankAccountID, baseTime))
	})
	if err != nil {
		t.Fatalf("create bank: %v", err)
	}
	// A second owner-less account must not collide with the bank.
	other := account.NewBank(id.NewAccountID(), baseTime)
	other.Bank = false
	err = s.Atomic(ctx, nil, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateAccount(ctx, other)
	})
	if err != nil {
		t.Fatalf("second owner-less account: %v", err)
	}

	bank, err := s.GetAccount(ctx, id.BankAccountID)
	if err != nil {
		t.Fatalf("GetAccount(bank): %v", err)
	}
	if !bank.Bank || bank.OwnerID != "" {
		t.Errorf("bank = %+v", bank)
	}
}

func testRollbackOnError(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := create(t, s, "dave", 10)
	boom := errors.New("boom")

	err := s.Atomic(ctx, []id.AccountID{a.ID}, func(ctx context.Context, tx store.Tx) error {
		locked, err := tx.Account(ctx, a.ID)
		if err != nil {
			return err
		}
		if err := tx.Append(ctx, transaction.New(a.ID, -10, transaction.KindPenalty, "undo", baseTime)); err != nil {
			return err
		}
		locked.Balance -= 10
		if err := tx.UpdateAccount(ctx, locked); err != nil {
			return err
		}
		if err := tx.CreateAccount(ctx, account.New("eve", baseTime)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Atomic error = %v, want the callback error", err)
	}

	got, err := s.GetAccount(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Balance != 10 {
		t.Errorf("balance = %d after rollback, want 10", got.Balance)
	}
	sum, err := s.SumTransactions(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sum != 10 {
		t.Errorf("sum = %d after rollback, want 10", sum)
	}
	if _, err := s.GetAccountByOwner(ctx, "eve"); !errors.Is(err, credits.ErrAccountNotFound) {
		t.Errorf("account created in a failed unit is visible: %v", err)
	}
}

func testUpdatePersists(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := create(t, s, "frank", 0)
	grantAt := baseTime.Add(36 * time.Hour)

	err := s.Atomic(ctx, []id.AccountID{a.ID}, func(ctx context.Context, tx store.Tx) error {
		locked, err := tx.Account(ctx, a.ID)
		if err != nil {
			return err
		}
		if err := tx.Append(ctx, transaction.New(a.ID, 6, transaction.KindSupportGrant, "support", grantAt)); err != nil {
			return err
		}
		locked.Balance += 6
		locked.LastGrantAt = &grantAt
		locked.Touch(grantAt)
		return tx.UpdateAccount(ctx, locked)
	})
	if err != nil {
		t.Fatalf("Atomic: %v", err)
	}

	got, err := s.GetAccount(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Balance != 6 {
		t.Errorf("balance = %d, want 6", got.Balance)
	}
	if got.LastGrantAt == nil || !got.LastGrantAt.Equal(grantAt) {
		t.Errorf("LastGrantAt = %v, want %v", got.LastGrantAt, grantAt)
	}
}

func testWritesRequireLock(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := create(t, s, "grace", 5)
	b := create(t, s, "heidi", 5)

	err := s.Atomic(ctx, []id.AccountID{a.ID}, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Account(ctx, b.ID)
		return err
	})
	if !errors.Is(err, credits.ErrInvalidInput) {
		t.Errorf("reading an unlocked account: error = %v, want ErrInvalidInput", err)
	}

	err = s.Atomic(ctx, []id.AccountID{a.ID}, func(ctx context.Context, tx store.Tx) error {
		return tx.Append(ctx, transaction.New(b.ID, 1, transaction.KindBountyReward, "sneaky", baseTime))
	})
	if !errors.Is(err, credits.ErrInvalidInput) {
		t.Errorf("appending to an unlocked account: error = %v, want ErrInvalidInput", err)
	}

	err = s.Atomic(ctx, []id.AccountID{a.ID}, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Account(ctx, id.NewAccountID())
		return err
	})
	if err == nil {
		t.Error("reading a missing account succeeded")
	}
}

func testRejectsUnknownKind(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := create(t, s, "ivan", 0)

	err := s.Atomic(ctx, []id.AccountID{a.ID}, func(ctx context.Context, tx store.Tx) error {
		return tx.Append(ctx, transaction.New(a.ID, 1, transaction.Kind("GIFT"), "gift", baseTime))
	})
	if !errors.Is(err, credits.ErrInvalidInput) {
		t.Errorf("unknown kind error = %v, want ErrInvalidInput", err)
	}
}

func testTransactionsInOrder(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := create(t, s, "judy", 0)

	// Entries posted in the same instant must keep insertion order.
	for i := int64(1); i <= 5; i++ {
		if err := credit(ctx, s, a.ID, i, baseTime); err != nil {
			t.Fatalf("credit %d: %v", i, err)
		}
	}

	txns, err := s.ListTransactions(ctx, a.ID, transaction.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 5 {
		t.Fatalf("got %d transactions, want 5", len(txns))
	}
	for i, txn := range txns {
		if txn.Amount != int64(i+1) {
			t.Errorf("txns[%d].Amount = %d, want %d", i, txn.Amount, i+1)
		}
		if txn.AccountID != a.ID || txn.Kind != transaction.KindBountyReward || txn.Description != "credit" {
			t.Errorf("txns[%d] = %+v", i, txn)
		}
		if !txn.CreatedAt.Equal(baseTime) {
			t.Errorf("txns[%d].CreatedAt = %v", i, txn.CreatedAt)
		}
	}

	sum, err := s.SumTransactions(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sum != 15 {
		t.Errorf("sum = %d, want 15", sum)
	}
	if sum, _ := s.SumTransactions(ctx, id.NewAccountID()); sum != 0 {
		t.Errorf("sum of unknown account = %d, want 0", sum)
	}
}

func testTransactionFilters(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := create(t, s, "ken", 15)
	for i := range 4 {
		if err := credit(ctx, s, a.ID, 1, baseTime.Add(time.Duration(i+1)*time.Minute)); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name string
		opts transaction.ListOpts
		want int
	}{
		{"all", transaction.ListOpts{}, 5},
		{"by kind", transaction.ListOpts{Kind: transaction.KindInitialGrant}, 1},
		{"absent kind", transaction.ListOpts{Kind: transaction.KindTax}, 0},
		{"limit", transaction.ListOpts{Limit: 2}, 2},
		{"offset", transaction.ListOpts{Offset: 3}, 2},
		{"offset past end", transaction.ListOpts{Offset: 10}, 0},
		{"limit and offset", transaction.ListOpts{Limit: 2, Offset: 4}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txns, err := s.ListTransactions(ctx, a.ID, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if len(txns) != tt.want {
				t.Errorf("got %d transactions, want %d", len(txns), tt.want)
			}
		})
	}

	first, err := s.ListTransactions(ctx, a.ID, transaction.ListOpts{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 || first[0].Kind != transaction.KindInitialGrant {
		t.Errorf("first transaction = %+v, want the initial grant", first)
	}
}

func testListAccounts(t *testing.T, s store.Store) {
	ctx := context.Background()
	err := s.Atomic(ctx, []id.AccountID{id.BankAccountID}, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateAccount(ctx, account.NewBank(id.BankAccountID, baseTime))
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, owner := range []string{"u1", "u2", "u3"} {
		create(t, s, owner, 0)
	}

	users, err := s.ListAccounts(ctx, account.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 3 {
		t.Fatalf("got %d accounts, want 3", len(users))
	}
	for i := 1; i < len(users); i++ {
		if users[i-1].ID.String() >= users[i].ID.String() {
			t.Errorf("accounts not in ID order: %s before %s", users[i-1].ID, users[i].ID)
		}
	}

	all, err := s.ListAccounts(ctx, account.ListOpts{IncludeBank: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 || all[0].ID != id.BankAccountID {
		t.Errorf("IncludeBank listing = %d accounts, first %v", len(all), all[0].ID)
	}

	page, err := s.ListAccounts(ctx, account.ListOpts{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].ID != users[1].ID {
		t.Errorf("page = %d accounts", len(page))
	}
}

func testConcurrentUpdates(t *testing.T, s store.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := create(t, s, "mallory", 0)
	b := create(t, s, "oscar", 0)

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Alternate the lock list order to provoke deadlocks if a
			// backend ignored LockOrder.
			lock := []id.AccountID{a.ID, b.ID}
			if i%2 == 1 {
				lock = []id.AccountID{b.ID, a.ID}
			}
			for {
				err := s.Atomic(ctx, lock, func(ctx context.Context, tx store.Tx) error {
					for _, accountID := range lock {
						acct, err := tx.Account(ctx, accountID)
						if err != nil {
							return err
						}
						if err := tx.Append(ctx, transaction.New(accountID, 1, transaction.KindBountyReward, "tick", baseTime)); err != nil {
							return err
						}
						acct.Balance++
						if err := tx.UpdateAccount(ctx, acct); err != nil {
							return err
						}
					}
					return nil
				})
				if errors.Is(err, credits.ErrConflict) {
					time.Sleep(time.Millisecond)
					continue
				}
				errs <- err
				return
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("worker: %v", err)
		}
	}

	for _, accountID := range []id.AccountID{a.ID, b.ID} {
		got, err := s.GetAccount(ctx, accountID)
		if err != nil {
			t.Fatal(err)
		}
		sum, err := s.SumTransactions(ctx, accountID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Balance != workers || sum != workers {
			t.Errorf("account %s: balance %d, sum %d, want %d", accountID, got.Balance, sum, workers)
		}
	}
}
