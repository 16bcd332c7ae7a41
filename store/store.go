// Package store defines the persistence contract shared by every credit
// ledger backend.
package store

import (
	"context"
	"slices"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/transaction"
)

// Store is the unified storage interface for accounts and the transaction
// log. Reads may run anywhere; writes only happen through Atomic.
type Store interface {
	// Account reads
	GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error)
	GetAccountByOwner(ctx context.Context, ownerID string) (*account.Account, error)
	ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error)

	// Transaction log reads
	ListTransactions(ctx context.Context, accountID id.AccountID, opts transaction.ListOpts) ([]*transaction.Transaction, error)
	SumTransactions(ctx context.Context, accountID id.AccountID) (int64, error)

	// Atomic runs fn as a single all-or-nothing unit of work. Every account
	// in lock is exclusively held, acquired in LockOrder, before fn runs.
	// Backends return an error wrapping credits.ErrConflict when a lock
	// cannot be acquired promptly so the caller may retry the whole unit.
	// If fn returns an error nothing it wrote is persisted.
	Atomic(ctx context.Context, lock []id.AccountID, fn func(ctx context.Context, tx Tx) error) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the write handle passed to an Atomic callback. It only exposes
// accounts that were locked for the unit of work, plus accounts it creates.
type Tx interface {
	// Account returns the current state of a locked account. It returns an
	// error wrapping credits.ErrAccountNotFound if the account does not exist.
	Account(ctx context.Context, accountID id.AccountID) (*account.Account, error)

	// CreateAccount inserts a new account. It returns credits.ErrAccountExists
	// if the ID or owner is already taken.
	CreateAccount(ctx context.Context, a *account.Account) error

	// UpdateAccount persists balance and LastGrantAt of a locked account.
	UpdateAccount(ctx context.Context, a *account.Account) error

	// Append adds an entry to the transaction log.
	Append(ctx context.Context, t *transaction.Transaction) error
}

// LockOrder returns ids sorted by their string form with duplicates and nil
// IDs removed. Every backend acquires account locks in this order so two
// operations touching overlapping accounts can never deadlock.
func LockOrder(ids []id.AccountID) []id.AccountID {
	out := make([]id.AccountID, 0, len(ids))
	for _, i := range ids {
		if !i.IsNil() {
			out = append(out, i)
		}
	}
	slices.SortFunc(out, id.ID.Compare)
	return slices.Compact(out)
}
