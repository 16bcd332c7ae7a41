package credits

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/transaction"
)

// DescInitialGrant describes the bootstrap credit of a new account.
const DescInitialGrant = "Initial grant"

// ProvisionAccount creates the credit account for ownerID and posts the
// initial grant in the same unit of work. It returns ErrAccountExists if
// the owner already has an account.
func (e *Engine) ProvisionAccount(ctx context.Context, ownerID string) (*account.Account, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, ValidationError{Field: "owner_id", Message: "must not be empty"}
	}

	var (
		created *account.Account
		txns    []*transaction.Transaction
	)
	var now time.Time

	err := e.atomic(ctx, nil, func(ctx context.Context, tx store.Tx) error {
		created, txns = nil, nil
		now = e.now()

		a := account.New(ownerID, now)
		if err := tx.CreateAccount(ctx, a); err != nil {
			return err
		}
		if e.initialGrant > 0 {
			t, err := e.post(ctx, tx, a, e.initialGrant, transaction.KindInitialGrant, DescInitialGrant, now)
			if err != nil {
				return err
			}
			txns = append(txns, t)
		}
		created = a
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("provision account for %q: %w", ownerID, err)
	}

	e.logger.Debug("account provisioned",
		"account_id", created.ID.String(),
		"owner_id", ownerID,
		"initial_grant", e.initialGrant,
	)

	e.plugins.EmitAccountProvisioned(ctx, created)
	e.emitPosting(ctx, transaction.OpProvision, txns, now)

	return created, nil
}

// GetAccount retrieves an account by ID.
func (e *Engine) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	return e.store.GetAccount(ctx, accountID)
}

// AccountByOwner retrieves the account belonging to ownerID.
func (e *Engine) AccountByOwner(ctx context.Context, ownerID string) (*account.Account, error) {
	return e.store.GetAccountByOwner(ctx, ownerID)
}

// ListAccounts lists accounts in ID order.
func (e *Engine) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	return e.store.ListAccounts(ctx, opts)
}

// Transactions returns an account's history in chronological order.
func (e *Engine) Transactions(ctx context.Context, accountID id.AccountID, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	if opts.Kind != "" && !opts.Kind.Valid() {
		return nil, ValidationError{Field: "kind", Message: fmt.Sprintf("unknown transaction kind %q", opts.Kind)}
	}
	if _, err := e.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return e.store.ListTransactions(ctx, accountID, opts)
}

// Balance returns the balance of accountID derived from its transactions.
func (e *Engine) Balance(ctx context.Context, accountID id.AccountID) (int64, error) {
	if _, err := e.store.GetAccount(ctx, accountID); err != nil {
		return 0, err
	}
	return e.store.SumTransactions(ctx, accountID)
}

// Reconcile compares the cached balance of accountID with the sum of its
// transactions. It returns an error wrapping ErrBalanceMismatch if they differ.
func (e *Engine) Reconcile(ctx context.Context, accountID id.AccountID) error {
	a, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	sum, err := e.store.SumTransactions(ctx, accountID)
	if err != nil {
		return err
	}
	if a.Balance != sum {
		e.logger.Error("balance mismatch",
			"account_id", accountID.String(),
			"cached", a.Balance,
			"derived", sum,
		)
		return fmt.Errorf("account %s: cached %d, derived %d: %w", accountID, a.Balance, sum, ErrBalanceMismatch)
	}
	return nil
}
