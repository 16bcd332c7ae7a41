package credits

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/store"
)

// BankAccount returns the platform bank account, creating it with a zero
// balance if it does not exist yet.
func (e *Engine) BankAccount(ctx context.Context) (*account.Account, error) {
	a, err := e.store.GetAccount(ctx, e.bankID)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	var bank *account.Account
	err = e.atomic(ctx, []id.AccountID{e.bankID}, func(ctx context.Context, tx store.Tx) error {
		b, err := e.bank(ctx, tx)
		bank = b
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap bank account: %w", err)
	}

	e.logger.Info("bank account ready", "account_id", bank.ID.String())
	return bank, nil
}

// BankBalance returns the bank balance derived from its transactions. This
// is the authoritative read path; the cached balance on the account record
// is a view of the same sum.
func (e *Engine) BankBalance(ctx context.Context) (int64, error) {
	return e.store.SumTransactions(ctx, e.bankID)
}
