package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/transaction"
)

// unit is the store.Tx handed to Atomic callbacks.
type unit struct {
	tx       pgx.Tx
	sb       sq.StatementBuilderType
	writable map[string]bool
}

func newUnit(tx pgx.Tx, sb sq.StatementBuilderType, locked []id.AccountID) *unit {
	u := &unit{
		tx:       tx,
		sb:       sb,
		writable: make(map[string]bool, len(locked)),
	}
	for _, accountID := range locked {
		u.writable[accountID.String()] = true
	}
	return u
}

func (u *unit) check(accountID id.AccountID) error {
	if !u.writable[accountID.String()] {
		return fmt.Errorf("credits/postgres: account %s is not locked by this unit: %w", accountID, credits.ErrInvalidInput)
	}
	return nil
}

func (u *unit) Account(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	if err := u.check(accountID); err != nil {
		return nil, err
	}
	return getAccount(ctx, u.tx, u.sb, "id", accountID.String())
}

func (u *unit) CreateAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	query, args, err := u.sb.Insert("credit_accounts").
		Columns(accountColumns...).
		Values(m.values()...).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := u.tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("credits/postgres: create account %s: %w", a.ID, classifyInsert(err))
	}
	u.writable[m.ID] = true
	return nil
}

func (u *unit) UpdateAccount(ctx context.Context, a *account.Account) error {
	if err := u.check(a.ID); err != nil {
		return err
	}
	m := toAccountModel(a)
	query, args, err := u.sb.Update("credit_accounts").
		Set("balance", m.Balance).
		Set("last_grant_at", m.LastGrantAt).
		Set("updated_at", m.UpdatedAt).
		Where(sq.Eq{"id": m.ID}).
		ToSql()
	if err != nil {
		return err
	}

	tag, err := u.tx.Exec(ctx, query, args...)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("credits/postgres: account %s: %w", a.ID, credits.ErrAccountNotFound)
	}
	return nil
}

func (u *unit) Append(ctx context.Context, t *transaction.Transaction) error {
	if !t.Kind.Valid() {
		return fmt.Errorf("credits/postgres: transaction kind %q: %w", t.Kind, credits.ErrInvalidInput)
	}
	if err := u.check(t.AccountID); err != nil {
		return err
	}
	m := toTransactionModel(t)
	query, args, err := u.sb.Insert("credit_transactions").
		Columns(transactionColumns...).
		Values(m.values()...).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := u.tx.Exec(ctx, query, args...); err != nil {
		return classify(err)
	}
	return nil
}
