package sqlite

import (
	"database/sql"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/transaction"
	"github.com/xraph/credits/types"
)

// Timestamps are stored as INTEGER unix nanoseconds so they round-trip
// exactly and sort numerically.

// ==================== Account models ====================

var accountColumns = []string{
	"id", "owner_id", "bank", "balance", "last_grant_at", "created_at", "updated_at",
}

type accountModel struct {
	ID          string
	OwnerID     sql.NullString
	Bank        bool
	Balance     int64
	LastGrantAt sql.NullInt64
	CreatedAt   int64
	UpdatedAt   int64
}

func (m *accountModel) dest() []any {
	return []any{&m.ID, &m.OwnerID, &m.Bank, &m.Balance, &m.LastGrantAt, &m.CreatedAt, &m.UpdatedAt}
}

func toAccountModel(a *account.Account) *accountModel {
	m := &accountModel{
		ID:        a.ID.String(),
		OwnerID:   sql.NullString{String: a.OwnerID, Valid: a.OwnerID != ""},
		Bank:      a.Bank,
		Balance:   a.Balance,
		CreatedAt: a.CreatedAt.UnixNano(),
		UpdatedAt: a.UpdatedAt.UnixNano(),
	}
	if a.LastGrantAt != nil {
		m.LastGrantAt = sql.NullInt64{Int64: a.LastGrantAt.UnixNano(), Valid: true}
	}
	return m
}

func fromAccountModel(m *accountModel) (*account.Account, error) {
	accountID, err := id.ParseAccountID(m.ID)
	if err != nil {
		return nil, err
	}

	a := &account.Account{
		Entity: types.Entity{
			CreatedAt: fromNanos(m.CreatedAt),
			UpdatedAt: fromNanos(m.UpdatedAt),
		},
		ID:      accountID,
		OwnerID: m.OwnerID.String,
		Bank:    m.Bank,
		Balance: m.Balance,
	}
	if m.LastGrantAt.Valid {
		t := fromNanos(m.LastGrantAt.Int64)
		a.LastGrantAt = &t
	}
	return a, nil
}

// ==================== Transaction models ====================

var transactionColumns = []string{
	"id", "account_id", "amount", "kind", "description", "created_at",
}

type transactionModel struct {
	ID          string
	AccountID   string
	Amount      int64
	Kind        string
	Description string
	CreatedAt   int64
}

func (m *transactionModel) dest() []any {
	return []any{&m.ID, &m.AccountID, &m.Amount, &m.Kind, &m.Description, &m.CreatedAt}
}

func (m *transactionModel) values() []any {
	return []any{m.ID, m.AccountID, m.Amount, m.Kind, m.Description, m.CreatedAt}
}

func toTransactionModel(t *transaction.Transaction) *transactionModel {
	return &transactionModel{
		ID:          t.ID.String(),
		AccountID:   t.AccountID.String(),
		Amount:      t.Amount,
		Kind:        string(t.Kind),
		Description: t.Description,
		CreatedAt:   t.CreatedAt.UnixNano(),
	}
}

func fromTransactionModel(m *transactionModel) (*transaction.Transaction, error) {
	txnID, err := id.ParseTransactionID(m.ID)
	if err != nil {
		return nil, err
	}
	accountID, err := id.ParseAccountID(m.AccountID)
	if err != nil {
		return nil, err
	}
	return &transaction.Transaction{
		ID:          txnID,
		AccountID:   accountID,
		Amount:      m.Amount,
		Kind:        transaction.Kind(m.Kind),
		Description: m.Description,
		CreatedAt:   fromNanos(m.CreatedAt),
	}, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
