package postgres

import (
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/transaction"
	"github.com/xraph/credits/types"
)

// ==================== Account models ====================

var accountColumns = []string{
	"id", "owner_id", "bank", "balance", "last_grant_at", "created_at", "updated_at",
}

type accountModel struct {
	ID          string
	OwnerID     *string
	Bank        bool
	Balance     int64
	LastGrantAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (m *accountModel) dest() []any {
	return []any{&m.ID, &m.OwnerID, &m.Bank, &m.Balance, &m.LastGrantAt, &m.CreatedAt, &m.UpdatedAt}
}

func (m *accountModel) values() []any {
	return []any{m.ID, m.OwnerID, m.Bank, m.Balance, m.LastGrantAt, m.CreatedAt, m.UpdatedAt}
}

func toAccountModel(a *account.Account) *accountModel {
	m := &accountModel{
		ID:          a.ID.String(),
		Bank:        a.Bank,
		Balance:     a.Balance,
		LastGrantAt: a.LastGrantAt,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
	// NULL owners do not collide under the unique constraint.
	if a.OwnerID != "" {
		owner := a.OwnerID
		m.OwnerID = &owner
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
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:      accountID,
		Bank:    m.Bank,
		Balance: m.Balance,
	}
	if m.OwnerID != nil {
		a.OwnerID = *m.OwnerID
	}
	if m.LastGrantAt != nil {
		t := m.LastGrantAt.UTC()
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
	CreatedAt   time.Time
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
		CreatedAt:   t.CreatedAt,
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
		CreatedAt:   m.CreatedAt.UTC(),
	}, nil
}
