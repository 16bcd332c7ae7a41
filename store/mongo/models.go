package mongo

import (
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/transaction"
	"github.com/xraph/credits/types"
)

// ==================== Account models ====================

// accountModel is the credit_accounts document. LockSeq is bumped to take
// the document write lock inside a transaction; TxnSeq numbers the
// account's transactions so history keeps insertion order.
type accountModel struct {
	ID          string     `bson:"_id"`
	OwnerID     string     `bson:"owner_id,omitempty"`
	Bank        bool       `bson:"bank"`
	Balance     int64      `bson:"balance"`
	LastGrantAt *time.Time `bson:"last_grant_at,omitempty"`
	LockSeq     int64      `bson:"lock_seq"`
	TxnSeq      int64      `bson:"txn_seq"`
	CreatedAt   time.Time  `bson:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
	return &accountModel{
		ID:          a.ID.String(),
		OwnerID:     a.OwnerID,
		Bank:        a.Bank,
		Balance:     a.Balance,
		LastGrantAt: a.LastGrantAt,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
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
		OwnerID: m.OwnerID,
		Bank:    m.Bank,
		Balance: m.Balance,
	}
	if m.LastGrantAt != nil {
		t := m.LastGrantAt.UTC()
		a.LastGrantAt = &t
	}
	return a, nil
}

// ==================== Transaction models ====================

type transactionModel struct {
	ID          string    `bson:"_id"`
	AccountID   string    `bson:"account_id"`
	Seq         int64     `bson:"seq"`
	Amount      int64     `bson:"amount"`
	Kind        string    `bson:"kind"`
	Description string    `bson:"description"`
	CreatedAt   time.Time `bson:"created_at"`
}

func toTransactionModel(t *transaction.Transaction, seq int64) *transactionModel {
	return &transactionModel{
		ID:          t.ID.String(),
		AccountID:   t.AccountID.String(),
		Seq:         seq,
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
