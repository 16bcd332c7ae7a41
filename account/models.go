// Package account defines the credit account model.
package account

import (
	"time"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

// Account holds the cached balance of a single credit wallet.
//
// Balance is a materialized view over the transaction log and is only ever
// changed together with appending the transactions that justify it. The
// bank account is exempt from the non-negative balance rule.
type Account struct {
	types.Entity
	ID          id.AccountID `json:"id"`
	OwnerID     string       `json:"owner_id,omitempty"`
	Bank        bool         `json:"bank"`
	Balance     int64        `json:"balance"`
	LastGrantAt *time.Time   `json:"last_grant_at,omitempty"`
}

// New returns an unsaved account for ownerID with a zero balance.
func New(ownerID string, now time.Time) *Account {
	return &Account{
		Entity:  types.NewEntity(now),
		ID:      id.NewAccountID(),
		OwnerID: ownerID,
	}
}

// NewBank returns an unsaved bank account with the given reserved ID.
func NewBank(bankID id.AccountID, now time.Time) *Account {
	return &Account{
		Entity: types.NewEntity(now),
		ID:     bankID,
		Bank:   true,
	}
}

// CanAfford reports whether the account can be debited amount without
// dropping below zero. The bank can always afford a debit.
func (a *Account) CanAfford(amount int64) bool {
	return a.Bank || a.Balance >= amount
}

// Clone returns a deep copy so stores never hand out shared pointers.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.LastGrantAt != nil {
		t := *a.LastGrantAt
		c.LastGrantAt = &t
	}
	return &c
}
