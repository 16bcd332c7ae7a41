// Package transaction defines the immutable ledger entries that justify
// every balance change.
package transaction

import (
	"time"

	"github.com/xraph/credits/id"
)

// Kind classifies a ledger entry. The set is closed.
type Kind string

const (
	KindInitialGrant   Kind = "INITIAL_GRANT"
	KindSessionPayment Kind = "SESSION_PAYMENT"
	KindBountyReward   Kind = "BOUNTY_REWARD"
	KindPenalty        Kind = "PENALTY"
	KindTax            Kind = "TAX"
	KindDonation       Kind = "DONATION"
	KindSupportGrant   Kind = "SUPPORT_GRANT"
)

// Kinds lists every valid Kind.
func Kinds() []Kind {
	return []Kind{
		KindInitialGrant,
		KindSessionPayment,
		KindBountyReward,
		KindPenalty,
		KindTax,
		KindDonation,
		KindSupportGrant,
	}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindInitialGrant, KindSessionPayment, KindBountyReward, KindPenalty,
		KindTax, KindDonation, KindSupportGrant:
		return true
	}
	return false
}

// Transaction is a single signed balance change on one account.
// Once appended it is never updated or deleted.
type Transaction struct {
	ID          id.TransactionID `json:"id"`
	AccountID   id.AccountID     `json:"account_id"`
	Amount      int64            `json:"amount"`
	Kind        Kind             `json:"kind"`
	Description string           `json:"description"`
	CreatedAt   time.Time        `json:"created_at"`
}

// New returns a transaction with a fresh ID.
func New(accountID id.AccountID, amount int64, kind Kind, description string, now time.Time) *Transaction {
	return &Transaction{
		ID:          id.NewTransactionID(),
		AccountID:   accountID,
		Amount:      amount,
		Kind:        kind,
		Description: description,
		CreatedAt:   now.UTC(),
	}
}

// Operation names the ledger operation that produced a posting.
type Operation string

const (
	OpProvision Operation = "provision"
	OpSession   Operation = "session"
	OpDonation  Operation = "donation"
	OpSupport   Operation = "support"
	OpBounty    Operation = "bounty"
	OpPenalty   Operation = "penalty"
)

// Posting is the set of transactions committed by one operation.
type Posting struct {
	Operation    Operation      `json:"operation"`
	Transactions []*Transaction `json:"transactions"`
	PostedAt     time.Time      `json:"posted_at"`
}

// Net returns the sum of all amounts in the posting. Transfers net to zero.
func (p *Posting) Net() int64 {
	var n int64
	for _, t := range p.Transactions {
		n += t.Amount
	}
	return n
}

// For returns the posting's transactions against accountID.
func (p *Posting) For(accountID id.AccountID) []*Transaction {
	var out []*Transaction
	for _, t := range p.Transactions {
		if t.AccountID == accountID {
			out = append(out, t)
		}
	}
	return out
}

// Settlement is the breakdown of a paid session.
type Settlement struct {
	Payer       id.AccountID `json:"payer"`
	Payee       id.AccountID `json:"payee"`
	Minutes     int64        `json:"minutes"`
	Credits     int64        `json:"credits"`
	Tax         int64        `json:"tax"`
	PayeeAmount int64        `json:"payee_amount"`
}
