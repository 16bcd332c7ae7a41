package credits

import (
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/transaction"
	"github.com/xraph/credits/types"
)

// Re-export common types for convenience so callers rarely need the
// sub-packages.

// Account is re-exported from the account package.
type Account = account.Account

// Transaction is re-exported from the transaction package.
type Transaction = transaction.Transaction

// Kind is re-exported from the transaction package.
type Kind = transaction.Kind

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export transaction kinds
const (
	KindInitialGrant   = transaction.KindInitialGrant
	KindSessionPayment = transaction.KindSessionPayment
	KindBountyReward   = transaction.KindBountyReward
	KindPenalty        = transaction.KindPenalty
	KindTax            = transaction.KindTax
	KindDonation       = transaction.KindDonation
	KindSupportGrant   = transaction.KindSupportGrant
)
