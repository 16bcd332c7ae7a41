package account

import (
	"context"

	"github.com/xraph/credits/id"
)

// Store is the read side of account persistence. Writes happen only inside
// an atomic unit of work (see store.Tx).
type Store interface {
	GetAccount(ctx context.Context, accountID id.AccountID) (*Account, error)
	GetAccountByOwner(ctx context.Context, ownerID string) (*Account, error)
	ListAccounts(ctx context.Context, opts ListOpts) ([]*Account, error)
}

// ListOpts filters and paginates account listings. Accounts are returned in
// ID order.
type ListOpts struct {
	IncludeBank bool
	Limit       int
	Offset      int
}
