package transaction

import (
	"context"

	"github.com/xraph/credits/id"
)

// Store is the read side of the transaction log. There is deliberately no
// update or delete method.
type Store interface {
	ListTransactions(ctx context.Context, accountID id.AccountID, opts ListOpts) ([]*Transaction, error)
	SumTransactions(ctx context.Context, accountID id.AccountID) (int64, error)
}

// ListOpts filters and paginates an account's history. Results are in
// chronological order.
type ListOpts struct {
	Kind   Kind
	Limit  int
	Offset int
}
