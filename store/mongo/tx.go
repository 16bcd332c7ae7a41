package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/transaction"
)

// unit is the store.Tx handed to Atomic callbacks. Every call must use the
// session context Atomic passed to the callback.
type unit struct {
	s        *Store
	writable map[string]bool
}

func newUnit(s *Store, locked []id.AccountID) *unit {
	u := &unit{s: s, writable: make(map[string]bool, len(locked))}
	for _, accountID := range locked {
		u.writable[accountID.String()] = true
	}
	return u
}

func (u *unit) check(accountID id.AccountID) error {
	if !u.writable[accountID.String()] {
		return fmt.Errorf("credits/mongo: account %s is not locked by this unit: %w", accountID, credits.ErrInvalidInput)
	}
	return nil
}

func (u *unit) Account(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	if err := u.check(accountID); err != nil {
		return nil, err
	}
	return getAccount(ctx, u.s.accounts(), bson.M{"_id": accountID.String()})
}

func (u *unit) CreateAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	if _, err := u.s.accounts().InsertOne(ctx, m); err != nil {
		return fmt.Errorf("credits/mongo: create account %s: %w", a.ID, classifyInsert(err))
	}
	u.writable[m.ID] = true
	return nil
}

func (u *unit) UpdateAccount(ctx context.Context, a *account.Account) error {
	if err := u.check(a.ID); err != nil {
		return err
	}
	m := toAccountModel(a)
	res, err := u.s.accounts().UpdateOne(ctx,
		bson.M{"_id": m.ID},
		bson.M{"$set": bson.M{
			"balance":       m.Balance,
			"last_grant_at": m.LastGrantAt,
			"updated_at":    m.UpdatedAt,
		}},
	)
	if err != nil {
		return fmt.Errorf("credits/mongo: update account %s: %w", a.ID, classify(err))
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("credits/mongo: account %s: %w", a.ID, credits.ErrAccountNotFound)
	}
	return nil
}

func (u *unit) Append(ctx context.Context, t *transaction.Transaction) error {
	if !t.Kind.Valid() {
		return fmt.Errorf("credits/mongo: transaction kind %q: %w", t.Kind, credits.ErrInvalidInput)
	}
	if err := u.check(t.AccountID); err != nil {
		return err
	}

	var counter struct {
		TxnSeq int64 `bson:"txn_seq"`
	}
	err := u.s.accounts().FindOneAndUpdate(ctx,
		bson.M{"_id": t.AccountID.String()},
		bson.M{"$inc": bson.M{"txn_seq": 1}},
		options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetProjection(bson.M{"txn_seq": 1}),
	).Decode(&counter)
	if err != nil {
		if isNoDocuments(err) {
			return fmt.Errorf("credits/mongo: account %s: %w", t.AccountID, credits.ErrAccountNotFound)
		}
		return fmt.Errorf("credits/mongo: sequence for %s: %w", t.AccountID, classify(err))
	}

	if _, err := u.s.transactions().InsertOne(ctx, toTransactionModel(t, counter.TxnSeq)); err != nil {
		return fmt.Errorf("credits/mongo: append transaction: %w", classify(err))
	}
	return nil
}
