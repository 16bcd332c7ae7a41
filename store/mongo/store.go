// Package mongo implements store.Store on MongoDB. Atomic runs a
// multi-document transaction, so the deployment must be a replica set or a
// sharded cluster.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/transaction"
)

// Collection name constants.
const (
	colAccounts     = "credit_accounts"
	colTransactions = "credit_transactions"
)

const (
	indexOwnerUnique = "credit_accounts_owner_unique"

	// codeWriteConflict is returned when two transactions write one document.
	codeWriteConflict = 112

	labelTransient     = "TransientTransactionError"
	labelUnknownCommit = "UnknownTransactionCommitResult"

	maxCommitAttempts = 3
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB.
type Store struct {
	db    *mongo.Database
	owned bool
}

// Open connects to uri and uses the named database. Close disconnects the
// client.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("credits/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("credits/mongo: ping: %w", err)
	}
	s := New(client.Database(database))
	s.owned = true
	return s, nil
}

// New uses an existing database handle. Close leaves its client connected.
func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

// DB returns the underlying database handle.
func (s *Store) DB() *mongo.Database { return s.db }

func (s *Store) accounts() *mongo.Collection     { return s.db.Collection(colAccounts) }
func (s *Store) transactions() *mongo.Collection { return s.db.Collection(colTransactions) }

// Migrate creates indexes for the credit collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("credits/mongo: migrate %s indexes: %w: %w", col, credits.ErrMigrationFailed, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Close disconnects the client if the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.db.Client().Disconnect(ctx)
}

// ==================== Account reads ====================

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	return getAccount(ctx, s.accounts(), bson.M{"_id": accountID.String()})
}

func (s *Store) GetAccountByOwner(ctx context.Context, ownerID string) (*account.Account, error) {
	return getAccount(ctx, s.accounts(), bson.M{"owner_id": ownerID})
}

func (s *Store) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	filter := bson.M{}
	if !opts.IncludeBank {
		filter["bank"] = false
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cur, err := s.accounts().Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("credits/mongo: list accounts: %w", err)
	}
	var models []accountModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("credits/mongo: list accounts: %w", err)
	}

	result := make([]*account.Account, 0, len(models))
	for i := range models {
		a, err := fromAccountModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, nil
}

func getAccount(ctx context.Context, col *mongo.Collection, filter bson.M) (*account.Account, error) {
	var m accountModel
	if err := col.FindOne(ctx, filter).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("credits/mongo: account %v: %w", filter, credits.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("credits/mongo: get account: %w", classify(err))
	}
	return fromAccountModel(&m)
}

// ==================== Transaction log reads ====================

func (s *Store) ListTransactions(ctx context.Context, accountID id.AccountID, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	filter := bson.M{"account_id": accountID.String()}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cur, err := s.transactions().Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("credits/mongo: list transactions: %w", err)
	}
	var models []transactionModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("credits/mongo: list transactions: %w", err)
	}

	result := make([]*transaction.Transaction, 0, len(models))
	for i := range models {
		t, err := fromTransactionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, nil
}

func (s *Store) SumTransactions(ctx context.Context, accountID id.AccountID) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"account_id": accountID.String()}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$amount"}}}},
	}
	cur, err := s.transactions().Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("credits/mongo: sum transactions: %w", err)
	}
	var out []struct {
		Total int64 `bson:"total"`
	}
	if err := cur.All(ctx, &out); err != nil {
		return 0, fmt.Errorf("credits/mongo: sum transactions: %w", err)
	}
	if len(out) == 0 {
		return 0, nil
	}
	return out[0].Total, nil
}

// ==================== Unit of work ====================

// Atomic runs fn in a session transaction. Accounts are write-locked in
// store.LockOrder by bumping their lock_seq. Write conflicts surface as
// credits.ErrConflict instead of being retried here, so the engine's lock
// timeout applies.
func (s *Store) Atomic(ctx context.Context, lock []id.AccountID, fn func(ctx context.Context, tx store.Tx) error) error {
	sess, err := s.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("credits/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	txnOpts := options.Transaction().SetWriteConcern(writeconcern.Majority())
	if err := sess.StartTransaction(txnOpts); err != nil {
		return fmt.Errorf("credits/mongo: start transaction: %w", err)
	}
	sctx := mongo.NewSessionContext(ctx, sess)

	abort := func() {
		_ = sess.AbortTransaction(context.WithoutCancel(ctx))
	}

	ordered := store.LockOrder(lock)
	for _, accountID := range ordered {
		_, err := s.accounts().UpdateOne(sctx,
			bson.M{"_id": accountID.String()},
			bson.M{"$inc": bson.M{"lock_seq": 1}},
		)
		if err != nil {
			abort()
			return fmt.Errorf("credits/mongo: lock account %s: %w", accountID, classify(err))
		}
	}

	if err := fn(sctx, newUnit(s, ordered)); err != nil {
		abort()
		return err
	}

	for attempt := 1; ; attempt++ {
		err = sess.CommitTransaction(sctx)
		if err == nil {
			return nil
		}
		var se mongo.ServerError
		if attempt < maxCommitAttempts && errors.As(err, &se) && se.HasErrorLabel(labelUnknownCommit) {
			continue
		}
		abort()
		return fmt.Errorf("credits/mongo: commit: %w", classify(err))
	}
}

// ==================== Helpers ====================

// classify wraps transient transaction errors with credits.ErrConflict.
func classify(err error) error {
	var se mongo.ServerError
	if errors.As(err, &se) && (se.HasErrorLabel(labelTransient) || se.HasErrorCode(codeWriteConflict)) {
		return fmt.Errorf("%w: %w", credits.ErrConflict, err)
	}
	return err
}

// classifyInsert maps duplicate keys on account inserts. A duplicate owner
// is a business error; a duplicate _id means another unit created the same
// reserved account first and the caller should retry.
func classifyInsert(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		if strings.Contains(err.Error(), indexOwnerUnique) {
			return fmt.Errorf("%w: %w", credits.ErrAccountExists, err)
		}
		return fmt.Errorf("%w: %w", credits.ErrConflict, err)
	}
	return classify(err)
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for the credit collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colAccounts: {
			{
				Keys: bson.D{{Key: "owner_id", Value: 1}},
				Options: options.Index().
					SetName(indexOwnerUnique).
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"owner_id": bson.M{"$type": "string"}}),
			},
			{Keys: bson.D{{Key: "bank", Value: 1}, {Key: "_id", Value: 1}}},
		},
		colTransactions: {
			{
				Keys:    bson.D{{Key: "account_id", Value: 1}, {Key: "seq", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "kind", Value: 1}, {Key: "seq", Value: 1}}},
		},
	}
}
