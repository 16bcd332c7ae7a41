// Package postgres implements store.Store on PostgreSQL with pgx.
//
// Atomic opens a READ COMMITTED transaction, bounds lock waits with
// SET LOCAL lock_timeout and takes SELECT ... FOR UPDATE row locks on the
// requested accounts one at a time in store.LockOrder.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/transaction"
)

// DefaultLockTimeout bounds how long one statement waits for a row lock.
const DefaultLockTimeout = time.Second

// PostgreSQL error codes the store reacts to.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

const constraintOwnerUnique = "credit_accounts_owner_id_key"

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL.
type Store struct {
	pool        *pgxpool.Pool
	sb          sq.StatementBuilderType
	lockTimeout time.Duration
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Option configures the store.
type Option func(*Store)

// WithLockTimeout sets the lock_timeout applied inside Atomic.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("credits/postgres: parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("credits/postgres: create the connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("credits/postgres: ping the database: %w", err)
	}
	return New(pool, opts...), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:        pool,
		sb:          sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		lockTimeout: DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ==================== Account reads ====================

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	return getAccount(ctx, s.pool, s.sb, "id", accountID.String())
}

func (s *Store) GetAccountByOwner(ctx context.Context, ownerID string) (*account.Account, error) {
	return getAccount(ctx, s.pool, s.sb, "owner_id", ownerID)
}

func (s *Store) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	q := s.sb.Select(accountColumns...).From("credit_accounts").OrderBy("id COLLATE \"C\" ASC")
	if !opts.IncludeBank {
		q = q.Where(sq.Eq{"bank": false})
	}
	q = paginate(q, opts.Offset, opts.Limit)

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var result []*account.Account
	for rows.Next() {
		var m accountModel
		if err := rows.Scan(m.dest()...); err != nil {
			return nil, err
		}
		a, err := fromAccountModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func getAccount(ctx context.Context, db querier, sb sq.StatementBuilderType, column, value string) (*account.Account, error) {
	query, args, err := sb.Select(accountColumns...).From("credit_accounts").Where(sq.Eq{column: value}).ToSql()
	if err != nil {
		return nil, err
	}

	var m accountModel
	if err := db.QueryRow(ctx, query, args...).Scan(m.dest()...); err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("credits/postgres: account %s=%q: %w", column, value, credits.ErrAccountNotFound)
		}
		return nil, classify(err)
	}
	return fromAccountModel(&m)
}

// ==================== Transaction log reads ====================

func (s *Store) ListTransactions(ctx context.Context, accountID id.AccountID, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	q := s.sb.Select(transactionColumns...).
		From("credit_transactions").
		Where(sq.Eq{"account_id": accountID.String()}).
		OrderBy("seq ASC")
	if opts.Kind != "" {
		q = q.Where(sq.Eq{"kind": string(opts.Kind)})
	}
	q = paginate(q, opts.Offset, opts.Limit)

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var result []*transaction.Transaction
	for rows.Next() {
		var m transactionModel
		if err := rows.Scan(m.dest()...); err != nil {
			return nil, err
		}
		t, err := fromTransactionModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (s *Store) SumTransactions(ctx context.Context, accountID id.AccountID) (int64, error) {
	query, args, err := s.sb.Select("COALESCE(SUM(amount), 0)::BIGINT").
		From("credit_transactions").
		Where(sq.Eq{"account_id": accountID.String()}).
		ToSql()
	if err != nil {
		return 0, err
	}

	var sum int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&sum); err != nil {
		return 0, classify(err)
	}
	return sum, nil
}

// ==================== Unit of work ====================

func (s *Store) Atomic(ctx context.Context, lock []id.AccountID, fn func(ctx context.Context, tx store.Tx) error) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("credits/postgres: begin: %w", classify(err))
	}
	defer pgTx.Rollback(ctx) //nolint:errcheck // no-op after commit

	// SET does not accept bind parameters.
	if _, err := pgTx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("credits/postgres: set lock_timeout: %w", classify(err))
	}

	ordered := store.LockOrder(lock)
	for _, accountID := range ordered {
		if _, err := pgTx.Exec(ctx, `SELECT 1 FROM credit_accounts WHERE id = $1 FOR UPDATE`, accountID.String()); err != nil {
			return fmt.Errorf("credits/postgres: lock account %s: %w", accountID, classify(err))
		}
	}

	if err := fn(ctx, newUnit(pgTx, s.sb, ordered)); err != nil {
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("credits/postgres: commit: %w", classify(err))
	}
	return nil
}

// ==================== Helpers ====================

func paginate(q sq.SelectBuilder, offset, limit int) sq.SelectBuilder {
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}
	return q
}

// classify wraps lock contention errors with credits.ErrConflict.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeLockNotAvailable, codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %w", credits.ErrConflict, err)
		}
	}
	return err
}

// classifyInsert maps unique violations on account inserts. A duplicate
// owner is a business error; a duplicate primary key means another unit
// created the same reserved account first, so the caller should retry and
// find it.
func classifyInsert(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		if pgErr.ConstraintName == constraintOwnerUnique {
			return fmt.Errorf("%w: %w", credits.ErrAccountExists, err)
		}
		return fmt.Errorf("%w: %w", credits.ErrConflict, err)
	}
	return classify(err)
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
