// Package sqlite implements store.Store on SQLite through the pure-Go
// modernc.org/sqlite driver.
//
// Write transactions begin IMMEDIATE, so units of work are serialized by the
// database write lock and account locks need no extra statements. A unit
// that cannot get the write lock within the busy timeout fails with
// credits.ErrConflict.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net/url"
	"time"

	sq "github.com/Masterminds/squirrel"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/transaction"
)

// DefaultBusyTimeout is how long a connection waits for the write lock.
const DefaultBusyTimeout = 5 * time.Second

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using SQLite.
type Store struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DSN returns a modernc.org/sqlite data source name for path with foreign
// keys on, WAL journaling and IMMEDIATE write transactions.
func DSN(path string, busyTimeout time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	q.Add("_pragma", "foreign_keys(1)")
	if path != ":memory:" {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	q.Set("_txlock", "immediate")
	return path + "?" + q.Encode()
}

// Open opens the database at path. ":memory:" gives a private in-memory
// database limited to one connection.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", DSN(path, DefaultBusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("credits/sqlite: open %s: %w", path, err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("credits/sqlite: ping %s: %w", path, err)
	}
	return New(db), nil
}

// New wraps an already opened database. The caller is responsible for the
// pragmas DSN sets.
func New(db *sql.DB) *Store {
	return &Store{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Account reads ====================

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	return getAccount(ctx, s.db, s.sb, "id", accountID.String())
}

func (s *Store) GetAccountByOwner(ctx context.Context, ownerID string) (*account.Account, error) {
	return getAccount(ctx, s.db, s.sb, "owner_id", ownerID)
}

func (s *Store) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	q := s.sb.Select(accountColumns...).From("credit_accounts").OrderBy("id ASC")
	if !opts.IncludeBank {
		q = q.Where(sq.Eq{"bank": false})
	}
	q = paginate(q, opts.Offset, opts.Limit)

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
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
	if err := db.QueryRowContext(ctx, query, args...).Scan(m.dest()...); err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("credits/sqlite: account %s=%q: %w", column, value, credits.ErrAccountNotFound)
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
	rows, err := s.db.QueryContext(ctx, query, args...)
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
	query, args, err := s.sb.Select("COALESCE(SUM(amount), 0)").
		From("credit_transactions").
		Where(sq.Eq{"account_id": accountID.String()}).
		ToSql()
	if err != nil {
		return 0, err
	}

	var sum int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&sum); err != nil {
		return 0, classify(err)
	}
	return sum, nil
}

// ==================== Unit of work ====================

// Atomic runs fn inside one IMMEDIATE transaction.
func (s *Store) Atomic(ctx context.Context, lock []id.AccountID, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("credits/sqlite: begin: %w", classify(err))
	}
	defer sqlTx.Rollback() //nolint:errcheck // no-op after commit

	tx := newUnit(sqlTx, s.sb, store.LockOrder(lock))
	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("credits/sqlite: commit: %w", classify(err))
	}
	return nil
}

// ==================== Helpers ====================

// paginate applies offset and limit. SQLite needs a LIMIT before OFFSET.
func paginate(q sq.SelectBuilder, offset, limit int) sq.SelectBuilder {
	if limit > 0 {
		q = q.Limit(uint64(limit))
	} else if offset > 0 {
		q = q.Limit(math.MaxInt64)
	}
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}
	return q
}

// classify wraps lock contention errors with credits.ErrConflict.
func classify(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %w", credits.ErrConflict, err)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func now() time.Time {
	return time.Now().UTC()
}
