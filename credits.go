package credits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/transaction"
)

// Defaults applied by New.
const (
	DefaultInitialGrant int64 = 15
	DefaultLockTimeout        = 5 * time.Second
)

// Engine is the ledger service. It is the only component that changes
// balances, and every change is paired with transactions in one atomic
// unit of work.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	now     func() time.Time

	// Configuration
	bankID       id.AccountID
	initialGrant int64
	lockTimeout  time.Duration
	migrate      bool
}

// New creates a new Engine over s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:        s,
		plugins:      plugin.NewRegistry(),
		logger:       slog.Default(),
		now:          time.Now,
		bankID:       id.BankAccountID,
		initialGrant: DefaultInitialGrant,
		lockTimeout:  DefaultLockTimeout,
		migrate:      true,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithBankAccount overrides the reserved bank account identifier.
func WithBankAccount(bankID id.AccountID) Option {
	return func(e *Engine) {
		if !bankID.IsNil() {
			e.bankID = bankID
		}
	}
}

// WithInitialGrant sets the credits granted to newly provisioned accounts.
func WithInitialGrant(amount int64) Option {
	return func(e *Engine) {
		if amount >= 0 {
			e.initialGrant = amount
		}
	}
}

// WithLockTimeout bounds how long an operation retries on lock contention.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.lockTimeout = d
		}
	}
}

// WithMigrate controls whether Start migrates the store. Disable it when
// the schema is managed out of band.
func WithMigrate(enabled bool) Option {
	return func(e *Engine) {
		e.migrate = enabled
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Start migrates the store unless disabled, makes sure the bank account
// exists and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if e.migrate {
		if err := e.store.Migrate(ctx); err != nil {
			return err
		}
	}

	if _, err := e.BankAccount(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("credits engine started",
		"bank_account", e.bankID.String(),
		"initial_grant", e.initialGrant,
		"lock_timeout", e.lockTimeout,
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (e *Engine) Stop() error {
	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// Store returns the underlying store for read-only use.
func (e *Engine) Store() store.Store {
	return e.store
}

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry {
	return e.plugins
}

// BankAccountID returns the reserved bank account identifier.
func (e *Engine) BankAccountID() id.AccountID {
	return e.bankID
}

// ──────────────────────────────────────────────────
// Unit of work
// ──────────────────────────────────────────────────

// atomic runs fn through the store and retries the whole unit when the
// store reports lock contention. fn must be safe to run more than once and
// must reset anything it captures on every attempt.
func (e *Engine) atomic(ctx context.Context, lock []id.AccountID, fn func(ctx context.Context, tx store.Tx) error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 2 * time.Millisecond
	exp.MaxInterval = 100 * time.Millisecond

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := e.store.Atomic(ctx, lock, fn)
		if err == nil || errors.Is(err, ErrConflict) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(exp),
		backoff.WithMaxElapsedTime(e.lockTimeout),
	)
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrConflict) {
		e.logger.Warn("gave up waiting for account locks",
			"accounts", len(lock),
			"attempts", attempts,
			"error", err,
		)
		return errors.Join(ErrLockTimeout, err)
	}
	return err
}

// bank returns the bank account inside tx, creating it if absent.
func (e *Engine) bank(ctx context.Context, tx store.Tx) (*account.Account, error) {
	a, err := tx.Account(ctx, e.bankID)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	a = account.NewBank(e.bankID, e.now())
	if err := tx.CreateAccount(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// post applies amount to acct's cached balance and appends the matching
// transaction. It is the only place a balance changes. An amount that would
// overflow the balance is rejected before anything is written.
func (e *Engine) post(ctx context.Context, tx store.Tx, acct *account.Account, amount int64, kind transaction.Kind, desc string, now time.Time) (*transaction.Transaction, error) {
	if (amount > 0 && acct.Balance > math.MaxInt64-amount) ||
		(amount < 0 && acct.Balance < math.MinInt64-amount) {
		return nil, fmt.Errorf("%w: posting %d to %s overflows balance %d", ErrInvalidAmount, amount, acct.ID, acct.Balance)
	}

	t := transaction.New(acct.ID, amount, kind, desc, now)
	if err := tx.Append(ctx, t); err != nil {
		return nil, err
	}

	acct.Balance += amount
	acct.Touch(now)
	if err := tx.UpdateAccount(ctx, acct); err != nil {
		return nil, err
	}
	return t, nil
}

// emitPosting runs the generic post-commit notifications.
func (e *Engine) emitPosting(ctx context.Context, op transaction.Operation, txns []*transaction.Transaction, now time.Time) {
	if len(txns) == 0 {
		return
	}
	e.plugins.EmitTransactionsPosted(ctx, &transaction.Posting{
		Operation:    op,
		Transactions: txns,
		PostedAt:     now.UTC(),
	})
}
