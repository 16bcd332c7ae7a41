// Package memory provides an in-process Store for tests and single-node
// deployments. Accounts are locked individually so operations on disjoint
// accounts proceed in parallel.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/transaction"
)

// DefaultLockWait bounds how long Atomic waits for one account lock.
const DefaultLockWait = 100 * time.Millisecond

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

type Store struct {
	// mu guards the committed state below.
	mu       sync.RWMutex
	accounts map[string]*account.Account
	byOwner  map[string]string
	txns     []*transaction.Transaction
	byAcct   map[string][]int
	closed   bool

	// locks holds one mutex per account ID, created on first use.
	locksMu  sync.Mutex
	locks    map[string]*sync.Mutex
	lockWait time.Duration
}

// Option configures the memory store.
type Option func(*Store)

// WithLockWait sets how long Atomic spins on a busy account before giving up
// with credits.ErrConflict.
func WithLockWait(d time.Duration) Option {
	return func(s *Store) {
		s.lockWait = d
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		accounts: make(map[string]*account.Account),
		byOwner:  make(map[string]string),
		byAcct:   make(map[string][]int),
		locks:    make(map[string]*sync.Mutex),
		lockWait: DefaultLockWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ──────────────────────────────────────────────────
// Account reads
// ──────────────────────────────────────────────────

func (s *Store) GetAccount(_ context.Context, accountID id.AccountID) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, credits.ErrStoreClosed
	}
	if a, ok := s.accounts[accountID.String()]; ok {
		return a.Clone(), nil
	}
	return nil, fmt.Errorf("memory: account %s: %w", accountID, credits.ErrAccountNotFound)
}

func (s *Store) GetAccountByOwner(_ context.Context, ownerID string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, credits.ErrStoreClosed
	}
	if key, ok := s.byOwner[ownerID]; ok {
		return s.accounts[key].Clone(), nil
	}
	return nil, fmt.Errorf("memory: owner %q: %w", ownerID, credits.ErrAccountNotFound)
}

func (s *Store) ListAccounts(_ context.Context, opts account.ListOpts) ([]*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, credits.ErrStoreClosed
	}

	keys := make([]string, 0, len(s.accounts))
	for k, a := range s.accounts {
		if a.Bank && !opts.IncludeBank {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)

	keys = paginate(keys, opts.Offset, opts.Limit)
	out := make([]*account.Account, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.accounts[k].Clone())
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Transaction log reads
// ──────────────────────────────────────────────────

func (s *Store) ListTransactions(_ context.Context, accountID id.AccountID, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, credits.ErrStoreClosed
	}

	var matched []*transaction.Transaction
	for _, i := range s.byAcct[accountID.String()] {
		t := s.txns[i]
		if opts.Kind != "" && t.Kind != opts.Kind {
			continue
		}
		matched = append(matched, t)
	}

	matched = paginate(matched, opts.Offset, opts.Limit)
	out := make([]*transaction.Transaction, len(matched))
	for i, t := range matched {
		c := *t
		out[i] = &c
	}
	return out, nil
}

func (s *Store) SumTransactions(_ context.Context, accountID id.AccountID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, credits.ErrStoreClosed
	}

	var sum int64
	for _, i := range s.byAcct[accountID.String()] {
		sum += s.txns[i].Amount
	}
	return sum, nil
}

// ──────────────────────────────────────────────────
// Unit of work
// ──────────────────────────────────────────────────

func (s *Store) Atomic(ctx context.Context, lock []id.AccountID, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return credits.ErrStoreClosed
	}

	ordered := store.LockOrder(lock)
	held := make([]*sync.Mutex, 0, len(ordered))
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}()

	for _, accountID := range ordered {
		m := s.lockFor(accountID.String())
		if err := s.acquire(ctx, m); err != nil {
			return fmt.Errorf("memory: lock account %s: %w", accountID, err)
		}
		held = append(held, m)
	}

	tx := &memTx{
		store:   s,
		locked:  make(map[string]bool, len(ordered)),
		staged:  make(map[string]*account.Account),
		created: make(map[string]bool),
	}
	for _, accountID := range ordered {
		tx.locked[accountID.String()] = true
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

func (s *Store) lockFor(key string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	return m
}

// acquire spins on TryLock until lockWait elapses.
func (s *Store) acquire(ctx context.Context, m *sync.Mutex) error {
	if m.TryLock() {
		return nil
	}

	deadline := time.Now().Add(s.lockWait)
	ticker := time.NewTicker(50 * time.Microsecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if m.TryLock() {
			return nil
		}
		if time.Now().After(deadline) {
			return credits.ErrConflict
		}
	}
}

// ──────────────────────────────────────────────────
// Core methods
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return credits.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
