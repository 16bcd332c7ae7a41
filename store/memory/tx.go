package memory

import (
	"context"
	"fmt"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/transaction"
)

// memTx stages writes and publishes them in one step on commit.
type memTx struct {
	store   *Store
	locked  map[string]bool
	staged  map[string]*account.Account
	created map[string]bool
	appends []*transaction.Transaction
}

func (tx *memTx) writable(key string) bool {
	return tx.locked[key] || tx.created[key]
}

func (tx *memTx) Account(_ context.Context, accountID id.AccountID) (*account.Account, error) {
	key := accountID.String()
	if !tx.writable(key) {
		return nil, fmt.Errorf("memory: account %s is not locked by this unit: %w", accountID, credits.ErrInvalidInput)
	}
	if a, ok := tx.staged[key]; ok {
		return a.Clone(), nil
	}

	tx.store.mu.RLock()
	a, ok := tx.store.accounts[key]
	tx.store.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("memory: account %s: %w", accountID, credits.ErrAccountNotFound)
	}

	tx.staged[key] = a.Clone()
	return a.Clone(), nil
}

func (tx *memTx) CreateAccount(_ context.Context, a *account.Account) error {
	key := a.ID.String()
	if _, ok := tx.staged[key]; ok {
		return fmt.Errorf("memory: account %s: %w", a.ID, credits.ErrAccountExists)
	}

	tx.store.mu.RLock()
	_, idTaken := tx.store.accounts[key]
	_, ownerTaken := tx.store.byOwner[a.OwnerID]
	tx.store.mu.RUnlock()

	if idTaken || (a.OwnerID != "" && ownerTaken) {
		return fmt.Errorf("memory: account %s: %w", a.ID, credits.ErrAccountExists)
	}

	tx.staged[key] = a.Clone()
	tx.created[key] = true
	return nil
}

func (tx *memTx) UpdateAccount(_ context.Context, a *account.Account) error {
	key := a.ID.String()
	if !tx.writable(key) {
		return fmt.Errorf("memory: account %s is not locked by this unit: %w", a.ID, credits.ErrInvalidInput)
	}
	if _, ok := tx.staged[key]; !ok {
		return fmt.Errorf("memory: account %s: %w", a.ID, credits.ErrAccountNotFound)
	}
	tx.staged[key] = a.Clone()
	return nil
}

func (tx *memTx) Append(_ context.Context, t *transaction.Transaction) error {
	if !t.Kind.Valid() {
		return fmt.Errorf("memory: transaction kind %q: %w", t.Kind, credits.ErrInvalidInput)
	}
	if !tx.writable(t.AccountID.String()) {
		return fmt.Errorf("memory: account %s is not locked by this unit: %w", t.AccountID, credits.ErrInvalidInput)
	}
	c := *t
	tx.appends = append(tx.appends, &c)
	return nil
}

func (tx *memTx) commit() error {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return credits.ErrStoreClosed
	}

	// Owner uniqueness can only be decided under the write lock.
	for key := range tx.created {
		a := tx.staged[key]
		if _, ok := s.accounts[key]; ok {
			return fmt.Errorf("memory: account %s: %w", a.ID, credits.ErrAccountExists)
		}
		if a.OwnerID == "" {
			continue
		}
		if _, ok := s.byOwner[a.OwnerID]; ok {
			return fmt.Errorf("memory: owner %q: %w", a.OwnerID, credits.ErrAccountExists)
		}
	}

	for key, a := range tx.staged {
		s.accounts[key] = a
		if tx.created[key] && a.OwnerID != "" {
			s.byOwner[a.OwnerID] = key
		}
	}
	for _, t := range tx.appends {
		key := t.AccountID.String()
		s.byAcct[key] = append(s.byAcct[key], len(s.txns))
		s.txns = append(s.txns, t)
	}
	return nil
}
