package credits_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/credits"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/store/memory"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, opts ...credits.Option) (*credits.Engine, *fakeClock) {
	t.Helper()

	clock := newFakeClock()
	base := []credits.Option{
		credits.WithLogger(quietLogger()),
		credits.WithClock(clock.Now),
	}
	e := credits.New(memory.New(), append(base, opts...)...)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = e.Stop() })
	return e, clock
}

// provision creates an account for owner and brings its balance to want
// using only ledger operations.
func provision(t *testing.T, e *credits.Engine, owner string, want int64) id.AccountID {
	t.Helper()
	ctx := context.Background()

	a, err := e.ProvisionAccount(ctx, owner)
	if err != nil {
		t.Fatalf("ProvisionAccount(%q): %v", owner, err)
	}
	switch {
	case a.Balance < want:
		if _, err := e.AwardBounty(ctx, a.ID, want-a.Balance, "top up"); err != nil {
			t.Fatalf("AwardBounty: %v", err)
		}
	case a.Balance > want:
		if _, err := e.Donate(ctx, a.ID, a.Balance-want); err != nil {
			t.Fatalf("Donate: %v", err)
		}
	}
	assertBalance(t, e, a.ID, want)
	return a.ID
}

func balanceOf(t *testing.T, e *credits.Engine, accountID id.AccountID) int64 {
	t.Helper()
	a, err := e.GetAccount(context.Background(), accountID)
	if err != nil {
		t.Fatalf("GetAccount(%s): %v", accountID, err)
	}
	return a.Balance
}

func assertBalance(t *testing.T, e *credits.Engine, accountID id.AccountID, want int64) {
	t.Helper()
	if got := balanceOf(t, e, accountID); got != want {
		t.Errorf("balance of %s = %d, want %d", accountID, got, want)
	}
}

func bankBalance(t *testing.T, e *credits.Engine) int64 {
	t.Helper()
	b, err := e.BankBalance(context.Background())
	if err != nil {
		t.Fatalf("BankBalance: %v", err)
	}
	return b
}

// assertConsistent checks that every listed account's cached balance
// matches its transaction log.
func assertConsistent(t *testing.T, e *credits.Engine, ids ...id.AccountID) {
	t.Helper()
	ctx := context.Background()
	for _, accountID := range append(ids, e.BankAccountID()) {
		if err := e.Reconcile(ctx, accountID); err != nil {
			t.Errorf("Reconcile(%s): %v", accountID, err)
		}
	}
}
