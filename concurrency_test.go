package credits_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/credits"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/transaction"
)

func TestConcurrentSettlementsNeverOverdraw(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	payer := provision(t, e, "payer", 50)
	payees := make([]id.AccountID, 5)
	for i := range payees {
		payees[i] = provision(t, e, fmt.Sprintf("payee-%d", i), 0)
	}
	bankBefore := bankBalance(t, e)

	// 40 sessions of 10 credits each against a balance of 50.
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		rejected  atomic.Int64
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.SettleSession(ctx, payer, payees[i%len(payees)], 50)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, credits.ErrInsufficientFunds):
				rejected.Add(1)
			default:
				t.Errorf("SettleSession: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded.Load() != 5 {
		t.Errorf("%d settlements succeeded, want 5", succeeded.Load())
	}
	if rejected.Load() != 35 {
		t.Errorf("%d settlements rejected, want 35", rejected.Load())
	}
	assertBalance(t, e, payer, 0)

	var earned int64
	for _, p := range payees {
		earned += balanceOf(t, e, p)
	}
	if earned != 45 {
		t.Errorf("payees earned %d, want 45", earned)
	}
	if got := bankBalance(t, e) - bankBefore; got != 5 {
		t.Errorf("bank collected %d, want 5", got)
	}
	assertConsistent(t, e, append(payees, payer)...)
}

func TestConcurrentTransfersConserveCredits(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	const n = 6
	accounts := make([]id.AccountID, n)
	for i := range accounts {
		accounts[i] = provision(t, e, fmt.Sprintf("user-%d", i), 30)
	}
	total := func() int64 {
		var sum int64
		for _, a := range accounts {
			sum += balanceOf(t, e, a)
		}
		return sum + bankBalance(t, e)
	}
	before := total()

	// Sessions in both directions across every pair exercise lock ordering.
	var wg sync.WaitGroup
	for round := 0; round < 10; round++ {
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if i == j {
					continue
				}
				wg.Add(1)
				go func(from, to id.AccountID) {
					defer wg.Done()
					_, err := e.SettleSession(ctx, from, to, 15)
					if err != nil && !errors.Is(err, credits.ErrInsufficientFunds) {
						t.Errorf("SettleSession: %v", err)
					}
				}(accounts[i], accounts[j])
			}
		}
	}
	wg.Wait()

	if after := total(); after != before {
		t.Errorf("credits not conserved: before %d, after %d", before, after)
	}
	for _, a := range accounts {
		if b := balanceOf(t, e, a); b < 0 {
			t.Errorf("account %s went negative: %d", a, b)
		}
	}
	assertConsistent(t, e, accounts...)
}

func TestConcurrentSupportClaimsGrantOnce(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	acct := provision(t, e, "needy", 0)
	now := clock.Now()

	var (
		wg      sync.WaitGroup
		granted atomic.Int64
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			amount, err := e.ClaimSupportCredits(ctx, acct, now)
			if err == nil {
				granted.Add(amount)
				return
			}
			if !errors.Is(err, credits.ErrNotEligible) {
				t.Errorf("ClaimSupportCredits: %v", err)
			}
		}()
	}
	wg.Wait()

	if granted.Load() != 6 {
		t.Errorf("granted %d credits in total, want 6", granted.Load())
	}
	assertBalance(t, e, acct, 6)
	assertConsistent(t, e, acct)
}

func TestConcurrentProvisionSameOwner(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		created atomic.Int64
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ProvisionAccount(ctx, "same-owner")
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, credits.ErrAccountExists):
			default:
				t.Errorf("ProvisionAccount: %v", err)
			}
		}()
	}
	wg.Wait()

	if created.Load() != 1 {
		t.Errorf("%d accounts created for one owner", created.Load())
	}
}

// A unit that waits out lock contention is stamped when it commits, not
// when it was first attempted.
func TestRetriedSettlementStampedAtCommit(t *testing.T) {
	clock := newFakeClock()
	s := memory.New(memory.WithLockWait(time.Millisecond))
	e := credits.New(s,
		credits.WithLogger(quietLogger()),
		credits.WithClock(clock.Now),
		credits.WithLockTimeout(5*time.Second),
	)
	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = e.Stop() })

	payer := provision(t, e, "payer", 15)
	payee := provision(t, e, "payee", 0)
	start := clock.Now()

	held := make(chan struct{})
	release := make(chan struct{})
	holder := make(chan error, 1)
	go func() {
		holder <- s.Atomic(ctx, []id.AccountID{payer}, func(context.Context, store.Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	settled := make(chan error, 1)
	go func() {
		_, err := e.SettleSession(ctx, payer, payee, 50)
		settled <- err
	}()

	time.Sleep(20 * time.Millisecond)
	clock.Advance(time.Hour)
	close(release)

	if err := <-holder; err != nil {
		t.Fatalf("holder: %v", err)
	}
	if err := <-settled; err != nil {
		t.Fatalf("SettleSession: %v", err)
	}

	txns, err := e.Transactions(ctx, payee, transaction.ListOpts{Kind: transaction.KindSessionPayment})
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(txns) != 1 {
		t.Fatalf("got %d session payments, want 1", len(txns))
	}
	if want := start.Add(time.Hour); !txns[0].CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", txns[0].CreatedAt, want)
	}
}
