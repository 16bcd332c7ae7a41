package credits_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/transaction"
)

func TestEvaluateSupportTiers(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		balance  int64
		eligible bool
		amount   int64
	}{
		{0, true, 6},
		{1, true, 4},
		{2, true, 4},
		{3, true, 2},
		{4, false, 0},
		{15, false, 0},
	}

	for _, tt := range tests {
		got := credits.EvaluateSupport(&account.Account{Balance: tt.balance}, now)
		if got.Eligible != tt.eligible || got.Amount != tt.amount {
			t.Errorf("balance %d: got %+v, want eligible=%v amount=%d", tt.balance, got, tt.eligible, tt.amount)
		}
		if !tt.eligible && got.Reason != credits.ReasonBalanceTooHigh {
			t.Errorf("balance %d: reason %q, want %q", tt.balance, got.Reason, credits.ReasonBalanceTooHigh)
		}
	}
}

func TestEvaluateSupportCooldown(t *testing.T) {
	granted := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		elapsed  time.Duration
		eligible bool
		reason   string
	}{
		{"same instant", 0, false, "Cooldown active: 7 days remaining"},
		{"one day", 24 * time.Hour, false, "Cooldown active: 6 days remaining"},
		{"six days 23 hours", 6*24*time.Hour + 23*time.Hour, false, "Cooldown active: 1 day remaining"},
		{"seven days", 7 * 24 * time.Hour, true, ""},
		{"eight days", 8 * 24 * time.Hour, true, ""},
		{"clock behind grant", -2 * time.Hour, false, "Cooldown active: 7 days remaining"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &account.Account{LastGrantAt: &granted}
			got := credits.EvaluateSupport(a, granted.Add(tt.elapsed))
			if got.Eligible != tt.eligible {
				t.Fatalf("eligible = %v, want %v (%+v)", got.Eligible, tt.eligible, got)
			}
			if got.Reason != tt.reason {
				t.Errorf("reason = %q, want %q", got.Reason, tt.reason)
			}
		})
	}
}

func TestEvaluateSupportCooldownBeforeBalance(t *testing.T) {
	granted := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	a := &account.Account{Balance: 10, LastGrantAt: &granted}

	got := credits.EvaluateSupport(a, granted.Add(time.Hour))
	if !strings.HasPrefix(got.Reason, "Cooldown active") {
		t.Errorf("reason = %q, want cooldown", got.Reason)
	}
}

func TestCheckSupportEligibilityIsReadOnly(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	acct := provision(t, e, "needy", 0)
	bankBefore := bankBalance(t, e)

	first, err := e.CheckSupportEligibility(ctx, acct, clock.Now())
	if err != nil {
		t.Fatalf("CheckSupportEligibility: %v", err)
	}
	second, err := e.CheckSupportEligibility(ctx, acct, clock.Now())
	if err != nil {
		t.Fatalf("CheckSupportEligibility: %v", err)
	}

	if *first != *second {
		t.Errorf("repeated checks differ: %+v vs %+v", first, second)
	}
	if !first.Eligible || first.Amount != 6 {
		t.Errorf("unexpected eligibility: %+v", first)
	}
	assertBalance(t, e, acct, 0)
	if got := bankBalance(t, e); got != bankBefore {
		t.Errorf("bank changed on check: %d -> %d", bankBefore, got)
	}
}

func TestSupportClaimFlow(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	acct := provision(t, e, "needy", 0)
	bankBefore := bankBalance(t, e)

	amount, err := e.ClaimSupportCredits(ctx, acct, clock.Now())
	if err != nil {
		t.Fatalf("ClaimSupportCredits: %v", err)
	}
	if amount != 6 {
		t.Errorf("amount = %d, want 6", amount)
	}
	assertBalance(t, e, acct, 6)
	if got := bankBalance(t, e); got != bankBefore-6 {
		t.Errorf("bank = %d, want %d", got, bankBefore-6)
	}

	a, err := e.GetAccount(ctx, acct)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if a.LastGrantAt == nil || !a.LastGrantAt.Equal(clock.Now()) {
		t.Errorf("LastGrantAt = %v, want %v", a.LastGrantAt, clock.Now())
	}

	// Spend back down to zero so only the cooldown can block the claim.
	if _, err := e.Donate(ctx, acct, 6); err != nil {
		t.Fatalf("Donate: %v", err)
	}

	_, err = e.ClaimSupportCredits(ctx, acct, clock.Now())
	var ne *credits.NotEligibleError
	if !errors.As(err, &ne) {
		t.Fatalf("err = %v, want NotEligibleError", err)
	}
	if !errors.Is(err, credits.ErrNotEligible) {
		t.Errorf("err does not match ErrNotEligible: %v", err)
	}
	if !strings.HasPrefix(ne.Reason, "Cooldown active") {
		t.Errorf("reason = %q, want cooldown", ne.Reason)
	}
	assertBalance(t, e, acct, 0)

	clock.Advance(8 * 24 * time.Hour)
	amount, err = e.ClaimSupportCredits(ctx, acct, clock.Now())
	if err != nil {
		t.Fatalf("ClaimSupportCredits after cooldown: %v", err)
	}
	if amount != 6 {
		t.Errorf("amount = %d, want 6", amount)
	}

	grants, err := e.Transactions(ctx, acct, transaction.ListOpts{Kind: transaction.KindSupportGrant})
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(grants) != 2 {
		t.Errorf("got %d support grants, want 2", len(grants))
	}
	assertConsistent(t, e, acct)
}

func TestSupportCooldownBoundary(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	acct := provision(t, e, "needy", 0)
	granted := clock.Now()
	if _, err := e.ClaimSupportCredits(ctx, acct, granted); err != nil {
		t.Fatalf("ClaimSupportCredits: %v", err)
	}
	if _, err := e.Donate(ctx, acct, 6); err != nil {
		t.Fatalf("Donate: %v", err)
	}

	if _, err := e.ClaimSupportCredits(ctx, acct, granted.Add(6*24*time.Hour+23*time.Hour)); !errors.Is(err, credits.ErrNotEligible) {
		t.Fatalf("claim at 6d23h: err = %v, want ErrNotEligible", err)
	}
	if _, err := e.ClaimSupportCredits(ctx, acct, granted.Add(7*24*time.Hour)); err != nil {
		t.Fatalf("claim at 7d: %v", err)
	}
}

func TestSupportBalanceTooHigh(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	acct := provision(t, e, "comfortable", 4)

	el, err := e.CheckSupportEligibility(ctx, acct, clock.Now())
	if err != nil {
		t.Fatalf("CheckSupportEligibility: %v", err)
	}
	if el.Eligible || el.Amount != 0 || el.Reason != credits.ReasonBalanceTooHigh {
		t.Errorf("unexpected eligibility: %+v", el)
	}

	_, err = e.ClaimSupportCredits(ctx, acct, clock.Now())
	var ne *credits.NotEligibleError
	if !errors.As(err, &ne) || ne.Reason != credits.ReasonBalanceTooHigh {
		t.Errorf("err = %v, want balance too high", err)
	}
	assertBalance(t, e, acct, 4)
}

func TestSupportRejectsBankAndUnknown(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.CheckSupportEligibility(ctx, e.BankAccountID(), clock.Now()); !errors.Is(err, credits.ErrBankAccount) {
		t.Errorf("bank check err = %v, want ErrBankAccount", err)
	}
	if _, err := e.ClaimSupportCredits(ctx, e.BankAccountID(), clock.Now()); !errors.Is(err, credits.ErrBankAccount) {
		t.Errorf("bank claim err = %v, want ErrBankAccount", err)
	}

	unknown, err := credits.ParseAccountID("acct_01h2xcejqtf2nbrexx3vqjhp41")
	if err != nil {
		t.Fatalf("ParseAccountID: %v", err)
	}
	if _, err := e.ClaimSupportCredits(ctx, unknown, clock.Now()); !credits.IsNotFound(err) {
		t.Errorf("unknown claim err = %v, want not found", err)
	}
}
