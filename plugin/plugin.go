// Package plugin provides an extensible plugin system for the credit ledger.
// Plugins hook into lifecycle and posting events to add audit trails,
// metrics, notifications and similar side channels. Hooks run after the
// owning operation has committed and can never change its outcome.
package plugin

import (
	"context"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/transaction"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. engine is the *credits.Engine.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine is stopping.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Account hooks
// ──────────────────────────────────────────────────

// OnAccountProvisioned is called after a new account received its initial grant.
type OnAccountProvisioned interface {
	Plugin
	OnAccountProvisioned(ctx context.Context, acct *account.Account) error
}

// ──────────────────────────────────────────────────
// Posting hooks
// ──────────────────────────────────────────────────

// OnTransactionsPosted is called once for every committed operation with
// the full set of transactions it appended.
type OnTransactionsPosted interface {
	Plugin
	OnTransactionsPosted(ctx context.Context, posting *transaction.Posting) error
}

// OnSessionSettled is called after a session payment committed.
type OnSessionSettled interface {
	Plugin
	OnSessionSettled(ctx context.Context, settlement *transaction.Settlement) error
}

// OnDonationReceived is called after a donation to the bank committed.
type OnDonationReceived interface {
	Plugin
	OnDonationReceived(ctx context.Context, donor id.AccountID, amount int64) error
}

// OnSupportGranted is called after support credits were paid out.
type OnSupportGranted interface {
	Plugin
	OnSupportGranted(ctx context.Context, accountID id.AccountID, amount int64) error
}

// ──────────────────────────────────────────────────
// Rejection hooks
// ──────────────────────────────────────────────────

// OnSupportDenied is called when a support claim is refused.
type OnSupportDenied interface {
	Plugin
	OnSupportDenied(ctx context.Context, accountID id.AccountID, reason string) error
}

// OnInsufficientFunds is called when a debit is rejected for lack of balance.
type OnInsufficientFunds interface {
	Plugin
	OnInsufficientFunds(ctx context.Context, accountID id.AccountID, required, available int64) error
}
