// Package credits provides a credit ledger and settlement engine for
// peer-to-peer time-banking platforms.
//
// Credits is designed as a library, not a service. Every user owns an
// account holding a non-negative balance of whole credits; every balance
// change is recorded as an immutable transaction, and the cached balance
// always equals the sum of the account's transactions. A reserved bank
// account collects platform tax and donations and pays out support grants
// and bounties. The bank alone may go negative.
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/credits"
//	    "github.com/xraph/credits/store/postgres"
//	)
//
//	store, err := postgres.Open(ctx, databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	engine := credits.New(store, credits.WithLogger(logger))
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
// # Operations
//
// New users are bootstrapped with an explicit call that posts the initial
// grant of 15 credits:
//
//	acct, err := engine.ProvisionAccount(ctx, userID)
//
// A completed session costs one credit per full five minutes. The payee
// receives the cost minus a 10% platform tax (rounded down) which goes to
// the bank:
//
//	charged, err := engine.SettleSession(ctx, learner, mentor, 50) // 10 credits, 1 tax
//
// Donations move credits to the bank:
//
//	_, err := engine.Donate(ctx, acct.ID, 5)
//
// Accounts running low can claim support credits at most once every seven
// days. The grant depends on the current balance (0 → 6, 1–2 → 4, 3 → 2):
//
//	el, err := engine.CheckSupportEligibility(ctx, acct.ID, time.Now())
//	amount, err := engine.ClaimSupportCredits(ctx, acct.ID, time.Now())
//
// # Concurrency
//
// Each operation runs as one atomic unit of work. Stores lock every
// touched account in a fixed order, so concurrent operations on
// overlapping accounts serialize without deadlocking. Lock contention is
// retried with exponential backoff up to the configured lock timeout;
// business rule failures (insufficient funds, ineligible claims) are
// never retried. A failed operation leaves no trace.
//
// # Stores
//
// Backends live under store/: memory (tests, single process), postgres
// (pgx), sqlite (modernc.org/sqlite) and mongo (MongoDB transactions).
// All of them pass the shared store/storetest conformance suite.
//
// # TypeID
//
// Entities use TypeID identifiers:
//
//	acct_01h2xcejqtf2nbrexx3vqjhp41  // Account ID
//	txn_01h455vb4pex5vsknk084sn02q   // Transaction ID
package credits
