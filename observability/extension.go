// Package observability provides a metrics extension for the credit ledger
// that records posting and settlement counts through a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/transaction"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin               = (*MetricsExtension)(nil)
	_ plugin.OnInit               = (*MetricsExtension)(nil)
	_ plugin.OnAccountProvisioned = (*MetricsExtension)(nil)
	_ plugin.OnTransactionsPosted = (*MetricsExtension)(nil)
	_ plugin.OnSessionSettled     = (*MetricsExtension)(nil)
	_ plugin.OnDonationReceived   = (*MetricsExtension)(nil)
	_ plugin.OnSupportGranted     = (*MetricsExtension)(nil)
	_ plugin.OnSupportDenied      = (*MetricsExtension)(nil)
	_ plugin.OnInsufficientFunds  = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records ledger-wide metrics.
// Register it as an engine plugin to track credit flows automatically.
type MetricsExtension struct {
	factory MetricFactory

	// Account metrics
	AccountsProvisioned Counter
	CreditsMinted       Counter

	// Posting metrics
	TransactionsPosted Counter
	PostingSize        Histogram

	// Settlement metrics
	SessionsSettled Counter
	SessionCredits  Histogram
	TaxCollected    Counter
	Donations       Counter
	DonatedCredits  Counter

	// Support metrics
	SupportGranted        Counter
	SupportGrantedCredits Counter
	SupportDenied         Counter

	// Rejection metrics
	InsufficientFunds Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Account metrics
		AccountsProvisioned: factory.Counter("credits.account.provisioned"),
		CreditsMinted:       factory.Counter("credits.account.initial_grant.credits"),

		// Posting metrics
		TransactionsPosted: factory.Counter("credits.transactions.posted"),
		PostingSize:        factory.Histogram("credits.posting.size"),

		// Settlement metrics
		SessionsSettled: factory.Counter("credits.session.settled"),
		SessionCredits:  factory.Histogram("credits.session.credits"),
		TaxCollected:    factory.Counter("credits.session.tax.credits"),
		Donations:       factory.Counter("credits.donation.received"),
		DonatedCredits:  factory.Counter("credits.donation.credits"),

		// Support metrics
		SupportGranted:        factory.Counter("credits.support.granted"),
		SupportGrantedCredits: factory.Counter("credits.support.granted.credits"),
		SupportDenied:         factory.Counter("credits.support.denied"),

		// Rejection metrics
		InsufficientFunds: factory.Counter("credits.funds.insufficient"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Account hooks
// ──────────────────────────────────────────────────

// OnAccountProvisioned implements plugin.OnAccountProvisioned.
func (m *MetricsExtension) OnAccountProvisioned(_ context.Context, a *account.Account) error {
	m.AccountsProvisioned.Inc()
	m.CreditsMinted.Add(float64(a.Balance))
	return nil
}

// ──────────────────────────────────────────────────
// Posting hooks
// ──────────────────────────────────────────────────

// OnTransactionsPosted implements plugin.OnTransactionsPosted.
func (m *MetricsExtension) OnTransactionsPosted(_ context.Context, p *transaction.Posting) error {
	n := float64(len(p.Transactions))
	m.TransactionsPosted.Add(n)
	m.PostingSize.Observe(n)
	return nil
}

// OnSessionSettled implements plugin.OnSessionSettled.
func (m *MetricsExtension) OnSessionSettled(_ context.Context, s *transaction.Settlement) error {
	m.SessionsSettled.Inc()
	m.SessionCredits.Observe(float64(s.Credits))
	m.TaxCollected.Add(float64(s.Tax))
	return nil
}

// OnDonationReceived implements plugin.OnDonationReceived.
func (m *MetricsExtension) OnDonationReceived(_ context.Context, _ id.AccountID, amount int64) error {
	m.Donations.Inc()
	m.DonatedCredits.Add(float64(amount))
	return nil
}

// ──────────────────────────────────────────────────
// Support hooks
// ──────────────────────────────────────────────────

// OnSupportGranted implements plugin.OnSupportGranted.
func (m *MetricsExtension) OnSupportGranted(_ context.Context, _ id.AccountID, amount int64) error {
	m.SupportGranted.Inc()
	m.SupportGrantedCredits.Add(float64(amount))
	return nil
}

// OnSupportDenied implements plugin.OnSupportDenied.
func (m *MetricsExtension) OnSupportDenied(_ context.Context, _ id.AccountID, _ string) error {
	m.SupportDenied.Inc()
	return nil
}

// OnInsufficientFunds implements plugin.OnInsufficientFunds.
func (m *MetricsExtension) OnInsufficientFunds(_ context.Context, _ id.AccountID, _, _ int64) error {
	m.InsufficientFunds.Inc()
	return nil
}
