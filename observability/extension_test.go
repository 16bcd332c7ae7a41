package observability_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/observability"
	"github.com/xraph/credits/transaction"
)

func TestMetricsExtension(t *testing.T) {
	reg := prometheus.NewRegistry()
	factory := observability.NewPrometheusFactory(reg)
	m := observability.NewMetricsExtension(factory)
	ctx := context.Background()

	a := account.New("owner", time.Now())
	a.Balance = 15
	_ = m.OnAccountProvisioned(ctx, a)
	_ = m.OnSessionSettled(ctx, &transaction.Settlement{Credits: 10, Tax: 1, PayeeAmount: 9})
	_ = m.OnSessionSettled(ctx, &transaction.Settlement{Credits: 20, Tax: 2, PayeeAmount: 18})
	_ = m.OnDonationReceived(ctx, a.ID, 5)
	_ = m.OnSupportGranted(ctx, a.ID, 6)
	_ = m.OnSupportDenied(ctx, a.ID, "balance too high")
	_ = m.OnInsufficientFunds(ctx, a.ID, 10, 2)
	_ = m.OnTransactionsPosted(ctx, &transaction.Posting{
		Transactions: []*transaction.Transaction{
			transaction.New(a.ID, -5, transaction.KindDonation, "d", time.Now()),
			transaction.New(id.BankAccountID, 5, transaction.KindDonation, "d", time.Now()),
		},
	})

	tests := []struct {
		name      string
		collector prometheus.Collector
		want      float64
	}{
		{"provisioned", m.AccountsProvisioned.(prometheus.Counter), 1},
		{"minted", m.CreditsMinted.(prometheus.Counter), 15},
		{"settled", m.SessionsSettled.(prometheus.Counter), 2},
		{"tax", m.TaxCollected.(prometheus.Counter), 3},
		{"donations", m.Donations.(prometheus.Counter), 1},
		{"donated", m.DonatedCredits.(prometheus.Counter), 5},
		{"support granted", m.SupportGrantedCredits.(prometheus.Counter), 6},
		{"support denied", m.SupportDenied.(prometheus.Counter), 1},
		{"insufficient", m.InsufficientFunds.(prometheus.Counter), 1},
		{"transactions", m.TransactionsPosted.(prometheus.Counter), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.collector); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPrometheusFactoryNaming(t *testing.T) {
	reg := prometheus.NewRegistry()
	factory := observability.NewPrometheusFactory(reg)

	c := factory.Counter("credits.session.settled")
	c.Inc()
	if again := factory.Counter("credits.session.settled"); again != c {
		t.Error("factory returned a new counter for the same name")
	}
	factory.Histogram("credits.posting.size").Observe(3)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	joined := strings.Join(names, ",")
	for _, want := range []string{"credits_session_settled_total", "credits_posting_size"} {
		if !strings.Contains(joined, want) {
			t.Errorf("registry missing %q: %s", want, joined)
		}
	}
}

func TestPrometheusFactorySharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := observability.NewPrometheusFactory(reg).Counter("credits.account.provisioned")
	second := observability.NewPrometheusFactory(reg).Counter("credits.account.provisioned")

	first.Inc()
	second.Inc()
	if got := testutil.ToFloat64(first.(prometheus.Counter)); got != 2 {
		t.Errorf("factories on one registry should share collectors, got %v", got)
	}
}

func TestPrometheusFactoryPanicsOnConflictingMetric(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{
		Name: "credits_support_denied_total",
		Help: "Registered elsewhere with another help string.",
	}))

	defer func() {
		if recover() == nil {
			t.Error("expected a panic for a conflicting metric")
		}
	}()
	observability.NewPrometheusFactory(reg).Counter("credits.support.denied")
}

func TestPrometheusFactoryReusesExternalCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	existing := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "credits_support_denied_total",
		Help: "Count of credits.support.denied.",
	})
	reg.MustRegister(existing)

	c := observability.NewPrometheusFactory(reg).Counter("credits.support.denied")
	c.Inc()
	if got := testutil.ToFloat64(existing); got != 1 {
		t.Errorf("existing collector = %v, want 1", got)
	}
}
