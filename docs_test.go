package credits_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/transaction"
)

// TestDocumentationExamples verifies that the package documentation walkthrough works.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()

		engine := credits.New(store,
			credits.WithLogger(slog.Default()),
			credits.WithLockTimeout(2*time.Second),
		)

		ctx := context.Background()
		if err := engine.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer engine.Stop()

		learner, err := engine.ProvisionAccount(ctx, "learner@example.com")
		if err != nil {
			t.Fatal(err)
		}
		mentor, err := engine.ProvisionAccount(ctx, "mentor@example.com")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := engine.AwardBounty(ctx, learner.ID, 85, "welcome bonus"); err != nil {
			t.Fatal(err)
		}

		charged, err := engine.SettleSession(ctx, learner.ID, mentor.ID, 50)
		if err != nil {
			t.Fatal(err)
		}
		if charged != 10 {
			t.Errorf("charged %d, want 10", charged)
		}

		assertBalance(t, engine, learner.ID, 90)
		assertBalance(t, engine, mentor.ID, 24)

		if _, err := engine.Donate(ctx, mentor.ID, 5); err != nil {
			t.Fatal(err)
		}
		assertBalance(t, engine, mentor.ID, 19)
	})
}

// recorder captures every hook the engine emits.
type recorder struct {
	mu          sync.Mutex
	inits       int
	shutdowns   int
	provisioned []*account.Account
	postings    []*transaction.Posting
	settled     []*transaction.Settlement
	donations   map[id.AccountID]int64
	granted     map[id.AccountID]int64
	denied      []string
	shortfalls  [][2]int64
}

func newRecorder() *recorder {
	return &recorder{
		donations: make(map[id.AccountID]int64),
		granted:   make(map[id.AccountID]int64),
	}
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnInit(context.Context, any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inits++
	return nil
}

func (r *recorder) OnShutdown(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdowns++
	return nil
}

func (r *recorder) OnAccountProvisioned(_ context.Context, a *account.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.provisioned = append(r.provisioned, a)
	return nil
}

func (r *recorder) OnTransactionsPosted(_ context.Context, p *transaction.Posting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.postings = append(r.postings, p)
	return nil
}

func (r *recorder) OnSessionSettled(_ context.Context, s *transaction.Settlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settled = append(r.settled, s)
	return nil
}

func (r *recorder) OnDonationReceived(_ context.Context, donor id.AccountID, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.donations[donor] += amount
	return nil
}

func (r *recorder) OnSupportGranted(_ context.Context, accountID id.AccountID, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.granted[accountID] += amount
	return nil
}

func (r *recorder) OnSupportDenied(_ context.Context, _ id.AccountID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.denied = append(r.denied, reason)
	return nil
}

func (r *recorder) OnInsufficientFunds(_ context.Context, _ id.AccountID, required, available int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shortfalls = append(r.shortfalls, [2]int64{required, available})
	return nil
}

func TestPluginHooks(t *testing.T) {
	rec := newRecorder()
	e, clock := newTestEngine(t, credits.WithPlugin(rec))
	ctx := context.Background()

	payer := provision(t, e, "payer", 12)
	payee := provision(t, e, "payee", 0)

	if _, err := e.SettleSession(ctx, payer, payee, 50); err != nil {
		t.Fatalf("SettleSession: %v", err)
	}
	if _, err := e.SettleSession(ctx, payer, payee, 50); err == nil {
		t.Fatal("expected insufficient funds")
	}
	if _, err := e.ClaimSupportCredits(ctx, payee, clock.Now()); err == nil {
		t.Fatal("expected balance too high")
	}
	if _, err := e.Donate(ctx, payer, 2); err != nil {
		t.Fatalf("Donate: %v", err)
	}
	if _, err := e.ClaimSupportCredits(ctx, payer, clock.Now()); err != nil {
		t.Fatalf("ClaimSupportCredits: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.inits != 1 {
		t.Errorf("OnInit called %d times", rec.inits)
	}
	if len(rec.provisioned) != 2 {
		t.Errorf("OnAccountProvisioned called %d times", len(rec.provisioned))
	}
	if len(rec.settled) != 1 || rec.settled[0].Credits != 10 || rec.settled[0].Tax != 1 {
		t.Errorf("unexpected settlements %+v", rec.settled)
	}
	if len(rec.shortfalls) != 1 || rec.shortfalls[0] != [2]int64{10, 2} {
		t.Errorf("unexpected shortfalls %+v", rec.shortfalls)
	}
	if len(rec.denied) != 1 || rec.denied[0] != credits.ReasonBalanceTooHigh {
		t.Errorf("unexpected denials %+v", rec.denied)
	}
	if rec.granted[payer] != 6 {
		t.Errorf("granted %d to payer, want 6", rec.granted[payer])
	}
	if rec.donations[payer] < 2 {
		t.Errorf("donation hook missed: %+v", rec.donations)
	}
	for _, p := range rec.postings {
		switch p.Operation {
		case transaction.OpSession, transaction.OpDonation, transaction.OpSupport, transaction.OpBounty, transaction.OpPenalty:
			if p.Net() != 0 {
				t.Errorf("%s posting nets to %d", p.Operation, p.Net())
			}
		}
	}
}
