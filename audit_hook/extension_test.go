package audithook_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/xraph/credits/account"
	audithook "github.com/xraph/credits/audit_hook"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/transaction"
)

type captured struct {
	events []*audithook.AuditEvent
}

func (c *captured) recorder() audithook.Recorder {
	return audithook.RecorderFunc(func(_ context.Context, evt *audithook.AuditEvent) error {
		c.events = append(c.events, evt)
		return nil
	})
}

func TestExtensionRecordsEvents(t *testing.T) {
	c := &captured{}
	ext := audithook.New(c.recorder())
	ctx := context.Background()
	acct := account.New("owner-1", time.Now())

	if err := ext.OnAccountProvisioned(ctx, acct); err != nil {
		t.Fatal(err)
	}
	if err := ext.OnSupportDenied(ctx, acct.ID, "balance too high"); err != nil {
		t.Fatal(err)
	}
	if err := ext.OnInsufficientFunds(ctx, acct.ID, 10, 3); err != nil {
		t.Fatal(err)
	}

	if len(c.events) != 3 {
		t.Fatalf("got %d events, want 3", len(c.events))
	}

	provisioned := c.events[0]
	if provisioned.Action != audithook.ActionAccountProvisioned || provisioned.ResourceID != acct.ID.String() {
		t.Errorf("unexpected event %+v", provisioned)
	}
	if provisioned.Metadata["owner_id"] != "owner-1" {
		t.Errorf("owner metadata = %v", provisioned.Metadata["owner_id"])
	}

	denied := c.events[1]
	if denied.Outcome != audithook.OutcomeFailure || denied.Reason != "balance too high" {
		t.Errorf("unexpected denial %+v", denied)
	}

	shortfall := c.events[2]
	if shortfall.Severity != audithook.SeverityWarning || shortfall.Metadata["required"] != int64(10) {
		t.Errorf("unexpected shortfall %+v", shortfall)
	}
}

func TestExtensionPostingFansOut(t *testing.T) {
	c := &captured{}
	ext := audithook.New(c.recorder())
	now := time.Now()
	payer, payee := id.NewAccountID(), id.NewAccountID()

	posting := &transaction.Posting{
		Operation: transaction.OpSession,
		Transactions: []*transaction.Transaction{
			transaction.New(payer, -10, transaction.KindSessionPayment, "pay", now),
			transaction.New(payee, 9, transaction.KindSessionPayment, "earn", now),
			transaction.New(id.BankAccountID, 1, transaction.KindTax, "tax", now),
		},
	}
	if err := ext.OnTransactionsPosted(context.Background(), posting); err != nil {
		t.Fatal(err)
	}

	if len(c.events) != 3 {
		t.Fatalf("got %d events, want 3", len(c.events))
	}
	for i, evt := range c.events {
		if evt.ResourceID != posting.Transactions[i].ID.String() {
			t.Errorf("event %d resource = %q", i, evt.ResourceID)
		}
		if evt.Metadata["operation"] != "session" {
			t.Errorf("event %d operation = %v", i, evt.Metadata["operation"])
		}
	}
}

func TestActionFilters(t *testing.T) {
	ctx := context.Background()
	acctID := id.NewAccountID()

	t.Run("enabled", func(t *testing.T) {
		c := &captured{}
		ext := audithook.New(c.recorder(), audithook.WithEnabledActions(audithook.ActionSupportGranted))
		_ = ext.OnSupportGranted(ctx, acctID, 6)
		_ = ext.OnDonationReceived(ctx, acctID, 5)
		if len(c.events) != 1 || c.events[0].Action != audithook.ActionSupportGranted {
			t.Errorf("unexpected events %+v", c.events)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		c := &captured{}
		ext := audithook.New(c.recorder(), audithook.WithDisabledActions(audithook.ActionSupportGranted))
		_ = ext.OnSupportGranted(ctx, acctID, 6)
		_ = ext.OnDonationReceived(ctx, acctID, 5)
		if len(c.events) != 1 || c.events[0].Action != audithook.ActionDonationReceived {
			t.Errorf("unexpected events %+v", c.events)
		}
	})
}

func TestRecorderFailureIsSwallowed(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	failing := audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	})

	ext := audithook.New(failing, audithook.WithLogger(logger))
	if err := ext.OnDonationReceived(context.Background(), id.NewAccountID(), 1); err != nil {
		t.Fatalf("recorder failure leaked: %v", err)
	}
	if !strings.Contains(buf.String(), "backend down") {
		t.Errorf("failure not logged: %q", buf.String())
	}
}

func TestSlogRecorder(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ext := audithook.New(audithook.SlogRecorder(logger))

	acctID := id.NewAccountID()
	if err := ext.OnInsufficientFunds(context.Background(), acctID, 10, 2); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{"level=WARN", "action=funds.insufficient", "required=10", acctID.String()} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}
