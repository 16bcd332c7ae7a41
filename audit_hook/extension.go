// Package audithook bridges credit ledger events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import an
// audit system directly. Callers inject a RecorderFunc adapter at wiring
// time, or use SlogRecorder to write the trail to a structured logger.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/transaction"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin               = (*Extension)(nil)
	_ plugin.OnAccountProvisioned = (*Extension)(nil)
	_ plugin.OnTransactionsPosted = (*Extension)(nil)
	_ plugin.OnSessionSettled     = (*Extension)(nil)
	_ plugin.OnDonationReceived   = (*Extension)(nil)
	_ plugin.OnSupportGranted     = (*Extension)(nil)
	_ plugin.OnSupportDenied      = (*Extension)(nil)
	_ plugin.OnInsufficientFunds  = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges ledger events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Account hooks
// ──────────────────────────────────────────────────

// OnAccountProvisioned implements plugin.OnAccountProvisioned.
func (e *Extension) OnAccountProvisioned(ctx context.Context, a *account.Account) error {
	return e.record(ctx, ActionAccountProvisioned, SeverityInfo, OutcomeSuccess,
		ResourceAccount, a.ID.String(), CategoryAccount, nil,
		"owner_id", a.OwnerID,
		"balance", a.Balance,
	)
}

// ──────────────────────────────────────────────────
// Posting hooks
// ──────────────────────────────────────────────────

// OnTransactionsPosted implements plugin.OnTransactionsPosted.
// Every entry of the posting becomes its own audit event so the trail can
// be replayed per account.
func (e *Extension) OnTransactionsPosted(ctx context.Context, p *transaction.Posting) error {
	for _, t := range p.Transactions {
		if err := e.record(ctx, ActionTransactionsPosted, SeverityInfo, OutcomeSuccess,
			ResourceTransaction, t.ID.String(), CategorySettlement, nil,
			"operation", string(p.Operation),
			"account_id", t.AccountID.String(),
			"amount", t.Amount,
			"kind", string(t.Kind),
		); err != nil {
			return err
		}
	}
	return nil
}

// OnSessionSettled implements plugin.OnSessionSettled.
func (e *Extension) OnSessionSettled(ctx context.Context, s *transaction.Settlement) error {
	return e.record(ctx, ActionSessionSettled, SeverityInfo, OutcomeSuccess,
		ResourceSession, s.Payer.String(), CategorySettlement, nil,
		"payer", s.Payer.String(),
		"payee", s.Payee.String(),
		"minutes", s.Minutes,
		"credits", s.Credits,
		"tax", s.Tax,
	)
}

// OnDonationReceived implements plugin.OnDonationReceived.
func (e *Extension) OnDonationReceived(ctx context.Context, donor id.AccountID, amount int64) error {
	return e.record(ctx, ActionDonationReceived, SeverityInfo, OutcomeSuccess,
		ResourceAccount, donor.String(), CategorySettlement, nil,
		"amount", amount,
	)
}

// ──────────────────────────────────────────────────
// Support hooks
// ──────────────────────────────────────────────────

// OnSupportGranted implements plugin.OnSupportGranted.
func (e *Extension) OnSupportGranted(ctx context.Context, accountID id.AccountID, amount int64) error {
	return e.record(ctx, ActionSupportGranted, SeverityInfo, OutcomeSuccess,
		ResourceAccount, accountID.String(), CategorySupport, nil,
		"amount", amount,
	)
}

// OnSupportDenied implements plugin.OnSupportDenied.
func (e *Extension) OnSupportDenied(ctx context.Context, accountID id.AccountID, reason string) error {
	return e.record(ctx, ActionSupportDenied, SeverityInfo, OutcomeFailure,
		ResourceAccount, accountID.String(), CategorySupport, fmt.Errorf("%s", reason),
	)
}

// OnInsufficientFunds implements plugin.OnInsufficientFunds.
func (e *Extension) OnInsufficientFunds(ctx context.Context, accountID id.AccountID, required, available int64) error {
	return e.record(ctx, ActionInsufficientFunds, SeverityWarning, OutcomeFailure,
		ResourceAccount, accountID.String(), CategoryAccess, nil,
		"required", required,
		"available", available,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
