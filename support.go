package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/transaction"
)

// Support grant rules.
const (
	// SupportCooldownDays is the number of whole days between two grants.
	SupportCooldownDays = 7

	// ReasonBalanceTooHigh is reported when the balance is above every tier.
	ReasonBalanceTooHigh = "balance too high"

	descSupportGrant = "Support grant"
)

// supportTiers maps the highest balance of a tier to the credits it grants.
// Balances above the last tier are not eligible.
var supportTiers = []struct {
	maxBalance int64
	amount     int64
}{
	{0, 6},
	{2, 4},
	{3, 2},
}

// Eligibility is the outcome of a support check.
type Eligibility struct {
	Eligible bool   `json:"eligible"`
	Amount   int64  `json:"amount"`
	Reason   string `json:"reason,omitempty"`
}

// EvaluateSupport decides whether acct may claim support credits at now.
// It is a pure function of the account state and the clock.
func EvaluateSupport(acct *account.Account, now time.Time) Eligibility {
	if acct.LastGrantAt != nil {
		elapsed := now.Sub(*acct.LastGrantAt)
		if elapsed < 0 {
			elapsed = 0
		}
		days := int(elapsed / (24 * time.Hour))
		if days < SupportCooldownDays {
			return Eligibility{Reason: cooldownReason(SupportCooldownDays - days)}
		}
	}

	for _, tier := range supportTiers {
		if acct.Balance <= tier.maxBalance {
			return Eligibility{Eligible: true, Amount: tier.amount}
		}
	}
	return Eligibility{Reason: ReasonBalanceTooHigh}
}

func cooldownReason(remaining int) string {
	unit := "days"
	if remaining == 1 {
		unit = "day"
	}
	return fmt.Sprintf("Cooldown active: %d %s remaining", remaining, unit)
}

// CheckSupportEligibility reports whether accountID may claim support
// credits at now. It has no side effects.
func (e *Engine) CheckSupportEligibility(ctx context.Context, accountID id.AccountID, now time.Time) (*Eligibility, error) {
	if accountID == e.bankID {
		return nil, ErrBankAccount
	}
	a, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if a.Bank {
		return nil, ErrBankAccount
	}

	el := EvaluateSupport(a, now)
	return &el, nil
}

// ClaimSupportCredits grants support credits to accountID, paid by the bank.
// Eligibility is re-evaluated under the account lock so two concurrent
// claims can never both succeed. It returns a *NotEligibleError when the
// claim is refused.
func (e *Engine) ClaimSupportCredits(ctx context.Context, accountID id.AccountID, now time.Time) (int64, error) {
	if accountID == e.bankID {
		return 0, ErrBankAccount
	}

	txns, amount, err := e.transferFromBank(ctx, accountID, transaction.KindSupportGrant, descSupportGrant, func(a *account.Account) (int64, error) {
		el := EvaluateSupport(a, now)
		if !el.Eligible {
			return 0, &NotEligibleError{Reason: el.Reason}
		}
		granted := now.UTC()
		a.LastGrantAt = &granted
		return el.Amount, nil
	})
	if err != nil {
		var ne *NotEligibleError
		if errors.As(err, &ne) {
			e.plugins.EmitSupportDenied(ctx, accountID, ne.Reason)
		}
		return 0, fmt.Errorf("claim support credits for %s: %w", accountID, err)
	}

	e.logger.Debug("support credits granted",
		"account_id", accountID.String(),
		"amount", amount,
	)

	e.plugins.EmitSupportGranted(ctx, accountID, amount)
	e.emitPosting(ctx, transaction.OpSupport, txns, now)

	return amount, nil
}
