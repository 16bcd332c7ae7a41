package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/transaction"
)

// Settlement rates.
const (
	// MinutesPerCredit is the length of session time one credit buys.
	MinutesPerCredit int64 = 5
	// TaxPercent is the platform's share of every session payment.
	TaxPercent int64 = 10
)

// Transaction descriptions.
const (
	descSessionPayment = "Payment for %d min session"
	descSessionEarning = "Earned from %d min session"
	descSessionTax     = "Platform tax on %d min session"
	descDonation       = "Donation to the platform"
	descBountyDefault  = "Bounty reward"
	descPenaltyDefault = "Penalty"
)

// QuoteSession computes the settlement of a session of the given length
// without touching any account. Credits is floor(minutes / 5) and tax is
// floor(credits * 10%). Sessions worth no credit quote to all zeros.
func QuoteSession(minutes int64) transaction.Settlement {
	s := transaction.Settlement{Minutes: minutes}

	credits := floorDiv(minutes, MinutesPerCredit)
	if credits <= 0 {
		return s
	}

	s.Credits = credits
	// Split on hundreds so credits*TaxPercent cannot overflow.
	s.Tax = credits/100*TaxPercent + credits%100*TaxPercent/100
	s.PayeeAmount = credits - s.Tax
	return s
}

// floorDiv rounds toward negative infinity, unlike Go's / operator.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// SettleSession moves the cost of a completed session from payer to payee
// and the platform tax to the bank. It returns the credits charged, which
// is zero (with nothing written) for sessions too short to cost anything.
func (e *Engine) SettleSession(ctx context.Context, payer, payee id.AccountID, minutes int64) (int64, error) {
	if payer == payee {
		return 0, ErrSameAccount
	}
	if payer == e.bankID || payee == e.bankID {
		return 0, ErrBankAccount
	}

	quote := QuoteSession(minutes)
	if quote.Credits <= 0 {
		return 0, nil
	}
	quote.Payer, quote.Payee = payer, payee

	var (
		txns      []*transaction.Transaction
		available int64
	)
	var now time.Time

	err := e.atomic(ctx, []id.AccountID{payer, payee, e.bankID}, func(ctx context.Context, tx store.Tx) error {
		txns, available = nil, 0
		now = e.now()

		from, err := tx.Account(ctx, payer)
		if err != nil {
			return err
		}
		to, err := tx.Account(ctx, payee)
		if err != nil {
			return err
		}
		if from.Bank || to.Bank {
			return ErrBankAccount
		}
		if !from.CanAfford(quote.Credits) {
			available = from.Balance
			return ErrInsufficientFunds
		}

		t, err := e.post(ctx, tx, from, -quote.Credits, transaction.KindSessionPayment, fmt.Sprintf(descSessionPayment, minutes), now)
		if err != nil {
			return err
		}
		txns = append(txns, t)

		if quote.PayeeAmount > 0 {
			t, err = e.post(ctx, tx, to, quote.PayeeAmount, transaction.KindSessionPayment, fmt.Sprintf(descSessionEarning, minutes), now)
			if err != nil {
				return err
			}
			txns = append(txns, t)
		}

		if quote.Tax > 0 {
			b, err := e.bank(ctx, tx)
			if err != nil {
				return err
			}
			t, err = e.post(ctx, tx, b, quote.Tax, transaction.KindTax, fmt.Sprintf(descSessionTax, minutes), now)
			if err != nil {
				return err
			}
			txns = append(txns, t)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			e.plugins.EmitInsufficientFunds(ctx, payer, quote.Credits, available)
		}
		return 0, fmt.Errorf("settle session %s -> %s: %w", payer, payee, err)
	}

	e.logger.Debug("session settled",
		"payer", payer.String(),
		"payee", payee.String(),
		"minutes", minutes,
		"credits", quote.Credits,
		"tax", quote.Tax,
	)

	e.plugins.EmitSessionSettled(ctx, &quote)
	e.emitPosting(ctx, transaction.OpSession, txns, now)

	return quote.Credits, nil
}

// Donate moves amount credits from donor to the bank.
func (e *Engine) Donate(ctx context.Context, donor id.AccountID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if donor == e.bankID {
		return 0, ErrBankAccount
	}

	txns, available, err := e.transferToBank(ctx, donor, amount, transaction.KindDonation, descDonation)
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			e.plugins.EmitInsufficientFunds(ctx, donor, amount, available)
		}
		return 0, fmt.Errorf("donate from %s: %w", donor, err)
	}

	e.logger.Debug("donation received",
		"account_id", donor.String(),
		"amount", amount,
	)

	e.plugins.EmitDonationReceived(ctx, donor, amount)
	e.emitPosting(ctx, transaction.OpDonation, txns, e.now())

	return amount, nil
}

// AwardBounty pays amount credits from the bank to accountID. The bank may
// go negative.
func (e *Engine) AwardBounty(ctx context.Context, accountID id.AccountID, amount int64, description string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if accountID == e.bankID {
		return 0, ErrBankAccount
	}
	if description == "" {
		description = descBountyDefault
	}

	txns, _, err := e.transferFromBank(ctx, accountID, transaction.KindBountyReward, description, func(*account.Account) (int64, error) {
		return amount, nil
	})
	if err != nil {
		return 0, fmt.Errorf("award bounty to %s: %w", accountID, err)
	}

	e.logger.Debug("bounty awarded",
		"account_id", accountID.String(),
		"amount", amount,
	)

	e.emitPosting(ctx, transaction.OpBounty, txns, e.now())
	return amount, nil
}

// Penalize moves amount credits from accountID to the bank. Like any other
// debit it never overdraws a regular account.
func (e *Engine) Penalize(ctx context.Context, accountID id.AccountID, amount int64, description string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if accountID == e.bankID {
		return 0, ErrBankAccount
	}
	if description == "" {
		description = descPenaltyDefault
	}

	txns, available, err := e.transferToBank(ctx, accountID, amount, transaction.KindPenalty, description)
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			e.plugins.EmitInsufficientFunds(ctx, accountID, amount, available)
		}
		return 0, fmt.Errorf("penalize %s: %w", accountID, err)
	}

	e.logger.Debug("penalty applied",
		"account_id", accountID.String(),
		"amount", amount,
	)

	e.emitPosting(ctx, transaction.OpPenalty, txns, e.now())
	return amount, nil
}

// transferToBank debits from and credits the bank with two entries of kind.
// On ErrInsufficientFunds it also reports the balance that was available.
func (e *Engine) transferToBank(ctx context.Context, from id.AccountID, amount int64, kind transaction.Kind, desc string) ([]*transaction.Transaction, int64, error) {
	var (
		txns      []*transaction.Transaction
		available int64
	)
	var now time.Time

	err := e.atomic(ctx, []id.AccountID{from, e.bankID}, func(ctx context.Context, tx store.Tx) error {
		txns, available = nil, 0
		now = e.now()

		src, err := tx.Account(ctx, from)
		if err != nil {
			return err
		}
		if src.Bank {
			return ErrBankAccount
		}
		if !src.CanAfford(amount) {
			available = src.Balance
			return ErrInsufficientFunds
		}
		b, err := e.bank(ctx, tx)
		if err != nil {
			return err
		}

		debit, err := e.post(ctx, tx, src, -amount, kind, desc, now)
		if err != nil {
			return err
		}
		credit, err := e.post(ctx, tx, b, amount, kind, desc, now)
		if err != nil {
			return err
		}
		txns = []*transaction.Transaction{debit, credit}
		return nil
	})
	return txns, available, err
}

// transferFromBank credits to and debits the bank with two entries of kind.
// amount runs against the locked recipient before anything is written. It
// decides how much to pay and may update other fields of the recipient,
// which are persisted by the credit posting.
func (e *Engine) transferFromBank(ctx context.Context, to id.AccountID, kind transaction.Kind, desc string, amount func(a *account.Account) (int64, error)) ([]*transaction.Transaction, int64, error) {
	var (
		txns []*transaction.Transaction
		paid int64
	)
	var now time.Time

	err := e.atomic(ctx, []id.AccountID{to, e.bankID}, func(ctx context.Context, tx store.Tx) error {
		txns, paid = nil, 0
		now = e.now()

		dst, err := tx.Account(ctx, to)
		if err != nil {
			return err
		}
		if dst.Bank {
			return ErrBankAccount
		}
		n, err := amount(dst)
		if err != nil {
			return err
		}
		b, err := e.bank(ctx, tx)
		if err != nil {
			return err
		}

		credit, err := e.post(ctx, tx, dst, n, kind, desc, now)
		if err != nil {
			return err
		}
		debit, err := e.post(ctx, tx, b, -n, kind, desc, now)
		if err != nil {
			return err
		}
		txns, paid = []*transaction.Transaction{credit, debit}, n
		return nil
	})
	return txns, paid, err
}
