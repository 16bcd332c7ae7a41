package transaction_test

import (
	"testing"
	"time"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/transaction"
)

func TestKindValid(t *testing.T) {
	for _, k := range transaction.Kinds() {
		if !k.Valid() {
			t.Errorf("%q should be valid", k)
		}
	}
	for _, k := range []transaction.Kind{"", "REFUND", "session_payment"} {
		if k.Valid() {
			t.Errorf("%q should be invalid", k)
		}
	}
}

func TestPostingNetAndFor(t *testing.T) {
	now := time.Now()
	payer, payee := id.NewAccountID(), id.NewAccountID()
	p := &transaction.Posting{
		Operation: transaction.OpSession,
		Transactions: []*transaction.Transaction{
			transaction.New(payer, -10, transaction.KindSessionPayment, "pay", now),
			transaction.New(payee, 9, transaction.KindSessionPayment, "earn", now),
			transaction.New(id.BankAccountID, 1, transaction.KindTax, "tax", now),
		},
	}

	if got := p.Net(); got != 0 {
		t.Errorf("Net() = %d, want 0", got)
	}
	if got := p.For(payee); len(got) != 1 || got[0].Amount != 9 {
		t.Errorf("For(payee) = %+v", got)
	}
	if got := p.For(id.NewAccountID()); len(got) != 0 {
		t.Errorf("For(unknown) = %+v", got)
	}
}
