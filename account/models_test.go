package account_test

import (
	"testing"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
)

func TestCanAfford(t *testing.T) {
	now := time.Now()
	user := account.New("user-1", now)
	user.Balance = 5
	bank := account.NewBank(id.BankAccountID, now)

	tests := []struct {
		name   string
		acct   *account.Account
		amount int64
		want   bool
	}{
		{"exact balance", user, 5, true},
		{"below balance", user, 1, true},
		{"above balance", user, 6, false},
		{"bank with zero balance", bank, 100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.acct.CanAfford(tt.amount); got != tt.want {
				t.Errorf("CanAfford(%d) = %v, want %v", tt.amount, got, tt.want)
			}
		})
	}
}

func TestCloneCopiesLastGrant(t *testing.T) {
	grant := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := account.New("user-1", grant)
	a.LastGrantAt = &grant

	c := a.Clone()
	*c.LastGrantAt = grant.Add(time.Hour)
	c.Balance = 99

	if !a.LastGrantAt.Equal(grant) {
		t.Errorf("clone shares LastGrantAt with original: %v", a.LastGrantAt)
	}
	if a.Balance != 0 {
		t.Errorf("clone shares balance with original: %d", a.Balance)
	}
	if (*account.Account)(nil).Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestNewAccounts(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	a := account.New("owner", now)
	if a.ID.Prefix() != id.PrefixAccount {
		t.Errorf("unexpected prefix %q", a.ID.Prefix())
	}
	if a.Bank {
		t.Error("user account marked as bank")
	}
	if a.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt not UTC: %v", a.CreatedAt)
	}

	b := account.NewBank(id.BankAccountID, now)
	if !b.Bank || b.ID != id.BankAccountID {
		t.Errorf("unexpected bank account %+v", b)
	}
}
