package domain_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/minibank/counter-service/internal/domain"
)

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status   domain.Status
		terminal bool
	}{
		{domain.StatusPending, false},
		{domain.StatusSuccess, true},
		{domain.StatusCancelled, true},
		{domain.StatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestSignedAmount(t *testing.T) {
	counter := &domain.Counter{ID: uuid.New(), Code: "Q001"}
	amount := decimal.NewFromInt(250)

	deposit := domain.NewCounterTransaction(domain.KindCounterDeposit, uuid.New(), amount, counter)
	if !deposit.SignedAmount().Equal(amount) {
		t.Errorf("deposit effect = %s, want %s", deposit.SignedAmount(), amount)
	}

	withdraw := domain.NewCounterTransaction(domain.KindCounterWithdraw, uuid.New(), amount, counter)
	if !withdraw.SignedAmount().Equal(amount.Neg()) {
		t.Errorf("withdraw effect = %s, want %s", withdraw.SignedAmount(), amount.Neg())
	}
}

func TestGenerateCodeFormat(t *testing.T) {
	at := time.Date(2025, time.March, 7, 12, 0, 0, 0, time.UTC)
	code := domain.GenerateCode("Q042", at)

	pattern := regexp.MustCompile(`^Q042-\d{6}-070325$`)
	if !pattern.MatchString(code) {
		t.Errorf("code %q does not match expected shape", code)
	}
}

func TestCloneIsolation(t *testing.T) {
	counter := &domain.Counter{ID: uuid.New(), Code: "Q001"}
	tx := domain.NewCounterTransaction(domain.KindCounterDeposit, uuid.New(), decimal.NewFromInt(10), counter)
	staff := uuid.New()
	at := time.Now().UTC()
	tx.AssignedStaffID = &staff
	tx.ResolvedAt = &at

	clone := tx.Clone()
	*clone.AssignedStaffID = uuid.New()
	*clone.ResolvedAt = at.Add(time.Hour)

	if *tx.AssignedStaffID != staff {
		t.Error("mutating a clone leaked into the original staff id")
	}
	if !tx.ResolvedAt.Equal(at) {
		t.Error("mutating a clone leaked into the original resolvedAt")
	}
}
