package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestMatchStatus_CanTransition(t *testing.T) {
	tests := []struct {
		name string
		from MatchStatus
		to   MatchStatus
		want bool
	}{
		{"pending to submitted", StatusPending, StatusSubmitted, true},
		{"pending to matched", StatusPending, StatusMatched, true},
		{"submitted to matched", StatusSubmitted, StatusMatched, true},
		{"submitted to unmatched", StatusSubmitted, StatusUnmatched, true},
		{"submitted rollback to pending", StatusSubmitted, StatusPending, true},
		{"matched to pending", StatusMatched, StatusPending, false},
		{"matched to submitted", StatusMatched, StatusSubmitted, false},
		{"unmatched to pending", StatusUnmatched, StatusPending, false},
		{"same status", StatusSubmitted, StatusSubmitted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestBankTransaction_RecordAttempt(t *testing.T) {
	tx := &BankTransaction{Reference: "TRANSFER-1"}
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	tx.RecordAttempt(decimal.RequireFromString("0.85"), now)
	tx.RecordAttempt(decimal.RequireFromString("0.60"), now.Add(time.Hour))

	if tx.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", tx.Attempts)
	}
	// BestConfidence is the max observed, not the last.
	if !tx.BestConfidence.Equal(decimal.RequireFromString("0.85")) {
		t.Errorf("BestConfidence = %s, want 0.85", tx.BestConfidence)
	}
	if tx.LastAttemptAt == nil || !tx.LastAttemptAt.Equal(now.Add(time.Hour)) {
		t.Errorf("LastAttemptAt = %v, want %v", tx.LastAttemptAt, now.Add(time.Hour))
	}
}

func TestBankTransaction_SourceAmount(t *testing.T) {
	from := decimal.RequireFromString("1000.00")
	tx := &BankTransaction{
		Amount:       decimal.RequireFromString("1020.00"),
		Currency:     "USD",
		FromAmount:   &from,
		FromCurrency: "EUR",
	}
	if !tx.CrossCurrency() {
		t.Fatal("expected cross-currency")
	}
	if !tx.SourceAmount().Equal(from) {
		t.Errorf("SourceAmount = %s, want %s", tx.SourceAmount(), from)
	}

	same := &BankTransaction{Amount: decimal.RequireFromString("50.00"), Currency: "EUR"}
	if same.CrossCurrency() {
		t.Error("same-currency tx reported as cross-currency")
	}
	if !same.SourceAmount().Equal(same.Amount) {
		t.Errorf("SourceAmount = %s, want %s", same.SourceAmount(), same.Amount)
	}
}
