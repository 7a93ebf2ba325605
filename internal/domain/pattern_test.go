package domain

import "testing"

func TestPattern_Matches(t *testing.T) {
	tx := &BankTransaction{
		CounterpartyName: "Acme Ltd",
		PaymentReference: "INV-2024-001 payment",
		Description:      "Monthly hosting bill",
		MerchantName:     "AWS EMEA",
	}

	tests := []struct {
		name    string
		pattern Pattern
		want    bool
	}{
		{"counterparty substring", Pattern{Kind: PatternCounterparty, Value: "acme", Active: true}, true},
		{"merchant ignored when counterparty set", Pattern{Kind: PatternCounterparty, Value: "aws", Active: true}, false},
		{"reference regex", Pattern{Kind: PatternReference, Value: `INV[-/]\d{4}[-/]\d+`, IsRegex: true, Active: true}, true},
		{"description substring", Pattern{Kind: PatternDescription, Value: "hosting", Active: true}, true},
		{"inactive never matches", Pattern{Kind: PatternCounterparty, Value: "acme", Active: false}, false},
		{"invalid regex never matches", Pattern{Kind: PatternReference, Value: "(", IsRegex: true, Active: true}, false},
		{"amount range not evaluated here", Pattern{Kind: PatternAmountRange, Value: "100-200", Active: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pattern.Matches(tx); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPattern_MatchesMerchantWhenNoCounterparty(t *testing.T) {
	tx := &BankTransaction{MerchantName: "AWS EMEA"}
	p := Pattern{Kind: PatternCounterparty, Value: "aws", Active: true}
	if !p.Matches(tx) {
		t.Error("expected merchant fallback match for card transaction")
	}
}

func TestPattern_Promote(t *testing.T) {
	p := &Pattern{Boost: PatternBoostInitial, TimesApproved: 10, Active: true}
	if !p.Promote() {
		t.Fatal("expected promotion at 10 approvals")
	}
	if !p.Boost.Equal(d("0.15")) {
		t.Errorf("Boost = %s, want 0.15", p.Boost)
	}
	if !p.AutoApprove {
		t.Error("expected auto-approve with zero rejections")
	}

	// Boost caps at 0.25.
	p.Boost = PatternBoostMax
	p.Promote()
	if !p.Boost.Equal(PatternBoostMax) {
		t.Errorf("Boost = %s, want capped at %s", p.Boost, PatternBoostMax)
	}
}

func TestPattern_PromoteBlockedByRejections(t *testing.T) {
	// 1 rejection out of 21 reviews is under 5%: boost steps up but
	// auto-approve stays off.
	p := &Pattern{Boost: PatternBoostInitial, TimesApproved: 20, TimesRejected: 1, Active: true}
	if !p.Promote() {
		t.Fatal("expected boost promotion at 4.8% rejection rate")
	}
	if p.AutoApprove {
		t.Error("auto-approve must require zero rejections")
	}

	high := &Pattern{Boost: PatternBoostInitial, TimesApproved: 10, TimesRejected: 1, Active: true}
	if high.Promote() {
		t.Error("rejection rate 1/11 exceeds 5%, promotion must not happen")
	}
}

func TestPattern_RecordRejectionDeactivates(t *testing.T) {
	p := &Pattern{Active: true}
	p.RecordRejection()
	p.RecordRejection()
	if !p.Active {
		t.Fatal("deactivated too early")
	}
	p.RecordRejection()
	if p.Active {
		t.Error("expected deactivation at 3 rejections")
	}
}

func TestPattern_RevokeApprovalFloorsAtZero(t *testing.T) {
	p := &Pattern{}
	p.RevokeApproval()
	if p.TimesApproved != 0 {
		t.Errorf("TimesApproved = %d, want 0", p.TimesApproved)
	}
	p.RecordApproval()
	p.RevokeApproval()
	if p.TimesApproved != 0 {
		t.Errorf("TimesApproved = %d, want 0", p.TimesApproved)
	}
}
