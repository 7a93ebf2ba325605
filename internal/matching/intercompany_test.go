package matching

import (
	"testing"

	"github.com/phygrid/wiserecon/internal/domain"
)

func TestClassifyIntercompany(t *testing.T) {
	reg := testRegistry()

	tests := []struct {
		name       string
		tx         domain.BankTransaction
		wantIC     bool
		wantEntity string
	}{
		{
			name:       "counterparty name match",
			tx:         domain.BankTransaction{CounterpartyName: "OMBORI AG"},
			wantIC:     true,
			wantEntity: "Ombori AG",
		},
		{
			// S3: IBAN in the entity map identifies the counterparty.
			name:       "counterparty iban match",
			tx:         domain.BankTransaction{CounterpartyAccount: "BE82967831096568"},
			wantIC:     true,
			wantEntity: "Ombori AG",
		},
		{
			name:       "reference contains entity name",
			tx:         domain.BankTransaction{PaymentReference: "settlement Phygrid Limited Q2"},
			wantIC:     true,
			wantEntity: "Phygrid Limited",
		},
		{
			name:   "reference IC token",
			tx:     domain.BankTransaction{PaymentReference: "IC transfer March"},
			wantIC: true,
		},
		{
			name:   "ic inside word is not a token",
			tx:     domain.BankTransaction{PaymentReference: "PACIFIC invoice"},
			wantIC: false,
		},
		{
			name:   "external vendor",
			tx:     domain.BankTransaction{CounterpartyName: "AWS EMEA SARL", PaymentReference: "cloud bill"},
			wantIC: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyIntercompany(&tt.tx, reg)
			if got.IsIntercompany != tt.wantIC {
				t.Errorf("IsIntercompany = %v, want %v", got.IsIntercompany, tt.wantIC)
			}
			if tt.wantEntity != "" && got.CounterpartyEntity != tt.wantEntity {
				t.Errorf("CounterpartyEntity = %q, want %q", got.CounterpartyEntity, tt.wantEntity)
			}
		})
	}
}

func TestApplyIC(t *testing.T) {
	cands := []*domain.Candidate{{}, {}}
	ApplyIC(ICResult{IsIntercompany: true, CounterpartyEntity: "Ombori AG"}, cands)
	for _, c := range cands {
		if !c.IsIntercompany || c.CounterpartyEntity != "Ombori AG" {
			t.Errorf("candidate not stamped: %+v", c)
		}
	}
}
