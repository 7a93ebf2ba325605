package matching

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/phygrid/wiserecon/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testRegistry() *domain.EntityRegistry {
	return domain.NewEntityRegistry([]domain.Entity{
		{
			Key:          "phygrid-uk",
			ProfileID:    19941830,
			SubsidiaryID: 3,
			DisplayName:  "Phygrid Limited",
			KnownIBANs:   []string{"GB29NWBK60161331926819"},
		},
		{
			Key:          "ombori-ch",
			ProfileID:    47253364,
			SubsidiaryID: 7,
			DisplayName:  "Ombori AG",
			KnownIBANs:   []string{"BE82967831096568"},
		},
	})
}

func TestExactMatcher_AllSignals(t *testing.T) {
	// S1: amount to the cent, same day, reference contains the GL id.
	tx := &domain.BankTransaction{
		Reference:        "TRANSFER-100",
		Amount:           dec("1234.56"),
		Currency:         "EUR",
		OccurredAt:       day(2025, 3, 10),
		PaymentReference: "INV-7788",
		CounterpartyName: "Acme Ltd",
	}
	entries := []domain.GLEntry{{
		TransactionID: "INV-7788",
		LineID:        1,
		Amount:        dec("1234.56"),
		Currency:      "EUR",
		Date:          day(2025, 3, 10),
		EntityName:    "Phygrid Limited",
	}}

	cands, err := NewExactMatcher().Match(context.Background(), Input{Tx: tx, Entries: entries, Entities: testRegistry()}, nil)
	require.NoError(t, err)
	require.Len(t, cands, 1)

	c := cands[0]
	require.True(t, c.Score.Equal(dec("1.00")), "score = %s", c.Score)
	require.Equal(t, domain.TierExact, c.Tier)
	require.Contains(t, c.Reasons, "amount-exact")
	require.Contains(t, c.Reasons, "date-exact")
	require.Contains(t, c.Reasons, "reference-match")
}

func TestExactMatcher_IBANSignal(t *testing.T) {
	tx := &domain.BankTransaction{
		Reference:           "TRANSFER-101",
		Amount:              dec("500.00"),
		OccurredAt:          day(2025, 3, 10),
		CounterpartyAccount: "BE82 9678 3109 6568",
	}
	entries := []domain.GLEntry{{
		TransactionID: "JE-42",
		Amount:        dec("500.00"),
		Date:          day(2025, 3, 11),
	}}

	cands, err := NewExactMatcher().Match(context.Background(), Input{Tx: tx, Entries: entries, Entities: testRegistry()}, nil)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.True(t, cands[0].Score.Equal(dec("0.95")))
	require.Contains(t, cands[0].Reasons, "iban-match")
	require.Contains(t, cands[0].Reasons, "date-within-1-day")
}

func TestExactMatcher_AmountDateOnly(t *testing.T) {
	tx := &domain.BankTransaction{
		Reference:  "TRANSFER-102",
		Amount:     dec("75.25"),
		OccurredAt: day(2025, 3, 10),
	}
	entries := []domain.GLEntry{{TransactionID: "JE-1", Amount: dec("75.25"), Date: day(2025, 3, 10)}}

	cands, err := NewExactMatcher().Match(context.Background(), Input{Tx: tx, Entries: entries}, nil)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.True(t, cands[0].Score.Equal(dec("0.90")))
}

func TestExactMatcher_Boundaries(t *testing.T) {
	base := func() *domain.BankTransaction {
		return &domain.BankTransaction{Reference: "T", Amount: dec("10.00"), OccurredAt: day(2025, 3, 10)}
	}

	tests := []struct {
		name  string
		entry domain.GLEntry
		hit   bool
	}{
		{"cent boundary fails", domain.GLEntry{TransactionID: "A", Amount: dec("10.01"), Date: day(2025, 3, 10)}, false},
		{"one day drift passes", domain.GLEntry{TransactionID: "B", Amount: dec("10.00"), Date: day(2025, 3, 11)}, true},
		{"two day drift fails", domain.GLEntry{TransactionID: "C", Amount: dec("10.00"), Date: day(2025, 3, 12)}, false},
		{"debit sign ignored", domain.GLEntry{TransactionID: "D", Amount: dec("-10.00"), Date: day(2025, 3, 10)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cands, err := NewExactMatcher().Match(context.Background(), Input{Tx: base(), Entries: []domain.GLEntry{tt.entry}}, nil)
			require.NoError(t, err)
			require.Equal(t, tt.hit, len(cands) == 1)
		})
	}
}

func TestExactMatcher_NumericTokenOverlap(t *testing.T) {
	// The reference carries only the invoice number; the GL id carries a
	// prefix. The shared digit run still counts as a reference match.
	tx := &domain.BankTransaction{
		Reference:        "TRANSFER-104",
		Amount:           dec("310.00"),
		OccurredAt:       day(2025, 3, 10),
		PaymentReference: "Payment 7788",
	}
	entries := []domain.GLEntry{{
		TransactionID: "INV-7788",
		Amount:        dec("310.00"),
		Date:          day(2025, 3, 10),
	}}

	cands, err := NewExactMatcher().Match(context.Background(), Input{Tx: tx, Entries: entries}, nil)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.True(t, cands[0].Score.Equal(dec("1.00")))
	require.Contains(t, cands[0].Reasons, "reference-match")

	// Disjoint digit runs stay an amount+date-only match.
	tx.PaymentReference = "Payment 9999"
	cands, err = NewExactMatcher().Match(context.Background(), Input{Tx: tx, Entries: entries}, nil)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.True(t, cands[0].Score.Equal(dec("0.90")))
}

func TestExactMatcher_PatternSignal(t *testing.T) {
	tx := &domain.BankTransaction{
		Reference:        "TRANSFER-103",
		Amount:           dec("99.00"),
		OccurredAt:       day(2025, 3, 10),
		CounterpartyName: "Acme Ltd",
	}
	entries := []domain.GLEntry{{TransactionID: "JE-9", AccountID: 210, Amount: dec("99.00"), Date: day(2025, 3, 10)}}
	patterns := []domain.Pattern{{
		Kind:       domain.PatternCounterparty,
		Value:      "acme",
		TargetKind: domain.TargetAccount,
		TargetID:   "210",
		Active:     true,
	}}

	cands, err := NewExactMatcher().Match(context.Background(), Input{Tx: tx, Entries: entries, Patterns: patterns}, nil)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.True(t, cands[0].Score.Equal(dec("0.95")))
	require.Contains(t, cands[0].Reasons, "pattern-match")
}
