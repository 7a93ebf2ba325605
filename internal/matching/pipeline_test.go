package matching

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/phygrid/wiserecon/internal/domain"
)

func TestPipeline_EarlyExitSkipsLaterTiers(t *testing.T) {
	// An exact hit at 1.00 means fuzzy and llm never run.
	scorer := &stubScorer{verdict: &LLMVerdict{GLTransactionID: "INV-7788", Confidence: dec("0.60")}}
	p := NewPipeline(NewLLMMatcher(scorer, zerolog.Nop()))

	in := Input{
		Tx: &domain.BankTransaction{
			Reference:        "TRANSFER-100",
			Amount:           dec("1234.56"),
			Currency:         "EUR",
			OccurredAt:       day(2025, 3, 10),
			PaymentReference: "INV-7788",
		},
		Entries: []domain.GLEntry{{
			TransactionID: "INV-7788",
			Amount:        dec("1234.56"),
			Date:          day(2025, 3, 10),
		}},
		Entities: testRegistry(),
	}

	cands, err := p.Run(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.Equal(t, domain.TierExact, cands[0].Tier)
	require.Zero(t, scorer.calls)
}

func TestPipeline_FallsThroughToLLM(t *testing.T) {
	scorer := &stubScorer{verdict: &LLMVerdict{GLTransactionID: "G3", Confidence: dec("0.72")}}
	p := NewPipeline(NewLLMMatcher(scorer, zerolog.Nop()))

	in := Input{
		Tx: &domain.BankTransaction{
			Reference:  "TRANSFER-300",
			Amount:     dec("321.00"),
			Currency:   "EUR",
			OccurredAt: day(2025, 5, 1),
		},
		Entries: []domain.GLEntry{
			{TransactionID: "G1", Amount: dec("900.00"), Date: day(2025, 5, 1)},
			{TransactionID: "G2", Amount: dec("800.00"), Date: day(2025, 5, 2)},
			{TransactionID: "G3", Amount: dec("700.00"), Date: day(2025, 5, 3)},
		},
		Entities: testRegistry(),
	}

	cands, err := p.Run(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.Equal(t, domain.TierLLM, cands[0].Tier)
	require.Equal(t, 1, scorer.calls)
}

func TestPipeline_StampsIntercompany(t *testing.T) {
	p := NewPipeline(nil)

	in := Input{
		Tx: &domain.BankTransaction{
			Reference:           "TRANSFER-301",
			Amount:              dec("500.00"),
			Currency:            "EUR",
			OccurredAt:          day(2025, 3, 10),
			CounterpartyAccount: "BE82967831096568",
		},
		Entries: []domain.GLEntry{{
			TransactionID: "JE-5",
			Amount:        dec("500.00"),
			Date:          day(2025, 3, 10),
		}},
		Entities: testRegistry(),
	}

	cands, err := p.Run(context.Background(), in)
	require.NoError(t, err)
	require.NotEmpty(t, cands)
	require.True(t, cands[0].IsIntercompany)
	require.Equal(t, "Ombori AG", cands[0].CounterpartyEntity)
}

func TestPipeline_LaterTiersAddNeverRemove(t *testing.T) {
	p := NewPipeline(nil)

	// Exact hits at 0.90 (amount+date only), fuzzy still contributes.
	in := Input{
		Tx: &domain.BankTransaction{
			Reference:        "TRANSFER-302",
			Amount:           dec("60.00"),
			Currency:         "EUR",
			OccurredAt:       day(2025, 3, 10),
			CounterpartyName: "Acme Ltd",
		},
		Entries: []domain.GLEntry{
			{TransactionID: "A", Amount: dec("60.00"), Date: day(2025, 3, 10)},
			{TransactionID: "B", Amount: dec("60.00"), Date: day(2025, 3, 13), Memo: "ACME"},
		},
		Entities: testRegistry(),
	}

	cands, err := p.Run(context.Background(), in)
	require.NoError(t, err)

	tiers := map[domain.Tier]int{}
	for _, c := range cands {
		tiers[c.Tier]++
	}
	require.GreaterOrEqual(t, tiers[domain.TierExact], 1)
	require.GreaterOrEqual(t, tiers[domain.TierFuzzy], 1)
}
