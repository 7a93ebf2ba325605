package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/phygrid/wiserecon/internal/adapter/qdrant"
	"github.com/phygrid/wiserecon/internal/adapter/spectre"
	"github.com/phygrid/wiserecon/internal/domain"
	"github.com/phygrid/wiserecon/internal/usecase"
	"github.com/phygrid/wiserecon/internal/usecase/mocks"
)

type learnFixture struct {
	uc       *usecase.LearnUseCase
	approval *mocks.MockApprovalClient
	txRepo   *mocks.MockTransactionRepository
	stats    *mocks.MockStatsRepository
	vectors  *mocks.MockVectorIndex
	cursor   *mocks.MockPollCursor
	clock    *mocks.FrozenClock
}

func newLearnFixture(t *testing.T) *learnFixture {
	t.Helper()
	f := &learnFixture{
		approval: &mocks.MockApprovalClient{},
		txRepo:   mocks.NewMockTransactionRepository(),
		stats:    mocks.NewMockStatsRepository(),
		vectors:  mocks.NewMockVectorIndex(),
		cursor:   &mocks.MockPollCursor{},
		clock:    &mocks.FrozenClock{At: time.Date(2025, 6, 3, 8, 0, 0, 0, time.UTC)},
	}
	patterns := usecase.NewPatternIndex(&mocks.MockEmbedder{}, f.vectors, 0.85, zerolog.Nop())
	f.uc = usecase.NewLearnUseCase(f.approval, f.txRepo, f.stats, patterns, f.cursor, testEntities(), f.clock, zerolog.Nop())
	return f
}

func (f *learnFixture) addSubmittedTx(ref string) {
	f.txRepo.Txs[ref] = &domain.BankTransaction{
		Reference:        ref,
		Entity:           "Phygrid Limited",
		ProfileID:        19941830,
		OccurredAt:       time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Amount:           dec("250.00"),
		Currency:         "EUR",
		Description:      "Monthly subscription",
		PaymentReference: "INV-2025-042 payment",
		CounterpartyName: "Acme Ltd",
		Status:           domain.StatusSubmitted,
	}
}

func reviewed(id, ref, status string, at time.Time) *spectre.SuggestionDetail {
	return &spectre.SuggestionDetail{
		ID:                    id,
		WiseTransactionID:     ref,
		Status:                status,
		Reviewer:              "jo",
		ReviewedAt:            &at,
		MatchType:             "fuzzy",
		NetsuiteTransactionID: "INV-2025-042",
		SuggestedAccountID:    210,
		SuggestedAccountName:  "Accounts Receivable",
	}
}

func TestLearn_ApprovalCreatesPatternAndVector(t *testing.T) {
	f := newLearnFixture(t)
	f.addSubmittedTx("TRANSFER-100")
	at := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	f.approval.ListReviewedSinceFunc = func(ctx context.Context, since time.Time, limit int) ([]*spectre.SuggestionDetail, error) {
		return []*spectre.SuggestionDetail{reviewed("sg-1", "TRANSFER-100", "approved", at)}, nil
	}

	res, err := f.uc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Approved)
	require.Equal(t, 1, res.VectorsStored)

	// Transaction finalized as matched, counterparty tallied.
	require.Equal(t, domain.StatusMatched, f.txRepo.Txs["TRANSFER-100"].Status)
	require.Equal(t, 1, f.stats.Counts["Acme Ltd"])

	// Explicit patterns: counterparty plus the INV-shaped reference.
	require.Len(t, f.approval.CreatedPatterns, 2)
	kinds := map[string]string{}
	for _, p := range f.approval.CreatedPatterns {
		kinds[p.PatternType] = p.PatternValue
	}
	require.Equal(t, "Acme Ltd", kinds["counterparty"])
	require.Contains(t, kinds["reference"], `INV[-/]\d{4}[-/]\d+`)

	// Enrichment delivered with the Wise detail.
	require.Len(t, f.approval.Enrichments, 1)
	e := f.approval.Enrichments[0]
	require.Equal(t, "INV-2025-042", e.NetsuiteTransactionID)
	require.Equal(t, "TRANSFER-100", e.WiseTransactionID)
	require.Equal(t, "Acme Ltd", e.CounterpartyName)

	// Watermark advanced to the newest reviewed_at.
	require.True(t, f.cursor.At.Equal(at))
}

func TestLearn_ExactlyOncePerReviewEvent(t *testing.T) {
	f := newLearnFixture(t)
	f.addSubmittedTx("TRANSFER-100")
	at := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	f.approval.ListReviewedSinceFunc = func(ctx context.Context, since time.Time, limit int) ([]*spectre.SuggestionDetail, error) {
		return []*spectre.SuggestionDetail{reviewed("sg-1", "TRANSFER-100", "approved", at)}, nil
	}

	_, err := f.uc.Run(context.Background())
	require.NoError(t, err)
	res, err := f.uc.Run(context.Background())
	require.NoError(t, err)

	require.Zero(t, res.Reviewed, "second pass must skip the processed event")
	require.Equal(t, 1, f.stats.Counts["Acme Ltd"], "no double tally")

	// A re-review at a later reviewed_at is a new event.
	later := at.Add(time.Hour)
	f.approval.ListReviewedSinceFunc = func(ctx context.Context, since time.Time, limit int) ([]*spectre.SuggestionDetail, error) {
		return []*spectre.SuggestionDetail{reviewed("sg-1", "TRANSFER-100", "rejected", later)}, nil
	}
	res, err = f.uc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Rejected)
}

func TestLearn_RejectionDecrementsAndNeverGoesNegative(t *testing.T) {
	f := newLearnFixture(t)
	f.addSubmittedTx("TRANSFER-100")
	at := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	f.approval.ListReviewedSinceFunc = func(ctx context.Context, since time.Time, limit int) ([]*spectre.SuggestionDetail, error) {
		return []*spectre.SuggestionDetail{reviewed("sg-2", "TRANSFER-100", "rejected", at)}, nil
	}

	res, err := f.uc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Rejected)
	require.Equal(t, domain.StatusUnmatched, f.txRepo.Txs["TRANSFER-100"].Status)
	require.Equal(t, 0, f.stats.Counts["Acme Ltd"], "approval counter floors at zero")
	require.Equal(t, 1, f.stats.Rejections["Acme Ltd"])
	require.Empty(t, f.approval.CreatedPatterns, "rejections must not learn patterns")
}

func TestLearn_NearDuplicateOnlyBumpsUsage(t *testing.T) {
	f := newLearnFixture(t)
	f.addSubmittedTx("TRANSFER-100")
	at := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	f.approval.ListReviewedSinceFunc = func(ctx context.Context, since time.Time, limit int) ([]*spectre.SuggestionDetail, error) {
		return []*spectre.SuggestionDetail{reviewed("sg-1", "TRANSFER-100", "approved", at)}, nil
	}
	// The nearest stored vector is effectively identical and targets the
	// same account.
	f.vectors.SearchFunc = func(ctx context.Context, vector []float64, limit int, threshold float64) ([]qdrant.ScoredPoint, error) {
		return []qdrant.ScoredPoint{{ID: "pt-old", Score: 0.97, Payload: map[string]any{"target_id": "210"}}}, nil
	}

	res, err := f.uc.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, res.VectorsStored, "near-duplicate must not store a new vector")
	// Explicit pattern creation still runs; the server dedups on its
	// uniqueness tuple and bumps usage.
	require.NotEmpty(t, f.approval.CreatedPatterns)
}

func TestLearn_SkipsSimilarExistingPatternValues(t *testing.T) {
	f := newLearnFixture(t)
	f.addSubmittedTx("TRANSFER-100")
	at := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	f.approval.ListReviewedSinceFunc = func(ctx context.Context, since time.Time, limit int) ([]*spectre.SuggestionDetail, error) {
		return []*spectre.SuggestionDetail{reviewed("sg-1", "TRANSFER-100", "approved", at)}, nil
	}
	f.approval.ListPatternsFunc = func(ctx context.Context, activeOnly bool) ([]domain.Pattern, error) {
		return []domain.Pattern{{
			ID:     "pt-1",
			Kind:   domain.PatternCounterparty,
			Value:  "ACME LTD",
			Active: true,
		}}, nil
	}

	_, err := f.uc.Run(context.Background())
	require.NoError(t, err)
	for _, p := range f.approval.CreatedPatterns {
		require.NotEqual(t, "counterparty", p.PatternType, "near-identical counterparty value must be skipped")
	}
}

func TestLearn_ApprovalPromotesPattern(t *testing.T) {
	f := newLearnFixture(t)
	f.addSubmittedTx("TRANSFER-100")
	at := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	f.approval.ListReviewedSinceFunc = func(ctx context.Context, since time.Time, limit int) ([]*spectre.SuggestionDetail, error) {
		return []*spectre.SuggestionDetail{reviewed("sg-1", "TRANSFER-100", "approved", at)}, nil
	}
	// Nine prior approvals: this one is the tenth and trips the
	// promotion rule.
	f.approval.ListPatternsFunc = func(ctx context.Context, activeOnly bool) ([]domain.Pattern, error) {
		return []domain.Pattern{{
			ID:            "pt-1",
			Kind:          domain.PatternCounterparty,
			Value:         "acme",
			TargetKind:    domain.TargetAccount,
			TargetID:      "210",
			TargetName:    "Accounts Receivable",
			Boost:         domain.PatternBoostInitial,
			TimesApproved: 9,
			Active:        true,
		}}, nil
	}

	res, err := f.uc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.PatternsPromoted)

	require.NotEmpty(t, f.approval.UpdatedPatterns)
	updated := f.approval.UpdatedPatterns[0]
	require.Equal(t, "pt-1", updated.ID)
	require.Equal(t, 10, updated.TimesApproved)
	require.True(t, updated.Boost.Equal(dec("0.15")), "boost = %s", updated.Boost)
	require.True(t, updated.AutoApprove, "clean record must flip auto-approve")

	// The promoted boost lands in the vector payload.
	point, ok := f.vectors.Points["pt-1"]
	require.True(t, ok, "promoted pattern vector must be re-upserted")
	require.Equal(t, "0.15", point.Payload["boost"])
}

func TestLearn_ApprovalBelowPromotionOnlyCounts(t *testing.T) {
	f := newLearnFixture(t)
	f.addSubmittedTx("TRANSFER-100")
	at := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	f.approval.ListReviewedSinceFunc = func(ctx context.Context, since time.Time, limit int) ([]*spectre.SuggestionDetail, error) {
		return []*spectre.SuggestionDetail{reviewed("sg-1", "TRANSFER-100", "approved", at)}, nil
	}
	f.approval.ListPatternsFunc = func(ctx context.Context, activeOnly bool) ([]domain.Pattern, error) {
		return []domain.Pattern{{
			ID:            "pt-1",
			Kind:          domain.PatternCounterparty,
			Value:         "acme",
			TargetKind:    domain.TargetAccount,
			TargetID:      "210",
			Boost:         domain.PatternBoostInitial,
			TimesApproved: 3,
			Active:        true,
		}}, nil
	}

	res, err := f.uc.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, res.PatternsPromoted)

	require.NotEmpty(t, f.approval.UpdatedPatterns)
	updated := f.approval.UpdatedPatterns[0]
	require.Equal(t, 4, updated.TimesApproved)
	require.True(t, updated.Boost.Equal(domain.PatternBoostInitial))
	require.False(t, updated.AutoApprove)
}

func TestLearn_RejectionDecaysMatchingPattern(t *testing.T) {
	f := newLearnFixture(t)
	f.addSubmittedTx("TRANSFER-100")
	at := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	f.approval.ListReviewedSinceFunc = func(ctx context.Context, since time.Time, limit int) ([]*spectre.SuggestionDetail, error) {
		return []*spectre.SuggestionDetail{reviewed("sg-2", "TRANSFER-100", "rejected", at)}, nil
	}
	// Two rejections already: this one deactivates the pattern and its
	// vector leaves the search set in the same pass.
	f.approval.ListPatternsFunc = func(ctx context.Context, activeOnly bool) ([]domain.Pattern, error) {
		return []domain.Pattern{{
			ID:            "pt-1",
			Kind:          domain.PatternCounterparty,
			Value:         "acme",
			TargetKind:    domain.TargetAccount,
			TargetID:      "210",
			Boost:         domain.PatternBoostInitial,
			TimesApproved: 5,
			TimesRejected: 2,
			Active:        true,
		}}, nil
	}

	res, err := f.uc.Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, f.approval.UpdatedPatterns)
	updated := f.approval.UpdatedPatterns[0]
	require.Equal(t, 4, updated.TimesApproved, "rejection revokes one approval")
	require.Equal(t, 3, updated.TimesRejected)
	require.False(t, updated.Active, "third rejection deactivates")
	require.Equal(t, 1, res.VectorsRemoved)
	require.Contains(t, f.vectors.Deleted, "pt-1")
}

func TestLearn_RetiresRejectedPatternVectors(t *testing.T) {
	f := newLearnFixture(t)
	f.approval.ListReviewedSinceFunc = func(ctx context.Context, since time.Time, limit int) ([]*spectre.SuggestionDetail, error) {
		return nil, nil
	}
	f.approval.ListPatternsFunc = func(ctx context.Context, activeOnly bool) ([]domain.Pattern, error) {
		return []domain.Pattern{
			{ID: "pt-dead", Kind: domain.PatternCounterparty, Value: "x", Active: false, TimesRejected: 3},
			{ID: "pt-live", Kind: domain.PatternCounterparty, Value: "y", Active: true},
		}, nil
	}

	res, err := f.uc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.VectorsRemoved)
	require.Contains(t, f.vectors.Deleted, "pt-dead")
	require.NotContains(t, f.vectors.Deleted, "pt-live")
}

func TestLearn_WatermarkOnlyMovesForward(t *testing.T) {
	f := newLearnFixture(t)
	f.cursor.At = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	f.approval.ListReviewedSinceFunc = func(ctx context.Context, since time.Time, limit int) ([]*spectre.SuggestionDetail, error) {
		require.True(t, since.Equal(f.cursor.At))
		return nil, nil
	}

	_, err := f.uc.Run(context.Background())
	require.NoError(t, err)
	require.True(t, f.cursor.At.Equal(time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)))
}
