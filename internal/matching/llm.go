package matching

import (
	"context"
	"errors"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/phygrid/wiserecon/internal/domain"
)

var (
	llmScoreFloor = decimal.RequireFromString("0.50")
	llmScoreCeil  = decimal.RequireFromString("0.89")

	llmSkipThreshold = decimal.RequireFromString("0.80")
)

const llmMaxCandidates = 5

// LLMVerdict is the structured answer from the language model.
type LLMVerdict struct {
	GLTransactionID string
	Confidence      decimal.Decimal
	Reasoning       string
	ModelID         string
	PromptVersion   string
}

// LLMScorer abstracts the model call so tests can stub it deterministically.
type LLMScorer interface {
	Score(ctx context.Context, tx *domain.BankTransaction, candidates []domain.GLEntry) (*LLMVerdict, error)
}

// LLMMatcher is tier 3. It runs only when the earlier tiers produced nothing
// at or above 0.80 and at least one GL entry exists in the window. It sends
// the top five entries by amount and date closeness, clamps the returned
// confidence to [0.50, 0.89], and discards answers naming unknown GL ids.
type LLMMatcher struct {
	scorer LLMScorer
	log    zerolog.Logger
}

func NewLLMMatcher(scorer LLMScorer, log zerolog.Logger) *LLMMatcher {
	return &LLMMatcher{scorer: scorer, log: log}
}

func (m *LLMMatcher) Tier() domain.Tier { return domain.TierLLM }

func (m *LLMMatcher) Match(ctx context.Context, in Input, existing []*domain.Candidate) ([]*domain.Candidate, error) {
	if m.scorer == nil || len(in.Entries) == 0 {
		return nil, nil
	}
	for _, c := range existing {
		if c.Score.GreaterThanOrEqual(llmSkipThreshold) {
			return nil, nil
		}
	}

	shortlist := rankEntries(in.Tx, in.Entries)
	if len(shortlist) > llmMaxCandidates {
		shortlist = shortlist[:llmMaxCandidates]
	}

	verdict, err := m.scorer.Score(ctx, in.Tx, shortlist)
	if err != nil {
		// Per error policy an invalid or failed LLM response discards the
		// candidate without failing the batch.
		m.log.Warn().Err(err).Str("reference", in.Tx.Reference).Msg("llm scoring failed")
		return nil, nil
	}
	if verdict == nil || verdict.GLTransactionID == "" {
		return nil, nil
	}

	entry := findEntry(shortlist, verdict.GLTransactionID)
	if entry == nil {
		m.log.Warn().
			Str("reference", in.Tx.Reference).
			Str("gl_id", verdict.GLTransactionID).
			Err(domain.ErrLLMInvalidResponse).
			Msg("discarding llm candidate")
		return nil, nil
	}

	c := newCandidate(in.Tx, entry, domain.TierLLM)
	c.Score = clampScore(verdict.Confidence, llmScoreFloor, llmScoreCeil)
	c.Reasons = append(c.Reasons, "llm-match")
	c.Explanation = verdict.Reasoning
	c.ModelID = verdict.ModelID
	c.PromptVersion = verdict.PromptVersion
	return []*domain.Candidate{c}, nil
}

// rankEntries orders GL entries by amount closeness, then date closeness.
func rankEntries(tx *domain.BankTransaction, entries []domain.GLEntry) []domain.GLEntry {
	out := make([]domain.GLEntry, len(entries))
	copy(out, entries)
	txAmount := tx.SourceAmount().Abs()
	sort.SliceStable(out, func(i, j int) bool {
		di := txAmount.Sub(out[i].Amount.Abs()).Abs()
		dj := txAmount.Sub(out[j].Amount.Abs()).Abs()
		if !di.Equal(dj) {
			return di.LessThan(dj)
		}
		return dateDiffDays(tx.OccurredAt, out[i].Date) < dateDiffDays(tx.OccurredAt, out[j].Date)
	})
	return out
}

func findEntry(entries []domain.GLEntry, id string) *domain.GLEntry {
	for i := range entries {
		if entries[i].TransactionID == id {
			return &entries[i]
		}
	}
	return nil
}

func clampScore(v, floor, ceil decimal.Decimal) decimal.Decimal {
	if v.LessThan(floor) {
		return floor
	}
	if v.GreaterThan(ceil) {
		return ceil
	}
	return v
}

// ErrNoVerdict is returned by scorers that decline to answer.
var ErrNoVerdict = errors.New("llm returned no verdict")
