package matching

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/phygrid/wiserecon/internal/domain"
)

var (
	scoreFuzzyHigh   = decimal.RequireFromString("0.85")
	scoreFuzzyMedium = decimal.RequireFromString("0.75")

	fuzzySameCurrencyTolerance = decimal.RequireFromString("0.01")
	fuzzyCrossCurrencyPercent  = decimal.RequireFromString("2.0")
)

const (
	fuzzyMaxDateDiffDays  = 5
	fuzzyNameSimilarityMin = 0.85
	fuzzyNameSimilarityHigh = 0.95
	fuzzyLCSMin             = 6
	fuzzyLCSHigh            = 10
)

// FuzzyMatcher is tier 2: tolerant amount and date windows plus at least one
// of a name-similarity, partial-reference or amount-and-entity signal.
type FuzzyMatcher struct{}

func NewFuzzyMatcher() *FuzzyMatcher { return &FuzzyMatcher{} }

func (m *FuzzyMatcher) Tier() domain.Tier { return domain.TierFuzzy }

func (m *FuzzyMatcher) Match(ctx context.Context, in Input, existing []*domain.Candidate) ([]*domain.Candidate, error) {
	var out []*domain.Candidate
	for i := range in.Entries {
		if c := m.tryEntry(in, &in.Entries[i]); c != nil {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *FuzzyMatcher) tryEntry(in Input, e *domain.GLEntry) *domain.Candidate {
	tx := in.Tx

	amountReason, ok := fuzzyAmountMatch(tx, e)
	if !ok {
		return nil
	}
	days := dateDiffDays(tx.OccurredAt, e.Date)
	if days > fuzzyMaxDateDiffDays {
		return nil
	}

	c := newCandidate(tx, e, domain.TierFuzzy)
	c.Reasons = append(c.Reasons, amountReason, fmt.Sprintf("date-within-%d-days", days))

	nameSim := NameSimilarity(tx.CounterpartyName, e.Memo)
	if s := NameSimilarity(tx.CounterpartyName, e.EntityName); s > nameSim {
		nameSim = s
	}
	lcs := LongestCommonAlnumSubstring(tx.PaymentReference, e.Memo)

	switch {
	case nameSim >= fuzzyNameSimilarityMin:
		c.Reasons = append(c.Reasons, fmt.Sprintf("name-similarity-%d", int(nameSim*100)))
	case lcs >= fuzzyLCSMin:
		c.Reasons = append(c.Reasons, "reference-partial-match")
	case m.amountEntityUnique(in, e):
		c.Reasons = append(c.Reasons, "amount-entity-match")
	default:
		return nil
	}

	if nameSim >= fuzzyNameSimilarityHigh || lcs >= fuzzyLCSHigh {
		c.Score = scoreFuzzyHigh
	} else {
		c.Score = scoreFuzzyMedium
	}
	return c
}

// fuzzyAmountMatch applies +-0.01 for same-currency and +-2% for
// cross-currency comparisons, using the FX source amount when present.
func fuzzyAmountMatch(tx *domain.BankTransaction, e *domain.GLEntry) (string, bool) {
	glAmount := e.Amount.Abs()

	if tx.CrossCurrency() {
		txAmount := tx.SourceAmount().Abs()
		if glAmount.IsZero() {
			return "", false
		}
		variance := txAmount.Sub(glAmount).Abs().
			Div(glAmount).
			Mul(decimal.NewFromInt(100))
		if variance.LessThanOrEqual(fuzzyCrossCurrencyPercent) {
			return fmt.Sprintf("amount-within-%s%%", variance.Round(1)), true
		}
		return "", false
	}

	if tx.Amount.Abs().Sub(glAmount).Abs().LessThanOrEqual(fuzzySameCurrencyTolerance) {
		return "amount-within-tolerance", true
	}
	return "", false
}

// amountEntityUnique accepts an amount-plus-entity signal only when no other
// GL line for the same entity has the same amount on the same day.
func (m *FuzzyMatcher) amountEntityUnique(in Input, e *domain.GLEntry) bool {
	for i := range in.Entries {
		other := &in.Entries[i]
		if other == e || other.TransactionID == e.TransactionID && other.LineID == e.LineID {
			continue
		}
		if other.EntityName != e.EntityName {
			continue
		}
		if other.Amount.Abs().Equal(e.Amount.Abs()) && dateDiffDays(other.Date, e.Date) == 0 {
			return false
		}
	}
	return true
}
