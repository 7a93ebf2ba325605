package matching

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/phygrid/wiserecon/internal/domain"
)

// Adjustment deltas from the confidence model.
var (
	adjIntercompany       = decimal.RequireFromString("0.05")
	adjRepeatCounterparty = decimal.RequireFromString("0.05")
	adjFXVariance         = decimal.RequireFromString("-0.15")
	adjDateDrift          = decimal.RequireFromString("-0.10")

	fxVarianceLimit = decimal.RequireFromString("0.02")
)

const (
	dateDriftLimitDays     = 3
	repeatCounterpartyMin  = 3
	patternSimilarityFloor = 0.85
)

// Signals are the scoring-time facts the confidence model adjusts on.
type Signals struct {
	IsIntercompany bool

	// PatternBoost is the best qualifying pattern boost; zero when no
	// pattern reached the similarity floor.
	PatternBoost       decimal.Decimal
	PatternSimilarity  float64

	// PriorApprovals is how many approved suggestions this counterparty
	// already has.
	PriorApprovals int

	// FXVariance is |used - mid| / mid for cross-currency transactions;
	// nil when not applicable.
	FXVariance *decimal.Decimal

	DateDriftDays int
}

// Scored is the result of composing a base score with adjustments.
type Scored struct {
	Base    decimal.Decimal
	Final   decimal.Decimal
	Action  domain.Action
	Reasons []string
}

// Score composes the final confidence: clamp(base + sum of adjustments, 0, 1)
// and derives the policy action.
func Score(base decimal.Decimal, sig Signals) Scored {
	s := Scored{Base: base}
	final := base

	if sig.IsIntercompany {
		final = final.Add(adjIntercompany)
		s.Reasons = append(s.Reasons, "adj-intercompany:+0.05")
	}
	if sig.PatternSimilarity >= patternSimilarityFloor && sig.PatternBoost.IsPositive() {
		final = final.Add(sig.PatternBoost)
		s.Reasons = append(s.Reasons, fmt.Sprintf("adj-pattern:+%s", sig.PatternBoost))
	}
	if sig.PriorApprovals >= repeatCounterpartyMin {
		final = final.Add(adjRepeatCounterparty)
		s.Reasons = append(s.Reasons, "adj-repeat-counterparty:+0.05")
	}
	if sig.FXVariance != nil && sig.FXVariance.GreaterThan(fxVarianceLimit) {
		final = final.Add(adjFXVariance)
		s.Reasons = append(s.Reasons, "adj-fx-variance:-0.15")
	}
	if sig.DateDriftDays > dateDriftLimitDays {
		final = final.Add(adjDateDrift)
		s.Reasons = append(s.Reasons, "adj-date-drift:-0.10")
	}

	final = clampScore(final, decimal.Zero, decimal.NewFromInt(1))
	s.Final = final
	s.Action = domain.ActionFor(final)
	return s
}

// FXVariance computes |used - mid| / mid, or nil when either rate is absent.
func FXVariance(used, mid *decimal.Decimal) *decimal.Decimal {
	if used == nil || mid == nil || mid.IsZero() {
		return nil
	}
	v := used.Sub(*mid).Abs().Div(mid.Abs())
	return &v
}
