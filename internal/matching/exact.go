package matching

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/phygrid/wiserecon/internal/domain"
)

// Exact score ladder.
var (
	scoreExactAll        = decimal.RequireFromString("1.00")
	scoreExactAmountRef  = decimal.RequireFromString("0.95")
	scoreExactAmountDate = decimal.RequireFromString("0.90")
)

const exactMaxDateDiffDays = 1

// ExactMatcher is tier 1: amount equal to the cent, date within one day, and
// ideally a corroborating reference, IBAN or pattern signal.
type ExactMatcher struct{}

func NewExactMatcher() *ExactMatcher { return &ExactMatcher{} }

func (m *ExactMatcher) Tier() domain.Tier { return domain.TierExact }

func (m *ExactMatcher) Match(ctx context.Context, in Input, existing []*domain.Candidate) ([]*domain.Candidate, error) {
	var out []*domain.Candidate
	for i := range in.Entries {
		if c := m.tryEntry(in, &in.Entries[i]); c != nil {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *ExactMatcher) tryEntry(in Input, e *domain.GLEntry) *domain.Candidate {
	tx := in.Tx

	if !tx.Amount.Abs().Round(2).Equal(e.Amount.Abs().Round(2)) {
		return nil
	}
	days := dateDiffDays(tx.OccurredAt, e.Date)
	if days > exactMaxDateDiffDays {
		return nil
	}

	c := newCandidate(tx, e, domain.TierExact)
	c.Reasons = append(c.Reasons, "amount-exact")
	if days == 0 {
		c.Reasons = append(c.Reasons, "date-exact")
	} else {
		c.Reasons = append(c.Reasons, "date-within-1-day")
	}

	switch {
	case referenceMatches(tx, e):
		c.Reasons = append(c.Reasons, "reference-match")
		c.Score = scoreExactAll
	case ibanMatches(tx, in.Entities):
		c.Reasons = append(c.Reasons, "iban-match")
		c.Score = scoreExactAmountRef
	case patternMatches(tx, e, in.Patterns):
		c.Reasons = append(c.Reasons, "pattern-match")
		c.Score = scoreExactAmountRef
	default:
		c.Score = scoreExactAmountDate
	}
	return c
}

// referenceMatches checks case-insensitive containment of the GL transaction
// id in the payment reference after alphanumeric normalization, the reverse
// containment of the reference in the GL memo, and finally an overlap of the
// numeric tokens on both sides, which catches references like "Payment 7788"
// against "INV-7788".
func referenceMatches(tx *domain.BankTransaction, e *domain.GLEntry) bool {
	ref := NormalizeAlnum(tx.PaymentReference)
	if ref == "" {
		return false
	}
	if id := NormalizeAlnum(e.TransactionID); id != "" && strings.Contains(ref, id) {
		return true
	}
	if memo := NormalizeAlnum(e.Memo); memo != "" && strings.Contains(memo, ref) {
		return true
	}

	refNums := DigitTokens(tx.PaymentReference)
	idNums := DigitTokens(e.TransactionID)
	if len(refNums) == 0 || len(idNums) == 0 {
		return false
	}
	for tok := range refNums {
		if _, ok := idNums[tok]; ok {
			return true
		}
	}
	return false
}

func ibanMatches(tx *domain.BankTransaction, reg *domain.EntityRegistry) bool {
	if reg == nil || tx.CounterpartyAccount == "" {
		return false
	}
	_, ok := reg.ByIBAN(tx.CounterpartyAccount)
	return ok
}

// patternMatches accepts only reference or counterparty patterns whose target
// account agrees with the GL line.
func patternMatches(tx *domain.BankTransaction, e *domain.GLEntry, patterns []domain.Pattern) bool {
	for i := range patterns {
		p := &patterns[i]
		if p.Kind != domain.PatternReference && p.Kind != domain.PatternCounterparty {
			continue
		}
		if !p.Matches(tx) {
			continue
		}
		if p.TargetKind == domain.TargetAccount && p.TargetID != "" {
			if p.TargetID != strconv.FormatInt(e.AccountID, 10) {
				continue
			}
		}
		return true
	}
	return false
}

func dateDiffDays(a, b time.Time) int {
	au := a.UTC().Truncate(24 * time.Hour)
	bu := b.UTC().Truncate(24 * time.Hour)
	d := int(au.Sub(bu).Hours() / 24)
	if d < 0 {
		d = -d
	}
	return d
}
