package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Tier identifies the matching stage that produced a candidate.
type Tier string

const (
	TierExact   Tier = "exact"
	TierFuzzy   Tier = "fuzzy"
	TierLLM     Tier = "llm"
	TierPattern Tier = "pattern"
)

// Candidate pairs a bank transaction with one GL line and a score.
// Candidates are scoped to a single scoring attempt and never persisted
// beyond it except for audit.
type Candidate struct {
	TxReference string

	GLTransactionID string
	GLLineID        int64
	GLType          string
	GLAmount        decimal.Decimal
	GLDate          time.Time
	GLEntity        string
	GLMemo          string
	GLAccountID     int64
	GLAccountName   string

	Score   decimal.Decimal
	Tier    Tier
	Reasons []string

	IsIntercompany     bool
	CounterpartyEntity string
	Explanation        string

	// LLM provenance, set only on llm-tier candidates.
	ModelID        string
	PromptVersion  string

	Selected bool
}

// AmountDelta is ||tx amount| - |GL amount|| for tiebreaking, so the sign of
// either side does not count.
func (c *Candidate) AmountDelta(txAmount decimal.Decimal) decimal.Decimal {
	return txAmount.Abs().Sub(c.GLAmount.Abs()).Abs()
}

// DateDelta is |tx date - GL date| for tiebreaking.
func (c *Candidate) DateDelta(txDate time.Time) time.Duration {
	d := txDate.Sub(c.GLDate)
	if d < 0 {
		d = -d
	}
	return d
}

// SelectBest marks exactly one candidate as selected and returns it.
// The order is total: higher score, then smaller amount delta, then smaller
// date delta, then lexicographically smaller GL transaction id.
func SelectBest(cands []*Candidate, txAmount decimal.Decimal, txDate time.Time) *Candidate {
	if len(cands) == 0 {
		return nil
	}
	for _, c := range cands {
		c.Selected = false
	}

	sorted := make([]*Candidate, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Score.Equal(b.Score) {
			return a.Score.GreaterThan(b.Score)
		}
		ad, bd := a.AmountDelta(txAmount), b.AmountDelta(txAmount)
		if !ad.Equal(bd) {
			return ad.LessThan(bd)
		}
		at, bt := a.DateDelta(txDate), b.DateDelta(txDate)
		if at != bt {
			return at < bt
		}
		return a.GLTransactionID < b.GLTransactionID
	})

	sorted[0].Selected = true
	return sorted[0]
}
