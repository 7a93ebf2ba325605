package matching

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/phygrid/wiserecon/internal/domain"
)

var earlyExitThreshold = decimal.RequireFromString("0.95")

// Pipeline chains the matcher tiers in fixed order. Each tier appends to the
// candidate set; the chain stops early once any candidate's score reaches
// 0.95, since no later tier can displace it.
type Pipeline struct {
	matchers []Matcher
}

// NewPipeline builds the standard cascade. The llm matcher may be nil when
// model scoring is disabled.
func NewPipeline(llm *LLMMatcher) *Pipeline {
	p := &Pipeline{matchers: []Matcher{NewExactMatcher(), NewFuzzyMatcher()}}
	if llm != nil {
		p.matchers = append(p.matchers, llm)
	}
	return p
}

// Run executes the cascade and stamps intercompany classification on every
// candidate.
func (p *Pipeline) Run(ctx context.Context, in Input) ([]*domain.Candidate, error) {
	ic := ClassifyIntercompany(in.Tx, in.Entities)

	var all []*domain.Candidate
	for _, m := range p.matchers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cands, err := m.Match(ctx, in, all)
		if err != nil {
			return nil, err
		}
		all = append(all, cands...)

		if hasScoreAtLeast(all, earlyExitThreshold) {
			break
		}
	}

	ApplyIC(ic, all)
	return all, nil
}

func hasScoreAtLeast(cands []*domain.Candidate, min decimal.Decimal) bool {
	for _, c := range cands {
		if c.Score.GreaterThanOrEqual(min) {
			return true
		}
	}
	return false
}
