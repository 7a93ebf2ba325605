package matching

import (
	"context"

	"github.com/phygrid/wiserecon/internal/domain"
)

// Input is everything a matcher may look at for one transaction. Matchers are
// pure over this input: they never mutate it and never touch shared state.
type Input struct {
	Tx       *domain.BankTransaction
	Entries  []domain.GLEntry
	Patterns []domain.Pattern
	Entities *domain.EntityRegistry
}

// Matcher is one tier of the cascade. Later tiers see earlier tiers'
// candidates and may add to, but not remove from, the set.
type Matcher interface {
	Tier() domain.Tier
	Match(ctx context.Context, in Input, existing []*domain.Candidate) ([]*domain.Candidate, error)
}

func newCandidate(tx *domain.BankTransaction, e *domain.GLEntry, tier domain.Tier) *domain.Candidate {
	return &domain.Candidate{
		TxReference:     tx.Reference,
		GLTransactionID: e.TransactionID,
		GLLineID:        e.LineID,
		GLType:          e.Type,
		GLAmount:        e.Amount,
		GLDate:          e.Date,
		GLEntity:        e.EntityName,
		GLMemo:          e.Memo,
		GLAccountID:     e.AccountID,
		GLAccountName:   e.AccountName,
		Tier:            tier,
	}
}

