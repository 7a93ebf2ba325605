package usecase

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/phygrid/wiserecon/internal/domain"
	"github.com/phygrid/wiserecon/internal/matching"
)

// PatternIndex is the vector side of the pattern store: nearest-neighbor
// search over approved-transaction embeddings for the confidence boost.
type PatternIndex struct {
	embedder      Embedder
	vectors       VectorIndex
	similarityMin float64
	log           zerolog.Logger
}

// NewPatternIndex creates a new PatternIndex.
func NewPatternIndex(embedder Embedder, vectors VectorIndex, similarityMin float64, log zerolog.Logger) *PatternIndex {
	return &PatternIndex{
		embedder:      embedder,
		vectors:       vectors,
		similarityMin: similarityMin,
		log:           log,
	}
}

// BoostResult is the best qualifying pattern hit for a transaction.
type BoostResult struct {
	Boost      decimal.Decimal
	Similarity float64
	PatternID  string
}

// Boost embeds the transaction's normalized text and returns the maximum
// boost among qualifying neighbors. A degraded index yields a zero boost,
// never an error: the boost is advisory.
func (p *PatternIndex) Boost(ctx context.Context, tx *domain.BankTransaction) BoostResult {
	if p.embedder == nil || p.vectors == nil {
		return BoostResult{Boost: decimal.Zero}
	}

	text := matching.NormalizeEmbedText(tx.Description, tx.CounterpartyName, tx.PaymentReference)
	if text == "" {
		return BoostResult{Boost: decimal.Zero}
	}

	vector, err := p.embedder.Embed(ctx, text)
	if err != nil {
		p.log.Warn().Err(err).Str("reference", tx.Reference).Msg("pattern embed failed")
		return BoostResult{Boost: decimal.Zero}
	}

	hits, err := p.vectors.Search(ctx, vector, 5, p.similarityMin)
	if err != nil {
		p.log.Warn().Err(err).Str("reference", tx.Reference).Msg("pattern search failed")
		return BoostResult{Boost: decimal.Zero}
	}

	best := BoostResult{Boost: decimal.Zero}
	for _, hit := range hits {
		boost := payloadBoost(hit.Payload)
		if boost.GreaterThan(best.Boost) {
			best = BoostResult{Boost: boost, Similarity: hit.Score, PatternID: hit.ID}
		}
	}
	return best
}

// Store writes one approved-transaction embedding with its boost payload.
func (p *PatternIndex) Store(ctx context.Context, id string, tx *domain.BankTransaction, boost decimal.Decimal, targetID, targetName string) error {
	text := matching.NormalizeEmbedText(tx.Description, tx.CounterpartyName, tx.PaymentReference)
	vector, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}

	return p.vectors.Upsert(ctx, id, vector, map[string]any{
		"wise_transaction_id": tx.Reference,
		"entity_name":         tx.Entity,
		"counterparty":        tx.CounterpartyName,
		"boost":               boost.String(),
		"target_id":           targetID,
		"target_name":         targetName,
	})
}

// Remove drops deactivated patterns from the search set.
func (p *PatternIndex) Remove(ctx context.Context, ids ...string) error {
	return p.vectors.Delete(ctx, ids...)
}

// Nearest returns the similarity of the closest stored pattern, for the
// learning loop's near-duplicate check.
func (p *PatternIndex) Nearest(ctx context.Context, tx *domain.BankTransaction) (string, float64, string, error) {
	text := matching.NormalizeEmbedText(tx.Description, tx.CounterpartyName, tx.PaymentReference)
	vector, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return "", 0, "", err
	}
	hits, err := p.vectors.Search(ctx, vector, 1, 0)
	if err != nil {
		return "", 0, "", err
	}
	if len(hits) == 0 {
		return "", 0, "", nil
	}
	target, _ := hits[0].Payload["target_id"].(string)
	return hits[0].ID, hits[0].Score, target, nil
}

func payloadBoost(payload map[string]any) decimal.Decimal {
	raw, ok := payload["boost"].(string)
	if !ok {
		return domain.PatternBoostInitial
	}
	boost, err := decimal.NewFromString(raw)
	if err != nil {
		return domain.PatternBoostInitial
	}
	if boost.LessThan(domain.PatternBoostInitial) {
		return domain.PatternBoostInitial
	}
	if boost.GreaterThan(domain.PatternBoostMax) {
		return domain.PatternBoostMax
	}
	return boost
}
