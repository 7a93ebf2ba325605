package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/rs/zerolog"

	"github.com/phygrid/wiserecon/internal/adapter/spectre"
	"github.com/phygrid/wiserecon/internal/domain"
	"github.com/phygrid/wiserecon/internal/matching"
)

const (
	learnPollLimit = 200

	// Embeddings this close to an existing pattern with the same target
	// store no new vector.
	nearDuplicateSimilarity = 0.95

	// Explicit pattern values this close to an existing one are the same
	// pattern spelled differently.
	valueSimilarityMin = 0.90
)

// referenceShapes are payment-reference formats worth generalizing into
// regex patterns.
var referenceShapes = []struct {
	probe *regexp.Regexp
	regex string
}{
	{regexp.MustCompile(`(?i)INV[-/]\d{4}[-/]\d+`), `INV[-/]\d{4}[-/]\d+`},
	{regexp.MustCompile(`(?i)PO[-/]\d{4}[-/]\d+`), `PO[-/]\d{4}[-/]\d+`},
	{regexp.MustCompile(`(?i)Invoice\s*#?\s*\d+`), `Invoice\s*#?\s*\d+`},
	{regexp.MustCompile(`(?i)Bill\s*#?\s*\d+`), `Bill\s*#?\s*\d+`},
}

// LearnUseCase closes the loop: approved suggestions become patterns and
// vectors, rejections decay them, and each review event is handled exactly
// once via the (suggestion_id, reviewed_at) ledger.
type LearnUseCase struct {
	approval   ApprovalClient
	txRepo     TransactionRepository
	stats      StatsRepository
	patterns   *PatternIndex
	pollCursor PollCursorStore
	entities   *domain.EntityRegistry
	clock      Clock
	log        zerolog.Logger
}

// NewLearnUseCase creates a new LearnUseCase.
func NewLearnUseCase(
	approval ApprovalClient,
	txRepo TransactionRepository,
	stats StatsRepository,
	patterns *PatternIndex,
	pollCursor PollCursorStore,
	entities *domain.EntityRegistry,
	clock Clock,
	log zerolog.Logger,
) *LearnUseCase {
	return &LearnUseCase{
		approval:   approval,
		txRepo:     txRepo,
		stats:      stats,
		patterns:   patterns,
		pollCursor: pollCursor,
		entities:   entities,
		clock:      clock,
		log:        log,
	}
}

// LearnResult summarizes one polling pass.
type LearnResult struct {
	Reviewed         int
	Approved         int
	Rejected         int
	PatternsCreated  int
	PatternsPromoted int
	VectorsStored    int
	VectorsRemoved   int
	Errors           []string
}

// Run polls reviewed suggestions since the stored watermark and folds them
// into the pattern store.
func (uc *LearnUseCase) Run(ctx context.Context) (*LearnResult, error) {
	since, err := uc.pollCursor.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("read poll cursor: %w", err)
	}

	items, err := uc.approval.ListReviewedSince(ctx, since, learnPollLimit)
	if err != nil {
		return nil, fmt.Errorf("list reviewed: %w", err)
	}

	existing, err := uc.approval.ListPatterns(ctx, false)
	if err != nil {
		uc.log.Warn().Err(err).Msg("pattern list fetch failed, duplicate checks degraded")
		existing = nil
	}

	res := &LearnResult{}
	watermark := since

	for _, item := range items {
		rev := item.ToReviewed()
		if rev == nil {
			continue
		}
		if rev.ReviewedAt.After(watermark) {
			watermark = rev.ReviewedAt
		}

		fresh, err := uc.stats.MarkProcessed(ctx, rev.SuggestionID, rev.ReviewedAt)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: mark processed: %v", rev.SuggestionID, err))
			continue
		}
		if !fresh {
			continue
		}
		res.Reviewed++

		switch rev.Status {
		case domain.SuggestionApproved, domain.SuggestionAutoApproved:
			res.Approved++
			uc.handleApproval(ctx, rev, existing, res)
		case domain.SuggestionRejected:
			res.Rejected++
			uc.handleRejection(ctx, rev, existing, res)
		}
	}

	uc.retireRejectedPatterns(ctx, existing, res)

	if watermark.After(since) {
		if err := uc.pollCursor.Set(ctx, watermark); err != nil {
			return res, fmt.Errorf("advance poll cursor: %w", err)
		}
	}
	return res, nil
}

func (uc *LearnUseCase) handleApproval(ctx context.Context, rev *domain.ReviewedSuggestion, existing []domain.Pattern, res *LearnResult) {
	tx, err := uc.txRepo.GetByReference(ctx, rev.WiseReference)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("%s: load tx: %v", rev.WiseReference, err))
		return
	}

	if err := uc.txRepo.Resolve(ctx, tx.Reference, domain.StatusMatched, "", uc.clock.Now()); err != nil {
		uc.log.Warn().Err(err).Str("reference", tx.Reference).Msg("matched transition failed")
	}
	if err := uc.stats.RecordApproval(ctx, tx.CounterpartyName, uc.clock.Now()); err != nil {
		uc.log.Warn().Err(err).Str("reference", tx.Reference).Msg("counterparty approval tally failed")
	}

	uc.creditPatterns(ctx, tx, existing, res)

	// A near-duplicate embedding with the same target stores no new vector,
	// and no usage counter is incremented here; a fresh correspondence gets
	// a new vector at the initial boost.
	nearestID, similarity, nearestTarget, err := uc.patterns.Nearest(ctx, tx)
	if err != nil {
		uc.log.Warn().Err(err).Str("reference", tx.Reference).Msg("nearest pattern lookup failed")
	}
	sameTarget := nearestTarget != "" && nearestTarget == fmt.Sprint(rev.GLAccountID)
	if nearestID == "" || similarity < nearDuplicateSimilarity || !sameTarget {
		id := fmt.Sprintf("tx-%s", strings.ToLower(tx.Reference))
		if err := uc.patterns.Store(ctx, id, tx, domain.PatternBoostInitial, fmt.Sprint(rev.GLAccountID), rev.GLAccountName); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: store vector: %v", tx.Reference, err))
		} else {
			res.VectorsStored++
		}
	}

	for _, p := range uc.extractPatterns(tx, rev, existing) {
		if _, err := uc.approval.CreatePattern(ctx, p); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: create pattern: %v", tx.Reference, err))
			continue
		}
		res.PatternsCreated++
	}

	uc.enrich(ctx, tx, rev)
}

func (uc *LearnUseCase) handleRejection(ctx context.Context, rev *domain.ReviewedSuggestion, existing []domain.Pattern, res *LearnResult) {
	tx, err := uc.txRepo.GetByReference(ctx, rev.WiseReference)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("%s: load tx: %v", rev.WiseReference, err))
		return
	}

	if err := uc.txRepo.Resolve(ctx, tx.Reference, domain.StatusUnmatched, "rejected by reviewer", uc.clock.Now()); err != nil {
		uc.log.Warn().Err(err).Str("reference", tx.Reference).Msg("unmatched transition failed")
	}
	if err := uc.stats.RecordRejection(ctx, tx.CounterpartyName, uc.clock.Now()); err != nil {
		uc.log.Warn().Err(err).Str("reference", tx.Reference).Msg("counterparty rejection tally failed")
	}

	// Patterns that vouched for this transaction take the hit: the
	// approval they earned is revoked and the rejection counter moves
	// toward the deactivation limit.
	for i := range existing {
		p := &existing[i]
		if !p.Matches(tx) {
			continue
		}
		p.RevokeApproval()
		p.RecordRejection()
		if err := uc.approval.UpdatePattern(ctx, p); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: update pattern %s: %v", tx.Reference, p.ID, err))
		}
	}
}

// creditPatterns records the approval on every pattern that matched the
// transaction, applies the promotion rule, and persists the outcome. A
// promoted boost is also re-upserted into the vector payload so the next
// nearest-neighbor lookup boosts at the new value.
func (uc *LearnUseCase) creditPatterns(ctx context.Context, tx *domain.BankTransaction, existing []domain.Pattern, res *LearnResult) {
	for i := range existing {
		p := &existing[i]
		if !p.Matches(tx) {
			continue
		}
		p.RecordApproval()
		promoted := p.Promote()

		if err := uc.approval.UpdatePattern(ctx, p); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: update pattern %s: %v", tx.Reference, p.ID, err))
			continue
		}
		if promoted {
			res.PatternsPromoted++
			if err := uc.patterns.Store(ctx, p.ID, tx, p.Boost, p.TargetID, p.TargetName); err != nil {
				uc.log.Warn().Err(err).Str("pattern_id", p.ID).Msg("promoted boost vector refresh failed")
			}
		}
	}
}

// retireRejectedPatterns drops deactivated patterns from the vector search
// set so they stop boosting.
func (uc *LearnUseCase) retireRejectedPatterns(ctx context.Context, patterns []domain.Pattern, res *LearnResult) {
	var retire []string
	for i := range patterns {
		if !patterns[i].Active || patterns[i].TimesRejected >= 3 {
			retire = append(retire, patterns[i].ID)
		}
	}
	if len(retire) == 0 {
		return
	}
	if err := uc.patterns.Remove(ctx, retire...); err != nil {
		uc.log.Warn().Err(err).Int("count", len(retire)).Msg("vector retirement failed")
		return
	}
	res.VectorsRemoved += len(retire)
}

// extractPatterns derives explicit reusable patterns from an approved match,
// skipping values that are near-duplicates of existing patterns.
func (uc *LearnUseCase) extractPatterns(tx *domain.BankTransaction, rev *domain.ReviewedSuggestion, existing []domain.Pattern) []*spectre.NewPattern {
	var out []*spectre.NewPattern
	target := fmt.Sprint(rev.GLAccountID)

	if name := strings.TrimSpace(tx.CounterpartyName); len(name) >= 3 && !uc.hasSimilarValue(existing, domain.PatternCounterparty, name) {
		out = append(out, &spectre.NewPattern{
			PatternType:  string(domain.PatternCounterparty),
			PatternValue: name,
			TargetType:   string(domain.TargetAccount),
			TargetID:     target,
			TargetName:   rev.GLAccountName,
			Description:  fmt.Sprintf("Learned from %s", tx.Reference),
		})
	}

	if tx.PaymentReference != "" {
		for _, shape := range referenceShapes {
			if shape.probe.MatchString(tx.PaymentReference) {
				if !uc.hasSimilarValue(existing, domain.PatternReference, shape.regex) {
					out = append(out, &spectre.NewPattern{
						PatternType:  string(domain.PatternReference),
						PatternValue: shape.regex,
						IsRegex:      true,
						TargetType:   string(domain.TargetAccount),
						TargetID:     target,
						TargetName:   rev.GLAccountName,
						Description:  fmt.Sprintf("Learned from %s", tx.Reference),
					})
				}
				break
			}
		}
	}

	if merchant := strings.TrimSpace(tx.MerchantName); len(merchant) >= 3 && !uc.hasSimilarValue(existing, domain.PatternCounterparty, merchant) {
		out = append(out, &spectre.NewPattern{
			PatternType:  string(domain.PatternCounterparty),
			PatternValue: merchant,
			TargetType:   string(domain.TargetAccount),
			TargetID:     target,
			TargetName:   rev.GLAccountName,
			Description:  fmt.Sprintf("Learned from card merchant on %s", tx.Reference),
		})
	}

	return out
}

// hasSimilarValue reports whether an existing pattern of the same kind has a
// value within edit distance of the candidate value.
func (uc *LearnUseCase) hasSimilarValue(existing []domain.Pattern, kind domain.PatternKind, value string) bool {
	needle := strings.ToLower(strings.TrimSpace(value))
	for i := range existing {
		if existing[i].Kind != kind {
			continue
		}
		have := strings.ToLower(strings.TrimSpace(existing[i].Value))
		if have == needle {
			return true
		}
		longest := max(len(have), len(needle))
		if longest == 0 {
			continue
		}
		dist := levenshtein.ComputeDistance(have, needle)
		if 1-float64(dist)/float64(longest) >= valueSimilarityMin {
			return true
		}
	}
	return false
}

func (uc *LearnUseCase) enrich(ctx context.Context, tx *domain.BankTransaction, rev *domain.ReviewedSuggestion) {
	if rev.GLTransactionID == "" {
		return
	}

	ic := matching.ClassifyIntercompany(tx, uc.entities)

	e := &domain.Enrichment{
		NetsuiteTransactionID: rev.GLTransactionID,
		WiseTransactionID:     tx.Reference,
		CounterpartyName:      tx.CounterpartyName,
		CounterpartyIBAN:      tx.CounterpartyAccount,
		PaymentReference:      tx.PaymentReference,
		FXRate:                tx.ExchangeRate,
		FromAmount:            tx.FromAmount,
		FromCurrency:          tx.FromCurrency,
		Fees:                  tx.Fees,
		MerchantName:          tx.MerchantName,
		CardLast4:             tx.CardLast4,
		IsIntercompany:        &ic.IsIntercompany,
		ICEntity:              ic.CounterpartyEntity,
	}
	if err := uc.approval.Enrich(ctx, e); err != nil {
		uc.log.Warn().Err(err).Str("reference", tx.Reference).Msg("enrichment delivery failed")
	}
}
