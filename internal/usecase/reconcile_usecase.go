package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/phygrid/wiserecon/internal/adapter/slack"
	"github.com/phygrid/wiserecon/internal/adapter/spectre"
	"github.com/phygrid/wiserecon/internal/domain"
	"github.com/phygrid/wiserecon/internal/infrastructure/metrics"
	"github.com/phygrid/wiserecon/internal/matching"
)

// ErrBatchInFlight is returned when a batch for the entity is already running.
var ErrBatchInFlight = errors.New("batch already in flight for entity")

// ReconcileConfig tunes the orchestrator.
type ReconcileConfig struct {
	MaxTxPerRun        int
	BatchDeadline      time.Duration
	TxDeadline         time.Duration
	Workers            int
	DateWindowDays     int
	QuarantineAlertMin int
}

// BatchResult summarizes one orchestrator run.
type BatchResult struct {
	BatchID     string
	EntityName  string
	Start       time.Time
	End         time.Time
	Processed   int
	ByTier      map[string]int
	ByAction    map[string]int
	Unmatched   int
	Quarantined int
	Submitted   int
	Errors      []string
	Duration    time.Duration
}

// ReconcileUseCase runs the per-entity scoring pipeline: select pending
// transactions, fetch GL candidates, run the matcher cascade, apply the
// pattern boost, compose confidence, and emit suggestions.
type ReconcileUseCase struct {
	txRepo   TransactionRepository
	txm      TransactionManager
	glFetch  *GLFetcher
	patterns *PatternIndex
	stats    StatsRepository
	approval ApprovalClient
	leases   LeaseStore
	pipeline *matching.Pipeline
	entities *domain.EntityRegistry
	notifier Notifier
	idGen    IDGenerator
	clock    Clock
	cfg      ReconcileConfig
	log      zerolog.Logger

	mtr *metrics.Metrics

	// Single leader per entity: only one batch per entity in flight.
	leaderMu sync.Mutex
	leaders  map[string]bool
}

// WithMetrics attaches the Prometheus registry. Optional; a nil receiver
// field just skips instrumentation.
func (uc *ReconcileUseCase) WithMetrics(m *metrics.Metrics) *ReconcileUseCase {
	uc.mtr = m
	return uc
}

// NewReconcileUseCase creates a new ReconcileUseCase.
func NewReconcileUseCase(
	txRepo TransactionRepository,
	txm TransactionManager,
	glFetch *GLFetcher,
	patterns *PatternIndex,
	stats StatsRepository,
	approval ApprovalClient,
	leases LeaseStore,
	pipeline *matching.Pipeline,
	entities *domain.EntityRegistry,
	notifier Notifier,
	idGen IDGenerator,
	clock Clock,
	cfg ReconcileConfig,
	log zerolog.Logger,
) *ReconcileUseCase {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	return &ReconcileUseCase{
		txRepo:   txRepo,
		txm:      txm,
		glFetch:  glFetch,
		patterns: patterns,
		stats:    stats,
		approval: approval,
		leases:   leases,
		pipeline: pipeline,
		entities: entities,
		notifier: notifier,
		idGen:    idGen,
		clock:    clock,
		cfg:      cfg,
		log:      log,
		leaders:  make(map[string]bool),
	}
}

// RunBatch reconciles the pending transactions of one entity.
func (uc *ReconcileUseCase) RunBatch(ctx context.Context, entityKey string) (*BatchResult, error) {
	entity, ok := uc.entities.ByName(entityKey)
	if !ok {
		if entity, ok = uc.entityByKey(entityKey); !ok {
			return nil, fmt.Errorf("unknown entity %q", entityKey)
		}
	}

	if !uc.acquireLeader(entity.Key) {
		return nil, ErrBatchInFlight
	}
	defer uc.releaseLeader(entity.Key)

	started := uc.clock.Now()
	ctx, cancel := context.WithTimeout(ctx, uc.cfg.BatchDeadline)
	defer cancel()

	res := &BatchResult{
		BatchID:    uc.idGen.Generate(),
		EntityName: entity.DisplayName,
		Start:      started,
		ByTier:     make(map[string]int),
		ByAction:   make(map[string]int),
	}

	txs, err := uc.txRepo.ListPending(ctx, entity.DisplayName, uc.cfg.MaxTxPerRun)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	res.Processed = len(txs)

	// Patterns are shared across the batch; a degraded fetch just means
	// no explicit-pattern signal this run.
	patterns, err := uc.approval.ListPatterns(ctx, true)
	if err != nil {
		uc.log.Warn().Err(err).Msg("pattern fetch failed, matching without explicit patterns")
		patterns = nil
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, uc.cfg.Workers)
	)

	for _, tx := range txs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(tx *domain.BankTransaction) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := uc.processTx(ctx, entity, tx, patterns, res.BatchID)

			mu.Lock()
			defer mu.Unlock()
			switch outcome.kind {
			case outcomeSubmitted:
				res.Submitted++
				res.ByAction[string(outcome.action)]++
				if outcome.tier == "" {
					res.Unmatched++
				} else {
					res.ByTier[string(outcome.tier)]++
				}
				if uc.mtr != nil {
					uc.mtr.MatchAttempts.Inc()
					uc.mtr.MatchesByTier.WithLabelValues(string(outcome.tier)).Inc()
					uc.mtr.MatchesByAction.WithLabelValues(string(outcome.action)).Inc()
					uc.mtr.SuggestionsSubmitted.WithLabelValues(string(outcome.action)).Inc()
				}
			case outcomeQuarantined:
				res.Quarantined++
				res.Errors = append(res.Errors, outcome.err.Error())
				if uc.mtr != nil {
					uc.mtr.QuarantinedItems.Inc()
				}
			case outcomeFailed:
				res.Errors = append(res.Errors, outcome.err.Error())
				if uc.mtr != nil {
					uc.mtr.SubmitErrors.Inc()
				}
			case outcomeSkipped:
				// Lease conflict or stale attempt: dropped without a write.
				if uc.mtr != nil {
					uc.mtr.LeaseConflicts.Inc()
				}
			}
		}(tx)
	}
	wg.Wait()

	res.End = uc.clock.Now()
	res.Duration = res.End.Sub(started)

	uc.notify(ctx, entity, res)
	return res, nil
}

// RunAll reconciles every configured entity. Cross-entity batches run
// sequentially here; callers wanting parallelism start one RunBatch per
// entity, and the per-entity leader flag keeps that safe.
func (uc *ReconcileUseCase) RunAll(ctx context.Context) (map[string]*BatchResult, error) {
	results := make(map[string]*BatchResult)
	for _, entity := range uc.entities.All() {
		res, err := uc.RunBatch(ctx, entity.Key)
		if err != nil {
			if errors.Is(err, ErrBatchInFlight) {
				continue
			}
			uc.log.Error().Err(err).Str("entity", entity.Key).Msg("batch failed")
			continue
		}
		results[entity.Key] = res
	}
	return results, nil
}

type outcomeKind int

const (
	outcomeSubmitted outcomeKind = iota
	outcomeSkipped
	outcomeQuarantined
	outcomeFailed
)

type txOutcome struct {
	kind   outcomeKind
	tier   domain.Tier
	action domain.Action
	err    error
}

func (uc *ReconcileUseCase) processTx(ctx context.Context, entity *domain.Entity, tx *domain.BankTransaction, patterns []domain.Pattern, batchID string) txOutcome {
	ctx, cancel := context.WithTimeout(ctx, uc.cfg.TxDeadline)
	defer cancel()

	if err := uc.leases.Acquire(ctx, tx.Reference, batchID); err != nil {
		if errors.Is(err, domain.ErrLeaseConflict) {
			uc.log.Debug().Str("reference", tx.Reference).Msg("lease held elsewhere, skipping")
			return txOutcome{kind: outcomeSkipped}
		}
		return txOutcome{kind: outcomeFailed, err: fmt.Errorf("%s: lease: %w", tx.Reference, err)}
	}
	defer func() {
		if err := uc.leases.Release(context.WithoutCancel(ctx), tx.Reference, batchID); err != nil {
			uc.log.Warn().Err(err).Str("reference", tx.Reference).Msg("lease release failed")
		}
	}()

	if reason := validateTx(tx); reason != "" {
		// Quarantine: the record is excluded without infecting the batch.
		if err := uc.txRepo.Resolve(ctx, tx.Reference, domain.StatusUnmatched, reason, uc.clock.Now()); err != nil {
			uc.log.Warn().Err(err).Str("reference", tx.Reference).Msg("quarantine write failed")
		}
		return txOutcome{kind: outcomeQuarantined, err: fmt.Errorf("%s: quarantined: %s", tx.Reference, reason)}
	}

	// Re-read under the lease: if another worker scored this transaction
	// between selection and now, the attempts counter moved and this
	// result would be stale.
	fresh, err := uc.txRepo.GetByReference(ctx, tx.Reference)
	if err != nil {
		return txOutcome{kind: outcomeFailed, err: fmt.Errorf("%s: reread: %w", tx.Reference, err)}
	}
	if fresh.Attempts != tx.Attempts || fresh.Status != domain.StatusPending {
		return txOutcome{kind: outcomeSkipped}
	}

	window := time.Duration(uc.cfg.DateWindowDays) * 24 * time.Hour
	entries, err := uc.glFetch.Get(ctx, entity.SubsidiaryID, tx.OccurredAt.Add(-window), tx.OccurredAt.Add(window), nil)
	if err != nil {
		return txOutcome{kind: outcomeFailed, err: fmt.Errorf("%s: gl fetch: %w", tx.Reference, err)}
	}

	cands, err := uc.pipeline.Run(ctx, matching.Input{
		Tx:       tx,
		Entries:  entries,
		Patterns: patterns,
		Entities: uc.entities,
	})
	if err != nil {
		return txOutcome{kind: outcomeFailed, err: fmt.Errorf("%s: match: %w", tx.Reference, err)}
	}

	boost := uc.patterns.Boost(ctx, tx)
	priorApprovals := 0
	if tx.CounterpartyName != "" {
		if n, err := uc.stats.Approvals(ctx, tx.CounterpartyName); err == nil {
			priorApprovals = n
		}
	}

	for _, c := range cands {
		sig := matching.Signals{
			IsIntercompany:    c.IsIntercompany,
			PatternBoost:      boost.Boost,
			PatternSimilarity: boost.Similarity,
			PriorApprovals:    priorApprovals,
			FXVariance:        impliedFXVariance(tx),
			DateDriftDays:     businessDaysBetween(tx.OccurredAt, c.GLDate),
		}
		scored := matching.Score(c.Score, sig)
		c.Score = scored.Final
		c.Reasons = append(c.Reasons, scored.Reasons...)
	}

	now := uc.clock.Now()
	best := domain.SelectBest(cands, tx.Amount, tx.OccurredAt)
	suggestion, tier, action := uc.buildSuggestion(tx, best)

	// Step 6 before step 7: the candidate audit and the status advance
	// commit as one unit, and a failed emission rolls the status back
	// while attempts stay recorded.
	dbtx, err := uc.txm.Begin(ctx)
	if err != nil {
		return txOutcome{kind: outcomeFailed, err: fmt.Errorf("%s: begin: %w", tx.Reference, err)}
	}
	if err := uc.txRepo.SaveCandidates(ctx, dbtx, cands, now); err != nil {
		uc.rollback(ctx, dbtx, tx.Reference)
		return txOutcome{kind: outcomeFailed, err: fmt.Errorf("%s: candidate audit: %w", tx.Reference, err)}
	}
	if err := uc.txRepo.MarkSubmitted(ctx, dbtx, tx.Reference, "", suggestion.ConfidenceScore, tx.Attempts, now); err != nil {
		uc.rollback(ctx, dbtx, tx.Reference)
		if errors.Is(err, domain.ErrStaleAttempt) {
			return txOutcome{kind: outcomeSkipped}
		}
		return txOutcome{kind: outcomeFailed, err: fmt.Errorf("%s: mark submitted: %w", tx.Reference, err)}
	}
	if err := dbtx.Commit(ctx); err != nil {
		return txOutcome{kind: outcomeFailed, err: fmt.Errorf("%s: commit: %w", tx.Reference, err)}
	}

	resp, err := uc.approval.SubmitSuggestion(ctx, suggestion)
	if err != nil {
		if revertErr := uc.txRepo.RevertToPending(context.WithoutCancel(ctx), tx.Reference, uc.clock.Now()); revertErr != nil {
			uc.log.Error().Err(revertErr).Str("reference", tx.Reference).Msg("rollback to pending failed")
		}
		return txOutcome{kind: outcomeFailed, err: fmt.Errorf("%s: submit: %w", tx.Reference, err)}
	}

	if err := uc.txRepo.SetSuggestionID(ctx, tx.Reference, resp.ID); err != nil {
		uc.log.Warn().Err(err).Str("reference", tx.Reference).Msg("suggestion id write failed")
	}

	return txOutcome{kind: outcomeSubmitted, tier: tier, action: action}
}

func (uc *ReconcileUseCase) rollback(ctx context.Context, dbtx Transaction, reference string) {
	if err := dbtx.Rollback(context.WithoutCancel(ctx)); err != nil {
		uc.log.Warn().Err(err).Str("reference", reference).Msg("transaction rollback failed")
	}
}

func (uc *ReconcileUseCase) buildSuggestion(tx *domain.BankTransaction, best *domain.Candidate) (*spectre.Suggestion, domain.Tier, domain.Action) {
	s := &spectre.Suggestion{
		WiseTransactionID: tx.Reference,
		WiseProfileID:     tx.ProfileID,
		EntityName:        tx.Entity,
		TransactionDate:   tx.OccurredAt,
		Amount:            tx.Amount,
		Currency:          tx.Currency,
		TransactionType:   string(tx.Kind),
		Description:       tx.Description,
		Counterparty:      tx.CounterpartyName,
	}

	if best == nil {
		s.MatchType = "unmatched"
		s.ConfidenceScore = decimal.Zero
		s.RecommendedAction = string(domain.ActionManual)
		s.MatchReasons = []string{"no-candidate"}
		ic := matching.ClassifyIntercompany(tx, uc.entities)
		s.IsIntercompany = ic.IsIntercompany
		s.CounterpartyEntity = ic.CounterpartyEntity
		return s, "", domain.ActionManual
	}

	action := domain.ActionFor(best.Score)
	s.MatchType = string(best.Tier)
	s.ConfidenceScore = best.Score
	s.RecommendedAction = string(action)
	s.MatchReasons = best.Reasons
	s.Explanation = best.Explanation
	s.NetsuiteTransactionID = best.GLTransactionID
	s.NetsuiteLineID = best.GLLineID
	s.NetsuiteType = best.GLType
	s.SuggestedAccountID = best.GLAccountID
	s.SuggestedAccountName = best.GLAccountName
	s.IsIntercompany = best.IsIntercompany
	s.CounterpartyEntity = best.CounterpartyEntity
	s.ModelID = best.ModelID
	s.PromptVersion = best.PromptVersion
	return s, best.Tier, action
}

func (uc *ReconcileUseCase) notify(ctx context.Context, entity *domain.Entity, res *BatchResult) {
	uc.notifier.PostBatchSummary(ctx, &slack.BatchSummary{
		EntityName:  entity.DisplayName,
		Start:       res.Start,
		End:         res.End,
		Processed:   res.Processed,
		ByTier:      res.ByTier,
		ByAction:    res.ByAction,
		Unmatched:   res.Unmatched,
		Quarantined: res.Quarantined,
		Duration:    res.Duration,
	})
	if res.Quarantined > uc.cfg.QuarantineAlertMin {
		uc.notifier.PostDiscrepancyAlert(ctx, entity.DisplayName,
			fmt.Sprintf("%d records quarantined in batch %s", res.Quarantined, res.BatchID))
	}
}

func (uc *ReconcileUseCase) acquireLeader(entityKey string) bool {
	uc.leaderMu.Lock()
	defer uc.leaderMu.Unlock()
	if uc.leaders[entityKey] {
		return false
	}
	uc.leaders[entityKey] = true
	return true
}

func (uc *ReconcileUseCase) releaseLeader(entityKey string) {
	uc.leaderMu.Lock()
	defer uc.leaderMu.Unlock()
	delete(uc.leaders, entityKey)
}

func (uc *ReconcileUseCase) entityByKey(key string) (*domain.Entity, bool) {
	for _, e := range uc.entities.All() {
		if e.Key == key {
			entity := e
			return &entity, true
		}
	}
	return nil, false
}

// validateTx rejects records the matchers cannot reason about.
func validateTx(tx *domain.BankTransaction) string {
	switch {
	case tx.Reference == "":
		return "missing reference"
	case tx.Amount.IsZero():
		return "zero amount"
	case len(tx.Currency) != 3:
		return fmt.Sprintf("malformed currency %q", tx.Currency)
	case tx.OccurredAt.IsZero():
		return "missing date"
	default:
		return ""
	}
}

// impliedFXVariance compares the statement's exchange rate with the rate
// implied by the settled and source amounts. A spread above 2% flags a
// suspicious conversion.
func impliedFXVariance(tx *domain.BankTransaction) *decimal.Decimal {
	if !tx.CrossCurrency() || tx.ExchangeRate == nil || tx.FromAmount == nil || tx.FromAmount.IsZero() {
		return nil
	}
	implied := tx.Amount.Abs().Div(tx.FromAmount.Abs())
	return matching.FXVariance(tx.ExchangeRate, &implied)
}

// businessDaysBetween counts weekdays between two dates. Postings routinely
// land across a weekend, so drift is measured in banking days.
func businessDaysBetween(a, b time.Time) int {
	from := a.UTC().Truncate(24 * time.Hour)
	to := b.UTC().Truncate(24 * time.Hour)
	if from.After(to) {
		from, to = to, from
	}

	days := 0
	for d := from.AddDate(0, 0, 1); !d.After(to); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days++
		}
	}
	return days
}
