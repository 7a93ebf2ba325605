package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/phygrid/wiserecon/internal/adapter/wise"
	"github.com/phygrid/wiserecon/internal/domain"
	"github.com/phygrid/wiserecon/internal/infrastructure/metrics"
)

// SyncConfig tunes the ingestion windows.
type SyncConfig struct {
	// Overlap is subtracted from the watermark to catch retroactive
	// postings; the upsert keeps the replay idempotent.
	Overlap time.Duration
	// InitialBack is the window used on a cursor's first sync.
	InitialBack time.Duration
}

// SyncUseCase ingests bank statements incrementally per (profile, currency).
type SyncUseCase struct {
	bank     BankClient
	txRepo   TransactionRepository
	cursors  CursorRepository
	entities *domain.EntityRegistry
	notifier Notifier
	clock    Clock
	cfg      SyncConfig
	log      zerolog.Logger
	mtr      *metrics.Metrics
}

// WithMetrics attaches the Prometheus registry. Optional.
func (uc *SyncUseCase) WithMetrics(m *metrics.Metrics) *SyncUseCase {
	uc.mtr = m
	return uc
}

// NewSyncUseCase creates a new SyncUseCase.
func NewSyncUseCase(
	bank BankClient,
	txRepo TransactionRepository,
	cursors CursorRepository,
	entities *domain.EntityRegistry,
	notifier Notifier,
	clock Clock,
	cfg SyncConfig,
	log zerolog.Logger,
) *SyncUseCase {
	return &SyncUseCase{
		bank:     bank,
		txRepo:   txRepo,
		cursors:  cursors,
		entities: entities,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
		log:      log,
	}
}

// SyncResult summarizes one profile sync.
type SyncResult struct {
	ProfileID  int64
	EntityName string
	Synced     int
	Skipped    int
	Errors     []string
}

// SyncProfile ingests every currency balance of one profile.
func (uc *SyncUseCase) SyncProfile(ctx context.Context, profileID int64) (*SyncResult, error) {
	entity, ok := uc.entities.ByProfile(profileID)
	if !ok {
		return nil, fmt.Errorf("profile %d has no entity mapping", profileID)
	}

	res := &SyncResult{ProfileID: profileID, EntityName: entity.DisplayName}

	balances, err := uc.bank.ListBalances(ctx, profileID)
	if err != nil {
		if errors.Is(err, domain.ErrAuthRequired) || errors.Is(err, domain.ErrSigningFailed) {
			uc.notifier.PostAuthFailure(ctx, entity.DisplayName, err)
		}
		return nil, fmt.Errorf("list balances for profile %d: %w", profileID, err)
	}

	for _, balance := range balances {
		synced, err := uc.syncBalance(ctx, entity, balance)
		if err != nil {
			if errors.Is(err, domain.ErrCursorBusy) {
				res.Skipped++
				continue
			}
			if errors.Is(err, domain.ErrAuthRequired) || errors.Is(err, domain.ErrSigningFailed) {
				// Fatal for the batch: surface and stop without advancing
				// any further cursor.
				uc.notifier.PostAuthFailure(ctx, entity.DisplayName, err)
				return res, err
			}
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", balance.Currency, err))
			continue
		}
		res.Synced += synced
	}
	return res, nil
}

// SyncAll ingests every configured entity profile.
func (uc *SyncUseCase) SyncAll(ctx context.Context) (map[int64]*SyncResult, error) {
	results := make(map[int64]*SyncResult)
	for _, entity := range uc.entities.All() {
		res, err := uc.SyncProfile(ctx, entity.ProfileID)
		if err != nil {
			uc.log.Error().Err(err).Int64("profile_id", entity.ProfileID).Msg("profile sync failed")
			results[entity.ProfileID] = &SyncResult{
				ProfileID:  entity.ProfileID,
				EntityName: entity.DisplayName,
				Errors:     []string{err.Error()},
			}
			continue
		}
		results[entity.ProfileID] = res
	}
	return results, nil
}

func (uc *SyncUseCase) syncBalance(ctx context.Context, entity *domain.Entity, balance wise.Balance) (int, error) {
	cursor, err := uc.cursors.Acquire(ctx, entity.ProfileID, balance.Currency, entity.DisplayName, balance.ID)
	if err != nil {
		return 0, err
	}

	now := uc.clock.Now()
	start := now.Add(-uc.cfg.InitialBack)
	if cursor.LastEndDate != nil {
		start = cursor.LastEndDate.Add(-uc.cfg.Overlap)
	}

	count, err := uc.fetchAndStore(ctx, entity, balance, start, now)
	if err != nil {
		if failErr := uc.cursors.Fail(ctx, cursor.ID, err.Error()); failErr != nil {
			uc.log.Error().Err(failErr).Int64("cursor_id", cursor.ID).Msg("cursor fail-state write failed")
		}
		if uc.mtr != nil {
			uc.mtr.SyncRuns.WithLabelValues("error").Inc()
		}
		return 0, err
	}

	if err := uc.cursors.Complete(ctx, cursor.ID, now, count, uc.clock.Now()); err != nil {
		return count, fmt.Errorf("advance cursor: %w", err)
	}
	if uc.mtr != nil {
		uc.mtr.SyncRuns.WithLabelValues("ok").Inc()
		uc.mtr.TransactionsSynced.WithLabelValues(entity.DisplayName, balance.Currency).Add(float64(count))
		uc.mtr.SyncDuration.Observe(uc.clock.Now().Sub(now).Seconds())
	}

	uc.log.Info().
		Str("entity", entity.DisplayName).
		Str("currency", balance.Currency).
		Int("count", count).
		Msg("balance synced")
	return count, nil
}

func (uc *SyncUseCase) fetchAndStore(ctx context.Context, entity *domain.Entity, balance wise.Balance, start, end time.Time) (int, error) {
	statement, err := uc.bank.GetStatement(ctx, entity.ProfileID, balance.ID, balance.Currency, start, end)
	if err != nil {
		if errors.Is(err, domain.ErrRangeTooLarge) {
			// Split the window once and retry both halves.
			mid := start.Add(end.Sub(start) / 2)
			first, err := uc.fetchWindow(ctx, entity, balance, start, mid)
			if err != nil {
				return 0, err
			}
			second, err := uc.fetchWindow(ctx, entity, balance, mid, end)
			if err != nil {
				return first, err
			}
			return first + second, nil
		}
		if wise.IsNotFound(err) {
			// No statement for this balance.
			return 0, nil
		}
		return 0, err
	}
	return uc.store(ctx, entity, statement)
}

func (uc *SyncUseCase) fetchWindow(ctx context.Context, entity *domain.Entity, balance wise.Balance, start, end time.Time) (int, error) {
	statement, err := uc.bank.GetStatement(ctx, entity.ProfileID, balance.ID, balance.Currency, start, end)
	if err != nil {
		if wise.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return uc.store(ctx, entity, statement)
}

func (uc *SyncUseCase) store(ctx context.Context, entity *domain.Entity, statement *wise.Statement) (int, error) {
	txs := statement.Transactions
	for i := range txs {
		txs[i].Entity = entity.DisplayName
	}
	return uc.txRepo.Upsert(ctx, txs, uc.clock.Now())
}
