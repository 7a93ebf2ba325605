package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// SchedulerConfig tunes the batch cadence.
type SchedulerConfig struct {
	Interval   time.Duration
	DigestHour int
}

// Scheduler drives the batch cadence: sync, reconcile and learn on a fixed
// interval, plus the daily digest at the configured local hour.
type Scheduler struct {
	sync     *SyncUseCase
	recon    *ReconcileUseCase
	learn    *LearnUseCase
	txRepo   TransactionRepository
	notifier Notifier
	clock    Clock
	cfg      SchedulerConfig
	log      zerolog.Logger
}

// NewScheduler creates a new Scheduler.
func NewScheduler(
	sync *SyncUseCase,
	recon *ReconcileUseCase,
	learn *LearnUseCase,
	txRepo TransactionRepository,
	notifier Notifier,
	clock Clock,
	cfg SchedulerConfig,
	log zerolog.Logger,
) *Scheduler {
	return &Scheduler{
		sync:     sync,
		recon:    recon,
		learn:    learn,
		txRepo:   txRepo,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
		log:      log,
	}
}

// Run blocks until the context is cancelled, firing cycles on the interval
// and the digest once per day.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	digestTimer := time.NewTimer(time.Until(NextDigest(s.clock.Now().Local(), s.cfg.DigestHour)))
	defer digestTimer.Stop()

	s.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunCycle(ctx)
		case <-digestTimer.C:
			s.RunDigest(ctx)
			digestTimer.Reset(time.Until(NextDigest(s.clock.Now().Local(), s.cfg.DigestHour)))
		}
	}
}

// RunCycle executes one full pipeline pass.
func (s *Scheduler) RunCycle(ctx context.Context) {
	started := s.clock.Now()
	s.log.Info().Msg("scheduler cycle starting")

	if _, err := s.sync.SyncAll(ctx); err != nil {
		s.log.Error().Err(err).Msg("scheduled sync failed")
	}
	if _, err := s.recon.RunAll(ctx); err != nil {
		s.log.Error().Err(err).Msg("scheduled reconcile failed")
	}
	if _, err := s.learn.Run(ctx); err != nil {
		s.log.Error().Err(err).Msg("scheduled learning pass failed")
	}

	s.log.Info().Dur("duration", s.clock.Now().Sub(started)).Msg("scheduler cycle finished")
}

// RunDigest posts the daily pending-approvals digest.
func (s *Scheduler) RunDigest(ctx context.Context) {
	byEntity, total, err := s.txRepo.PendingSummary(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("digest summary query failed")
		return
	}
	count := 0
	for _, n := range byEntity {
		count += n
	}
	s.notifier.PostDailyDigest(ctx, count, total, byEntity)
}

// NextDigest returns the next occurrence of the digest hour after now.
func NextDigest(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
