package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StatsRepository tracks per-counterparty review statistics and the
// exactly-once ledger of processed review events. The upsert writes ride
// the retrier.
type StatsRepository struct {
	pool    *pgxpool.Pool
	retrier *Retrier
}

// NewStatsRepository creates a new StatsRepository.
func NewStatsRepository(pool *pgxpool.Pool, retrier *Retrier) *StatsRepository {
	return &StatsRepository{pool: pool, retrier: retrier}
}

func (r *StatsRepository) retry(ctx context.Context, op func() error) error {
	if r.retrier == nil {
		return op()
	}
	return r.retrier.Retry(ctx, op)
}

// MarkProcessed records a (suggestion_id, reviewed_at) pair. Returns false
// when the pair was already processed, which makes review handling
// exactly-once across restarts.
func (r *StatsRepository) MarkProcessed(ctx context.Context, suggestionID string, reviewedAt time.Time) (bool, error) {
	fresh := false
	err := r.retry(ctx, func() error {
		tag, err := r.pool.Exec(ctx, `
			INSERT INTO processed_reviews (suggestion_id, reviewed_at)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, suggestionID, reviewedAt)
		if err != nil {
			return err
		}
		fresh = tag.RowsAffected() > 0
		return nil
	})
	return fresh, err
}

// RecordApproval bumps a counterparty's approval counter.
func (r *StatsRepository) RecordApproval(ctx context.Context, counterparty string, at time.Time) error {
	if counterparty == "" {
		return nil
	}
	return r.retry(ctx, func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO counterparty_stats (counterparty, approvals, updated_at)
			VALUES ($1, 1, $2)
			ON CONFLICT (counterparty) DO UPDATE
			SET approvals = counterparty_stats.approvals + 1, updated_at = $2`,
			counterparty, at)
		return err
	})
}

// RecordRejection bumps a counterparty's rejection counter and claws one
// approval back, flooring at zero so counters never go negative.
func (r *StatsRepository) RecordRejection(ctx context.Context, counterparty string, at time.Time) error {
	if counterparty == "" {
		return nil
	}
	return r.retry(ctx, func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO counterparty_stats (counterparty, rejections, updated_at)
			VALUES ($1, 1, $2)
			ON CONFLICT (counterparty) DO UPDATE
			SET rejections = counterparty_stats.rejections + 1,
			    approvals = GREATEST(counterparty_stats.approvals - 1, 0),
			    updated_at = $2`,
			counterparty, at)
		return err
	})
}

// Approvals returns how many approvals a counterparty has accumulated.
func (r *StatsRepository) Approvals(ctx context.Context, counterparty string) (int, error) {
	if counterparty == "" {
		return 0, nil
	}
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(approvals, 0) FROM counterparty_stats WHERE counterparty = $1`,
		counterparty).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}
