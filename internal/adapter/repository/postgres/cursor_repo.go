package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/phygrid/wiserecon/internal/domain"
)

// CursorRepository persists per-(profile, currency) sync cursors. The
// acquire transaction takes a row lock, so its writes ride the retrier.
type CursorRepository struct {
	pool    *pgxpool.Pool
	retrier *Retrier
}

// NewCursorRepository creates a new CursorRepository.
func NewCursorRepository(pool *pgxpool.Pool, retrier *Retrier) *CursorRepository {
	return &CursorRepository{pool: pool, retrier: retrier}
}

func (r *CursorRepository) retry(ctx context.Context, op func() error) error {
	if r.retrier == nil {
		return op()
	}
	return r.retrier.Retry(ctx, op)
}

// Acquire flips the cursor to syncing, creating the row on first sight.
// Returns ErrCursorBusy when another worker already holds it; the row-level
// lock serializes the check-and-set.
func (r *CursorRepository) Acquire(ctx context.Context, profileID int64, currency, entityName string, balanceID int64) (*domain.SyncCursor, error) {
	var cursor *domain.SyncCursor
	err := r.retry(ctx, func() error {
		var err error
		cursor, err = r.acquireOnce(ctx, profileID, currency, entityName, balanceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cursor, nil
}

func (r *CursorRepository) acquireOnce(ctx context.Context, profileID int64, currency, entityName string, balanceID int64) (*domain.SyncCursor, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO sync_cursors (profile_id, currency, entity_name, balance_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (profile_id, currency) DO NOTHING`,
		profileID, currency, entityName, balanceID)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		SELECT id, profile_id, currency, entity_name, balance_id, status,
		       COALESCE(error_message, ''), last_synced_at, last_end_date, tx_count
		FROM sync_cursors
		WHERE profile_id = $1 AND currency = $2
		FOR UPDATE`, profileID, currency)

	cursor, err := scanCursor(row)
	if err != nil {
		return nil, err
	}
	if cursor.Status == domain.SyncSyncing {
		return nil, domain.ErrCursorBusy
	}

	_, err = tx.Exec(ctx, `
		UPDATE sync_cursors
		SET status = 'syncing', error_message = NULL, balance_id = $2
		WHERE id = $1`, cursor.ID, balanceID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	cursor.Status = domain.SyncSyncing
	cursor.BalanceID = balanceID
	cursor.Error = ""
	return cursor, nil
}

// Complete releases the cursor after a successful sync, advancing the
// watermark and bumping the transaction count.
func (r *CursorRepository) Complete(ctx context.Context, id int64, endDate time.Time, count int, at time.Time) error {
	return r.retry(ctx, func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE sync_cursors
			SET status = 'idle',
			    error_message = NULL,
			    last_synced_at = $2,
			    last_end_date = $3,
			    tx_count = tx_count + $4
			WHERE id = $1`, id, at, endDate, count)
		return err
	})
}

// Fail releases the cursor after a failed sync without advancing the
// watermark, so the next run retries the same window.
func (r *CursorRepository) Fail(ctx context.Context, id int64, message string) error {
	return r.retry(ctx, func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE sync_cursors
			SET status = 'error', error_message = $2
			WHERE id = $1`, id, message)
		return err
	})
}

// Get loads one cursor.
func (r *CursorRepository) Get(ctx context.Context, profileID int64, currency string) (*domain.SyncCursor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, profile_id, currency, entity_name, balance_id, status,
		       COALESCE(error_message, ''), last_synced_at, last_end_date, tx_count
		FROM sync_cursors
		WHERE profile_id = $1 AND currency = $2`, profileID, currency)

	cursor, err := scanCursor(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCursorNotFound
		}
		return nil, err
	}
	return cursor, nil
}

func scanCursor(row pgx.Row) (*domain.SyncCursor, error) {
	var (
		c      domain.SyncCursor
		status string
	)
	err := row.Scan(&c.ID, &c.ProfileID, &c.Currency, &c.EntityName, &c.BalanceID,
		&status, &c.Error, &c.LastSyncedAt, &c.LastEndDate, &c.Count)
	if err != nil {
		return nil, err
	}
	c.Status = domain.SyncStatus(status)
	return &c, nil
}
