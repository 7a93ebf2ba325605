package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/phygrid/wiserecon/internal/domain"
	"github.com/phygrid/wiserecon/internal/usecase"
)

// TransactionRepository persists bank transactions. Writes that can hit a
// deadlock or serialization failure go through the retrier.
type TransactionRepository struct {
	pool    *pgxpool.Pool
	retrier *Retrier
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(pool *pgxpool.Pool, retrier *Retrier) *TransactionRepository {
	return &TransactionRepository{pool: pool, retrier: retrier}
}

func (r *TransactionRepository) retry(ctx context.Context, op func() error) error {
	if r.retrier == nil {
		return op()
	}
	return r.retrier.Retry(ctx, op)
}

const txColumns = `reference, entity_name, profile_id, direction, kind, occurred_at,
	amount, currency, description, payment_reference, counterparty_name,
	counterparty_account, from_amount, from_currency, exchange_rate, fees,
	running_balance, merchant_name, merchant_category, card_last4, cardholder,
	match_status, last_attempt_at, attempts, best_confidence, suggestion_id,
	fetched_at, created_at, updated_at`

// Upsert inserts statement lines by reference. Existing rows only refresh
// mutable statement fields; match state never regresses through ingestion,
// so replaying a window is idempotent.
func (r *TransactionRepository) Upsert(ctx context.Context, txs []domain.BankTransaction, now time.Time) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for i := range txs {
		t := &txs[i]
		batch.Queue(`
			INSERT INTO bank_transactions (
				reference, entity_name, profile_id, direction, kind, occurred_at,
				amount, currency, description, payment_reference, counterparty_name,
				counterparty_account, from_amount, from_currency, exchange_rate, fees,
				running_balance, merchant_name, merchant_category, card_last4, cardholder,
				match_status, fetched_at, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
				$16, $17, $18, $19, $20, $21, 'pending', $22, $22, $22
			)
			ON CONFLICT (reference) DO UPDATE SET
				description          = EXCLUDED.description,
				payment_reference    = EXCLUDED.payment_reference,
				counterparty_name    = EXCLUDED.counterparty_name,
				counterparty_account = EXCLUDED.counterparty_account,
				from_amount          = EXCLUDED.from_amount,
				from_currency        = EXCLUDED.from_currency,
				exchange_rate        = EXCLUDED.exchange_rate,
				fees                 = EXCLUDED.fees,
				running_balance      = EXCLUDED.running_balance,
				fetched_at           = EXCLUDED.fetched_at,
				updated_at           = EXCLUDED.updated_at
			WHERE bank_transactions.description          IS DISTINCT FROM EXCLUDED.description
			   OR bank_transactions.payment_reference    IS DISTINCT FROM EXCLUDED.payment_reference
			   OR bank_transactions.counterparty_name    IS DISTINCT FROM EXCLUDED.counterparty_name
			   OR bank_transactions.counterparty_account IS DISTINCT FROM EXCLUDED.counterparty_account
			   OR bank_transactions.from_amount          IS DISTINCT FROM EXCLUDED.from_amount
			   OR bank_transactions.fees                 IS DISTINCT FROM EXCLUDED.fees
			   OR bank_transactions.running_balance      IS DISTINCT FROM EXCLUDED.running_balance`,
			t.Reference, t.Entity, t.ProfileID, string(t.Direction), string(t.Kind),
			t.OccurredAt, decimalToNumeric(t.Amount), t.Currency,
			textOrNil(t.Description), textOrNil(t.PaymentReference),
			textOrNil(t.CounterpartyName), textOrNil(t.CounterpartyAccount),
			decimalPtrToNumeric(t.FromAmount), textOrNil(t.FromCurrency),
			decimalPtrToNumeric(t.ExchangeRate), decimalPtrToNumeric(t.Fees),
			decimalPtrToNumeric(t.RunningBalance), textOrNil(t.MerchantName),
			textOrNil(t.MerchantCategory), textOrNil(t.CardLast4), textOrNil(t.Cardholder),
			now,
		)
	}

	count := 0
	err := r.retry(ctx, func() error {
		count = 0
		results := r.pool.SendBatch(ctx, batch)
		defer results.Close()

		for range txs {
			tag, err := results.Exec()
			if err != nil {
				return fmt.Errorf("upsert transaction: %w", err)
			}
			count += int(tag.RowsAffected())
		}
		return nil
	})
	return count, err
}

// GetByReference loads one transaction.
func (r *TransactionRepository) GetByReference(ctx context.Context, reference string) (*domain.BankTransaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+txColumns+` FROM bank_transactions WHERE reference = $1`, reference)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	return tx, nil
}

// ListPending returns pending transactions for an entity ordered by
// occurrence, capped per run.
func (r *TransactionRepository) ListPending(ctx context.Context, entity string, limit int) ([]*domain.BankTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+txColumns+`
		FROM bank_transactions
		WHERE entity_name = $1 AND match_status = 'pending'
		ORDER BY occurred_at ASC
		LIMIT $2`, entity, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.BankTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// MarkSubmitted advances pending -> submitted within the caller's database
// transaction, recording the attempt. The guard on the current status makes
// concurrent writers lose cleanly, and best_confidence keeps the maximum
// ever observed.
func (r *TransactionRepository) MarkSubmitted(ctx context.Context, txn usecase.Transaction, reference, suggestionID string, confidence decimal.Decimal, expectedAttempts int, at time.Time) error {
	pgxTx := txn.(*Tx).PgxTx()
	tag, err := pgxTx.Exec(ctx, `
		UPDATE bank_transactions
		SET match_status = 'submitted',
		    suggestion_id = $2,
		    best_confidence = GREATEST(best_confidence, $3),
		    last_attempt_at = $4,
		    attempts = attempts + 1,
		    updated_at = $4
		WHERE reference = $1 AND match_status = 'pending' AND attempts = $5`,
		reference, suggestionID, decimalToNumeric(confidence), at, expectedAttempts)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleAttempt
	}
	return nil
}

// SetSuggestionID records the approval service's id after a successful
// emission.
func (r *TransactionRepository) SetSuggestionID(ctx context.Context, reference, suggestionID string) error {
	return r.retry(ctx, func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE bank_transactions SET suggestion_id = $2 WHERE reference = $1`,
			reference, suggestionID)
		return err
	})
}

// RevertToPending rolls back a submitted transaction after a failed emission,
// preserving attempts and best_confidence as an advisory.
func (r *TransactionRepository) RevertToPending(ctx context.Context, reference string, at time.Time) error {
	return r.retry(ctx, func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE bank_transactions
			SET match_status = 'pending', suggestion_id = NULL, updated_at = $2
			WHERE reference = $1 AND match_status = 'submitted'`, reference, at)
		return err
	})
}

// RecordAttempt bumps the attempt bookkeeping without a status change, used
// when a transaction stays pending (no candidate worth submitting).
func (r *TransactionRepository) RecordAttempt(ctx context.Context, reference string, confidence decimal.Decimal, at time.Time) error {
	return r.retry(ctx, func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE bank_transactions
			SET best_confidence = GREATEST(best_confidence, $2),
			    last_attempt_at = $3,
			    attempts = attempts + 1,
			    updated_at = $3
			WHERE reference = $1`, reference, decimalToNumeric(confidence), at)
		return err
	})
}

// Resolve finalizes a transaction after review: matched or unmatched, with an
// optional stored reason. Terminal states never regress.
func (r *TransactionRepository) Resolve(ctx context.Context, reference string, status domain.MatchStatus, reason string, at time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("resolve to non-terminal status %s", status)
	}
	return r.retry(ctx, func() error {
		tag, err := r.pool.Exec(ctx, `
			UPDATE bank_transactions
			SET match_status = $2, match_reason = $3, updated_at = $4
			WHERE reference = $1 AND match_status IN ('pending', 'submitted')`,
			reference, string(status), textOrNil(reason), at)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrStatusRegression
		}
		return nil
	})
}

// PendingSummary reports, for the daily digest, the per-entity count of
// transactions still awaiting review (pending or submitted) and the total
// absolute amount across all entities.
func (r *TransactionRepository) PendingSummary(ctx context.Context) (map[string]int, decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT entity_name, COUNT(*), COALESCE(SUM(ABS(amount)), 0)
		FROM bank_transactions
		WHERE match_status IN ('pending', 'submitted')
		GROUP BY entity_name`)
	if err != nil {
		return nil, decimal.Zero, err
	}
	defer rows.Close()

	byEntity := make(map[string]int)
	total := decimal.Zero
	for rows.Next() {
		var entity string
		var count int
		var sum pgtype.Numeric
		if err := rows.Scan(&entity, &count, &sum); err != nil {
			return nil, decimal.Zero, err
		}
		byEntity[entity] = count
		total = total.Add(numericToDecimal(sum))
	}
	return byEntity, total, rows.Err()
}

// SaveCandidates records the scored candidate set of one attempt for audit,
// in the same database transaction as the status transition it explains.
func (r *TransactionRepository) SaveCandidates(ctx context.Context, txn usecase.Transaction, cands []*domain.Candidate, at time.Time) error {
	if len(cands) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range cands {
		reasons, err := json.Marshal(c.Reasons)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO match_candidates (
				tx_reference, gl_transaction_id, gl_line_id, gl_type, gl_amount,
				gl_date, gl_entity, gl_memo, score, tier, reasons,
				is_intercompany, counterparty_entity, model_id, prompt_version,
				selected, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
			c.TxReference, textOrNil(c.GLTransactionID), c.GLLineID, textOrNil(c.GLType),
			decimalToNumeric(c.GLAmount), c.GLDate, textOrNil(c.GLEntity), textOrNil(c.GLMemo),
			decimalToNumeric(c.Score), string(c.Tier), reasons,
			c.IsIntercompany, textOrNil(c.CounterpartyEntity),
			textOrNil(c.ModelID), textOrNil(c.PromptVersion),
			c.Selected, at)
	}

	results := txn.(*Tx).PgxTx().SendBatch(ctx, batch)
	defer results.Close()
	for range cands {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("save candidate: %w", err)
		}
	}
	return nil
}

func scanTransaction(row pgx.Row) (*domain.BankTransaction, error) {
	var (
		tx                      domain.BankTransaction
		direction, kind, status string

		description, paymentRef, cpName, cpAccount pgtype.Text
		fromCurrency, merchantName, merchantCat    pgtype.Text
		cardLast4, cardholder, suggestionID        pgtype.Text

		amount, fromAmount, rate, fees, runningBalance pgtype.Numeric
		bestConfidence                                 pgtype.Numeric

		lastAttemptAt pgtype.Timestamptz
	)

	err := row.Scan(
		&tx.Reference, &tx.Entity, &tx.ProfileID, &direction, &kind, &tx.OccurredAt,
		&amount, &tx.Currency, &description, &paymentRef, &cpName, &cpAccount,
		&fromAmount, &fromCurrency, &rate, &fees, &runningBalance,
		&merchantName, &merchantCat, &cardLast4, &cardholder,
		&status, &lastAttemptAt, &tx.Attempts, &bestConfidence, &suggestionID,
		&tx.FetchedAt, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Direction = domain.Direction(direction)
	tx.Kind = domain.TransactionKind(kind)
	tx.Status = domain.MatchStatus(status)
	tx.Amount = numericToDecimal(amount)
	tx.Description = textValue(description)
	tx.PaymentReference = textValue(paymentRef)
	tx.CounterpartyName = textValue(cpName)
	tx.CounterpartyAccount = textValue(cpAccount)
	tx.FromAmount = numericToDecimalPtr(fromAmount)
	tx.FromCurrency = textValue(fromCurrency)
	tx.ExchangeRate = numericToDecimalPtr(rate)
	tx.Fees = numericToDecimalPtr(fees)
	tx.RunningBalance = numericToDecimalPtr(runningBalance)
	tx.MerchantName = textValue(merchantName)
	tx.MerchantCategory = textValue(merchantCat)
	tx.CardLast4 = textValue(cardLast4)
	tx.Cardholder = textValue(cardholder)
	tx.BestConfidence = numericToDecimal(bestConfidence)
	tx.SuggestionID = textValue(suggestionID)
	tx.LastAttemptAt = pgTimestamptzToTimePtr(lastAttemptAt)

	return &tx, nil
}
