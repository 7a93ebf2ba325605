package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/phygrid/wiserecon/internal/adapter/wise"
	"github.com/phygrid/wiserecon/internal/domain"
	"github.com/phygrid/wiserecon/internal/usecase"
	"github.com/phygrid/wiserecon/internal/usecase/mocks"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testEntities() *domain.EntityRegistry {
	return domain.NewEntityRegistry([]domain.Entity{
		{
			Key:          "phygrid-uk",
			ProfileID:    19941830,
			SubsidiaryID: 3,
			DisplayName:  "Phygrid Limited",
			Currency:     "GBP",
			KnownIBANs:   []string{"GB29NWBK60161331926819"},
		},
		{
			Key:          "ombori-ch",
			ProfileID:    47253364,
			SubsidiaryID: 7,
			DisplayName:  "Ombori AG",
			Currency:     "CHF",
			KnownIBANs:   []string{"BE82967831096568"},
		},
	})
}

func statementWith(refs ...string) *wise.Statement {
	st := &wise.Statement{}
	for _, ref := range refs {
		st.Transactions = append(st.Transactions, domain.BankTransaction{
			Reference:  ref,
			ProfileID:  19941830,
			Direction:  domain.DirectionDebit,
			Kind:       domain.KindTransfer,
			OccurredAt: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
			Amount:     dec("10.00"),
			Currency:   "EUR",
			Status:     domain.StatusPending,
		})
	}
	return st
}

func newSyncFixture() (*usecase.SyncUseCase, *mocks.MockBankClient, *mocks.MockTransactionRepository, *mocks.MockCursorRepository, *mocks.FrozenClock, *mocks.MockNotifier) {
	bank := &mocks.MockBankClient{
		ListBalancesFunc: func(ctx context.Context, profileID int64) ([]wise.Balance, error) {
			return []wise.Balance{{ID: 11, Currency: "EUR"}}, nil
		},
	}
	txRepo := mocks.NewMockTransactionRepository()
	cursors := mocks.NewMockCursorRepository()
	clock := &mocks.FrozenClock{At: time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)}
	notifier := &mocks.MockNotifier{}

	uc := usecase.NewSyncUseCase(bank, txRepo, cursors, testEntities(), notifier, clock,
		usecase.SyncConfig{Overlap: 48 * time.Hour, InitialBack: 90 * 24 * time.Hour}, zerolog.Nop())
	return uc, bank, txRepo, cursors, clock, notifier
}

func TestSyncProfile_IngestsAndAdvancesCursor(t *testing.T) {
	uc, bank, txRepo, cursors, clock, _ := newSyncFixture()
	bank.GetStatementFunc = func(ctx context.Context, profileID, balanceID int64, currency string, start, end time.Time) (*wise.Statement, error) {
		return statementWith("TRANSFER-1", "TRANSFER-2"), nil
	}

	res, err := uc.SyncProfile(context.Background(), 19941830)
	require.NoError(t, err)
	require.Equal(t, 2, res.Synced)
	require.Empty(t, res.Errors)

	cursor, err := cursors.Get(context.Background(), 19941830, "EUR")
	require.NoError(t, err)
	require.Equal(t, domain.SyncIdle, cursor.Status)
	require.NotNil(t, cursor.LastEndDate)
	require.True(t, cursor.LastEndDate.Equal(clock.At))
	require.EqualValues(t, 2, cursor.Count)

	tx, err := txRepo.GetByReference(context.Background(), "TRANSFER-1")
	require.NoError(t, err)
	require.Equal(t, "Phygrid Limited", tx.Entity)
	require.Equal(t, domain.StatusPending, tx.Status)
}

func TestSyncProfile_Idempotent(t *testing.T) {
	// S6: replaying the same window yields identical rows and one cursor
	// advance per run, with no duplicate references.
	uc, bank, txRepo, cursors, _, _ := newSyncFixture()
	bank.GetStatementFunc = func(ctx context.Context, profileID, balanceID int64, currency string, start, end time.Time) (*wise.Statement, error) {
		return statementWith("TRANSFER-1", "TRANSFER-2"), nil
	}

	_, err := uc.SyncProfile(context.Background(), 19941830)
	require.NoError(t, err)
	_, err = uc.SyncProfile(context.Background(), 19941830)
	require.NoError(t, err)

	require.Len(t, txRepo.Txs, 2, "no duplicate rows on replay")

	cursor, err := cursors.Get(context.Background(), 19941830, "EUR")
	require.NoError(t, err)
	require.Equal(t, domain.SyncIdle, cursor.Status)
}

func TestSyncProfile_IncrementalWindowUsesOverlap(t *testing.T) {
	uc, bank, _, _, clock, _ := newSyncFixture()
	bank.GetStatementFunc = func(ctx context.Context, profileID, balanceID int64, currency string, start, end time.Time) (*wise.Statement, error) {
		return statementWith(), nil
	}

	_, err := uc.SyncProfile(context.Background(), 19941830)
	require.NoError(t, err)

	firstEnd := clock.At
	clock.Advance(24 * time.Hour)

	_, err = uc.SyncProfile(context.Background(), 19941830)
	require.NoError(t, err)

	require.Len(t, bank.StatementCalls, 2)
	second := bank.StatementCalls[1]
	// The second window starts two days before the previous watermark.
	require.True(t, second.Start.Equal(firstEnd.Add(-48*time.Hour)), "start = %s", second.Start)
	require.True(t, second.End.Equal(clock.At))
}

func TestSyncProfile_BusyCursorSkipped(t *testing.T) {
	uc, bank, _, cursors, _, _ := newSyncFixture()
	bank.GetStatementFunc = func(ctx context.Context, profileID, balanceID int64, currency string, start, end time.Time) (*wise.Statement, error) {
		return statementWith("TRANSFER-1"), nil
	}
	cursors.AcquireFunc = func(ctx context.Context, profileID int64, currency, entityName string, balanceID int64) (*domain.SyncCursor, error) {
		return nil, domain.ErrCursorBusy
	}

	res, err := uc.SyncProfile(context.Background(), 19941830)
	require.NoError(t, err)
	require.Equal(t, 0, res.Synced)
	require.Equal(t, 1, res.Skipped)
	require.Empty(t, bank.StatementCalls, "no fetch when another worker holds the cursor")
}

func TestSyncProfile_FailureKeepsWatermark(t *testing.T) {
	uc, bank, _, cursors, clock, _ := newSyncFixture()

	// First run succeeds and sets the watermark.
	bank.GetStatementFunc = func(ctx context.Context, profileID, balanceID int64, currency string, start, end time.Time) (*wise.Statement, error) {
		return statementWith("TRANSFER-1"), nil
	}
	_, err := uc.SyncProfile(context.Background(), 19941830)
	require.NoError(t, err)
	firstEnd := clock.At

	// Second run fails mid-fetch.
	clock.Advance(time.Hour)
	bank.GetStatementFunc = func(ctx context.Context, profileID, balanceID int64, currency string, start, end time.Time) (*wise.Statement, error) {
		return nil, context.DeadlineExceeded
	}
	res, err := uc.SyncProfile(context.Background(), 19941830)
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)

	cursor, err := cursors.Get(context.Background(), 19941830, "EUR")
	require.NoError(t, err)
	require.Equal(t, domain.SyncError, cursor.Status)
	require.NotEmpty(t, cursor.Error)
	// Watermark unchanged; the next run retries the same window.
	require.True(t, cursor.LastEndDate.Equal(firstEnd))
}

func TestSyncProfile_AuthFailureStopsAndPages(t *testing.T) {
	uc, bank, _, _, _, notifier := newSyncFixture()
	bank.GetStatementFunc = func(ctx context.Context, profileID, balanceID int64, currency string, start, end time.Time) (*wise.Statement, error) {
		return nil, domain.ErrAuthRequired
	}

	_, err := uc.SyncProfile(context.Background(), 19941830)
	require.ErrorIs(t, err, domain.ErrAuthRequired)
	require.Contains(t, notifier.AuthFailures, "Phygrid Limited")
}

func TestSyncProfile_RangeTooLargeSplitsWindow(t *testing.T) {
	uc, bank, txRepo, _, _, _ := newSyncFixture()
	calls := 0
	bank.GetStatementFunc = func(ctx context.Context, profileID, balanceID int64, currency string, start, end time.Time) (*wise.Statement, error) {
		calls++
		if calls == 1 {
			return nil, domain.ErrRangeTooLarge
		}
		return statementWith("TRANSFER-" + start.Format("0102")), nil
	}

	res, err := uc.SyncProfile(context.Background(), 19941830)
	require.NoError(t, err)
	require.Equal(t, 3, calls, "one failed full-window call plus two halves")
	require.Equal(t, 2, res.Synced)
	require.Len(t, txRepo.Txs, 2)
}
