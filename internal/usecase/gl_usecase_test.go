package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/phygrid/wiserecon/internal/domain"
	"github.com/phygrid/wiserecon/internal/usecase"
	"github.com/phygrid/wiserecon/internal/usecase/mocks"
)

func TestGLFetcher_CachesWindow(t *testing.T) {
	approval := &mocks.MockApprovalClient{}
	approval.GetGLEntriesFunc = func(ctx context.Context, subsidiaryID int64, start, end time.Time, accountTypes []string, unreconciledOnly bool) ([]domain.GLEntry, error) {
		require.True(t, unreconciledOnly)
		return []domain.GLEntry{{TransactionID: "INV-1", Amount: dec("10.00"), Date: start}}, nil
	}
	cache := mocks.NewMockCache()
	f := usecase.NewGLFetcher(approval, cache, 10*time.Minute, zerolog.Nop())

	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 14)

	first, err := f.Get(context.Background(), 7, start, end, nil)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Equal(t, 1, approval.GLCalls)

	// Same tuple hits the cache.
	second, err := f.Get(context.Background(), 7, start, end, nil)
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, "INV-1", second[0].TransactionID)
	require.Equal(t, 1, approval.GLCalls, "second read must not hit the API")

	// A different subsidiary misses.
	_, err = f.Get(context.Background(), 8, start, end, nil)
	require.NoError(t, err)
	require.Equal(t, 2, approval.GLCalls)
}

func TestGLFetcher_NilCacheGoesDirect(t *testing.T) {
	approval := &mocks.MockApprovalClient{}
	f := usecase.NewGLFetcher(approval, nil, time.Minute, zerolog.Nop())

	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	_, err := f.Get(context.Background(), 7, start, start.AddDate(0, 0, 1), nil)
	require.NoError(t, err)
	require.Equal(t, 1, approval.GLCalls)
}

func TestGLFetcher_CorruptCacheEntryRefetched(t *testing.T) {
	approval := &mocks.MockApprovalClient{}
	cache := mocks.NewMockCache()
	f := usecase.NewGLFetcher(approval, cache, time.Minute, zerolog.Nop())

	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	// Poison the cache entry for this window.
	_, err := f.Get(context.Background(), 7, start, end, nil)
	require.NoError(t, err)
	for key := range cache.Store {
		cache.Store[key] = []byte("{not json")
	}

	_, err = f.Get(context.Background(), 7, start, end, nil)
	require.NoError(t, err)
	require.Equal(t, 2, approval.GLCalls, "corrupt entry must fall through to the API")
}
