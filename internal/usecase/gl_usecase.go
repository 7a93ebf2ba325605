package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/phygrid/wiserecon/internal/domain"
)

// GLFetcher pulls candidate GL entries through a short-TTL advisory cache.
type GLFetcher struct {
	approval ApprovalClient
	cache    Cache
	ttl      time.Duration
	log      zerolog.Logger
}

// NewGLFetcher creates a new GLFetcher.
func NewGLFetcher(approval ApprovalClient, cache Cache, ttl time.Duration, log zerolog.Logger) *GLFetcher {
	return &GLFetcher{approval: approval, cache: cache, ttl: ttl, log: log}
}

// Get returns unreconciled GL entries for a subsidiary window. Cache errors
// degrade to a direct fetch.
func (f *GLFetcher) Get(ctx context.Context, subsidiaryID int64, start, end time.Time, types []string) ([]domain.GLEntry, error) {
	key := cacheKey(subsidiaryID, start, end, types)

	if f.cache != nil {
		if data, err := f.cache.Get(ctx, key); err != nil {
			f.log.Warn().Err(err).Msg("gl cache read failed, bypassing")
		} else if data != nil {
			var entries []domain.GLEntry
			if err := json.Unmarshal(data, &entries); err == nil {
				return entries, nil
			}
			// A corrupt entry is dropped and refetched.
			if err := f.cache.Delete(ctx, key); err != nil {
				f.log.Warn().Err(err).Msg("gl cache delete failed")
			}
		}
	}

	entries, err := f.approval.GetGLEntries(ctx, subsidiaryID, start, end, types, true)
	if err != nil {
		return nil, err
	}

	if f.cache != nil {
		if data, err := json.Marshal(entries); err == nil {
			if err := f.cache.Set(ctx, key, data, f.ttl); err != nil {
				f.log.Warn().Err(err).Msg("gl cache write failed")
			}
		}
	}
	return entries, nil
}

func cacheKey(subsidiaryID int64, start, end time.Time, types []string) string {
	key := fmt.Sprintf("gl:%d:%s:%s", subsidiaryID, start.UTC().Format("2006-01-02"), end.UTC().Format("2006-01-02"))
	for _, t := range types {
		key += ":" + t
	}
	return key
}
