package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// PollCursor persists the learning loop's reviewed-suggestions watermark so
// restarts resume where the previous poll stopped.
type PollCursor struct {
	client *redis.Client
	key    string
}

// NewPollCursor creates the cursor under a stable key.
func NewPollCursor(client *redis.Client) *PollCursor {
	return &PollCursor{client: client, key: "recon:learning:poll-cursor"}
}

// Get returns the stored watermark, or the zero time when unset.
func (p *PollCursor) Get(ctx context.Context) (time.Time, error) {
	raw, err := p.client.Get(ctx, p.key).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, raw)
}

// Set advances the watermark.
func (p *PollCursor) Set(ctx context.Context, t time.Time) error {
	return p.client.Set(ctx, p.key, t.UTC().Format(time.RFC3339Nano), 0).Err()
}
