package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/phygrid/wiserecon/internal/domain"
)

// LeaseStore hands out short-TTL scoring leases so no two workers score the
// same transaction concurrently. Expiry allows retake; the retaker re-reads
// the attempts counter to detect and discard stale results.
type LeaseStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewLeaseStore creates a lease store with the given TTL.
func NewLeaseStore(client *redis.Client, ttl time.Duration) *LeaseStore {
	return &LeaseStore{
		client: client,
		prefix: "recon:lease:",
		ttl:    ttl,
	}
}

// Acquire claims the lease for a transaction. Returns ErrLeaseConflict when
// another worker holds it.
func (s *LeaseStore) Acquire(ctx context.Context, reference, owner string) error {
	ok, err := s.client.SetNX(ctx, s.prefix+reference, owner, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrLeaseConflict
	}
	return nil
}

// Release frees the lease if this owner still holds it.
func (s *LeaseStore) Release(ctx context.Context, reference, owner string) error {
	// Compare-and-delete so an expired-and-retaken lease is not stolen back.
	const script = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0`
	return s.client.Eval(ctx, script, []string{s.prefix + reference}, owner).Err()
}

// Holder returns the current lease owner, or "" when free.
func (s *LeaseStore) Holder(ctx context.Context, reference string) (string, error) {
	owner, err := s.client.Get(ctx, s.prefix+reference).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return owner, err
}
