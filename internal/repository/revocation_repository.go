package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedValue = "revoked"

// RevocationRepo is the token denylist.  Each entry lives exactly as long as
// the token it blocks would have, so Redis expiry keeps the list clean.
type RevocationRepo struct {
	rdb    *redis.Client
	prefix string
}

func NewRevocationRepo(rdb *redis.Client, prefix string) *RevocationRepo {
	if prefix == "" {
		prefix = "revoked"
	}
	return &RevocationRepo{rdb: rdb, prefix: prefix}
}

func (r *RevocationRepo) key(raw string) string { return r.prefix + ":" + raw }

// Revoke stores raw with the given ttl.  Storing again just resets the same
// ttl, which makes the call idempotent.  Non-positive ttls are ignored.
func (r *RevocationRepo) Revoke(ctx context.Context, raw string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	// Set with a duration uses PX when ttl is not a whole number of seconds.
	return r.rdb.Set(ctx, r.key(raw), revokedValue, ttl).Err()
}

// IsRevoked reports whether raw has a live denylist entry.
func (r *RevocationRepo) IsRevoked(ctx context.Context, raw string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.key(raw)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
