package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRevocations(t *testing.T) (*RevocationRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRevocationRepo(rdb, "revoked"), mr
}

func TestRevokeThenIsRevoked(t *testing.T) {
	repo, mr := newRevocations(t)
	ctx := context.Background()

	if ok, err := repo.IsRevoked(ctx, "tok"); err != nil || ok {
		t.Fatalf("fresh token reported revoked: %v %v", ok, err)
	}
	if err := repo.Revoke(ctx, "tok", 90*time.Second); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if ok, _ := repo.IsRevoked(ctx, "tok"); !ok {
		t.Fatalf("revoked token not reported")
	}
	if ttl := mr.TTL("revoked:tok"); ttl != 90*time.Second {
		t.Fatalf("unexpected ttl %s", ttl)
	}
	if v, _ := mr.Get("revoked:tok"); v != "revoked" {
		t.Fatalf("unexpected sentinel %q", v)
	}
}

func TestRevocationExpiresWithToken(t *testing.T) {
	repo, mr := newRevocations(t)
	ctx := context.Background()
	_ = repo.Revoke(ctx, "tok", 10*time.Second)

	mr.FastForward(9 * time.Second)
	if ok, _ := repo.IsRevoked(ctx, "tok"); !ok {
		t.Fatalf("entry vanished before the token's expiry")
	}
	mr.FastForward(2 * time.Second)
	if ok, _ := repo.IsRevoked(ctx, "tok"); ok {
		t.Fatalf("entry outlived the token")
	}
}

func TestRevokeIdempotentAndNonPositiveTTL(t *testing.T) {
	repo, mr := newRevocations(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := repo.Revoke(ctx, "tok", time.Minute); err != nil {
			t.Fatalf("Revoke #%d: %v", i, err)
		}
	}
	if ok, _ := repo.IsRevoked(ctx, "tok"); !ok {
		t.Fatalf("double revoke lost the entry")
	}
	if err := repo.Revoke(ctx, "expired", 0); err != nil {
		t.Fatalf("Revoke with zero ttl: %v", err)
	}
	if mr.Exists("revoked:expired") {
		t.Fatalf("zero ttl must not create an entry")
	}
}
