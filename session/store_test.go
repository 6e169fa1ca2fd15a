package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewStore(rdb, "ac"), mr
}

func TestRefreshConsumeIsSingleUse(t *testing.T) {
	store, mr := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.SaveRefresh(ctx, "jti-1", "biz-1", time.Hour); err != nil {
		t.Fatalf("SaveRefresh failed: %v", err)
	}
	if ttl := mr.TTL("ac:refresh:jti-1"); ttl != time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	subject, err := store.ConsumeRefresh(ctx, "jti-1")
	if err != nil || subject != "biz-1" {
		t.Fatalf("ConsumeRefresh = %q, %v", subject, err)
	}
	if _, err := store.ConsumeRefresh(ctx, "jti-1"); !errors.Is(err, ErrRefreshNotFound) {
		t.Fatalf("expected ErrRefreshNotFound, got %v", err)
	}
}

func TestRefreshConsumeConcurrentSingleWinner(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.SaveRefresh(ctx, "jti-1", "biz-1", time.Hour); err != nil {
		t.Fatalf("SaveRefresh failed: %v", err)
	}

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ConsumeRefresh(ctx, "jti-1"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
}

func TestDeleteRefreshIsIdempotent(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.DeleteRefresh(ctx, "missing"); err != nil {
		t.Fatalf("DeleteRefresh on missing jti failed: %v", err)
	}
	_ = store.SaveRefresh(ctx, "jti-1", "biz-1", time.Hour)
	if err := store.DeleteRefresh(ctx, "jti-1"); err != nil {
		t.Fatalf("DeleteRefresh failed: %v", err)
	}
	if _, err := store.ConsumeRefresh(ctx, "jti-1"); !errors.Is(err, ErrRefreshNotFound) {
		t.Fatalf("expected deleted jti to be gone, got %v", err)
	}
}

func TestRevokeAccessUsesRemainingLifetime(t *testing.T) {
	store, mr := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.RevokeAccess(ctx, "jti-1", 90*time.Second); err != nil {
		t.Fatalf("RevokeAccess failed: %v", err)
	}
	revoked, err := store.IsAccessRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected revoked, got %v %v", revoked, err)
	}
	if ttl := mr.TTL("ac:revoke:jti:jti-1"); ttl != 90*time.Second {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	mr.FastForward(91 * time.Second)
	revoked, _ = store.IsAccessRevoked(ctx, "jti-1")
	if revoked {
		t.Fatal("expected flag to expire with the token")
	}

	if err := store.RevokeAccess(ctx, "jti-2", 0); err != nil {
		t.Fatalf("RevokeAccess with no remaining lifetime failed: %v", err)
	}
	if mr.Exists("ac:revoke:jti:jti-2") {
		t.Fatal("expected no flag for an expired token")
	}
}

func TestSubjectMarkerOnlyMovesForward(t *testing.T) {
	store, mr := newSessionStoreTest(t)
	ctx := context.Background()

	later := time.UnixMilli(1_700_000_100_000)
	earlier := time.UnixMilli(1_700_000_000_000)

	if err := store.RevokeSubjectSince(ctx, "biz-1", later, time.Hour); err != nil {
		t.Fatalf("RevokeSubjectSince failed: %v", err)
	}
	if err := store.RevokeSubjectSince(ctx, "biz-1", earlier, 2*time.Hour); err != nil {
		t.Fatalf("RevokeSubjectSince failed: %v", err)
	}

	since, ok, err := store.RevokedSince(ctx, "biz-1")
	if err != nil || !ok || !since.Equal(later) {
		t.Fatalf("RevokedSince = %v %v %v", since, ok, err)
	}
	if ttl := mr.TTL("ac:revoked_since:biz-1"); ttl != 2*time.Hour {
		t.Fatalf("expected ttl refreshed, got %v", ttl)
	}

	revoked, _ := store.IsRevokedAt(ctx, "biz-1", later.UnixMilli())
	if !revoked {
		t.Fatal("expected token issued at the marker to be revoked")
	}
	revoked, _ = store.IsRevokedAt(ctx, "biz-1", later.UnixMilli()+1)
	if revoked {
		t.Fatal("expected token issued after the marker to survive")
	}
	revoked, _ = store.IsRevokedAt(ctx, "biz-2", 0)
	if revoked {
		t.Fatal("expected subject without marker to be unaffected")
	}
}
