package ordering

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), ttl)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	store, _ := setupTestRedis(t, time.Hour)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreBadURL(t *testing.T) {
	if _, err := NewRedisStore("not a url", time.Hour); err == nil {
		t.Fatal("expected error for malformed redis url")
	}
}

func TestAdvanceRejectsOnlyOlderVersions(t *testing.T) {
	store, _ := setupTestRedis(t, time.Hour)
	ctx := context.Background()

	prev, applied, err := store.Advance(ctx, "n1", 100, false)
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if !applied || prev != "" {
		t.Fatalf("first advance = (%q, %v), want (\"\", true)", prev, applied)
	}

	// An update that did not move the timestamp still applies.
	if prev, applied, _ := store.Advance(ctx, "n1", 100, false); !applied || prev != "100" {
		t.Errorf("equal version advance = (%q, %v), want (\"100\", true)", prev, applied)
	}
	if _, applied, _ := store.Advance(ctx, "n1", 90, false); applied {
		t.Error("expected older version to be skipped")
	}

	prev, applied, err = store.Advance(ctx, "n1", 150, false)
	if err != nil || !applied || prev != "100" {
		t.Fatalf("newer advance = (%q, %v, %v), want (\"100\", true, nil)", prev, applied, err)
	}

	version, tombstone, err := store.Version(ctx, "n1")
	if err != nil || version != 150 || tombstone {
		t.Fatalf("Version() = (%d, %v, %v), want (150, false, nil)", version, tombstone, err)
	}
}

func TestDeleteTombstoneBlocksStaleUpsert(t *testing.T) {
	store, _ := setupTestRedis(t, time.Hour)
	ctx := context.Background()

	if _, applied, _ := store.Advance(ctx, "n1", 200, false); !applied {
		t.Fatal("expected insert to apply")
	}
	// The delete carries the last indexed row, so its version ties.
	if _, applied, _ := store.Advance(ctx, "n1", 200, true); !applied {
		t.Fatal("expected delete at equal version to apply")
	}
	if version, tombstone, _ := store.Version(ctx, "n1"); version != 200 || !tombstone {
		t.Fatalf("expected tombstone at 200, got (%d, %v)", version, tombstone)
	}
	// A redelivered copy of the original insert must not resurrect the note.
	if _, applied, _ := store.Advance(ctx, "n1", 200, false); applied {
		t.Fatal("expected stale insert after delete to be skipped")
	}
	if _, applied, _ := store.Advance(ctx, "n1", 150, true); applied {
		t.Fatal("expected older delete to be skipped")
	}
	if _, applied, _ := store.Advance(ctx, "n1", 201, false); !applied {
		t.Fatal("expected newer insert to apply after tombstone")
	}
}

func TestRollbackRestoresPreviousState(t *testing.T) {
	store, _ := setupTestRedis(t, time.Hour)
	ctx := context.Background()

	prev, _, _ := store.Advance(ctx, "n1", 100, false)
	if err := store.Rollback(ctx, "n1", 100, false, prev); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if version, _, _ := store.Version(ctx, "n1"); version != 0 {
		t.Fatalf("expected key removed after rollback, got %d", version)
	}

	_, _, _ = store.Advance(ctx, "n1", 100, true)
	prev, _, _ = store.Advance(ctx, "n1", 120, false)
	if err := store.Rollback(ctx, "n1", 120, false, prev); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	version, tombstone, _ := store.Version(ctx, "n1")
	if version != 100 || !tombstone {
		t.Fatalf("expected tombstone at 100 after rollback, got (%d, %v)", version, tombstone)
	}
}

func TestRollbackKeepsConcurrentNewerVersion(t *testing.T) {
	store, _ := setupTestRedis(t, time.Hour)
	ctx := context.Background()

	prev, _, _ := store.Advance(ctx, "n1", 100, false)
	_, _, _ = store.Advance(ctx, "n1", 300, false)

	if err := store.Rollback(ctx, "n1", 100, false, prev); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if version, _, _ := store.Version(ctx, "n1"); version != 300 {
		t.Fatalf("expected newer version 300 to survive, got %d", version)
	}
}

func TestVersionsExpire(t *testing.T) {
	store, s := setupTestRedis(t, time.Minute)
	ctx := context.Background()

	_, _, _ = store.Advance(ctx, "n1", 100, true)
	s.FastForward(2 * time.Minute)

	if version, _, _ := store.Version(ctx, "n1"); version != 0 {
		t.Fatalf("expected tombstone to expire, got %d", version)
	}
}

func TestVersionIsolationBetweenRecords(t *testing.T) {
	store, _ := setupTestRedis(t, 0)
	ctx := context.Background()

	_, _, _ = store.Advance(ctx, "n1", 500, false)
	if _, applied, _ := store.Advance(ctx, "n2", 10, false); !applied {
		t.Fatal("expected versions to be tracked per record")
	}
}
