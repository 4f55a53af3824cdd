package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, s
}

func TestSaveAndLookupRefresh(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveRefresh(ctx, "hash-1", "user-1", time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("SaveRefresh failed: %v", err)
	}

	userID, err := store.LookupRefresh(ctx, "hash-1")
	if err != nil {
		t.Fatalf("LookupRefresh failed: %v", err)
	}
	if userID != "user-1" {
		t.Errorf("expected user-1, got %s", userID)
	}
}

func TestLookupExpiredRefresh(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveRefresh(ctx, "hash-exp", "user-2", time.Now().Add(time.Millisecond)); err != nil {
		t.Fatalf("SaveRefresh failed: %v", err)
	}

	s.FastForward(2 * time.Millisecond)

	if _, err := store.LookupRefresh(ctx, "hash-exp"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for expired session, got %v", err)
	}
}

func TestLookupUnknownRefresh(t *testing.T) {
	store, _ := setupTestRedis(t)

	if _, err := store.LookupRefresh(context.Background(), "no-such-hash"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRevokeRefresh(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveRefresh(ctx, "hash-rev", "user-3", time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("SaveRefresh failed: %v", err)
	}
	if err := store.RevokeRefresh(ctx, "hash-rev"); err != nil {
		t.Fatalf("RevokeRefresh failed: %v", err)
	}
	if _, err := store.LookupRefresh(ctx, "hash-rev"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after revoke, got %v", err)
	}

	// Revoking an unknown hash is not an error.
	if err := store.RevokeRefresh(ctx, "never-existed"); err != nil {
		t.Errorf("RevokeRefresh for unknown hash failed: %v", err)
	}
}

func TestAccessDenylist(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	revoked, err := store.IsAccessRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsAccessRevoked failed: %v", err)
	}
	if revoked {
		t.Error("fresh jti must not be revoked")
	}

	if err := store.RevokeAccess(ctx, "jti-1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("RevokeAccess failed: %v", err)
	}
	revoked, err = store.IsAccessRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsAccessRevoked failed: %v", err)
	}
	if !revoked {
		t.Error("jti must be revoked after RevokeAccess")
	}

	// The denylist entry expires with the token itself.
	s.FastForward(2 * time.Minute)
	revoked, err = store.IsAccessRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsAccessRevoked failed: %v", err)
	}
	if revoked {
		t.Error("denylist entry must lapse after token expiry")
	}
}

func TestRevokeAlreadyExpiredAccess(t *testing.T) {
	store, _ := setupTestRedis(t)

	if err := store.RevokeAccess(context.Background(), "jti-old", time.Now().Add(-time.Minute)); err != nil {
		t.Errorf("revoking an already expired token must be a no-op, got %v", err)
	}
}
