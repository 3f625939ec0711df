package lifecycle_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/weeknovel/weeknovel-api/internal/domain/lifecycle"
	"github.com/weeknovel/weeknovel-api/internal/pkg/blobstore"
	"github.com/weeknovel/weeknovel-api/internal/pkg/docstore"
)

/* =========================
   Test 1: Cleanup Scenario
   ========================= */

func TestCleanupRemovesAccountAndDependents(t *testing.T) {
	store := docstore.NewMemory()
	blobs := blobstore.NewMemory()
	cleaner := lifecycle.NewCleaner(store, blobs, nil)
	ctx := context.Background()

	seedAccount(t, store, "victim", false)
	seedDoc(t, store, "diaries", "d1", map[string]interface{}{"userId": "victim"})
	seedDoc(t, store, "diaries", "d2", map[string]interface{}{"userId": "victim"})
	seedDoc(t, store, "diaries", "d3", map[string]interface{}{"userId": "victim"})
	seedDoc(t, store, "friendships", "f1", map[string]interface{}{"users": []interface{}{"victim", "other"}})
	seedDoc(t, store, "friendships", "f2", map[string]interface{}{"users": []interface{}{"third", "victim"}})

	// records owned by someone else must survive
	seedAccount(t, store, "bystander", true)
	seedDoc(t, store, "diaries", "d9", map[string]interface{}{"userId": "bystander"})

	result, err := cleaner.Cleanup(ctx, []string{"victim"}, lifecycle.Options{})
	requireNoError(t, err)

	if result.Succeeded != 1 || result.Failed != 0 {
		t.Fatalf("expected 1 success, got %+v", result)
	}
	if result.DeletedItems < 6 {
		t.Fatalf("expected at least 6 deleted items (5 dependents + root), got %d", result.DeletedItems)
	}

	if _, err := store.Collection("users").Get(ctx, "victim"); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected root document gone, got %v", err)
	}

	remaining, err := store.Collection("diaries").Query().
		Where("userId", docstore.OpEqual, "victim").
		Documents(ctx)
	requireNoError(t, err)
	if len(remaining) != 0 {
		t.Fatalf("expected no diaries left for victim, got %d", len(remaining))
	}

	edges, err := store.Collection("friendships").Query().
		Where("users", docstore.OpArrayContains, "victim").
		Documents(ctx)
	requireNoError(t, err)
	if len(edges) != 0 {
		t.Fatalf("expected no friendship edges left, got %d", len(edges))
	}

	if _, err := store.Collection("users").Get(ctx, "bystander"); err != nil {
		t.Fatalf("bystander account should survive: %v", err)
	}
	if _, err := store.Collection("diaries").Get(ctx, "d9"); err != nil {
		t.Fatalf("bystander diary should survive: %v", err)
	}
}

/* =========================
   Test 2: Dry Run
   ========================= */

func TestCleanupDryRunLeavesRecords(t *testing.T) {
	store := docstore.NewMemory()
	blobs := blobstore.NewMemory()
	cleaner := lifecycle.NewCleaner(store, blobs, nil)
	ctx := context.Background()

	seedAccount(t, store, "victim", false)
	seedDoc(t, store, "diaries", "d1", map[string]interface{}{"userId": "victim"})
	seedDoc(t, store, "notifications", "n1", map[string]interface{}{"userId": "victim"})
	blobs.Put("diaries/victim/img1.png", []byte("x"))

	result, err := cleaner.Cleanup(ctx, []string{"victim"}, lifecycle.Options{DryRun: true})
	requireNoError(t, err)

	if !result.DryRun {
		t.Fatal("expected DryRun flag set on result")
	}
	// 1 blob + diary + notification + root
	if result.DeletedItems != 4 {
		t.Fatalf("expected 4 counted items, got %d", result.DeletedItems)
	}

	if _, err := store.Collection("users").Get(ctx, "victim"); err != nil {
		t.Fatalf("dry run must not delete the account: %v", err)
	}
	if _, err := store.Collection("diaries").Get(ctx, "d1"); err != nil {
		t.Fatalf("dry run must not delete dependents: %v", err)
	}
	if blobs.Len() != 1 {
		t.Fatalf("dry run must not delete blobs, got %d left", blobs.Len())
	}
}

/* =========================
   Test 3: Idempotent Re-run
   ========================= */

func TestCleanupRerunIsIdempotent(t *testing.T) {
	store := docstore.NewMemory()
	cleaner := lifecycle.NewCleaner(store, blobstore.NewMemory(), nil)
	ctx := context.Background()

	seedAccount(t, store, "victim", false)
	seedDoc(t, store, "diaries", "d1", map[string]interface{}{"userId": "victim"})

	first, err := cleaner.Cleanup(ctx, []string{"victim"}, lifecycle.Options{})
	requireNoError(t, err)
	if first.Succeeded != 1 {
		t.Fatalf("expected first run to succeed, got %+v", first)
	}

	second, err := cleaner.Cleanup(ctx, []string{"victim"}, lifecycle.Options{})
	requireNoError(t, err)
	if second.Failed != 0 {
		t.Fatalf("re-running on a cleaned account must not fail, got %+v", second)
	}
	if second.DeletedItems != 0 {
		t.Fatalf("expected nothing left to delete, got %d", second.DeletedItems)
	}
}

/* =========================
   Test 4: Failure Isolation
   ========================= */

// failingStore wraps a Store and fails batch commits touching one collection.
type failingStore struct {
	docstore.Store
	failPath string
}

func (s *failingStore) NewBatch() docstore.Batch {
	return &failingBatch{Batch: s.Store.NewBatch(), failPath: s.failPath}
}

type failingBatch struct {
	docstore.Batch
	failPath string
	poisoned bool
}

func (b *failingBatch) Delete(path, id string) {
	if path == b.failPath {
		b.poisoned = true
	}
	b.Batch.Delete(path, id)
}

func (b *failingBatch) Commit(ctx context.Context) error {
	if b.poisoned {
		return errors.New("simulated store failure")
	}
	return b.Batch.Commit(ctx)
}

func TestCleanupPartialFailureContinues(t *testing.T) {
	mem := docstore.NewMemory()
	store := &failingStore{Store: mem, failPath: "notifications"}
	cleaner := lifecycle.NewCleaner(store, blobstore.NewMemory(), nil)
	ctx := context.Background()

	seedAccount(t, mem, "broken", false)
	seedDoc(t, mem, "diaries", "d1", map[string]interface{}{"userId": "broken"})
	seedDoc(t, mem, "notifications", "n1", map[string]interface{}{"userId": "broken"})

	seedAccount(t, mem, "fine", false)
	seedDoc(t, mem, "diaries", "d2", map[string]interface{}{"userId": "fine"})

	result, err := cleaner.Cleanup(ctx, []string{"broken", "fine"}, lifecycle.Options{})
	requireNoError(t, err)

	if result.Failed != 1 || result.Succeeded != 1 {
		t.Fatalf("expected one failure and one success, got %+v", result)
	}
	if len(result.Errors) != 1 || result.Errors[0].AccountID != "broken" {
		t.Fatalf("expected error attributed to broken, got %+v", result.Errors)
	}

	// the failing collection did not stop the other steps for that account
	if _, err := mem.Collection("diaries").Get(ctx, "d1"); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected broken's diary deleted despite notification failure, got %v", err)
	}

	// the second account is fully cleaned
	if _, err := mem.Collection("users").Get(ctx, "fine"); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected fine cleaned, got %v", err)
	}
}

/* =========================
   Test 5: Candidate Discovery
   ========================= */

func TestCandidatesUnionAndDedup(t *testing.T) {
	store := docstore.NewMemory()
	cleaner := lifecycle.NewCleaner(store, blobstore.NewMemory(), nil)
	ctx := context.Background()

	now := time.Now().UTC()

	// withdrawn and stale: must appear once
	seedDoc(t, store, "users", "both", map[string]interface{}{
		"displayName": "both",
		"isActive":    false,
		"createdAt":   now.AddDate(-3, 0, 0),
		"lastLoginAt": now.AddDate(-2, 0, 0),
	})
	// withdrawn only, recently active
	seedDoc(t, store, "users", "withdrawn", map[string]interface{}{
		"displayName": "withdrawn",
		"isActive":    false,
		"createdAt":   now,
		"lastLoginAt": now,
	})
	// active but stale
	seedDoc(t, store, "users", "stale", map[string]interface{}{
		"displayName": "stale",
		"isActive":    true,
		"createdAt":   now.AddDate(-3, 0, 0),
		"lastLoginAt": now.AddDate(-2, 0, 0),
	})
	// active, never logged in: indefinitely stale
	seedDoc(t, store, "users", "ghost", map[string]interface{}{
		"displayName": "ghost",
		"isActive":    true,
		"createdAt":   now.AddDate(-1, 0, 0),
	})
	// healthy
	seedDoc(t, store, "users", "healthy", map[string]interface{}{
		"displayName": "healthy",
		"isActive":    true,
		"createdAt":   now,
		"lastLoginAt": now,
	})

	candidates, err := cleaner.Candidates(ctx, 365)
	requireNoError(t, err)

	if len(candidates) != 4 {
		t.Fatalf("expected 4 candidates, got %d: %+v", len(candidates), candidates)
	}

	byID := map[string]lifecycle.Candidate{}
	for _, c := range candidates {
		if _, dup := byID[c.AccountID]; dup {
			t.Fatalf("candidate %s listed twice", c.AccountID)
		}
		byID[c.AccountID] = c
	}

	if c := byID["both"]; !c.Withdrawn || !c.Stale {
		t.Fatalf("expected both flags on overlap candidate, got %+v", c)
	}
	if c := byID["ghost"]; !c.Stale {
		t.Fatalf("expected never-logged-in account flagged stale, got %+v", c)
	}
	if _, ok := byID["healthy"]; ok {
		t.Fatal("healthy account must not be a candidate")
	}
}

/* =========================
   Test 6: Blob Deletion
   ========================= */

func TestCleanupDeletesBlobPrefixes(t *testing.T) {
	store := docstore.NewMemory()
	blobs := blobstore.NewMemory()
	cleaner := lifecycle.NewCleaner(store, blobs, nil)
	ctx := context.Background()

	seedAccount(t, store, "victim", false)
	blobs.Put("diaries/victim/a.png", []byte("x"))
	blobs.Put("diaries/victim/b.png", []byte("x"))
	blobs.Put("profile-images/victim/avatar.png", []byte("x"))
	blobs.Put("profile-images/other/avatar.png", []byte("x"))

	_, err := cleaner.Cleanup(ctx, []string{"victim"}, lifecycle.Options{})
	requireNoError(t, err)

	if blobs.Len() != 1 {
		t.Fatalf("expected only the other user's blob left, got %d", blobs.Len())
	}
	keys, err := blobs.ListPrefix(ctx, "profile-images/other/")
	requireNoError(t, err)
	if len(keys) != 1 {
		t.Fatalf("expected other user's avatar untouched, got %v", keys)
	}
}

/* =========================
   Helpers
   ========================= */

func requireNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func seedDoc(t *testing.T, store *docstore.MemoryStore, path, id string, data map[string]interface{}) {
	t.Helper()
	batch := store.NewBatch()
	batch.Set(path, id, data)
	requireNoError(t, batch.Commit(context.Background()))
}

func seedAccount(t *testing.T, store *docstore.MemoryStore, id string, active bool) {
	t.Helper()
	seedDoc(t, store, "users", id, map[string]interface{}{
		"displayName": fmt.Sprintf("user %s", id),
		"email":       id + "@example.com",
		"point":       100,
		"isActive":    active,
		"createdAt":   time.Now().UTC(),
		"lastLoginAt": time.Now().UTC(),
	})
}
