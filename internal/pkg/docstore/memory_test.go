package docstore_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/weeknovel/weeknovel-api/internal/pkg/docstore"
)

/* =========================
   Test 1: Queries
   ========================= */

func TestQueryFilterOrderLimit(t *testing.T) {
	store := docstore.NewMemory()
	ctx := context.Background()

	batch := store.NewBatch()
	for i := 0; i < 10; i++ {
		batch.Set("items", fmt.Sprintf("i%d", i), map[string]interface{}{
			"rank":   i,
			"even":   i%2 == 0,
			"tagged": []interface{}{"all", fmt.Sprintf("tag%d", i)},
		})
	}
	requireNoError(t, batch.Commit(ctx))

	docs, err := store.Collection("items").Query().
		Where("even", docstore.OpEqual, true).
		OrderBy("rank", true).
		Limit(3).
		Documents(ctx)
	requireNoError(t, err)

	if len(docs) != 3 {
		t.Fatalf("expected 3 docs, got %d", len(docs))
	}
	if docstore.GetInt(docs[0], "rank") != 8 {
		t.Fatalf("expected rank 8 first, got %d", docstore.GetInt(docs[0], "rank"))
	}

	docs, err = store.Collection("items").Query().
		Where("rank", docstore.OpGreaterEqual, 7).
		OrderBy("rank", false).
		Documents(ctx)
	requireNoError(t, err)
	if len(docs) != 3 {
		t.Fatalf("expected ranks 7..9, got %d docs", len(docs))
	}

	docs, err = store.Collection("items").Query().
		Where("tagged", docstore.OpArrayContains, "tag4").
		Documents(ctx)
	requireNoError(t, err)
	if len(docs) != 1 || docs[0].ID != "i4" {
		t.Fatalf("expected only i4 by tag, got %v", docs)
	}
}

func TestQueryCursorPagination(t *testing.T) {
	store := docstore.NewMemory()
	ctx := context.Background()

	batch := store.NewBatch()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		batch.Set("items", fmt.Sprintf("i%d", i), map[string]interface{}{
			"createdAt": base.Add(time.Duration(i) * time.Minute),
		})
	}
	requireNoError(t, batch.Commit(ctx))

	var all []string
	var cursor *docstore.Cursor
	for {
		docs, err := store.Collection("items").Query().
			OrderBy("createdAt", true).
			StartAfter(cursor).
			Limit(3).
			Documents(ctx)
		requireNoError(t, err)
		if len(docs) == 0 {
			break
		}
		for _, d := range docs {
			all = append(all, d.ID)
		}
		if len(docs) < 3 {
			break
		}
		cursor = docstore.CursorAfter(docs[len(docs)-1], "createdAt")
	}

	if len(all) != 7 {
		t.Fatalf("expected 7 docs across pages, got %d", len(all))
	}
	seen := map[string]bool{}
	for _, id := range all {
		if seen[id] {
			t.Fatalf("doc %s returned twice", id)
		}
		seen[id] = true
	}
}

func TestCursorSurvivesEncoding(t *testing.T) {
	store := docstore.NewMemory()
	ctx := context.Background()

	batch := store.NewBatch()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		batch.Set("items", fmt.Sprintf("i%d", i), map[string]interface{}{
			"createdAt": base.Add(time.Duration(i) * time.Hour),
		})
	}
	requireNoError(t, batch.Commit(ctx))

	docs, err := store.Collection("items").Query().
		OrderBy("createdAt", false).
		Limit(2).
		Documents(ctx)
	requireNoError(t, err)

	// round-trip the cursor through its wire form, as a client would
	token := docstore.CursorAfter(docs[1], "createdAt").Encode()
	cursor, err := docstore.DecodeCursor(token)
	requireNoError(t, err)

	rest, err := store.Collection("items").Query().
		OrderBy("createdAt", false).
		StartAfter(cursor).
		Documents(ctx)
	requireNoError(t, err)

	if len(rest) != 2 {
		t.Fatalf("expected remaining 2 docs, got %d", len(rest))
	}
	if rest[0].ID != "i2" {
		t.Fatalf("expected i2 after cursor, got %s", rest[0].ID)
	}
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	if _, err := docstore.DecodeCursor("not!!base64"); !errors.Is(err, docstore.ErrInvalidCursor) {
		t.Fatalf("expected ErrInvalidCursor, got %v", err)
	}
	c, err := docstore.DecodeCursor("")
	requireNoError(t, err)
	if c != nil {
		t.Fatal("empty token must decode to nil cursor")
	}
}

/* =========================
   Test 2: Batches
   ========================= */

func TestBatchLimit(t *testing.T) {
	store := docstore.NewMemory()
	ctx := context.Background()

	batch := store.NewBatch()
	for i := 0; i <= docstore.MaxBatchWrites; i++ {
		batch.Set("items", fmt.Sprintf("i%d", i), map[string]interface{}{"n": i})
	}

	if err := batch.Commit(ctx); !errors.Is(err, docstore.ErrBatchTooLarge) {
		t.Fatalf("expected ErrBatchTooLarge, got %v", err)
	}

	n, err := store.Count(ctx, "items")
	requireNoError(t, err)
	if n != 0 {
		t.Fatalf("oversized batch must write nothing, got %d docs", n)
	}
}

func TestBatchDeleteAbsentIsNoop(t *testing.T) {
	store := docstore.NewMemory()
	ctx := context.Background()

	batch := store.NewBatch()
	batch.Delete("items", "missing")
	requireNoError(t, batch.Commit(ctx))
}

/* =========================
   Test 3: Transactions
   ========================= */

func TestTransactionReadYourWrites(t *testing.T) {
	store := docstore.NewMemory()
	ctx := context.Background()

	err := store.RunTransaction(ctx, func(tx docstore.Tx) error {
		tx.Set("items", "a", map[string]interface{}{"n": 1})
		doc, err := tx.Get("items", "a")
		if err != nil {
			return err
		}
		if docstore.GetInt(doc, "n") != 1 {
			t.Fatalf("staged write not visible, got %v", doc.Data)
		}
		return nil
	})
	requireNoError(t, err)

	doc, err := store.Collection("items").Get(ctx, "a")
	requireNoError(t, err)
	if docstore.GetInt(doc, "n") != 1 {
		t.Fatalf("committed value wrong: %v", doc.Data)
	}
}

func TestTransactionUpdateAbsent(t *testing.T) {
	store := docstore.NewMemory()

	err := store.RunTransaction(context.Background(), func(tx docstore.Tx) error {
		tx.Update("items", "missing", map[string]interface{}{"n": 1})
		return nil
	})
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransactionErrorDiscardsWrites(t *testing.T) {
	store := docstore.NewMemory()
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.RunTransaction(ctx, func(tx docstore.Tx) error {
		tx.Set("items", "a", map[string]interface{}{"n": 1})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error returned, got %v", err)
	}

	if _, err := store.Collection("items").Get(ctx, "a"); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected no write after failed tx, got %v", err)
	}
}

func TestTransactionConflictRetries(t *testing.T) {
	store := docstore.NewMemory()
	ctx := context.Background()

	batch := store.NewBatch()
	batch.Set("items", "ctr", map[string]interface{}{"n": 0})
	requireNoError(t, batch.Commit(ctx))

	// First attempt races with an external write; the retry must see the
	// new value and succeed.
	attempt := 0
	err := store.RunTransaction(ctx, func(tx docstore.Tx) error {
		doc, err := tx.Get("items", "ctr")
		if err != nil {
			return err
		}
		if attempt == 0 {
			attempt++
			interfering := store.NewBatch()
			interfering.Set("items", "ctr", map[string]interface{}{"n": 100})
			if err := interfering.Commit(ctx); err != nil {
				return err
			}
		}
		tx.Update("items", "ctr", map[string]interface{}{"n": docstore.GetInt(doc, "n") + 1})
		return nil
	})
	requireNoError(t, err)

	doc, err := store.Collection("items").Get(ctx, "ctr")
	requireNoError(t, err)
	if docstore.GetInt(doc, "n") != 101 {
		t.Fatalf("expected retried increment on top of interfering write, got %d", docstore.GetInt(doc, "n"))
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
