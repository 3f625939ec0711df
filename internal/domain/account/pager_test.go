package account_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/weeknovel/weeknovel-api/internal/domain/account"
	"github.com/weeknovel/weeknovel-api/internal/pkg/docstore"
)

/* =========================
   Test 1: Native Sort Paging
   ========================= */

func TestPagerCoversAllAccountsOnce(t *testing.T) {
	store := docstore.NewMemory()
	seedAccounts(t, store, 23)
	repo := account.NewRepository(store, nil)

	pager, err := account.NewPager(repo, account.ListOptions{
		SortField: account.SortCreatedAt,
		Desc:      true,
		PageSize:  5,
	})
	requireNoError(t, err)

	ctx := context.Background()
	seen := make(map[string]bool)

	page, err := pager.First(ctx)
	requireNoError(t, err)
	for {
		for _, a := range page {
			if seen[a.ID] {
				t.Fatalf("account %s returned twice", a.ID)
			}
			seen[a.ID] = true
		}
		page, err = pager.Next(ctx)
		if errors.Is(err, account.ErrNoNextPage) {
			break
		}
		requireNoError(t, err)
	}

	if len(seen) != 23 {
		t.Fatalf("expected 23 distinct accounts across pages, got %d", len(seen))
	}
}

func TestPagerPrevReturnsSamePage(t *testing.T) {
	store := docstore.NewMemory()
	seedAccounts(t, store, 15)
	repo := account.NewRepository(store, nil)

	pager, err := account.NewPager(repo, account.ListOptions{
		SortField: account.SortPoint,
		Desc:      true,
		PageSize:  5,
	})
	requireNoError(t, err)

	ctx := context.Background()
	first, err := pager.First(ctx)
	requireNoError(t, err)

	_, err = pager.Next(ctx)
	requireNoError(t, err)
	if !pager.HasPrev() {
		t.Fatal("expected HasPrev after Next")
	}

	back, err := pager.Prev(ctx)
	requireNoError(t, err)

	if len(back) != len(first) {
		t.Fatalf("expected %d accounts on back page, got %d", len(first), len(back))
	}
	for i := range first {
		if back[i].ID != first[i].ID {
			t.Fatalf("page mismatch at %d: %s vs %s", i, back[i].ID, first[i].ID)
		}
	}

	if _, err := pager.Prev(ctx); !errors.Is(err, account.ErrNoPrevPage) {
		t.Fatalf("expected ErrNoPrevPage on first page, got %v", err)
	}
}

func TestPagerOrdering(t *testing.T) {
	store := docstore.NewMemory()
	seedAccounts(t, store, 12)
	repo := account.NewRepository(store, nil)

	pager, err := account.NewPager(repo, account.ListOptions{
		SortField: account.SortPoint,
		Desc:      true,
		PageSize:  4,
	})
	requireNoError(t, err)

	ctx := context.Background()
	var all []account.Account
	page, err := pager.First(ctx)
	requireNoError(t, err)
	for {
		all = append(all, page...)
		page, err = pager.Next(ctx)
		if errors.Is(err, account.ErrNoNextPage) {
			break
		}
		requireNoError(t, err)
	}

	for i := 1; i < len(all); i++ {
		if all[i-1].Point < all[i].Point {
			t.Fatalf("points not descending at %d: %d < %d", i, all[i-1].Point, all[i].Point)
		}
	}
}

/* =========================
   Test 2: Derived Sorts
   ========================= */

func TestDerivedPremiumSort(t *testing.T) {
	store := docstore.NewMemory()
	seedAccount(t, store, "free", map[string]interface{}{})
	seedAccount(t, store, "monthly", map[string]interface{}{"isMonthlyPremium": true})
	seedAccount(t, store, "yearly", map[string]interface{}{"isYearlyPremium": true})
	seedAccount(t, store, "both", map[string]interface{}{"isMonthlyPremium": true, "isYearlyPremium": true})
	repo := account.NewRepository(store, nil)

	accounts, err := repo.ListDerivedPage(context.Background(), account.ListOptions{
		SortField: account.SortPremium,
		Desc:      true,
		PageSize:  10,
	}, 0)
	requireNoError(t, err)

	if len(accounts) != 4 {
		t.Fatalf("expected 4 accounts, got %d", len(accounts))
	}
	// yearly ranks above monthly, monthly above free; yearly wins when both
	// flags are set
	if accounts[0].PremiumTier() != account.PremiumYearly || accounts[1].PremiumTier() != account.PremiumYearly {
		t.Fatalf("expected yearly tiers first, got %s then %s", accounts[0].PremiumTier(), accounts[1].PremiumTier())
	}
	if accounts[2].ID != "monthly" {
		t.Fatalf("expected monthly third, got %s", accounts[2].ID)
	}
	if accounts[3].ID != "free" {
		t.Fatalf("expected free last, got %s", accounts[3].ID)
	}
}

func TestDerivedStatusSortPaging(t *testing.T) {
	store := docstore.NewMemory()
	for i := 0; i < 4; i++ {
		seedAccount(t, store, fmt.Sprintf("n%d", i), map[string]interface{}{"status": "normal"})
	}
	for i := 0; i < 3; i++ {
		seedAccount(t, store, fmt.Sprintf("s%d", i), map[string]interface{}{"status": "suspended"})
	}
	seedAccount(t, store, "w0", map[string]interface{}{"status": "withdrawn"})
	repo := account.NewRepository(store, nil)

	pager, err := account.NewPager(repo, account.ListOptions{
		SortField: account.SortStatus,
		Desc:      true,
		PageSize:  3,
	})
	requireNoError(t, err)

	ctx := context.Background()
	page, err := pager.First(ctx)
	requireNoError(t, err)

	var all []account.Account
	for {
		all = append(all, page...)
		page, err = pager.Next(ctx)
		if errors.Is(err, account.ErrNoNextPage) {
			break
		}
		requireNoError(t, err)
	}

	if len(all) != 8 {
		t.Fatalf("expected 8 accounts across derived pages, got %d", len(all))
	}
	for i := 0; i < 4; i++ {
		if all[i].Status != account.StatusNormal {
			t.Fatalf("expected normal at %d, got %s", i, all[i].Status)
		}
	}
	if all[7].Status != account.StatusWithdrawn {
		t.Fatalf("expected withdrawn last, got %s", all[7].Status)
	}
}

/* =========================
   Test 3: Filters
   ========================= */

func TestListPageStatusFilter(t *testing.T) {
	store := docstore.NewMemory()
	seedAccount(t, store, "a", map[string]interface{}{"status": "normal"})
	seedAccount(t, store, "b", map[string]interface{}{"status": "suspended"})
	seedAccount(t, store, "c", map[string]interface{}{"status": "suspended"})
	repo := account.NewRepository(store, nil)

	accounts, _, err := repo.ListPage(context.Background(), account.ListOptions{
		SortField: account.SortCreatedAt,
		Desc:      true,
		Status:    account.StatusSuspended,
	}, nil)
	requireNoError(t, err)

	if len(accounts) != 2 {
		t.Fatalf("expected 2 suspended accounts, got %d", len(accounts))
	}
	for _, a := range accounts {
		if a.Status != account.StatusSuspended {
			t.Fatalf("unexpected status %s", a.Status)
		}
	}
}

/* =========================
   Test 4: Search
   ========================= */

func TestSearchPrefixAndDedup(t *testing.T) {
	store := docstore.NewMemory()
	seedAccount(t, store, "u1", map[string]interface{}{"displayName": "yuki", "email": "yuki@example.com"})
	seedAccount(t, store, "u2", map[string]interface{}{"displayName": "yukiko", "email": "other@example.com"})
	seedAccount(t, store, "u3", map[string]interface{}{"displayName": "haru", "email": "haru@example.com"})
	repo := account.NewRepository(store, nil)

	// u1 matches on both displayName and email prefix but appears once
	results, err := repo.Search(context.Background(), "yuki")
	requireNoError(t, err)

	if len(results) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(results))
	}
	ids := map[string]bool{}
	for _, a := range results {
		ids[a.ID] = true
	}
	if !ids["u1"] || !ids["u2"] {
		t.Fatalf("expected u1 and u2, got %v", ids)
	}

	results, err = repo.Search(context.Background(), "zzz")
	requireNoError(t, err)
	if len(results) != 0 {
		t.Fatalf("expected no matches, got %d", len(results))
	}
}

/* =========================
   Test 5: Count
   ========================= */

func TestCountWithoutCache(t *testing.T) {
	store := docstore.NewMemory()
	seedAccounts(t, store, 7)
	repo := account.NewRepository(store, nil)

	n, err := repo.Count(context.Background())
	requireNoError(t, err)
	if n != 7 {
		t.Fatalf("expected count 7, got %d", n)
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

func seedAccount(t *testing.T, store *docstore.MemoryStore, id string, extra map[string]interface{}) {
	t.Helper()
	data := map[string]interface{}{
		"displayName": "user " + id,
		"email":       id + "@example.com",
		"point":       0,
		"isActive":    true,
		"createdAt":   time.Now().UTC(),
	}
	for k, v := range extra {
		data[k] = v
	}
	batch := store.NewBatch()
	batch.Set("users", id, data)
	requireNoError(t, batch.Commit(context.Background()))
}

func seedAccounts(t *testing.T, store *docstore.MemoryStore, n int) {
	t.Helper()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		seedAccount(t, store, fmt.Sprintf("acct-%03d", i), map[string]interface{}{
			"point":     i * 10,
			"createdAt": base.Add(time.Duration(i) * time.Hour),
		})
	}
}
