package account

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/weeknovel/weeknovel-api/internal/pkg/docstore"
)

const (
	colUsers = "users"

	// derivedFetchLimit caps the superset fetched for derived-field sorts.
	derivedFetchLimit = 1000

	// searchLimit caps matches per searched field.
	searchLimit = 100

	defaultPageSize = 20

	countCacheKey = "weeknovel:accounts:total"
	countCacheTTL = 5 * time.Minute
)

// Native sort fields the store orders directly; derived fields are ranked
// client-side from multiple stored attributes.
const (
	SortCreatedAt   = "createdAt"
	SortLastLoginAt = "lastLoginAt"
	SortPoint       = "point"
	SortDisplayName = "displayName"
	SortPremium     = "premium"
	SortStatus      = "status"
)

// IsDerivedSort reports whether field needs client-side ranking.
func IsDerivedSort(field string) bool {
	return field == SortPremium || field == SortStatus
}

// ValidSortField reports whether field is a known sort key.
func ValidSortField(field string) bool {
	switch field {
	case SortCreatedAt, SortLastLoginAt, SortPoint, SortDisplayName, SortPremium, SortStatus:
		return true
	}
	return false
}

// ListOptions controls one listing.
type ListOptions struct {
	SortField string
	Desc      bool
	PageSize  int

	// Optional equality filters.
	Status   Status
	IsActive *bool
}

func (o ListOptions) pageSize() int {
	if o.PageSize <= 0 {
		return defaultPageSize
	}
	return o.PageSize
}

// Repository reads accounts from the document store. The total count used
// for page metadata is cached in Redis when a client is configured.
type Repository struct {
	store docstore.Store
	cache *redis.Client
}

// NewRepository creates an account repository. cache may be nil.
func NewRepository(store docstore.Store, cache *redis.Client) *Repository {
	return &Repository{store: store, cache: cache}
}

// Get returns one account by id.
func (r *Repository) Get(ctx context.Context, id string) (*Account, error) {
	doc, err := r.store.Collection(colUsers).Get(ctx, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a := FromDocument(doc)
	return &a, nil
}

// ListPage returns one page for a native sort field plus the cursor for the
// following page (nil when the listing is exhausted).
func (r *Repository) ListPage(ctx context.Context, opts ListOptions, after *docstore.Cursor) ([]Account, *docstore.Cursor, error) {
	if !ValidSortField(opts.SortField) {
		return nil, nil, ErrInvalidSortField
	}
	if IsDerivedSort(opts.SortField) {
		return nil, nil, ErrInvalidSortField
	}

	q := r.store.Collection(colUsers).Query()
	if opts.Status != "" {
		q = q.Where("status", docstore.OpEqual, string(opts.Status))
	}
	if opts.IsActive != nil {
		q = q.Where("isActive", docstore.OpEqual, *opts.IsActive)
	}

	size := opts.pageSize()
	docs, err := q.OrderBy(opts.SortField, opts.Desc).
		StartAfter(after).
		Limit(size).
		Documents(ctx)
	if err != nil {
		return nil, nil, err
	}

	accounts := make([]Account, 0, len(docs))
	for _, doc := range docs {
		accounts = append(accounts, FromDocument(doc))
	}

	var next *docstore.Cursor
	if len(docs) == size {
		next = docstore.CursorAfter(docs[len(docs)-1], opts.SortField)
	}
	return accounts, next, nil
}

// ListDerivedPage returns one page for a derived sort field. The store
// cannot order on these, so a bounded superset is fetched on a stable
// fallback order, ranked in memory, sorted, and sliced. Store cursors carry
// no meaning here; pages are addressed by index and every call re-runs the
// bounded fetch.
func (r *Repository) ListDerivedPage(ctx context.Context, opts ListOptions, pageIndex int) ([]Account, error) {
	if !IsDerivedSort(opts.SortField) {
		return nil, ErrInvalidSortField
	}
	if pageIndex < 0 {
		pageIndex = 0
	}

	q := r.store.Collection(colUsers).Query()
	if opts.Status != "" {
		q = q.Where("status", docstore.OpEqual, string(opts.Status))
	}
	if opts.IsActive != nil {
		q = q.Where("isActive", docstore.OpEqual, *opts.IsActive)
	}

	docs, err := q.OrderBy(SortCreatedAt, true).
		Limit(derivedFetchLimit).
		Documents(ctx)
	if err != nil {
		return nil, err
	}

	accounts := make([]Account, 0, len(docs))
	for _, doc := range docs {
		accounts = append(accounts, FromDocument(doc))
	}

	rank := premiumRank
	if opts.SortField == SortStatus {
		rank = statusRank
	}
	sort.SliceStable(accounts, func(i, j int) bool {
		ri, rj := rank(accounts[i]), rank(accounts[j])
		if ri == rj {
			return false
		}
		if opts.Desc {
			return ri > rj
		}
		return ri < rj
	})

	size := opts.pageSize()
	start := pageIndex * size
	if start >= len(accounts) {
		return []Account{}, nil
	}
	end := start + size
	if end > len(accounts) {
		end = len(accounts)
	}
	return accounts[start:end], nil
}

// Search runs a prefix match on display name and email, capped per field,
// de-duplicated by id. It bypasses pagination and returns one bounded set.
func (r *Repository) Search(ctx context.Context, term string) ([]Account, error) {
	if term == "" {
		return []Account{}, nil
	}

	seen := make(map[string]Account)
	order := make([]string, 0)

	for _, field := range []string{"displayName", "email"} {
		docs, err := r.store.Collection(colUsers).Query().
			Where(field, docstore.OpGreaterEqual, term).
			Where(field, docstore.OpLessEqual, term+"\uf8ff").
			OrderBy(field, false).
			Limit(searchLimit).
			Documents(ctx)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			if _, ok := seen[doc.ID]; !ok {
				seen[doc.ID] = FromDocument(doc)
				order = append(order, doc.ID)
			}
		}
	}

	results := make([]Account, 0, len(order))
	for _, id := range order {
		results = append(results, seen[id])
	}
	return results, nil
}

// Count returns the total number of accounts, served from the Redis cache
// when possible.
func (r *Repository) Count(ctx context.Context) (int, error) {
	if r.cache != nil {
		if raw, err := r.cache.Get(ctx, countCacheKey).Result(); err == nil {
			if n, err := strconv.Atoi(raw); err == nil {
				return n, nil
			}
		}
	}

	n, err := r.store.Count(ctx, colUsers)
	if err != nil {
		return 0, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, countCacheKey, strconv.Itoa(n), countCacheTTL).Err(); err != nil {
			log.Warn().Err(err).Msg("failed to cache account count")
		}
	}
	return n, nil
}
