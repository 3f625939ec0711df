package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/weeknovel/weeknovel-api/internal/pkg/blobstore"
	"github.com/weeknovel/weeknovel-api/internal/pkg/docstore"
	"github.com/weeknovel/weeknovel-api/internal/pkg/identity"
)

const (
	colUsers          = "users"
	DefaultStaleDays  = 365
	staleScanPageSize = 500
)

// blobPrefixes are the owner-scoped object prefixes removed per account.
func blobPrefixes(accountID string) []string {
	return []string{
		"diaries/" + accountID + "/",
		"profile-images/" + accountID + "/",
	}
}

// dependentQuery describes one dependent-collection query to purge.
type dependentQuery struct {
	collection string
	field      string
	op         docstore.Op
}

// dependentQueries lists every root collection holding records owned by an
// account. friendRequests is queried twice, once per direction.
var dependentQueries = []dependentQuery{
	{"diaries", "userId", docstore.OpEqual},
	{"novels", "userId", docstore.OpEqual},
	{"friendships", "users", docstore.OpArrayContains},
	{"friendRequests", "fromUserId", docstore.OpEqual},
	{"friendRequests", "toUserId", docstore.OpEqual},
	{"notifications", "userId", docstore.OpEqual},
}

// subcollectionPaths returns the account's own subcollections.
func subcollectionPaths(accountID string) []string {
	return []string{
		colUsers + "/" + accountID + "/pointHistory",
		colUsers + "/" + accountID + "/viewedNovels",
	}
}

// AccountError attributes a cleanup failure to one account.
type AccountError struct {
	AccountID string `json:"accountId"`
	Message   string `json:"message"`
}

// Result aggregates one cleanup run.
type Result struct {
	Total        int            `json:"total"`
	Succeeded    int            `json:"succeeded"`
	Failed       int            `json:"failed"`
	DeletedItems int            `json:"deletedItems"`
	AuthDeleted  int            `json:"authDeleted"`
	AuthFailed   int            `json:"authFailed"`
	DryRun       bool           `json:"dryRun"`
	Errors       []AccountError `json:"errors,omitempty"`
}

// Options control a cleanup run.
type Options struct {
	DryRun bool
}

// Candidate is one account eligible for removal.
type Candidate struct {
	AccountID   string    `json:"accountId"`
	DisplayName string    `json:"displayName"`
	Withdrawn   bool      `json:"withdrawn"`
	Stale       bool      `json:"stale"`
	LastLoginAt time.Time `json:"lastLoginAt,omitempty"`
}

// Cleaner discovers deletion candidates and cascades their removal.
type Cleaner struct {
	store     docstore.Store
	blobs     blobstore.Store
	identity  identity.Deleter
	batchSize int
}

// NewCleaner creates a Cleaner. identity may be nil, in which case no
// credential deletion is attempted.
func NewCleaner(store docstore.Store, blobs blobstore.Store, id identity.Deleter) *Cleaner {
	if id == nil {
		id = identity.Noop{}
	}
	return &Cleaner{
		store:     store,
		blobs:     blobs,
		identity:  id,
		batchSize: docstore.MaxBatchWrites,
	}
}

// FindWithdrawn returns accounts whose activity flag is off.
func (c *Cleaner) FindWithdrawn(ctx context.Context) ([]Candidate, error) {
	docs, err := c.store.Collection(colUsers).Query().
		Where("isActive", docstore.OpEqual, false).
		Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("query withdrawn accounts: %w", err)
	}

	out := make([]Candidate, 0, len(docs))
	for _, doc := range docs {
		out = append(out, Candidate{
			AccountID:   doc.ID,
			DisplayName: docstore.GetString(doc, "displayName"),
			Withdrawn:   true,
			LastLoginAt: docstore.GetTime(doc, "lastLoginAt"),
		})
	}
	return out, nil
}

// FindStale returns accounts whose last login is older than the threshold,
// including accounts that never logged in at all. The store cannot express
// "missing or before cutoff" in one query, so this scans the collection and
// filters client-side.
func (c *Cleaner) FindStale(ctx context.Context, staleDays int) ([]Candidate, error) {
	if staleDays <= 0 {
		staleDays = DefaultStaleDays
	}
	cutoff := time.Now().AddDate(0, 0, -staleDays)

	log.Warn().
		Int("stale_days", staleDays).
		Msg("stale-account discovery falls back to a full scan")

	var out []Candidate
	var cursor *docstore.Cursor
	for {
		docs, err := c.store.Collection(colUsers).Query().
			OrderBy("createdAt", false).
			StartAfter(cursor).
			Limit(staleScanPageSize).
			Documents(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan accounts for staleness: %w", err)
		}
		if len(docs) == 0 {
			break
		}

		for _, doc := range docs {
			lastLogin := docstore.GetTime(doc, "lastLoginAt")
			if !lastLogin.IsZero() && !lastLogin.Before(cutoff) {
				continue
			}
			out = append(out, Candidate{
				AccountID:   doc.ID,
				DisplayName: docstore.GetString(doc, "displayName"),
				Stale:       true,
				LastLoginAt: lastLogin,
			})
		}

		if len(docs) < staleScanPageSize {
			break
		}
		cursor = docstore.CursorAfter(docs[len(docs)-1], "createdAt")
	}
	return out, nil
}

// Candidates unions withdrawn and stale accounts, de-duplicated by id.
// Withdrawn accounts come first.
func (c *Cleaner) Candidates(ctx context.Context, staleDays int) ([]Candidate, error) {
	withdrawn, err := c.FindWithdrawn(ctx)
	if err != nil {
		return nil, err
	}
	stale, err := c.FindStale(ctx, staleDays)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]int, len(withdrawn))
	out := make([]Candidate, 0, len(withdrawn)+len(stale))
	for _, cand := range withdrawn {
		seen[cand.AccountID] = len(out)
		out = append(out, cand)
	}
	for _, cand := range stale {
		if i, ok := seen[cand.AccountID]; ok {
			out[i].Stale = true
			if out[i].LastLoginAt.IsZero() {
				out[i].LastLoginAt = cand.LastLoginAt
			}
			continue
		}
		seen[cand.AccountID] = len(out)
		out = append(out, cand)
	}
	return out, nil
}

// Cleanup removes the given accounts and everything they own. Accounts are
// processed strictly sequentially; one account's failure never stops the
// rest. With Options.DryRun the run only counts what would be deleted.
func (c *Cleaner) Cleanup(ctx context.Context, ids []string, opts Options) (*Result, error) {
	res := &Result{Total: len(ids), DryRun: opts.DryRun}
	if len(ids) == 0 {
		return res, nil
	}

	// Credential deletion is best-effort and bulk: a dead identity channel
	// must not block record cleanup.
	if opts.DryRun {
		res.AuthDeleted = len(ids)
	} else {
		authRes, err := c.identity.DeleteAccounts(ctx, ids)
		if err != nil {
			log.Warn().Err(err).Int("accounts", len(ids)).
				Msg("identity deletion failed, continuing with record cleanup")
			res.AuthFailed = len(ids)
		} else {
			res.AuthDeleted = len(authRes.Deleted)
			res.AuthFailed = len(authRes.Failed)
			for id, reason := range authRes.Failed {
				log.Warn().Str("account_id", id).Str("reason", reason).
					Msg("identity deletion failed for account")
			}
		}
	}

	for _, id := range ids {
		deleted, err := c.purgeAccount(ctx, id, opts.DryRun)
		res.DeletedItems += deleted
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, AccountError{AccountID: id, Message: err.Error()})
			log.Error().Err(err).Str("account_id", id).Msg("account cleanup failed")
			continue
		}
		res.Succeeded++
		log.Info().
			Str("account_id", id).
			Int("deleted_items", deleted).
			Bool("dry_run", opts.DryRun).
			Msg("account cleaned up")
	}
	return res, nil
}

// purgeAccount runs the ordered deletion steps for one account and returns
// how many items were (or would be) removed. Steps are independent: a
// failure is recorded but later steps still run.
func (c *Cleaner) purgeAccount(ctx context.Context, accountID string, dryRun bool) (int, error) {
	deleted := 0
	var firstErr error

	// Step 1: blob assets. Failures only logged.
	for _, prefix := range blobPrefixes(accountID) {
		keys, err := c.blobs.ListPrefix(ctx, prefix)
		if err != nil {
			log.Warn().Err(err).Str("prefix", prefix).Msg("listing blobs failed")
			continue
		}
		if len(keys) == 0 {
			continue
		}
		if !dryRun {
			if err := c.blobs.Delete(ctx, keys...); err != nil {
				log.Warn().Err(err).Str("prefix", prefix).Msg("deleting blobs failed")
				continue
			}
		}
		deleted += len(keys)
	}

	// Step 2: dependent root collections.
	for _, dq := range dependentQueries {
		value := interface{}(accountID)
		docs, err := c.store.Collection(dq.collection).Query().
			Where(dq.field, dq.op, value).
			Documents(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: query %s by %s: %v", ErrPartialFailure, dq.collection, dq.field, err)
			}
			continue
		}
		n, err := c.deleteDocs(ctx, dq.collection, docs, dryRun)
		deleted += n
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%w: delete from %s: %v", ErrPartialFailure, dq.collection, err)
		}
	}

	// Step 2 continued: the account's own subcollections.
	for _, path := range subcollectionPaths(accountID) {
		docs, err := c.store.Collection(path).Query().Documents(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: query %s: %v", ErrPartialFailure, path, err)
			}
			continue
		}
		n, err := c.deleteDocs(ctx, path, docs, dryRun)
		deleted += n
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%w: delete from %s: %v", ErrPartialFailure, path, err)
		}
	}

	// Step 3: root document last, so an interrupted run stays discoverable.
	if _, err := c.store.Collection(colUsers).Get(ctx, accountID); err == nil {
		if !dryRun {
			batch := c.store.NewBatch()
			batch.Delete(colUsers, accountID)
			if err := batch.Commit(ctx); err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("%w: delete root document: %v", ErrPartialFailure, err)
				}
				return deleted, firstErr
			}
		}
		deleted++
	}

	return deleted, firstErr
}

// deleteDocs removes documents in batches bounded by the store's write limit.
func (c *Cleaner) deleteDocs(ctx context.Context, path string, docs []docstore.Document, dryRun bool) (int, error) {
	if dryRun {
		return len(docs), nil
	}

	deleted := 0
	for start := 0; start < len(docs); start += c.batchSize {
		end := start + c.batchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := c.store.NewBatch()
		for _, doc := range docs[start:end] {
			batch.Delete(path, doc.ID)
		}
		if err := batch.Commit(ctx); err != nil {
			return deleted, err
		}
		deleted += end - start
	}
	return deleted, nil
}
