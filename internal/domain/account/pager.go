package account

import (
	"context"

	"github.com/weeknovel/weeknovel-api/internal/pkg/docstore"
)

// Pager walks a listing page by page in both directions. Forward navigation
// follows store cursors; backward navigation pops a stack of previously
// issued cursors and re-runs the query one level back instead of computing
// an inverse sort. Derived sorts have no store cursors, so the pager tracks
// a page index and every move re-runs the bounded fetch-and-sort.
type Pager struct {
	repo *Repository
	opts ListOptions

	// Native-sort state: cursor stack of prior pages, the cursor the
	// current page was fetched with, and the cursor for the page after it.
	stack []*docstore.Cursor
	cur   *docstore.Cursor
	next  *docstore.Cursor

	// Derived-sort state.
	page int

	loaded bool
}

// NewPager creates a pager for the given listing options.
func NewPager(repo *Repository, opts ListOptions) (*Pager, error) {
	if !ValidSortField(opts.SortField) {
		return nil, ErrInvalidSortField
	}
	return &Pager{repo: repo, opts: opts}, nil
}

// Reset clears navigation state; the next fetch starts from the first page.
func (p *Pager) Reset() {
	p.stack = nil
	p.cur = nil
	p.next = nil
	p.page = 0
	p.loaded = false
}

// First loads the first page and resets navigation state.
func (p *Pager) First(ctx context.Context) ([]Account, error) {
	p.Reset()
	return p.fetch(ctx)
}

// Next loads the following page. ErrNoNextPage is returned when the listing
// is exhausted; the pager stays on the current page.
func (p *Pager) Next(ctx context.Context) ([]Account, error) {
	if !p.loaded {
		return p.First(ctx)
	}

	if IsDerivedSort(p.opts.SortField) {
		p.page++
		accounts, err := p.fetch(ctx)
		if err != nil {
			p.page--
			return nil, err
		}
		if len(accounts) == 0 {
			p.page--
			return nil, ErrNoNextPage
		}
		return accounts, nil
	}

	if p.next == nil {
		return nil, ErrNoNextPage
	}
	p.stack = append(p.stack, p.cur)
	p.cur = p.next
	accounts, err := p.fetch(ctx)
	if err != nil {
		p.cur = p.stack[len(p.stack)-1]
		p.stack = p.stack[:len(p.stack)-1]
		return nil, err
	}
	return accounts, nil
}

// Prev re-issues the query with the cursor one level back on the stack (or
// no cursor for the first page).
func (p *Pager) Prev(ctx context.Context) ([]Account, error) {
	if IsDerivedSort(p.opts.SortField) {
		if p.page == 0 {
			return nil, ErrNoPrevPage
		}
		p.page--
		return p.fetch(ctx)
	}

	if len(p.stack) == 0 {
		return nil, ErrNoPrevPage
	}
	p.cur = p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	return p.fetch(ctx)
}

// HasPrev reports whether a previous page exists.
func (p *Pager) HasPrev() bool {
	if IsDerivedSort(p.opts.SortField) {
		return p.page > 0
	}
	return len(p.stack) > 0
}

// PageIndex returns the zero-based index of the current page.
func (p *Pager) PageIndex() int {
	if IsDerivedSort(p.opts.SortField) {
		return p.page
	}
	return len(p.stack)
}

func (p *Pager) fetch(ctx context.Context) ([]Account, error) {
	if IsDerivedSort(p.opts.SortField) {
		accounts, err := p.repo.ListDerivedPage(ctx, p.opts, p.page)
		if err != nil {
			return nil, err
		}
		p.loaded = true
		return accounts, nil
	}

	accounts, next, err := p.repo.ListPage(ctx, p.opts, p.cur)
	if err != nil {
		return nil, err
	}
	p.next = next
	p.loaded = true
	return accounts, nil
}
