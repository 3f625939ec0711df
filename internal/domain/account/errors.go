package account

import "errors"

var (
	// ErrNotFound is returned when the account document doesn't exist
	ErrNotFound = errors.New("account not found")

	// ErrInvalidSortField is returned for a sort field outside the known set
	ErrInvalidSortField = errors.New("invalid sort field")

	// ErrNoNextPage is returned by the pager when the listing is exhausted
	ErrNoNextPage = errors.New("no next page")

	// ErrNoPrevPage is returned by the pager on the first page
	ErrNoPrevPage = errors.New("no previous page")
)
