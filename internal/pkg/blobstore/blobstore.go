// Package blobstore wraps the binary asset storage used for diary and
// profile images. The lifecycle cleaner only needs owner-prefixed listing
// and deletion.
package blobstore

import "context"

// Store is the minimal blob storage contract.
type Store interface {
	// ListPrefix returns every object key under the given prefix.
	ListPrefix(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the given objects. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, keys ...string) error
}
