// Package docstore abstracts the document store the app is built on.
// It exposes the only three primitives the domain layer relies on:
// filtered/sorted/paginated reads with cursors, bounded atomic write
// batches, and small read-modify-write transactions.
package docstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
)

// MaxBatchWrites is the store-enforced limit on writes per atomic batch.
const MaxBatchWrites = 500

var (
	// ErrNotFound is returned when a document does not exist
	ErrNotFound = errors.New("docstore: document not found")

	// ErrTxConflict is returned when a transaction read a document that was
	// concurrently modified before commit
	ErrTxConflict = errors.New("docstore: transaction conflict")

	// ErrBatchTooLarge is returned when a batch holds more than MaxBatchWrites writes
	ErrBatchTooLarge = errors.New("docstore: batch exceeds write limit")

	// ErrInvalidCursor is returned for cursors that cannot be decoded or that
	// reference a different sort field than the query
	ErrInvalidCursor = errors.New("docstore: invalid cursor")
)

// Op is a query comparison operator.
type Op string

const (
	OpEqual         Op = "=="
	OpLess          Op = "<"
	OpLessEqual     Op = "<="
	OpGreater       Op = ">"
	OpGreaterEqual  Op = ">="
	OpArrayContains Op = "array-contains"
)

// Document is one record in a collection.
type Document struct {
	ID   string
	Data map[string]interface{}
}

// Store is the document store contract consumed by the domain layer.
type Store interface {
	// Collection returns a handle for a collection path. Paths are
	// slash-joined, e.g. "users" or "users/<id>/pointHistory".
	Collection(path string) Collection

	// NewBatch returns an empty write batch limited to MaxBatchWrites writes.
	NewBatch() Batch

	// RunTransaction executes fn atomically. When a document read inside fn
	// is modified concurrently the attempt is discarded and fn re-run; after
	// a bounded number of attempts ErrTxConflict is returned.
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error

	// Count returns the number of documents in a collection.
	Count(ctx context.Context, path string) (int, error)
}

// Collection reads documents from one collection.
type Collection interface {
	Get(ctx context.Context, id string) (Document, error)
	Query() Query
}

// Query builds and executes a filtered, ordered, paginated read.
// Builders return the receiver, so calls chain.
type Query interface {
	Where(field string, op Op, value interface{}) Query
	OrderBy(field string, desc bool) Query
	Limit(n int) Query
	StartAfter(c *Cursor) Query
	Documents(ctx context.Context) ([]Document, error)
}

// Batch is a bounded atomic multi-document write.
type Batch interface {
	Set(path, id string, data map[string]interface{})
	Delete(path, id string)
	Len() int
	Commit(ctx context.Context) error
}

// Tx is the handle passed to RunTransaction. Writes are staged and applied
// atomically on commit. Deleting an absent document is a no-op; Update of an
// absent document fails with ErrNotFound.
type Tx interface {
	Get(path, id string) (Document, error)
	Set(path, id string, data map[string]interface{})
	Update(path, id string, fields map[string]interface{})
	Delete(path, id string)
}

// Cursor is an opaque continuation token referencing the last record of a
// page for a given sort field.
type Cursor struct {
	Field string      `json:"f"`
	Value interface{} `json:"v"`
	ID    string      `json:"id"`
}

// CursorAfter builds the continuation cursor for the page ending at doc.
func CursorAfter(doc Document, field string) *Cursor {
	return &Cursor{Field: field, Value: doc.Data[field], ID: doc.ID}
}

// Encode serializes the cursor into an opaque token.
func (c *Cursor) Encode() string {
	if c == nil {
		return ""
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses a token produced by Encode. An empty token yields a
// nil cursor (first page).
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, ErrInvalidCursor
	}
	return &c, nil
}
