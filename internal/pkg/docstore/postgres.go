package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const pqSerializationFailure = "40001"

// PostgresStore keeps every collection in a single documents table with a
// JSONB payload. Collection paths map directly to the collection column, so
// subcollection paths like "users/<id>/pointHistory" need no special casing.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the documents table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT   NOT NULL,
			id         TEXT   NOT NULL,
			version    BIGINT NOT NULL DEFAULT 1,
			data       JSONB  NOT NULL,
			PRIMARY KEY (collection, id)
		)
	`)
	return err
}

func (s *PostgresStore) Collection(path string) Collection {
	return &pgCollection{store: s, path: path}
}

func (s *PostgresStore) Count(ctx context.Context, path string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM documents WHERE collection = $1`, path)
	return n, err
}

type pgCollection struct {
	store *PostgresStore
	path  string
}

func (c *pgCollection) Get(ctx context.Context, id string) (Document, error) {
	var raw []byte
	err := c.store.db.GetContext(ctx, &raw, `
		SELECT data FROM documents WHERE collection = $1 AND id = $2
	`, c.path, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return decodeDocument(id, raw)
}

func (c *pgCollection) Query() Query {
	return &pgQuery{col: c}
}

type pgQuery struct {
	col       *pgCollection
	filters   []memFilter
	orderBy   string
	desc      bool
	limit     int
	after     *Cursor
	cursorErr error
}

func (q *pgQuery) Where(field string, op Op, value interface{}) Query {
	q.filters = append(q.filters, memFilter{field: field, op: op, value: value})
	return q
}

func (q *pgQuery) OrderBy(field string, desc bool) Query {
	q.orderBy = field
	q.desc = desc
	return q
}

func (q *pgQuery) Limit(n int) Query {
	q.limit = n
	return q
}

func (q *pgQuery) StartAfter(c *Cursor) Query {
	if c != nil && q.orderBy != "" && c.Field != q.orderBy {
		q.cursorErr = ErrInvalidCursor
		return q
	}
	q.after = c
	return q
}

func (q *pgQuery) Documents(ctx context.Context) ([]Document, error) {
	if q.cursorErr != nil {
		return nil, q.cursorErr
	}

	query := `SELECT id, data FROM documents WHERE collection = $1`
	args := []interface{}{q.col.path}
	idx := 2

	for _, f := range q.filters {
		jsonVal, err := jsonValue(f.value)
		if err != nil {
			return nil, err
		}
		switch f.op {
		case OpArrayContains:
			query += fmt.Sprintf(" AND data->%s @> $%d::jsonb", quoteField(f.field), idx)
			arr, err := jsonValue([]interface{}{f.value})
			if err != nil {
				return nil, err
			}
			args = append(args, arr)
		case OpEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
			sqlOp := string(f.op)
			if f.op == OpEqual {
				sqlOp = "="
			}
			query += fmt.Sprintf(" AND data->%s %s $%d::jsonb", quoteField(f.field), sqlOp, idx)
			args = append(args, jsonVal)
		default:
			return nil, fmt.Errorf("docstore: unsupported operator %q", f.op)
		}
		idx++
	}

	if q.after != nil && q.orderBy != "" {
		cmp := ">"
		if q.desc {
			cmp = "<"
		}
		cursorVal, err := jsonValue(q.after.Value)
		if err != nil {
			return nil, err
		}
		query += fmt.Sprintf(" AND (data->%s, id) %s ($%d::jsonb, $%d)", quoteField(q.orderBy), cmp, idx, idx+1)
		args = append(args, cursorVal, q.after.ID)
		idx += 2
	}

	if q.orderBy != "" {
		dir := "ASC"
		if q.desc {
			dir = "DESC"
		}
		query += fmt.Sprintf(" ORDER BY data->%s %s, id %s", quoteField(q.orderBy), dir, dir)
	}

	if q.limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", idx)
		args = append(args, q.limit)
	}

	rows, err := q.col.store.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		doc, err := decodeDocument(id, raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// quoteField renders a JSONB key accessor for a trusted field name.
func quoteField(field string) string {
	return "'" + strings.ReplaceAll(field, "'", "''") + "'"
}

func jsonValue(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func decodeDocument(id string, raw []byte) (Document, error) {
	data := make(map[string]interface{})
	if err := json.Unmarshal(raw, &data); err != nil {
		return Document{}, err
	}
	return Document{ID: id, Data: data}, nil
}

// --- batches ---

type pgBatch struct {
	store  *PostgresStore
	writes []memWrite
}

func (s *PostgresStore) NewBatch() Batch {
	return &pgBatch{store: s}
}

func (b *pgBatch) Set(path, id string, data map[string]interface{}) {
	b.writes = append(b.writes, memWrite{path: path, id: id, data: data})
}

func (b *pgBatch) Delete(path, id string) {
	b.writes = append(b.writes, memWrite{path: path, id: id})
}

func (b *pgBatch) Len() int { return len(b.writes) }

func (b *pgBatch) Commit(ctx context.Context) error {
	if len(b.writes) > MaxBatchWrites {
		return ErrBatchTooLarge
	}

	tx, err := b.store.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, w := range b.writes {
		if w.data == nil {
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM documents WHERE collection = $1 AND id = $2
			`, w.path, w.id); err != nil {
				return err
			}
			continue
		}
		raw, err := jsonValue(w.data)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, data)
			VALUES ($1, $2, $3::jsonb)
			ON CONFLICT (collection, id)
			DO UPDATE SET data = EXCLUDED.data, version = documents.version + 1
		`, w.path, w.id, raw); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	b.writes = nil
	return nil
}

// --- transactions ---

type pgTx struct {
	ctx context.Context
	tx  *sqlx.Tx
	err error
}

func (s *PostgresStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isSerializationFailure(err) {
			return err
		}
		lastErr = ErrTxConflict
	}
	return lastErr
}

func (s *PostgresStore) runOnce(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ptx := &pgTx{ctx: ctx, tx: tx}
	if err := fn(ptx); err != nil {
		return err
	}
	if ptx.err != nil {
		return ptx.err
	}
	return tx.Commit()
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pqSerializationFailure
}

func (t *pgTx) Get(path, id string) (Document, error) {
	var raw []byte
	err := t.tx.GetContext(t.ctx, &raw, `
		SELECT data FROM documents WHERE collection = $1 AND id = $2
	`, path, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return decodeDocument(id, raw)
}

func (t *pgTx) Set(path, id string, data map[string]interface{}) {
	if t.err != nil {
		return
	}
	raw, err := jsonValue(data)
	if err != nil {
		t.err = err
		return
	}
	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id)
		DO UPDATE SET data = EXCLUDED.data, version = documents.version + 1
	`, path, id, raw)
	if err != nil {
		t.err = err
	}
}

func (t *pgTx) Update(path, id string, fields map[string]interface{}) {
	if t.err != nil {
		return
	}
	raw, err := jsonValue(fields)
	if err != nil {
		t.err = err
		return
	}
	res, err := t.tx.ExecContext(t.ctx, `
		UPDATE documents
		SET data = data || $3::jsonb, version = version + 1
		WHERE collection = $1 AND id = $2
	`, path, id, raw)
	if err != nil {
		t.err = err
		return
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		t.err = ErrNotFound
	}
}

func (t *pgTx) Delete(path, id string) {
	if t.err != nil {
		return
	}
	if _, err := t.tx.ExecContext(t.ctx, `
		DELETE FROM documents WHERE collection = $1 AND id = $2
	`, path, id); err != nil {
		t.err = err
	}
}
