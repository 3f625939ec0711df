package docstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

const maxTxAttempts = 5

// MemoryStore is an in-process Store used by tests and local development.
// It mirrors the semantics of the backing store: optimistic transactions
// with per-document versions, bounded batches, idempotent deletes.
type MemoryStore struct {
	mu   sync.RWMutex
	cols map[string]map[string]memDoc
}

type memDoc struct {
	data    map[string]interface{}
	version int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{cols: make(map[string]map[string]memDoc)}
}

func (s *MemoryStore) Collection(path string) Collection {
	return &memCollection{store: s, path: path}
}

func (s *MemoryStore) Count(ctx context.Context, path string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cols[path]), nil
}

func (s *MemoryStore) get(path, id string) (memDoc, bool) {
	col, ok := s.cols[path]
	if !ok {
		return memDoc{}, false
	}
	d, ok := col[id]
	return d, ok
}

func (s *MemoryStore) put(path, id string, data map[string]interface{}) {
	col, ok := s.cols[path]
	if !ok {
		col = make(map[string]memDoc)
		s.cols[path] = col
	}
	prev := col[id]
	col[id] = memDoc{data: copyValue(data).(map[string]interface{}), version: prev.version + 1}
}

func (s *MemoryStore) delete(path, id string) {
	if col, ok := s.cols[path]; ok {
		delete(col, id)
	}
}

type memCollection struct {
	store *MemoryStore
	path  string
}

func (c *memCollection) Get(ctx context.Context, id string) (Document, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	d, ok := c.store.get(c.path, id)
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{ID: id, Data: copyValue(d.data).(map[string]interface{})}, nil
}

func (c *memCollection) Query() Query {
	return &memQuery{col: c}
}

type memFilter struct {
	field string
	op    Op
	value interface{}
}

type memQuery struct {
	col       *memCollection
	filters   []memFilter
	orderBy   string
	desc      bool
	limit     int
	after     *Cursor
	cursorErr error
}

func (q *memQuery) Where(field string, op Op, value interface{}) Query {
	q.filters = append(q.filters, memFilter{field: field, op: op, value: value})
	return q
}

func (q *memQuery) OrderBy(field string, desc bool) Query {
	q.orderBy = field
	q.desc = desc
	return q
}

func (q *memQuery) Limit(n int) Query {
	q.limit = n
	return q
}

func (q *memQuery) StartAfter(c *Cursor) Query {
	if c != nil && q.orderBy != "" && c.Field != q.orderBy {
		q.cursorErr = ErrInvalidCursor
		return q
	}
	q.after = c
	return q
}

func (q *memQuery) Documents(ctx context.Context) ([]Document, error) {
	if q.cursorErr != nil {
		return nil, q.cursorErr
	}

	q.col.store.mu.RLock()
	var docs []Document
	for id, d := range q.col.store.cols[q.col.path] {
		if matchesAll(d.data, q.filters) {
			docs = append(docs, Document{ID: id, Data: copyValue(d.data).(map[string]interface{})})
		}
	}
	q.col.store.mu.RUnlock()

	if q.orderBy != "" {
		field, desc := q.orderBy, q.desc
		sort.Slice(docs, func(i, j int) bool {
			c := compareValues(docs[i].Data[field], docs[j].Data[field])
			if c == 0 {
				c = strings.Compare(docs[i].ID, docs[j].ID)
			}
			if desc {
				return c > 0
			}
			return c < 0
		})
	}

	if q.after != nil && q.orderBy != "" {
		idx := 0
		for i, d := range docs {
			c := compareValues(d.Data[q.orderBy], q.after.Value)
			if c == 0 {
				c = strings.Compare(d.ID, q.after.ID)
			}
			past := c > 0
			if q.desc {
				past = c < 0
			}
			if !past {
				idx = i + 1
			} else {
				break
			}
		}
		docs = docs[idx:]
	}

	if q.limit > 0 && len(docs) > q.limit {
		docs = docs[:q.limit]
	}
	return docs, nil
}

func matchesAll(data map[string]interface{}, filters []memFilter) bool {
	for _, f := range filters {
		if !matches(data, f) {
			return false
		}
	}
	return true
}

func matches(data map[string]interface{}, f memFilter) bool {
	v, ok := data[f.field]
	if f.op == OpArrayContains {
		if !ok {
			return false
		}
		return arrayContains(v, f.value)
	}
	if !ok {
		return false
	}
	c := compareValues(v, f.value)
	switch f.op {
	case OpEqual:
		return c == 0
	case OpLess:
		return c < 0
	case OpLessEqual:
		return c <= 0
	case OpGreater:
		return c > 0
	case OpGreaterEqual:
		return c >= 0
	}
	return false
}

func arrayContains(arr, value interface{}) bool {
	switch a := arr.(type) {
	case []interface{}:
		for _, e := range a {
			if compareValues(e, value) == 0 {
				return true
			}
		}
	case []string:
		for _, e := range a {
			if compareValues(e, value) == 0 {
				return true
			}
		}
	}
	return false
}

// compareValues orders two document values. Values of different kinds order
// by kind: nil < bool < number < time < string. A time compared against an
// RFC 3339 string (a cursor value that went through JSON encoding) is
// compared as a time.
func compareValues(a, b interface{}) int {
	if _, ok := a.(time.Time); ok {
		if tb, ok := parseTimeString(b); ok {
			b = tb
		}
	} else if _, ok := b.(time.Time); ok {
		if ta, ok := parseTimeString(a); ok {
			a = ta
		}
	}

	ra, rb := valueRank(a), valueRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case 0: // both nil
		return 0
	case 1:
		ba, bb := a.(bool), b.(bool)
		if ba == bb {
			return 0
		}
		if !ba {
			return -1
		}
		return 1
	case 2:
		fa, fb := toFloat(a), toFloat(b)
		if fa < fb {
			return -1
		}
		if fa > fb {
			return 1
		}
		return 0
	case 3:
		ta, tb := a.(time.Time), b.(time.Time)
		if ta.Before(tb) {
			return -1
		}
		if ta.After(tb) {
			return 1
		}
		return 0
	default:
		return strings.Compare(toString(a), toString(b))
	}
}

func parseTimeString(v interface{}) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func valueRank(v interface{}) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int, int32, int64, float32, float64:
		return 2
	case time.Time:
		return 3
	default:
		return 4
	}
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = copyValue(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}

// --- batches ---

type memWrite struct {
	path string
	id   string
	data map[string]interface{} // nil means delete
}

type memBatch struct {
	store  *MemoryStore
	writes []memWrite
}

func (s *MemoryStore) NewBatch() Batch {
	return &memBatch{store: s}
}

func (b *memBatch) Set(path, id string, data map[string]interface{}) {
	b.writes = append(b.writes, memWrite{path: path, id: id, data: data})
}

func (b *memBatch) Delete(path, id string) {
	b.writes = append(b.writes, memWrite{path: path, id: id})
}

func (b *memBatch) Len() int { return len(b.writes) }

func (b *memBatch) Commit(ctx context.Context) error {
	if len(b.writes) > MaxBatchWrites {
		return ErrBatchTooLarge
	}

	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	for _, w := range b.writes {
		if w.data == nil {
			b.store.delete(w.path, w.id)
		} else {
			b.store.put(w.path, w.id, w.data)
		}
	}
	b.writes = nil
	return nil
}

// --- transactions ---

type memTx struct {
	store  *MemoryStore
	reads  map[string]int64 // docKey -> version observed (0 = absent)
	writes []memWrite
	err    error
}

func docKey(path, id string) string { return path + "\x00" + id }

func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		tx := &memTx{store: s, reads: make(map[string]int64)}
		if err := fn(tx); err != nil {
			return err
		}
		if tx.err != nil {
			return tx.err
		}

		err := tx.commit()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func (tx *memTx) Get(path, id string) (Document, error) {
	// Staged writes are visible to later reads within the transaction.
	for i := len(tx.writes) - 1; i >= 0; i-- {
		w := tx.writes[i]
		if w.path == path && w.id == id {
			if w.data == nil {
				return Document{}, ErrNotFound
			}
			return Document{ID: id, Data: copyValue(w.data).(map[string]interface{})}, nil
		}
	}

	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	d, ok := tx.store.get(path, id)
	key := docKey(path, id)
	if !ok {
		tx.reads[key] = 0
		return Document{}, ErrNotFound
	}
	tx.reads[key] = d.version
	return Document{ID: id, Data: copyValue(d.data).(map[string]interface{})}, nil
}

func (tx *memTx) Set(path, id string, data map[string]interface{}) {
	tx.writes = append(tx.writes, memWrite{path: path, id: id, data: copyValue(data).(map[string]interface{})})
}

func (tx *memTx) Update(path, id string, fields map[string]interface{}) {
	doc, err := tx.Get(path, id)
	if err != nil {
		tx.err = ErrNotFound
		return
	}
	for k, v := range fields {
		doc.Data[k] = copyValue(v)
	}
	tx.writes = append(tx.writes, memWrite{path: path, id: id, data: doc.Data})
}

func (tx *memTx) Delete(path, id string) {
	tx.writes = append(tx.writes, memWrite{path: path, id: id})
}

func (tx *memTx) commit() error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	for key, version := range tx.reads {
		parts := strings.SplitN(key, "\x00", 2)
		d, ok := tx.store.get(parts[0], parts[1])
		if !ok {
			if version != 0 {
				return ErrTxConflict
			}
			continue
		}
		if d.version != version {
			return ErrTxConflict
		}
	}

	for _, w := range tx.writes {
		if w.data == nil {
			tx.store.delete(w.path, w.id)
		} else {
			tx.store.put(w.path, w.id, w.data)
		}
	}
	return nil
}
