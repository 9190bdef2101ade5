package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// nowFunc is overridable by tests that need to control the clock driving
// lastModified, mirroring how the age-threshold sweepers are exercised.
var nowFunc = func() time.Time { return time.Now() }

// MemStore is an in-process Store used by the bankcore test suite. It
// reproduces the two properties the core's idempotence proofs depend on:
// each Update/UpdateMany is atomic with respect to other callers in this
// process, and the returned matched count is 0 when the filter held no
// document and 1 (or more, for UpdateMany) otherwise. It round-trips
// documents through bson to mimic Mongo's encode/decode boundary, including
// its normalization of integer widths.
type MemStore struct {
	mu   sync.Mutex
	docs map[string][]bson.M
}

func NewMemStore() *MemStore {
	return &MemStore{docs: make(map[string][]bson.M)}
}

func toDoc(v interface{}) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeInto(doc bson.M, out interface{}) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, out)
}

func matches(doc bson.M, filter bson.M) bool {
	for field, want := range filter {
		if sub, ok := want.(bson.M); ok {
			if !matchOps(doc[field], sub) {
				return false
			}
			continue
		}
		if !containsOrEquals(doc[field], want) {
			return false
		}
	}
	return true
}

func matchOps(got interface{}, ops bson.M) bool {
	for op, v := range ops {
		switch op {
		case "$ne":
			if containsOrEquals(got, v) {
				return false
			}
		case "$lt":
			if !lessThan(got, v) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// containsOrEquals reports whether got equals v, or (when got is an array,
// as pendingTransactions is) whether v is a member of it -- matching Mongo's
// implicit array-membership semantics for equality and $ne filters.
func containsOrEquals(got, v interface{}) bool {
	if arr, ok := got.(bson.A); ok {
		for _, item := range arr {
			if equalValue(item, v) {
				return true
			}
		}
		return false
	}
	return equalValue(got, v)
}

func equalValue(a, b interface{}) bool {
	return toComparable(a) == toComparable(b)
}

// toComparable normalizes numeric types so that, e.g., an int filter value
// compares equal to an int32 stored field the way Mongo's numeric comparison
// does.
func toComparable(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return n
	default:
		return v
	}
}

func lessThan(got, v interface{}) bool {
	a, aok := toFloat(got)
	b, bok := toFloat(v)
	if aok && bok {
		return a < b
	}
	// lastModified round-trips through bson as primitive.DateTime but is
	// written fresh as a plain time.Time by $currentDate; accept either.
	at, aok2 := toUnixNano(got)
	bt, bok2 := toUnixNano(v)
	if aok2 && bok2 {
		return at < bt
	}
	return false
}

func toUnixNano(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UnixNano(), true
	case primitive.DateTime:
		return int64(t) * int64(time.Millisecond), true
	default:
		return 0, false
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func (s *MemStore) Insert(ctx context.Context, collection string, v interface{}) error {
	doc, err := toDoc(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[collection] = append(s.docs[collection], doc)
	return nil
}

func (s *MemStore) FindOne(ctx context.Context, collection string, filter Predicate, out interface{}) (bool, error) {
	f := ToBSON(filter)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range s.docs[collection] {
		if matches(doc, f) {
			return true, decodeInto(doc, out)
		}
	}
	return false, nil
}

type memCursor struct {
	docs []bson.M
	pos  int
	cur  bson.M
}

func (c *memCursor) Next(ctx context.Context) bool {
	if c.pos >= len(c.docs) {
		return false
	}
	c.cur = c.docs[c.pos]
	c.pos++
	return true
}

func (c *memCursor) Decode(out interface{}) error { return decodeInto(c.cur, out) }
func (c *memCursor) Err() error                    { return nil }
func (c *memCursor) Close(ctx context.Context) error { return nil }

func (s *MemStore) Find(ctx context.Context, collection string, filter Predicate, opts FindOptions) (Cursor, error) {
	f := ToBSON(filter)
	s.mu.Lock()
	var matched []bson.M
	for _, doc := range s.docs[collection] {
		if matches(doc, f) {
			matched = append(matched, cloneDoc(doc))
		}
	}
	s.mu.Unlock()

	if opts.SortField != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			vi, vj := matched[i][opts.SortField], matched[j][opts.SortField]
			fi, _ := toFloat(vi)
			fj, _ := toFloat(vj)
			if opts.SortDir == Descending {
				return fi > fj
			}
			return fi < fj
		})
	}
	if opts.Limit > 0 && int64(len(matched)) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return &memCursor{docs: matched}, nil
}

func cloneDoc(doc bson.M) bson.M {
	out := bson.M{}
	raw, _ := bson.Marshal(doc)
	_ = bson.Unmarshal(raw, &out)
	return out
}

func (s *MemStore) Update(ctx context.Context, collection string, filter Predicate, mutation Mutations) (int64, error) {
	f := ToBSON(filter)
	update := mutation.update()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, doc := range s.docs[collection] {
		if matches(doc, f) {
			s.docs[collection][i] = applyUpdate(doc, update)
			return 1, nil
		}
	}
	return 0, nil
}

func (s *MemStore) UpdateMany(ctx context.Context, collection string, filter Predicate, mutation Mutations) (int64, error) {
	f := ToBSON(filter)
	update := mutation.update()
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i, doc := range s.docs[collection] {
		if matches(doc, f) {
			s.docs[collection][i] = applyUpdate(doc, update)
			n++
		}
	}
	return n, nil
}

func applyUpdate(doc bson.M, update bson.M) bson.M {
	out := cloneDoc(doc)
	if inc, ok := update["$inc"].(bson.M); ok {
		for field, by := range inc {
			cur, _ := toFloat(out[field])
			delta, _ := toFloat(by)
			out[field] = int64(cur + delta)
		}
	}
	if push, ok := update["$push"].(bson.M); ok {
		for field, v := range push {
			arr, _ := out[field].(bson.A)
			out[field] = append(arr, v)
		}
	}
	if pull, ok := update["$pull"].(bson.M); ok {
		for field, v := range pull {
			arr, _ := out[field].(bson.A)
			var next bson.A
			for _, item := range arr {
				if !equalValue(item, v) {
					next = append(next, item)
				}
			}
			out[field] = next
		}
	}
	if set, ok := update["$set"].(bson.M); ok {
		for field, v := range set {
			out[field] = v
		}
	}
	if cd, ok := update["$currentDate"].(bson.M); ok {
		for field := range cd {
			out[field] = nowFunc()
		}
	}
	return out
}

func (s *MemStore) Delete(ctx context.Context, collection string, filter Predicate) error {
	f := ToBSON(filter)
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []bson.M
	for _, doc := range s.docs[collection] {
		if !matches(doc, f) {
			kept = append(kept, doc)
		}
	}
	s.docs[collection] = kept
	return nil
}

func (s *MemStore) DeleteAll(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, collection)
	return nil
}
