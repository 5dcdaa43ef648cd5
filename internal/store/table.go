package store

import "sort"

// table is an insertion-ordered row arena with secondary indexes on string keys.
type table[T any] struct {
	rows    map[string]row[T]
	indexes []*secondaryIndex[T]
	seq     uint64
}

type row[T any] struct {
	seq uint64
	v   T
}

type secondaryIndex[T any] struct {
	key func(T) string
	ids map[string]map[string]struct{}
}

func newTable[T any](keys ...func(T) string) *table[T] {
	t := &table[T]{rows: make(map[string]row[T])}
	for _, k := range keys {
		t.indexes = append(t.indexes, &secondaryIndex[T]{key: k, ids: make(map[string]map[string]struct{})})
	}
	return t
}

func (t *table[T]) get(id string) (T, bool) {
	r, ok := t.rows[id]
	return r.v, ok
}

// put inserts or replaces a row, keeping the original insertion position on replace.
func (t *table[T]) put(id string, v T) (prev row[T], existed bool) {
	prev, existed = t.rows[id]
	seq := prev.seq
	if existed {
		t.unindex(id, prev.v)
	} else {
		t.seq++
		seq = t.seq
	}
	t.rows[id] = row[T]{seq: seq, v: v}
	t.index(id, v)
	return prev, existed
}

func (t *table[T]) del(id string) (prev row[T], existed bool) {
	prev, existed = t.rows[id]
	if !existed {
		return prev, false
	}
	t.unindex(id, prev.v)
	delete(t.rows, id)
	return prev, true
}

// restore puts back the state captured by a previous put or del.
func (t *table[T]) restore(id string, prev row[T], existed bool) {
	if cur, ok := t.rows[id]; ok {
		t.unindex(id, cur.v)
		delete(t.rows, id)
	}
	if existed {
		t.rows[id] = prev
		t.index(id, prev.v)
	}
}

func (t *table[T]) index(id string, v T) {
	for _, ix := range t.indexes {
		k := ix.key(v)
		if k == "" {
			continue
		}
		set, ok := ix.ids[k]
		if !ok {
			set = make(map[string]struct{})
			ix.ids[k] = set
		}
		set[id] = struct{}{}
	}
}

func (t *table[T]) unindex(id string, v T) {
	for _, ix := range t.indexes {
		k := ix.key(v)
		if set, ok := ix.ids[k]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(ix.ids, k)
			}
		}
	}
}

// lookup returns the rows whose n-th index key equals key.
func (t *table[T]) lookup(n int, key string) []T {
	set := t.indexes[n].ids[key]
	rs := make([]row[T], 0, len(set))
	for id := range set {
		rs = append(rs, t.rows[id])
	}
	return sorted(rs)
}

func (t *table[T]) all() []T {
	rs := make([]row[T], 0, len(t.rows))
	for _, r := range t.rows {
		rs = append(rs, r)
	}
	return sorted(rs)
}

func sorted[T any](rs []row[T]) []T {
	sort.Slice(rs, func(i, j int) bool { return rs[i].seq < rs[j].seq })
	out := make([]T, len(rs))
	for i := range rs {
		out[i] = rs[i].v
	}
	return out
}
