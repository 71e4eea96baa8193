// Package oracle provides a plain in-memory ordered map used as a
// shadow reference when testing betree.Betree: the same sequence of
// inserts/updates/deletes is applied to both, and results are compared.
// A sorted slice is the right tool here -- this is a test harness, not
// a production index, and the reference test CLI's key spaces are small
// enough that no pack example reaches for a third-party ordered-map
// library for this role.
package oracle

import "sort"

type entry[K any, V any] struct {
	key K
	val V
}

// Map is a sorted-slice ordered map over K -> V, with an UPDATE
// combiner matching betree.Betree's semantics.
type Map[K any, V any] struct {
	less    func(a, b K) bool
	combine func(a, b V) V
	zero    V
	entries []entry[K, V]
}

// New constructs an empty oracle map using less for key order and
// combine/zero for UPDATE folding, mirroring the tree under test.
func New[K any, V any](less func(a, b K) bool, combine func(a, b V) V, zero V) *Map[K, V] {
	return &Map[K, V]{less: less, combine: combine, zero: zero}
}

func (m *Map[K, V]) search(k K) int {
	return sort.Search(len(m.entries), func(i int) bool {
		return !m.less(m.entries[i].key, k)
	})
}

func (m *Map[K, V]) find(k K) (int, bool) {
	i := m.search(k)
	if i < len(m.entries) && !m.less(k, m.entries[i].key) {
		return i, true
	}
	return i, false
}

// Insert stores k -> v, replacing any prior value.
func (m *Map[K, V]) Insert(k K, v V) {
	i, found := m.find(k)
	if found {
		m.entries[i].val = v
		return
	}
	m.entries = append(m.entries, entry[K, V]{})
	copy(m.entries[i+1:], m.entries[i:])
	m.entries[i] = entry[K, V]{key: k, val: v}
}

// Update folds v into the existing value at k via the combiner, using
// zero as the base if k is missing.
func (m *Map[K, V]) Update(k K, v V) {
	i, found := m.find(k)
	if found {
		m.entries[i].val = m.combine(m.entries[i].val, v)
		return
	}
	m.entries = append(m.entries, entry[K, V]{})
	copy(m.entries[i+1:], m.entries[i:])
	m.entries[i] = entry[K, V]{key: k, val: m.combine(m.zero, v)}
}

// Erase removes k, if present.
func (m *Map[K, V]) Erase(k K) {
	i, found := m.find(k)
	if !found {
		return
	}
	m.entries = append(m.entries[:i], m.entries[i+1:]...)
}

// Query returns k's value and whether it is present.
func (m *Map[K, V]) Query(k K) (V, bool) {
	i, found := m.find(k)
	if !found {
		var zero V
		return zero, false
	}
	return m.entries[i].val, true
}

// Len returns the number of live entries.
func (m *Map[K, V]) Len() int { return len(m.entries) }

// Range calls fn for every entry with key >= lo (if lo is non-nil) in
// ascending order, stopping early if fn returns false. A nil lo starts
// from the smallest key.
func (m *Map[K, V]) Range(lo *K, fn func(k K, v V) bool) {
	start := 0
	if lo != nil {
		start = m.search(*lo)
	}
	for i := start; i < len(m.entries); i++ {
		if !fn(m.entries[i].key, m.entries[i].val) {
			return
		}
	}
}

// RangeAfter calls fn for every entry with key > after, in ascending
// order, stopping early if fn returns false.
func (m *Map[K, V]) RangeAfter(after K, fn func(k K, v V) bool) {
	i, found := m.find(after)
	if found {
		i++
	}
	for ; i < len(m.entries); i++ {
		if !fn(m.entries[i].key, m.entries[i].val) {
			return
		}
	}
}
