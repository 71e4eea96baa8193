package oracle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestMap() *Map[int, string] {
	return New[int, string](func(a, b int) bool { return a < b }, func(a, b string) string { return a + b }, "")
}

func TestInsertThenQuery(t *testing.T) {
	m := newTestMap()
	m.Insert(1, "a")
	v, ok := m.Query(1)
	require.True(t, ok)
	require.Equal(t, "a", v)
}

func TestUpdateFoldsAgainstMissingKey(t *testing.T) {
	m := newTestMap()
	m.Update(1, "x")
	m.Update(1, "y")
	v, ok := m.Query(1)
	require.True(t, ok)
	require.Equal(t, "xy", v)
}

func TestInsertThenUpdateFolds(t *testing.T) {
	m := newTestMap()
	m.Insert(1, "A")
	m.Update(1, "B")
	v, ok := m.Query(1)
	require.True(t, ok)
	require.Equal(t, "AB", v)
}

func TestEraseRemovesKey(t *testing.T) {
	m := newTestMap()
	m.Insert(1, "a")
	m.Erase(1)
	_, ok := m.Query(1)
	require.False(t, ok)
}

func TestQueryMissingKey(t *testing.T) {
	m := newTestMap()
	_, ok := m.Query(99)
	require.False(t, ok)
}

func TestRangeAscendingFromLowerBound(t *testing.T) {
	m := newTestMap()
	for _, k := range []int{5, 1, 3, 9, 7} {
		m.Insert(k, "v")
	}

	var got []int
	lo := 3
	m.Range(&lo, func(k int, v string) bool {
		got = append(got, k)
		return true
	})
	require.Equal(t, []int{3, 5, 7, 9}, got)
}

func TestRangeFromStartWhenLoIsNil(t *testing.T) {
	m := newTestMap()
	for _, k := range []int{2, 1, 3} {
		m.Insert(k, "v")
	}
	var got []int
	m.Range(nil, func(k int, v string) bool {
		got = append(got, k)
		return true
	})
	require.Equal(t, []int{1, 2, 3}, got)
}

func TestRangeAfterIsStrictlyGreater(t *testing.T) {
	m := newTestMap()
	for _, k := range []int{1, 3, 5} {
		m.Insert(k, "v")
	}
	var got []int
	m.RangeAfter(3, func(k int, v string) bool {
		got = append(got, k)
		return true
	})
	require.Equal(t, []int{5}, got)
}

func TestRangeStopsEarlyWhenFnReturnsFalse(t *testing.T) {
	m := newTestMap()
	for _, k := range []int{1, 2, 3, 4} {
		m.Insert(k, "v")
	}
	var got []int
	m.Range(nil, func(k int, v string) bool {
		got = append(got, k)
		return k < 2
	})
	require.Equal(t, []int{1, 2}, got)
}

func TestLenTracksLiveEntries(t *testing.T) {
	m := newTestMap()
	require.Equal(t, 0, m.Len())
	m.Insert(1, "a")
	m.Insert(2, "b")
	require.Equal(t, 2, m.Len())
	m.Erase(1)
	require.Equal(t, 1, m.Len())
}
