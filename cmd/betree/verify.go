package main

import (
	"fmt"

	"betreestore/internal/oracle"
)

// verifyScan walks t's whole entry stream and oc's in lockstep, failing
// on the first point of disagreement -- the reference/oracle
// equivalence property, exercised over a full scan.
func verifyScan(t *betreeHandle, oc *oracle.Map[uint64, string], lo *uint64) error {
	it := t.Begin()
	if lo != nil {
		it = t.LowerBound(*lo)
	}
	var mismatch error
	oc.Range(lo, func(k uint64, v string) bool {
		if !it.Next() {
			mismatch = fmt.Errorf("tree exhausted before oracle at key %d", k)
			return false
		}
		if it.Key() != k || it.Value() != v {
			mismatch = fmt.Errorf("tree entry (%d, %q) != oracle entry (%d, %q)", it.Key(), it.Value(), k, v)
			return false
		}
		return true
	})
	if mismatch != nil {
		return mismatch
	}
	if it.Next() {
		return fmt.Errorf("tree has extra entry (%d, %q) beyond oracle", it.Key(), it.Value())
	}
	return it.Err()
}

func verifyLowerBound(t *betreeHandle, oc *oracle.Map[uint64, string], k uint64) error {
	return verifyScan(t, oc, &k)
}

// verifyUpperBound walks t.UpperBound(k) against oc.RangeAfter(k, ...),
// the strictly-greater-than counterpart to verifyScan/verifyLowerBound.
func verifyUpperBound(t *betreeHandle, oc *oracle.Map[uint64, string], k uint64) error {
	it := t.UpperBound(k)
	var mismatch error
	oc.RangeAfter(k, func(ek uint64, v string) bool {
		if !it.Next() {
			mismatch = fmt.Errorf("tree exhausted before oracle at key %d", ek)
			return false
		}
		if it.Key() != ek || it.Value() != v {
			mismatch = fmt.Errorf("tree entry (%d, %q) != oracle entry (%d, %q)", it.Key(), it.Value(), ek, v)
			return false
		}
		return true
	})
	if mismatch != nil {
		return mismatch
	}
	if it.Next() {
		return fmt.Errorf("tree has extra entry (%d, %q) beyond oracle", it.Key(), it.Value())
	}
	return it.Err()
}
