package checker

// ICount is the dual-representation inode reference-count map: a dense
// bitmap for the overwhelmingly common count=1 case, plus an ordered map
// for counts ≥ 2, transitioning between the two automatically (§3, §9 of
// SPEC_FULL.md, grounded on the reference tool's icount.c).
type ICount struct {
	single   *SparseBitmap
	multiple *OrderedMap[uint16]
}

func NewICount(label string) *ICount {
	return &ICount{
		single:   NewSparseBitmap(label + "-single"),
		multiple: NewOrderedMap[uint16](),
	}
}

// Get returns the current count for key, or 0 if never set.
func (ic *ICount) Get(key uint64) uint16 {
	if v, ok := ic.multiple.Get(key); ok {
		return v
	}
	if ic.single.Test(key) {
		return 1
	}
	return 0
}

// Set applies the transition rules from SPEC_FULL.md §3: 0→1 sets the
// bitmap bit and removes any tree entry; 1→≥2 clears the bit and inserts a
// tree entry; ≥2→≥2 updates in place; ≥2→<2 removes the tree entry.
func (ic *ICount) Set(key uint64, count uint16) {
	if count == 1 {
		ic.single.Set(key)
	} else {
		ic.single.Clear(key)
	}

	if count < 2 {
		ic.multiple.Delete(key)
		return
	}
	ic.multiple.Set(key, count)
}

// Delta adjusts the current count by delta (may be negative) and applies
// the result via Set, the operation Pass 2 uses to add dirent references.
func (ic *ICount) Delta(key uint64, delta int) uint16 {
	cur := int(ic.Get(key))
	next := cur + delta
	if next < 0 {
		next = 0
	}
	ic.Set(key, uint16(next))
	return uint16(next)
}

// Each visits every key with a non-zero count, in ascending key order for
// the multiple-count entries followed by the single-count entries in
// ascending order (the two representations are disjoint by construction).
func (ic *ICount) Each(fn func(key uint64, count uint16)) {
	ic.multiple.Ascend(func(key uint64, count uint16) bool {
		fn(key, count)
		return true
	})
	ic.single.Each(func(key uint64) {
		if _, ok := ic.multiple.Get(key); ok {
			return
		}
		fn(key, 1)
	})
}
