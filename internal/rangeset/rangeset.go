// Package rangeset implements the Range Tracker (spec.md §4.1): a bounded,
// ordered set of disjoint sub-ranges over uint64 values, backed by a
// fixed-capacity arena so insertion can never fail with an allocation
// error — when full, the lowest sub-range is silently evicted. Used by
// ACK tracking (internal/ackhandler) and stream reassembly
// (internal/recvbuffer).
package rangeset

import "golang.org/x/exp/slices"

// SubRange is one contiguous run of values [Low, Low+Count).
type SubRange struct {
	Low   uint64
	Count uint64
}

// High is the exclusive upper bound of the sub-range.
func (r SubRange) High() uint64 { return r.Low + r.Count }

// Tracker is a fixed-capacity, sorted set of disjoint sub-ranges with a
// gap of at least 1 between neighbors (adjacent or overlapping ranges are
// merged on insert).
type Tracker struct {
	ranges   []SubRange
	capacity int
}

// DefaultACKCapacity is the default arena size for ACK tracking.
const DefaultACKCapacity = 16

// New creates a Tracker with room for capacity sub-ranges.
func New(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = DefaultACKCapacity
	}
	return &Tracker{capacity: capacity}
}

// Size returns the number of disjoint sub-ranges currently tracked.
func (t *Tracker) Size() int { return len(t.ranges) }

// Capacity returns the arena size the tracker was constructed with.
func (t *Tracker) Capacity() int { return t.capacity }

// GetMin returns the lowest tracked value; ok is false iff Size() == 0.
func (t *Tracker) GetMin() (low uint64, ok bool) {
	if len(t.ranges) == 0 {
		return 0, false
	}
	return t.ranges[0].Low, true
}

// GetMax returns the highest tracked value; ok is false iff Size() == 0.
func (t *Tracker) GetMax() (high uint64, ok bool) {
	if len(t.ranges) == 0 {
		return 0, false
	}
	last := t.ranges[len(t.ranges)-1]
	return last.High() - 1, true
}

// searchIndex returns the index of the first sub-range whose Low is >=
// newLow, i.e. the position a new range starting at newLow would be
// inserted at were there no merging.
func (t *Tracker) searchIndex(newLow uint64) int {
	i := slices.IndexFunc(t.ranges, func(r SubRange) bool { return r.Low >= newLow })
	if i < 0 {
		return len(t.ranges)
	}
	return i
}

// Search returns a non-negative find index pointing at a sub-range
// overlapping [low, high), or a negative encoded insert index when no
// sub-range overlaps — following the sort.Search/binary-search convention
// of -(insertIndex)-1, so callers recover the insertion point via
// -(result)-1.
func (t *Tracker) Search(low, high uint64) int {
	for i, r := range t.ranges {
		if low < r.High() && r.Low < high {
			return i
		}
		if r.Low >= high {
			return -(i) - 1
		}
	}
	return -len(t.ranges) - 1
}

// AddValue is equivalent to AddRange(v, 1).
func (t *Tracker) AddValue(v uint64) bool {
	ok, _ := t.AddRange(v, 1)
	return ok
}

// AddRange inserts [low, low+count) into the tracker, merging with
// adjacent or overlapping sub-ranges. ok is false only for an invalid
// argument (count == 0); eviction of the lowest sub-range when the arena
// is full is silent and never makes ok false. updated reports whether the
// tracker's contents actually changed.
func (t *Tracker) AddRange(low, count uint64) (ok bool, updated bool) {
	if count == 0 {
		return false, false
	}
	newLow, newHigh := low, low+count

	idx := t.searchIndex(newLow)

	// Does the previous sub-range touch or overlap the new one?
	if idx > 0 {
		prev := t.ranges[idx-1]
		if prev.High() >= newLow {
			idx--
			newLow = prev.Low
			if prev.High() > newHigh {
				newHigh = prev.High()
			}
		}
	}

	// Absorb every following sub-range that the (possibly extended) new
	// range now touches or overlaps.
	end := idx
	for end < len(t.ranges) && t.ranges[end].Low <= newHigh {
		if t.ranges[end].High() > newHigh {
			newHigh = t.ranges[end].High()
		}
		end++
	}

	merged := SubRange{Low: newLow, Count: newHigh - newLow}

	if end > idx && merged == t.ranges[idx] && end == idx+1 {
		// Nothing changed: identical single range already present.
		return true, false
	}

	tail := append([]SubRange{}, t.ranges[end:]...)
	t.ranges = append(t.ranges[:idx], append([]SubRange{merged}, tail...)...)

	if len(t.ranges) > t.capacity {
		// Evict the lowest sub-range (oldest low value).
		t.ranges = t.ranges[1:]
	}
	return true, true
}

// RemoveRange removes [low, low+count) from the tracker. It returns true
// iff that entire span was fully present beforehand; otherwise it returns
// false and leaves the tracker unchanged.
func (t *Tracker) RemoveRange(low, count uint64) bool {
	if count == 0 {
		return false
	}
	removeLow, removeHigh := low, low+count

	idx := slices.IndexFunc(t.ranges, func(r SubRange) bool {
		return r.Low <= removeLow && removeLow < r.High()
	})
	if idx < 0 {
		return false
	}
	r := t.ranges[idx]
	if r.High() < removeHigh {
		// The request spans into territory this sub-range doesn't cover.
		return false
	}

	var replacement []SubRange
	if r.Low < removeLow && r.High() > removeHigh {
		// Split into front and back remainders.
		replacement = []SubRange{
			{Low: r.Low, Count: removeLow - r.Low},
			{Low: removeHigh, Count: r.High() - removeHigh},
		}
	} else if r.Low < removeLow {
		// Truncate the back off.
		replacement = []SubRange{{Low: r.Low, Count: removeLow - r.Low}}
	} else if r.High() > removeHigh {
		// Truncate the front off.
		replacement = []SubRange{{Low: removeHigh, Count: r.High() - removeHigh}}
	} else {
		// Exact match: the whole sub-range disappears.
		replacement = nil
	}

	next := make([]SubRange, 0, len(t.ranges)-1+len(replacement))
	next = append(next, t.ranges[:idx]...)
	next = append(next, replacement...)
	next = append(next, t.ranges[idx+1:]...)
	t.ranges = next
	return true
}

// Contains reports whether v falls inside any tracked sub-range.
func (t *Tracker) Contains(v uint64) bool {
	idx := slices.IndexFunc(t.ranges, func(r SubRange) bool { return r.Low <= v && v < r.High() })
	return idx >= 0
}

// ContainsRange reports whether [low, low+count) is fully covered by a
// single tracked sub-range.
func (t *Tracker) ContainsRange(low, count uint64) bool {
	if count == 0 {
		return false
	}
	high := low + count
	for _, r := range t.ranges {
		if r.Low <= low && high <= r.High() {
			return true
		}
		if r.Low > low {
			break
		}
	}
	return false
}

// Ranges returns a copy of the tracked sub-ranges in ascending order.
func (t *Tracker) Ranges() []SubRange {
	return append([]SubRange{}, t.ranges...)
}

// Reset empties the tracker.
func (t *Tracker) Reset() { t.ranges = nil }
