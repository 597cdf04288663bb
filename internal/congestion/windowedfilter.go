package congestion

import "golang.org/x/exp/slices"

// entry is one sample held by a WindowedFilter.
type entry[V any] struct {
	value V
	time  int64 // microseconds
}

// WindowedFilter is the bounded min/max-in-window deque from spec.md §4.4,
// used by BBR for its bandwidth and max-ack-height filters. less(a, b)
// should return true when a is "worse" than b for the extremum being
// tracked (e.g. a < b for a max filter), matching the eviction rule
// "drop entries from the back while entry.value < v" for max filters.
type WindowedFilter[V any] struct {
	window int64 // microseconds
	worse  func(a, b V) bool
	deque  []entry[V]
}

// NewWindowedMax creates a filter that tracks the maximum value observed
// within the trailing window duration (in microseconds).
func NewWindowedMax[V any](window int64, less func(a, b V) bool) *WindowedFilter[V] {
	return &WindowedFilter[V]{window: window, worse: less}
}

// NewWindowedMin creates a filter that tracks the minimum value observed
// within the trailing window duration (in microseconds).
func NewWindowedMin[V any](window int64, greater func(a, b V) bool) *WindowedFilter[V] {
	return &WindowedFilter[V]{window: window, worse: greater}
}

// Update pushes a new (value, time) sample, first evicting entries that
// are no longer the extremum and entries that have aged out of the
// window.
func (f *WindowedFilter[V]) Update(v V, t int64) {
	for len(f.deque) > 0 && f.worse(f.deque[len(f.deque)-1].value, v) {
		f.deque = f.deque[:len(f.deque)-1]
	}
	f.deque = append(f.deque, entry[V]{value: v, time: t})
	f.expire(t)
}

func (f *WindowedFilter[V]) expire(now int64) {
	cut := 0
	for cut < len(f.deque) && f.deque[cut].time+f.window < now {
		cut++
	}
	if cut > 0 {
		f.deque = slices.Delete(f.deque, 0, cut)
	}
}

// Get returns the current extremum and true, or the zero value and false
// if no sample has ever been pushed.
func (f *WindowedFilter[V]) Get() (V, bool) {
	if len(f.deque) == 0 {
		var zero V
		return zero, false
	}
	return f.deque[0].value, true
}

// Reset clears all samples.
func (f *WindowedFilter[V]) Reset() { f.deque = nil }

// SetWindow changes the window length.
func (f *WindowedFilter[V]) SetWindow(window int64) { f.window = window }
