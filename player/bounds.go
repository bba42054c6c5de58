package player

import (
	"errors"
	"sync"
)

var ErrInvertedRange = errors.New("bounds: min is greater than max")

// Bounds is the union of the recording time ranges reported by all sources.
// It has its own lock so bound reports never contend with ticking.
type Bounds struct {
	mu       sync.Mutex
	min, max int64
	set      bool
}

// Report widens the range to include [min, max] and returns the result.
func (b *Bounds) Report(min, max int64) (int64, int64, error) {
	if min > max {
		return 0, 0, ErrInvertedRange
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.set {
		b.min, b.max, b.set = min, max, true
		return b.min, b.max, nil
	}
	if min < b.min {
		b.min = min
	}
	if max > b.max {
		b.max = max
	}
	return b.min, b.max, nil
}

// Range returns the current bounds; ok is false until a source reports.
func (b *Bounds) Range() (min, max int64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.min, b.max, b.set
}

// Contains reports whether t lies within the bounds, inclusive.
func (b *Bounds) Contains(t int64) bool {
	min, max, ok := b.Range()
	return ok && min <= t && t <= max
}
