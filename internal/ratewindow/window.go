package ratewindow

import (
	"sort"
	"time"
)

// window keeps hit timestamps for one key in ascending order.
type window struct {
	span time.Duration
	hits []time.Time
}

// add inserts at and returns the number of hits in (at-span, at].
func (w *window) add(at time.Time, span time.Duration) int {
	w.span = span

	idx := sort.Search(len(w.hits), func(i int) bool { return w.hits[i].After(at) })
	w.hits = append(w.hits, time.Time{})
	copy(w.hits[idx+1:], w.hits[idx:])
	w.hits[idx] = at

	// count before pruning against the newest hit so a late event still
	// sees itself
	n := w.count(at)
	w.prune(w.hits[len(w.hits)-1])
	return n
}

func (w *window) count(at time.Time) int {
	cutoff := at.Add(-w.span)
	lo := sort.Search(len(w.hits), func(i int) bool { return w.hits[i].After(cutoff) })
	hi := sort.Search(len(w.hits), func(i int) bool { return w.hits[i].After(at) })
	return hi - lo
}

func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	idx := sort.Search(len(w.hits), func(i int) bool { return w.hits[i].After(cutoff) })
	if idx == 0 {
		return
	}
	w.hits = append(w.hits[:0], w.hits[idx:]...)
}

func (w *window) empty() bool {
	return len(w.hits) == 0
}
