package risk

import "sort"

// SlidingWindow counts events in the half-open interval (now-width, now].
// Times must be added in non-decreasing order.
type SlidingWindow struct {
	width int64
	times []int64
}

// NewSlidingWindow creates a window of the given width in ns. A width <= 0 counts nothing.
func NewSlidingWindow(width int64) *SlidingWindow {
	return &SlidingWindow{width: width}
}

// Add records an event at t and forgets events that can no longer be counted.
func (w *SlidingWindow) Add(t int64) {
	if w.width <= 0 {
		return
	}
	w.times = append(w.times, t)
	w.times = w.times[w.first(t):]
}

// Count returns the number of recorded events in (now-width, now]. Does not mutate.
func (w *SlidingWindow) Count(now int64) int {
	if w.width <= 0 {
		return 0
	}
	hi := sort.Search(len(w.times), func(i int) bool { return w.times[i] > now })
	return hi - w.first(now)
}

func (w *SlidingWindow) first(now int64) int {
	return sort.Search(len(w.times), func(i int) bool { return w.times[i] > now-w.width })
}
