// Implements the EventQueue, the pending-event set of one run.

package sim

import "container/heap"

// EventQueue implements heap.Interface and orders events by (timestamp, seq).
// seq is assigned at insertion and strictly increases within a run, so events scheduled
// for the same instant are dispatched in insertion order and ordering never depends on
// heap internals.
// See canonical Golang example here: https://pkg.go.dev/container/heap#example-package-IntHeap
type EventQueue struct {
	events  []Event
	nextSeq uint64
}

// NewEventQueue creates an empty queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{events: make([]Event, 0)}
}

func (eq *EventQueue) Len() int { return len(eq.events) }

func (eq *EventQueue) Less(i, j int) bool {
	ei, ej := eq.events[i], eq.events[j]
	if ei.Timestamp() != ej.Timestamp() {
		return ei.Timestamp() < ej.Timestamp()
	}
	return ei.Seq() < ej.Seq()
}

func (eq *EventQueue) Swap(i, j int) { eq.events[i], eq.events[j] = eq.events[j], eq.events[i] }

// Push implements heap.Interface. Use Insert.
func (eq *EventQueue) Push(x any) {
	eq.events = append(eq.events, x.(Event))
}

// Pop implements heap.Interface. Use PopNext.
func (eq *EventQueue) Pop() any {
	old := eq.events
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	eq.events = old[0 : n-1]
	return item
}

// Insert stamps ev with time t and the next sequence number and adds it.
func (eq *EventQueue) Insert(ev Event, t int64) {
	eq.nextSeq++
	ev.stamp(t, eq.nextSeq)
	heap.Push(eq, ev)
}

// PopNext removes and returns the minimum event, or nil when empty.
func (eq *EventQueue) PopNext() Event {
	if len(eq.events) == 0 {
		return nil
	}
	return heap.Pop(eq).(Event)
}

// Peek returns the minimum event without removing it, or nil when empty.
func (eq *EventQueue) Peek() Event {
	if len(eq.events) == 0 {
		return nil
	}
	return eq.events[0]
}

// Discard drops every pending event and returns how many there were.
func (eq *EventQueue) Discard() int {
	n := len(eq.events)
	clear(eq.events)
	eq.events = eq.events[:0]
	return n
}
