package conversation

import "sync"

// IDAllocator hands out monotonically increasing identifiers.
// Each Conversation (and the session history) owns one, so tests can
// start sequences wherever they like.
type IDAllocator struct {
	mu   sync.Mutex
	next int64
}

// NewIDAllocator returns an allocator whose first Next() is start.
func NewIDAllocator(start int64) *IDAllocator {
	return &IDAllocator{next: start}
}

// Next returns the next identifier.
func (a *IDAllocator) Next() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.next
	a.next++
	return id
}

// Peek returns the identifier the next call to Next would return.
func (a *IDAllocator) Peek() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next
}

// Reset restarts the sequence at start.
func (a *IDAllocator) Reset(start int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next = start
}

// Advance moves the sequence forward so that Next returns a value greater
// than seen. It never moves backwards.
func (a *IDAllocator) Advance(seen int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if seen >= a.next {
		a.next = seen + 1
	}
}
