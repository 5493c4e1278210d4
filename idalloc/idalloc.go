// Package idalloc issues the numeric request identifiers the dispatcher
// stamps onto outgoing requests. Grounded on mb0-daql's hub.NextID atomic
// counter and gford1000-go-saferr's getIncrementer, combined into a
// mutex-guarded counter that wraps at the wire-safe integer bound and skips
// ids still outstanding.
package idalloc

import "sync"

// maxSafeInteger is the largest integer value that round-trips exactly
// through a float64, the numeric type JSON encodes msg_id as on the wire.
const maxSafeInteger = 1<<53 - 1

// Allocator issues ids unique among those currently outstanding.
type Allocator struct {
	mu        sync.Mutex
	next      uint64
	allocated map[uint64]struct{}
}

// New returns an empty Allocator.
func New() *Allocator {
	return &Allocator{allocated: make(map[uint64]struct{})}
}

// Allocate returns an id not currently outstanding and marks it allocated.
// It never blocks and, in this implementation, never fails; the error
// return is kept for forward compatibility with a future bounded allocator.
func (a *Allocator) Allocate() (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for {
		id := a.next
		if a.next == maxSafeInteger {
			a.next = 0
		} else {
			a.next++
		}

		if _, taken := a.allocated[id]; !taken {
			a.allocated[id] = struct{}{}
			return id, nil
		}
	}
}

// Release removes id from the allocated set. Idempotent.
func (a *Allocator) Release(id uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.allocated, id)
}

// IsAllocated reports whether id is currently outstanding.
func (a *Allocator) IsAllocated(id uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.allocated[id]
	return ok
}

// Outstanding returns the number of currently allocated ids.
func (a *Allocator) Outstanding() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.allocated)
}
