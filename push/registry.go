package push

import (
	"fmt"
	"sync"
)

// Registry hands out subscription ids per destination. It remembers only the
// last id issued; there is no notion of a live subscription set.
type Registry struct {
	mu       sync.Mutex
	counters map[string]int
}

func NewRegistry() *Registry {
	return &Registry{counters: make(map[string]int)}
}

// NextID increments the destination's counter and returns the new id.
func (r *Registry) NextID(destination string) string {
	r.mu.Lock()
	r.counters[destination]++
	n := r.counters[destination]
	r.mu.Unlock()
	return formatID(n)
}

// CurrentID returns the last id issued for destination, or "sub-0" when none
// was issued yet.
func (r *Registry) CurrentID(destination string) string {
	r.mu.Lock()
	n := r.counters[destination]
	r.mu.Unlock()
	return formatID(n)
}

func formatID(n int) string {
	return fmt.Sprintf("sub-%d", n)
}
