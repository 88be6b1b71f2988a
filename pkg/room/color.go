package room

import "sync"

// palette is the fixed 8-entry cursor-color set cycled per hub instance
// (spec §4.6, §9 "Module-level color index" redesign flag: this used to be
// a global counter leaking across rooms; it now lives on each Hub).
var palette = [8]string{
	"#e06c75", "#98c379", "#e5c07b", "#61afef",
	"#c678dd", "#56b6c2", "#d19a66", "#abb2bf",
}

// ColorAllocator assigns a stable color to each participant for the
// lifetime of their presence entry in one room. It is owned by a single
// Hub instance, so allocation never leaks across rooms. It carries its own
// lock because the hub's read-only GetUsers path (called from an HTTP
// handler goroutine) and the hub's run loop both call Assign.
type ColorAllocator struct {
	mu       sync.Mutex
	next     int
	assigned map[string]string // userID -> color
}

// NewColorAllocator creates an allocator scoped to one hub/room instance.
func NewColorAllocator() *ColorAllocator {
	return &ColorAllocator{assigned: make(map[string]string)}
}

// Assign returns the color for userID, allocating the next palette entry
// (cycling) the first time it's seen.
func (a *ColorAllocator) Assign(userID string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.assigned[userID]; ok {
		return c
	}
	c := palette[a.next%len(palette)]
	a.next++
	a.assigned[userID] = c
	return c
}

// Release frees a participant's color assignment so a later reconnect gets
// a fresh cycle position rather than accumulating stale entries forever.
func (a *ColorAllocator) Release(userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.assigned, userID)
}
