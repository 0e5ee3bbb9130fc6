package engine

import "sync"

// Subscription identifies a registered handler.
type Subscription struct {
	id    uint64
	Type  EventType
	Layer string
}

// Valid reports whether the subscription came from a registry.
func (s Subscription) Valid() bool { return s.id != 0 }

type entry struct {
	sub Subscription
	h   Handler
}

// Registry keeps handlers in registration order. Engines embed it to
// implement On and Off.
type Registry struct {
	mu      sync.Mutex
	next    uint64
	entries []entry
}

// Add registers h and returns its subscription.
func (r *Registry) Add(t EventType, layer string, h Handler) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	sub := Subscription{id: r.next, Type: t, Layer: layer}
	r.entries = append(r.entries, entry{sub: sub, h: h})
	return sub
}

// Remove drops the handler. It reports whether it was registered.
func (r *Registry) Remove(sub Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.sub.id == sub.id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Clear drops every handler.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Count returns how many handlers listen for t on layer.
func (r *Registry) Count(t EventType, layer string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.sub.Type == t && e.sub.Layer == layer {
			n++
		}
	}
	return n
}

// Match returns the handlers for e. Map-wide handlers (empty layer) see every
// event of their type; layer handlers only see events for their layer.
func (r *Registry) Match(e Event) []Handler {
	r.mu.Lock()
	defer r.mu.Unlock()
	var hs []Handler
	for _, en := range r.entries {
		if en.sub.Type != e.Type {
			continue
		}
		if en.sub.Layer != "" && en.sub.Layer != e.Layer {
			continue
		}
		hs = append(hs, en.h)
	}
	return hs
}
