// Package membership tracks the ordered list of member identifiers held by
// the fault-detection aggregators (GFD and RM).
package membership

import "sync"

// List is an ordered collection of member identifiers.
//
// Unlike a set, Add appends unconditionally — a detector that reports the
// same member twice produces a duplicate entry, and Remove drops only the
// first occurrence. Membership is exactly the sequence of add/remove events
// received, nothing cleverer.
type List struct {
	mu      sync.RWMutex
	members []string
}

// NewList returns an empty member list.
func NewList() *List {
	return &List{}
}

// Add appends id to the list.
func (l *List) Add(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.members = append(l.members, id)
}

// Remove deletes the first occurrence of id and reports whether it was
// present.
func (l *List) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, member := range l.members {
		if member == id {
			l.members = append(l.members[:i], l.members[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports whether id is currently a member.
func (l *List) Contains(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, member := range l.members {
		if member == id {
			return true
		}
	}
	return false
}

// Clear drops every member and returns the removed entries in order.
func (l *List) Clear() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := l.members
	l.members = nil
	return removed
}

// All returns a copy of the current members in order.
func (l *List) All() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.members))
	copy(out, l.members)
	return out
}

// Len returns the current member count.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.members)
}
