package pipeline

import (
	"errors"
	"sync"
)

// ErrCycleInFlight is returned when a processing cycle is requested for an
// event that already has one running. Overlapping invocations are rejected,
// not queued: the next cycle reprocesses any backlog anyway.
var ErrCycleInFlight = errors.New("processing cycle already in flight for event")

// inflightGuard tracks which events currently have a cycle running.
type inflightGuard struct {
	mu     sync.Mutex
	active map[string]bool
}

// tryBegin marks an event as processing. It reports false when a cycle for
// the event is already in flight.
func (g *inflightGuard) tryBegin(eventID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == nil {
		g.active = make(map[string]bool)
	}
	if g.active[eventID] {
		return false
	}
	g.active[eventID] = true
	return true
}

// end clears the in-flight flag for an event.
func (g *inflightGuard) end(eventID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, eventID)
}
