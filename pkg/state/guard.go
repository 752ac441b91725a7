package state

import "sync"

// SendGuard enforces the single in-flight-send invariant: at most one
// SendMessage call may hold it at a time, for the whole manager instance.
// A second caller fails fast instead of queueing.
type SendGuard struct {
	mu       sync.Mutex
	inFlight bool
}

// Begin marks a send as in flight. Returns ErrSendInProgress if one already is.
func (g *SendGuard) Begin() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight {
		return ErrSendInProgress
	}
	g.inFlight = true
	return nil
}

// End clears the in-flight flag.
func (g *SendGuard) End() {
	g.mu.Lock()
	g.inFlight = false
	g.mu.Unlock()
}

// InFlight reports whether a send is currently outstanding.
func (g *SendGuard) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}
