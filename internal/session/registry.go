package session

import "sync"

// Registry tracks the session IDs live in every engine that shares it.
// The daemon hands one registry to all transports so that an engine's
// orphan scan never mistakes a sibling transport's still-open chain file
// for a crashed session. It also serializes orphan scans; otherwise two
// engines sealing at once could both recover the same chain.
type Registry struct {
	scanMu sync.Mutex

	mu   sync.Mutex
	live map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{live: make(map[string]bool)}
}

func (r *Registry) add(sessionID string) {
	r.mu.Lock()
	r.live[sessionID] = true
	r.mu.Unlock()
}

func (r *Registry) remove(sessionID string) {
	r.mu.Lock()
	delete(r.live, sessionID)
	r.mu.Unlock()
}

func (r *Registry) has(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live[sessionID]
}
