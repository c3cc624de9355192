package gateway

import "sync"

// Registry tracks which live connection currently represents each user.
// Registering a user twice overwrites the earlier mapping, so the newest
// connection wins.
type Registry struct {
	mu    sync.Mutex
	conns map[string]string // userID -> connID
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]string)}
}

// Register binds the user to the connection, replacing any earlier binding.
func (r *Registry) Register(userID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[userID] = connID
}

// Unregister scans for the entry bound to connID and removes it. A stale
// connection whose user has since reconnected matches nothing, so it
// cannot evict the newer binding. O(n) in active connections.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, id := range r.conns {
		if id == connID {
			delete(r.conns, userID)
			return
		}
	}
}

// ResolveSender returns the user bound to the connection, if any.
func (r *Registry) ResolveSender(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, id := range r.conns {
		if id == connID {
			return userID, true
		}
	}
	return "", false
}

// ConnID returns the connection currently representing the user.
func (r *Registry) ConnID(userID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.conns[userID]
	return id, ok
}
