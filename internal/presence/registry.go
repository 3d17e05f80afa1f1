package presence

import (
	"errors"
	"sort"
	"sync"
)

// ErrAlreadyRegistered is returned when a connection is registered twice.
var ErrAlreadyRegistered = errors.New("connection already registered")

// Conn is a live connection handle. Handles must be comparable so they can
// key the registry, and expose a stable ID for direct lookups.
type Conn interface {
	comparable
	ID() string
}

// Registry maps live connections to the user they were authenticated as.
// It is the process-wide source of truth for who is online right now. A user
// is online while at least one of their connections is registered, so
// closing one tab of several does not take the user offline.
type Registry[C Conn] struct {
	mu    sync.RWMutex
	conns map[C]string              // connection -> userID
	byID  map[string]C              // connection ID -> connection
	users map[string]map[C]struct{} // userID -> set of connections
}

// NewRegistry creates an empty registry.
func NewRegistry[C Conn]() *Registry[C] {
	return &Registry[C]{
		conns: make(map[C]string),
		byID:  make(map[string]C),
		users: make(map[string]map[C]struct{}),
	}
}

// Register pairs conn with userID.
func (r *Registry[C]) Register(conn C, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[conn]; exists {
		return ErrAlreadyRegistered
	}
	r.conns[conn] = userID
	r.byID[conn.ID()] = conn
	if r.users[userID] == nil {
		r.users[userID] = make(map[C]struct{})
	}
	r.users[userID][conn] = struct{}{}
	return nil
}

// Unregister removes conn and returns the user it belonged to. Removing a
// connection that is not registered reports ok=false and changes nothing.
func (r *Registry[C]) Unregister(conn C) (userID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok = r.conns[conn]
	if !ok {
		return "", false
	}
	delete(r.conns, conn)
	delete(r.byID, conn.ID())
	if set := r.users[userID]; set != nil {
		delete(set, conn)
		if len(set) == 0 {
			delete(r.users, userID)
		}
	}
	return userID, true
}

// OnlineUserIDs returns the distinct users with at least one live
// connection, sorted for stable output.
func (r *Registry[C]) OnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.users))
	for userID := range r.users {
		ids = append(ids, userID)
	}
	sort.Strings(ids)
	return ids
}

// ConnectionCount returns how many live connections userID has.
func (r *Registry[C]) ConnectionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID])
}

// IsOnline reports whether userID has any live connection.
func (r *Registry[C]) IsOnline(userID string) bool {
	return r.ConnectionCount(userID) > 0
}

// Connections returns a snapshot of every registered connection.
func (r *Registry[C]) Connections() []C {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]C, 0, len(r.conns))
	for conn := range r.conns {
		out = append(out, conn)
	}
	return out
}

// Lookup finds a registered connection by its ID.
func (r *Registry[C]) Lookup(connID string) (C, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byID[connID]
	return conn, ok
}

// UserOf returns the user a registered connection belongs to.
func (r *Registry[C]) UserOf(conn C) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.conns[conn]
	return userID, ok
}

// Len returns the number of live connections.
func (r *Registry[C]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
