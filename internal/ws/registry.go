package ws

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
)

var (
	ErrUnknownConn     = errors.New("unknown connection")
	ErrUnauthenticated = errors.New("connection is not authenticated")
	ErrInvalidGroup    = errors.New("invalid group id")
)

// Registry maps connections to the event groups they joined. Membership is
// connection scoped and never persisted; a reconnecting client starts with
// no groups.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	groups map[int]map[string]*Conn
	joined map[string]map[int]struct{}
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:  make(map[string]*Conn),
		groups: make(map[int]map[string]*Conn),
		joined: make(map[string]map[int]struct{}),
		logger: logger,
	}
}

// Register admits a connection with no group memberships.
func (r *Registry) Register(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID] = c
	r.joined[c.ID] = make(map[int]struct{})
}

// Join adds the connection to the event's group. Joining twice is a no-op
// reported as joined=false.
func (r *Registry) Join(connID string, eventID int) (bool, error) {
	if eventID <= 0 {
		return false, ErrInvalidGroup
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[connID]
	if !ok {
		return false, ErrUnknownConn
	}
	if !c.Authenticated() {
		return false, ErrUnauthenticated
	}
	if _, member := r.joined[connID][eventID]; member {
		r.logger.Debug("group already joined", "conn_id", connID, "event_id", eventID)
		return false, nil
	}

	if _, ok := r.groups[eventID]; !ok {
		r.groups[eventID] = make(map[string]*Conn)
	}
	r.groups[eventID][connID] = c
	r.joined[connID][eventID] = struct{}{}
	r.logger.Info("joined event room", "conn_id", connID, "user_id", c.Principal, "event_id", eventID)
	return true, nil
}

// Leave removes the connection from the event's group; it reports whether
// the connection was a member.
func (r *Registry) Leave(connID string, eventID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, member := r.joined[connID][eventID]; !member {
		return false
	}
	r.removeLocked(connID, eventID)
	r.logger.Info("left event room", "conn_id", connID, "event_id", eventID)
	return true
}

// Disconnect drops the connection and every membership it held. Only the
// first call for a connection reports ok=true.
func (r *Registry) Disconnect(connID string) (groups []int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[connID]; !ok {
		return nil, false
	}
	for eventID := range r.joined[connID] {
		groups = append(groups, eventID)
		r.removeLocked(connID, eventID)
	}
	delete(r.joined, connID)
	delete(r.conns, connID)
	sort.Ints(groups)
	return groups, true
}

func (r *Registry) removeLocked(connID string, eventID int) {
	if members, ok := r.groups[eventID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.groups, eventID)
		}
	}
	delete(r.joined[connID], eventID)
}

// Get returns a registered connection.
func (r *Registry) Get(connID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	return c, ok
}

// Members lists the connection ids currently in the event's group.
func (r *Registry) Members(eventID int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.groups[eventID]))
	for id := range r.groups[eventID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Groups lists the events a connection has joined.
func (r *Registry) Groups(connID string) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	groups := make([]int, 0, len(r.joined[connID]))
	for eventID := range r.joined[connID] {
		groups = append(groups, eventID)
	}
	sort.Ints(groups)
	return groups
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// snapshotGroup copies the group's members under the read lock so fan-out
// never iterates a set that is being mutated.
func (r *Registry) snapshotGroup(eventID int) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Conn, 0, len(r.groups[eventID]))
	for _, c := range r.groups[eventID] {
		conns = append(conns, c)
	}
	return conns
}

func (r *Registry) snapshotAll() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}
