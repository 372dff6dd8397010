package hub

import "sync"

// Registry is the set of open connections, bounded by capacity. The lock covers map
// operations only; callers never hold it while writing to a sink.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	capacity    int
}

func NewRegistry(capacity int) *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
		capacity:    capacity,
	}
}

// TryAdd inserts conn unless the registry is full or the id is taken. A failed call
// leaves the registry untouched.
func (r *Registry) TryAdd(conn *Connection) bool {
	return r.add(conn) == nil
}

func (r *Registry) add(conn *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.connections) >= r.capacity {
		return ErrCapacityExceeded
	}
	if _, exists := r.connections[conn.ID()]; exists {
		return errDuplicateID
	}
	r.connections[conn.ID()] = conn
	return nil
}

// Remove deletes id and returns the removed connection. Removing an absent id is a no-op.
func (r *Registry) Remove(id string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.connections[id]
	if exists {
		delete(r.connections, id)
	}
	return conn, exists
}

func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, exists := r.connections[id]
	return conn, exists
}

// Snapshot copies the current entries.
func (r *Registry) Snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		out = append(out, conn)
	}
	return out
}

// ForEach visits a snapshot, so visit may remove entries (including the visited one)
// without disturbing the traversal.
func (r *Registry) ForEach(visit func(*Connection)) {
	for _, conn := range r.Snapshot() {
		visit(conn)
	}
}

func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

func (r *Registry) Capacity() int {
	return r.capacity
}
