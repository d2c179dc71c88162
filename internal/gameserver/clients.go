package gameserver

import (
	"sync"
)

// ClientManager tracks all live connections and the binding from
// player IDs to connections. Thread-safe; the lock is held only for
// map access, never across socket writes.
type ClientManager struct {
	mu       sync.RWMutex
	clients  map[uint64]*Client // key: connId
	byPlayer map[string]*Client
}

// NewClientManager creates an empty client manager.
func NewClientManager() *ClientManager {
	return &ClientManager{
		clients:  make(map[uint64]*Client),
		byPlayer: make(map[string]*Client),
	}
}

// Register adds a freshly accepted connection.
func (cm *ClientManager) Register(c *Client) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.clients[c.id] = c
}

// Unregister drops a connection record. The player binding is removed
// only if it still points at this connection, so a superseding session
// survives the old connection's teardown.
func (cm *ClientManager) Unregister(c *Client) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	delete(cm.clients, c.id)
	if pid := c.PlayerID(); pid != "" && cm.byPlayer[pid] == c {
		delete(cm.byPlayer, pid)
	}
}

// Bind maps a player ID to a connection and returns the previously
// bound connection, if any. The caller closes the prior one.
func (cm *ClientManager) Bind(playerID string, c *Client) *Client {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	prior := cm.byPlayer[playerID]
	if prior == c {
		prior = nil
	}
	cm.byPlayer[playerID] = c
	return prior
}

// Get returns the connection with the given ID, or nil.
func (cm *ClientManager) Get(connID uint64) *Client {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.clients[connID]
}

// ByPlayer returns the connection bound to the player, or nil.
func (cm *ClientManager) ByPlayer(playerID string) *Client {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.byPlayer[playerID]
}

// Count returns the number of live connections.
func (cm *ClientManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.clients)
}

// BoundCount returns the number of authenticated connections.
func (cm *ClientManager) BoundCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.byPlayer)
}

// Snapshot copies the connection list so callers can act on it
// outside the lock, in particular closing sockets at shutdown.
func (cm *ClientManager) Snapshot() []*Client {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	out := make([]*Client, 0, len(cm.clients))
	for _, c := range cm.clients {
		out = append(out, c)
	}
	return out
}
