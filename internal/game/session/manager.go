package session

import (
	"fmt"
	"sync"
	"time"
)

// Connection is a live client connection.
type Connection struct {
	// ID is the server-assigned connection identifier.
	ID string
	// RemoteAddr is the peer address (for logging).
	RemoteAddr string
	// ConnectedAt is when the connection was registered.
	ConnectedAt time.Time
	// Outbox queues frames for the connection's writer.
	Outbox *Outbox
}

// Manager tracks all live connections.
// All methods are safe for concurrent use.
type Manager struct {
	mu         sync.RWMutex
	conns      map[string]*Connection // connID → connection
	bufferSize int
}

// NewManager creates an empty Manager whose outboxes hold bufferSize frames.
func NewManager(bufferSize int) *Manager {
	return &Manager{
		conns:      make(map[string]*Connection),
		bufferSize: bufferSize,
	}
}

// Register adds a connection and allocates its outbox.
//
// Precondition: connID must be non-empty.
// Postcondition: Returns the Connection, or an error if connID is already registered.
func (m *Manager) Register(connID, remoteAddr string) (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conns[connID]; exists {
		return nil, fmt.Errorf("connection %q already registered", connID)
	}
	c := &Connection{
		ID:          connID,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
		Outbox:      NewOutbox(connID, m.bufferSize),
	}
	m.conns[connID] = c
	return c, nil
}

// Unregister removes a connection and closes its outbox.
//
// Postcondition: Returns an error if the connection is not registered.
func (m *Manager) Unregister(connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, exists := m.conns[connID]
	if !exists {
		return fmt.Errorf("connection %q not found", connID)
	}
	_ = c.Outbox.Close()
	delete(m.conns, connID)
	return nil
}

// Send queues a frame for one connection.
//
// Postcondition: Returns an error if the connection is unknown or its outbox
// cannot accept the frame.
func (m *Manager) Send(connID string, frame []byte) error {
	m.mu.RLock()
	c, ok := m.conns[connID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("connection %q not found", connID)
	}
	return c.Outbox.Push(frame)
}

// Count returns the number of live connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}
