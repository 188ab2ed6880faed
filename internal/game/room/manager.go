// Package room pairs connections into two-player bridge rooms and owns each
// room's grid.
package room

import (
	"fmt"
	"sync"
	"time"

	"github.com/cory-johannsen/bridge/internal/game/grid"
)

// WaitingRoom is the room name reported to a connection holding the waiting slot.
const WaitingRoom = "waiting"

// Capacity is the number of players in a paired room.
const Capacity = 2

// Room is a paired session with its own grid.
type Room struct {
	ID       string
	OpenedAt time.Time

	mu      sync.Mutex
	grid    *grid.Grid
	players []string
}

// JoinResult describes what a newly arrived connection was assigned to.
type JoinResult struct {
	// Room is WaitingRoom or the ID of the newly formed room.
	Room string
	// Count is 1 while waiting, 2 once paired.
	Count int
	// Paired is true when this join formed a room.
	Paired bool
	// Members holds both connection IDs when Paired, in join order.
	Members []string
	// Grid is the fresh grid snapshot when Paired.
	Grid [][]int
	// OpenedAt is the room creation time when Paired.
	OpenedAt time.Time
}

// LeaveResult describes the effect of a disconnect.
type LeaveResult struct {
	// WasWaiting is true when the connection held the waiting slot.
	WasWaiting bool
	// Room is the room the connection belonged to, or empty.
	Room string
	// Remaining holds the surviving members of Room.
	Remaining []string
	// Closed is true when the room was destroyed because it emptied.
	Closed bool
}

// View is a consistent copy of a room's grid and members.
type View struct {
	Room    string
	Members []string
	Grid    [][]int
	Bridged bool
}

// PlaceResult is the canonical state after a placement batch.
type PlaceResult struct {
	View
	grid.Result
}

// Stats is a point-in-time summary of the manager.
type Stats struct {
	Rooms   int  `json:"rooms"`
	Paired  int  `json:"paired"`
	Waiting bool `json:"waiting"`
}

// Manager pairs connections and routes them to their rooms.
// All methods are safe for concurrent use; mutations of one room are
// serialized by that room's mutex.
//
// Join, Leave, Place, and View take an optional publish callback that runs
// while the state it describes is still locked, so results published for
// one room are delivered in the order they were applied. A callback must
// not block or call back into the Manager.
type Manager struct {
	layout grid.Layout
	now    func() time.Time

	mu      sync.RWMutex
	waiting string
	rooms   map[string]*Room  // roomID → room
	members map[string]string // connID → roomID
	counter int
}

// NewManager creates an empty Manager whose rooms use the given layout.
//
// Precondition: layout must pass Validate.
func NewManager(layout grid.Layout) *Manager {
	return &Manager{
		layout:  layout,
		now:     time.Now,
		rooms:   make(map[string]*Room),
		members: make(map[string]string),
	}
}

// Join registers a newly connected client. The first arrival takes the
// waiting slot; the next one forms a room with it. publish sees the result
// before any other connection can observe the new assignment.
//
// Precondition: connID must be non-empty and not already joined.
// Postcondition: Returns an error if connID is already waiting or paired;
// publish is not called then.
func (m *Manager) Join(connID string, publish func(JoinResult)) (JoinResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if connID == m.waiting {
		return JoinResult{}, fmt.Errorf("connection %q already waiting", connID)
	}
	if roomID, ok := m.members[connID]; ok {
		return JoinResult{}, fmt.Errorf("connection %q already in %s", connID, roomID)
	}

	if m.waiting == "" {
		m.waiting = connID
		res := JoinResult{Room: WaitingRoom, Count: 1}
		if publish != nil {
			publish(res)
		}
		return res, nil
	}

	m.counter++
	r := &Room{
		ID:       fmt.Sprintf("room-%d", m.counter),
		OpenedAt: m.now(),
		grid:     grid.New(m.layout),
		players:  []string{m.waiting, connID},
	}
	m.waiting = ""
	m.rooms[r.ID] = r
	for _, p := range r.players {
		m.members[p] = r.ID
	}

	res := JoinResult{
		Room:     r.ID,
		Count:    len(r.players),
		Paired:   true,
		Members:  append([]string(nil), r.players...),
		Grid:     r.grid.Snapshot(),
		OpenedAt: r.OpenedAt,
	}
	if publish != nil {
		publish(res)
	}
	return res, nil
}

// Leave removes a connection from the waiting slot or its room.
// A room is destroyed, together with its grid, once its last player leaves.
//
// Postcondition: Unknown connections yield a zero LeaveResult and are not
// published.
func (m *Manager) Leave(connID string, publish func(LeaveResult)) LeaveResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if connID != "" && connID == m.waiting {
		m.waiting = ""
		res := LeaveResult{WasWaiting: true}
		if publish != nil {
			publish(res)
		}
		return res
	}

	roomID, ok := m.members[connID]
	if !ok {
		return LeaveResult{}
	}
	delete(m.members, connID)

	r, ok := m.rooms[roomID]
	if !ok {
		return LeaveResult{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.players[:0]
	for _, p := range r.players {
		if p != connID {
			kept = append(kept, p)
		}
	}
	r.players = kept

	res := LeaveResult{Room: roomID, Remaining: append([]string(nil), kept...)}
	if len(kept) == 0 {
		delete(m.rooms, roomID)
		res.Closed = true
	}
	if publish != nil {
		publish(res)
	}
	return res
}

// Place applies a placement batch to the connection's room and prunes it.
//
// Postcondition: Returns false when the connection is not in a room.
func (m *Manager) Place(connID string, cells []grid.Cell, publish func(PlaceResult)) (PlaceResult, bool) {
	r, ok := m.roomOf(connID)
	if !ok {
		return PlaceResult{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	applied := r.grid.Apply(cells)
	res := PlaceResult{View: r.viewLocked(), Result: applied}
	if publish != nil {
		publish(res)
	}
	return res, true
}

// View returns the current state of the connection's room.
//
// Postcondition: Returns false when the connection is not in a room.
func (m *Manager) View(connID string, publish func(View)) (View, bool) {
	r, ok := m.roomOf(connID)
	if !ok {
		return View{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	view := r.viewLocked()
	if publish != nil {
		publish(view)
	}
	return view, true
}

// Stats summarizes the manager's rooms and waiting slot.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		Rooms:   len(m.rooms),
		Paired:  len(m.members),
		Waiting: m.waiting != "",
	}
}

func (m *Manager) roomOf(connID string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	roomID, ok := m.members[connID]
	if !ok {
		return nil, false
	}
	r, ok := m.rooms[roomID]
	return r, ok
}

// viewLocked must be called with r.mu held.
func (r *Room) viewLocked() View {
	return View{
		Room:    r.ID,
		Members: append([]string(nil), r.players...),
		Grid:    r.grid.Snapshot(),
		Bridged: r.grid.Bridged(),
	}
}
