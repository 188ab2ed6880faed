// Package protocol defines the JSON event frames exchanged with bridge clients.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cory-johannsen/bridge/internal/game/grid"
)

// Event names.
const (
	// Server to client.
	EventJoined  = "joined"
	EventPlayers = "players"
	EventState   = "state"
	EventMessage = "message"
	EventPong    = "pong"

	// Client to server.
	EventPlace = "place"
	EventWin   = "win"
	EventPing  = "ping"
)

// MessageWin is the payload of the message event relaying a win claim.
const MessageWin = "win"

// ErrMissingType is returned when a frame has no event type.
var ErrMissingType = errors.New("frame has no type")

// Frame is the envelope of every message on the wire.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// State carries the canonical grid.
type State struct {
	Grid [][]int `json:"grid"`
}

// Joined announces a room assignment. State is present only when the room
// was just formed.
type Joined struct {
	Room  string `json:"room"`
	Count int    `json:"count"`
	State *State `json:"state,omitempty"`
}

// Place is a candidate placement batch.
type Place struct {
	Placed []grid.Cell `json:"placed"`
}

// Encode wraps payload in a frame of the given type.
//
// Postcondition: Returns the JSON bytes of the frame, or an error if payload
// cannot be marshalled. A nil payload produces a frame without payload.
func Encode(eventType string, payload any) ([]byte, error) {
	f := Frame{Type: eventType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshalling %s payload: %w", eventType, err)
		}
		f.Payload = raw
	}
	return json.Marshal(f)
}

// Decode parses a frame.
//
// Postcondition: Returns ErrMissingType when the type field is empty.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decoding frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, ErrMissingType
	}
	return f, nil
}

// DecodePlace parses a place payload cell by cell. Entries that are not an
// object with integral x and y are skipped, and a payload without a placed
// array is an empty batch, so a placement is never rejected as a whole.
//
// Postcondition: Returns the decodable cells in payload order and the number
// of entries skipped.
func DecodePlace(raw json.RawMessage) (Place, int) {
	var envelope struct {
		Placed json.RawMessage `json:"placed"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &envelope) != nil {
		return Place{}, 0
	}
	var entries []json.RawMessage
	if json.Unmarshal(envelope.Placed, &entries) != nil {
		return Place{}, 0
	}

	p := Place{Placed: make([]grid.Cell, 0, len(entries))}
	skipped := 0
	for _, entry := range entries {
		c, ok := decodeCell(entry)
		if !ok {
			skipped++
			continue
		}
		p.Placed = append(p.Placed, c)
	}
	return p, skipped
}

func decodeCell(raw json.RawMessage) (grid.Cell, bool) {
	var wire struct {
		X *int `json:"x"`
		Y *int `json:"y"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil || wire.X == nil || wire.Y == nil {
		return grid.Cell{}, false
	}
	return grid.Cell{X: *wire.X, Y: *wire.Y}, true
}
