// Package relay routes client events to bridge rooms and broadcasts the
// canonical grid back to the members of each room.
package relay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/bridge/internal/game/grid"
	"github.com/cory-johannsen/bridge/internal/game/room"
	"github.com/cory-johannsen/bridge/internal/protocol"
)

// Broadcaster delivers an encoded frame to one connection. Send is called
// while room state is locked and must not block.
type Broadcaster interface {
	Send(connID string, frame []byte) error
}

// Recorder archives room lifecycle events. Errors are logged and never
// interrupt play.
type Recorder interface {
	RoomOpened(ctx context.Context, roomID string, players []string, openedAt time.Time) error
	RoomClosed(ctx context.Context, roomID string, closedAt time.Time) error
	WinClaimed(ctx context.Context, roomID, claimedBy string, verified bool, snapshot [][]int, claimedAt time.Time) error
}

// Option configures a Relay.
type Option func(*Relay)

// WithRecorder archives room events to rec.
func WithRecorder(rec Recorder) Option {
	return func(r *Relay) {
		r.recorder = rec
	}
}

// WithWinVerification makes the relay check a win claim against the
// canonical grid and drop claims the grid does not support.
func WithWinVerification(enabled bool) Option {
	return func(r *Relay) {
		r.verifyWin = enabled
	}
}

// Relay is the per-connection event router. Frames for a room are queued
// while the room manager still holds that room's state, so every member
// receives them in the order the server applied them.
type Relay struct {
	rooms     *room.Manager
	out       Broadcaster
	recorder  Recorder
	logger    *zap.Logger
	verifyWin bool
	now       func() time.Time
}

// New creates a Relay.
//
// Precondition: rooms, out, and logger must be non-nil.
func New(rooms *room.Manager, out Broadcaster, logger *zap.Logger, opts ...Option) *Relay {
	r := &Relay{
		rooms:  rooms,
		out:    out,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnConnect assigns a new connection to the waiting slot or pairs it.
func (r *Relay) OnConnect(ctx context.Context, connID string) error {
	res, err := r.rooms.Join(connID, func(res room.JoinResult) {
		if !res.Paired {
			r.send(connID, protocol.EventJoined, protocol.Joined{Room: res.Room, Count: res.Count})
			return
		}
		joined := protocol.Joined{
			Room:  res.Room,
			Count: res.Count,
			State: &protocol.State{Grid: res.Grid},
		}
		r.broadcast(res.Members, protocol.EventJoined, joined)
		r.broadcast(res.Members, protocol.EventPlayers, res.Count)
	})
	if err != nil {
		return err
	}

	if !res.Paired {
		r.logger.Info("connection waiting", zap.String("conn", connID))
		return nil
	}

	r.logger.Info("connections paired",
		zap.String("room", res.Room),
		zap.Strings("players", res.Members),
	)
	if r.recorder != nil {
		if err := r.recorder.RoomOpened(ctx, res.Room, res.Members, res.OpenedAt); err != nil {
			r.logger.Warn("recording room open", zap.String("room", res.Room), zap.Error(err))
		}
	}
	return nil
}

// OnPlacement applies a placement batch and broadcasts the pruned grid to
// the room. Connections without a room are ignored.
func (r *Relay) OnPlacement(_ context.Context, connID string, cells []grid.Cell) {
	res, ok := r.rooms.Place(connID, cells, func(res room.PlaceResult) {
		r.broadcast(res.Members, protocol.EventState, protocol.State{Grid: res.Grid})
	})
	if !ok {
		r.logger.Debug("placement from connection without room", zap.String("conn", connID))
		return
	}

	r.logger.Debug("placement applied",
		zap.String("room", res.Room),
		zap.String("conn", connID),
		zap.Int("accepted", res.Accepted),
		zap.Int("rejected", res.Rejected),
		zap.Int("pruned", res.Pruned),
	)
}

// OnWin relays a client's win claim to its room.
func (r *Relay) OnWin(ctx context.Context, connID string) {
	view, ok := r.rooms.View(connID, func(view room.View) {
		if r.verifyWin && !view.Bridged {
			return
		}
		r.broadcast(view.Members, protocol.EventState, protocol.State{Grid: view.Grid})
		r.broadcast(view.Members, protocol.EventMessage, protocol.MessageWin)
	})
	if !ok {
		r.logger.Debug("win from connection without room", zap.String("conn", connID))
		return
	}

	if r.verifyWin && !view.Bridged {
		r.logger.Warn("win claim rejected by canonical grid",
			zap.String("room", view.Room),
			zap.String("conn", connID),
		)
	} else {
		r.logger.Info("win relayed",
			zap.String("room", view.Room),
			zap.String("conn", connID),
			zap.Bool("bridged", view.Bridged),
		)
	}

	if r.recorder != nil {
		if err := r.recorder.WinClaimed(ctx, view.Room, connID, view.Bridged, view.Grid, r.now()); err != nil {
			r.logger.Warn("recording win claim", zap.String("room", view.Room), zap.Error(err))
		}
	}
}

// OnDisconnect releases the connection and tells any surviving room member
// the new player count.
func (r *Relay) OnDisconnect(ctx context.Context, connID string) {
	res := r.rooms.Leave(connID, func(res room.LeaveResult) {
		if len(res.Remaining) > 0 {
			r.broadcast(res.Remaining, protocol.EventPlayers, len(res.Remaining))
		}
	})
	switch {
	case res.WasWaiting:
		r.logger.Info("waiting connection left", zap.String("conn", connID))
		return
	case res.Room == "":
		return
	}

	r.logger.Info("player left room",
		zap.String("room", res.Room),
		zap.String("conn", connID),
		zap.Int("remaining", len(res.Remaining)),
	)

	if res.Closed {
		r.logger.Info("room closed", zap.String("room", res.Room))
		if r.recorder != nil {
			if err := r.recorder.RoomClosed(ctx, res.Room, r.now()); err != nil {
				r.logger.Warn("recording room close", zap.String("room", res.Room), zap.Error(err))
			}
		}
	}
}

// Dispatch decodes one inbound frame and routes it. Malformed frames and
// unknown events are logged and dropped. Malformed cells are dropped one at
// a time, and the rest of their batch is still applied.
func (r *Relay) Dispatch(ctx context.Context, connID string, data []byte) {
	frame, err := protocol.Decode(data)
	if err != nil {
		r.logger.Debug("dropping malformed frame", zap.String("conn", connID), zap.Error(err))
		return
	}

	switch frame.Type {
	case protocol.EventPlace:
		p, skipped := protocol.DecodePlace(frame.Payload)
		if skipped > 0 {
			r.logger.Debug("dropping malformed cells", zap.String("conn", connID), zap.Int("skipped", skipped))
		}
		r.OnPlacement(ctx, connID, p.Placed)
	case protocol.EventWin:
		r.OnWin(ctx, connID)
	case protocol.EventPing:
		r.send(connID, protocol.EventPong, nil)
	default:
		r.logger.Debug("ignoring unknown event",
			zap.String("conn", connID),
			zap.String("type", frame.Type),
		)
	}
}

func (r *Relay) broadcast(connIDs []string, eventType string, payload any) {
	frame, err := protocol.Encode(eventType, payload)
	if err != nil {
		r.logger.Error("encoding frame", zap.String("type", eventType), zap.Error(err))
		return
	}
	for _, id := range connIDs {
		if err := r.out.Send(id, frame); err != nil {
			r.logger.Warn("sending frame",
				zap.String("conn", id),
				zap.String("type", eventType),
				zap.Error(err),
			)
		}
	}
}

func (r *Relay) send(connID, eventType string, payload any) {
	r.broadcast([]string{connID}, eventType, payload)
}
