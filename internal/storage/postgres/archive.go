package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRoomNotFound is returned when a room lookup yields no results.
var ErrRoomNotFound = errors.New("room not found")

// RoomRecord is an archived room.
type RoomRecord struct {
	InstanceID uuid.UUID
	ID         string
	Players    []string
	OpenedAt   time.Time
	// ClosedAt is nil while the room is live.
	ClosedAt *time.Time
}

// WinRecord is an archived win claim.
type WinRecord struct {
	ID        int64
	RoomID    string
	ClaimedBy string
	Verified  bool
	Grid      [][]int
	ClaimedAt time.Time
}

// RoomArchive persists room lifecycle events. Room IDs restart at room-1 in
// every process, so rows are keyed by the archive's instance ID as well.
type RoomArchive struct {
	db       *pgxpool.Pool
	instance uuid.UUID
}

// NewRoomArchive creates a RoomArchive writing under the given instance ID.
//
// Precondition: db must be a valid, open connection pool.
func NewRoomArchive(db *pgxpool.Pool, instance uuid.UUID) *RoomArchive {
	return &RoomArchive{db: db, instance: instance}
}

// InstanceID returns the process identifier rows are written under.
func (a *RoomArchive) InstanceID() uuid.UUID {
	return a.instance
}

// RoomOpened records a newly paired room.
//
// Postcondition: The room row exists with the given players and opened_at.
func (a *RoomArchive) RoomOpened(ctx context.Context, roomID string, players []string, openedAt time.Time) error {
	_, err := a.db.Exec(ctx,
		`INSERT INTO rooms (instance_id, id, players, opened_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (instance_id, id)
		 DO UPDATE SET players = EXCLUDED.players, opened_at = EXCLUDED.opened_at`,
		a.instance, roomID, players, openedAt,
	)
	if err != nil {
		return fmt.Errorf("recording room %s opened: %w", roomID, err)
	}
	return nil
}

// RoomClosed stamps a room's close time. A close for a room never recorded
// as opened inserts a row opened and closed at closedAt.
func (a *RoomArchive) RoomClosed(ctx context.Context, roomID string, closedAt time.Time) error {
	_, err := a.db.Exec(ctx,
		`INSERT INTO rooms (instance_id, id, opened_at, closed_at)
		 VALUES ($1, $2, $3, $3)
		 ON CONFLICT (instance_id, id)
		 DO UPDATE SET closed_at = EXCLUDED.closed_at`,
		a.instance, roomID, closedAt,
	)
	if err != nil {
		return fmt.Errorf("recording room %s closed: %w", roomID, err)
	}
	return nil
}

// WinClaimed records a relayed win claim together with the canonical grid.
func (a *RoomArchive) WinClaimed(ctx context.Context, roomID, claimedBy string, verified bool, snapshot [][]int, claimedAt time.Time) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encoding grid for room %s: %w", roomID, err)
	}
	_, err = a.db.Exec(ctx,
		`INSERT INTO room_wins (instance_id, room_id, claimed_by, verified, grid, claimed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.instance, roomID, claimedBy, verified, raw, claimedAt,
	)
	if err != nil {
		return fmt.Errorf("recording win in room %s: %w", roomID, err)
	}
	return nil
}

// Room returns the archived room for this instance.
//
// Postcondition: Returns ErrRoomNotFound when no row exists.
func (a *RoomArchive) Room(ctx context.Context, roomID string) (RoomRecord, error) {
	var rec RoomRecord
	err := a.db.QueryRow(ctx,
		`SELECT instance_id, id, players, opened_at, closed_at
		 FROM rooms WHERE instance_id = $1 AND id = $2`,
		a.instance, roomID,
	).Scan(&rec.InstanceID, &rec.ID, &rec.Players, &rec.OpenedAt, &rec.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RoomRecord{}, ErrRoomNotFound
		}
		return RoomRecord{}, fmt.Errorf("querying room %s: %w", roomID, err)
	}
	return rec, nil
}

// Wins returns the win claims recorded for a room, oldest first.
func (a *RoomArchive) Wins(ctx context.Context, roomID string) ([]WinRecord, error) {
	rows, err := a.db.Query(ctx,
		`SELECT id, room_id, claimed_by, verified, grid, claimed_at
		 FROM room_wins WHERE instance_id = $1 AND room_id = $2
		 ORDER BY id`,
		a.instance, roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying wins for room %s: %w", roomID, err)
	}

	wins, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (WinRecord, error) {
		var w WinRecord
		var raw []byte
		if err := row.Scan(&w.ID, &w.RoomID, &w.ClaimedBy, &w.Verified, &raw, &w.ClaimedAt); err != nil {
			return WinRecord{}, err
		}
		if err := json.Unmarshal(raw, &w.Grid); err != nil {
			return WinRecord{}, fmt.Errorf("decoding grid: %w", err)
		}
		return w, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning wins for room %s: %w", roomID, err)
	}
	return wins, nil
}
