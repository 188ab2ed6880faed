package room

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/bridge/internal/game/grid"
)

func newManager() *Manager {
	return NewManager(grid.DefaultLayout())
}

func TestManager_FirstJoinWaits(t *testing.T) {
	m := newManager()
	res, err := m.Join("a", nil)
	require.NoError(t, err)
	assert.Equal(t, JoinResult{Room: WaitingRoom, Count: 1}, res)
	assert.Equal(t, Stats{Rooms: 0, Paired: 0, Waiting: true}, m.Stats())
	_, ok := m.View("a", nil)
	assert.False(t, ok, "a waiting connection has no room")
}

func TestManager_SecondJoinPairs(t *testing.T) {
	m := newManager()
	_, err := m.Join("a", nil)
	require.NoError(t, err)

	res, err := m.Join("b", nil)
	require.NoError(t, err)
	assert.True(t, res.Paired)
	assert.Equal(t, "room-1", res.Room)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, []string{"a", "b"}, res.Members)
	require.Len(t, res.Grid, 18)
	require.Len(t, res.Grid[0], 20)
	assert.False(t, res.OpenedAt.IsZero())

	view, ok := m.View("a", nil)
	require.True(t, ok)
	assert.Equal(t, "room-1", view.Room)
	assert.Equal(t, Stats{Rooms: 1, Paired: 2, Waiting: false}, m.Stats())
}

func TestManager_ThirdJoinWaitsAgain(t *testing.T) {
	m := newManager()
	_, _ = m.Join("a", nil)
	_, _ = m.Join("b", nil)

	res, err := m.Join("c", nil)
	require.NoError(t, err)
	assert.Equal(t, WaitingRoom, res.Room)

	res, err = m.Join("d", nil)
	require.NoError(t, err)
	assert.Equal(t, "room-2", res.Room)
	assert.Equal(t, []string{"c", "d"}, res.Members)
}

func TestManager_JoinDuplicate(t *testing.T) {
	m := newManager()
	_, _ = m.Join("a", nil)
	_, err := m.Join("a", nil)
	assert.Error(t, err)

	_, _ = m.Join("b", nil)
	_, err = m.Join("b", nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already in room-1")
}

func TestManager_WaitingLeaveClearsSlot(t *testing.T) {
	m := newManager()
	_, _ = m.Join("a", nil)
	res := m.Leave("a", nil)
	assert.True(t, res.WasWaiting)
	assert.False(t, m.Stats().Waiting)

	join, err := m.Join("b", nil)
	require.NoError(t, err)
	assert.Equal(t, WaitingRoom, join.Room, "a departed waiter must not be paired")
}

func TestManager_LeaveShrinksThenDestroysRoom(t *testing.T) {
	m := newManager()
	_, _ = m.Join("a", nil)
	_, _ = m.Join("b", nil)

	res := m.Leave("a", nil)
	assert.Equal(t, LeaveResult{Room: "room-1", Remaining: []string{"b"}}, res)
	assert.Equal(t, Stats{Rooms: 1, Paired: 1}, m.Stats())

	_, ok := m.Place("a", []grid.Cell{{X: 0, Y: 0}}, nil)
	assert.False(t, ok, "departed player must not reach the room")

	res = m.Leave("b", nil)
	assert.True(t, res.Closed)
	assert.Empty(t, res.Remaining)
	assert.Equal(t, Stats{}, m.Stats())
}

func TestManager_LeaveUnknown(t *testing.T) {
	m := newManager()
	assert.Equal(t, LeaveResult{}, m.Leave("ghost", nil))
	assert.Equal(t, LeaveResult{}, m.Leave("", nil))
}

func TestManager_PlaceUnassociatedIsNoop(t *testing.T) {
	m := newManager()
	_, ok := m.Place("ghost", []grid.Cell{{X: 1, Y: 1}}, nil)
	assert.False(t, ok)

	_, _ = m.Join("a", nil)
	_, ok = m.Place("a", []grid.Cell{{X: 1, Y: 1}}, nil)
	assert.False(t, ok, "waiting connection has no room")
}

func TestManager_PlacePrunesAndShares(t *testing.T) {
	m := newManager()
	_, _ = m.Join("a", nil)
	_, _ = m.Join("b", nil)

	res, ok := m.Place("a", []grid.Cell{{X: 1, Y: 1}, {X: 10, Y: 16}, {X: 10, Y: 17}}, nil)
	require.True(t, ok)
	assert.Equal(t, "room-1", res.Room)
	assert.Equal(t, []string{"a", "b"}, res.Members)
	assert.Equal(t, 2, res.Accepted)
	assert.Equal(t, 1, res.Rejected)
	assert.Equal(t, 1, res.Pruned)
	assert.Equal(t, 1, res.Grid[1][1])
	assert.Equal(t, 0, res.Grid[16][10])

	view, ok := m.View("b", nil)
	require.True(t, ok)
	assert.Equal(t, res.Grid, view.Grid)
}

func TestManager_RoomsHaveIndependentGrids(t *testing.T) {
	m := newManager()
	for _, id := range []string{"a", "b", "c", "d"} {
		_, _ = m.Join(id, nil)
	}
	_, ok := m.Place("a", []grid.Cell{{X: 0, Y: 0}}, nil)
	require.True(t, ok)

	view, ok := m.View("c", nil)
	require.True(t, ok)
	assert.Equal(t, "room-2", view.Room)
	assert.Equal(t, 0, view.Grid[0][0])
}

func TestManager_ViewReportsBridged(t *testing.T) {
	m := newManager()
	_, _ = m.Join("a", nil)
	_, _ = m.Join("b", nil)
	var row []grid.Cell
	for x := 4; x <= 15; x++ {
		row = append(row, grid.Cell{X: x, Y: 10})
	}
	_, _ = m.Place("b", row, nil)

	view, ok := m.View("a", nil)
	require.True(t, ok)
	assert.True(t, view.Bridged)
}

func TestManager_ConcurrentPlacement(t *testing.T) {
	m := newManager()
	_, _ = m.Join("a", nil)
	_, _ = m.Join("b", nil)

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b"} {
		for x := 0; x < 20; x++ {
			wg.Add(1)
			go func(id string, x int) {
				defer wg.Done()
				_, _ = m.Place(id, []grid.Cell{{X: x, Y: 10}}, nil)
			}(id, x)
		}
	}
	wg.Wait()

	view, ok := m.View("a", nil)
	require.True(t, ok)
	for x := 0; x < 20; x++ {
		assert.Equal(t, 1, view.Grid[10][x], "x=%d", x)
	}
}

func TestManager_PublishCallbacks(t *testing.T) {
	m := newManager()
	var joins []JoinResult
	for _, id := range []string{"a", "b"} {
		_, err := m.Join(id, func(res JoinResult) { joins = append(joins, res) })
		require.NoError(t, err)
	}
	require.Len(t, joins, 2)
	assert.Equal(t, WaitingRoom, joins[0].Room)
	assert.True(t, joins[1].Paired)

	_, err := m.Join("a", func(JoinResult) { t.Fatal("published a rejected join") })
	assert.Error(t, err)

	var placed PlaceResult
	res, ok := m.Place("a", []grid.Cell{{X: 0, Y: 17}}, func(r PlaceResult) { placed = r })
	require.True(t, ok)
	assert.Equal(t, res, placed)
	assert.Equal(t, 1, placed.Grid[17][0])

	var viewed View
	view, ok := m.View("b", func(v View) { viewed = v })
	require.True(t, ok)
	assert.Equal(t, view, viewed)

	_, ok = m.Place("ghost", nil, func(PlaceResult) { t.Fatal("published for a connection without room") })
	assert.False(t, ok)

	var left []LeaveResult
	m.Leave("ghost", func(r LeaveResult) { left = append(left, r) })
	m.Leave("a", func(r LeaveResult) { left = append(left, r) })
	m.Leave("b", func(r LeaveResult) { left = append(left, r) })
	require.Len(t, left, 2)
	assert.Equal(t, []string{"b"}, left[0].Remaining)
	assert.True(t, left[1].Closed)
}

// Placements published from concurrent goroutines arrive in the order they
// were applied, so the last published grid is the final grid.
func TestManager_PlacePublishesInApplyOrder(t *testing.T) {
	m := newManager()
	_, _ = m.Join("a", nil)
	_, _ = m.Join("b", nil)

	var (
		mu        sync.Mutex
		published [][][]int
	)
	publish := func(res PlaceResult) {
		mu.Lock()
		defer mu.Unlock()
		published = append(published, res.Grid)
	}

	var wg sync.WaitGroup
	for i, id := range []string{"a", "b", "a", "b"} {
		wg.Add(1)
		go func(id string, row int) {
			defer wg.Done()
			for x := 0; x < 20; x++ {
				_, _ = m.Place(id, []grid.Cell{{X: x, Y: row}}, publish)
			}
		}(id, i)
	}
	wg.Wait()

	final, ok := m.View("a", nil)
	require.True(t, ok)
	require.Len(t, published, 80)
	assert.Equal(t, final.Grid, published[len(published)-1])

	counts := make([]int, len(published))
	for i, g := range published {
		for _, row := range g {
			for _, v := range row {
				counts[i] += v
			}
		}
	}
	for i := 1; i < len(counts); i++ {
		assert.Equal(t, counts[i-1]+1, counts[i], "publish %d out of order", i)
	}
}

// Property: rooms never exceed capacity, every paired connection maps to a
// room that lists it, and at most one connection waits.
func TestPropertyRoomCapacity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := newManager()
		live := map[string]bool{}
		next := 0

		ops := rapid.IntRange(1, 60).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			if len(live) == 0 || rapid.Bool().Draw(t, "join") {
				id := fmt.Sprintf("c%d", next)
				next++
				if _, err := m.Join(id, nil); err != nil {
					t.Fatalf("join %s: %v", id, err)
				}
				live[id] = true
				continue
			}
			ids := make([]string, 0, len(live))
			for id := range live {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			id := rapid.SampledFrom(ids).Draw(t, "leave")
			m.Leave(id, nil)
			delete(live, id)
		}

		m.mu.RLock()
		defer m.mu.RUnlock()
		for id, r := range m.rooms {
			if n := len(r.players); n > Capacity || n == 0 {
				t.Fatalf("room %s holds %d players", id, n)
			}
			for _, p := range r.players {
				if m.members[p] != id {
					t.Fatalf("player %s in %s maps to %q", p, id, m.members[p])
				}
			}
		}
		paired := len(m.members)
		if m.waiting != "" {
			paired++
		}
		if paired != len(live) {
			t.Fatalf("tracked %d connections, want %d", paired, len(live))
		}
	})
}
