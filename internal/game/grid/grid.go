package grid

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is returned when a snapshot does not match the layout dimensions.
var ErrShapeMismatch = errors.New("snapshot shape does not match layout")

// Cell is a board coordinate as sent by clients.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Grid is a Rows x Cols occupancy matrix.
// A Grid is not safe for concurrent use; the owning room serializes access.
type Grid struct {
	layout Layout
	cells  [][]bool // cells[y][x]
}

// New returns an empty grid for the given layout.
//
// Precondition: layout must pass Validate.
func New(layout Layout) *Grid {
	cells := make([][]bool, layout.Rows)
	for y := range cells {
		cells[y] = make([]bool, layout.Cols)
	}
	return &Grid{layout: layout, cells: cells}
}

// FromSnapshot rebuilds a grid from its row-major 0/1 wire form.
//
// Postcondition: Returns ErrShapeMismatch if the snapshot is not Rows x Cols.
// Any non-zero value is treated as occupied. No pruning is applied.
func FromSnapshot(layout Layout, snap [][]int) (*Grid, error) {
	if len(snap) != layout.Rows {
		return nil, fmt.Errorf("%w: got %d rows, want %d", ErrShapeMismatch, len(snap), layout.Rows)
	}
	g := New(layout)
	for y, row := range snap {
		if len(row) != layout.Cols {
			return nil, fmt.Errorf("%w: row %d has %d cols, want %d", ErrShapeMismatch, y, len(row), layout.Cols)
		}
		for x, v := range row {
			g.cells[y][x] = v != 0
		}
	}
	return g, nil
}

// Occupied reports whether (x, y) holds a block. Out-of-bounds cells are empty.
func (g *Grid) Occupied(x, y int) bool {
	if !g.layout.InBounds(x, y) {
		return false
	}
	return g.cells[y][x]
}

// Count returns the number of occupied cells.
func (g *Grid) Count() int {
	n := 0
	for _, row := range g.cells {
		for _, c := range row {
			if c {
				n++
			}
		}
	}
	return n
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	out := New(g.layout)
	for y, row := range g.cells {
		copy(out.cells[y], row)
	}
	return out
}

// Equal reports whether both grids share a layout and occupancy.
func (g *Grid) Equal(other *Grid) bool {
	if g.layout != other.layout {
		return false
	}
	for y, row := range g.cells {
		for x, c := range row {
			if other.cells[y][x] != c {
				return false
			}
		}
	}
	return true
}

// Snapshot returns the row-major 0/1 wire representation.
//
// Postcondition: The result does not alias the grid.
func (g *Grid) Snapshot() [][]int {
	out := make([][]int, g.layout.Rows)
	for y, row := range g.cells {
		out[y] = make([]int, g.layout.Cols)
		for x, c := range row {
			if c {
				out[y][x] = 1
			}
		}
	}
	return out
}

// Bridged reports whether the target row is occupied in every gap column.
func (g *Grid) Bridged() bool {
	ty := g.layout.TargetRow()
	for x := g.layout.GapStart; x <= g.layout.GapEnd; x++ {
		if !g.cells[ty][x] {
			return false
		}
	}
	return true
}
