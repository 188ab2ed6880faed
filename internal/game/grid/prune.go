package grid

// Result summarizes one placement batch.
type Result struct {
	// Accepted is the number of candidate cells written to the grid.
	Accepted int
	// Rejected is the number of candidate cells dropped as out of bounds or forbidden.
	Rejected int
	// Pruned is the number of void cells cleared by the support pass.
	Pruned int
}

var directions = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

// Place marks every acceptable candidate cell as occupied without pruning.
// Out-of-bounds cells and cells on the bottom row of the gap are dropped.
//
// Postcondition: Returns the number of accepted and rejected candidates.
func (g *Grid) Place(cells []Cell) (accepted, rejected int) {
	for _, c := range cells {
		if !g.layout.InBounds(c.X, c.Y) || g.layout.Forbidden(c.X, c.Y) {
			rejected++
			continue
		}
		g.cells[c.Y][c.X] = true
		accepted++
	}
	return accepted, rejected
}

// Apply places the candidate cells and then runs the support pass.
// The pass runs even when no cell was accepted.
func (g *Grid) Apply(cells []Cell) Result {
	accepted, rejected := g.Place(cells)
	return Result{
		Accepted: accepted,
		Rejected: rejected,
		Pruned:   g.Prune(),
	}
}

// Prune clears every occupied void cell that is neither supported from
// below nor 4-connected through occupied cells to a supported void cell.
// Bank and target-row cells are never cleared but do not anchor the void
// on their own.
//
// Postcondition: Returns the number of cleared cells. The result depends
// only on the current occupancy, so a second call returns 0.
func (g *Grid) Prune() int {
	keep := g.seedKeep()
	g.propagate(keep)

	cleared := 0
	l := g.layout
	for y := l.TargetRow() + 1; y < l.Rows; y++ {
		for x := l.GapStart; x <= l.GapEnd; x++ {
			if g.cells[y][x] && !keep[y][x] {
				g.cells[y][x] = false
				cleared++
			}
		}
	}
	return cleared
}

// seedKeep marks the occupied cells that are kept without any connectivity:
// bank cells, cells at or above the target row, cells resting on a block
// (or on the floor), and boundary cells touching the bank.
func (g *Grid) seedKeep() [][]bool {
	l := g.layout
	keep := make([][]bool, l.Rows)
	for y := range keep {
		keep[y] = make([]bool, l.Cols)
	}

	for y := 0; y < l.Rows; y++ {
		for x := 0; x < l.Cols; x++ {
			if !g.cells[y][x] {
				continue
			}
			switch {
			case !l.InVoid(x, y):
				keep[y][x] = true
			case y == l.Rows-1 || g.cells[y+1][x]:
				keep[y][x] = true
			case x == l.GapStart && g.Occupied(x-1, y):
				keep[y][x] = true
			case x == l.GapEnd && g.Occupied(x+1, y):
				keep[y][x] = true
			}
		}
	}
	return keep
}

// propagate extends keep to every occupied cell reachable from a kept void
// cell. The walk may cross bank cells.
func (g *Grid) propagate(keep [][]bool) {
	l := g.layout
	stack := make([]Cell, 0, l.Cols)
	for y := l.TargetRow() + 1; y < l.Rows; y++ {
		for x := l.GapStart; x <= l.GapEnd; x++ {
			if keep[y][x] {
				stack = append(stack, Cell{X: x, Y: y})
			}
		}
	}

	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, d := range directions {
			nx, ny := c.X+d[0], c.Y+d[1]
			if g.Occupied(nx, ny) && !keep[ny][nx] {
				keep[ny][nx] = true
				stack = append(stack, Cell{X: nx, Y: ny})
			}
		}
	}
}
