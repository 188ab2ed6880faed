// Package grid holds the shared occupancy grid of a bridge room and the
// support rule that prunes unsupported blocks from the void.
package grid

import (
	"errors"
	"fmt"
	"strings"
)

// Default dimensions of the bridge board.
const (
	DefaultCols = 20
	DefaultRows = 18
)

// Layout describes the geometry of a bridge board.
type Layout struct {
	// Cols is the board width.
	Cols int
	// Rows is the board height.
	Rows int
	// GapStart is the first column of the chasm (inclusive).
	GapStart int
	// GapEnd is the last column of the chasm (inclusive).
	GapEnd int
}

// DefaultLayout returns the 20x18 board with the chasm spanning columns 4..15.
func DefaultLayout() Layout {
	return NewLayout(DefaultCols, DefaultRows)
}

// NewLayout returns a layout of the given size with the chasm leaving four
// columns of bank on the left and four on the right.
//
// Precondition: cols >= 9.
func NewLayout(cols, rows int) Layout {
	return Layout{
		Cols:     cols,
		Rows:     rows,
		GapStart: 4,
		GapEnd:   cols - 5,
	}
}

// TargetRow is the row that must be filled across the gap to complete the bridge.
func (l Layout) TargetRow() int {
	return l.Rows/2 + 1
}

// InBounds reports whether (x, y) lies on the board.
func (l Layout) InBounds(x, y int) bool {
	return x >= 0 && x < l.Cols && y >= 0 && y < l.Rows
}

// InGap reports whether column x lies within the chasm.
func (l Layout) InGap(x int) bool {
	return x >= l.GapStart && x <= l.GapEnd
}

// InVoid reports whether (x, y) is below the target row and inside the chasm.
func (l Layout) InVoid(x, y int) bool {
	return y > l.TargetRow() && l.InGap(x)
}

// Forbidden reports whether (x, y) is on the bottom row of the chasm, where
// blocks may never be placed.
func (l Layout) Forbidden(x, y int) bool {
	return y == l.Rows-1 && l.InGap(x)
}

// Validate checks the layout geometry.
//
// Postcondition: Returns nil if the layout is usable, or an error describing all violations.
func (l Layout) Validate() error {
	var errs []string
	if l.Cols < 3 {
		errs = append(errs, fmt.Sprintf("cols must be >= 3, got %d", l.Cols))
	}
	if l.Rows < 3 {
		errs = append(errs, fmt.Sprintf("rows must be >= 3, got %d", l.Rows))
	}
	if l.GapStart < 0 || l.GapEnd >= l.Cols || l.GapStart > l.GapEnd {
		errs = append(errs, fmt.Sprintf("gap [%d, %d] must satisfy 0 <= gap_start <= gap_end < cols (%d)", l.GapStart, l.GapEnd, l.Cols))
	}
	if l.Rows >= 3 && l.TargetRow() >= l.Rows-1 {
		errs = append(errs, fmt.Sprintf("target row %d leaves no void above the bottom row", l.TargetRow()))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
