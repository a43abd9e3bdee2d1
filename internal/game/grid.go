package game

import (
	"errors"
	"math/rand/v2"
)

const (
	MinGridSize     = 4
	MaxGridSize     = 8
	ClassicGridSize = 4 // only classic boards score and pay out
	WinningValue    = 2048
)

var ErrInvalidGridSize = errors.New("grid size must be between 4 and 8")

// Position is a cell coordinate. The JSON names match the persisted progress
// format where x is the row and y the column.
type Position struct {
	Row int `json:"x"`
	Col int `json:"y"`
}

// Tile is a numbered block sitting on the board.
type Tile struct {
	Value    int      `json:"value"`
	Position Position `json:"position"`
}

// Grid is a row-major square board. A nil cell is empty.
type Grid [][]*Tile

// Rand is the randomness a spawn pass needs. *rand.Rand satisfies it.
type Rand interface {
	IntN(n int) int
	Float64() float64
}

type defaultRand struct{}

func (defaultRand) IntN(n int) int   { return rand.IntN(n) }
func (defaultRand) Float64() float64 { return rand.Float64() }

// DefaultRand draws from the goroutine-safe top-level math/rand/v2 source.
var DefaultRand Rand = defaultRand{}

// ValidGridSize reports whether n is an allowed board size.
func ValidGridSize(n int) bool {
	return n >= MinGridSize && n <= MaxGridSize
}

// NewGrid returns an empty n×n board.
func NewGrid(n int) Grid {
	g := make(Grid, n)
	for i := range g {
		g[i] = make([]*Tile, n)
	}
	return g
}

func (g Grid) Size() int { return len(g) }

// Clone deep-copies the board so callers can mutate tiles freely.
func (g Grid) Clone() Grid {
	if g == nil {
		return nil
	}
	out := make(Grid, len(g))
	for r, row := range g {
		out[r] = make([]*Tile, len(row))
		for c, t := range row {
			if t != nil {
				cp := *t
				out[r][c] = &cp
			}
		}
	}
	return out
}

// Equal compares cell values only.
func (g Grid) Equal(o Grid) bool {
	if len(g) != len(o) {
		return false
	}
	for r := range g {
		if len(g[r]) != len(o[r]) {
			return false
		}
		for c := range g[r] {
			a, b := g[r][c], o[r][c]
			if (a == nil) != (b == nil) {
				return false
			}
			if a != nil && a.Value != b.Value {
				return false
			}
		}
	}
	return true
}

// Values flattens the board to plain numbers, 0 for empty cells.
func (g Grid) Values() [][]int {
	out := make([][]int, len(g))
	for r, row := range g {
		out[r] = make([]int, len(row))
		for c, t := range row {
			if t != nil {
				out[r][c] = t.Value
			}
		}
	}
	return out
}

// FromValues builds a board from plain numbers; 0 marks an empty cell.
func FromValues(values [][]int) Grid {
	g := NewGrid(len(values))
	for r, row := range values {
		for c, v := range row {
			if v != 0 {
				g.set(Position{Row: r, Col: c}, &Tile{Value: v})
			}
		}
	}
	return g
}

func (g Grid) at(p Position) *Tile { return g[p.Row][p.Col] }

func (g Grid) set(p Position, t *Tile) {
	if t != nil {
		t.Position = p
	}
	g[p.Row][p.Col] = t
}

// EmptyCells lists free positions in row-major order.
func (g Grid) EmptyCells() []Position {
	var cells []Position
	for r, row := range g {
		for c, t := range row {
			if t == nil {
				cells = append(cells, Position{Row: r, Col: c})
			}
		}
	}
	return cells
}

// Spawn places up to count new tiles on distinct empty cells chosen uniformly
// at random. Each new tile is a 2 with probability 0.9, otherwise a 4.
func Spawn(g Grid, count int, rng Rand) Grid {
	if rng == nil {
		rng = DefaultRand
	}
	out := g.Clone()
	empty := out.EmptyCells()
	for i := 0; i < count && len(empty) > 0; i++ {
		k := rng.IntN(len(empty))
		value := 2
		if rng.Float64() >= 0.9 {
			value = 4
		}
		out.set(empty[k], &Tile{Value: value})
		empty = append(empty[:k], empty[k+1:]...)
	}
	return out
}

// SpawnCount is how many tiles a changed move adds on a board of size n.
func SpawnCount(n int) int {
	if n < MinGridSize {
		return 1
	}
	return 1 << (n - MinGridSize)
}

// Move slides every tile toward the edge named by dir and merges equal
// neighbours. The input grid is left untouched.
func Move(g Grid, dir Direction) (Grid, int, bool) {
	n := g.Size()
	out := g.Clone()
	score := 0

	for line := 0; line < n; line++ {
		cells := lineCells(n, dir, line)
		merged := -1
		for i := 1; i < n; i++ {
			t := out.at(cells[i])
			if t == nil {
				continue
			}
			cur := i
			for cur > 0 {
				prev := out.at(cells[cur-1])
				if prev == nil {
					out.set(cells[cur-1], t)
					out.set(cells[cur], nil)
					cur--
					continue
				}
				// a cell that already absorbed a tile this call stays closed
				if prev.Value == t.Value && cur-1 != merged {
					prev.Value *= 2
					score += prev.Value
					out.set(cells[cur], nil)
					merged = cur - 1
				}
				break
			}
		}
	}

	return out, score, !out.Equal(g)
}

// lineCells returns the cells of one row or column ordered from the
// destination edge inward.
func lineCells(n int, dir Direction, line int) []Position {
	cells := make([]Position, n)
	for i := 0; i < n; i++ {
		switch dir {
		case Left:
			cells[i] = Position{Row: line, Col: i}
		case Right:
			cells[i] = Position{Row: line, Col: n - 1 - i}
		case Up:
			cells[i] = Position{Row: i, Col: line}
		case Down:
			cells[i] = Position{Row: n - 1 - i, Col: line}
		}
	}
	return cells
}

// HighestValue returns the largest tile, or 0 on an empty board.
func HighestValue(g Grid) int {
	best := 0
	for _, row := range g {
		for _, t := range row {
			if t != nil && t.Value > best {
				best = t.Value
			}
		}
	}
	return best
}

func HasValue(g Grid, target int) bool {
	for _, row := range g {
		for _, t := range row {
			if t != nil && t.Value == target {
				return true
			}
		}
	}
	return false
}

// HasTerminalState reports a full board where no two horizontally or
// vertically adjacent tiles share a value.
func HasTerminalState(g Grid) bool {
	n := g.Size()
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			if g[r][c] == nil {
				return false
			}
		}
	}
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			v := g[r][c].Value
			if c+1 < n && g[r][c+1].Value == v {
				return false
			}
			if r+1 < n && g[r+1][c].Value == v {
				return false
			}
		}
	}
	return true
}
