// Package maze holds the multi-layer maze model: cell grid, stair
// pairs between layers, start/end markers and the coin pool layout.
package maze

import "fmt"

// Cell is one unit of the maze grid.
type Cell uint8

const (
	Wall Cell = iota
	Path
	StairUp
	StairDown
	Start
	End
	Coin
)

func (c Cell) String() string {
	switch c {
	case Wall:
		return "WALL"
	case Path:
		return "PATH"
	case StairUp:
		return "STAIR_UP"
	case StairDown:
		return "STAIR_DOWN"
	case Start:
		return "START"
	case End:
		return "END"
	case Coin:
		return "COIN"
	default:
		return fmt.Sprintf("Cell(%d)", uint8(c))
	}
}

// Blocking reports whether the cell cannot be walked through.
// Everything except a wall is traversable.
func (c Cell) Blocking() bool {
	return c == Wall
}

// Position is an integer cell coordinate. Z is the layer axis.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Grid is a W×H×L maze indexed cells[z][y][x].
type Grid struct {
	Width  int
	Height int
	Layers int

	cells [][][]Cell

	StartPos Position
	EndPos   Position
	Coins    []Position
}

// NewGrid allocates an all-wall grid of the given dimensions.
func NewGrid(width, height, layers int) *Grid {
	cells := make([][][]Cell, layers)
	for z := range cells {
		cells[z] = make([][]Cell, height)
		for y := range cells[z] {
			cells[z][y] = make([]Cell, width)
		}
	}
	return &Grid{Width: width, Height: height, Layers: layers, cells: cells}
}

// InBounds reports whether (x,y,z) lies inside the grid.
func (g *Grid) InBounds(x, y, z int) bool {
	return x >= 0 && x < g.Width && y >= 0 && y < g.Height && z >= 0 && z < g.Layers
}

// At returns the cell at (x,y,z). Out-of-bounds reads as Wall.
func (g *Grid) At(x, y, z int) Cell {
	if !g.InBounds(x, y, z) {
		return Wall
	}
	return g.cells[z][y][x]
}

// Set overwrites the cell at (x,y,z). Out-of-bounds is a no-op.
func (g *Grid) Set(x, y, z int, c Cell) {
	if !g.InBounds(x, y, z) {
		return
	}
	g.cells[z][y][x] = c
}

// Walkable reports whether the cell at (x,y,z) is in bounds and not
// blocking.
func (g *Grid) Walkable(x, y, z int) bool {
	return g.InBounds(x, y, z) && !g.At(x, y, z).Blocking()
}

// CanAscend reports whether a player standing at (x,y,z) may step to
// layer z+1. Layer changes are only allowed through a stair pair.
func (g *Grid) CanAscend(x, y, z int) bool {
	return g.At(x, y, z) == StairUp && g.Walkable(x, y, z+1)
}

// CanDescend reports whether a player standing at (x,y,z) may step to
// layer z-1.
func (g *Grid) CanDescend(x, y, z int) bool {
	return g.At(x, y, z) == StairDown && g.Walkable(x, y, z-1)
}

// Layout returns the blocking view as [z][y][x] booleans, true for
// walls. This is the shape the wire format and the save file use.
func (g *Grid) Layout() [][][]bool {
	out := make([][][]bool, g.Layers)
	for z := 0; z < g.Layers; z++ {
		out[z] = make([][]bool, g.Height)
		for y := 0; y < g.Height; y++ {
			out[z][y] = make([]bool, g.Width)
			for x := 0; x < g.Width; x++ {
				out[z][y][x] = g.cells[z][y][x].Blocking()
			}
		}
	}
	return out
}

// StairPairs returns the lower cell of every stair pair: the StairUp
// at (x,y,z) paired with a StairDown at (x,y,z+1).
func (g *Grid) StairPairs() []Position {
	var out []Position
	for z := 0; z < g.Layers-1; z++ {
		for y := 0; y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				if g.cells[z][y][x] == StairUp {
					out = append(out, Position{X: x, Y: y, Z: z})
				}
			}
		}
	}
	return out
}

// FromLayout rebuilds a grid from a blocking view plus the marker
// positions a save file carries. Wall bits map to Wall, everything
// else to Path; stairs, start, end and coin markers are then
// reapplied. Each stair entry names the lower cell of a pair.
func FromLayout(layout [][][]bool, start, end Position, coins, stairs []Position) (*Grid, error) {
	if len(layout) == 0 || len(layout[0]) == 0 || len(layout[0][0]) == 0 {
		return nil, fmt.Errorf("empty maze layout")
	}
	layers := len(layout)
	height := len(layout[0])
	width := len(layout[0][0])

	g := NewGrid(width, height, layers)
	for z := 0; z < layers; z++ {
		if len(layout[z]) != height {
			return nil, fmt.Errorf("ragged maze layout at layer %d", z)
		}
		for y := 0; y < height; y++ {
			if len(layout[z][y]) != width {
				return nil, fmt.Errorf("ragged maze layout at layer %d row %d", z, y)
			}
			for x := 0; x < width; x++ {
				if layout[z][y][x] {
					g.cells[z][y][x] = Wall
				} else {
					g.cells[z][y][x] = Path
				}
			}
		}
	}

	if !g.Walkable(start.X, start.Y, start.Z) {
		return nil, fmt.Errorf("start position %v is blocked", start)
	}
	if !g.Walkable(end.X, end.Y, end.Z) {
		return nil, fmt.Errorf("end position %v is blocked", end)
	}
	for _, p := range stairs {
		if !g.InBounds(p.X, p.Y, p.Z+1) {
			return nil, fmt.Errorf("stair pair %v has no upper layer", p)
		}
		if !g.Walkable(p.X, p.Y, p.Z) || !g.Walkable(p.X, p.Y, p.Z+1) {
			return nil, fmt.Errorf("stair pair %v is blocked", p)
		}
		g.Set(p.X, p.Y, p.Z, StairUp)
		g.Set(p.X, p.Y, p.Z+1, StairDown)
	}

	g.Set(start.X, start.Y, start.Z, Start)
	g.Set(end.X, end.Y, end.Z, End)
	g.StartPos = start
	g.EndPos = end

	for _, p := range coins {
		if !g.Walkable(p.X, p.Y, p.Z) {
			return nil, fmt.Errorf("coin position %v is blocked", p)
		}
		if g.At(p.X, p.Y, p.Z) == Path {
			g.Set(p.X, p.Y, p.Z, Coin)
		}
	}
	g.Coins = append([]Position(nil), coins...)

	return g, nil
}
