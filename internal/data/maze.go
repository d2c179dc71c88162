package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mazeworks/mazeserver/internal/maze"
)

// mazeFile is the on-disk shape of maze_data.json. Positions are
// [x,y,z] triples; maze_layout is the blocking view as [z][y][x]
// booleans. Stairs are listed explicitly because the boolean layout
// cannot carry them.
type mazeFile struct {
	Layout [][][]bool `json:"maze_layout"`
	Coins  [][3]int   `json:"coin_positions"`
	Start  [3]int     `json:"start_position"`
	End    [3]int     `json:"end_position"`
	Stairs [][3]int   `json:"stair_positions"`
}

func mazePath(dir string) string {
	return filepath.Join(dir, "maze_data.json")
}

// SaveMaze writes the grid snapshot to maze_data.json.
func SaveMaze(dir string, g *maze.Grid) error {
	f := mazeFile{
		Layout: g.Layout(),
		Coins:  toTriples(g.Coins),
		Start:  [3]int{g.StartPos.X, g.StartPos.Y, g.StartPos.Z},
		End:    [3]int{g.EndPos.X, g.EndPos.Y, g.EndPos.Z},
		Stairs: toTriples(g.StairPairs()),
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding maze: %w", err)
	}
	return writeFileAtomic(mazePath(dir), raw)
}

// LoadMaze reads maze_data.json. os.IsNotExist on the returned error
// distinguishes a missing file from a corrupt one.
func LoadMaze(dir string) (*maze.Grid, error) {
	raw, err := os.ReadFile(mazePath(dir))
	if err != nil {
		return nil, err
	}

	var f mazeFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", mazePath(dir), err)
	}

	g, err := maze.FromLayout(f.Layout, toPosition(f.Start), toPosition(f.End),
		fromTriples(f.Coins), fromTriples(f.Stairs))
	if err != nil {
		return nil, fmt.Errorf("rebuilding maze from %s: %w", mazePath(dir), err)
	}
	return g, nil
}

func toTriples(ps []maze.Position) [][3]int {
	out := make([][3]int, len(ps))
	for i, p := range ps {
		out[i] = [3]int{p.X, p.Y, p.Z}
	}
	return out
}

func fromTriples(ts [][3]int) []maze.Position {
	out := make([]maze.Position, len(ts))
	for i, t := range ts {
		out[i] = toPosition(t)
	}
	return out
}

func toPosition(t [3]int) maze.Position {
	return maze.Position{X: t[0], Y: t[1], Z: t[2]}
}
