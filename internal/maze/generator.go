package maze

import "math/rand"

// Generate builds a fresh maze: recursive division on each layer,
// stair pairs between adjacent layers, start on layer 0, end at the
// farthest path cell of the top layer, and 100-120 coins scattered on
// path cells.
func Generate(width, height, layers int, rng *rand.Rand) *Grid {
	g := NewGrid(width, height, layers)

	for z := 0; z < layers; z++ {
		carveLayer(g, z, rng)
	}
	addStairs(g, rng)
	placeStartAndEnd(g, rng)
	scatterCoins(g, rng)

	return g
}

// carveLayer opens the interior of one layer and walls it back up with
// recursive division. The outer shell stays solid.
func carveLayer(g *Grid, z int, rng *rand.Rand) {
	for y := 1; y < g.Height-1; y++ {
		for x := 1; x < g.Width-1; x++ {
			g.cells[z][y][x] = Path
		}
	}
	divide(g, z, 1, g.Width-2, 1, g.Height-2, true, rng)
}

// divide splits the region [minX,maxX]×[minY,maxY] with one wall line
// on an odd coordinate, opens a single door in it, and recurses into
// both halves with the orientation flipped.
func divide(g *Grid, z, minX, maxX, minY, maxY int, horizontal bool, rng *rand.Rand) {
	if maxX-minX < 2 || maxY-minY < 2 {
		return
	}

	if horizontal {
		rangeY := (maxY-minY)/2 - 1
		if rangeY <= 0 {
			return
		}
		wallY := minY + 2*rng.Intn(rangeY) + 1
		for x := minX; x <= maxX; x++ {
			g.Set(x, wallY, z, Wall)
		}
		rangeX := (maxX - minX) / 2
		if rangeX <= 0 {
			return
		}
		doorX := minX + 2*rng.Intn(rangeX) + 1
		g.Set(doorX, wallY, z, Path)

		divide(g, z, minX, maxX, minY, wallY-1, !horizontal, rng)
		divide(g, z, minX, maxX, wallY+1, maxY, !horizontal, rng)
	} else {
		rangeX := (maxX-minX)/2 - 1
		if rangeX <= 0 {
			return
		}
		wallX := minX + 2*rng.Intn(rangeX) + 1
		for y := minY; y <= maxY; y++ {
			g.Set(wallX, y, z, Wall)
		}
		rangeY := (maxY - minY) / 2
		if rangeY <= 0 {
			return
		}
		doorY := minY + 2*rng.Intn(rangeY) + 1
		g.Set(wallX, doorY, z, Path)

		divide(g, z, minX, wallX-1, minY, maxY, !horizontal, rng)
		divide(g, z, wallX+1, maxX, minY, maxY, !horizontal, rng)
	}
}

// addStairs links each pair of adjacent layers with 2-3 stair pairs
// placed where both layers are open.
func addStairs(g *Grid, rng *rand.Rand) {
	for z := 0; z < g.Layers-1; z++ {
		count := 2 + rng.Intn(2)
		for i := 0; i < count; i++ {
			for attempt := 0; attempt < 100; attempt++ {
				x := 1 + rng.Intn(g.Width-2)
				y := 1 + rng.Intn(g.Height-2)
				if g.At(x, y, z) == Path && g.At(x, y, z+1) == Path {
					g.Set(x, y, z, StairUp)
					g.Set(x, y, z+1, StairDown)
					break
				}
			}
		}
	}
}

func placeStartAndEnd(g *Grid, rng *rand.Rand) {
	start, ok := randomPathCell(g, 0, rng)
	if !ok {
		start = Position{X: 1, Y: 1, Z: 0}
	}
	g.Set(start.X, start.Y, start.Z, Start)
	g.StartPos = start

	end := farthestPathCell(g, g.Layers-1, start)
	g.Set(end.X, end.Y, end.Z, End)
	g.EndPos = end
}

// randomPathCell picks a uniformly random Path cell on the given
// layer, falling back to a scan when random probing misses.
func randomPathCell(g *Grid, z int, rng *rand.Rand) (Position, bool) {
	for attempt := 0; attempt < 100; attempt++ {
		x := 1 + rng.Intn(g.Width-2)
		y := 1 + rng.Intn(g.Height-2)
		if g.At(x, y, z) == Path {
			return Position{X: x, Y: y, Z: z}, true
		}
	}
	for y := 1; y < g.Height-1; y++ {
		for x := 1; x < g.Width-1; x++ {
			if g.At(x, y, z) == Path {
				return Position{X: x, Y: y, Z: z}, true
			}
		}
	}
	return Position{}, false
}

// farthestPathCell returns the Path cell on the given layer with the
// greatest Manhattan distance from the reference position.
func farthestPathCell(g *Grid, z int, from Position) Position {
	best := Position{X: 1, Y: 1, Z: z}
	bestDist := -1
	for y := 1; y < g.Height-1; y++ {
		for x := 1; x < g.Width-1; x++ {
			if g.At(x, y, z) != Path {
				continue
			}
			d := abs(x-from.X) + abs(y-from.Y) + abs(z-from.Z)
			if d > bestDist {
				bestDist = d
				best = Position{X: x, Y: y, Z: z}
			}
		}
	}
	return best
}

// scatterCoins marks 100-120 Path cells as coins and records their
// positions in placement order.
func scatterCoins(g *Grid, rng *rand.Rand) {
	target := 100 + rng.Intn(21)
	placed := 0
	for attempt := 0; attempt < 10000 && placed < target; attempt++ {
		x := 1 + rng.Intn(g.Width-2)
		y := 1 + rng.Intn(g.Height-2)
		z := rng.Intn(g.Layers)
		if g.At(x, y, z) != Path {
			continue
		}
		g.Set(x, y, z, Coin)
		g.Coins = append(g.Coins, Position{X: x, Y: y, Z: z})
		placed++
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
