package gameserver

import "math"

// validMovePayload sanity-checks a client-submitted position before
// it reaches the engine: every coordinate finite, and within one cell
// of the maze bounds. The engine does the real walkability check.
func validMovePayload(req moveRequest, width, height, layers int) bool {
	for _, v := range [...]float64{req.Position.X, req.Position.Y, req.Position.Z, req.Rotation} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	if req.Position.X < -1 || req.Position.X > float64(width) {
		return false
	}
	if req.Position.Y < -1 || req.Position.Y > float64(height) {
		return false
	}
	if req.Position.Z < -1 || req.Position.Z > float64(layers) {
		return false
	}
	return true
}
