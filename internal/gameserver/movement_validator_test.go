package gameserver

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mazeworks/mazeserver/internal/game"
)

func TestValidMovePayload(t *testing.T) {
	tests := []struct {
		name string
		pos  game.Position
		rot  float64
		want bool
	}{
		{"inside", game.Position{X: 5, Y: 5, Z: 1}, 1.5, true},
		{"edge of bounds", game.Position{X: -1, Y: 0, Z: 0}, 0, true},
		{"nan x", game.Position{X: math.NaN(), Y: 1, Z: 0}, 0, false},
		{"inf rotation", game.Position{X: 1, Y: 1, Z: 0}, math.Inf(1), false},
		{"x far out", game.Position{X: 500, Y: 1, Z: 0}, 0, false},
		{"y negative", game.Position{X: 1, Y: -2, Z: 0}, 0, false},
		{"z above top", game.Position{X: 1, Y: 1, Z: 9}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := validMovePayload(moveRequest{Position: tt.pos, Rotation: tt.rot}, 50, 50, 7)
			assert.Equal(t, tt.want, got)
		})
	}
}
