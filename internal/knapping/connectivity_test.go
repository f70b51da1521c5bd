package knapping

import (
	"math/rand"
	"testing"

	"github.com/annel0/knapping/internal/vec"
	"github.com/stretchr/testify/assert"
)

func TestRemoveDisconnectedDebris(t *testing.T) {
	var occ, prot Grid

	// Форма и примыкающий отход
	prot.Set(vec.Vec2{X: 2, Y: 2}, true)
	occ.Set(vec.Vec2{X: 2, Y: 2}, true)
	occ.Set(vec.Vec2{X: 3, Y: 2}, true)

	// Оторванный кусок
	occ.Set(vec.Vec2{X: 10, Y: 10}, true)
	occ.Set(vec.Vec2{X: 10, Y: 11}, true)

	removed := RemoveDisconnected(&occ, &prot)
	assert.Equal(t, 2, removed)
	assert.True(t, occ.Get(vec.Vec2{X: 3, Y: 2}), "связанный отход должен остаться")
	assert.False(t, occ.Get(vec.Vec2{X: 10, Y: 10}))
	assert.False(t, occ.Get(vec.Vec2{X: 10, Y: 11}))
}

func TestRemoveDisconnectedDiagonalIsNotConnected(t *testing.T) {
	var occ, prot Grid
	prot.Set(vec.Vec2{X: 5, Y: 5}, true)
	occ.Set(vec.Vec2{X: 5, Y: 5}, true)
	occ.Set(vec.Vec2{X: 6, Y: 6}, true)

	assert.Equal(t, 1, RemoveDisconnected(&occ, &prot), "диагональ не считается связью")
}

func TestRemoveDisconnectedNoAnchors(t *testing.T) {
	occ := FullGrid()
	var prot Grid

	assert.Equal(t, 0, RemoveDisconnected(&occ, &prot), "без формы очистка ничего не трогает")
	assert.Equal(t, GridSize*GridSize, occ.Count())
}

func TestRemoveDisconnectedIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(5))

	for i := 0; i < 100; i++ {
		occ := randomGrid(rng, 0.6)
		prot := randomGrid(rng, 0.1)

		RemoveDisconnected(&occ, &prot)
		snapshot := occ
		assert.Equal(t, 0, RemoveDisconnected(&occ, &prot), "повторная очистка не должна ничего удалять")
		assert.Equal(t, snapshot, occ)
	}
}
