package knapping

import (
	"math/rand"
	"testing"

	"github.com/annel0/knapping/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindEnclosedWastePocketWalled(t *testing.T) {
	pattern := newTestPattern("ring", ringAround(7, 7, 8, 8)...)
	prot := pattern.Mask()
	occ := FullGrid()

	pocket := FindEnclosedWastePocket(vec.Vec2{X: 7, Y: 7}, &occ, &prot)
	require.Len(t, pocket, 4, "карман 2x2 должен быть найден целиком")
	for _, p := range []vec.Vec2{{X: 7, Y: 7}, {X: 8, Y: 7}, {X: 7, Y: 8}, {X: 8, Y: 8}} {
		assert.True(t, pocket.Has(p), "клетка %v должна входить в карман", p)
	}
}

func TestFindEnclosedWastePocketOpen(t *testing.T) {
	pattern := newTestPattern("ring", ringAround(7, 7, 8, 8)...)
	prot := pattern.Mask()
	occ := FullGrid()

	// Отход снаружи кольца выходит на границу сетки
	assert.Empty(t, FindEnclosedWastePocket(vec.Vec2{X: 2, Y: 2}, &occ, &prot))

	// Пустая клетка внутри кольца открывает карман
	occ.Set(vec.Vec2{X: 8, Y: 8}, false)
	assert.Empty(t, FindEnclosedWastePocket(vec.Vec2{X: 7, Y: 7}, &occ, &prot))
}

func TestFindEnclosedWastePocketProtectedStart(t *testing.T) {
	pattern := newTestPattern("dot", vec.Vec2{X: 5, Y: 5})
	prot := pattern.Mask()
	occ := FullGrid()

	assert.Empty(t, FindEnclosedWastePocket(vec.Vec2{X: 5, Y: 5}, &occ, &prot), "защищённая клетка не может быть карманом")
	assert.Empty(t, FindEnclosedWastePocket(vec.Vec2{X: 16, Y: 5}, &occ, &prot))
}

func TestFindEnclosedWastePocketNeverProtected(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	found := 0
	for i := 0; i < 200; i++ {
		occ := FullGrid()
		prot := randomGrid(rng, 0.55)
		start := vec.Vec2{X: 1 + rng.Intn(GridSize-2), Y: 1 + rng.Intn(GridSize-2)}

		pocket := FindEnclosedWastePocket(start, &occ, &prot)
		if len(pocket) > 0 {
			found++
		}
		for p := range pocket {
			assert.False(t, prot.Get(p), "карман не должен содержать защищённых клеток")
			assert.True(t, occ.Get(p))
		}
	}
	t.Logf("найдено замкнутых карманов: %d", found)
}
