package knapping

import (
	"math/rand"
	"testing"

	"github.com/annel0/knapping/internal/vec"
	"github.com/stretchr/testify/assert"
)

func TestGridBounds(t *testing.T) {
	g := FullGrid()

	assert.Equal(t, GridSize*GridSize, g.Count(), "полная сетка должна быть заполнена")
	assert.False(t, g.Get(vec.Vec2{X: -1, Y: 0}), "чтение за сеткой должно возвращать false")
	assert.False(t, g.Get(vec.Vec2{X: 0, Y: GridSize}), "чтение за сеткой должно возвращать false")

	// Запись за пределами игнорируется без паники
	g.Set(vec.Vec2{X: GridSize, Y: 3}, false)
	assert.Equal(t, GridSize*GridSize, g.Count())

	g.Set(vec.Vec2{X: 2, Y: 3}, false)
	assert.False(t, g.Get(vec.Vec2{X: 2, Y: 3}))
	assert.Equal(t, GridSize*GridSize-1, g.Count())
}

func TestGridPackUnpack(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	g := randomGrid(rng, 0.5)

	restored := UnpackGrid(g.Pack())
	assert.Equal(t, g, restored, "упаковка должна быть обратимой")
}

func TestGridRows(t *testing.T) {
	var g Grid
	g.Set(vec.Vec2{X: 0, Y: 0}, true)
	g.Set(vec.Vec2{X: 15, Y: 1}, true)

	rows := g.Rows('#', '.')
	assert.Len(t, rows, GridSize)
	assert.Equal(t, "#...............", rows[0])
	assert.Equal(t, "...............#", rows[1])
}

func TestCellSetSorted(t *testing.T) {
	s := CellSet{}
	s.Add(vec.Vec2{X: 3, Y: 1})
	s.Add(vec.Vec2{X: 1, Y: 2})
	s.Add(vec.Vec2{X: 0, Y: 1})

	assert.Equal(t, []vec.Vec2{{X: 0, Y: 1}, {X: 3, Y: 1}, {X: 1, Y: 2}}, s.Sorted())
	assert.True(t, s.Has(vec.Vec2{X: 1, Y: 2}))
	assert.False(t, s.Has(vec.Vec2{X: 2, Y: 2}))
}
