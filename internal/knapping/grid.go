package knapping

import (
	"sort"
	"strings"

	"github.com/annel0/knapping/internal/vec"
)

// GridSize размер рабочей поверхности по обеим осям
const GridSize = 16

// Grid представляет булеву сетку 16x16, индексируемую [x][z].
// Чтение за пределами сетки возвращает false, запись игнорируется.
type Grid [GridSize][GridSize]bool

// InBounds проверяет, что клетка лежит внутри поверхности
func InBounds(p vec.Vec2) bool {
	return p.InSquare(GridSize)
}

// FullGrid возвращает сетку, в которой заняты все клетки
func FullGrid() Grid {
	var g Grid
	for x := 0; x < GridSize; x++ {
		for z := 0; z < GridSize; z++ {
			g[x][z] = true
		}
	}
	return g
}

// Get возвращает значение клетки
func (g *Grid) Get(p vec.Vec2) bool {
	if !InBounds(p) {
		return false
	}
	return g[p.X][p.Y]
}

// Set устанавливает значение клетки
func (g *Grid) Set(p vec.Vec2, value bool) {
	if !InBounds(p) {
		return
	}
	g[p.X][p.Y] = value
}

// Count возвращает количество установленных клеток
func (g *Grid) Count() int {
	n := 0
	for x := 0; x < GridSize; x++ {
		for z := 0; z < GridSize; z++ {
			if g[x][z] {
				n++
			}
		}
	}
	return n
}

// Pack упаковывает сетку в 16 строк по 16 бит (бит x строки z)
func (g *Grid) Pack() [GridSize]uint16 {
	var rows [GridSize]uint16
	for z := 0; z < GridSize; z++ {
		for x := 0; x < GridSize; x++ {
			if g[x][z] {
				rows[z] |= 1 << uint(x)
			}
		}
	}
	return rows
}

// UnpackGrid восстанавливает сетку из упакованного представления
func UnpackGrid(rows [GridSize]uint16) Grid {
	var g Grid
	for z := 0; z < GridSize; z++ {
		for x := 0; x < GridSize; x++ {
			g[x][z] = rows[z]&(1<<uint(x)) != 0
		}
	}
	return g
}

// Rows возвращает текстовое представление сетки построчно:
// set для установленной клетки, unset для пустой.
func (g *Grid) Rows(set, unset byte) []string {
	out := make([]string, GridSize)
	var sb strings.Builder
	for z := 0; z < GridSize; z++ {
		sb.Reset()
		for x := 0; x < GridSize; x++ {
			if g[x][z] {
				sb.WriteByte(set)
			} else {
				sb.WriteByte(unset)
			}
		}
		out[z] = sb.String()
	}
	return out
}

// CellSet множество клеток поверхности
type CellSet map[vec.Vec2]struct{}

// Add добавляет клетку во множество
func (s CellSet) Add(p vec.Vec2) {
	s[p] = struct{}{}
}

// Has проверяет наличие клетки
func (s CellSet) Has(p vec.Vec2) bool {
	_, ok := s[p]
	return ok
}

// Sorted возвращает клетки множества в детерминированном порядке
func (s CellSet) Sorted() []vec.Vec2 {
	out := make([]vec.Vec2, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
