package vec

import "math"

// Vec2 представляет 2D координаты клетки поверхности.
// Y соответствует оси Z рабочей поверхности (вид сверху).
type Vec2 struct {
	X, Y int
}

// Четыре ортогональных направления в порядке обхода BFS: +X, -X, +Z, -Z
var Directions4 = [4]Vec2{
	{X: 1, Y: 0},
	{X: -1, Y: 0},
	{X: 0, Y: 1},
	{X: 0, Y: -1},
}

// Add возвращает сумму векторов
func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{X: v.X + other.X, Y: v.Y + other.Y}
}

// Neighbors4 возвращает 4-связных соседей в фиксированном порядке.
// Соседи могут лежать за пределами сетки, проверка остаётся за вызывающим.
func (v Vec2) Neighbors4() [4]Vec2 {
	var out [4]Vec2
	for i, d := range Directions4 {
		out[i] = v.Add(d)
	}
	return out
}

// InSquare проверяет, что точка лежит в квадрате [0,size)×[0,size)
func (v Vec2) InSquare(size int) bool {
	return v.X >= 0 && v.Y >= 0 && v.X < size && v.Y < size
}

// Less задаёт порядок "по строкам" (сначала Y, затем X)
func (v Vec2) Less(other Vec2) bool {
	if v.Y != other.Y {
		return v.Y < other.Y
	}
	return v.X < other.X
}

// DistanceTo вычисляет расстояние до другой точки
func (v Vec2) DistanceTo(other Vec2) float64 {
	dx := float64(v.X - other.X)
	dy := float64(v.Y - other.Y)
	return math.Sqrt(dx*dx + dy*dy)
}
