package knapping

import "github.com/annel0/knapping/internal/vec"

// IsBoundary определяет, является ли занятая клетка краевой.
// Клетка краевая, если хотя бы один 4-сосед лежит за пределами сетки
// или пуст. Пустой сосед покрывает и "виртуальный край" у уже вырезанной
// полости шаблона, поэтому работа может идти внутрь вокруг таких полостей.
// Пустая клетка краевой не бывает.
func IsBoundary(p vec.Vec2, occupancy, protection *Grid) bool {
	if !occupancy.Get(p) {
		return false
	}

	for _, n := range p.Neighbors4() {
		if !InBounds(n) || !occupancy.Get(n) {
			return true
		}
	}
	return false
}
