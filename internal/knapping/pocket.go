package knapping

import "github.com/annel0/knapping/internal/vec"

// FindEnclosedWastePocket ищет полностью замкнутый карман отхода вокруг точки удара.
// Заливка идёт только по занятым незащищённым клеткам, защищённые клетки служат стенами.
// Выход за сетку или на пустую клетку помечает карман открытым, но заливка
// продолжается до конца. Открытый карман даёт пустой результат.
func FindEnclosedWastePocket(start vec.Vec2, occupancy, protection *Grid) CellSet {
	if !InBounds(start) || !occupancy.Get(start) || protection.Get(start) {
		return nil
	}

	pocket := CellSet{}
	pocket.Add(start)
	open := false

	stack := []vec.Vec2{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, n := range cur.Neighbors4() {
			if !InBounds(n) || !occupancy.Get(n) {
				open = true
				continue
			}
			if protection.Get(n) || pocket.Has(n) {
				continue
			}
			pocket.Add(n)
			stack = append(stack, n)
		}
	}

	if open {
		return nil
	}
	return pocket
}
