package knapping

import "github.com/annel0/knapping/internal/vec"

// RemoveDisconnected удаляет обломки: занятые клетки, не связанные 4-связностью
// ни с одной уцелевшей клеткой формы. Возвращает число удалённых клеток.
// Если от формы не осталось ни одной клетки, поверхность не трогается.
func RemoveDisconnected(occupancy, protection *Grid) int {
	var reached Grid
	var stack []vec.Vec2

	for x := 0; x < GridSize; x++ {
		for z := 0; z < GridSize; z++ {
			if occupancy[x][z] && protection[x][z] {
				reached[x][z] = true
				stack = append(stack, vec.Vec2{X: x, Y: z})
			}
		}
	}
	if len(stack) == 0 {
		return 0
	}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, n := range cur.Neighbors4() {
			if !occupancy.Get(n) || reached.Get(n) {
				continue
			}
			reached.Set(n, true)
			stack = append(stack, n)
		}
	}

	removed := 0
	for x := 0; x < GridSize; x++ {
		for z := 0; z < GridSize; z++ {
			if occupancy[x][z] && !reached[x][z] {
				occupancy[x][z] = false
				removed++
			}
		}
	}
	return removed
}
