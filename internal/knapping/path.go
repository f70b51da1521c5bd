package knapping

import "github.com/annel0/knapping/internal/vec"

// FindPathToBoundary ищет кратчайший 4-связный путь по занятым клеткам
// от точки удара до ближайшей краевой клетки (BFS).
// Стартовая клетка краевой не проверяется. Путь включает обе конечные точки.
// Пустой результат означает, что край недостижим.
func FindPathToBoundary(start vec.Vec2, occupancy, protection *Grid) []vec.Vec2 {
	if !InBounds(start) || !occupancy.Get(start) {
		return nil
	}

	parent := make(map[vec.Vec2]vec.Vec2)
	visited := make(map[vec.Vec2]bool, GridSize*GridSize)
	visited[start] = true

	queue := []vec.Vec2{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur != start && IsBoundary(cur, occupancy, protection) {
			return rebuildPath(parent, start, cur)
		}

		for _, n := range cur.Neighbors4() {
			if visited[n] || !InBounds(n) || !occupancy.Get(n) {
				continue
			}
			visited[n] = true
			parent[n] = cur
			queue = append(queue, n)
		}
	}

	return nil
}

// rebuildPath восстанавливает путь по цепочке родителей
func rebuildPath(parent map[vec.Vec2]vec.Vec2, start, end vec.Vec2) []vec.Vec2 {
	var reversed []vec.Vec2
	for cur := end; ; cur = parent[cur] {
		reversed = append(reversed, cur)
		if cur == start {
			break
		}
	}

	path := make([]vec.Vec2, len(reversed))
	for i, p := range reversed {
		path[len(reversed)-1-i] = p
	}
	return path
}
