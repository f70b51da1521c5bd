package knapping

import "github.com/annel0/knapping/internal/vec"

// SurfaceID стабильный идентификатор сессии обработки
type SurfaceID string

// Surface хранит состояние одной заготовки: занятость клеток
// и неизменяемую маску защиты, полученную из шаблона.
type Surface struct {
	ID        SurfaceID
	Pattern   string
	Occupancy Grid

	protection Grid
	destroyed  bool
	completed  bool
}

// NewSurface создаёт полностью заполненную заготовку под шаблон
func NewSurface(id SurfaceID, pattern *Pattern) *Surface {
	s := &Surface{
		ID:         id,
		Occupancy:  FullGrid(),
		protection: pattern.Mask(),
	}
	if pattern != nil {
		s.Pattern = pattern.Name
	}
	return s
}

// RestoreSurface восстанавливает заготовку из сохранённой занятости
func RestoreSurface(id SurfaceID, pattern *Pattern, occupancy Grid) *Surface {
	s := NewSurface(id, pattern)
	s.Occupancy = occupancy
	return s
}

// Protection возвращает копию маски защиты
func (s *Surface) Protection() Grid {
	return s.protection
}

// Occupied сообщает, есть ли материал в клетке
func (s *Surface) Occupied(p vec.Vec2) bool {
	return s.Occupancy.Get(p)
}

// Protected сообщает, входит ли клетка в требуемую форму
func (s *Surface) Protected(p vec.Vec2) bool {
	return s.protection.Get(p)
}

// Destroyed сообщает, разрушена ли заготовка
func (s *Surface) Destroyed() bool { return s.destroyed }

// Completed сообщает, завершена ли обработка
func (s *Surface) Completed() bool { return s.completed }

// Terminal сообщает, что сессия закончилась и удары больше не принимаются
func (s *Surface) Terminal() bool { return s.destroyed || s.completed }

// WasteRemaining возвращает количество оставшихся клеток отхода
func (s *Surface) WasteRemaining() int {
	n := 0
	for x := 0; x < GridSize; x++ {
		for z := 0; z < GridSize; z++ {
			if s.Occupancy[x][z] && !s.protection[x][z] {
				n++
			}
		}
	}
	return n
}

// WasteCleared true, если все незащищённые клетки удалены
func (s *Surface) WasteCleared() bool {
	return s.WasteRemaining() == 0
}

// MissingProtected возвращает количество утраченных клеток формы
func (s *Surface) MissingProtected() int {
	n := 0
	for x := 0; x < GridSize; x++ {
		for z := 0; z < GridSize; z++ {
			if s.protection[x][z] && !s.Occupancy[x][z] {
				n++
			}
		}
	}
	return n
}

func (s *Surface) removeAll(cells []vec.Vec2) {
	for _, p := range cells {
		s.Occupancy.Set(p, false)
	}
}
