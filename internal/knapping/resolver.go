package knapping

import (
	"fmt"

	"github.com/annel0/knapping/internal/vec"
)

// Mode режим разрешения ударов
type Mode int

const (
	// ModeDefault - любой удар по защищённой клетке считается ошибкой,
	// остальные клетки снимаются без риска
	ModeDefault Mode = iota
	// ModeAdvanced - удары по внутренним клеткам вызывают излом
	ModeAdvanced
)

// String возвращает строковое представление режима
func (m Mode) String() string {
	switch m {
	case ModeDefault:
		return "default"
	case ModeAdvanced:
		return "advanced"
	default:
		return "unknown"
	}
}

// ParseMode разбирает режим из строки
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "default":
		return ModeDefault, nil
	case "advanced":
		return ModeAdvanced, nil
	default:
		return ModeDefault, fmt.Errorf("неизвестный режим обработки: %q", s)
	}
}

// StrikeKind результат разрешения удара
type StrikeKind int

const (
	StrikeInvalid StrikeKind = iota // Удар вне сетки или по завершённой заготовке
	StrikeIgnored                   // Клетка пуста, либо край недостижим
	StrikeSafe
	StrikeMistake
	StrikePocketCleared
	StrikeDestroyed
)

// String возвращает строковое представление результата
func (k StrikeKind) String() string {
	switch k {
	case StrikeInvalid:
		return "invalid"
	case StrikeIgnored:
		return "ignored"
	case StrikeSafe:
		return "safe"
	case StrikeMistake:
		return "mistake"
	case StrikePocketCleared:
		return "pocket_cleared"
	case StrikeDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// StrikeOutcome описывает последствия одного удара
type StrikeOutcome struct {
	Kind          StrikeKind
	Removed       []vec.Vec2 // Снятые ударом клетки (без обломков)
	Debris        int        // Клетки, снятые очисткой связности
	Mistakes      int        // Ошибки этого удара
	TotalMistakes int        // Ошибки заготовки после удара
	Destroyed     bool
	PocketCleared bool
	Completable   bool // Весь отход снят, можно завершать
}

// CompletionOutcome результат проверки завершения
type CompletionOutcome struct {
	Complete          bool
	TotalMistakes     int
	QualityMultiplier float64
}

// Resolver разрешает удары по одной заготовке.
// Не безопасен для конкурентного использования: удары по одной заготовке сериализуются вызывающим.
type Resolver struct {
	cfg Config
	rng RandomSource
}

// NewResolver создаёт резолвер с нормализованной конфигурацией
func NewResolver(cfg Config, rng RandomSource) *Resolver {
	return &Resolver{
		cfg: cfg.Normalize(),
		rng: rng,
	}
}

// Config возвращает используемую конфигурацию
func (r *Resolver) Config() Config {
	return r.cfg
}

// ResolveStrike разрешает удар по клетке (x, z)
func (r *Resolver) ResolveStrike(id SurfaceID, s *Surface, ledger *Ledger, x, z int, mode Mode) StrikeOutcome {
	p := vec.Vec2{X: x, Y: z}
	if s == nil || s.Terminal() || !InBounds(p) {
		return StrikeOutcome{Kind: StrikeInvalid, TotalMistakes: ledger.GetCount(id)}
	}
	if !s.Occupied(p) {
		return r.finish(id, s, ledger, StrikeOutcome{Kind: StrikeIgnored})
	}

	if mode == ModeAdvanced && !IsBoundary(p, &s.Occupancy, &s.protection) {
		return r.resolveInterior(id, s, ledger, p)
	}
	return r.resolveDirect(id, s, ledger, p)
}

// resolveDirect снимает одну клетку: ошибка для формы, безопасно для отхода
func (r *Resolver) resolveDirect(id SurfaceID, s *Surface, ledger *Ledger, p vec.Vec2) StrikeOutcome {
	if s.Protected(p) {
		return r.applyMistakes(id, s, ledger, 1, nil)
	}

	s.Occupancy.Set(p, false)
	return r.finish(id, s, ledger, StrikeOutcome{
		Kind:    StrikeSafe,
		Removed: []vec.Vec2{p},
	})
}

// resolveInterior разрешает удар по внутренней клетке в продвинутом режиме
func (r *Resolver) resolveInterior(id SurfaceID, s *Surface, ledger *Ledger, p vec.Vec2) StrikeOutcome {
	if pocket := FindEnclosedWastePocket(p, &s.Occupancy, &s.protection); len(pocket) > 0 {
		cells := pocket.Sorted()
		s.removeAll(cells)
		return r.finish(id, s, ledger, StrikeOutcome{
			Kind:          StrikePocketCleared,
			Removed:       cells,
			PocketCleared: true,
		})
	}

	path := FindPathToBoundary(p, &s.Occupancy, &s.protection)
	if len(path) == 0 {
		if s.Protected(p) {
			return r.applyMistakes(id, s, ledger, 1, nil)
		}
		return r.finish(id, s, ledger, StrikeOutcome{Kind: StrikeIgnored})
	}

	zone := CalculateFractureZone(path, &s.Occupancy, r.cfg.Fracture, r.rng)
	cells := zone.Sorted()

	mistakes := 0
	for _, c := range cells {
		if s.Protected(c) {
			mistakes++
		}
	}

	if mistakes == 0 {
		s.removeAll(cells)
		return r.finish(id, s, ledger, StrikeOutcome{
			Kind:    StrikeSafe,
			Removed: cells,
		})
	}
	return r.applyMistakes(id, s, ledger, mistakes, cells)
}

// applyMistakes записывает ошибки и либо разрушает заготовку, либо снимает зону
func (r *Resolver) applyMistakes(id SurfaceID, s *Surface, ledger *Ledger, mistakes int, zone []vec.Vec2) StrikeOutcome {
	total := ledger.Add(id, mistakes)
	if total > r.cfg.MistakeAllowance {
		s.destroyed = true
		ledger.Clear(id)
		return StrikeOutcome{
			Kind:          StrikeDestroyed,
			Mistakes:      mistakes,
			TotalMistakes: total,
			Destroyed:     true,
		}
	}

	s.removeAll(zone)
	return r.finish(id, s, ledger, StrikeOutcome{
		Kind:     StrikeMistake,
		Removed:  zone,
		Mistakes: mistakes,
	})
}

// finish запускает очистку связности и заполняет итоговые поля
func (r *Resolver) finish(id SurfaceID, s *Surface, ledger *Ledger, out StrikeOutcome) StrikeOutcome {
	out.Debris = RemoveDisconnected(&s.Occupancy, &s.protection)
	out.TotalMistakes = ledger.GetCount(id)
	out.Completable = s.WasteCleared()
	return out
}

// CheckCompletion проверяет, снят ли весь отход, и если да - рассчитывает качество
// и сбрасывает журнал ошибок. Масштабирование качества действует в любом режиме.
func (r *Resolver) CheckCompletion(id SurfaceID, s *Surface, ledger *Ledger) CompletionOutcome {
	total := ledger.GetCount(id)
	if s == nil || s.Terminal() || !s.WasteCleared() {
		return CompletionOutcome{TotalMistakes: total}
	}

	quality := QualityMultiplier(total, r.cfg.MistakeAllowance, r.cfg.PerfectBonus)
	ledger.Clear(id)
	s.completed = true

	return CompletionOutcome{
		Complete:          true,
		TotalMistakes:     total,
		QualityMultiplier: quality,
	}
}
