package knapping

import (
	"math"

	"github.com/annel0/knapping/internal/vec"
)

const (
	minConeWidth       = 0.5
	minStepProbability = 0.3
	maxHalfAngleDeg    = 89.0
	spallFactor        = 0.5
	spallThreshold     = 1e-3
)

// RandomSource источник случайных чисел для излома. *rand.Rand ему удовлетворяет.
type RandomSource interface {
	Float64() float64
}

// CalculateFractureZone рассчитывает конусную зону излома вдоль пути.
// path[0] - точка удара, последний элемент - целевая краевая клетка.
// Клетки осевой линии включаются всегда, боковые - с вероятностью,
// убывающей с расстоянием от удара и от оси. Затем добавляются сколы
// по соседям выбранных клеток. Точка удара входит в результат всегда.
func CalculateFractureZone(path []vec.Vec2, occupancy *Grid, cfg FractureConfig, rng RandomSource) CellSet {
	if len(path) == 0 {
		return CellSet{}
	}

	impact := path[0]
	target := path[len(path)-1]
	zone := CellSet{}
	zone.Add(impact)
	if impact == target {
		return zone
	}

	cfg = cfg.Normalize()

	dist := impact.DistanceTo(target)
	dirX := float64(target.X-impact.X) / dist
	dirZ := float64(target.Y-impact.Y) / dist
	perpX, perpZ := -dirZ, dirX

	halfAngle := math.Min(float64(cfg.ConeAngle)/2, maxHalfAngleDeg)
	tanHalf := math.Tan(halfAngle * math.Pi / 180)
	// Без расширения конуса остаётся только осевая линия
	noSpread := tanHalf*cfg.SpreadRate == 0

	for s := 0; float64(s) <= dist; s++ {
		step := float64(s)
		width := math.Max(minConeWidth, step*tanHalf*cfg.SpreadRate)
		prob := math.Max(minStepProbability, cfg.BaseProbability-step*cfg.Decay)

		centerX := float64(impact.X) + dirX*step
		centerZ := float64(impact.Y) + dirZ*step

		reach := int(math.Ceil(width))
		for w := -reach; w <= reach; w++ {
			offset := math.Abs(float64(w))
			if noSpread && offset > minConeWidth {
				continue
			}

			cell := vec.Vec2{
				X: int(math.Round(centerX + perpX*float64(w))),
				Y: int(math.Round(centerZ + perpZ*float64(w))),
			}
			if !InBounds(cell) || !occupancy.Get(cell) || zone.Has(cell) {
				continue
			}

			if offset <= minConeWidth {
				zone.Add(cell)
				continue
			}

			chance := prob * (1 - (offset/math.Max(1, width))*0.5)
			if rng.Float64() < chance {
				zone.Add(cell)
			}
		}
	}

	spall(zone, occupancy, cfg.Decay*spallFactor, rng)
	return zone
}

// spall добавляет сколы: каждый занятый сосед клетки зоны откалывается с вероятностью chance
func spall(zone CellSet, occupancy *Grid, chance float64, rng RandomSource) {
	if chance < spallThreshold {
		return
	}

	for _, cell := range zone.Sorted() {
		for _, n := range cell.Neighbors4() {
			if !InBounds(n) || !occupancy.Get(n) || zone.Has(n) {
				continue
			}
			if rng.Float64() < chance {
				zone.Add(n)
			}
		}
	}
}
