package knapping

import (
	"math/rand"

	"github.com/annel0/knapping/internal/vec"
)

// newTestPattern создаёт шаблон с заданными защищёнными клетками
func newTestPattern(name string, cells ...vec.Vec2) *Pattern {
	p := &Pattern{Name: name}
	for _, c := range cells {
		p.mask.Set(c, true)
	}
	return p
}

// ringAround возвращает клетки квадратного кольца вокруг прямоугольника [x0,x1]×[z0,z1]
func ringAround(x0, z0, x1, z1 int) []vec.Vec2 {
	var cells []vec.Vec2
	for x := x0 - 1; x <= x1+1; x++ {
		for z := z0 - 1; z <= z1+1; z++ {
			if x >= x0 && x <= x1 && z >= z0 && z <= z1 {
				continue
			}
			cells = append(cells, vec.Vec2{X: x, Y: z})
		}
	}
	return cells
}

// randomGrid заполняет сетку случайно с вероятностью fill
func randomGrid(rng *rand.Rand, fill float64) Grid {
	var g Grid
	for x := 0; x < GridSize; x++ {
		for z := 0; z < GridSize; z++ {
			g[x][z] = rng.Float64() < fill
		}
	}
	return g
}

// deterministicConfig отключает расширение конуса и сколы
func deterministicConfig(allowance int) Config {
	return Config{
		MistakeAllowance: allowance,
		PerfectBonus:     0.25,
		Fracture: FractureConfig{
			ConeAngle:       0,
			SpreadRate:      0.5,
			Decay:           0,
			BaseProbability: 0.9,
		},
	}
}
