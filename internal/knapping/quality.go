package knapping

import "math"

// minMultiplierFor возвращает нижнюю границу качества для допуска ошибок
func minMultiplierFor(allowance int) float64 {
	switch {
	case allowance <= 1:
		return 0.50
	case allowance <= 2:
		return 0.40
	case allowance <= 3:
		return 0.25
	case allowance <= 5:
		return 0.20
	default:
		return 0.10
	}
}

// breakevenFor возвращает число ошибок, при котором множитель равен 1.0
func breakevenFor(allowance int) int {
	if allowance <= 2 {
		return 1
	}
	return int(math.Max(1, math.Round(float64(allowance)*0.4)))
}

// QualityMultiplier переводит число ошибок в множитель качества изделия.
// Кусочно-линейная кривая: от 1+bonus при нуле ошибок до 1.0 в точке
// безубыточности и далее до минимума тира в точке допуска.
// Результат всегда лежит в [min, 1+bonus].
func QualityMultiplier(mistakes, allowance int, bonus float64) float64 {
	if allowance < 1 {
		allowance = 1
	}
	if bonus < 0 || math.IsNaN(bonus) {
		bonus = 0
	}

	maxMul := 1 + bonus
	minMul := minMultiplierFor(allowance)
	breakeven := breakevenFor(allowance)

	var result float64
	switch {
	case mistakes <= 0:
		result = maxMul
	case mistakes >= allowance:
		// Продолжение наклона за точку допуска всё равно упирается в минимум
		result = minMul
	case mistakes < breakeven:
		t := float64(mistakes) / float64(breakeven)
		result = maxMul + (1-maxMul)*t
	case mistakes == breakeven:
		result = 1.0
	default:
		slope := (minMul - 1) / float64(allowance-breakeven)
		result = 1 + slope*float64(mistakes-breakeven)
	}

	return clampFloat(result, minMul, maxMul)
}
