package knapping

import "math"

// FractureConfig параметры распространения излома
type FractureConfig struct {
	ConeAngle       int     // Полный угол конуса, градусы [0,180]
	SpreadRate      float64 // Скорость расширения конуса [0,1]
	Decay           float64 // Падение вероятности на шаг [0,0.5]
	BaseProbability float64 // Вероятность у точки удара [0,1]
}

// Config параметры движка обработки
type Config struct {
	MistakeAllowance int     // Допустимое число ошибок (>= 1)
	PerfectBonus     float64 // Бонус качества за безошибочную работу (>= 0)
	Fracture         FractureConfig
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		MistakeAllowance: 3,
		PerfectBonus:     0.1,
		Fracture: FractureConfig{
			ConeAngle:       30,
			SpreadRate:      0.5,
			Decay:           0.15,
			BaseProbability: 0.85,
		},
	}
}

// Normalize приводит все параметры к допустимым диапазонам
func (c Config) Normalize() Config {
	if c.MistakeAllowance < 1 {
		c.MistakeAllowance = 1
	}
	if c.PerfectBonus < 0 || math.IsNaN(c.PerfectBonus) {
		c.PerfectBonus = 0
	}
	c.Fracture = c.Fracture.Normalize()
	return c
}

// Normalize приводит параметры излома к допустимым диапазонам
func (f FractureConfig) Normalize() FractureConfig {
	if f.ConeAngle < 0 {
		f.ConeAngle = 0
	}
	if f.ConeAngle > 180 {
		f.ConeAngle = 180
	}
	f.SpreadRate = clampFloat(f.SpreadRate, 0, 1)
	f.Decay = clampFloat(f.Decay, 0, 0.5)
	f.BaseProbability = clampFloat(f.BaseProbability, 0, 1)
	return f
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
