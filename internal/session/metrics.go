package session

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics содержит Prometheus-метрики менеджера сессий
type Metrics struct {
	Strikes        *prometheus.CounterVec
	Mistakes       prometheus.Counter
	Debris         prometheus.Counter
	Finished       *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
	Quality        prometheus.Histogram
}

// NewMetrics создаёт метрики и регистрирует их в reg.
// Если reg == nil, используется prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		Strikes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knapping",
			Name:      "strikes_total",
			Help:      "Количество ударов по результату",
		}, []string{"kind", "mode"}),
		Mistakes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "knapping",
			Name:      "mistakes_total",
			Help:      "Общее число засчитанных ошибок",
		}),
		Debris: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "knapping",
			Name:      "debris_cells_total",
			Help:      "Клетки, снятые очисткой связности",
		}),
		Finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knapping",
			Name:      "sessions_finished_total",
			Help:      "Завершённые сессии по исходу",
		}, []string{"result"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "knapping",
			Name:      "sessions_active",
			Help:      "Количество незавершённых сессий",
		}),
		Quality: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "knapping",
			Name:      "quality_multiplier",
			Help:      "Множитель качества завершённых заготовок",
			Buckets:   []float64{0.5, 0.6, 0.7, 0.8, 0.9, 1.0, 1.05, 1.1, 1.2, 1.5},
		}),
	}

	reg.MustRegister(m.Strikes, m.Mistakes, m.Debris, m.Finished, m.ActiveSessions, m.Quality)
	return m
}
