package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "market"

// Результаты обработки события захвата
const (
	OutcomeIssued            = "issued"
	OutcomeDuplicate         = "duplicate"
	OutcomeUserNotFound      = "user_not_found"
	OutcomeActivityNotFound  = "activity_not_found"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeInvalid           = "invalid"
	OutcomeFailed            = "failed"
)

// Metrics набор счётчиков сервиса. Нулевой *Metrics безопасен и ничего не пишет.
type Metrics struct {
	poolAdmitted   prometheus.Counter
	poolDropped    prometheus.Counter
	poolWorkers    prometheus.Gauge
	grabOutcomes   *prometheus.CounterVec
	preHeatRuns    *prometheus.CounterVec
	preHeatEntries prometheus.Gauge
	sweepRuns      *prometheus.CounterVec
}

// New регистрирует метрики в reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		poolAdmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "seize_pool",
			Name:      "admitted_total",
			Help:      "Grab tasks handed to a worker.",
		}),
		poolDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "seize_pool",
			Name:      "dropped_total",
			Help:      "Grab tasks discarded because every worker was busy.",
		}),
		poolWorkers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "seize_pool",
			Name:      "workers",
			Help:      "Live workers in the seize pool.",
		}),
		grabOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "seize",
			Name:      "grab_events_total",
			Help:      "Processed grab events by outcome.",
		}, []string{"outcome"}),
		preHeatRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "preheat_runs_total",
			Help:      "Cache pre-heat runs by result.",
		}, []string{"result"}),
		preHeatEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "preheat_activities",
			Help:      "Activities written by the last successful pre-heat.",
		}),
		sweepRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "activity",
			Name:      "status_sweep_runs_total",
			Help:      "Activity status sweeps by result.",
		}, []string{"result"}),
	}
}

// PoolAdmitted отмечает принятую пулом задачу
func (m *Metrics) PoolAdmitted() {
	if m == nil {
		return
	}
	m.poolAdmitted.Inc()
}

// PoolDropped отмечает отброшенную задачу
func (m *Metrics) PoolDropped() {
	if m == nil {
		return
	}
	m.poolDropped.Inc()
}

// PoolWorkers публикует текущее число воркеров
func (m *Metrics) PoolWorkers(n int) {
	if m == nil {
		return
	}
	m.poolWorkers.Set(float64(n))
}

// GrabOutcome отмечает результат обработки события захвата
func (m *Metrics) GrabOutcome(outcome string) {
	if m == nil {
		return
	}
	m.grabOutcomes.WithLabelValues(outcome).Inc()
}

// PreHeatDone отмечает прогон прогрева кеша
func (m *Metrics) PreHeatDone(entries int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.preHeatRuns.WithLabelValues("error").Inc()
		return
	}
	m.preHeatRuns.WithLabelValues("ok").Inc()
	m.preHeatEntries.Set(float64(entries))
}

// SweepDone отмечает прогон обновления статусов
func (m *Metrics) SweepDone(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.sweepRuns.WithLabelValues("error").Inc()
		return
	}
	m.sweepRuns.WithLabelValues("ok").Inc()
}
