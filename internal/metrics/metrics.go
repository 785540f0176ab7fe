// Package metrics holds the bridge's Prometheus collectors.
//
// All metrics are prefixed with "craftbridge_":
//   - craftbridge_actions_total{kind,outcome} - actions finished, by outcome
//   - craftbridge_queue_depth - exclusive commands waiting behind the running one
//   - craftbridge_queue_busy - 1 while an exclusive action runs
//   - craftbridge_goal_waits_total{outcome} - goal waits resolved, by outcome
//   - craftbridge_reconnect_attempts_total - reconnection attempts scheduled
//   - craftbridge_reconnect_attempt - attempt number of the current outage
//   - craftbridge_area_blocks_total{result} - area-clear targets, by result
//   - craftbridge_session_up - 1 while a session is ready
//
// Methods are safe on a nil *Metrics so components can run without a registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "craftbridge"

// Action outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeTimeout   = "timeout"
	OutcomeCancelled = "cancelled"
	OutcomeUnknown   = "unknown"
	OutcomeRejected  = "rejected"
)

type Metrics struct {
	ActionsTotal           *prometheus.CounterVec
	QueueDepth             prometheus.Gauge
	QueueBusy              prometheus.Gauge
	GoalWaitsTotal         *prometheus.CounterVec
	ReconnectAttemptsTotal prometheus.Counter
	ReconnectAttempt       prometheus.Gauge
	AreaBlocksTotal        *prometheus.CounterVec
	SessionUp              prometheus.Gauge
}

// New registers the collectors on reg. Each registry may be used once.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Total actions finished, by kind and outcome",
		}, []string{"kind", "outcome"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Exclusive commands waiting in the action queue",
		}),
		QueueBusy: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_busy",
			Help:      "1 while an exclusive action is executing",
		}),
		GoalWaitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "goal_waits_total",
			Help:      "Goal waits resolved, by outcome",
		}, []string{"outcome"}),
		ReconnectAttemptsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Reconnection attempts scheduled",
		}),
		ReconnectAttempt: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reconnect_attempt",
			Help:      "Attempt number within the current outage, 0 when connected",
		}),
		AreaBlocksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "area_blocks_total",
			Help:      "Area-clear targets visited, by result",
		}, []string{"result"}),
		SessionUp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_up",
			Help:      "1 while the game session is ready",
		}),
	}
}

func (m *Metrics) RecordAction(kind, outcome string) {
	if m == nil {
		return
	}
	m.ActionsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) SetQueue(depth int, busy bool) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
	m.QueueBusy.Set(boolGauge(busy))
}

func (m *Metrics) RecordGoalWait(outcome string) {
	if m == nil {
		return
	}
	m.GoalWaitsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordReconnectAttempt(attempt int) {
	if m == nil {
		return
	}
	m.ReconnectAttemptsTotal.Inc()
	m.ReconnectAttempt.Set(float64(attempt))
}

func (m *Metrics) ResetReconnect() {
	if m == nil {
		return
	}
	m.ReconnectAttempt.Set(0)
}

func (m *Metrics) RecordAreaBlock(result string) {
	if m == nil {
		return
	}
	m.AreaBlocksTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetSessionUp(up bool) {
	if m == nil {
		return
	}
	m.SessionUp.Set(boolGauge(up))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
