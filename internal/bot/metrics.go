package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики торгового ядра
// ============================================================
//
// Используются Grafana дашбордами и Alertmanager'ом; экспонируются
// мониторинговым HTTP сервером на /metrics.

// EvaluationsTotal - количество арбитражных оценок по исходам
var EvaluationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cryptobot",
		Subsystem: "arbitrage",
		Name:      "evaluations_total",
		Help:      "Total number of arbitrage evaluations",
	},
	[]string{"outcome"}, // traded, rejected, stale, no_combo, fetch_failed
)

// TradesSubmitted - количество отправленных сделок
var TradesSubmitted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cryptobot",
		Subsystem: "arbitrage",
		Name:      "trades_submitted_total",
		Help:      "Total number of submitted arbitrage trades",
	},
	[]string{"result"}, // submitted, failed
)

// BookFetchLatency - время получения стакана
var BookFetchLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "cryptobot",
		Subsystem: "arbitrage",
		Name:      "book_fetch_latency_seconds",
		Help:      "Order book fetch latency in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 7, 10},
	},
	[]string{"exchange"},
)

// OrderSubmitLatency - время размещения ордера на бирже
var OrderSubmitLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "cryptobot",
		Subsystem: "arbitrage",
		Name:      "order_submit_latency_seconds",
		Help:      "Order submission latency in seconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	},
	[]string{"exchange", "side"},
)

// PausesWritten - количество выписанных пауз по правилам классификатора
var PausesWritten = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cryptobot",
		Subsystem: "followup",
		Name:      "pauses_written_total",
		Help:      "Total number of pause entries written by the classifier",
	},
	[]string{"rule"},
)

// MultipathTransitions - переходы машины состояний мультипути
var MultipathTransitions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cryptobot",
		Subsystem: "multipath",
		Name:      "transitions_total",
		Help:      "Total number of multipath state transitions",
	},
	[]string{"status"},
)

// MultipathActive - планы, находящиеся в работе прямо сейчас
var MultipathActive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "cryptobot",
		Subsystem: "multipath",
		Name:      "active_plans",
		Help:      "Number of multipath plans currently being executed",
	},
)
