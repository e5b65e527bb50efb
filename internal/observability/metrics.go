package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the pool service.
type Metrics struct {
	// --- Pool operations ---
	OperationsExecuted *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	PoolSequence       prometheus.Gauge

	// --- Reserve state ---
	ReserveUtilization   *prometheus.GaugeVec
	ReserveLiquidityRate *prometheus.GaugeVec
	ReserveBorrowRate    *prometheus.GaugeVec

	// --- Margin & liquidation ---
	PositionsOpened       prometheus.Counter
	PositionsClosed       *prometheus.CounterVec
	LiquidationsExecuted  *prometheus.CounterVec
	LiquidationSeizedCaps prometheus.Counter

	// --- Events ---
	EventsEmitted *prometheus.CounterVec
	PublishDrops  prometheus.Counter

	// --- Event log persistence ---
	PersistEventsWritten prometheus.Counter
	PersistBatchSize     prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistLastSequence  prometheus.Gauge

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	opBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		OperationsExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "leverpool_operations_total",
			Help: "Pool operations by type and result",
		}, []string{"operation", "result"}),

		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leverpool_operation_duration_seconds",
			Help:    "Time to execute one pool operation",
			Buckets: opBuckets,
		}, []string{"operation"}),

		PoolSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "leverpool_sequence",
			Help: "Current pool event sequence",
		}),

		ReserveUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "leverpool_reserve_utilization",
			Help: "Debt / (debt + available liquidity) per reserve",
		}, []string{"asset"}),

		ReserveLiquidityRate: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "leverpool_reserve_liquidity_rate",
			Help: "Annualized depositor rate per reserve",
		}, []string{"asset"}),

		ReserveBorrowRate: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "leverpool_reserve_borrow_rate",
			Help: "Annualized variable borrow rate per reserve",
		}, []string{"asset"}),

		PositionsOpened: promauto.NewCounter(prometheus.CounterOpts{
			Name: "leverpool_positions_opened_total",
			Help: "Leveraged positions opened",
		}),

		PositionsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "leverpool_positions_closed_total",
			Help: "Positions ended, by outcome (closed/liquidated)",
		}, []string{"outcome"}),

		LiquidationsExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "leverpool_liquidations_total",
			Help: "Liquidations executed, by kind (account/position)",
		}, []string{"kind"}),

		LiquidationSeizedCaps: promauto.NewCounter(prometheus.CounterOpts{
			Name: "leverpool_liquidation_seizure_caps_total",
			Help: "Liquidations where seizure was capped at the collateral balance",
		}),

		EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "leverpool_events_emitted_total",
			Help: "Events emitted by type",
		}, []string{"type"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "leverpool_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "leverpool_persist_events_written_total",
			Help: "Events written to the Postgres event log",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "leverpool_persist_batch_size",
			Help:    "Events per event-log batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "leverpool_persist_errors_total",
			Help: "Event log persistence errors",
		}, []string{"error_type"}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "leverpool_persist_last_sequence",
			Help: "Last event sequence written to Postgres",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "leverpool_query_requests_total",
			Help: "Query requests by endpoint and status",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leverpool_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}

// ObserveOperation records one pool operation's outcome and latency.
func (m *Metrics) ObserveOperation(operation string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.OperationsExecuted.WithLabelValues(operation, result).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
