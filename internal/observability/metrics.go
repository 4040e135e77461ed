package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the settlement service.
type Metrics struct {
	// Settlement engine.
	DepositsTotal      prometheus.Counter
	WithdrawalsTotal   prometheus.Counter
	FillsProcessed     prometheus.Counter
	FundingSettlements prometheus.Counter

	// Liquidation and bankruptcy.
	LiquidationsTotal   prometheus.Counter
	BankruptciesTotal   prometheus.Counter
	SocializedLossTotal prometheus.Counter
	InsuranceBalance    prometheus.Gauge

	// Event ingestion.
	IngestEventsTotal    *prometheus.CounterVec
	IngestEventsRejected *prometheus.CounterVec
	IngestApplyDuration  *prometheus.HistogramVec

	// Persistence.
	PersistRecordsWritten prometheus.Counter
	PersistBatchDuration  prometheus.Histogram
	PersistErrors         *prometheus.CounterVec
	PersistConflicts      prometheus.Counter
}

// NewMetrics creates and registers all metrics on the default registry.
func NewMetrics() *Metrics {
	applyBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		DepositsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "margin_deposits_total",
			Help: "Deposits settled",
		}),
		WithdrawalsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "margin_withdrawals_total",
			Help: "Withdrawals settled",
		}),
		FillsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "margin_fills_processed_total",
			Help: "Taker fills executed against perp positions",
		}),
		FundingSettlements: promauto.NewCounter(prometheus.CounterOpts{
			Name: "margin_funding_settlements_total",
			Help: "Per-position funding settlements",
		}),

		LiquidationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "margin_liquidations_total",
			Help: "Token-for-token liquidation steps executed",
		}),
		BankruptciesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "margin_bankruptcies_total",
			Help: "Bankruptcy settlement steps executed",
		}),
		SocializedLossTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "margin_socialized_loss_total",
			Help: "Native loss written off against depositors",
		}),
		InsuranceBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "margin_insurance_fund_balance",
			Help: "Current insurance fund balance",
		}),

		IngestEventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "margin_ingest_events_total",
			Help: "Events consumed from the queue",
		}, []string{"event_type"}),
		IngestEventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "margin_ingest_events_rejected_total",
			Help: "Events rejected (parse, validation)",
		}, []string{"event_type", "reason"}),
		IngestApplyDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "margin_ingest_apply_duration_seconds",
			Help:    "Time to apply one event to the settlement engine",
			Buckets: applyBuckets,
		}, []string{"event_type"}),

		PersistRecordsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "margin_persist_records_written_total",
			Help: "State records written to Postgres",
		}),
		PersistBatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "margin_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "margin_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),
		PersistConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "margin_persist_conflicts_total",
			Help: "Optimistic-concurrency conflicts on account commits",
		}),
	}
}
