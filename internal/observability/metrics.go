package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce            sync.Once
	httpDurationHistogram   *prometheus.HistogramVec
	idempotencyCounter      *prometheus.CounterVec
	workerRunCounter        *prometheus.CounterVec
	settlementCounter       *prometheus.CounterVec
	settlementDuration      *prometheus.HistogramVec
	pendingBacklogGauge     prometheus.Gauge
	pendingOldestAgeGauge   prometheus.Gauge
	ledgerTotalBalanceGauge prometheus.Gauge
	ledgerViolationCounter  *prometheus.CounterVec
	intakeCounter           *prometheus.CounterVec
	payRequestCounter       *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		settlementCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_outcomes_total",
			Help: "Settlement attempts by outcome",
		}, []string{"outcome"})

		settlementDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "settlement_duration_seconds",
			Help:    "Time spent settling a single transaction",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"})

		pendingBacklogGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "settlement_pending_transactions",
			Help: "Transactions waiting for settlement",
		})

		pendingOldestAgeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "settlement_oldest_pending_age_seconds",
			Help: "Age of the oldest pending transaction",
		})

		ledgerTotalBalanceGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_total_balance_minor_units",
			Help: "Sum of all account balances",
		})

		ledgerViolationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_invariant_violations_total",
			Help: "Reconciliation checks that found broken ledger invariants",
		}, []string{"check"})

		intakeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transaction_intake_total",
			Help: "Pending transactions accepted at intake",
		}, []string{"kind", "advisory"})

		payRequestCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pay_request_transitions_total",
			Help: "Pay request state transitions",
		}, []string{"status"})

		prometheus.MustRegister(
			httpDurationHistogram,
			idempotencyCounter,
			workerRunCounter,
			settlementCounter,
			settlementDuration,
			pendingBacklogGauge,
			pendingOldestAgeGauge,
			ledgerTotalBalanceGauge,
			ledgerViolationCounter,
			intakeCounter,
			payRequestCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}

// ObserveSettlement records one Settle call. outcome is completed, failed,
// skipped or error.
func ObserveSettlement(outcome string, duration time.Duration) {
	if settlementCounter == nil {
		return
	}
	settlementCounter.WithLabelValues(outcome).Inc()
	settlementDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func SetPendingBacklog(count int64, oldestAge time.Duration) {
	if pendingBacklogGauge == nil {
		return
	}
	pendingBacklogGauge.Set(float64(count))
	pendingOldestAgeGauge.Set(oldestAge.Seconds())
}

func SetLedgerTotalBalance(total int64) {
	if ledgerTotalBalanceGauge == nil {
		return
	}
	ledgerTotalBalanceGauge.Set(float64(total))
}

func IncrementLedgerViolation(check string) {
	if ledgerViolationCounter == nil {
		return
	}
	ledgerViolationCounter.WithLabelValues(check).Inc()
}

func IncrementIntake(kind string, sufficient bool) {
	if intakeCounter == nil {
		return
	}
	advisory := "sufficient"
	if !sufficient {
		advisory = "insufficient"
	}
	intakeCounter.WithLabelValues(kind, advisory).Inc()
}

func IncrementPayRequestTransition(status string) {
	if payRequestCounter == nil {
		return
	}
	payRequestCounter.WithLabelValues(status).Inc()
}
