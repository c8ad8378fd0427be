package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ayo6706/paynxt/internal/observability"
	"github.com/ayo6706/paynxt/internal/service"
	"go.uber.org/zap"
)

// Reconciler runs one ledger health check.
type Reconciler interface {
	Run(ctx context.Context) (*service.ReconciliationReport, error)
}

// ReconciliationWorker runs periodic ledger reconciliation checks.
type ReconciliationWorker struct {
	svc        Reconciler
	interval   time.Duration
	runTimeout time.Duration
	staleAfter time.Duration
	logger     *zap.Logger
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// NewReconciliationWorker constructs a worker with a default hourly interval.
func NewReconciliationWorker(svc Reconciler) *ReconciliationWorker {
	return &ReconciliationWorker{
		svc:        svc,
		interval:   time.Hour,
		runTimeout: 30 * time.Second,
		staleAfter: 15 * time.Minute,
		logger:     zap.L(),
		stopCh:     make(chan struct{}),
	}
}

// WithInterval updates the run interval.
func (w *ReconciliationWorker) WithInterval(interval time.Duration) *ReconciliationWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// WithStaleAfter sets how old the oldest pending transaction may get before
// the backlog is reported as stale.
func (w *ReconciliationWorker) WithStaleAfter(d time.Duration) *ReconciliationWorker {
	if d > 0 {
		w.staleAfter = d
	}
	return w
}

func (w *ReconciliationWorker) WithLogger(logger *zap.Logger) *ReconciliationWorker {
	if logger != nil {
		w.logger = logger
	}
	return w
}

// Start blocks and runs reconciliation at the configured interval, starting
// with one run immediately.
func (w *ReconciliationWorker) Start(ctx context.Context) {
	w.logger.Info("reconciliation worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reconciliation worker context canceled")
			return
		case <-w.stopCh:
			w.logger.Info("reconciliation worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *ReconciliationWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *ReconciliationWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// runOnce returns the result label it recorded.
func (w *ReconciliationWorker) runOnce(ctx context.Context) string {
	runCtx, cancel := context.WithTimeout(ctx, w.runTimeout)
	defer cancel()

	report, err := w.svc.Run(runCtx)
	result := "success"
	switch {
	case err != nil:
		result = "failed"
		w.logger.Error("reconciliation run failed", zap.Error(err))
	case !report.Healthy():
		result = "violations"
	case report.PendingCount > 0 && report.OldestPendingAge > w.staleAfter:
		result = "stale_backlog"
		w.logger.Warn("settlement backlog is stale, check that the sweeper is running",
			zap.Int64("pending", report.PendingCount),
			zap.Duration("oldest_pending_age", report.OldestPendingAge),
			zap.Duration("threshold", w.staleAfter),
		)
	default:
		w.logger.Debug("reconciliation passed",
			zap.Int64("accounts", report.Accounts),
			zap.Int64("total_balance", report.TotalBalance),
			zap.Int64("pending", report.PendingCount),
		)
	}
	observability.IncrementWorkerRun("reconciliation", result)
	return result
}
