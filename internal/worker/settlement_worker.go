package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayo6706/paynxt/internal/models"
	"github.com/ayo6706/paynxt/internal/observability"
	"github.com/ayo6706/paynxt/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Settler is the part of the settlement service the worker drives.
type Settler interface {
	PendingTransactions(ctx context.Context, limit int32) ([]models.Transaction, error)
	Settle(ctx context.Context, transactionID uuid.UUID) (*service.SettlementResult, error)
}

// PassSummary counts what one pass over the pending queue did.
type PassSummary struct {
	Fetched   int
	Completed int
	Failed    int
	Skipped   int
	Errors    int
	Stopped   bool
}

// SettlementWorker sweeps pending transactions in creation order. Exactly one
// pass runs at a time; a fixed wait separates passes. Run a single instance
// per ledger.
type SettlementWorker struct {
	settler      Settler
	pollInterval time.Duration
	batchSize    int32
	unitTimeout  time.Duration
	logger       *zap.Logger

	started  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	passMu   sync.Mutex
}

// NewSettlementWorker creates a worker with the default 5s poll interval and
// batches of 10.
func NewSettlementWorker(settler Settler) *SettlementWorker {
	return &SettlementWorker{
		settler:      settler,
		pollInterval: 5 * time.Second,
		batchSize:    10,
		unitTimeout:  10 * time.Second,
		logger:       zap.L(),
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// WithPollInterval sets the wait between passes.
func (w *SettlementWorker) WithPollInterval(interval time.Duration) *SettlementWorker {
	if interval > 0 {
		w.pollInterval = interval
	}
	return w
}

// WithBatchSize sets how many pending transactions a pass fetches.
func (w *SettlementWorker) WithBatchSize(size int32) *SettlementWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// WithUnitTimeout bounds a single settlement unit.
func (w *SettlementWorker) WithUnitTimeout(timeout time.Duration) *SettlementWorker {
	if timeout > 0 {
		w.unitTimeout = timeout
	}
	return w
}

func (w *SettlementWorker) WithLogger(logger *zap.Logger) *SettlementWorker {
	if logger != nil {
		w.logger = logger
	}
	return w
}

// Start runs passes until Stop is called or ctx is canceled. It blocks. A
// worker runs at most once; later calls log and return immediately.
func (w *SettlementWorker) Start(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		w.logger.Warn("settlement worker already started")
		return
	}
	defer close(w.done)
	w.logger.Info("settlement worker starting",
		zap.Duration("poll_interval", w.pollInterval),
		zap.Int32("batch_size", w.batchSize),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("settlement worker context canceled")
			return
		case <-w.stopCh:
			w.logger.Info("settlement worker stop signal received")
			return
		case <-timer.C:
		}

		summary, err := w.ProcessOnce(ctx)
		switch {
		case err != nil:
			observability.IncrementWorkerRun("settlement", "failed")
			w.logger.Error("settlement pass failed, retrying after poll interval", zap.Error(err))
		case summary.Fetched == 0:
			observability.IncrementWorkerRun("settlement", "idle")
			w.logger.Debug("no pending transactions", zap.Duration("wait", w.pollInterval))
		default:
			observability.IncrementWorkerRun("settlement", "success")
			w.logger.Info("settlement pass complete",
				zap.Int("fetched", summary.Fetched),
				zap.Int("completed", summary.Completed),
				zap.Int("failed", summary.Failed),
				zap.Int("skipped", summary.Skipped),
				zap.Int("errors", summary.Errors),
			)
		}
		timer.Reset(w.pollInterval)
	}
}

// Stop signals the worker to stop after the item in flight.
func (w *SettlementWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *SettlementWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// Shutdown stops the worker and waits for the running pass to return, up to
// ctx's deadline. Only call it after Start or Run.
func (w *SettlementWorker) Shutdown(ctx context.Context) error {
	w.Stop()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("settlement worker shutdown: %w", ctx.Err())
	}
}

func (w *SettlementWorker) stopping() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

// ProcessOnce runs one pass: fetch up to batchSize oldest pending
// transactions and settle them one by one. An error on one item is logged and
// the pass moves on. The stop signal is honored between items only, and each
// unit runs detached from ctx cancellation so it is never cut off mid-write.
func (w *SettlementWorker) ProcessOnce(ctx context.Context) (PassSummary, error) {
	w.passMu.Lock()
	defer w.passMu.Unlock()

	var summary PassSummary
	pending, err := w.settler.PendingTransactions(ctx, w.batchSize)
	if err != nil {
		return summary, fmt.Errorf("fetch pending transactions: %w", err)
	}
	summary.Fetched = len(pending)

	for _, tx := range pending {
		if w.stopping() || ctx.Err() != nil {
			summary.Stopped = true
			break
		}

		result, err := w.settleOne(ctx, tx.ID)
		if err != nil {
			summary.Errors++
			w.logger.Error("settlement failed, transaction stays pending",
				zap.String("transaction_id", tx.ID.String()),
				zap.Error(err),
			)
			continue
		}

		switch result.Outcome {
		case service.OutcomeCompleted:
			summary.Completed++
			w.logger.Info("transaction settled",
				zap.String("transaction_id", tx.ID.String()),
				zap.String("from", tx.FromAccountID.String()),
				zap.String("to", tx.ToAccountID.String()),
				zap.Int64("amount", tx.Amount),
			)
		case service.OutcomeFailed:
			summary.Failed++
		default:
			summary.Skipped++
		}
	}
	return summary, nil
}

func (w *SettlementWorker) settleOne(ctx context.Context, id uuid.UUID) (*service.SettlementResult, error) {
	unitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.unitTimeout)
	defer cancel()
	return w.settler.Settle(unitCtx, id)
}

func (w *SettlementWorker) String() string {
	return fmt.Sprintf("SettlementWorker(interval=%v, batch=%d)", w.pollInterval, w.batchSize)
}
