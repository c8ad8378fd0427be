package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/paynxt/internal/models"
	"github.com/ayo6706/paynxt/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSettler struct {
	mu       sync.Mutex
	pending  []models.Transaction
	fetchErr error
	outcomes map[uuid.UUID]service.SettlementOutcome
	errs     map[uuid.UUID]error
	settled  []uuid.UUID
	fetches  int
	// onSettle runs before each settlement; used to inject stop signals.
	onSettle func(ctx context.Context, id uuid.UUID)
}

func (f *fakeSettler) PendingTransactions(_ context.Context, limit int32) ([]models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var out []models.Transaction
	for _, tx := range f.pending {
		if int32(len(out)) == limit {
			break
		}
		if !f.isSettled(tx.ID) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (f *fakeSettler) isSettled(id uuid.UUID) bool {
	for _, done := range f.settled {
		if done == id {
			return true
		}
	}
	return false
}

func (f *fakeSettler) Settle(ctx context.Context, id uuid.UUID) (*service.SettlementResult, error) {
	if f.onSettle != nil {
		f.onSettle(ctx, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	f.settled = append(f.settled, id)
	outcome, ok := f.outcomes[id]
	if !ok {
		outcome = service.OutcomeCompleted
	}
	return &service.SettlementResult{TransactionID: id, Outcome: outcome}, nil
}

func (f *fakeSettler) settledIDs() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.settled...)
}

func pendingTxs(n int) []models.Transaction {
	out := make([]models.Transaction, n)
	for i := range out {
		out[i] = models.Transaction{ID: uuid.New(), Amount: int64(i + 1), Status: "PENDING"}
	}
	return out
}

func TestProcessOnceSettlesInOrderAndContinuesPastErrors(t *testing.T) {
	txs := pendingTxs(4)
	settler := &fakeSettler{
		pending:  txs,
		outcomes: map[uuid.UUID]service.SettlementOutcome{txs[2].ID: service.OutcomeFailed},
		errs:     map[uuid.UUID]error{txs[1].ID: errors.New("connection reset")},
	}
	w := NewSettlementWorker(settler).WithBatchSize(10).WithLogger(zap.NewNop())

	summary, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PassSummary{Fetched: 4, Completed: 2, Failed: 1, Errors: 1}, summary)
	assert.Equal(t, []uuid.UUID{txs[0].ID, txs[2].ID, txs[3].ID}, settler.settledIDs())
}

func TestProcessOnceRespectsBatchSize(t *testing.T) {
	txs := pendingTxs(5)
	settler := &fakeSettler{pending: txs}
	w := NewSettlementWorker(settler).WithBatchSize(2).WithLogger(zap.NewNop())

	summary, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Fetched)
	assert.Equal(t, []uuid.UUID{txs[0].ID, txs[1].ID}, settler.settledIDs())
}

func TestProcessOnceFetchError(t *testing.T) {
	settler := &fakeSettler{fetchErr: errors.New("database unavailable")}
	w := NewSettlementWorker(settler).WithLogger(zap.NewNop())

	_, err := w.ProcessOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database unavailable")
}

func TestStopIsHonoredBetweenItems(t *testing.T) {
	txs := pendingTxs(3)
	settler := &fakeSettler{pending: txs}
	w := NewSettlementWorker(settler).WithLogger(zap.NewNop())

	settler.onSettle = func(_ context.Context, id uuid.UUID) {
		if id == txs[0].ID {
			w.Stop()
		}
	}

	summary, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Stopped)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, []uuid.UUID{txs[0].ID}, settler.settledIDs())
}

func TestInFlightUnitSurvivesCancellation(t *testing.T) {
	txs := pendingTxs(2)
	settler := &fakeSettler{pending: txs}
	ctx, cancel := context.WithCancel(context.Background())

	var unitErr error
	settler.onSettle = func(unitCtx context.Context, _ uuid.UUID) {
		cancel()
		unitErr = unitCtx.Err()
	}
	w := NewSettlementWorker(settler).WithLogger(zap.NewNop())

	summary, err := w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.NoError(t, unitErr)
	assert.Equal(t, 1, summary.Completed)
	assert.True(t, summary.Stopped)
}

func TestStartRetriesAfterFetchErrorAndShutsDown(t *testing.T) {
	settler := &fakeSettler{fetchErr: errors.New("boom")}
	w := NewSettlementWorker(settler).WithPollInterval(5 * time.Millisecond).WithLogger(zap.NewNop())

	w.Run(context.Background())
	require.Eventually(t, func() bool {
		settler.mu.Lock()
		defer settler.mu.Unlock()
		return settler.fetches >= 3
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Shutdown(ctx))
}

func TestStartDrainsQueue(t *testing.T) {
	txs := pendingTxs(3)
	settler := &fakeSettler{pending: txs}
	w := NewSettlementWorker(settler).WithPollInterval(5 * time.Millisecond).WithBatchSize(1).WithLogger(zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	require.Eventually(t, func() bool {
		return len(settler.settledIDs()) == 3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []uuid.UUID{txs[0].ID, txs[1].ID, txs[2].ID}, settler.settledIDs())

	shutdownCtx, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	require.NoError(t, w.Shutdown(shutdownCtx))
}

func TestStartTwiceRunsOnce(t *testing.T) {
	settler := &fakeSettler{}
	w := NewSettlementWorker(settler).WithPollInterval(time.Hour).WithLogger(zap.NewNop())

	w.Run(context.Background())
	require.Eventually(t, func() bool {
		settler.mu.Lock()
		defer settler.mu.Unlock()
		return settler.fetches == 1
	}, time.Second, 5*time.Millisecond)

	assert.NotPanics(t, func() { w.Start(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Shutdown(ctx))
	assert.NotPanics(t, func() { w.Start(context.Background()) })

	settler.mu.Lock()
	defer settler.mu.Unlock()
	assert.Equal(t, 1, settler.fetches)
}
