package service

import (
	"context"
	"testing"
	"time"

	"github.com/ayo6706/paynxt/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestReconciliationRun(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	alice := openAccount(t, store, "alice@example.com", domain.RoleConsumer, 1_000)
	openAccount(t, store, "bob@example.com", domain.RoleConsumer, 500)

	transfers := NewTransferService(store)
	settled, err := transfers.CreateTransfer(ctx, CreateTransferInput{FromAccountID: alice.ID, ToEmail: "bob@example.com", Amount: 300})
	require.NoError(t, err)
	_, err = transfers.CreateTransfer(ctx, CreateTransferInput{FromAccountID: alice.ID, ToEmail: "bob@example.com", Amount: 5_000})
	require.NoError(t, err)

	_, err = NewSettlementService(store).Settle(ctx, settled.Transaction.ID)
	require.NoError(t, err)

	svc := NewReconciliationService(store)
	svc.now = func() time.Time { return time.Now().Add(time.Minute) }

	report, err := svc.Run(ctx)
	require.NoError(t, err)
	require.True(t, report.Healthy())
	require.EqualValues(t, 2, report.Accounts)
	require.EqualValues(t, 1_500, report.TotalBalance)
	require.EqualValues(t, 1, report.PendingCount)
	require.GreaterOrEqual(t, report.OldestPendingAge, time.Minute)
}
