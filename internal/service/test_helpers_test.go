package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ayo6706/paynxt/internal/boltstore"
	"github.com/ayo6706/paynxt/internal/models"
	"github.com/ayo6706/paynxt/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// setupTestStore opens an embedded ledger in a temporary directory.
func setupTestStore(t *testing.T) *boltstore.Store {
	t.Helper()
	store, err := boltstore.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func openAccount(t *testing.T, store QueryStore, email, role string, balance int64) *models.Account {
	t.Helper()
	account, err := NewAccountService(store).WithHashCost(bcrypt.MinCost).Open(context.Background(), OpenAccountInput{
		Email:          email,
		Password:       "correct-horse",
		Role:           role,
		InitialBalance: balance,
	})
	require.NoError(t, err)
	return account
}

func balanceOf(t *testing.T, store QueryStore, id uuid.UUID) int64 {
	t.Helper()
	account, err := store.Queries().GetAccount(context.Background(), id)
	require.NoError(t, err)
	return account.Balance
}

func transactionStatus(t *testing.T, store QueryStore, id uuid.UUID) models.Transaction {
	t.Helper()
	tx, err := store.Queries().GetTransaction(context.Background(), id)
	require.NoError(t, err)
	return tx
}

var errInjected = errors.New("injected store fault")

// faultyStore wraps a real store and makes SetTransactionTerminal fail inside
// every unit of work.
type faultyStore struct {
	*boltstore.Store
}

func (f faultyStore) RunInTx(ctx context.Context, fn func(q repository.Querier) error) error {
	return f.Store.RunInTx(ctx, func(q repository.Querier) error {
		return fn(faultyQuerier{Querier: q})
	})
}

type faultyQuerier struct {
	repository.Querier
}

func (faultyQuerier) SetTransactionTerminal(context.Context, repository.SetTransactionTerminalParams) (int64, error) {
	return 0, errInjected
}
