package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ayo6706/paynxt/internal/boltstore"
	"github.com/ayo6706/paynxt/internal/domain"
	"github.com/ayo6706/paynxt/internal/models"
	"github.com/ayo6706/paynxt/internal/service"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const fixtureYAML = `
accounts:
  - email: alice@example.com
    password: correct-horse
    balance: 10000
  - email: shop@example.com
    password: correct-horse
    role: MERCHANT
`

func TestApplyOpensAccountsOnce(t *testing.T) {
	ledger, err := boltstore.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureYAML), 0o600))
	f, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, f.Accounts, 2)

	accounts := service.NewAccountService(ledger).WithHashCost(bcrypt.MinCost)
	ctx := context.Background()

	res, err := Apply(ctx, accounts, f)
	require.NoError(t, err)
	require.Equal(t, []string{"alice@example.com", "shop@example.com"}, res.Created)
	require.Empty(t, res.Skipped)

	alice, err := ledger.Queries().GetAccountByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.EqualValues(t, 10000, alice.Balance)
	require.Equal(t, domain.RoleConsumer, alice.Role)

	res, err = Apply(ctx, accounts, f)
	require.NoError(t, err)
	require.Empty(t, res.Created)
	require.Len(t, res.Skipped, 2)
}

func TestApplyStopsOnInvalidAccount(t *testing.T) {
	ledger, err := boltstore.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	f, err := Parse([]byte("accounts:\n  - email: bad\n    password: correct-horse\n"))
	require.NoError(t, err)

	_, err = Apply(context.Background(), service.NewAccountService(ledger).WithHashCost(bcrypt.MinCost), f)
	require.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestParseRejectsEmptyFixture(t *testing.T) {
	_, err := Parse([]byte("accounts: []\n"))
	require.Error(t, err)

	_, err = Parse([]byte("accounts: [unterminated"))
	require.Error(t, err)
}
