package idempotency

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/paynxt/internal/boltstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ledger, err := boltstore.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })
	return NewStore(nil, ledger.Queries(), time.Hour)
}

func transferRequest(key, actor, body string) Request {
	return Request{Key: key, Actor: actor, Method: "POST", Path: "/v1/transactions/transfer", Body: []byte(body)}
}

func TestFingerprintCoversActorAndBody(t *testing.T) {
	base := transferRequest("k", "alice", `{"amount":1}`)
	assert.Equal(t, base.Fingerprint(), transferRequest("other-key", "alice", `{"amount":1}`).Fingerprint())
	assert.NotEqual(t, base.Fingerprint(), transferRequest("k", "bob", `{"amount":1}`).Fingerprint())
	assert.NotEqual(t, base.Fingerprint(), transferRequest("k", "alice", `{"amount":2}`).Fingerprint())
}

func TestBeginClaimThenReplay(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	req := transferRequest("key-1", "alice", `{"amount":5}`)

	_, err := store.Lookup(ctx, req.Key, req.Fingerprint())
	require.ErrorIs(t, err, ErrNotFound)

	rec, claim, err := store.Begin(ctx, req)
	require.NoError(t, err)
	require.Nil(t, rec)
	require.NotNil(t, claim)

	_, err = store.Lookup(ctx, req.Key, req.Fingerprint())
	require.ErrorIs(t, err, ErrInProgress)

	require.NoError(t, claim.Complete(ctx, 202, []byte(`{"ok":true}`), "application/json"))

	rec, claim, err = store.Begin(ctx, req)
	require.NoError(t, err)
	require.Nil(t, claim)
	require.Equal(t, 202, rec.Status)
	require.JSONEq(t, `{"ok":true}`, string(rec.Body))
	require.Equal(t, "store", rec.ServedBy)
}

func TestBeginRejectsReuseByAnotherRequest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, claim, err := store.Begin(ctx, transferRequest("key-1", "alice", `{"amount":5}`))
	require.NoError(t, err)
	require.NoError(t, claim.Complete(ctx, 202, []byte(`{}`), "application/json"))

	_, _, err = store.Begin(ctx, transferRequest("key-1", "alice", `{"amount":6}`))
	require.ErrorIs(t, err, ErrHashMismatch)

	_, _, err = store.Begin(ctx, transferRequest("key-1", "mallory", `{"amount":5}`))
	require.ErrorIs(t, err, ErrHashMismatch)
}

func TestDuplicateWaitsForFirstAttempt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	req := Request{Key: "key-2", Actor: "merchant", Method: "POST", Path: "/v1/pay-requests", Body: []byte(`{}`)}

	_, claim, err := store.Begin(ctx, req)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		_ = claim.Complete(context.Background(), 201, []byte(`{}`), "application/json")
	}()

	rec, dup, err := store.Begin(ctx, req)
	wg.Wait()
	require.NoError(t, err)
	require.Nil(t, dup)
	require.Equal(t, 201, rec.Status)
}

func TestDuplicateGivesUpAfterWaitTimeout(t *testing.T) {
	store := newTestStore(t).WithWaitTimeout(30 * time.Millisecond)
	ctx := context.Background()
	req := transferRequest("key-3", "alice", `{}`)

	_, _, err := store.Begin(ctx, req)
	require.NoError(t, err)

	_, _, err = store.Begin(ctx, req)
	require.ErrorIs(t, err, ErrInProgress)
}

func TestAbandonedClaimIsReclaimedAfterLease(t *testing.T) {
	store := newTestStore(t).WithLease(10 * time.Millisecond).WithWaitTimeout(20 * time.Millisecond)
	ctx := context.Background()
	req := transferRequest("key-4", "alice", `{"amount":5}`)

	_, abandoned, err := store.Begin(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, abandoned)

	time.Sleep(30 * time.Millisecond)

	rec, claim, err := store.Begin(ctx, req)
	require.NoError(t, err)
	require.Nil(t, rec)
	require.NotNil(t, claim)
	require.NoError(t, claim.Complete(ctx, 202, []byte(`{"ok":true}`), "application/json"))

	rec, _, err = store.Begin(ctx, req)
	require.NoError(t, err)
	require.Equal(t, 202, rec.Status)

	_, _, err = store.Begin(ctx, transferRequest("key-4", "mallory", `{"amount":5}`))
	require.ErrorIs(t, err, ErrHashMismatch)
}
