// Package boltstore is an embedded, single-file implementation of the ledger
// store backed by BoltDB. Bolt admits one writer at a time, so every unit of
// work run through RunInTx is fully serialized and row locks are implicit.
package boltstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/google/uuid"

	"github.com/ayo6706/paynxt/internal/repository"
)

var (
	bucketAccounts           = []byte("accounts")
	bucketAccountsByEmail    = []byte("accounts_by_email")
	bucketTransactions       = []byte("transactions")
	bucketPending            = []byte("transactions_pending")
	bucketAccountTxIndex     = []byte("transactions_by_account")
	bucketPayRequests        = []byte("pay_requests")
	bucketPayRequestMerchant = []byte("pay_requests_by_merchant")
	bucketPayRequestConsumer = []byte("pay_requests_by_consumer")
	bucketAuditLog           = []byte("audit_log")
	bucketIdempotency        = []byte("idempotency_keys")
)

var allBuckets = [][]byte{
	bucketAccounts,
	bucketAccountsByEmail,
	bucketTransactions,
	bucketPending,
	bucketAccountTxIndex,
	bucketPayRequests,
	bucketPayRequestMerchant,
	bucketPayRequestConsumer,
	bucketAuditLog,
	bucketIdempotency,
}

// ErrLocked means another process holds the database file. Bolt files are
// single-process: stop the API before running offline commands against it.
var ErrLocked = errors.New("bolt database is locked by another process")

// lockTimeout bounds the wait for the file lock.
var lockTimeout = 1 * time.Second

// Store wraps a BoltDB database.
type Store struct {
	db      *bolt.DB
	queries *Queries
}

// Open opens (or creates) the database file at path and ensures every bucket
// exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: lockTimeout})
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, fmt.Errorf("open bolt database %s: %w", path, ErrLocked)
	}
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, queries: &Queries{db: db}}, nil
}

// Queries returns a query set where every call runs in its own bolt
// transaction.
func (s *Store) Queries() repository.Querier {
	return s.queries
}

// RunInTx executes fn inside a single read-write bolt transaction. Returning
// an error from fn discards every write made through q.
func (s *Store) RunInTx(ctx context.Context, fn func(q repository.Querier) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(&Queries{db: s.db, tx: tx})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketAccounts) == nil {
			return errors.New("accounts bucket missing")
		}
		return nil
	})
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// indexKey orders index entries by owner first and creation sequence second.
func indexKey(owner uuid.UUID, seq uint64) []byte {
	key := make([]byte, 0, 24)
	key = append(key, owner[:]...)
	return append(key, seqKey(seq)...)
}
