// Package idempotency makes mutating ledger requests safe to retry: the first
// request under a key runs, every later request with the same fingerprint gets
// the stored response back.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/paynxt/internal/observability"
	"github.com/ayo6706/paynxt/internal/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrNotFound     = errors.New("idempotency key not found")
	ErrHashMismatch = errors.New("idempotency key reused for a different request")
	ErrInProgress   = errors.New("idempotency key in progress")
)

const (
	cachePrefix        = "paynxt:idempotency:"
	defaultWaitTimeout = 5 * time.Second
	defaultLease       = time.Minute
	pollEvery          = 50 * time.Millisecond
)

// Request identifies one client attempt. Actor is part of the fingerprint, so
// a key reused by another account conflicts instead of replaying.
type Request struct {
	Key    string
	Actor  string
	Method string
	Path   string
	Body   []byte
}

// Fingerprint hashes everything except the key itself.
func (r Request) Fingerprint() string {
	h := sha256.New()
	for _, part := range []string{r.Method, r.Path, r.Actor} {
		h.Write([]byte(part))
		h.Write([]byte{'|'})
	}
	h.Write(r.Body)
	return hex.EncodeToString(h.Sum(nil))
}

// Record is a finished response ready to replay.
type Record struct {
	Status      int    `json:"status"`
	Body        []byte `json:"body"`
	ContentType string `json:"content_type"`
	Hash        string `json:"hash"`
	ServedBy    string `json:"-"`
}

// KeyStore is the durable side; both ledger stores satisfy it.
type KeyStore interface {
	GetIdempotencyKey(ctx context.Context, key string) (repository.IdempotencyKey, error)
	ReserveIdempotencyKey(ctx context.Context, arg repository.ReserveIdempotencyKeyParams) (repository.IdempotencyKey, error)
	FinalizeIdempotencyKey(ctx context.Context, arg repository.FinalizeIdempotencyKeyParams) (repository.IdempotencyKey, error)
}

// Store keeps responses in the ledger store and mirrors finished ones to
// redis when a client is configured.
type Store struct {
	cache       redis.Cmdable
	keys        KeyStore
	ttl         time.Duration
	waitTimeout time.Duration
	lease       time.Duration
	now         func() time.Time
}

// NewStore builds a store. cache may be nil.
func NewStore(cache redis.Cmdable, keys KeyStore, ttl time.Duration) *Store {
	return &Store{
		cache:       cache,
		keys:        keys,
		ttl:         ttl,
		waitTimeout: defaultWaitTimeout,
		lease:       defaultLease,
		now:         time.Now,
	}
}

// WithLease sets how long a reservation may stay in progress before a retry
// of the same request takes it over. It must outlast the slowest handler.
func (s *Store) WithLease(d time.Duration) *Store {
	if d > 0 {
		s.lease = d
	}
	return s
}

// WithWaitTimeout bounds how long a duplicate waits for the first request.
func (s *Store) WithWaitTimeout(d time.Duration) *Store {
	if d > 0 {
		s.waitTimeout = d
	}
	return s
}

// Claim is held by the request that reserved a key. It must be completed
// with the response the handler produced.
type Claim struct {
	store *Store
	key   string
	hash  string
}

// Begin either replays a finished response (rec != nil) or hands the caller
// a claim to run the request. A duplicate arriving while the first attempt
// runs waits for it, up to the store's wait timeout, then fails with
// ErrInProgress. A reservation older than the lease was abandoned by a
// crashed attempt and is claimed again.
func (s *Store) Begin(ctx context.Context, req Request) (*Record, *Claim, error) {
	hash := req.Fingerprint()

	rec, err := s.Lookup(ctx, req.Key, hash)
	inProgress := errors.Is(err, ErrInProgress)
	switch {
	case err == nil:
		observability.IncrementIdempotencyEvent("replay")
		return rec, nil, nil
	case errors.Is(err, ErrHashMismatch):
		observability.IncrementIdempotencyEvent("hash_mismatch")
		return nil, nil, err
	case inProgress:
		// Reserve below succeeds only if the reservation's lease has lapsed.
	case !errors.Is(err, ErrNotFound):
		observability.IncrementIdempotencyEvent("lookup_error")
		zap.L().Warn("idempotency lookup failed, falling back to reserve", zap.String("key", req.Key), zap.Error(err))
	}

	_, err = s.keys.ReserveIdempotencyKey(ctx, repository.ReserveIdempotencyKeyParams{
		IdempotencyKey: req.Key,
		RequestHash:    hash,
		Method:         req.Method,
		Path:           req.Path,
		StaleBefore:    s.now().Add(-s.lease),
	})
	if errors.Is(err, repository.ErrNoRows) {
		// Lost the race to another attempt with the same key.
		return s.await(ctx, req.Key, hash)
	}
	if err != nil {
		observability.IncrementIdempotencyEvent("reserve_error")
		return nil, nil, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if inProgress {
		observability.IncrementIdempotencyEvent("reclaimed")
		zap.L().Warn("idempotency reservation outlived its lease, reclaiming", zap.String("key", req.Key), zap.Duration("lease", s.lease))
	} else {
		observability.IncrementIdempotencyEvent("reserved")
	}
	return nil, &Claim{store: s, key: req.Key, hash: hash}, nil
}

// Complete stores the response so later attempts replay it.
func (c *Claim) Complete(ctx context.Context, status int, body []byte, contentType string) error {
	row, err := c.store.keys.FinalizeIdempotencyKey(ctx, repository.FinalizeIdempotencyKeyParams{
		ResponseStatus: int32(status),
		ResponseBody:   body,
		ContentType:    contentType,
		IdempotencyKey: c.key,
		RequestHash:    c.hash,
	})
	if err != nil {
		observability.IncrementIdempotencyEvent("finalize_error")
		if errors.Is(err, repository.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("finalize idempotency key: %w", err)
	}
	observability.IncrementIdempotencyEvent("finalized")
	c.store.remember(ctx, c.key, recordFromRow(row))
	return nil
}

// Lookup returns the finished response stored under key.
func (s *Store) Lookup(ctx context.Context, key, hash string) (*Record, error) {
	if rec, ok := s.cached(ctx, key); ok {
		if rec.Hash != hash {
			return nil, ErrHashMismatch
		}
		rec.ServedBy = "redis"
		return rec, nil
	}

	row, err := s.keys.GetIdempotencyKey(ctx, key)
	if errors.Is(err, repository.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if row.RequestHash != hash {
		return nil, ErrHashMismatch
	}
	if row.InProgress {
		return nil, ErrInProgress
	}
	rec := recordFromRow(row)
	s.remember(ctx, key, rec)
	rec.ServedBy = "store"
	return rec, nil
}

func (s *Store) await(ctx context.Context, key, hash string) (*Record, *Claim, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.waitTimeout)
	defer cancel()

	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()
	for {
		rec, err := s.Lookup(waitCtx, key, hash)
		if err == nil {
			observability.IncrementIdempotencyEvent("replay_after_wait")
			return rec, nil, nil
		}
		if !errors.Is(err, ErrInProgress) {
			return nil, nil, err
		}
		select {
		case <-waitCtx.Done():
			observability.IncrementIdempotencyEvent("in_progress_conflict")
			return nil, nil, ErrInProgress
		case <-ticker.C:
		}
	}
}

func recordFromRow(row repository.IdempotencyKey) *Record {
	return &Record{
		Status:      int(row.ResponseStatus),
		Body:        row.ResponseBody,
		ContentType: row.ContentType,
		Hash:        row.RequestHash,
	}
}

func (s *Store) cached(ctx context.Context, key string) (*Record, bool) {
	if s.cache == nil {
		return nil, false
	}
	val, err := s.cache.Get(ctx, cachePrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("redis idempotency lookup failed", zap.Error(err))
		}
		return nil, false
	}
	var rec Record
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, false
	}
	return &rec, true
}

func (s *Store) remember(ctx context.Context, key string, rec *Record) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cachePrefix+key, payload, s.ttl).Err(); err != nil {
		zap.L().Warn("redis idempotency cache set failed", zap.Error(err))
	}
}
