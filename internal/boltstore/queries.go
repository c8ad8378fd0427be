package boltstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/google/uuid"

	"github.com/ayo6706/paynxt/internal/models"
	"github.com/ayo6706/paynxt/internal/repository"
)

// Queries implements repository.Querier on bolt buckets. When tx is nil every
// call opens its own bolt transaction.
type Queries struct {
	db *bolt.DB
	tx *bolt.Tx
}

var _ repository.Querier = (*Queries)(nil)

func (q *Queries) update(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if q.tx != nil {
		return fn(q.tx)
	}
	return q.db.Update(fn)
}

func (q *Queries) view(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if q.tx != nil {
		return fn(q.tx)
	}
	return q.db.View(fn)
}

func now() time.Time {
	return time.Now().UTC()
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return b.Put(key, data)
}

func getJSON(b *bolt.Bucket, key []byte, v any) error {
	data := b.Get(key)
	if data == nil {
		return repository.ErrNoRows
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

// eachNewest walks the index entries owned by owner from newest to oldest.
// fn returns false to stop.
func eachNewest(b *bolt.Bucket, owner uuid.UUID, fn func(value []byte) (bool, error)) error {
	c := b.Cursor()
	upper := indexKey(owner, math.MaxUint64)
	k, v := c.Seek(upper)
	switch {
	case k == nil:
		k, v = c.Last()
	case !bytes.Equal(k, upper):
		k, v = c.Prev()
	}
	for ; k != nil && bytes.HasPrefix(k, owner[:]); k, v = c.Prev() {
		more, err := fn(v)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// Accounts

func getAccount(tx *bolt.Tx, id uuid.UUID) (accountRecord, error) {
	var rec accountRecord
	err := getJSON(tx.Bucket(bucketAccounts), id[:], &rec)
	return rec, err
}

func (q *Queries) CreateAccount(ctx context.Context, arg repository.CreateAccountParams) (models.Account, error) {
	var out models.Account
	err := q.update(ctx, func(tx *bolt.Tx) error {
		accounts := tx.Bucket(bucketAccounts)
		byEmail := tx.Bucket(bucketAccountsByEmail)
		if accounts.Get(arg.ID[:]) != nil {
			return fmt.Errorf("account %s: %w", arg.ID, repository.ErrUniqueViolation)
		}
		email := strings.ToLower(arg.Email)
		if byEmail.Get([]byte(email)) != nil {
			return fmt.Errorf("account email: %w", repository.ErrUniqueViolation)
		}
		if arg.Balance < 0 {
			return fmt.Errorf("account %s: negative opening balance", arg.ID)
		}

		ts := now()
		rec := accountRecord{
			ID:           arg.ID,
			Email:        arg.Email,
			PasswordHash: arg.PasswordHash,
			Role:         arg.Role,
			Balance:      arg.Balance,
			CreatedAt:    ts,
			UpdatedAt:    ts,
		}
		if err := putJSON(accounts, arg.ID[:], rec); err != nil {
			return err
		}
		if err := byEmail.Put([]byte(email), arg.ID[:]); err != nil {
			return err
		}
		out = rec.model()
		return nil
	})
	return out, err
}

func (q *Queries) GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error) {
	var out models.Account
	err := q.view(ctx, func(tx *bolt.Tx) error {
		rec, err := getAccount(tx, id)
		out = rec.model()
		return err
	})
	return out, err
}

func (q *Queries) GetAccountByEmail(ctx context.Context, email string) (models.Account, error) {
	var out models.Account
	err := q.view(ctx, func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketAccountsByEmail).Get([]byte(strings.ToLower(email)))
		if raw == nil {
			return repository.ErrNoRows
		}
		id, err := uuid.FromBytes(raw)
		if err != nil {
			return fmt.Errorf("decode email index: %w", err)
		}
		rec, err := getAccount(tx, id)
		out = rec.model()
		return err
	})
	return out, err
}

func (q *Queries) LockAccountsForUpdate(ctx context.Context, ids []uuid.UUID) ([]models.Account, error) {
	out := make([]models.Account, 0, len(ids))
	err := q.update(ctx, func(tx *bolt.Tx) error {
		for _, id := range ids {
			rec, err := getAccount(tx, id)
			if err != nil {
				return err
			}
			out = append(out, rec.model())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (q *Queries) AdjustBalance(ctx context.Context, arg repository.AdjustBalanceParams) (int64, error) {
	var affected int64
	err := q.update(ctx, func(tx *bolt.Tx) error {
		rec, err := getAccount(tx, arg.ID)
		if errors.Is(err, repository.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if rec.Balance+arg.Delta < 0 {
			return nil
		}
		rec.Balance += arg.Delta
		rec.UpdatedAt = now()
		if err := putJSON(tx.Bucket(bucketAccounts), arg.ID[:], rec); err != nil {
			return err
		}
		affected = 1
		return nil
	})
	return affected, err
}

// Transactions

func getTransaction(tx *bolt.Tx, id uuid.UUID) (transactionRecord, error) {
	var rec transactionRecord
	err := getJSON(tx.Bucket(bucketTransactions), id[:], &rec)
	return rec, err
}

func getTransactionByRef(tx *bolt.Tx, ref []byte) (transactionRecord, error) {
	id, err := uuid.FromBytes(ref)
	if err != nil {
		return transactionRecord{}, fmt.Errorf("decode transaction index: %w", err)
	}
	return getTransaction(tx, id)
}

func (q *Queries) CreateTransaction(ctx context.Context, arg repository.CreateTransactionParams) (models.Transaction, error) {
	var out models.Transaction
	err := q.update(ctx, func(tx *bolt.Tx) error {
		if arg.FromAccountID == arg.ToAccountID {
			return fmt.Errorf("transaction %s moves funds to its own source: %w", arg.ID, repository.ErrCheckViolation)
		}
		transactions := tx.Bucket(bucketTransactions)
		if transactions.Get(arg.ID[:]) != nil {
			return fmt.Errorf("transaction %s: %w", arg.ID, repository.ErrUniqueViolation)
		}
		seq, err := transactions.NextSequence()
		if err != nil {
			return err
		}

		rec := transactionRecord{
			Seq:           seq,
			ID:            arg.ID,
			FromAccountID: arg.FromAccountID,
			ToAccountID:   arg.ToAccountID,
			Amount:        arg.Amount,
			Status:        arg.Status,
			Kind:          arg.Kind,
			CreatedAt:     now(),
		}
		if err := putJSON(transactions, arg.ID[:], rec); err != nil {
			return err
		}
		if rec.Status == "PENDING" {
			if err := tx.Bucket(bucketPending).Put(seqKey(seq), arg.ID[:]); err != nil {
				return err
			}
		}
		index := tx.Bucket(bucketAccountTxIndex)
		for _, owner := range []uuid.UUID{arg.FromAccountID, arg.ToAccountID} {
			if err := index.Put(indexKey(owner, seq), arg.ID[:]); err != nil {
				return err
			}
		}
		out = rec.model()
		return nil
	})
	return out, err
}

func (q *Queries) GetTransaction(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	var out models.Transaction
	err := q.view(ctx, func(tx *bolt.Tx) error {
		rec, err := getTransaction(tx, id)
		out = rec.model()
		return err
	})
	return out, err
}

func (q *Queries) GetPendingTransactionForUpdate(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	var out models.Transaction
	err := q.update(ctx, func(tx *bolt.Tx) error {
		rec, err := getTransaction(tx, id)
		if err != nil {
			return err
		}
		if rec.Status != "PENDING" {
			return repository.ErrNoRows
		}
		out = rec.model()
		return nil
	})
	return out, err
}

func (q *Queries) SetTransactionTerminal(ctx context.Context, arg repository.SetTransactionTerminalParams) (int64, error) {
	if (arg.Status == "FAILED") != (arg.FailureReason != nil) || arg.Status == "PENDING" {
		return 0, fmt.Errorf("transaction %s: status %s with failure reason set=%t: %w",
			arg.ID, arg.Status, arg.FailureReason != nil, repository.ErrCheckViolation)
	}
	var affected int64
	err := q.update(ctx, func(tx *bolt.Tx) error {
		rec, err := getTransaction(tx, arg.ID)
		if errors.Is(err, repository.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if rec.Status != "PENDING" {
			return nil
		}
		completedAt := arg.CompletedAt.UTC()
		rec.Status = arg.Status
		rec.CompletedAt = &completedAt
		rec.FailureReason = arg.FailureReason
		if err := putJSON(tx.Bucket(bucketTransactions), arg.ID[:], rec); err != nil {
			return err
		}
		if err := tx.Bucket(bucketPending).Delete(seqKey(rec.Seq)); err != nil {
			return err
		}
		affected = 1
		return nil
	})
	return affected, err
}

func (q *Queries) ListPendingTransactions(ctx context.Context, limit int32) ([]models.Transaction, error) {
	var out []models.Transaction
	err := q.view(ctx, func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketPending).Cursor()
		for k, v := c.First(); k != nil && int32(len(out)) < limit; k, v = c.Next() {
			rec, err := getTransactionByRef(tx, v)
			if err != nil {
				return err
			}
			out = append(out, rec.model())
		}
		return nil
	})
	return out, err
}

func matchesStatus(rec transactionRecord, status *string) bool {
	return status == nil || rec.Status == *status
}

func (q *Queries) ListAccountTransactions(ctx context.Context, arg repository.ListAccountTransactionsParams) ([]models.Transaction, error) {
	var out []models.Transaction
	err := q.view(ctx, func(tx *bolt.Tx) error {
		skipped := int32(0)
		return eachNewest(tx.Bucket(bucketAccountTxIndex), arg.AccountID, func(v []byte) (bool, error) {
			rec, err := getTransactionByRef(tx, v)
			if err != nil {
				return false, err
			}
			if !matchesStatus(rec, arg.Status) {
				return true, nil
			}
			if skipped < arg.Offset {
				skipped++
				return true, nil
			}
			out = append(out, rec.model())
			return int32(len(out)) < arg.Limit, nil
		})
	})
	return out, err
}

func (q *Queries) CountAccountTransactions(ctx context.Context, arg repository.CountAccountTransactionsParams) (int64, error) {
	var count int64
	err := q.view(ctx, func(tx *bolt.Tx) error {
		return eachNewest(tx.Bucket(bucketAccountTxIndex), arg.AccountID, func(v []byte) (bool, error) {
			rec, err := getTransactionByRef(tx, v)
			if err != nil {
				return false, err
			}
			if matchesStatus(rec, arg.Status) {
				count++
			}
			return true, nil
		})
	})
	return count, err
}

func (q *Queries) GetPendingBacklog(ctx context.Context) (repository.PendingBacklog, error) {
	var backlog repository.PendingBacklog
	err := q.view(ctx, func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketPending).Cursor()
		var first []byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if first == nil {
				first = v
			}
			backlog.Count++
		}
		if first == nil {
			return nil
		}
		rec, err := getTransactionByRef(tx, first)
		if err != nil {
			return err
		}
		oldest := rec.CreatedAt
		backlog.OldestCreatedAt = &oldest
		return nil
	})
	return backlog, err
}

func (q *Queries) GetLedgerHealth(ctx context.Context) (repository.LedgerHealth, error) {
	var h repository.LedgerHealth
	err := q.view(ctx, func(tx *bolt.Tx) error {
		err := tx.Bucket(bucketAccounts).ForEach(func(_, v []byte) error {
			var rec accountRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			h.Accounts++
			h.TotalBalance += rec.Balance
			if rec.Balance < 0 {
				h.NegativeBalances++
			}
			return nil
		})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketTransactions).ForEach(func(_, v []byte) error {
			var rec transactionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			pending := rec.Status == "PENDING"
			switch {
			case pending && rec.CompletedAt != nil,
				!pending && rec.CompletedAt == nil,
				rec.Status == "FAILED" && rec.FailureReason == nil,
				rec.Status == "COMPLETED" && rec.FailureReason != nil:
				h.InconsistentTransactions++
			}
			return nil
		})
	})
	return h, err
}

// Pay requests

func getPayRequest(tx *bolt.Tx, id uuid.UUID) (payRequestRecord, error) {
	var rec payRequestRecord
	err := getJSON(tx.Bucket(bucketPayRequests), id[:], &rec)
	return rec, err
}

func (q *Queries) CreatePayRequest(ctx context.Context, arg repository.CreatePayRequestParams) (models.PayRequest, error) {
	var out models.PayRequest
	err := q.update(ctx, func(tx *bolt.Tx) error {
		if arg.MerchantID == arg.ConsumerID {
			return fmt.Errorf("pay request %s: %w", arg.ID, repository.ErrCheckViolation)
		}
		payRequests := tx.Bucket(bucketPayRequests)
		if payRequests.Get(arg.ID[:]) != nil {
			return fmt.Errorf("pay request %s: %w", arg.ID, repository.ErrUniqueViolation)
		}
		seq, err := payRequests.NextSequence()
		if err != nil {
			return err
		}
		ts := now()
		rec := payRequestRecord{
			Seq:        seq,
			ID:         arg.ID,
			MerchantID: arg.MerchantID,
			ConsumerID: arg.ConsumerID,
			Amount:     arg.Amount,
			Status:     "PENDING",
			Message:    arg.Message,
			CreatedAt:  ts,
			UpdatedAt:  ts,
		}
		if err := putJSON(payRequests, arg.ID[:], rec); err != nil {
			return err
		}
		if err := tx.Bucket(bucketPayRequestMerchant).Put(indexKey(arg.MerchantID, seq), arg.ID[:]); err != nil {
			return err
		}
		if err := tx.Bucket(bucketPayRequestConsumer).Put(indexKey(arg.ConsumerID, seq), arg.ID[:]); err != nil {
			return err
		}
		out = rec.model()
		return nil
	})
	return out, err
}

func (q *Queries) GetPayRequest(ctx context.Context, id uuid.UUID) (models.PayRequest, error) {
	var out models.PayRequest
	err := q.view(ctx, func(tx *bolt.Tx) error {
		rec, err := getPayRequest(tx, id)
		out = rec.model()
		return err
	})
	return out, err
}

func (q *Queries) GetPayRequestForUpdate(ctx context.Context, id uuid.UUID) (models.PayRequest, error) {
	var out models.PayRequest
	err := q.update(ctx, func(tx *bolt.Tx) error {
		rec, err := getPayRequest(tx, id)
		out = rec.model()
		return err
	})
	return out, err
}

func (q *Queries) SetPayRequestStatus(ctx context.Context, arg repository.SetPayRequestStatusParams) (int64, error) {
	var affected int64
	err := q.update(ctx, func(tx *bolt.Tx) error {
		rec, err := getPayRequest(tx, arg.ID)
		if errors.Is(err, repository.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if rec.Status != "PENDING" {
			return nil
		}
		rec.Status = arg.Status
		rec.TransactionID = arg.TransactionID
		rec.UpdatedAt = now()
		if err := putJSON(tx.Bucket(bucketPayRequests), arg.ID[:], rec); err != nil {
			return err
		}
		affected = 1
		return nil
	})
	return affected, err
}

func (q *Queries) listPayRequests(ctx context.Context, bucket []byte, arg repository.ListPayRequestsParams) ([]models.PayRequest, error) {
	var out []models.PayRequest
	err := q.view(ctx, func(tx *bolt.Tx) error {
		skipped := int32(0)
		return eachNewest(tx.Bucket(bucket), arg.AccountID, func(v []byte) (bool, error) {
			if skipped < arg.Offset {
				skipped++
				return true, nil
			}
			id, err := uuid.FromBytes(v)
			if err != nil {
				return false, fmt.Errorf("decode pay request index: %w", err)
			}
			rec, err := getPayRequest(tx, id)
			if err != nil {
				return false, err
			}
			out = append(out, rec.model())
			return int32(len(out)) < arg.Limit, nil
		})
	})
	return out, err
}

func (q *Queries) ListPayRequestsByMerchant(ctx context.Context, arg repository.ListPayRequestsParams) ([]models.PayRequest, error) {
	return q.listPayRequests(ctx, bucketPayRequestMerchant, arg)
}

func (q *Queries) ListPayRequestsByConsumer(ctx context.Context, arg repository.ListPayRequestsParams) ([]models.PayRequest, error) {
	return q.listPayRequests(ctx, bucketPayRequestConsumer, arg)
}

// Audit log

func (q *Queries) InsertAuditLog(ctx context.Context, arg repository.InsertAuditLogParams) (int64, error) {
	var id int64
	err := q.update(ctx, func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAuditLog)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		id = int64(seq)
		return putJSON(b, seqKey(seq), auditRecord{
			ID:         id,
			EntityType: arg.EntityType,
			EntityID:   arg.EntityID,
			ActorID:    arg.ActorID,
			Action:     arg.Action,
			PrevState:  arg.PrevState,
			NextState:  arg.NextState,
			Metadata:   arg.Metadata,
			CreatedAt:  now(),
		})
	})
	return id, err
}

func (q *Queries) ListAuditLog(ctx context.Context, entityType string, entityID uuid.UUID) ([]models.AuditLog, error) {
	var out []models.AuditLog
	err := q.view(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAuditLog).ForEach(func(_, v []byte) error {
			var rec auditRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.EntityType == entityType && rec.EntityID == entityID {
				out = append(out, rec.model())
			}
			return nil
		})
	})
	return out, err
}

// Idempotency keys

func (r idempotencyRecord) row() repository.IdempotencyKey {
	return repository.IdempotencyKey{
		IdempotencyKey: r.Key,
		RequestHash:    r.RequestHash,
		Method:         r.Method,
		Path:           r.Path,
		ResponseStatus: r.ResponseStatus,
		ResponseBody:   r.ResponseBody,
		ContentType:    r.ContentType,
		InProgress:     r.InProgress,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (q *Queries) GetIdempotencyKey(ctx context.Context, key string) (repository.IdempotencyKey, error) {
	var out repository.IdempotencyKey
	err := q.view(ctx, func(tx *bolt.Tx) error {
		var rec idempotencyRecord
		if err := getJSON(tx.Bucket(bucketIdempotency), []byte(key), &rec); err != nil {
			return err
		}
		out = rec.row()
		return nil
	})
	return out, err
}

// ReserveIdempotencyKey returns ErrNoRows when the key is already taken,
// unless it is an abandoned in-progress reservation for the same request.
func (q *Queries) ReserveIdempotencyKey(ctx context.Context, arg repository.ReserveIdempotencyKeyParams) (repository.IdempotencyKey, error) {
	var out repository.IdempotencyKey
	err := q.update(ctx, func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIdempotency)
		ts := now()
		if raw := b.Get([]byte(arg.IdempotencyKey)); raw != nil {
			var existing idempotencyRecord
			if err := json.Unmarshal(raw, &existing); err != nil {
				return err
			}
			if !existing.InProgress || existing.RequestHash != arg.RequestHash || !existing.UpdatedAt.Before(arg.StaleBefore) {
				return repository.ErrNoRows
			}
			existing.UpdatedAt = ts
			if err := putJSON(b, []byte(arg.IdempotencyKey), existing); err != nil {
				return err
			}
			out = existing.row()
			return nil
		}
		rec := idempotencyRecord{
			Key:         arg.IdempotencyKey,
			RequestHash: arg.RequestHash,
			Method:      arg.Method,
			Path:        arg.Path,
			InProgress:  true,
			CreatedAt:   ts,
			UpdatedAt:   ts,
		}
		if err := putJSON(b, []byte(arg.IdempotencyKey), rec); err != nil {
			return err
		}
		out = rec.row()
		return nil
	})
	return out, err
}

func (q *Queries) FinalizeIdempotencyKey(ctx context.Context, arg repository.FinalizeIdempotencyKeyParams) (repository.IdempotencyKey, error) {
	var out repository.IdempotencyKey
	err := q.update(ctx, func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIdempotency)
		var rec idempotencyRecord
		if err := getJSON(b, []byte(arg.IdempotencyKey), &rec); err != nil {
			return err
		}
		if rec.RequestHash != arg.RequestHash {
			return repository.ErrNoRows
		}
		rec.ResponseStatus = arg.ResponseStatus
		rec.ResponseBody = arg.ResponseBody
		rec.ContentType = arg.ContentType
		rec.InProgress = false
		rec.UpdatedAt = now()
		if err := putJSON(b, []byte(arg.IdempotencyKey), rec); err != nil {
			return err
		}
		out = rec.row()
		return nil
	})
	return out, err
}
