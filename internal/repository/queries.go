package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/paynxt/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries is the Postgres implementation of Querier.
type Queries struct {
	db DBTX
}

var _ Querier = (*Queries)(nil)

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a query set bound to tx.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const accountColumns = `id, email, password_hash, role, balance, created_at, updated_at`

func scanAccount(row pgx.Row) (models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Role, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (q *Queries) CreateAccount(ctx context.Context, arg CreateAccountParams) (models.Account, error) {
	query := `INSERT INTO accounts (id, email, password_hash, role, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING ` + accountColumns
	return scanAccount(q.db.QueryRow(ctx, query, arg.ID, arg.Email, arg.PasswordHash, arg.Role, arg.Balance))
}

func (q *Queries) GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(q.db.QueryRow(ctx, query, id))
}

func (q *Queries) GetAccountByEmail(ctx context.Context, email string) (models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccount(q.db.QueryRow(ctx, query, email))
}

func (q *Queries) LockAccountsForUpdate(ctx context.Context, ids []uuid.UUID) ([]models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	accounts := make([]models.Account, 0, len(ids))
	// One statement per row keeps the lock acquisition order identical to the
	// order of ids.
	for _, id := range ids {
		account, err := scanAccount(q.db.QueryRow(ctx, query, id))
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

func (q *Queries) AdjustBalance(ctx context.Context, arg AdjustBalanceParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE accounts SET balance = balance + $2, updated_at = NOW() WHERE id = $1 AND balance + $2 >= 0`, arg.ID, arg.Delta)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const transactionColumns = `id, from_account_id, to_account_id, amount, status, kind, failure_reason, created_at, completed_at`

func scanTransaction(row pgx.Row) (models.Transaction, error) {
	var (
		t           models.Transaction
		completedAt pgtype.Timestamptz
	)
	err := row.Scan(&t.ID, &t.FromAccountID, &t.ToAccountID, &t.Amount, &t.Status, &t.Kind, &t.FailureReason, &t.CreatedAt, &completedAt)
	t.CompletedAt = FromPgTimestamptz(completedAt)
	return t, err
}

func collectTransactions(rows pgx.Rows) ([]models.Transaction, error) {
	defer rows.Close()
	var out []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (models.Transaction, error) {
	// clock_timestamp keeps creation order distinct for rows created inside one unit.
	query := `INSERT INTO transactions (id, from_account_id, to_account_id, amount, status, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, clock_timestamp())
		RETURNING ` + transactionColumns
	return scanTransaction(q.db.QueryRow(ctx, query, arg.ID, arg.FromAccountID, arg.ToAccountID, arg.Amount, arg.Status, arg.Kind))
}

func (q *Queries) GetTransaction(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return scanTransaction(q.db.QueryRow(ctx, query, id))
}

func (q *Queries) GetPendingTransactionForUpdate(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 AND status = 'PENDING' FOR UPDATE`
	return scanTransaction(q.db.QueryRow(ctx, query, id))
}

func (q *Queries) SetTransactionTerminal(ctx context.Context, arg SetTransactionTerminalParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE transactions
		SET status = $2, completed_at = $3, failure_reason = $4
		WHERE id = $1 AND status = 'PENDING'`,
		arg.ID, arg.Status, ToPgTimestamptz(arg.CompletedAt), arg.FailureReason)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) ListPendingTransactions(ctx context.Context, limit int32) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE status = 'PENDING'
		ORDER BY created_at ASC, id ASC
		LIMIT $1`
	rows, err := q.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (q *Queries) ListAccountTransactions(ctx context.Context, arg ListAccountTransactionsParams) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE (from_account_id = $1 OR to_account_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`
	rows, err := q.db.Query(ctx, query, arg.AccountID, arg.Status, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (q *Queries) CountAccountTransactions(ctx context.Context, arg CountAccountTransactionsParams) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM transactions
		WHERE (from_account_id = $1 OR to_account_id = $1)
		  AND ($2::text IS NULL OR status = $2)`, arg.AccountID, arg.Status).Scan(&count)
	return count, err
}

func (q *Queries) GetPendingBacklog(ctx context.Context) (PendingBacklog, error) {
	var (
		backlog PendingBacklog
		oldest  pgtype.Timestamptz
	)
	err := q.db.QueryRow(ctx, `SELECT COUNT(*), MIN(created_at) FROM transactions WHERE status = 'PENDING'`).Scan(&backlog.Count, &oldest)
	backlog.OldestCreatedAt = FromPgTimestamptz(oldest)
	return backlog, err
}

func (q *Queries) GetLedgerHealth(ctx context.Context) (LedgerHealth, error) {
	var h LedgerHealth
	err := q.db.QueryRow(ctx, `SELECT
		(SELECT COUNT(*) FROM accounts),
		(SELECT COALESCE(SUM(balance), 0) FROM accounts)::BIGINT,
		(SELECT COUNT(*) FROM accounts WHERE balance < 0),
		(SELECT COUNT(*) FROM transactions
			WHERE (status <> 'PENDING' AND completed_at IS NULL)
			   OR (status = 'PENDING' AND completed_at IS NOT NULL)
			   OR (status = 'FAILED' AND failure_reason IS NULL)
			   OR (status = 'COMPLETED' AND failure_reason IS NOT NULL))`).
		Scan(&h.Accounts, &h.TotalBalance, &h.NegativeBalances, &h.InconsistentTransactions)
	return h, err
}

const payRequestColumns = `id, merchant_id, consumer_id, amount, status, message, transaction_id, created_at, updated_at`

func scanPayRequest(row pgx.Row) (models.PayRequest, error) {
	var (
		p             models.PayRequest
		transactionID pgtype.UUID
	)
	err := row.Scan(&p.ID, &p.MerchantID, &p.ConsumerID, &p.Amount, &p.Status, &p.Message, &transactionID, &p.CreatedAt, &p.UpdatedAt)
	if transactionID.Valid {
		id := FromPgUUID(transactionID)
		p.TransactionID = &id
	}
	return p, err
}

func collectPayRequests(rows pgx.Rows) ([]models.PayRequest, error) {
	defer rows.Close()
	var out []models.PayRequest
	for rows.Next() {
		p, err := scanPayRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pay request: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *Queries) CreatePayRequest(ctx context.Context, arg CreatePayRequestParams) (models.PayRequest, error) {
	query := `INSERT INTO pay_requests (id, merchant_id, consumer_id, amount, status, message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'PENDING', $5, clock_timestamp(), clock_timestamp())
		RETURNING ` + payRequestColumns
	return scanPayRequest(q.db.QueryRow(ctx, query, arg.ID, arg.MerchantID, arg.ConsumerID, arg.Amount, arg.Message))
}

func (q *Queries) GetPayRequest(ctx context.Context, id uuid.UUID) (models.PayRequest, error) {
	query := `SELECT ` + payRequestColumns + ` FROM pay_requests WHERE id = $1`
	return scanPayRequest(q.db.QueryRow(ctx, query, id))
}

func (q *Queries) GetPayRequestForUpdate(ctx context.Context, id uuid.UUID) (models.PayRequest, error) {
	query := `SELECT ` + payRequestColumns + ` FROM pay_requests WHERE id = $1 FOR UPDATE`
	return scanPayRequest(q.db.QueryRow(ctx, query, id))
}

func (q *Queries) SetPayRequestStatus(ctx context.Context, arg SetPayRequestStatusParams) (int64, error) {
	var transactionID pgtype.UUID
	if arg.TransactionID != nil {
		transactionID = ToPgUUID(*arg.TransactionID)
	}
	tag, err := q.db.Exec(ctx, `UPDATE pay_requests
		SET status = $2, transaction_id = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'`, arg.ID, arg.Status, transactionID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) ListPayRequestsByMerchant(ctx context.Context, arg ListPayRequestsParams) ([]models.PayRequest, error) {
	query := `SELECT ` + payRequestColumns + ` FROM pay_requests
		WHERE merchant_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`
	rows, err := q.db.Query(ctx, query, arg.AccountID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectPayRequests(rows)
}

func (q *Queries) ListPayRequestsByConsumer(ctx context.Context, arg ListPayRequestsParams) ([]models.PayRequest, error) {
	query := `SELECT ` + payRequestColumns + ` FROM pay_requests
		WHERE consumer_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`
	rows, err := q.db.Query(ctx, query, arg.AccountID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectPayRequests(rows)
}

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (int64, error) {
	var actor pgtype.UUID
	if arg.ActorID != nil {
		actor = ToPgUUID(*arg.ActorID)
	}
	var id int64
	err := q.db.QueryRow(ctx, `INSERT INTO audit_log (entity_type, entity_id, actor_id, action, prev_state, next_state, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id`,
		arg.EntityType, arg.EntityID, actor, arg.Action, arg.PrevState, arg.NextState, arg.Metadata).Scan(&id)
	return id, err
}

func (q *Queries) ListAuditLog(ctx context.Context, entityType string, entityID uuid.UUID) ([]models.AuditLog, error) {
	rows, err := q.db.Query(ctx, `SELECT id, entity_type, entity_id, actor_id, action, prev_state, next_state, metadata, created_at
		FROM audit_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY id ASC`, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AuditLog
	for rows.Next() {
		var (
			entry models.AuditLog
			actor pgtype.UUID
		)
		if err := rows.Scan(&entry.ID, &entry.EntityType, &entry.EntityID, &actor, &entry.Action, &entry.PrevState, &entry.NextState, &entry.Metadata, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		if actor.Valid {
			id := FromPgUUID(actor)
			entry.ActorID = &id
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

const idempotencyColumns = `idempotency_key, request_hash, method, path, response_status, response_body, content_type, in_progress, created_at, updated_at`

func scanIdempotencyKey(row pgx.Row) (IdempotencyKey, error) {
	var k IdempotencyKey
	err := row.Scan(&k.IdempotencyKey, &k.RequestHash, &k.Method, &k.Path, &k.ResponseStatus, &k.ResponseBody, &k.ContentType, &k.InProgress, &k.CreatedAt, &k.UpdatedAt)
	return k, err
}

func (q *Queries) GetIdempotencyKey(ctx context.Context, key string) (IdempotencyKey, error) {
	return scanIdempotencyKey(q.db.QueryRow(ctx, `SELECT `+idempotencyColumns+` FROM idempotency_keys WHERE idempotency_key = $1`, key))
}

func (q *Queries) ReserveIdempotencyKey(ctx context.Context, arg ReserveIdempotencyKeyParams) (IdempotencyKey, error) {
	query := `INSERT INTO idempotency_keys (idempotency_key, request_hash, method, path, in_progress, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())
		ON CONFLICT (idempotency_key) DO UPDATE
			SET updated_at = NOW()
			WHERE idempotency_keys.in_progress
			  AND idempotency_keys.request_hash = EXCLUDED.request_hash
			  AND idempotency_keys.updated_at < $5
		RETURNING ` + idempotencyColumns
	return scanIdempotencyKey(q.db.QueryRow(ctx, query, arg.IdempotencyKey, arg.RequestHash, arg.Method, arg.Path, ToPgTimestamptz(arg.StaleBefore)))
}

func (q *Queries) FinalizeIdempotencyKey(ctx context.Context, arg FinalizeIdempotencyKeyParams) (IdempotencyKey, error) {
	query := `UPDATE idempotency_keys
		SET response_status = $1, response_body = $2, content_type = $3, in_progress = FALSE, updated_at = NOW()
		WHERE idempotency_key = $4 AND request_hash = $5
		RETURNING ` + idempotencyColumns
	return scanIdempotencyKey(q.db.QueryRow(ctx, query, arg.ResponseStatus, arg.ResponseBody, arg.ContentType, arg.IdempotencyKey, arg.RequestHash))
}

// ToPgUUID converts a uuid into its pgtype form.
func ToPgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

// FromPgUUID converts a pgtype UUID back, returning uuid.Nil when NULL.
func FromPgUUID(id pgtype.UUID) uuid.UUID {
	if !id.Valid {
		return uuid.Nil
	}
	return uuid.UUID(id.Bytes)
}

func ToPgTimestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func FromPgTimestamptz(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}
