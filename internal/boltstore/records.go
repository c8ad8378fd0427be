package boltstore

import (
	"time"

	"github.com/google/uuid"

	"github.com/ayo6706/paynxt/internal/models"
)

// Records are the on-disk JSON layout. They are kept apart from the models so
// that fields hidden from API responses (password hashes, sequences) persist.

type accountRecord struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Role         string    `json:"role"`
	Balance      int64     `json:"balance"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (r accountRecord) model() models.Account {
	return models.Account{
		ID:           r.ID,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Role:         r.Role,
		Balance:      r.Balance,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type transactionRecord struct {
	Seq           uint64     `json:"seq"`
	ID            uuid.UUID  `json:"id"`
	FromAccountID uuid.UUID  `json:"from_account_id"`
	ToAccountID   uuid.UUID  `json:"to_account_id"`
	Amount        int64      `json:"amount"`
	Status        string     `json:"status"`
	Kind          string     `json:"kind"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func (r transactionRecord) model() models.Transaction {
	return models.Transaction{
		ID:            r.ID,
		FromAccountID: r.FromAccountID,
		ToAccountID:   r.ToAccountID,
		Amount:        r.Amount,
		Status:        r.Status,
		Kind:          r.Kind,
		FailureReason: r.FailureReason,
		CreatedAt:     r.CreatedAt,
		CompletedAt:   r.CompletedAt,
	}
}

type payRequestRecord struct {
	Seq           uint64     `json:"seq"`
	ID            uuid.UUID  `json:"id"`
	MerchantID    uuid.UUID  `json:"merchant_id"`
	ConsumerID    uuid.UUID  `json:"consumer_id"`
	Amount        int64      `json:"amount"`
	Status        string     `json:"status"`
	Message       *string    `json:"message,omitempty"`
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (r payRequestRecord) model() models.PayRequest {
	return models.PayRequest{
		ID:            r.ID,
		MerchantID:    r.MerchantID,
		ConsumerID:    r.ConsumerID,
		Amount:        r.Amount,
		Status:        r.Status,
		Message:       r.Message,
		TransactionID: r.TransactionID,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

type auditRecord struct {
	ID         int64      `json:"id"`
	EntityType string     `json:"entity_type"`
	EntityID   uuid.UUID  `json:"entity_id"`
	ActorID    *uuid.UUID `json:"actor_id,omitempty"`
	Action     string     `json:"action"`
	PrevState  *string    `json:"prev_state,omitempty"`
	NextState  *string    `json:"next_state,omitempty"`
	Metadata   []byte     `json:"metadata,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (r auditRecord) model() models.AuditLog {
	return models.AuditLog{
		ID:         r.ID,
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		ActorID:    r.ActorID,
		Action:     r.Action,
		PrevState:  r.PrevState,
		NextState:  r.NextState,
		Metadata:   r.Metadata,
		CreatedAt:  r.CreatedAt,
	}
}

type idempotencyRecord struct {
	Key            string    `json:"key"`
	RequestHash    string    `json:"request_hash"`
	Method         string    `json:"method"`
	Path           string    `json:"path"`
	ResponseStatus int32     `json:"response_status"`
	ResponseBody   []byte    `json:"response_body,omitempty"`
	ContentType    string    `json:"content_type"`
	InProgress     bool      `json:"in_progress"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
