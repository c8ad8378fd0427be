package models

import (
	"time"

	"github.com/google/uuid"
)

type Account struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`    // "CONSUMER" or "MERCHANT"
	Balance      int64     `json:"balance"` // minor units
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Transaction struct {
	ID            uuid.UUID  `json:"id"`
	FromAccountID uuid.UUID  `json:"from_account_id"`
	ToAccountID   uuid.UUID  `json:"to_account_id"`
	Amount        int64      `json:"amount"`
	Status        string     `json:"status"` // "PENDING", "COMPLETED", "FAILED"
	Kind          string     `json:"kind"`   // "TRANSFER" or "PAY_REQUEST"
	FailureReason *string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// IsTerminal reports whether the transaction has left PENDING.
func (t Transaction) IsTerminal() bool {
	return t.Status != "PENDING"
}

type PayRequest struct {
	ID            uuid.UUID  `json:"id"`
	MerchantID    uuid.UUID  `json:"merchant_id"`
	ConsumerID    uuid.UUID  `json:"consumer_id"`
	Amount        int64      `json:"amount"`
	Status        string     `json:"status"` // "PENDING", "APPROVED", "REJECTED"
	Message       *string    `json:"message,omitempty"`
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type AuditLog struct {
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
