package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ayo6706/paynxt/internal/domain"
	"github.com/ayo6706/paynxt/internal/models"
	"github.com/ayo6706/paynxt/internal/observability"
	"github.com/ayo6706/paynxt/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PayRequestService runs the pay request lifecycle: a merchant asks a
// consumer for money, the consumer approves (spawning a PENDING transaction)
// or rejects. Each request is resolved at most once.
type PayRequestService struct {
	store          QueryStore
	audit          *AuditService
	strictAdvisory bool
}

func NewPayRequestService(store QueryStore) *PayRequestService {
	return &PayRequestService{
		store: store,
		audit: NewAuditService(store),
	}
}

// WithStrictAdvisory makes approval fail when the consumer currently lacks
// the funds.
func (s *PayRequestService) WithStrictAdvisory(strict bool) *PayRequestService {
	s.strictAdvisory = strict
	return s
}

type CreatePayRequestInput struct {
	MerchantID    uuid.UUID
	ConsumerEmail string
	Amount        int64
	Message       string
}

type ApprovalResult struct {
	PayRequest  models.PayRequest  `json:"pay_request"`
	Transaction models.Transaction `json:"transaction"`
	Advisory    BalanceAdvisory    `json:"advisory"`
	Message     string             `json:"message"`
}

// Create opens a PENDING pay request from a merchant to a consumer.
func (s *PayRequestService) Create(ctx context.Context, in CreatePayRequestInput) (*models.PayRequest, error) {
	if err := domain.ValidateAmount(in.Amount); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidAmount, err)
	}
	message := strings.TrimSpace(in.Message)
	if utf8.RuneCountInString(message) > domain.MaxPayRequestMessageLength {
		return nil, fmt.Errorf("%w: message exceeds %d characters", models.ErrInvalidInput, domain.MaxPayRequestMessageLength)
	}

	var created models.PayRequest
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		merchant, err := q.GetAccount(ctx, in.MerchantID)
		if errors.Is(err, repository.ErrNoRows) {
			return models.ErrAccountNotFound
		}
		if err != nil {
			return fmt.Errorf("load merchant: %w", err)
		}
		if merchant.Role != domain.RoleMerchant {
			return models.ErrForbidden
		}

		consumer, err := q.GetAccountByEmail(ctx, normalizeEmail(in.ConsumerEmail))
		if errors.Is(err, repository.ErrNoRows) {
			return models.ErrRecipientNotFound
		}
		if err != nil {
			return fmt.Errorf("resolve consumer: %w", err)
		}
		if consumer.ID == merchant.ID {
			return models.ErrSelfTransfer
		}
		if consumer.Role != domain.RoleConsumer {
			return fmt.Errorf("%w: pay requests can only be sent to consumers", models.ErrInvalidInput)
		}

		created, err = q.CreatePayRequest(ctx, repository.CreatePayRequestParams{
			ID:         uuid.New(),
			MerchantID: merchant.ID,
			ConsumerID: consumer.ID,
			Amount:     in.Amount,
			Message:    textParam(message),
		})
		if err != nil {
			return fmt.Errorf("create pay request: %w", err)
		}
		return s.audit.Write(ctx, q, domain.EntityPayRequest, created.ID, &merchant.ID, "created", "", domain.PayRequestStatusPending, nil)
	})
	if err != nil {
		return nil, err
	}

	observability.IncrementPayRequestTransition(domain.PayRequestStatusPending)
	return &created, nil
}

// lockForConsumer locks the pay request and checks that actorID is its
// consumer.
func lockForConsumer(ctx context.Context, q repository.Querier, id, actorID uuid.UUID) (models.PayRequest, error) {
	pr, err := q.GetPayRequestForUpdate(ctx, id)
	if errors.Is(err, repository.ErrNoRows) {
		return pr, models.ErrPayRequestNotFound
	}
	if err != nil {
		return pr, fmt.Errorf("lock pay request: %w", err)
	}
	if pr.ConsumerID != actorID {
		return pr, models.ErrForbidden
	}
	return pr, nil
}

// Approve accepts a pending pay request and spawns the PENDING transaction
// that moves the money at settlement. The status change and the new
// transaction commit together.
func (s *PayRequestService) Approve(ctx context.Context, id, actorID uuid.UUID) (*ApprovalResult, error) {
	var result ApprovalResult
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		pr, err := lockForConsumer(ctx, q, id, actorID)
		if err != nil {
			return err
		}
		if pr.Status != domain.PayRequestStatusPending {
			return &models.StatusConflictError{Entity: "pay request", Status: pr.Status}
		}

		consumer, err := q.GetAccount(ctx, pr.ConsumerID)
		if errors.Is(err, repository.ErrNoRows) {
			return models.ErrAccountNotFound
		}
		if err != nil {
			return fmt.Errorf("load consumer: %w", err)
		}
		advisory := adviseBalance(consumer, pr.Amount)
		if err := advisory.enforce(s.strictAdvisory); err != nil {
			return err
		}

		tx, err := q.CreateTransaction(ctx, repository.CreateTransactionParams{
			ID:            uuid.New(),
			FromAccountID: pr.ConsumerID,
			ToAccountID:   pr.MerchantID,
			Amount:        pr.Amount,
			Status:        domain.TxStatusPending,
			Kind:          domain.TxKindPayRequest,
		})
		if err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		if err := s.audit.Write(ctx, q, domain.EntityTransaction, tx.ID, &actorID, "created", "", domain.TxStatusPending, nil); err != nil {
			return err
		}

		if err := transitionPayRequestState(ctx, q, s.audit, pr, domain.PayRequestStatusApproved, &tx.ID, actorID, "approved"); err != nil {
			return err
		}

		approved, err := q.GetPayRequest(ctx, pr.ID)
		if err != nil {
			return fmt.Errorf("reload pay request: %w", err)
		}
		result = ApprovalResult{
			PayRequest:  approved,
			Transaction: tx,
			Advisory:    advisory,
			Message:     "Pay request approved, payment queued for settlement",
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.IncrementPayRequestTransition(domain.PayRequestStatusApproved)
	observability.IncrementIntake(domain.TxKindPayRequest, result.Advisory.Sufficient)
	zap.L().Info("pay request approved",
		zap.String("pay_request_id", id.String()),
		zap.String("transaction_id", result.Transaction.ID.String()),
	)
	return &result, nil
}

// Reject declines a pending pay request. No transaction is created.
func (s *PayRequestService) Reject(ctx context.Context, id, actorID uuid.UUID) (*models.PayRequest, error) {
	var rejected models.PayRequest
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		pr, err := lockForConsumer(ctx, q, id, actorID)
		if err != nil {
			return err
		}
		if err := transitionPayRequestState(ctx, q, s.audit, pr, domain.PayRequestStatusRejected, nil, actorID, "rejected"); err != nil {
			return err
		}
		rejected, err = q.GetPayRequest(ctx, pr.ID)
		if err != nil {
			return fmt.Errorf("reload pay request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.IncrementPayRequestTransition(domain.PayRequestStatusRejected)
	return &rejected, nil
}

// Get returns a pay request visible to one of its participants.
func (s *PayRequestService) Get(ctx context.Context, id, actorID uuid.UUID) (*models.PayRequest, error) {
	pr, err := s.store.Queries().GetPayRequest(ctx, id)
	if errors.Is(err, repository.ErrNoRows) {
		return nil, models.ErrPayRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pay request: %w", err)
	}
	if pr.MerchantID != actorID && pr.ConsumerID != actorID {
		return nil, models.ErrForbidden
	}
	return &pr, nil
}

// ListSent returns the requests a merchant has issued, newest first.
func (s *PayRequestService) ListSent(ctx context.Context, merchantID uuid.UUID, limit, offset int) ([]models.PayRequest, error) {
	l, o := pageWindow(limit, offset)
	out, err := s.store.Queries().ListPayRequestsByMerchant(ctx, repository.ListPayRequestsParams{AccountID: merchantID, Limit: l, Offset: o})
	if err != nil {
		return nil, fmt.Errorf("list sent pay requests: %w", err)
	}
	if out == nil {
		out = []models.PayRequest{}
	}
	return out, nil
}

// ListReceived returns the requests addressed to a consumer, newest first.
func (s *PayRequestService) ListReceived(ctx context.Context, consumerID uuid.UUID, limit, offset int) ([]models.PayRequest, error) {
	l, o := pageWindow(limit, offset)
	out, err := s.store.Queries().ListPayRequestsByConsumer(ctx, repository.ListPayRequestsParams{AccountID: consumerID, Limit: l, Offset: o})
	if err != nil {
		return nil, fmt.Errorf("list received pay requests: %w", err)
	}
	if out == nil {
		out = []models.PayRequest{}
	}
	return out, nil
}
