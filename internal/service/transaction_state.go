package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/paynxt/internal/domain"
	"github.com/ayo6706/paynxt/internal/models"
	"github.com/ayo6706/paynxt/internal/repository"
	"github.com/google/uuid"
)

// Terminal states have no outgoing edges.
var transactionTransitions = map[string]map[string]struct{}{
	domain.TxStatusPending: {
		domain.TxStatusCompleted: {},
		domain.TxStatusFailed:    {},
	},
	domain.TxStatusCompleted: {},
	domain.TxStatusFailed:    {},
}

var payRequestTransitions = map[string]map[string]struct{}{
	domain.PayRequestStatusPending: {
		domain.PayRequestStatusApproved: {},
		domain.PayRequestStatusRejected: {},
	},
	domain.PayRequestStatusApproved: {},
	domain.PayRequestStatusRejected: {},
}

func normalizeState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}

func canTransition(table map[string]map[string]struct{}, current, next string) bool {
	nextStates, ok := table[normalizeState(current)]
	if !ok {
		return false
	}
	_, ok = nextStates[normalizeState(next)]
	return ok
}

// transitionTransactionState resolves a locked PENDING transaction and records
// the audit entry in the same unit of work.
func transitionTransactionState(ctx context.Context, q repository.Querier, audit *AuditService, tx models.Transaction, nextState string, failureReason *string, completedAt time.Time, action string, metadata []byte) error {
	if !canTransition(transactionTransitions, tx.Status, nextState) {
		return fmt.Errorf("invalid transaction state transition: %s -> %s", tx.Status, nextState)
	}

	rows, err := q.SetTransactionTerminal(ctx, repository.SetTransactionTerminalParams{
		ID:            tx.ID,
		Status:        nextState,
		CompletedAt:   completedAt,
		FailureReason: failureReason,
	})
	if err != nil {
		return fmt.Errorf("update transaction state: %w", err)
	}
	if err := requireExactlyOne(rows, "update transaction state"); err != nil {
		return err
	}

	return audit.Write(ctx, q, domain.EntityTransaction, tx.ID, nil, action, tx.Status, nextState, metadata)
}

// transitionPayRequestState resolves a locked pay request. A request that
// already left PENDING yields a StatusConflictError.
func transitionPayRequestState(ctx context.Context, q repository.Querier, audit *AuditService, pr models.PayRequest, nextState string, transactionID *uuid.UUID, actorID uuid.UUID, action string) error {
	if normalizeState(pr.Status) != domain.PayRequestStatusPending {
		return &models.StatusConflictError{Entity: "pay request", Status: pr.Status}
	}
	if !canTransition(payRequestTransitions, pr.Status, nextState) {
		return fmt.Errorf("invalid pay request state transition: %s -> %s", pr.Status, nextState)
	}

	rows, err := q.SetPayRequestStatus(ctx, repository.SetPayRequestStatusParams{
		ID:            pr.ID,
		Status:        nextState,
		TransactionID: transactionID,
	})
	if err != nil {
		return fmt.Errorf("update pay request state: %w", err)
	}
	if err := requireExactlyOne(rows, "update pay request state"); err != nil {
		return err
	}

	return audit.Write(ctx, q, domain.EntityPayRequest, pr.ID, &actorID, action, pr.Status, nextState, nil)
}
