package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/paynxt/internal/models"
	"github.com/ayo6706/paynxt/internal/repository"
	"github.com/google/uuid"
)

// AuditService writes immutable audit trail entries.
type AuditService struct {
	store QueryStore
}

func NewAuditService(store QueryStore) *AuditService {
	return &AuditService{store: store}
}

// Write stores a single immutable audit record through q so that it commits
// or rolls back with the state change it describes.
func (s *AuditService) Write(ctx context.Context, q repository.Querier, entityType string, entityID uuid.UUID, actorID *uuid.UUID, action, prevState, nextState string, metadata []byte) error {
	if _, err := q.InsertAuditLog(ctx, repository.InsertAuditLogParams{
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    actorID,
		Action:     action,
		PrevState:  textParam(prevState),
		NextState:  textParam(nextState),
		Metadata:   metadata,
	}); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// Trail returns the audit entries of one entity, oldest first.
func (s *AuditService) Trail(ctx context.Context, entityType string, entityID uuid.UUID) ([]models.AuditLog, error) {
	entries, err := s.store.Queries().ListAuditLog(ctx, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	return entries, nil
}

func textParam(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
