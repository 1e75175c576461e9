package service

import (
	"context"

	"courier/internal/models"
)

// OutboxStore is the system of record for message lifecycle. TryClaim is
// the sole synchronization primitive between concurrently running
// dispatcher instances; all status mutation goes through the operations
// below and no other path.
type OutboxStore interface {
	InsertMessage(ctx context.Context, record *models.MessageRecord) error
	ListClaimable(ctx context.Context, limit, maxAttempts int) ([]*models.MessageRecord, error)
	TryClaim(ctx context.Context, id int64) (bool, error)
	MarkSent(ctx context.Context, id int64, remoteMessageID string) error
	MarkFailedAttempt(ctx context.Context, id int64, attempts, maxAttempts int) error
	ApplyStatusUpdate(ctx context.Context, update models.StatusUpdatePayload) error
	InsertAudit(ctx context.Context, entry models.AuditPayload) error
}

// Fallback is the local durable queue absorbing writes the remote store
// refused. It is passed explicitly to every write path that needs it.
type Fallback interface {
	Enqueue(kind models.FallbackKind, payload interface{}) (string, error)
	Snapshot() []models.FallbackItem
	Evict(id string) error
	RecordFailure(id string) error
	Len() int
}
