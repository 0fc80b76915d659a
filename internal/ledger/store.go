package ledger

import (
	"context"
	"time"

	"github.com/spec-kit/dispatch-engine/internal/domain"
)

// Store is the idempotency table. Claim must be an atomic
// insert-if-absent-else-fetch so concurrent claims across processes resolve
// to one owner. An in-progress row older than staleAfter may be taken over.
type Store interface {
	Claim(ctx context.Context, key, token string, now time.Time, staleAfter time.Duration) (domain.ClaimResult, error)
	// Commit stores result and marks the key completed if token still owns it.
	Commit(ctx context.Context, key, token string, result []byte, now time.Time) error
	// Release deletes an in-progress claim owned by token.
	Release(ctx context.Context, key, token string) error
	Get(ctx context.Context, key string) (domain.IdempotencyRecord, error)
	// Purge removes rows claimed before cutoff and reports how many went.
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditLog is the append-only audit trail.
type AuditLog interface {
	Append(ctx context.Context, entry domain.AuditEntry) error
	Get(ctx context.Context, id string) (domain.AuditEntry, error)
	ByRequest(ctx context.Context, requestID string) ([]domain.AuditEntry, error)
}
