package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/dispatch-engine/internal/domain"
)

// MemoryStore is an in-process Store for tests and single-instance runs.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]domain.IdempotencyRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: map[string]domain.IdempotencyRecord{}}
}

func (s *MemoryStore) Claim(_ context.Context, key, token string, now time.Time, staleAfter time.Duration) (domain.ClaimResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, exists := s.rows[key]
	switch {
	case !exists:
		row = domain.IdempotencyRecord{Key: key, Status: domain.IdempotencyInProgress, Token: token, ClaimedAt: now}
		s.rows[key] = row
		return domain.ClaimResult{Outcome: domain.ClaimWon, Record: row}, nil
	case row.Status == domain.IdempotencyInProgress && staleAfter > 0 && !now.Before(row.ClaimedAt.Add(staleAfter)):
		row.Token = token
		row.ClaimedAt = now
		s.rows[key] = row
		return domain.ClaimResult{Outcome: domain.ClaimReclaimed, Record: row}, nil
	}
	return domain.ClaimResult{Outcome: domain.ClaimHeld, Record: redactToken(row)}, nil
}

func (s *MemoryStore) Commit(_ context.Context, key, token string, result []byte, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[key]
	if !ok || row.Token != token || row.Status != domain.IdempotencyInProgress {
		return domain.ErrClaimLost
	}
	completed := now
	row.Status = domain.IdempotencyCompleted
	row.Result = append([]byte(nil), result...)
	row.CompletedAt = &completed
	s.rows[key] = row
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[key]
	if !ok || row.Token != token || row.Status != domain.IdempotencyInProgress {
		return domain.ErrClaimLost
	}
	delete(s.rows, key)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (domain.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrRecordNotFound
	}
	return redactToken(row), nil
}

func (s *MemoryStore) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, row := range s.rows {
		if row.ClaimedAt.Before(cutoff) {
			delete(s.rows, key)
			n++
		}
	}
	return n, nil
}

func redactToken(r domain.IdempotencyRecord) domain.IdempotencyRecord {
	r.Token = ""
	return r
}

// MemoryAudit is an in-process AuditLog.
type MemoryAudit struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
}

func NewMemoryAudit() *MemoryAudit {
	return &MemoryAudit{}
}

func (a *MemoryAudit) Append(_ context.Context, entry domain.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *MemoryAudit) Get(_ context.Context, id string) (domain.AuditEntry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, e := range a.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return domain.AuditEntry{}, domain.ErrRecordNotFound
}

func (a *MemoryAudit) ByRequest(_ context.Context, requestID string) ([]domain.AuditEntry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []domain.AuditEntry
	for _, e := range a.entries {
		if e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Len reports how many entries were appended.
func (a *MemoryAudit) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}
