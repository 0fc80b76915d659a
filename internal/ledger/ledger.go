// Package ledger enforces at-most-once execution per idempotency key and
// keeps the append-only audit trail.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-engine/internal/domain"
)

const (
	defaultClaimTimeout = 30 * time.Second
	defaultWaitTimeout  = 5 * time.Second
	defaultPoll         = 25 * time.Millisecond
	maxPoll             = 400 * time.Millisecond
)

// Config bounds claim ownership and how long duplicates wait for a winner.
type Config struct {
	// ClaimTimeout is how long an uncommitted claim is honored before a later
	// attempt may take it over.
	ClaimTimeout time.Duration
	// WaitTimeout is how long a losing attempt polls for the winner's result.
	WaitTimeout  time.Duration
	PollInterval time.Duration
}

// Ledger coordinates the idempotency store and the audit log.
type Ledger struct {
	store  Store
	audit  AuditLog
	cfg    Config
	clock  func() time.Time
	logger *zap.Logger
}

// LedgerDependencies bundles collaborators for the ledger.
type LedgerDependencies struct {
	Store  Store
	Audit  AuditLog
	Config Config
	Clock  func() time.Time
	Logger *zap.Logger
}

func New(deps LedgerDependencies) *Ledger {
	cfg := deps.Config
	if cfg.ClaimTimeout <= 0 {
		cfg.ClaimTimeout = defaultClaimTimeout
	}
	if cfg.WaitTimeout < 0 {
		cfg.WaitTimeout = 0
	} else if cfg.WaitTimeout == 0 {
		cfg.WaitTimeout = defaultWaitTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPoll
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: deps.Store, audit: deps.Audit, cfg: cfg, clock: clock, logger: logger}
}

// Claim is ownership of one key for one attempt.
type Claim struct {
	Key       string
	Token     string
	Reclaimed bool
}

// BeginResult is exactly one of: a stored decision to replay, a claim to
// execute under, or an in-progress marker after the wait expired.
type BeginResult struct {
	Completed  *domain.Decision
	Claim      *Claim
	InProgress bool
}

// Begin claims key or reports what another attempt already did with it.
// Losers poll with backoff until the winner commits, its claim goes stale,
// or the wait timeout passes. The wait runs on the wall clock; the injected
// clock only stamps claims.
func (l *Ledger) Begin(ctx context.Context, key string) (BeginResult, error) {
	token := uuid.NewString()
	started := time.Now()
	interval := l.cfg.PollInterval

	for {
		res, err := l.store.Claim(ctx, key, token, l.clock(), l.cfg.ClaimTimeout)
		if err != nil {
			return BeginResult{}, fmt.Errorf("claim %s: %w", ShortKey(key), err)
		}
		if res.Owned() {
			if res.Outcome == domain.ClaimReclaimed {
				l.logger.Warn("reclaimed stale idempotency claim", zap.String("key", ShortKey(key)))
			}
			return BeginResult{Claim: &Claim{Key: key, Token: token, Reclaimed: res.Outcome == domain.ClaimReclaimed}}, nil
		}
		if res.Record.Status == domain.IdempotencyCompleted {
			var decision domain.Decision
			if err := json.Unmarshal(res.Record.Result, &decision); err != nil {
				return BeginResult{}, fmt.Errorf("decode stored decision %s: %w", ShortKey(key), err)
			}
			return BeginResult{Completed: &decision}, nil
		}

		remaining := l.cfg.WaitTimeout - time.Since(started)
		if remaining <= 0 {
			return BeginResult{InProgress: true}, nil
		}
		timer := time.NewTimer(min(interval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return BeginResult{}, ctx.Err()
		case <-timer.C:
		}
		interval = min(interval*2, maxPoll)
	}
}

// Commit stores the decision as the key's result.
func (l *Ledger) Commit(ctx context.Context, claim *Claim, decision domain.Decision) error {
	if claim == nil {
		return errors.New("commit without claim")
	}
	body, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("encode decision: %w", err)
	}
	if err := l.store.Commit(ctx, claim.Key, claim.Token, body, l.clock()); err != nil {
		return fmt.Errorf("commit %s: %w", ShortKey(claim.Key), err)
	}
	return nil
}

// Release gives up a claim so a later attempt can run. Losing the claim to a
// reclaimer is not an error here.
func (l *Ledger) Release(ctx context.Context, claim *Claim) error {
	if claim == nil {
		return nil
	}
	err := l.store.Release(ctx, claim.Key, claim.Token)
	if errors.Is(err, domain.ErrClaimLost) {
		return nil
	}
	return err
}

// Record appends a decision entry, filling id, kind and timestamp.
func (l *Ledger) Record(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Kind == "" {
		entry.Kind = domain.AuditKindDecision
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.clock()
	}
	if entry.DecisionSnapshot != nil {
		entry.Status = entry.DecisionSnapshot.Status
		if len(entry.RecordIDs) == 0 {
			entry.RecordIDs = entry.DecisionSnapshot.RecordIDs
		}
	}
	if err := l.audit.Append(ctx, entry); err != nil {
		return domain.AuditEntry{}, fmt.Errorf("append audit entry: %w", err)
	}
	return entry, nil
}

// Correction describes an amendment to an existing entry.
type Correction struct {
	EntryID  string
	Note     string
	Decision *domain.Decision
}

// Correct appends a correction entry pointing at the corrected one. The
// original entry is left untouched.
func (l *Ledger) Correct(ctx context.Context, c Correction) (domain.AuditEntry, error) {
	if c.Note == "" {
		return domain.AuditEntry{}, errors.New("correction note is required")
	}
	original, err := l.audit.Get(ctx, c.EntryID)
	if err != nil {
		return domain.AuditEntry{}, err
	}
	entry := domain.AuditEntry{
		Kind:             domain.AuditKindCorrection,
		RequestID:        original.RequestID,
		IdempotencyKey:   original.IdempotencyKey,
		Intent:           original.Intent,
		TargetDomain:     original.TargetDomain,
		Status:           original.Status,
		DecisionSnapshot: c.Decision,
		CorrectsEntryID:  original.ID,
		Note:             c.Note,
	}
	return l.Record(ctx, entry)
}

// Trail lists every entry for a request in append order.
func (l *Ledger) Trail(ctx context.Context, requestID string) ([]domain.AuditEntry, error) {
	entries, err := l.audit.ByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, domain.ErrRecordNotFound
	}
	return entries, nil
}

// Inspection is the stored state of one key.
type Inspection struct {
	Record   domain.IdempotencyRecord `json:"record"`
	Decision *domain.Decision         `json:"decision,omitempty"`
}

func (l *Ledger) Inspect(ctx context.Context, key string) (Inspection, error) {
	rec, err := l.store.Get(ctx, key)
	if err != nil {
		return Inspection{}, err
	}
	out := Inspection{Record: rec}
	if rec.Status == domain.IdempotencyCompleted && len(rec.Result) > 0 {
		var d domain.Decision
		if err := json.Unmarshal(rec.Result, &d); err != nil {
			return Inspection{}, fmt.Errorf("decode stored decision: %w", err)
		}
		out.Decision = &d
	}
	out.Record.Result = nil
	return out, nil
}

// Purge drops keys claimed longer ago than retention.
func (l *Ledger) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	return l.store.Purge(ctx, l.clock().Add(-retention))
}

// ShortKey is the log-safe prefix of a key.
func ShortKey(key string) string {
	if len(key) > 16 {
		return key[:16]
	}
	return key
}
