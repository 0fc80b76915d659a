// Package ledgertest holds the behavioral suite every ledger.Store and
// ledger.AuditLog implementation must pass.
package ledgertest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/dispatch-engine/internal/domain"
	"github.com/spec-kit/dispatch-engine/internal/ledger"
)

var base = time.Date(2026, 10, 14, 15, 0, 0, 0, time.UTC)

// StoreContract runs the claim/commit/release suite against fresh stores.
func StoreContract(t *testing.T, newStore func(t *testing.T) ledger.Store) {
	ctx := context.Background()

	t.Run("first claim wins and second is held", func(t *testing.T) {
		s := newStore(t)
		res, err := s.Claim(ctx, "k1", "tok-a", base, 30*time.Second)
		require.NoError(t, err)
		assert.Equal(t, domain.ClaimWon, res.Outcome)

		res, err = s.Claim(ctx, "k1", "tok-b", base.Add(time.Second), 30*time.Second)
		require.NoError(t, err)
		assert.Equal(t, domain.ClaimHeld, res.Outcome)
		assert.Equal(t, domain.IdempotencyInProgress, res.Record.Status)
	})

	t.Run("commit makes result visible", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Claim(ctx, "k2", "tok-a", base, 30*time.Second)
		require.NoError(t, err)
		require.NoError(t, s.Commit(ctx, "k2", "tok-a", []byte(`{"status":"completed"}`), base.Add(time.Second)))

		res, err := s.Claim(ctx, "k2", "tok-b", base.Add(time.Hour), 30*time.Second)
		require.NoError(t, err)
		assert.Equal(t, domain.ClaimHeld, res.Outcome)
		assert.Equal(t, domain.IdempotencyCompleted, res.Record.Status)
		assert.JSONEq(t, `{"status":"completed"}`, string(res.Record.Result))

		rec, err := s.Get(ctx, "k2")
		require.NoError(t, err)
		assert.Equal(t, domain.IdempotencyCompleted, rec.Status)
		require.NotNil(t, rec.CompletedAt)
	})

	t.Run("completed keys are never reclaimed", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Claim(ctx, "k3", "tok-a", base, time.Second)
		require.NoError(t, err)
		require.NoError(t, s.Commit(ctx, "k3", "tok-a", []byte(`{}`), base))

		res, err := s.Claim(ctx, "k3", "tok-b", base.Add(time.Hour), time.Second)
		require.NoError(t, err)
		assert.False(t, res.Owned())
	})

	t.Run("stale claim is reclaimed and old token loses", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Claim(ctx, "k4", "tok-a", base, 30*time.Second)
		require.NoError(t, err)

		res, err := s.Claim(ctx, "k4", "tok-b", base.Add(31*time.Second), 30*time.Second)
		require.NoError(t, err)
		assert.Equal(t, domain.ClaimReclaimed, res.Outcome)

		err = s.Commit(ctx, "k4", "tok-a", []byte(`{}`), base.Add(32*time.Second))
		assert.ErrorIs(t, err, domain.ErrClaimLost)
		require.NoError(t, s.Commit(ctx, "k4", "tok-b", []byte(`{}`), base.Add(32*time.Second)))
	})

	t.Run("release frees the key", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Claim(ctx, "k5", "tok-a", base, 30*time.Second)
		require.NoError(t, err)
		assert.ErrorIs(t, s.Release(ctx, "k5", "tok-other"), domain.ErrClaimLost)
		require.NoError(t, s.Release(ctx, "k5", "tok-a"))

		_, err = s.Get(ctx, "k5")
		assert.ErrorIs(t, err, domain.ErrRecordNotFound)

		res, err := s.Claim(ctx, "k5", "tok-b", base.Add(time.Second), 30*time.Second)
		require.NoError(t, err)
		assert.Equal(t, domain.ClaimWon, res.Outcome)
	})

	t.Run("purge drops old rows", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Claim(ctx, "old", "tok-a", base.Add(-100*time.Hour), 30*time.Second)
		require.NoError(t, err)
		_, err = s.Claim(ctx, "new", "tok-b", base, 30*time.Second)
		require.NoError(t, err)

		n, err := s.Purge(ctx, base.Add(-72*time.Hour))
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		_, err = s.Get(ctx, "old")
		assert.ErrorIs(t, err, domain.ErrRecordNotFound)
		_, err = s.Get(ctx, "new")
		assert.NoError(t, err)
	})
}

// AuditContract runs the append-only audit suite.
func AuditContract(t *testing.T, newAudit func(t *testing.T) ledger.AuditLog) {
	ctx := context.Background()
	a := newAudit(t)

	decision := &domain.Decision{Engine: domain.EnginePricing, Status: domain.StatusCompleted, DecidedAt: base}
	first := domain.AuditEntry{ID: "e1", Kind: domain.AuditKindDecision, RequestID: "r1", Intent: domain.IntentPriceInquiry,
		TargetDomain: domain.DomainCore, Status: domain.StatusCompleted, DecisionSnapshot: decision, CreatedAt: base}
	second := domain.AuditEntry{ID: "e2", Kind: domain.AuditKindCorrection, RequestID: "r1", Intent: domain.IntentPriceInquiry,
		TargetDomain: domain.DomainCore, Status: domain.StatusCompleted, CorrectsEntryID: "e1", Note: "wrong tier", CreatedAt: base.Add(time.Minute)}
	other := domain.AuditEntry{ID: "e3", Kind: domain.AuditKindDecision, RequestID: "r2", Status: domain.StatusNeedsHuman, CreatedAt: base}

	require.NoError(t, a.Append(ctx, first))
	require.NoError(t, a.Append(ctx, other))
	require.NoError(t, a.Append(ctx, second))

	got, err := a.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.RequestID)
	require.NotNil(t, got.DecisionSnapshot)
	assert.Equal(t, domain.EnginePricing, got.DecisionSnapshot.Engine)

	trail, err := a.ByRequest(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, "e1", trail[0].ID)
	assert.Equal(t, "e2", trail[1].ID)
	assert.Equal(t, "e1", trail[1].CorrectsEntryID)

	_, err = a.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}
