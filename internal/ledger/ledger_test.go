package ledger_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/dispatch-engine/internal/domain"
	"github.com/spec-kit/dispatch-engine/internal/ledger"
	"github.com/spec-kit/dispatch-engine/internal/ledger/ledgertest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func completed(engine domain.Engine) domain.Decision {
	return domain.Decision{
		Engine:    engine,
		Status:    domain.StatusCompleted,
		DecidedAt: time.Date(2026, 10, 14, 15, 0, 0, 0, time.UTC),
		Payload:   &domain.ApprovalDecision{Category: "refund", AmountCents: 45000, ApprovalRequired: true, Approver: "manager", ThresholdRuleID: "refund.manager"},
	}
}

func TestMemoryStoreContract(t *testing.T) {
	ledgertest.StoreContract(t, func(*testing.T) ledger.Store { return ledger.NewMemoryStore() })
}

func TestMemoryAuditContract(t *testing.T) {
	ledgertest.AuditContract(t, func(*testing.T) ledger.AuditLog { return ledger.NewMemoryAudit() })
}

func TestBeginRaceHasExactlyOneWinner(t *testing.T) {
	l := ledger.New(ledger.LedgerDependencies{
		Store:  ledger.NewMemoryStore(),
		Audit:  ledger.NewMemoryAudit(),
		Config: ledger.Config{WaitTimeout: 5 * time.Second, PollInterval: 5 * time.Millisecond},
	})
	ctx := context.Background()
	key := ledger.DeriveKey(domain.ChannelVoice, "phone:3125550142", domain.IntentServiceRequest, "2026-10-14")
	want := completed(domain.EngineApproval)

	var winners, replays atomic.Int32
	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			res, err := l.Begin(ctx, key)
			if err != nil {
				return err
			}
			switch {
			case res.Claim != nil:
				winners.Add(1)
				time.Sleep(40 * time.Millisecond)
				return l.Commit(ctx, res.Claim, want)
			case res.Completed != nil:
				replays.Add(1)
				if diff := cmp.Diff(want, *res.Completed); diff != "" {
					t.Errorf("replayed decision mismatch (-want +got):\n%s", diff)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.EqualValues(t, 1, winners.Load())
	assert.EqualValues(t, 15, replays.Load())
}

func TestBeginReportsInProgressAfterWait(t *testing.T) {
	l := ledger.New(ledger.LedgerDependencies{
		Store:  ledger.NewMemoryStore(),
		Audit:  ledger.NewMemoryAudit(),
		Config: ledger.Config{WaitTimeout: 60 * time.Millisecond, PollInterval: 10 * time.Millisecond},
	})
	ctx := context.Background()

	first, err := l.Begin(ctx, "busy")
	require.NoError(t, err)
	require.NotNil(t, first.Claim)

	second, err := l.Begin(ctx, "busy")
	require.NoError(t, err)
	assert.True(t, second.InProgress)
	assert.Nil(t, second.Claim)
	assert.Nil(t, second.Completed)
}

func TestBeginWaitEndsUnderFrozenClock(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 14, 15, 0, 0, 0, time.UTC)}
	l := ledger.New(ledger.LedgerDependencies{
		Store:  ledger.NewMemoryStore(),
		Audit:  ledger.NewMemoryAudit(),
		Clock:  clock.Now,
		Config: ledger.Config{WaitTimeout: 50 * time.Millisecond, PollInterval: 10 * time.Millisecond},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := l.Begin(ctx, "busy")
	require.NoError(t, err)

	started := time.Now()
	second, err := l.Begin(ctx, "busy")
	require.NoError(t, err, "wait must end on its own timeout, not the context's")
	assert.True(t, second.InProgress)
	assert.Less(t, time.Since(started), time.Second)
}

func TestBeginHonorsContext(t *testing.T) {
	l := ledger.New(ledger.LedgerDependencies{
		Store:  ledger.NewMemoryStore(),
		Audit:  ledger.NewMemoryAudit(),
		Config: ledger.Config{WaitTimeout: time.Minute, PollInterval: 10 * time.Millisecond},
	})
	_, err := l.Begin(context.Background(), "busy")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = l.Begin(ctx, "busy")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStaleClaimIsReclaimed(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 14, 15, 0, 0, 0, time.UTC)}
	l := ledger.New(ledger.LedgerDependencies{
		Store:  ledger.NewMemoryStore(),
		Audit:  ledger.NewMemoryAudit(),
		Clock:  clock.Now,
		Config: ledger.Config{ClaimTimeout: 30 * time.Second, WaitTimeout: -1},
	})
	ctx := context.Background()

	abandoned, err := l.Begin(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, abandoned.Claim)

	clock.Advance(10 * time.Second)
	early, err := l.Begin(ctx, "k")
	require.NoError(t, err)
	assert.True(t, early.InProgress)

	clock.Advance(25 * time.Second)
	retry, err := l.Begin(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, retry.Claim)
	assert.True(t, retry.Claim.Reclaimed)

	assert.ErrorIs(t, l.Commit(ctx, abandoned.Claim, completed(domain.EnginePricing)), domain.ErrClaimLost)
	require.NoError(t, l.Commit(ctx, retry.Claim, completed(domain.EnginePricing)))

	after, err := l.Begin(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, after.Completed)
	assert.Equal(t, domain.EnginePricing, after.Completed.Engine)
}

func TestReleaseAllowsRetry(t *testing.T) {
	l := ledger.New(ledger.LedgerDependencies{Store: ledger.NewMemoryStore(), Audit: ledger.NewMemoryAudit(), Config: ledger.Config{WaitTimeout: -1}})
	ctx := context.Background()

	first, err := l.Begin(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx, first.Claim))

	second, err := l.Begin(ctx, "k")
	require.NoError(t, err)
	assert.NotNil(t, second.Claim)
}

func TestInspect(t *testing.T) {
	l := ledger.New(ledger.LedgerDependencies{Store: ledger.NewMemoryStore(), Audit: ledger.NewMemoryAudit()})
	ctx := context.Background()

	_, err := l.Inspect(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)

	res, err := l.Begin(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, l.Commit(ctx, res.Claim, completed(domain.EngineApproval)))

	got, err := l.Inspect(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyCompleted, got.Record.Status)
	assert.Empty(t, got.Record.Token)
	require.NotNil(t, got.Decision)
	assert.IsType(t, &domain.ApprovalDecision{}, got.Decision.Payload)
}

func TestRecordAndCorrect(t *testing.T) {
	audit := ledger.NewMemoryAudit()
	l := ledger.New(ledger.LedgerDependencies{Store: ledger.NewMemoryStore(), Audit: audit})
	ctx := context.Background()

	decision := completed(domain.EngineApproval)
	decision.RecordIDs = []string{"rec-1"}
	entry, err := l.Record(ctx, domain.AuditEntry{RequestID: "r1", Intent: domain.IntentApprovalRequest, DecisionSnapshot: &decision})
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, domain.AuditKindDecision, entry.Kind)
	assert.Equal(t, domain.StatusCompleted, entry.Status)
	assert.Equal(t, []string{"rec-1"}, entry.RecordIDs)

	_, err = l.Correct(ctx, ledger.Correction{EntryID: entry.ID})
	assert.Error(t, err)

	fix, err := l.Correct(ctx, ledger.Correction{EntryID: entry.ID, Note: "approver was finance"})
	require.NoError(t, err)
	assert.Equal(t, domain.AuditKindCorrection, fix.Kind)
	assert.Equal(t, entry.ID, fix.CorrectsEntryID)

	trail, err := l.Trail(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, entry, trail[0])
	assert.Equal(t, 2, audit.Len())

	_, err = l.Trail(ctx, "unknown")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestKeyDerivation(t *testing.T) {
	day := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	cmd := domain.Command{
		Channel:   domain.ChannelVoice,
		Intent:    domain.IntentServiceRequest,
		RawText:   "No heat",
		CreatedAt: day,
		Entities:  domain.Entities{Phone: "+1 (312) 555-0142", Email: "A@Example.com", Name: "Pat Lee"},
	}

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, ledger.KeyFor(cmd, time.UTC), ledger.KeyFor(cmd, time.UTC))
		assert.Len(t, ledger.KeyFor(cmd, time.UTC), 64)
	})

	t.Run("phone formatting does not matter", func(t *testing.T) {
		other := cmd
		other.Entities.Phone = "3125550142"
		assert.Equal(t, ledger.KeyFor(cmd, time.UTC), ledger.KeyFor(other, time.UTC))
	})

	t.Run("same day collides, next day does not", func(t *testing.T) {
		later := cmd
		later.CreatedAt = day.Add(8 * time.Hour)
		assert.Equal(t, ledger.KeyFor(cmd, time.UTC), ledger.KeyFor(later, time.UTC))
		tomorrow := cmd
		tomorrow.CreatedAt = day.Add(24 * time.Hour)
		assert.NotEqual(t, ledger.KeyFor(cmd, time.UTC), ledger.KeyFor(tomorrow, time.UTC))
	})

	t.Run("intent and channel separate keys", func(t *testing.T) {
		chat := cmd
		chat.Channel = domain.ChannelChat
		quote := cmd
		quote.Intent = domain.IntentQuoteRequest
		assert.NotEqual(t, ledger.KeyFor(cmd, time.UTC), ledger.KeyFor(chat, time.UTC))
		assert.NotEqual(t, ledger.KeyFor(cmd, time.UTC), ledger.KeyFor(quote, time.UTC))
	})

	t.Run("bucket uses the given zone", func(t *testing.T) {
		chicago, err := time.LoadLocation("America/Chicago")
		require.NoError(t, err)
		assert.Equal(t, "2026-10-13", ledger.Bucket(time.Date(2026, 10, 14, 3, 0, 0, 0, time.UTC), chicago))
	})
}

func TestNormalizedAnchorOrder(t *testing.T) {
	cases := []struct {
		name string
		e    domain.Entities
		raw  string
		want string
	}{
		{"phone first", domain.Entities{Phone: "+13125550142", Email: "a@b.com", Name: "Pat"}, "", "phone:3125550142"},
		{"email next", domain.Entities{Email: " A@B.com ", Name: "Pat"}, "", "email:a@b.com"},
		{"name next", domain.Entities{Name: "Pat  O'Lee"}, "", "name:pat olee"},
		{"short phone skipped", domain.Entities{Phone: "555-0142", Name: "Pat"}, "", "name:pat"},
		{"name carries location", domain.Entities{Name: "Pat", Address: "12 Oak St.", Zip: "60614"}, "", "name:pat|addr:12 oak st|zip:60614"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ledger.NormalizedAnchor(domain.Command{Entities: tc.e, RawText: tc.raw}))
		})
	}

	a := ledger.NormalizedAnchor(domain.Command{RawText: "Need a  quote"})
	b := ledger.NormalizedAnchor(domain.Command{RawText: "need a quote"})
	assert.Equal(t, a, b)
	assert.Contains(t, a, "text:")
}

func TestSnapshotMasksPersonalData(t *testing.T) {
	cmd := domain.Command{
		RequestID: "r1",
		RawText:   "my name is Pat Lee, call 312-555-0142",
		Entities: domain.Entities{
			Name:    "Pat Lee",
			Phone:   "+13125550142",
			Email:   "pat@example.com",
			Address: "1420 N Clark St",
			Zip:     "60610",
		},
	}
	snap := ledger.Snapshot(cmd)
	entities := snap["entities"].(map[string]any)

	assert.Equal(t, "***0142", entities["phone"])
	assert.Equal(t, "***@example.com", entities["email"])
	assert.Equal(t, "P. L.", entities["name"])
	assert.Equal(t, "***", entities["address"])
	assert.Equal(t, "60610", entities["zip"])
	assert.NotContains(t, snap, "raw_text")

	cmd.Entities = domain.Entities{
		Address:            "12 Oak Street",
		ProblemDescription: "My furnace is broken at 12 Oak Street, call Jane Doe at 312-555-0142",
	}
	desc := ledger.Snapshot(cmd)["entities"].(map[string]any)["problem_description"].(string)
	assert.Contains(t, desc, "furnace is broken")
	for _, leak := range []string{"Oak", "Jane", "Doe", "0142"} {
		assert.NotContains(t, desc, leak)
	}

	desc = ledger.ScrubText("ac died at 900 Elm Avenue 60657, email jo@example.com", domain.Entities{})
	assert.Equal(t, "ac died at *** ***, email ***", desc)
}
