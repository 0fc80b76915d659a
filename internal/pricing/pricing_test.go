package pricing

import (
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/dispatch-engine/internal/catalog"
	"github.com/spec-kit/dispatch-engine/internal/domain"
	"github.com/spec-kit/dispatch-engine/pkg/util/errorutil"
)

func at(t *testing.T, value string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	ts, err := time.ParseInLocation("2006-01-02 15:04", value, loc)
	require.NoError(t, err)
	return ts
}

func price(t *testing.T, e *Engine, req Request) *domain.PricingDecision {
	t.Helper()
	d := e.Price(req)
	pd, ok := d.Payload.(*domain.PricingDecision)
	require.True(t, ok)
	return pd
}

func codes(lines []domain.FeeLine) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.Code)
	}
	return out
}

func TestWeekdayDiagnostic(t *testing.T) {
	e := New(catalog.Static{Tables: catalog.Default()})
	pd := price(t, e, Request{ServiceType: "diagnostic", TierHint: "retail", At: at(t, "2026-10-14 10:00")})

	assert.True(t, pd.Applied)
	assert.Equal(t, domain.TierFromHint, pd.TierSource)
	assert.Equal(t, []string{LineBase, LineTrip}, codes(pd.Lines))
	assert.Equal(t, int64(8900+4900), pd.TotalCents)
	assert.Equal(t, "USD", pd.Currency)
}

func TestUnknownServiceFallsBackToDiagnostic(t *testing.T) {
	e := New(catalog.Static{Tables: catalog.Default()})
	pd := price(t, e, Request{ServiceType: "emergency_repair", TierHint: "commercial", At: at(t, "2026-10-14 10:00"), Emergency: true})

	assert.Equal(t, "diagnostic", pd.ServiceType)
	assert.Equal(t, int64(14900+7900+15000), pd.TotalCents)
}

func TestPremiumsAreAdditiveForEveryTier(t *testing.T) {
	tables := catalog.Default()
	e := New(catalog.Static{Tables: tables})
	weekday := at(t, "2026-10-14 10:00")
	saturday := at(t, "2026-10-17 10:00")

	tiers := make([]string, 0, len(tables.Pricing.Tiers))
	for name := range tables.Pricing.Tiers {
		tiers = append(tiers, name)
	}
	sort.Strings(tiers)

	for _, tier := range tiers {
		t.Run(tier, func(t *testing.T) {
			plain := price(t, e, Request{TierHint: tier, At: weekday}).TotalCents
			emergencyOnly := price(t, e, Request{TierHint: tier, At: weekday, Emergency: true}).TotalCents - plain
			weekendOnly := price(t, e, Request{TierHint: tier, At: saturday}).TotalCents - plain
			both := price(t, e, Request{TierHint: tier, At: saturday, Emergency: true})

			assert.Equal(t, plain+emergencyOnly+weekendOnly, both.TotalCents)

			rates := tables.Pricing.Tiers[tier]
			want := rates.BaseFeeCents[catalog.DiagnosticService] + rates.TripChargeCents +
				tables.Pricing.EmergencyPremiumCents + tables.Pricing.WeekendPremiumCents
			assert.Equal(t, want, both.TotalCents)
			assert.Equal(t, []string{LineBase, LineTrip, LineEmergency, LineWeekend}, codes(both.Lines))
			assert.True(t, both.NonBusinessDay)
			assert.False(t, both.AfterHours, "after-hours never stacks with the weekend premium")
		})
	}
}

func TestHolidayCountsAsNonBusinessDay(t *testing.T) {
	e := New(catalog.Static{Tables: catalog.Default()})
	pd := price(t, e, Request{TierHint: "retail", At: at(t, "2026-11-26 10:00")})

	assert.True(t, pd.NonBusinessDay)
	assert.Contains(t, codes(pd.Lines), LineWeekend)
}

func TestAfterHours(t *testing.T) {
	e := New(catalog.Static{Tables: catalog.Default()})
	cases := map[string]struct {
		applied, omitted bool
	}{
		"2026-10-14 10:00": {false, false},
		"2026-10-14 19:00": {true, false},
		"2026-10-14 06:00": {true, false},
		"2026-10-14 17:10": {false, true},
		"2026-10-14 07:50": {false, true},
		"2026-10-14 17:00": {false, true},
	}
	for value, want := range cases {
		t.Run(value, func(t *testing.T) {
			pd := price(t, e, Request{TierHint: "retail", At: at(t, value)})
			assert.Equal(t, want.applied, pd.AfterHours)
			assert.Equal(t, want.omitted, pd.AfterHoursOmitted)
			if want.omitted {
				assert.NotContains(t, codes(pd.Lines), LineAfterHours)
				assert.Contains(t, pd.Note, "ambiguous")
			}
		})
	}
}

func TestUnknownHoursOmitAfterHours(t *testing.T) {
	doc := strings.Replace(string(catalog.DefaultYAML()), "  close: \"17:00\"\n", "  close: \"17:00\"\n  day_hours:\n    fri: {open: \"\", close: \"\"}\n", 1)
	tables, err := catalog.FromYAML([]byte(doc))
	require.NoError(t, err)
	e := New(catalog.Static{Tables: tables})

	pd := price(t, e, Request{TierHint: "retail", At: at(t, "2026-10-16 19:00")})
	assert.False(t, pd.NonBusinessDay)
	assert.False(t, pd.AfterHours)
	assert.True(t, pd.AfterHoursOmitted, "a business day without configured hours is never classified as after hours")
	assert.Equal(t, int64(8900+4900), pd.TotalCents)
}

func TestTierResolution(t *testing.T) {
	e := New(catalog.Static{Tables: catalog.Default()})
	now := at(t, "2026-10-14 10:00")

	t.Run("hint wins over account default", func(t *testing.T) {
		pd := price(t, e, Request{TierHint: "commercial", AccountDefaultTier: "retail", At: now})
		assert.Equal(t, "commercial", pd.Tier)
		assert.Equal(t, domain.TierFromHint, pd.TierSource)
	})

	t.Run("account default", func(t *testing.T) {
		pd := price(t, e, Request{AccountDefaultTier: "property_management", At: now})
		assert.Equal(t, "property_management", pd.Tier)
		assert.Equal(t, domain.TierFromAccountDefault, pd.TierSource)
	})

	t.Run("unknown tier is suggested, not applied", func(t *testing.T) {
		d := e.Price(Request{At: now})
		pd := d.Payload.(*domain.PricingDecision)
		assert.Equal(t, domain.StatusNeedsHuman, d.Status)
		assert.False(t, pd.Applied)
		assert.Empty(t, pd.Tier)
		assert.Equal(t, "retail", pd.SuggestedTier)
		assert.Equal(t, domain.TierSuggested, pd.TierSource)
		assert.Empty(t, pd.Lines)
		assert.Zero(t, pd.TotalCents)
	})

	t.Run("undeclared hint is not trusted", func(t *testing.T) {
		d := e.Price(Request{TierHint: "platinum", At: now})
		assert.Equal(t, domain.StatusNeedsHuman, d.Status)
		assert.Contains(t, d.Payload.(*domain.PricingDecision).Note, "platinum")
	})
}

func TestApprovalMonotonicity(t *testing.T) {
	tables := catalog.Default()
	a := NewApprovals(catalog.Static{Tables: tables})
	now := at(t, "2026-10-14 10:00")

	for _, category := range tables.ApprovalCategories() {
		t.Run(category, func(t *testing.T) {
			ranges := tables.ApprovalRanges(category)
			var amounts []int64
			for _, r := range ranges {
				amounts = append(amounts, r.LowerCents, r.LowerCents+1)
				if r.UpperCents != nil {
					amounts = append(amounts, *r.UpperCents-1)
				}
			}
			amounts = append(amounts, ranges[len(ranges)-1].LowerCents*10)

			var seen []string
			for _, amount := range amounts {
				d, err := a.Evaluate(category, amount, now)
				require.NoError(t, err)
				ad := d.Payload.(*domain.ApprovalDecision)
				if len(seen) == 0 || seen[len(seen)-1] != ad.ThresholdRuleID {
					seen = append(seen, ad.ThresholdRuleID)
				}
				var want catalog.ApprovalRange
				for _, r := range ranges {
					if r.Contains(amount) {
						want = r
					}
				}
				assert.Equal(t, want.Approver, ad.Approver, "amount %d", amount)
			}

			ids := make([]string, 0, len(ranges))
			for _, r := range ranges {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, ids, seen, "every declared range is visited in order, none skipped")
		})
	}
}

func TestApprovalBoundaries(t *testing.T) {
	a := NewApprovals(catalog.Static{Tables: catalog.Default()})
	now := at(t, "2026-10-14 10:00")
	cases := []struct {
		amount   int64
		approver string
		required bool
	}{
		{0, "auto", false},
		{9999, "auto", false},
		{10000, "office_manager", true},
		{45000, "office_manager", true},
		{50000, "owner", true},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.amount), func(t *testing.T) {
			d, err := a.Evaluate("refund", tc.amount, now)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusCompleted, d.Status)
			ad := d.Payload.(*domain.ApprovalDecision)
			assert.Equal(t, tc.approver, ad.Approver)
			assert.Equal(t, tc.required, ad.ApprovalRequired)
		})
	}
}

func TestApprovalBusinessConditionsNeedHuman(t *testing.T) {
	a := NewApprovals(catalog.Static{Tables: catalog.Default()})
	now := at(t, "2026-10-14 10:00")

	d, err := a.Evaluate("warranty", 100, now)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNeedsHuman, d.Status)

	d, err = a.Evaluate("refund", -5, now)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNeedsHuman, d.Status)
}

func TestBrokenRangesAreConfigInvariant(t *testing.T) {
	upper := func(v int64) *int64 { return &v }
	overlapping := []catalog.ApprovalRange{
		{ID: "a", Category: "refund", LowerCents: 0, UpperCents: upper(1000), Approver: "auto"},
		{ID: "b", Category: "refund", LowerCents: 500, Approver: "boss"},
	}
	_, err := Lookup("refund", overlapping, 700)
	require.Error(t, err)
	assert.True(t, errorutil.IsKind(err, errorutil.KindConfigInvariant))
	assert.Equal(t, domain.StatusError, errorutil.StatusFor(errorutil.KindConfigInvariant))
}
