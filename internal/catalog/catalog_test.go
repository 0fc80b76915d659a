package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chicago(t *testing.T, value string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	ts, err := time.ParseInLocation("2006-01-02 15:04", value, loc)
	require.NoError(t, err)
	return ts
}

func TestDefaultTablesLoad(t *testing.T) {
	tables := Default()
	assert.Equal(t, "2026.10-1", tables.Version)
	assert.Equal(t, "America/Chicago", tables.Location().String())
	assert.Equal(t, 30*time.Minute, tables.Buffer())

	d, ok := tables.ServiceDuration("installation")
	require.True(t, ok)
	assert.Equal(t, 4*time.Hour, d)

	tech, ok := tables.Technician("tech-okafor")
	require.True(t, ok)
	assert.Equal(t, "Sam Okafor", tech.Name)

	assert.Equal(t, []string{"discount", "purchase_order", "quote", "refund"}, tables.ApprovalCategories())
}

func TestCalendar(t *testing.T) {
	tables := Default()

	wed := chicago(t, "2026-10-14 10:00")
	sat := chicago(t, "2026-10-17 10:00")
	thanksgiving := chicago(t, "2026-11-26 10:00")

	assert.True(t, tables.IsBusinessDay(wed))
	assert.False(t, tables.IsBusinessDay(sat))
	assert.True(t, tables.IsOperatingDay(thanksgiving))
	assert.False(t, tables.IsBusinessDay(thanksgiving))

	open, close, ok := tables.BusinessHours(wed)
	require.True(t, ok)
	assert.Equal(t, chicago(t, "2026-10-14 08:00"), open)
	assert.Equal(t, chicago(t, "2026-10-14 17:00"), close)

	_, _, ok = tables.BusinessHours(sat)
	assert.False(t, ok)

	assert.True(t, tables.WithinBusinessHours(wed))
	assert.False(t, tables.WithinBusinessHours(chicago(t, "2026-10-14 17:00")))

	fri := chicago(t, "2026-10-16 12:00")
	assert.Equal(t, chicago(t, "2026-10-19 00:00"), tables.NextBusinessDay(fri))
	assert.Equal(t, chicago(t, "2026-10-16 00:00"), tables.AddBusinessDays(wed, 2))
	assert.Equal(t, chicago(t, "2026-10-23 00:00"), tables.AddBusinessDays(wed, 7))
	assert.Equal(t, 7, tables.BusinessDaysBetween(wed, chicago(t, "2026-10-23 09:00")))
	assert.Equal(t, chicago(t, "2026-10-14 14:00"), tables.EmergencyCutoff(wed))
}

func TestFromYAMLRejectsInvalidDocuments(t *testing.T) {
	base := string(DefaultYAML())

	cases := map[string]struct {
		mutate func(string) string
		want   string
	}{
		"unknown field": {
			mutate: func(s string) string { return s + "\nsurprise: true\n" },
			want:   "surprise",
		},
		"four day week": {
			mutate: func(s string) string {
				return strings.Replace(s, "[mon, tue, wed, thu, fri]", "[mon, tue, wed, thu]", 1)
			},
			want: "5- or 6-day week",
		},
		"unknown default tier": {
			mutate: func(s string) string { return strings.Replace(s, "default_tier: retail", "default_tier: gold", 1) },
			want:   "pricing.default_tier",
		},
		"approval gap": {
			mutate: func(s string) string {
				return strings.Replace(s, "{id: refund-office, category: refund, lower_cents: 10000", "{id: refund-office, category: refund, lower_cents: 12000", 1)
			},
			want: "gap between refund-auto and refund-office",
		},
		"approval overlap": {
			mutate: func(s string) string {
				return strings.Replace(s, "{id: po-ops, category: purchase_order, lower_cents: 100000", "{id: po-ops, category: purchase_order, lower_cents: 90000", 1)
			},
			want: "overlap",
		},
		"bad timezone": {
			mutate: func(s string) string { return strings.Replace(s, "America/Chicago", "Mars/Olympus", 1) },
			want:   "timezone",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(tc.mutate(base)))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateApprovalRanges(t *testing.T) {
	upper := func(v int64) *int64 { return &v }

	ok := []ApprovalRange{
		{ID: "a", Category: "x", LowerCents: 0, UpperCents: upper(100), Approver: "auto"},
		{ID: "b", Category: "x", LowerCents: 100, Approver: "boss"},
	}
	require.NoError(t, ValidateApprovalRanges("x", ok))

	notZero := []ApprovalRange{{ID: "a", LowerCents: 5, Approver: "auto"}}
	assert.Error(t, ValidateApprovalRanges("x", notZero))

	unboundedFirst := []ApprovalRange{
		{ID: "a", LowerCents: 0, Approver: "auto"},
		{ID: "b", LowerCents: 100, Approver: "boss"},
	}
	assert.Error(t, ValidateApprovalRanges("x", unboundedFirst))

	inverted := []ApprovalRange{{ID: "a", LowerCents: 0, UpperCents: upper(0), Approver: "auto"}}
	assert.Error(t, ValidateApprovalRanges("x", inverted))
}

func TestHolderSwapIsWholeTable(t *testing.T) {
	first := Default()
	second, err := FromYAML([]byte(strings.Replace(string(DefaultYAML()), `version: "2026.10-1"`, `version: "2026.10-2"`, 1)))
	require.NoError(t, err)

	h := NewHolder(first)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				cur := h.Current()
				// a reader sees either table set in full, never a mix
				if cur.Version == "2026.10-1" {
					assert.Same(t, first, cur)
				} else {
					assert.Same(t, second, cur)
				}
			}
		}()
	}
	prev := h.Swap(second)
	wg.Wait()

	assert.Same(t, first, prev)
	assert.Same(t, second, h.Current())
	assert.Same(t, second, h.Swap(nil))
}

func TestWatchReloadsValidDocuments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, DefaultYAML(), 0o600))

	initial, err := LoadFile(path)
	require.NoError(t, err)
	h := NewHolder(initial)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, h, zap.NewNop()) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// give the watcher time to register before writing
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("version: broken\ncalendar: [\n"), 0o600))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, "2026.10-1", h.Current().Version)

	next := strings.Replace(string(DefaultYAML()), `version: "2026.10-1"`, `version: "2026.10-9"`, 1)
	require.NoError(t, os.WriteFile(path, []byte(next), 0o600))
	require.Eventually(t, func() bool { return h.Current().Version == "2026.10-9" }, 5*time.Second, 20*time.Millisecond)
}

func TestLoadFileEmptyPathUsesDefault(t *testing.T) {
	tables, err := LoadFile("  ")
	require.NoError(t, err)
	assert.Equal(t, Default().Version, tables.Version)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
