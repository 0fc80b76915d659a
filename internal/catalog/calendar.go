package catalog

import (
	"sort"
	"time"
)

// Location is the business timezone; every calendar question is answered in it.
func (t *Tables) Location() *time.Location {
	if t.compiled.location == nil {
		return time.UTC
	}
	return t.compiled.location
}

// IsOperatingDay reports whether the weekday of ts is in the operating week.
func (t *Tables) IsOperatingDay(ts time.Time) bool {
	return t.compiled.operatingDays[ts.In(t.Location()).Weekday()]
}

// IsHoliday reports whether the calendar date of ts is a configured holiday.
func (t *Tables) IsHoliday(ts time.Time) bool {
	return t.compiled.holidays[ts.In(t.Location()).Format(dateLayout)]
}

// IsBusinessDay is an operating day that is not a holiday.
func (t *Tables) IsBusinessDay(ts time.Time) bool {
	return t.IsOperatingDay(ts) && !t.IsHoliday(ts)
}

// BusinessHours returns the open and close instants on the date of ts. known is
// false when the day is not a business day or has no configured hours.
func (t *Tables) BusinessHours(ts time.Time) (open, close time.Time, known bool) {
	local := ts.In(t.Location())
	if !t.IsBusinessDay(local) {
		return time.Time{}, time.Time{}, false
	}
	w, ok := t.compiled.hours[local.Weekday()]
	if !ok || !w.known {
		return time.Time{}, time.Time{}, false
	}
	day := startOfDay(local)
	return atMinute(day, w.open), atMinute(day, w.close), true
}

// WithinBusinessHours reports whether ts is inside [open, close) on a business day.
func (t *Tables) WithinBusinessHours(ts time.Time) bool {
	open, close, ok := t.BusinessHours(ts)
	if !ok {
		return false
	}
	return !ts.Before(open) && ts.Before(close)
}

// EmergencyCutoff returns the same-day emergency cutoff on the date of ts.
func (t *Tables) EmergencyCutoff(ts time.Time) time.Time {
	return atMinute(startOfDay(ts.In(t.Location())), t.compiled.cutoffMinute)
}

// NextBusinessDay returns midnight of the first business day strictly after ts's date.
func (t *Tables) NextBusinessDay(ts time.Time) time.Time {
	day := startOfDay(ts.In(t.Location()))
	for i := 0; i < 366; i++ {
		day = day.AddDate(0, 0, 1)
		if t.IsBusinessDay(day) {
			return day
		}
	}
	return day
}

// AddBusinessDays returns midnight of the n-th business day after ts's date.
// n <= 0 returns midnight of ts's date.
func (t *Tables) AddBusinessDays(ts time.Time, n int) time.Time {
	day := startOfDay(ts.In(t.Location()))
	for i := 0; i < n; i++ {
		day = t.NextBusinessDay(day)
	}
	return day
}

// BusinessDaysBetween counts business days in (from, to], by calendar date.
func (t *Tables) BusinessDaysBetween(from, to time.Time) int {
	day := startOfDay(from.In(t.Location()))
	end := startOfDay(to.In(t.Location()))
	count := 0
	for day.Before(end) {
		day = day.AddDate(0, 0, 1)
		if t.IsBusinessDay(day) {
			count++
		}
	}
	return count
}

// Technician looks up a roster entry by id.
func (t *Tables) Technician(id string) (Technician, bool) {
	tech, ok := t.compiled.technicians[id]
	return tech, ok
}

// ApprovalRanges returns the category's ranges sorted by lower bound.
func (t *Tables) ApprovalRanges(category string) []ApprovalRange {
	return t.compiled.approvals[category]
}

// ApprovalCategories lists categories with declared ranges.
func (t *Tables) ApprovalCategories() []string {
	out := make([]string, 0, len(t.compiled.approvals))
	for c := range t.compiled.approvals {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// ServiceDuration returns the fixed visit length for a service type.
func (t *Tables) ServiceDuration(serviceType string) (time.Duration, bool) {
	m, ok := t.Scheduling.ServiceDurations[serviceType]
	if !ok || m <= 0 {
		return 0, false
	}
	return time.Duration(m) * time.Minute, true
}

// Buffer is the gap kept between appointments.
func (t *Tables) Buffer() time.Duration {
	return time.Duration(t.Scheduling.BufferMinutes) * time.Minute
}

// SlotStep is the granularity of candidate start times.
func (t *Tables) SlotStep() time.Duration {
	if t.Scheduling.SlotStepMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(t.Scheduling.SlotStepMinutes) * time.Minute
}

const dateLayout = "2006-01-02"

func startOfDay(ts time.Time) time.Time {
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, ts.Location())
}

func atMinute(day time.Time, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minute/60, minute%60, 0, 0, day.Location())
}
