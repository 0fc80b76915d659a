package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRules []byte

// Default returns the embedded table set. It panics if the embedded document
// is invalid, which only a broken build can cause.
func Default() *Tables {
	t, err := FromYAML(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded rules invalid: %v", err))
	}
	return t
}

// DefaultYAML returns a copy of the embedded document.
func DefaultYAML() []byte {
	return append([]byte(nil), defaultRules...)
}

// LoadFile reads and validates a table document. An empty path yields Default().
func LoadFile(path string) (*Tables, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	return FromYAML(data)
}

// FromYAML parses and validates a table document.
func FromYAML(data []byte) (*Tables, error) {
	var t Tables
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if err := t.compile(); err != nil {
		return nil, err
	}
	return &t, nil
}

// ValidationError lists every invariant a table document violates.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid rules: " + strings.Join(e.Problems, "; ")
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

func (t *Tables) compile() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}
	c := compiled{
		operatingDays: map[time.Weekday]bool{},
		hours:         map[time.Weekday]dayWindow{},
		holidays:      map[string]bool{},
		approvals:     map[string][]ApprovalRange{},
		technicians:   map[string]Technician{},
	}

	if t.Version == "" {
		add("version is required")
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil || t.Timezone == "" {
		add("timezone %q is not a valid IANA zone", t.Timezone)
		loc = time.UTC
	}
	c.location = loc

	// calendar
	for _, name := range t.Calendar.OperatingDays {
		wd, ok := weekdays[strings.ToLower(name)]
		if !ok {
			add("calendar.operating_days: unknown day %q", name)
			continue
		}
		c.operatingDays[wd] = true
	}
	if n := len(c.operatingDays); n != 5 && n != 6 {
		add("calendar.operating_days must declare a 5- or 6-day week, got %d", n)
	}
	defOpen, okOpen := parseClock(t.Calendar.Open)
	defClose, okClose := parseClock(t.Calendar.Close)
	for wd := range c.operatingDays {
		w := dayWindow{open: defOpen, close: defClose, known: okOpen && okClose}
		if override, ok := t.Calendar.DayHours[dayName(wd)]; ok {
			o, ok1 := parseClock(override.Open)
			cl, ok2 := parseClock(override.Close)
			w = dayWindow{open: o, close: cl, known: ok1 && ok2}
		}
		if w.known && w.open >= w.close {
			add("calendar: %s opens at or after it closes", dayName(wd))
		}
		c.hours[wd] = w
	}
	for name := range t.Calendar.DayHours {
		if _, ok := weekdays[name]; !ok {
			add("calendar.day_hours: unknown day %q", name)
		}
	}
	for _, h := range t.Calendar.Holidays {
		if _, err := time.Parse(dateLayout, h); err != nil {
			add("calendar.holidays: %q is not YYYY-MM-DD", h)
			continue
		}
		c.holidays[h] = true
	}

	// emergency
	if t.Emergency.NoHeatBelowF >= t.Emergency.NoCoolingAboveF {
		add("emergency: no_heat_below_f must be below no_cooling_above_f")
	}

	// scheduling
	s := t.Scheduling
	cutoff, ok := parseClock(s.EmergencyCutoff)
	if !ok {
		add("scheduling.emergency_cutoff %q is not HH:MM", s.EmergencyCutoff)
	}
	c.cutoffMinute = cutoff
	if s.UrgentFloorBusinessDays < 0 || s.RoutineFloorBusinessDays < s.UrgentFloorBusinessDays {
		add("scheduling: floors must satisfy 0 <= urgent <= routine")
	}
	if s.BufferMinutes < 0 {
		add("scheduling.buffer_minutes must not be negative")
	}
	if s.SlotStepMinutes <= 0 {
		add("scheduling.slot_step_minutes must be positive")
	}
	if s.HorizonWeeks <= 0 {
		add("scheduling.horizon_weeks must be positive")
	}
	if _, ok := s.ServiceDurations[s.DefaultServiceType]; !ok {
		add("scheduling.default_service_type %q has no duration", s.DefaultServiceType)
	}
	for name, m := range s.ServiceDurations {
		if m <= 0 {
			add("scheduling.service_durations_minutes[%s] must be positive", name)
		}
	}

	// roster
	for _, tech := range t.Roster.Technicians {
		if tech.ID == "" {
			add("roster: technician without id")
			continue
		}
		if _, dup := c.technicians[tech.ID]; dup {
			add("roster: duplicate technician %s", tech.ID)
		}
		c.technicians[tech.ID] = tech
	}
	for prefix, id := range t.Roster.AreaMap {
		if _, ok := c.technicians[id]; !ok {
			add("roster.area_map[%s] references unknown technician %s", prefix, id)
		}
		if t.Roster.AreaPrefixLength > 0 && len(prefix) != t.Roster.AreaPrefixLength {
			add("roster.area_map key %q is not %d digits", prefix, t.Roster.AreaPrefixLength)
		}
	}
	if id := t.Roster.DefaultTechnician; id != "" {
		if _, ok := c.technicians[id]; !ok {
			add("roster.default_technician references unknown technician %s", id)
		}
	}

	// pricing
	p := t.Pricing
	if _, ok := p.Tiers[p.DefaultTier]; !ok {
		add("pricing.default_tier %q is not a declared tier", p.DefaultTier)
	}
	for name, rates := range p.Tiers {
		if _, ok := rates.BaseFeeCents[DiagnosticService]; !ok {
			add("pricing.tiers[%s] has no %s base fee", name, DiagnosticService)
		}
		if rates.TripChargeCents < 0 {
			add("pricing.tiers[%s].trip_charge_cents is negative", name)
		}
	}
	if p.EmergencyPremiumCents < 0 || p.WeekendPremiumCents < 0 || p.AfterHoursPremiumCents < 0 {
		add("pricing: premiums must not be negative")
	}

	// approvals
	for _, r := range t.Approvals {
		c.approvals[r.Category] = append(c.approvals[r.Category], r)
	}
	for category, ranges := range c.approvals {
		sort.SliceStable(ranges, func(i, j int) bool { return ranges[i].LowerCents < ranges[j].LowerCents })
		if err := ValidateApprovalRanges(category, ranges); err != nil {
			add("%v", err)
		}
		c.approvals[category] = ranges
	}

	// qualification
	q := t.Qualification
	for _, route := range []string{RouteCommercial, RouteHighValue, RouteResidential} {
		if len(q.Routes[route]) == 0 {
			add("qualification.routes[%s] must list at least one assignee", route)
		}
	}
	for _, level := range []string{"hot", "warm", "cold"} {
		if _, ok := q.FollowUps[level]; !ok {
			add("qualification.follow_ups[%s] is required", level)
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return &ValidationError{Problems: problems}
	}
	t.compiled = c
	return nil
}

// ValidateApprovalRanges checks that sorted ranges start at zero, are
// contiguous, non-overlapping, and that only the last one is unbounded.
func ValidateApprovalRanges(category string, ranges []ApprovalRange) error {
	if len(ranges) == 0 {
		return nil
	}
	if ranges[0].LowerCents != 0 {
		return fmt.Errorf("approvals[%s]: first range %s must start at 0", category, ranges[0].ID)
	}
	for i, r := range ranges {
		if r.ID == "" || r.Approver == "" {
			return fmt.Errorf("approvals[%s]: range %d needs id and approver", category, i)
		}
		if r.UpperCents == nil {
			if i != len(ranges)-1 {
				return fmt.Errorf("approvals[%s]: unbounded range %s must be last", category, r.ID)
			}
			continue
		}
		if *r.UpperCents <= r.LowerCents {
			return fmt.Errorf("approvals[%s]: range %s is empty or inverted", category, r.ID)
		}
		if i+1 < len(ranges) {
			next := ranges[i+1]
			if next.LowerCents < *r.UpperCents {
				return fmt.Errorf("approvals[%s]: ranges %s and %s overlap", category, r.ID, next.ID)
			}
			if next.LowerCents > *r.UpperCents {
				return fmt.Errorf("approvals[%s]: gap between %s and %s", category, r.ID, next.ID)
			}
		}
	}
	return nil
}

// Well-known table keys.
const (
	DiagnosticService = "diagnostic"
	RouteCommercial   = "commercial"
	RouteHighValue    = "high_value"
	RouteResidential  = "residential"
)

// ErrNoSource is returned when an engine is built without tables.
var ErrNoSource = errors.New("catalog: no table source")

func parseClock(v string) (int, bool) {
	parts := strings.Split(strings.TrimSpace(v), ":")
	if len(parts) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, false
	}
	return h*60 + m, true
}

func dayName(wd time.Weekday) string {
	for name, d := range weekdays {
		if d == wd {
			return name
		}
	}
	return ""
}
