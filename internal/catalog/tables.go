// Package catalog holds the read-only rule tables the dispatch engines consult:
// calendar, roster, pricing catalog, approval thresholds, routing and follow-up
// schedules. A table set is immutable once loaded; updates replace the whole
// set through a Holder.
package catalog

import "time"

// Tables is one immutable, versioned table set.
type Tables struct {
	Version       string             `yaml:"version"`
	Timezone      string             `yaml:"timezone"`
	Calendar      CalendarTable      `yaml:"calendar"`
	Emergency     EmergencyTable     `yaml:"emergency"`
	Scheduling    SchedulingTable    `yaml:"scheduling"`
	Roster        RosterTable        `yaml:"roster"`
	Pricing       PricingTable       `yaml:"pricing"`
	Approvals     []ApprovalRange    `yaml:"approvals"`
	Qualification QualificationTable `yaml:"qualification"`
	Policy        PolicyTable        `yaml:"policy"`

	compiled compiled
}

// CalendarTable declares the operating week shared by scheduling and pricing.
type CalendarTable struct {
	OperatingDays []string `yaml:"operating_days"`
	Open          string   `yaml:"open"`
	Close         string   `yaml:"close"`
	// DayHours overrides Open/Close for a weekday ("sat": {open: "09:00", close: "13:00"}).
	DayHours map[string]Hours `yaml:"day_hours"`
	Holidays []string         `yaml:"holidays"`
}

// Hours is an open/close pair in "15:04" form.
type Hours struct {
	Open  string `yaml:"open"`
	Close string `yaml:"close"`
}

// EmergencyTable holds the explicit-temperature thresholds.
type EmergencyTable struct {
	NoHeatBelowF    int `yaml:"no_heat_below_f"`
	NoCoolingAboveF int `yaml:"no_cooling_above_f"`
}

// SchedulingTable configures the slot search.
type SchedulingTable struct {
	EmergencyCutoff          string         `yaml:"emergency_cutoff"`
	UrgentFloorBusinessDays  int            `yaml:"urgent_floor_business_days"`
	RoutineFloorBusinessDays int            `yaml:"routine_floor_business_days"`
	BufferMinutes            int            `yaml:"buffer_minutes"`
	SlotStepMinutes          int            `yaml:"slot_step_minutes"`
	HorizonWeeks             int            `yaml:"horizon_weeks"`
	DefaultServiceType       string         `yaml:"default_service_type"`
	ServiceDurations         map[string]int `yaml:"service_durations_minutes"`
	ReminderLeadHours        int            `yaml:"reminder_lead_hours"`
}

// Technician is one roster entry.
type Technician struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	ServiceAreas  []string `yaml:"service_areas"`
	SeniorityRank int      `yaml:"seniority_rank"`
	Active        bool     `yaml:"active"`
}

// RosterTable maps postal keys to technicians.
type RosterTable struct {
	Technicians []Technician `yaml:"technicians"`
	// AreaMap keys are postal prefixes of AreaPrefixLength digits.
	AreaMap           map[string]string `yaml:"area_map"`
	AreaPrefixLength  int               `yaml:"area_prefix_length"`
	DefaultTechnician string            `yaml:"default_technician"`
	Dispatcher        Contact           `yaml:"dispatcher"`
}

// Contact is a notification destination.
type Contact struct {
	Channel   string `yaml:"channel"`
	Recipient string `yaml:"recipient"`
}

// TierRates is the fee schedule for one customer tier, in cents.
type TierRates struct {
	TripChargeCents int64            `yaml:"trip_charge_cents"`
	BaseFeeCents    map[string]int64 `yaml:"base_fee_cents"`
}

// PricingTable is the tiered catalog plus flat premiums.
type PricingTable struct {
	Currency               string               `yaml:"currency"`
	DefaultTier            string               `yaml:"default_tier"`
	Tiers                  map[string]TierRates `yaml:"tiers"`
	EmergencyPremiumCents  int64                `yaml:"emergency_premium_cents"`
	WeekendPremiumCents    int64                `yaml:"weekend_premium_cents"`
	AfterHoursPremiumCents int64                `yaml:"after_hours_premium_cents"`
	AfterHoursGraceMinutes int                  `yaml:"after_hours_grace_minutes"`
}

// ApprovalRange maps [LowerCents, UpperCents) in a category to an approver.
// A nil UpperCents means unbounded.
type ApprovalRange struct {
	ID               string `yaml:"id"`
	Category         string `yaml:"category"`
	LowerCents       int64  `yaml:"lower_cents"`
	UpperCents       *int64 `yaml:"upper_cents"`
	Approver         string `yaml:"approver"`
	ApprovalRequired bool   `yaml:"approval_required"`
}

// Contains reports whether amount falls in the half-open range.
func (r ApprovalRange) Contains(amount int64) bool {
	if amount < r.LowerCents {
		return false
	}
	return r.UpperCents == nil || amount < *r.UpperCents
}

// FollowUpStep is one entry of a follow-up schedule.
type FollowUpStep struct {
	OffsetDays int    `yaml:"offset_days"`
	Channel    string `yaml:"channel"`
	Reason     string `yaml:"reason"`
}

// QualificationTable configures lead routing.
type QualificationTable struct {
	HighValueThresholdCents int64                     `yaml:"high_value_threshold_cents"`
	CommercialPropertyTypes []string                  `yaml:"commercial_property_types"`
	Routes                  map[string][]string       `yaml:"routes"`
	FollowUps               map[string][]FollowUpStep `yaml:"follow_ups"`
}

// PolicyTopic is one People-domain policy entry.
type PolicyTopic struct {
	RouteTo       string   `yaml:"route_to"`
	Assignees     []string `yaml:"assignees"`
	Requirements  []string `yaml:"requirements"`
	Response      string   `yaml:"response"`
	MinNoticeDays int      `yaml:"min_notice_days"`
}

// PolicyTable keys topics by name (hiring, time_off).
type PolicyTable struct {
	Topics map[string]PolicyTopic `yaml:"topics"`
}

type compiled struct {
	location      *time.Location
	operatingDays map[time.Weekday]bool
	hours         map[time.Weekday]dayWindow
	holidays      map[string]bool
	cutoffMinute  int
	approvals     map[string][]ApprovalRange
	technicians   map[string]Technician
}

type dayWindow struct {
	open, close int
	known       bool
}
