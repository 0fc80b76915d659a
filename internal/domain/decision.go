package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// DecisionStatus is the terminal status of one processed command.
type DecisionStatus string

const (
	StatusCompleted   DecisionStatus = "completed"
	StatusNeedsHuman  DecisionStatus = "needs_human"
	StatusUnsupported DecisionStatus = "unsupported"
	StatusError       DecisionStatus = "error"
)

// Engine names the component that produced a decision.
type Engine string

const (
	EngineRouter        Engine = "router"
	EngineLedger        Engine = "ledger"
	EngineScheduling    Engine = "scheduling"
	EnginePricing       Engine = "pricing"
	EngineApproval      Engine = "approval"
	EngineQualification Engine = "qualification"
	EnginePolicy        Engine = "policy"
)

// Decision is produced exactly once per routed command.
type Decision struct {
	Engine              Engine         `json:"engine"`
	Status              DecisionStatus `json:"status"`
	Reason              string         `json:"reason,omitempty"`
	MissingFields       []string       `json:"missing_fields,omitempty"`
	MissingCapabilities []string       `json:"missing_capabilities,omitempty"`
	RecordIDs           []string       `json:"record_ids,omitempty"`
	DecidedAt           time.Time      `json:"decided_at"`
	Payload             Payload        `json:"-"`
}

// Payload is the closed set of engine-specific decision bodies.
// Only types in this package implement it.
type Payload interface {
	PayloadKind() PayloadKind
	isPayload()
}

// PayloadKind tags the Payload variant on the wire.
type PayloadKind string

const (
	PayloadScheduling    PayloadKind = "scheduling"
	PayloadPricing       PayloadKind = "pricing"
	PayloadApproval      PayloadKind = "approval"
	PayloadQualification PayloadKind = "qualification"
	PayloadPolicy        PayloadKind = "policy"
)

type decisionAlias Decision

type decisionWire struct {
	decisionAlias
	PayloadKind PayloadKind     `json:"payload_kind,omitempty"`
	PayloadBody json.RawMessage `json:"payload,omitempty"`
}

// MarshalJSON writes the payload with its kind tag.
func (d Decision) MarshalJSON() ([]byte, error) {
	wire := decisionWire{decisionAlias: decisionAlias(d)}
	if d.Payload != nil {
		body, err := json.Marshal(d.Payload)
		if err != nil {
			return nil, err
		}
		wire.PayloadKind = d.Payload.PayloadKind()
		wire.PayloadBody = body
	}
	return json.Marshal(wire)
}

// UnmarshalJSON restores the payload variant named by payload_kind.
func (d *Decision) UnmarshalJSON(data []byte) error {
	var wire decisionWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*d = Decision(wire.decisionAlias)
	if wire.PayloadKind == "" {
		d.Payload = nil
		return nil
	}
	var target Payload
	switch wire.PayloadKind {
	case PayloadScheduling:
		target = &SchedulingDecision{}
	case PayloadPricing:
		target = &PricingDecision{}
	case PayloadApproval:
		target = &ApprovalDecision{}
	case PayloadQualification:
		target = &QualificationDecision{}
	case PayloadPolicy:
		target = &PolicyDecision{}
	default:
		return fmt.Errorf("unknown decision payload kind %q", wire.PayloadKind)
	}
	if err := json.Unmarshal(wire.PayloadBody, target); err != nil {
		return fmt.Errorf("decode %s payload: %w", wire.PayloadKind, err)
	}
	d.Payload = target
	return nil
}

// AppointmentState is the lifecycle of a scheduled visit.
type AppointmentState string

const (
	AppointmentRequested    AppointmentState = "requested"
	AppointmentSlotProposed AppointmentState = "slot_proposed"
	AppointmentConfirmed    AppointmentState = "confirmed"
	AppointmentCompleted    AppointmentState = "completed"
	AppointmentRescheduled  AppointmentState = "rescheduled"
	AppointmentCanceled     AppointmentState = "canceled"
)

// Assignment is the technician chosen for a visit and why.
type Assignment struct {
	TechnicianID string `json:"technician_id"`
	Name         string `json:"name"`
	// Rule is one of exact_area, overlapping_area, default.
	Rule string `json:"rule"`
}

// SchedulingDecision carries proposed slots from the Operations engine.
type SchedulingDecision struct {
	State          AppointmentState `json:"state"`
	ServiceType    string           `json:"service_type"`
	Duration       time.Duration    `json:"duration"`
	Urgency        string           `json:"urgency"`
	EarliestStart  time.Time        `json:"earliest_start"`
	Slots          []TimeSlot       `json:"slots"`
	SingleOption   bool             `json:"single_option"`
	PreSelected    bool             `json:"pre_selected"`
	WindowsIgnored bool             `json:"windows_ignored"`
	Assignment     *Assignment      `json:"assignment,omitempty"`
	Emergency      bool             `json:"emergency"`
	ContactMessage string           `json:"contact_message,omitempty"`
	Note           string           `json:"note,omitempty"`
	// Estimate is the fee quote for the first slot, when the tier is known.
	Estimate *PricingDecision `json:"estimate,omitempty"`
}

// FeeLine is one additive component of a price.
type FeeLine struct {
	Code        string `json:"code"`
	Label       string `json:"label"`
	AmountCents int64  `json:"amount_cents"`
}

// TierSource says where the applied customer tier came from.
type TierSource string

const (
	TierFromHint           TierSource = "hint"
	TierFromAccountDefault TierSource = "account_default"
	TierSuggested          TierSource = "suggested"
)

// PricingDecision is the Core-domain fee quote.
type PricingDecision struct {
	ServiceType string `json:"service_type"`
	// Tier is empty unless a tier was confirmed; SuggestedTier is never applied.
	Tier              string     `json:"tier,omitempty"`
	TierSource        TierSource `json:"tier_source"`
	SuggestedTier     string     `json:"suggested_tier,omitempty"`
	Applied           bool       `json:"applied"`
	Lines             []FeeLine  `json:"lines,omitempty"`
	TotalCents        int64      `json:"total_cents"`
	Currency          string     `json:"currency"`
	Emergency         bool       `json:"emergency"`
	NonBusinessDay    bool       `json:"non_business_day"`
	AfterHours        bool       `json:"after_hours"`
	AfterHoursOmitted bool       `json:"after_hours_omitted"`
	Note              string     `json:"note,omitempty"`
}

// ApprovalDecision is the outcome of the approval-threshold lookup.
type ApprovalDecision struct {
	Category         string `json:"category"`
	AmountCents      int64  `json:"amount_cents"`
	ApprovalRequired bool   `json:"approval_required"`
	Approver         string `json:"approver"`
	ThresholdRuleID  string `json:"threshold_rule_id"`
}

// LeadLevel is the qualification temperature.
type LeadLevel string

const (
	LeadHot  LeadLevel = "hot"
	LeadWarm LeadLevel = "warm"
	LeadCold LeadLevel = "cold"
)

// FollowUp is one planned touch after qualification.
type FollowUp struct {
	OffsetDays int    `json:"offset_days"`
	Channel    string `json:"channel"`
	Reason     string `json:"reason"`
}

// QualificationDecision is the Revenue-domain lead outcome.
type QualificationDecision struct {
	Level         LeadLevel  `json:"level"`
	Confidence    float64    `json:"confidence"`
	RuleID        string     `json:"rule_id"`
	RequiresHuman bool       `json:"requires_human"`
	RouteTo       string     `json:"route_to"`
	Assignees     []string   `json:"assignees"`
	FollowUps     []FollowUp `json:"follow_ups"`
}

// PolicyDecision is the People-domain outcome.
type PolicyDecision struct {
	Topic        string   `json:"topic"`
	RouteTo      string   `json:"route_to"`
	Assignees    []string `json:"assignees"`
	Requirements []string `json:"requirements,omitempty"`
	Response     string   `json:"response"`
}

func (*SchedulingDecision) PayloadKind() PayloadKind    { return PayloadScheduling }
func (*PricingDecision) PayloadKind() PayloadKind       { return PayloadPricing }
func (*ApprovalDecision) PayloadKind() PayloadKind      { return PayloadApproval }
func (*QualificationDecision) PayloadKind() PayloadKind { return PayloadQualification }
func (*PolicyDecision) PayloadKind() PayloadKind        { return PayloadPolicy }

func (*SchedulingDecision) isPayload()    {}
func (*PricingDecision) isPayload()       {}
func (*ApprovalDecision) isPayload()      {}
func (*QualificationDecision) isPayload() {}
func (*PolicyDecision) isPayload()        {}
