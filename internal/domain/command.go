package domain

import "time"

// Channel identifies where an inbound request arrived.
type Channel string

const (
	ChannelVoice  Channel = "voice"
	ChannelChat   Channel = "chat"
	ChannelSystem Channel = "system"
)

// Valid reports whether the channel is one of the known transports.
func (c Channel) Valid() bool {
	switch c {
	case ChannelVoice, ChannelChat, ChannelSystem:
		return true
	}
	return false
}

// Intent is the closed set of request types the extractor recognizes.
type Intent string

const (
	IntentServiceRequest        Intent = "service_request"
	IntentScheduleAppointment   Intent = "schedule_appointment"
	IntentRescheduleAppointment Intent = "reschedule_appointment"
	IntentCancelAppointment     Intent = "cancel_appointment"
	IntentQuoteRequest          Intent = "quote_request"
	IntentPriceInquiry          Intent = "price_inquiry"
	IntentApprovalRequest       Intent = "approval_request"
	IntentBillingInquiry        Intent = "billing_inquiry"
	IntentHiringInquiry         Intent = "hiring_inquiry"
	IntentTimeOffRequest        Intent = "time_off_request"
	IntentUnknown               Intent = "unknown"
)

// TargetDomain is the business area that owns a class of intents.
type TargetDomain string

const (
	DomainOperations TargetDomain = "operations"
	DomainCore       TargetDomain = "core"
	DomainRevenue    TargetDomain = "revenue"
	DomainPeople     TargetDomain = "people"
	DomainUnresolved TargetDomain = "unresolved"
)

// UrgencyLevel is the extractor's urgency classification.
type UrgencyLevel string

const (
	UrgencyEmergency UrgencyLevel = "emergency"
	UrgencyHigh      UrgencyLevel = "high"
	UrgencyMedium    UrgencyLevel = "medium"
	UrgencyLow       UrgencyLevel = "low"
	UrgencyUnknown   UrgencyLevel = "unknown"
)

// Entities is the flat, strongly typed set of optional fields pulled from a request.
// Empty strings and nil pointers mean "not present".
type Entities struct {
	Name               string       `json:"name,omitempty"`
	Phone              string       `json:"phone,omitempty"`
	Email              string       `json:"email,omitempty"`
	Address            string       `json:"address,omitempty"`
	Zip                string       `json:"zip,omitempty"`
	ProblemDescription string       `json:"problem_description,omitempty"`
	ServiceType        string       `json:"service_type,omitempty"`
	UrgencyLevel       UrgencyLevel `json:"urgency_level"`
	EmergencyCategory  string       `json:"emergency_category,omitempty"`
	PropertyType       string       `json:"property_type,omitempty"`
	SquareFootage      *int         `json:"square_footage,omitempty"`
	SystemAgeYears     *int         `json:"system_age_years,omitempty"`
	IndoorTempF        *int         `json:"indoor_temp_f,omitempty"`
	Timeline           string       `json:"timeline,omitempty"`
	TimelineDays       *int         `json:"timeline_days,omitempty"`
	BudgetRange        string       `json:"budget_range,omitempty"`
	BudgetMaxCents     *int64       `json:"budget_max_cents,omitempty"`
	AmountCents        *int64       `json:"amount_cents,omitempty"`
	ApprovalCategory   string       `json:"approval_category,omitempty"`
	// PreferredTimeWindows keeps the caller's phrases in the order they were said.
	PreferredTimeWindows []string `json:"preferred_time_windows,omitempty"`
}

// Field names used by anchor groups and missing_fields.
const (
	FieldName               = "name"
	FieldPhone              = "phone"
	FieldEmail              = "email"
	FieldAddress            = "address"
	FieldZip                = "zip"
	FieldProblemDescription = "problem_description"
	FieldServiceType        = "service_type"
	FieldPropertyType       = "property_type"
	FieldTimeline           = "timeline"
	FieldBudgetRange        = "budget_range"
	FieldAmount             = "amount"
	FieldApprovalCategory   = "approval_category"
)

// Has reports whether the named field carries a value.
func (e Entities) Has(field string) bool {
	switch field {
	case FieldName:
		return e.Name != ""
	case FieldPhone:
		return e.Phone != ""
	case FieldEmail:
		return e.Email != ""
	case FieldAddress:
		return e.Address != ""
	case FieldZip:
		return e.Zip != ""
	case FieldProblemDescription:
		return e.ProblemDescription != ""
	case FieldServiceType:
		return e.ServiceType != ""
	case FieldPropertyType:
		return e.PropertyType != ""
	case FieldTimeline:
		return e.Timeline != ""
	case FieldBudgetRange:
		return e.BudgetRange != ""
	case FieldAmount:
		return e.AmountCents != nil
	case FieldApprovalCategory:
		return e.ApprovalCategory != ""
	}
	return false
}

// CallerContext is structured input supplied by the transport next to the raw text.
type CallerContext struct {
	RequestID          string     `json:"request_id,omitempty"`
	Phone              string     `json:"phone,omitempty"`
	Email              string     `json:"email,omitempty"`
	Name               string     `json:"name,omitempty"`
	Zip                string     `json:"zip,omitempty"`
	CustomerTier       string     `json:"customer_tier,omitempty"`
	AccountDefaultTier string     `json:"account_default_tier,omitempty"`
	PreferredStart     *time.Time `json:"preferred_start,omitempty"`
	IndoorTempF        *int       `json:"indoor_temp_f,omitempty"`
	ServiceType        string     `json:"service_type,omitempty"`
}

// Command is the validated envelope built once per inbound request.
// Pipeline stages return modified copies; a Command value is never mutated in place.
type Command struct {
	RequestID  string    `json:"request_id"`
	Channel    Channel   `json:"channel"`
	RawText    string    `json:"raw_text"`
	CreatedAt  time.Time `json:"created_at"`
	Intent     Intent    `json:"intent"`
	Confidence float64   `json:"confidence"`
	// IntentRuleID names the extractor rule that produced Intent.
	IntentRuleID string        `json:"intent_rule_id,omitempty"`
	Entities     Entities      `json:"entities"`
	Caller       CallerContext `json:"caller"`

	TargetDomain        TargetDomain `json:"target_domain"`
	RequiresHuman       bool         `json:"requires_human"`
	MissingFields       []string     `json:"missing_fields,omitempty"`
	MissingAnchors      []string     `json:"missing_anchors,omitempty"`
	MissingCapabilities []string     `json:"missing_capabilities,omitempty"`
	HumanReason         string       `json:"human_reason,omitempty"`

	IdempotencyKey string `json:"idempotency_key,omitempty"`
}
