package dto

import (
	"time"

	"github.com/spec-kit/dispatch-engine/internal/domain"
)

// ProcessRequest is one inbound transport request.
type ProcessRequest struct {
	Text      string `json:"text"`
	Channel   string `json:"channel"`
	RequestID string `json:"request_id,omitempty"`
	Caller    Caller `json:"caller"`
}

// Caller carries what the transport already knows about the caller.
type Caller struct {
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

// CallerContext maps the payload onto the domain caller context.
func (r ProcessRequest) CallerContext() domain.CallerContext {
	return domain.CallerContext{
		RequestID:          r.RequestID,
		Phone:              r.Caller.Phone,
		Email:              r.Caller.Email,
		Name:               r.Caller.Name,
		Zip:                r.Caller.Zip,
		CustomerTier:       r.Caller.CustomerTier,
		AccountDefaultTier: r.Caller.AccountDefaultTier,
		PreferredStart:     r.Caller.PreferredStart,
		IndoorTempF:        r.Caller.IndoorTempF,
		ServiceType:        r.Caller.ServiceType,
	}
}

// CorrectionRequest appends a correction to a request's audit trail.
type CorrectionRequest struct {
	// EntryID defaults to the first entry of the trail.
	EntryID  string           `json:"entry_id,omitempty"`
	Note     string           `json:"note"`
	Decision *domain.Decision `json:"decision,omitempty"`
}

// AuditTrailResponse lists audit entries of one request.
type AuditTrailResponse struct {
	RequestID string              `json:"request_id"`
	Entries   []domain.AuditEntry `json:"entries"`
}

// ErrorResponse is the envelope every failed request returns.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody describes one failure.
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}
