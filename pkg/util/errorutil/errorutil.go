package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/dispatch-engine/internal/domain"
)

// DomainError standardizes application errors returned over HTTP.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, domain.ErrRecordNotFound) {
		return NewNotFound("resource", nil).(*DomainError)
	}
	var dispatchErr *DispatchError
	if errors.As(err, &dispatchErr) && dispatchErr.Kind == KindValidation {
		return NewDomainError("VALIDATION_FAILED", dispatchErr.Reason, http.StatusBadRequest, nil)
	}
	return NewInternalError(err).(*DomainError)
}

// Kind classifies a dispatch failure.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindCapabilityMissing   Kind = "capability_missing"
	KindUnsupportedIntent   Kind = "unsupported_intent"
	KindTransientDependency Kind = "transient_dependency"
	KindConfigInvariant     Kind = "config_invariant"
)

// DispatchError is the typed error used inside the dispatch pipeline. Only
// KindConfigInvariant indicates a bug; every other kind is a business condition
// that ends in a needs_human or unsupported decision.
type DispatchError struct {
	Kind       Kind
	Reason     string
	Fields     []string
	Capability string
	Err        error
}

func (e *DispatchError) Error() string {
	msg := string(e.Kind) + ": " + e.Reason
	if e.Capability != "" {
		msg += " (" + e.Capability + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

func NewFieldValidationError(reason string, fields ...string) error {
	return &DispatchError{Kind: KindValidation, Reason: reason, Fields: fields}
}

func NewCapabilityMissing(capability, reason string) error {
	return &DispatchError{Kind: KindCapabilityMissing, Reason: reason, Capability: capability}
}

func NewUnsupportedIntent(reason string) error {
	return &DispatchError{Kind: KindUnsupportedIntent, Reason: reason}
}

func NewTransientDependency(capability string, err error) error {
	return &DispatchError{Kind: KindTransientDependency, Reason: "dependency call failed", Capability: capability, Err: err}
}

func NewConfigInvariant(reason string, err error) error {
	return &DispatchError{Kind: KindConfigInvariant, Reason: reason, Err: err}
}

// AsDispatchError unwraps err into a DispatchError.
func AsDispatchError(err error) (*DispatchError, bool) {
	var de *DispatchError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsKind reports whether err is a DispatchError of the given kind.
func IsKind(err error, kind Kind) bool {
	de, ok := AsDispatchError(err)
	return ok && de.Kind == kind
}

// StatusFor maps an error kind to the decision status it produces.
func StatusFor(kind Kind) domain.DecisionStatus {
	switch kind {
	case KindValidation, KindCapabilityMissing, KindTransientDependency:
		return domain.StatusNeedsHuman
	case KindUnsupportedIntent:
		return domain.StatusUnsupported
	}
	return domain.StatusError
}
