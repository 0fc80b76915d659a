// Package router maps intents to domains and gates commands on required
// anchors and collaborator capabilities. It is pure: no I/O, no ledger.
package router

import (
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/dispatch-engine/internal/domain"
)

// AnchorGroup is satisfied when any one of its fields is present.
type AnchorGroup struct {
	Name   string
	Fields []string
}

var (
	IdentityAnchor = AnchorGroup{Name: "identity", Fields: []string{domain.FieldName, domain.FieldPhone, domain.FieldEmail}}
	LocationAnchor = AnchorGroup{Name: "location", Fields: []string{domain.FieldAddress, domain.FieldZip}}
)

// Human reasons set on commands the gate stops.
const (
	ReasonUnresolvedIntent      = "unresolved_intent"
	ReasonLowConfidence         = "low_confidence"
	ReasonMissingFields         = "missing_fields"
	ReasonCapabilityUnavailable = "capability_unavailable"
)

// MinConfidence is the floor below which a resolved intent is still sent to a human.
const MinConfidence = 0.4

var intentDomains = map[domain.Intent]domain.TargetDomain{
	domain.IntentServiceRequest:        domain.DomainOperations,
	domain.IntentScheduleAppointment:   domain.DomainOperations,
	domain.IntentRescheduleAppointment: domain.DomainOperations,
	domain.IntentCancelAppointment:     domain.DomainOperations,
	domain.IntentPriceInquiry:          domain.DomainCore,
	domain.IntentApprovalRequest:       domain.DomainCore,
	domain.IntentBillingInquiry:        domain.DomainCore,
	domain.IntentQuoteRequest:          domain.DomainRevenue,
	domain.IntentHiringInquiry:         domain.DomainPeople,
	domain.IntentTimeOffRequest:        domain.DomainPeople,
}

// Groups are listed in declaration order; missing_fields follows it.
var domainAnchors = map[domain.TargetDomain][]AnchorGroup{
	domain.DomainOperations: {IdentityAnchor, LocationAnchor},
	domain.DomainCore:       {IdentityAnchor},
	domain.DomainRevenue:    {IdentityAnchor},
	domain.DomainPeople:     {IdentityAnchor},
}

// DomainFor returns the domain that owns intent, or unresolved.
func DomainFor(intent domain.Intent) domain.TargetDomain {
	if d, ok := intentDomains[intent]; ok {
		return d
	}
	return domain.DomainUnresolved
}

// AnchorsFor returns the anchor groups a domain requires.
func AnchorsFor(d domain.TargetDomain) []AnchorGroup {
	return domainAnchors[d]
}

// CapabilityFor names the record-service capability a domain depends on.
func CapabilityFor(d domain.TargetDomain) string {
	return "record_service." + string(d)
}

// Capabilities is what capability discovery reported, keyed by domain.
// A domain absent from the map is assumed available.
type Capabilities map[domain.TargetDomain]bool

// Unavailable reports whether discovery positively reported d as down.
func (c Capabilities) Unavailable(d domain.TargetDomain) bool {
	available, known := c[d]
	return known && !available
}

// Route resolves the target domain and applies the anchor and capability
// gates. It returns a modified copy of cmd.
func Route(cmd domain.Command, caps Capabilities) domain.Command {
	out := cmd
	out.MissingFields = nil
	out.MissingAnchors = nil
	out.MissingCapabilities = nil
	out.RequiresHuman = false
	out.HumanReason = ""
	out.TargetDomain = DomainFor(cmd.Intent)

	if out.TargetDomain == domain.DomainUnresolved {
		out.RequiresHuman = true
		out.HumanReason = ReasonUnresolvedIntent
		return out
	}

	for _, g := range domainAnchors[out.TargetDomain] {
		if satisfied(cmd.Entities, g) {
			continue
		}
		out.MissingAnchors = append(out.MissingAnchors, g.Name)
		out.MissingFields = append(out.MissingFields, g.Fields...)
	}
	if caps.Unavailable(out.TargetDomain) {
		out.MissingCapabilities = append(out.MissingCapabilities, CapabilityFor(out.TargetDomain))
	}

	switch {
	case len(out.MissingFields) > 0:
		out.RequiresHuman = true
		out.HumanReason = ReasonMissingFields
	case len(out.MissingCapabilities) > 0:
		out.RequiresHuman = true
		out.HumanReason = ReasonCapabilityUnavailable
	case cmd.Confidence < MinConfidence:
		out.RequiresHuman = true
		out.HumanReason = ReasonLowConfidence
	}
	return out
}

func satisfied(e domain.Entities, g AnchorGroup) bool {
	for _, f := range g.Fields {
		if e.Has(f) {
			return true
		}
	}
	return false
}

// Decision turns a gated command into the router's needs_human decision.
func Decision(cmd domain.Command, now time.Time) domain.Decision {
	return domain.Decision{
		Engine:              domain.EngineRouter,
		Status:              domain.StatusNeedsHuman,
		Reason:              Explain(cmd),
		MissingFields:       cmd.MissingFields,
		MissingCapabilities: cmd.MissingCapabilities,
		DecidedAt:           now,
	}
}

// Explain renders the human reason as a sentence a transport can act on.
func Explain(cmd domain.Command) string {
	switch cmd.HumanReason {
	case ReasonUnresolvedIntent:
		return "could not tell what the caller needs"
	case ReasonLowConfidence:
		return fmt.Sprintf("intent %s is uncertain (confidence %.2f)", cmd.Intent, cmd.Confidence)
	case ReasonMissingFields:
		return "missing " + strings.Join(cmd.MissingAnchors, " and ") + " details: one of " + strings.Join(cmd.MissingFields, ", ")
	case ReasonCapabilityUnavailable:
		return "capability unavailable: " + strings.Join(cmd.MissingCapabilities, ", ")
	}
	return cmd.HumanReason
}
