package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/dispatch-engine/internal/domain"
)

func fullCommand(intent domain.Intent) domain.Command {
	return domain.Command{
		Intent:     intent,
		Confidence: 0.85,
		Entities: domain.Entities{
			Name:    "Dana Whitfield",
			Phone:   "+13125550142",
			Email:   "dana@example.com",
			Address: "1420 N Clark St",
			Zip:     "60610",
		},
	}
}

func TestIntentMapping(t *testing.T) {
	cases := map[domain.Intent]domain.TargetDomain{
		domain.IntentServiceRequest:    domain.DomainOperations,
		domain.IntentCancelAppointment: domain.DomainOperations,
		domain.IntentPriceInquiry:      domain.DomainCore,
		domain.IntentBillingInquiry:    domain.DomainCore,
		domain.IntentQuoteRequest:      domain.DomainRevenue,
		domain.IntentTimeOffRequest:    domain.DomainPeople,
		domain.IntentUnknown:           domain.DomainUnresolved,
		domain.Intent("something_new"): domain.DomainUnresolved,
	}
	for intent, want := range cases {
		assert.Equal(t, want, DomainFor(intent), intent)
	}
}

func TestFullyPopulatedCommandPasses(t *testing.T) {
	for _, intent := range []domain.Intent{
		domain.IntentServiceRequest, domain.IntentPriceInquiry, domain.IntentQuoteRequest, domain.IntentHiringInquiry,
	} {
		out := Route(fullCommand(intent), nil)
		assert.False(t, out.RequiresHuman, intent)
		assert.Empty(t, out.MissingFields)
	}
}

func TestRemovingWholeGroupFailsClosed(t *testing.T) {
	cmd := fullCommand(domain.IntentServiceRequest)
	cmd.Entities.Name, cmd.Entities.Phone, cmd.Entities.Email = "", "", ""

	out := Route(cmd, nil)
	assert.True(t, out.RequiresHuman)
	assert.Equal(t, ReasonMissingFields, out.HumanReason)
	assert.Equal(t, []string{"name", "phone", "email"}, out.MissingFields)
	assert.Equal(t, []string{"identity"}, out.MissingAnchors)
	assert.Empty(t, out.MissingCapabilities)
}

func TestAnyOneMemberSatisfiesGroup(t *testing.T) {
	for _, keep := range []string{"name", "phone", "email"} {
		cmd := fullCommand(domain.IntentQuoteRequest)
		cmd.Entities.Name, cmd.Entities.Phone, cmd.Entities.Email = "", "", ""
		switch keep {
		case "name":
			cmd.Entities.Name = "Pat"
		case "phone":
			cmd.Entities.Phone = "+13125550100"
		case "email":
			cmd.Entities.Email = "pat@example.com"
		}
		assert.False(t, Route(cmd, nil).RequiresHuman, keep)
	}
}

func TestMissingFieldsFollowDeclarationOrder(t *testing.T) {
	out := Route(domain.Command{Intent: domain.IntentServiceRequest, Confidence: 0.9}, nil)
	assert.Equal(t, []string{"name", "phone", "email", "address", "zip"}, out.MissingFields)
	assert.Equal(t, []string{"identity", "location"}, out.MissingAnchors)
}

func TestCapabilityGateIsDistinctFromValidation(t *testing.T) {
	caps := Capabilities{domain.DomainOperations: false, domain.DomainCore: true}

	out := Route(fullCommand(domain.IntentServiceRequest), caps)
	assert.True(t, out.RequiresHuman)
	assert.Equal(t, ReasonCapabilityUnavailable, out.HumanReason)
	assert.Empty(t, out.MissingFields)
	assert.Equal(t, []string{"record_service.operations"}, out.MissingCapabilities)

	assert.False(t, Route(fullCommand(domain.IntentPriceInquiry), caps).RequiresHuman)
	assert.False(t, Route(fullCommand(domain.IntentQuoteRequest), caps).RequiresHuman, "unknown capability is assumed available")
}

func TestUnresolvedAndLowConfidence(t *testing.T) {
	out := Route(domain.Command{Intent: domain.IntentUnknown, Confidence: 0.2}, nil)
	assert.True(t, out.RequiresHuman)
	assert.Equal(t, domain.DomainUnresolved, out.TargetDomain)
	assert.Equal(t, ReasonUnresolvedIntent, out.HumanReason)

	weak := fullCommand(domain.IntentQuoteRequest)
	weak.Confidence = 0.35
	out = Route(weak, nil)
	assert.True(t, out.RequiresHuman)
	assert.Equal(t, ReasonLowConfidence, out.HumanReason)
}

func TestRouteDoesNotMutateInput(t *testing.T) {
	cmd := domain.Command{Intent: domain.IntentServiceRequest, Confidence: 0.9}
	_ = Route(cmd, nil)
	assert.False(t, cmd.RequiresHuman)
	assert.Nil(t, cmd.MissingFields)
	assert.Empty(t, cmd.TargetDomain)
}

func TestDecision(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	cmd := Route(domain.Command{Intent: domain.IntentQuoteRequest, Confidence: 0.85}, nil)

	d := Decision(cmd, now)
	assert.Equal(t, domain.EngineRouter, d.Engine)
	assert.Equal(t, domain.StatusNeedsHuman, d.Status)
	assert.Equal(t, []string{"name", "phone", "email"}, d.MissingFields)
	assert.Contains(t, d.Reason, "identity")
	assert.Equal(t, now, d.DecidedAt)
}
