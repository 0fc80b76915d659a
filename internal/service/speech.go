package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/dispatch-engine/internal/domain"
	"github.com/spec-kit/dispatch-engine/internal/pricing"
)

// SpeakText renders a decision as one or two sentences a voice or chat
// transport can say as-is. It never includes caller contact details.
func SpeakText(d domain.Decision, loc *time.Location) string {
	switch d.Status {
	case domain.StatusUnsupported:
		if d.Reason == ReasonBillingDesk {
			return "Billing questions are handled by our billing desk. I'll pass your request along so they can follow up."
		}
		return "That's something our team handles directly. I'll pass it along so someone can follow up."
	case domain.StatusError:
		return "Something went wrong on our side. A team member will follow up with you shortly."
	}

	switch p := d.Payload.(type) {
	case *domain.SchedulingDecision:
		return schedulingText(d, p, loc)
	case *domain.PricingDecision:
		return pricingText(d, p)
	case *domain.ApprovalDecision:
		if !p.ApprovalRequired {
			return fmt.Sprintf("A %s of %s doesn't need further approval.", humanize(p.Category), dollars(p.AmountCents))
		}
		return fmt.Sprintf("A %s of %s needs approval from the %s. I've sent it over.", humanize(p.Category), dollars(p.AmountCents), humanize(p.Approver))
	case *domain.QualificationDecision:
		if d.Status == domain.StatusCompleted {
			return fmt.Sprintf("Thanks. I've passed your request to our %s team and they'll be in touch.", humanize(p.RouteTo))
		}
	case *domain.PolicyDecision:
		if d.Status == domain.StatusCompleted && p.Response != "" {
			return p.Response
		}
	}
	return needsHumanText(d)
}

func schedulingText(d domain.Decision, p *domain.SchedulingDecision, loc *time.Location) string {
	if d.Status != domain.StatusCompleted || len(p.Slots) == 0 {
		if p.ContactMessage != "" {
			return p.ContactMessage
		}
		return needsHumanText(d)
	}
	who := "a technician"
	if p.Assignment != nil && p.Assignment.Name != "" {
		who = p.Assignment.Name
	}
	var b strings.Builder
	fmt.Fprintf(&b, "I can have %s out %s", who, when(p.Slots[0].Start, loc))
	if len(p.Slots) > 1 {
		fmt.Fprintf(&b, ", or %s", when(p.Slots[1].Start, loc))
	}
	b.WriteString(".")
	if p.Estimate != nil {
		fmt.Fprintf(&b, " The visit comes to %s.", dollars(p.Estimate.TotalCents))
	}
	return b.String()
}

func pricingText(d domain.Decision, p *domain.PricingDecision) string {
	if d.Status != domain.StatusCompleted {
		return "I need to confirm your account type before I can give you a price. Someone will follow up with an exact quote."
	}
	var extras []string
	for _, l := range p.Lines {
		if l.Code != pricing.LineBase && l.Code != pricing.LineTrip {
			extras = append(extras, l.Label)
		}
	}
	text := fmt.Sprintf("A %s visit comes to %s including the trip charge", humanize(p.ServiceType), dollars(p.TotalCents))
	if len(extras) > 0 {
		text += " and the " + strings.Join(extras, " and the ")
	}
	return text + "."
}

func needsHumanText(d domain.Decision) string {
	if len(d.MissingFields) > 0 {
		fields := make([]string, 0, len(d.MissingFields))
		for _, f := range d.MissingFields {
			fields = append(fields, humanize(f))
		}
		return "Could you tell me your " + orList(fields) + "?"
	}
	switch d.Reason {
	case ReasonDuplicateInProgress:
		return "I'm already working on that request. Someone will confirm shortly."
	case "":
		return "Let me connect you with someone who can help."
	}
	return "Let me connect you with someone who can help. (" + d.Reason + ")"
}

func when(ts time.Time, loc *time.Location) string {
	if loc != nil {
		ts = ts.In(loc)
	}
	return ts.Format("Monday, January 2 at 3:04 PM")
}

func dollars(cents int64) string {
	sign := ""
	if cents < 0 {
		sign, cents = "-", -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

func humanize(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}

func orList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " or " + items[1]
	}
	return strings.Join(items[:len(items)-1], ", ") + ", or " + items[len(items)-1]
}
