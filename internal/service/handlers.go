package service

import (
	"context"
	"fmt"
	"time"

	"github.com/spec-kit/dispatch-engine/internal/domain"
	"github.com/spec-kit/dispatch-engine/internal/jobs"
	"github.com/spec-kit/dispatch-engine/internal/pricing"
	"github.com/spec-kit/dispatch-engine/internal/recordservice"
	"github.com/spec-kit/dispatch-engine/internal/router"
	"github.com/spec-kit/dispatch-engine/internal/scheduling"
	"github.com/spec-kit/dispatch-engine/pkg/util/errorutil"
)

// Notification templates.
const (
	TemplateAppointmentProposed = "appointment_proposed"
	TemplateEmergencyDispatch   = "emergency_dispatch"
	TemplateApprovalRequested   = "approval_requested"
	TemplateLeadAssigned        = "lead_assigned"
	TemplateHRIntake            = "hr_intake"
)

// Record kinds written to the record service.
const (
	KindAppointmentRequest = "appointment_request"
	KindPriceQuote         = "price_quote"
	KindApprovalRequest    = "approval_request"
	KindLead               = "lead"
)

// ReasonBillingDesk marks billing questions, which have no automated handler.
const ReasonBillingDesk = "billing_desk"

// handle runs the owning domain's handler. Every domain must have a case.
func (s *DispatchService) handle(ctx context.Context, cmd domain.Command, now time.Time) (domain.Outcome, error) {
	switch cmd.TargetDomain {
	case domain.DomainOperations:
		return s.handleOperations(ctx, cmd, now)
	case domain.DomainCore:
		return s.handleCore(cmd, now)
	case domain.DomainRevenue:
		return s.handleRevenue(cmd, now)
	case domain.DomainPeople:
		return s.handlePeople(cmd, now)
	}
	return domain.Outcome{}, errorutil.NewUnsupportedIntent(fmt.Sprintf("no handler for domain %s", cmd.TargetDomain))
}

// engineFor names the engine a failed handler would have used.
func engineFor(cmd domain.Command) domain.Engine {
	switch cmd.TargetDomain {
	case domain.DomainOperations:
		return domain.EngineScheduling
	case domain.DomainCore:
		if cmd.Intent == domain.IntentApprovalRequest {
			return domain.EngineApproval
		}
		return domain.EnginePricing
	case domain.DomainRevenue:
		return domain.EngineQualification
	case domain.DomainPeople:
		return domain.EnginePolicy
	}
	return domain.EngineRouter
}

func (s *DispatchService) handleOperations(ctx context.Context, cmd domain.Command, now time.Time) (domain.Outcome, error) {
	switch cmd.Intent {
	case domain.IntentRescheduleAppointment:
		if scheduling.NeedsExternalConfirmation(domain.AppointmentConfirmed, domain.AppointmentRescheduled) {
			return domain.Outcome{}, errorutil.NewUnsupportedIntent("rescheduling must be confirmed by the booking system")
		}
	case domain.IntentCancelAppointment:
		if scheduling.NeedsExternalConfirmation(domain.AppointmentConfirmed, domain.AppointmentCanceled) {
			return domain.Outcome{}, errorutil.NewUnsupportedIntent("cancellations must be confirmed by the booking system")
		}
	}

	t := s.source.Current()
	e := cmd.Entities
	isEmergency := e.UrgencyLevel == domain.UrgencyEmergency
	req := scheduling.Request{
		Now:            now,
		ServiceType:    e.ServiceType,
		Urgency:        e.UrgencyLevel,
		Emergency:      isEmergency,
		Zip:            e.Zip,
		Windows:        e.PreferredTimeWindows,
		PreferredStart: cmd.Caller.PreferredStart,
	}
	if lookup, ok := s.records.(recordservice.BookingLookup); ok {
		from, until := scheduling.Floor(t, scheduling.Class(e.UrgencyLevel, isEmergency), now)
		busy, err := lookup.ListBookings(ctx, from, until)
		if err != nil {
			return domain.Outcome{}, errorutil.NewTransientDependency(router.CapabilityFor(domain.DomainOperations), err)
		}
		req.Busy = busy
	}

	decision, err := s.scheduler.Schedule(req)
	if err != nil {
		return domain.Outcome{}, err
	}
	out := domain.Outcome{Decision: decision}
	sd, _ := decision.Payload.(*domain.SchedulingDecision)
	if decision.Status != domain.StatusCompleted || sd == nil || len(sd.Slots) == 0 {
		return out, nil
	}

	first := sd.Slots[0]
	estimate := s.pricer.Price(pricing.Request{
		ServiceType:        sd.ServiceType,
		TierHint:           cmd.Caller.CustomerTier,
		AccountDefaultTier: cmd.Caller.AccountDefaultTier,
		At:                 first.Start,
		Emergency:          sd.Emergency,
	})
	if pd, ok := estimate.Payload.(*domain.PricingDecision); ok && estimate.Status == domain.StatusCompleted {
		sd.Estimate = pd
	}

	slots := make([]map[string]any, 0, len(sd.Slots))
	for _, sl := range sd.Slots {
		slots = append(slots, map[string]any{
			"start":         sl.Start.Format(time.RFC3339),
			"end":           sl.End.Format(time.RFC3339),
			"technician_id": sl.TechnicianID,
		})
	}
	out.Mutations = []domain.RecordMutation{{
		Domain: domain.DomainOperations,
		Kind:   KindAppointmentRequest,
		Fields: map[string]any{
			"service_type":        sd.ServiceType,
			"urgency":             sd.Urgency,
			"emergency":           sd.Emergency,
			"emergency_category":  e.EmergencyCategory,
			"problem_description": e.ProblemDescription,
			"address":             e.Address,
			"zip":                 e.Zip,
			"technician_id":       sd.Assignment.TechnicianID,
			"state":               string(sd.State),
			"slots":               slots,
		},
	}}

	if lead := time.Duration(t.Scheduling.ReminderLeadHours) * time.Hour; lead > 0 {
		if runAt := first.Start.Add(-lead); runAt.After(now) {
			out.Jobs = append(out.Jobs, domain.JobRequest{
				RunAt: runAt,
				Type:  jobs.TypeAppointmentReminder,
				Payload: map[string]any{
					"request_id":    cmd.RequestID,
					"slot_start":    first.Start.Format(time.RFC3339),
					"technician_id": first.TechnicianID,
				},
			})
		}
	}

	if channel, recipient, ok := callerContact(cmd); ok {
		out.Notifications = append(out.Notifications, domain.NotificationRequest{
			Channel:   channel,
			Recipient: recipient,
			Template:  TemplateAppointmentProposed,
			Data: map[string]any{
				"technician": sd.Assignment.Name,
				"slots":      slots,
			},
		})
	}
	if sd.Emergency && t.Roster.Dispatcher.Recipient != "" {
		out.Notifications = append(out.Notifications, domain.NotificationRequest{
			Channel:   t.Roster.Dispatcher.Channel,
			Recipient: t.Roster.Dispatcher.Recipient,
			Template:  TemplateEmergencyDispatch,
			Data: map[string]any{
				"category":      e.EmergencyCategory,
				"zip":           e.Zip,
				"technician_id": first.TechnicianID,
				"slot_start":    first.Start.Format(time.RFC3339),
			},
		})
	}
	return out, nil
}

func (s *DispatchService) handleCore(cmd domain.Command, now time.Time) (domain.Outcome, error) {
	e := cmd.Entities
	switch cmd.Intent {
	case domain.IntentPriceInquiry:
		at := now
		if cmd.Caller.PreferredStart != nil {
			at = *cmd.Caller.PreferredStart
		}
		decision := s.pricer.Price(pricing.Request{
			ServiceType:        e.ServiceType,
			TierHint:           cmd.Caller.CustomerTier,
			AccountDefaultTier: cmd.Caller.AccountDefaultTier,
			At:                 at,
			Emergency:          e.UrgencyLevel == domain.UrgencyEmergency,
		})
		decision.DecidedAt = now
		out := domain.Outcome{Decision: decision}
		if pd, ok := decision.Payload.(*domain.PricingDecision); ok && decision.Status == domain.StatusCompleted {
			out.Mutations = []domain.RecordMutation{{
				Domain: domain.DomainCore,
				Kind:   KindPriceQuote,
				Fields: map[string]any{
					"service_type": pd.ServiceType,
					"tier":         pd.Tier,
					"total_cents":  pd.TotalCents,
					"currency":     pd.Currency,
				},
			}}
		}
		return out, nil

	case domain.IntentApprovalRequest:
		if e.AmountCents == nil {
			return domain.Outcome{}, errorutil.NewFieldValidationError("approval request does not state an amount", domain.FieldAmount)
		}
		decision, err := s.approvals.Evaluate(e.ApprovalCategory, *e.AmountCents, now)
		if err != nil {
			return domain.Outcome{}, err
		}
		out := domain.Outcome{Decision: decision}
		ad, ok := decision.Payload.(*domain.ApprovalDecision)
		if !ok || decision.Status != domain.StatusCompleted {
			return out, nil
		}
		out.Mutations = []domain.RecordMutation{{
			Domain: domain.DomainCore,
			Kind:   KindApprovalRequest,
			Fields: map[string]any{
				"category":          ad.Category,
				"amount_cents":      ad.AmountCents,
				"approval_required": ad.ApprovalRequired,
				"approver":          ad.Approver,
				"threshold_rule_id": ad.ThresholdRuleID,
			},
		}}
		if ad.ApprovalRequired {
			out.Notifications = []domain.NotificationRequest{{
				Channel:   "queue",
				Recipient: ad.Approver,
				Template:  TemplateApprovalRequested,
				Data: map[string]any{
					"category":     ad.Category,
					"amount_cents": ad.AmountCents,
					"rule":         ad.ThresholdRuleID,
				},
			}}
		}
		return out, nil

	case domain.IntentBillingInquiry:
		return domain.Outcome{}, errorutil.NewUnsupportedIntent(ReasonBillingDesk)
	}
	return domain.Outcome{}, errorutil.NewUnsupportedIntent(fmt.Sprintf("no core handler for %s", cmd.Intent))
}

func (s *DispatchService) handleRevenue(cmd domain.Command, now time.Time) (domain.Outcome, error) {
	if cmd.Intent != domain.IntentQuoteRequest {
		return domain.Outcome{}, errorutil.NewUnsupportedIntent(fmt.Sprintf("no revenue handler for %s", cmd.Intent))
	}
	decision := s.qualifier.Qualify(cmd, now)
	out := domain.Outcome{Decision: decision}
	qd, ok := decision.Payload.(*domain.QualificationDecision)
	if !ok || decision.Status != domain.StatusCompleted {
		return out, nil
	}

	e := cmd.Entities
	out.Mutations = []domain.RecordMutation{{
		Domain: domain.DomainRevenue,
		Kind:   KindLead,
		Fields: map[string]any{
			"level":         string(qd.Level),
			"confidence":    qd.Confidence,
			"rule_id":       qd.RuleID,
			"route_to":      qd.RouteTo,
			"assignees":     qd.Assignees,
			"property_type": e.PropertyType,
			"budget_range":  e.BudgetRange,
			"timeline":      e.Timeline,
		},
	}}
	for _, f := range qd.FollowUps {
		out.Jobs = append(out.Jobs, domain.JobRequest{
			RunAt: now.AddDate(0, 0, f.OffsetDays),
			Type:  jobs.TypeLeadFollowUp,
			Payload: map[string]any{
				"request_id": cmd.RequestID,
				"level":      string(qd.Level),
				"channel":    f.Channel,
				"reason":     f.Reason,
			},
		})
	}
	for _, a := range qd.Assignees {
		out.Notifications = append(out.Notifications, domain.NotificationRequest{
			Channel:   "queue",
			Recipient: a,
			Template:  TemplateLeadAssigned,
			Data:      map[string]any{"level": string(qd.Level), "route": qd.RouteTo},
		})
	}
	return out, nil
}

func (s *DispatchService) handlePeople(cmd domain.Command, now time.Time) (domain.Outcome, error) {
	decision := s.policies.Decide(cmd, now)
	out := domain.Outcome{Decision: decision}
	pd, ok := decision.Payload.(*domain.PolicyDecision)
	if !ok || decision.Status != domain.StatusCompleted {
		return out, nil
	}
	fields := map[string]any{
		"topic":        pd.Topic,
		"route_to":     pd.RouteTo,
		"requirements": pd.Requirements,
	}
	if cmd.Entities.TimelineDays != nil {
		fields["notice_days"] = *cmd.Entities.TimelineDays
	}
	out.Mutations = []domain.RecordMutation{{Domain: domain.DomainPeople, Kind: pd.Topic, Fields: fields}}
	out.Notifications = []domain.NotificationRequest{{
		Channel:   "queue",
		Recipient: pd.RouteTo,
		Template:  TemplateHRIntake,
		Data:      map[string]any{"topic": pd.Topic, "assignees": pd.Assignees},
	}}
	return out, nil
}

// callerContact picks where caller-facing notifications go: phone first.
func callerContact(cmd domain.Command) (channel, recipient string, ok bool) {
	switch {
	case cmd.Entities.Phone != "":
		return "sms", cmd.Entities.Phone, true
	case cmd.Entities.Email != "":
		return "email", cmd.Entities.Email, true
	}
	return "", "", false
}
