// Package pricing computes tiered fees and evaluates approval thresholds for
// the Core domain. Fees are the sum of independently toggled table lines.
package pricing

import (
	"fmt"
	"time"

	"github.com/spec-kit/dispatch-engine/internal/catalog"
	"github.com/spec-kit/dispatch-engine/internal/domain"
)

// Fee line codes.
const (
	LineBase       = "base"
	LineTrip       = "trip"
	LineEmergency  = "emergency_premium"
	LineWeekend    = "weekend_holiday_premium"
	LineAfterHours = "after_hours_premium"
)

// Request is the input to one price computation.
type Request struct {
	ServiceType string
	// TierHint is the upstream account classification; it wins over AccountDefaultTier.
	TierHint           string
	AccountDefaultTier string
	At                 time.Time
	Emergency          bool
}

// Engine prices requests against the current tables.
type Engine struct {
	source catalog.Source
}

// New creates a pricing engine.
func New(source catalog.Source) *Engine {
	return &Engine{source: source}
}

type tierChoice struct {
	tier   string
	source domain.TierSource
}

func resolveTier(t *catalog.Tables, req Request) (tierChoice, bool) {
	if _, ok := t.Pricing.Tiers[req.TierHint]; ok && req.TierHint != "" {
		return tierChoice{req.TierHint, domain.TierFromHint}, true
	}
	if _, ok := t.Pricing.Tiers[req.AccountDefaultTier]; ok && req.AccountDefaultTier != "" {
		return tierChoice{req.AccountDefaultTier, domain.TierFromAccountDefault}, true
	}
	return tierChoice{}, false
}

// Price computes the fee lines. An unknown tier is never guessed: the
// decision needs a human and carries the table default only as a suggestion.
func (e *Engine) Price(req Request) domain.Decision {
	t := e.source.Current()
	at := req.At.In(t.Location())

	pd := &domain.PricingDecision{
		ServiceType: req.ServiceType,
		Currency:    t.Pricing.Currency,
		Emergency:   req.Emergency,
	}
	decision := domain.Decision{Engine: domain.EnginePricing, DecidedAt: at, Payload: pd}

	choice, ok := resolveTier(t, req)
	if !ok {
		pd.TierSource = domain.TierSuggested
		pd.SuggestedTier = t.Pricing.DefaultTier
		pd.Note = "customer tier unknown; suggested tier is not applied"
		if req.TierHint != "" {
			pd.Note = fmt.Sprintf("customer tier %q is not in the catalog; suggested tier is not applied", req.TierHint)
		}
		decision.Status = domain.StatusNeedsHuman
		decision.Reason = "customer tier unknown"
		decision.MissingFields = []string{"customer_tier"}
		return decision
	}
	pd.Tier = choice.tier
	pd.TierSource = choice.source
	pd.Applied = true

	rates := t.Pricing.Tiers[choice.tier]
	service := req.ServiceType
	base, ok := rates.BaseFeeCents[service]
	if !ok {
		service = catalog.DiagnosticService
		base = rates.BaseFeeCents[service]
	}
	pd.ServiceType = service

	lines := []domain.FeeLine{
		{Code: LineBase, Label: service + " fee", AmountCents: base},
		{Code: LineTrip, Label: "trip charge", AmountCents: rates.TripChargeCents},
	}
	if req.Emergency {
		lines = append(lines, domain.FeeLine{Code: LineEmergency, Label: "emergency premium", AmountCents: t.Pricing.EmergencyPremiumCents})
	}
	if !t.IsBusinessDay(at) {
		pd.NonBusinessDay = true
		lines = append(lines, domain.FeeLine{Code: LineWeekend, Label: "weekend/holiday premium", AmountCents: t.Pricing.WeekendPremiumCents})
	} else {
		switch afterHours(t, at) {
		case hoursOutside:
			pd.AfterHours = true
			lines = append(lines, domain.FeeLine{Code: LineAfterHours, Label: "after-hours premium", AmountCents: t.Pricing.AfterHoursPremiumCents})
		case hoursAmbiguous:
			pd.AfterHoursOmitted = true
			pd.Note = "after-hours premium omitted: business-hours boundary is ambiguous for this time"
		}
	}

	pd.Lines = lines
	for _, l := range lines {
		pd.TotalCents += l.AmountCents
	}
	decision.Status = domain.StatusCompleted
	return decision
}

type hoursVerdict int

const (
	hoursInside hoursVerdict = iota
	hoursOutside
	hoursAmbiguous
)

// afterHours classifies a business-day timestamp. It is ambiguous when the
// day has no configured hours or ts sits within the grace period of opening
// or closing.
func afterHours(t *catalog.Tables, ts time.Time) hoursVerdict {
	open, close, known := t.BusinessHours(ts)
	if !known {
		return hoursAmbiguous
	}
	if !ts.Before(open) && ts.Before(close) {
		return hoursInside
	}
	grace := time.Duration(t.Pricing.AfterHoursGraceMinutes) * time.Minute
	if within(ts, open, grace) || within(ts, close, grace) {
		return hoursAmbiguous
	}
	return hoursOutside
}

func within(ts, boundary time.Time, grace time.Duration) bool {
	d := ts.Sub(boundary)
	if d < 0 {
		d = -d
	}
	return d <= grace
}
