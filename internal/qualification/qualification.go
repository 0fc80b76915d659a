// Package qualification scores Revenue leads as hot, warm or cold, routes them
// to a fixed assignee list and produces the follow-up plan for the level.
package qualification

import (
	"regexp"
	"strings"
	"time"

	"github.com/spec-kit/dispatch-engine/internal/catalog"
	"github.com/spec-kit/dispatch-engine/internal/domain"
	"github.com/spec-kit/dispatch-engine/internal/rules"
)

var (
	decisionMakerRe  = regexp.MustCompile(`\b(i'?m the owner|i am the owner|i own (the|this|our)|owner here|decision[- ]maker|i make the (call|decisions?)|property manager|facilities manager|facility manager|i manage (the|this|our) (building|property|properties))\b`)
	approvedBudgetRe = regexp.MustCompile(`\b(budget (is |has been )?(approved|allocated|set aside)|approved budget|have (the|a) budget|funds? (are |is |have been )?(approved|allocated)|financing (is )?approved|ready to (sign|move forward))\b`)
	discomfortRe     = regexp.MustCompile(`\b(still (works|working|running|runs)|working but|runs but|not (cooling|heating) (well|enough)|struggling|uncomfortable|barely|runs constantly|not keeping up|uneven|hot upstairs|cold upstairs|getting old)\b`)
	shoppingRe       = regexp.MustCompile(`\b(just curious|shopping around|comparing|compare prices|ballpark|rough idea|just looking|price check|how much|what does .* cost|other quotes)\b`)
)

// Rule identifiers, in evaluation order.
const (
	RuleImmediateNeed      = "hot.immediate_need"
	RuleApprovedBudget     = "hot.decision_maker_budget"
	RuleDiscomfortTimeline = "warm.discomfort_timeline"
	RuleShoppingOrDistant  = "cold.shopping_or_distant"
	RuleNoMatch            = "warm.default"
)

type input struct {
	lower    string
	entities domain.Entities
}

type score struct {
	level      domain.LeadLevel
	confidence float64
}

func timelineBetween(e domain.Entities, lo, hi int) bool {
	return e.TimelineDays != nil && *e.TimelineDays >= lo && *e.TimelineDays <= hi
}

var table = rules.Table[input, score]{
	{
		// Reads the extracted urgency, not the raw text, so negated
		// phrasings like "not urgent" stay out of this rule.
		ID: RuleImmediateNeed,
		Match: func(in input) bool {
			u := in.entities.UrgencyLevel
			return u == domain.UrgencyEmergency || u == domain.UrgencyHigh || in.entities.EmergencyCategory != ""
		},
		Result: score{domain.LeadHot, 0.9},
	},
	{
		ID:     RuleApprovedBudget,
		Match:  func(in input) bool { return decisionMakerRe.MatchString(in.lower) && approvedBudgetRe.MatchString(in.lower) },
		Result: score{domain.LeadHot, 0.85},
	},
	{
		ID:     RuleDiscomfortTimeline,
		Match:  func(in input) bool { return discomfortRe.MatchString(in.lower) && timelineBetween(in.entities, 3, 14) },
		Result: score{domain.LeadWarm, 0.75},
	},
	{
		ID: RuleShoppingOrDistant,
		Match: func(in input) bool {
			return shoppingRe.MatchString(in.lower) ||
				(in.entities.TimelineDays != nil && *in.entities.TimelineDays >= 15) ||
				in.entities.UrgencyLevel == domain.UrgencyLow
		},
		Result: score{domain.LeadCold, 0.7},
	},
}

var fallback = score{domain.LeadWarm, 0.5}

// Engine qualifies leads against the current tables.
type Engine struct {
	source catalog.Source
}

// New creates a qualification engine.
func New(source catalog.Source) *Engine {
	return &Engine{source: source}
}

// Score applies the precedence table to a command.
func Score(cmd domain.Command) (domain.LeadLevel, float64, string, bool) {
	in := input{lower: strings.ToLower(cmd.RawText), entities: cmd.Entities}
	r, ok := table.First(in)
	if !ok {
		return fallback.level, fallback.confidence, RuleNoMatch, true
	}
	return r.Result.level, r.Result.confidence, r.ID, false
}

// Route picks the assignment route. A budget above the high-value threshold
// overrides the property type.
func Route(t *catalog.Tables, e domain.Entities) string {
	q := t.Qualification
	if e.BudgetMaxCents != nil && *e.BudgetMaxCents > q.HighValueThresholdCents {
		return catalog.RouteHighValue
	}
	for _, pt := range q.CommercialPropertyTypes {
		if e.PropertyType != "" && strings.EqualFold(pt, e.PropertyType) {
			return catalog.RouteCommercial
		}
	}
	return catalog.RouteResidential
}

// FollowUps maps a level to its fixed follow-up schedule.
func FollowUps(t *catalog.Tables, level domain.LeadLevel) []domain.FollowUp {
	steps := t.Qualification.FollowUps[string(level)]
	out := make([]domain.FollowUp, 0, len(steps))
	for _, s := range steps {
		out = append(out, domain.FollowUp{OffsetDays: s.OffsetDays, Channel: s.Channel, Reason: s.Reason})
	}
	return out
}

// Qualify scores, routes and plans follow-ups for a lead. A lead no rule
// matched stays warm but needs a human.
func (e *Engine) Qualify(cmd domain.Command, now time.Time) domain.Decision {
	t := e.source.Current()
	level, confidence, ruleID, needsHuman := Score(cmd)
	route := Route(t, cmd.Entities)

	qd := &domain.QualificationDecision{
		Level:         level,
		Confidence:    confidence,
		RuleID:        ruleID,
		RequiresHuman: needsHuman,
		RouteTo:       route,
		Assignees:     append([]string(nil), t.Qualification.Routes[route]...),
		FollowUps:     FollowUps(t, level),
	}
	d := domain.Decision{Engine: domain.EngineQualification, Status: domain.StatusCompleted, DecidedAt: now, Payload: qd}
	if needsHuman {
		d.Status = domain.StatusNeedsHuman
		d.Reason = "lead does not match a qualification rule"
	}
	return d
}
