package extractor

import (
	"math"
	"regexp"

	"github.com/spec-kit/dispatch-engine/internal/domain"
	"github.com/spec-kit/dispatch-engine/internal/emergency"
	"github.com/spec-kit/dispatch-engine/internal/rules"
)

// intentInput is what intent rules look at.
type intentInput struct {
	text       string
	assessment emergency.Assessment
}

type intentResult struct {
	intent     domain.Intent
	confidence float64
}

var (
	hiringRe      = regexp.MustCompile(`\b(are you hiring|hiring|job openings?|apply for (a |the )?(job|position)|job application|looking for (a )?(job|work)|careers?|employment|join your team|work for you)\b`)
	timeOffRe     = regexp.MustCompile(`\b(time off|pto|vacation days?|days? off|sick day|leave of absence)\b`)
	cancelRe      = regexp.MustCompile(`\bcancel\w*\b[^.?!]*\b(appointment|visit|service call|booking|technician)\b`)
	rescheduleRe  = regexp.MustCompile(`\b(re-?schedule|move my appointment|change my appointment|push (back )?my appointment)\b`)
	approvalRe    = regexp.MustCompile(`\b(approv\w*|sign[- ]off|authoriz\w*)\b`)
	approvalObjRe = regexp.MustCompile(`\b(refund|discount|purchase order|po|quote)\b`)
	billingRe     = regexp.MustCompile(`\b(invoice|bill|billing|billed|charged|overcharged|statement|payment|receipt)\b`)
	priceWordRe   = regexp.MustCompile(`\b(how much|costs?|price|pricing|fees?|rates?|charge)\b`)
	priceObjRe    = regexp.MustCompile(`\b(diagnostic|service call|trip charge|visit|come out|tune[- ]?up|maintenance|inspection)\b`)
	quoteRe       = regexp.MustCompile(`\b(quote|estimate|new (unit|system|furnace|ac|air conditioner|boiler|heat pump|water heater)|replace(ment)?|install(ation)?|upgrade)\b`)
	scheduleRe    = regexp.MustCompile(`\b(schedule|appointment|book|come out|send (someone|a tech)|tune[- ]?up|maintenance|checkup|inspection)\b`)
	needSomeoneRe = regexp.MustCompile(`\b(need (someone|a tech|a technician)|technician)\b`)
	problemRe     = regexp.MustCompile(`\b(broken|not working|stopped working|won'?t (turn on|start|stop)|leak\w*|noise|noisy|rattl\w*|banging|squeal\w*|frozen|ice on|tripp\w*|short cycl\w*|no hot water|clogged|dripping|smell\w*)\b`)
)

func matches(re *regexp.Regexp) func(intentInput) bool {
	return func(in intentInput) bool { return re.MatchString(in.text) }
}

func both(a, b *regexp.Regexp) func(intentInput) bool {
	return func(in intentInput) bool { return a.MatchString(in.text) && b.MatchString(in.text) }
}

func hasProblem(in intentInput) bool {
	return problemRe.MatchString(in.text) || emergency.NoHeat(in.text) || emergency.NoCooling(in.text) || in.assessment.Emergency
}

// intentTable is ordered by priority; the first matching rule decides the intent.
var intentTable = rules.Table[intentInput, intentResult]{
	{ID: "ops.life_safety", Match: func(in intentInput) bool { return in.assessment.LifeSafety }, Result: intentResult{domain.IntentServiceRequest, 0.95}},
	{ID: "people.hiring", Match: matches(hiringRe), Result: intentResult{domain.IntentHiringInquiry, 0.9}},
	{ID: "people.time_off", Match: matches(timeOffRe), Result: intentResult{domain.IntentTimeOffRequest, 0.9}},
	{ID: "ops.cancel", Match: matches(cancelRe), Result: intentResult{domain.IntentCancelAppointment, 0.9}},
	{ID: "ops.reschedule", Match: matches(rescheduleRe), Result: intentResult{domain.IntentRescheduleAppointment, 0.9}},
	{ID: "core.approval", Match: both(approvalRe, approvalObjRe), Result: intentResult{domain.IntentApprovalRequest, 0.85}},
	{ID: "core.billing", Match: matches(billingRe), Result: intentResult{domain.IntentBillingInquiry, 0.85}},
	{ID: "core.price", Match: both(priceWordRe, priceObjRe), Result: intentResult{domain.IntentPriceInquiry, 0.8}},
	{ID: "revenue.quote", Match: matches(quoteRe), Result: intentResult{domain.IntentQuoteRequest, 0.85}},
	{ID: "ops.problem", Match: hasProblem, Result: intentResult{domain.IntentServiceRequest, 0.85}},
	{ID: "ops.schedule", Match: matches(scheduleRe), Result: intentResult{domain.IntentScheduleAppointment, 0.8}},
	{ID: "revenue.price_only", Match: matches(priceWordRe), Result: intentResult{domain.IntentQuoteRequest, 0.65}},
	{ID: "ops.need_someone", Match: matches(needSomeoneRe), Result: intentResult{domain.IntentServiceRequest, 0.6}},
}

const (
	unknownConfidence = 0.2
	competingPenalty  = 0.1
	minimumConfidence = 0.3
)

// classify returns the winning intent, its confidence and rule id. Every other
// distinct intent that also matched lowers the confidence.
func classify(in intentInput) (domain.Intent, float64, string) {
	matched := intentTable.All(in)
	if len(matched) == 0 {
		return domain.IntentUnknown, unknownConfidence, ""
	}
	winner := matched[0]
	others := map[domain.Intent]bool{}
	for _, r := range matched[1:] {
		if r.Result.intent != winner.Result.intent {
			others[r.Result.intent] = true
		}
	}
	conf := winner.Result.confidence - competingPenalty*float64(len(others))
	if conf < minimumConfidence {
		conf = minimumConfidence
	}
	return winner.Result.intent, math.Round(conf*100) / 100, winner.ID
}
