package extractor

import (
	"regexp"
	"strings"

	"github.com/spec-kit/dispatch-engine/internal/domain"
	"github.com/spec-kit/dispatch-engine/internal/emergency"
)

// Keyword classifiers read the lowercased text. Unlike recognizers they do
// not claim spans; several of them may look at the same words.

type keywordRule struct {
	re    *regexp.Regexp
	value string
}

var propertyRules = []keywordRule{
	{regexp.MustCompile(`\brestaurants?\b`), "restaurant"},
	{regexp.MustCompile(`\bwarehouses?\b`), "warehouse"},
	{regexp.MustCompile(`\b(retail store|storefront|our store|the store|my shop|our shop)\b`), "retail_store"},
	{regexp.MustCompile(`\b(office|offices|office building)\b`), "office"},
	{regexp.MustCompile(`\b(commercial|business|building we manage|properties we manage|tenant)\b`), "commercial"},
	{regexp.MustCompile(`\b(house|home|condo|apartment|townhouse|townhome|basement|bedroom)\b`), "residential"},
}

var (
	installRe     = regexp.MustCompile(`\b(install\w*|new (unit|system|furnace|ac|air conditioner|boiler|heat pump|water heater)|replace\w*|upgrade)\b`)
	maintenanceRe = regexp.MustCompile(`\b(tune[- ]?up|maintenance|check[- ]?up|inspection|annual service|clean(ing)? (the|my) (ducts|system|unit))\b`)
	diagnosticRe  = regexp.MustCompile(`\b(diagnos\w*|take a look|look at it|figure out what)\b`)
	repairRe      = regexp.MustCompile(`\b(repair\w*|fix\w*)\b`)
	clauseSplitRe = regexp.MustCompile(`[.!?;,]+|\s+but\s+|\s+and\s+`)
)

var approvalCategoryRules = []keywordRule{
	{regexp.MustCompile(`\brefund\w*\b`), "refund"},
	{regexp.MustCompile(`\bdiscount\w*\b`), "discount"},
	{regexp.MustCompile(`\b(purchase order|po)\b`), "purchase_order"},
	{regexp.MustCompile(`\b(quote|estimate)\b`), "quote"},
}

func firstKeyword(rules []keywordRule, lower string) string {
	for _, r := range rules {
		if r.re.MatchString(lower) {
			return r.value
		}
	}
	return ""
}

func propertyType(lower string) string {
	return firstKeyword(propertyRules, lower)
}

func approvalCategory(lower string) string {
	return firstKeyword(approvalCategoryRules, lower)
}

// serviceType picks installation, maintenance, diagnostic or repair. A repair
// that qualified as an emergency becomes emergency_repair.
func serviceType(lower string, a emergency.Assessment) string {
	switch {
	case installRe.MatchString(lower):
		return "installation"
	case maintenanceRe.MatchString(lower):
		return "maintenance"
	case diagnosticRe.MatchString(lower) && !a.Emergency:
		return "diagnostic"
	}
	repair := repairRe.MatchString(lower) || problemRe.MatchString(lower) ||
		emergency.NoHeat(lower) || emergency.NoCooling(lower)
	if a.Emergency {
		return "emergency_repair"
	}
	if repair {
		return "repair"
	}
	return ""
}

// problemDescription keeps the clauses of text that describe a fault, in order.
func problemDescription(text string, thresholds emergency.Thresholds) string {
	var kept []string
	for _, clause := range clauseSplitRe.Split(text, -1) {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		lower := strings.ToLower(clause)
		if problemRe.MatchString(lower) || emergency.NoHeat(lower) || emergency.NoCooling(lower) ||
			emergency.Assess(emergency.Input{Text: lower, Thresholds: thresholds}).LifeSafety {
			kept = append(kept, clause)
		}
	}
	return strings.Join(kept, "; ")
}

var (
	lowUrgencyRe    = regexp.MustCompile(`\b(no rush|not urgent|not (really )?an? emergency|no emergency|not today|not tonight|isn'?t urgent|no hurry|not in a hurry|whenever|next month|just curious|just wondering|sometime|eventually|planning ahead|down the road)\b`)
	highUrgencyRe   = regexp.MustCompile(`\b(emergency|asap|as soon as possible|right now|right away|immediately|urgent\w*|today|tonight)\b`)
	mediumUrgencyRe = regexp.MustCompile(`\b(this week|tomorrow|soon|next few days|couple (of )?days)\b`)
)

// urgency applies the keyword table. An emergency assessment outranks every
// phrase, and low-urgency phrases are checked before high ones so "not
// urgent" never reads as urgent.
func urgency(lower string, a emergency.Assessment) domain.UrgencyLevel {
	switch {
	case a.Emergency:
		return domain.UrgencyEmergency
	case lowUrgencyRe.MatchString(lower):
		return domain.UrgencyLow
	case highUrgencyRe.MatchString(lower):
		return domain.UrgencyHigh
	case mediumUrgencyRe.MatchString(lower):
		return domain.UrgencyMedium
	}
	return domain.UrgencyUnknown
}
