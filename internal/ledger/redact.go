package ledger

import (
	"regexp"
	"sort"
	"strings"

	"github.com/spec-kit/dispatch-engine/internal/domain"
)

const masked = "***"

var (
	phoneSpanRe   = regexp.MustCompile(`\+?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}\b`)
	emailSpanRe   = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	addressSpanRe = regexp.MustCompile(`(?i)\b\d{1,6}\s+(?:[a-z0-9.']+\s+){0,4}?(?:street|st|avenue|ave|road|rd|boulevard|blvd|drive|dr|lane|ln|court|ct|way|place|pl|terrace|ter|circle|cir|parkway|pkwy)\b\.?`)
	nameSpanRe    = regexp.MustCompile(`\b(?i:call|ask for|this is|my name is|i am|i'm|name's|contact)\s+([A-Z][a-z'\-]+(?:\s+[A-Z][a-z'\-]+)?)`)
	zipSpanRe     = regexp.MustCompile(`\b\d{5}(?:-\d{4})?\b`)
)

// Snapshot is the audit copy of a command with personal data masked.
// Raw text and street address are dropped, phones keep their last four
// digits, emails keep their domain and names shrink to initials. The problem
// description is kept with identity and location spans masked.
func Snapshot(cmd domain.Command) map[string]any {
	e := cmd.Entities
	entities := map[string]any{
		"urgency_level": e.UrgencyLevel,
	}
	put := func(k, v string) {
		if v != "" {
			entities[k] = v
		}
	}
	put("phone", MaskPhone(e.Phone))
	put("email", MaskEmail(e.Email))
	put("name", Initials(e.Name))
	if e.Address != "" {
		entities["address"] = masked
	}
	put("zip", e.Zip)
	put("problem_description", ScrubText(e.ProblemDescription, e))
	put("service_type", e.ServiceType)
	put("emergency_category", e.EmergencyCategory)
	put("property_type", e.PropertyType)
	put("timeline", e.Timeline)
	put("budget_range", e.BudgetRange)
	put("approval_category", e.ApprovalCategory)
	if e.AmountCents != nil {
		entities["amount_cents"] = *e.AmountCents
	}
	if e.IndoorTempF != nil {
		entities["indoor_temp_f"] = *e.IndoorTempF
	}
	if len(e.PreferredTimeWindows) > 0 {
		entities["preferred_time_windows"] = append([]string(nil), e.PreferredTimeWindows...)
	}

	snap := map[string]any{
		"request_id":     cmd.RequestID,
		"channel":        cmd.Channel,
		"intent":         cmd.Intent,
		"intent_rule_id": cmd.IntentRuleID,
		"confidence":     cmd.Confidence,
		"target_domain":  cmd.TargetDomain,
		"requires_human": cmd.RequiresHuman,
		"created_at":     cmd.CreatedAt,
		"raw_text_chars": len([]rune(cmd.RawText)),
		"entities":       entities,
	}
	if len(cmd.MissingFields) > 0 {
		snap["missing_fields"] = cmd.MissingFields
	}
	if len(cmd.MissingCapabilities) > 0 {
		snap["missing_capabilities"] = cmd.MissingCapabilities
	}
	if cmd.HumanReason != "" {
		snap["human_reason"] = cmd.HumanReason
	}
	return snap
}

// ScrubText masks the entity values found in text, then any remaining span
// shaped like a phone, email, street address, zip or introduced name.
func ScrubText(text string, e domain.Entities) string {
	if text == "" {
		return ""
	}
	literals := []string{e.Address, e.Phone, e.Email, e.Name, e.Zip}
	sort.Slice(literals, func(i, j int) bool { return len(literals[i]) > len(literals[j]) })
	for _, lit := range literals {
		if lit = strings.TrimSpace(lit); lit != "" {
			text = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(lit)).ReplaceAllString(text, masked)
		}
	}
	for _, re := range []*regexp.Regexp{emailSpanRe, phoneSpanRe, addressSpanRe, zipSpanRe} {
		text = re.ReplaceAllString(text, masked)
	}
	var b strings.Builder
	last := 0
	for _, m := range nameSpanRe.FindAllStringSubmatchIndex(text, -1) {
		b.WriteString(text[last:m[2]])
		b.WriteString(masked)
		last = m[3]
	}
	b.WriteString(text[last:])
	return b.String()
}

func MaskPhone(phone string) string {
	d := digits(phone)
	if d == "" {
		return ""
	}
	if len(d) <= 4 {
		return masked
	}
	return masked + d[len(d)-4:]
}

func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		if email == "" {
			return ""
		}
		return masked
	}
	return masked + email[at:]
}

func Initials(name string) string {
	var parts []string
	for _, f := range strings.Fields(name) {
		r := []rune(f)
		parts = append(parts, strings.ToUpper(string(r[0]))+".")
	}
	return strings.Join(parts, " ")
}
