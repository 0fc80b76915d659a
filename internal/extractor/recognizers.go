package extractor

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/spec-kit/dispatch-engine/internal/domain"
)

// span is a byte range [start, end) claimed by a recognizer.
type span struct{ start, end int }

// claims tracks which parts of the text recognizers have consumed so that no
// two recognizers capture overlapping text.
type claims []span

func (c claims) free(s span) bool {
	for _, taken := range c {
		if s.start < taken.end && taken.start < s.end {
			return false
		}
	}
	return true
}

// recognizer captures one entity field. apply receives the submatch strings
// and reports whether it accepted the match.
type recognizer struct {
	field string
	re    *regexp.Regexp
	// multi keeps collecting non-overlapping matches instead of stopping at the first.
	multi bool
	apply func(text string, m []string, loc []int, e *domain.Entities) bool
}

var (
	emailRe       = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRe       = regexp.MustCompile(`(?:\+?1[\s.\-]?)?\(?\b(\d{3})\)?[\s.\-]?(\d{3})[\s.\-]?(\d{4})\b`)
	addressRe     = regexp.MustCompile(`(?i)\b\d{1,6}\s+(?:[a-z0-9.']+\s+){0,4}?(?:street|st|avenue|ave|road|rd|boulevard|blvd|drive|dr|lane|ln|court|ct|way|place|pl|terrace|ter|circle|cir|parkway|pkwy)\b\.?`)
	moneyRangeRe  = regexp.MustCompile(`(?i)\$\s?(\d[\d,]*(?:\.\d+)?)\s?(k|thousand)?\s?(?:-|to|and)\s?\$?\s?(\d[\d,]*(?:\.\d+)?)\s?(k|thousand)?\b`)
	moneyRe       = regexp.MustCompile(`(?i)\$\s?(\d[\d,]*(?:\.\d{1,2})?)(?:\s?(k|thousand)\b)?|\b(\d[\d,]*(?:\.\d{1,2})?)\s?(k|thousand|dollars|bucks)\b`)
	zipRe         = regexp.MustCompile(`\b(\d{5})(?:-\d{4})?\b`)
	sqftRe        = regexp.MustCompile(`(?i)\b(\d{1,3}(?:,\d{3})+|\d{3,6})\s?(?:sq\.?\s?ft\.?|square\s?(?:feet|foot)|sf)\b`)
	tempRe        = regexp.MustCompile(`(?i)\b(\d{2,3})\s?(?:°\s?f?|degrees?(?:\s?(?:f|fahrenheit)\b)?)`)
	ageRe         = regexp.MustCompile(`(?i)\b(\d{1,2})\s?-?\s?(?:years?|yrs?)\s?-?\s?old\b`)
	ageIsRe       = regexp.MustCompile(`(?i)\b(?:unit|system|furnace|ac|boiler|heater|equipment)\s+is\s+(?:about\s+)?(\d{1,2})\s+(?:years?|yrs?)\b`)
	timelineRe    = regexp.MustCompile(`(?i)\b(?:within|in|over)\s+(?:the\s+)?(?:next\s+)?(\d{1,3}|a|an|one|two|three|four|five|six|couple(?:\s+of)?)\s+(days?|weeks?|months?)\b`)
	timelineRelRe = regexp.MustCompile(`(?i)\b(next|this)\s+(week|month)\b`)
	windowPartRe  = regexp.MustCompile(`(?i)\b(?:(today|tonight|tomorrow|this|(?:next\s+)?(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday))\s+)?(morning|afternoon|evening)\b`)
	windowClockRe = regexp.MustCompile(`(?i)\b(after|before)\s+(\d{1,2})(?::(\d{2}))?\s?(am|pm)\b`)
	windowDayRe   = regexp.MustCompile(`(?i)\b(today|tomorrow|(?:next\s+)?(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday))\b`)
	nameRe        = regexp.MustCompile(`\b(?i:my name is|this is|i am|i'm|name's)\s+([A-Z][a-z'\-]+(?:\s+[A-Z][a-z'\-]+)?)`)
	nameLowerRe   = regexp.MustCompile(`(?i)\bmy name is\s+([a-z'\-]+)(?:\s+([a-z'\-]+))?`)
)

var budgetContextRe = regexp.MustCompile(`(?i)\b(budget|spend|afford|up to|range|financ\w*)\b`)

// nameStopWords are words that follow "this is" or "I'm" without naming
// anyone: fillers, states, feelings and urgency words.
var nameStopWords = map[string]bool{
	"and": true, "i": true, "im": true, "my": true, "the": true, "from": true, "at": true,
	"calling": true, "here": true, "with": true, "but": true, "so": true, "is": true,
	"a": true, "an": true, "not": true, "just": true, "very": true, "really": true, "still": true,
	"freezing": true, "cold": true, "hot": true, "boiling": true, "sweating": true, "dying": true,
	"urgent": true, "serious": true, "important": true, "ridiculous": true, "crazy": true,
	"curious": true, "wondering": true, "looking": true, "interested": true, "trying": true,
	"hoping": true, "having": true, "getting": true, "going": true, "thinking": true, "writing": true,
	"worried": true, "concerned": true, "frustrated": true, "upset": true, "sorry": true, "afraid": true,
	"desperate": true, "stuck": true, "ready": true, "done": true, "sure": true, "glad": true,
	"happy": true, "new": true, "home": true, "back": true, "available": true, "away": true,
	"out": true, "in": true, "on": true, "about": true, "over": true, "regarding": true,
	"emergency": true, "another": true, "following": true, "again": true, "also": true,
}

var numberWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6, "couple": 2, "couple of": 2,
}

// recognizerOrder is the fixed evaluation order. Earlier recognizers claim
// text first; later ones only see what is left.
var recognizerOrder = []recognizer{
	{field: domain.FieldEmail, re: emailRe, apply: func(_ string, m []string, _ []int, e *domain.Entities) bool {
		e.Email = strings.ToLower(m[0])
		return true
	}},
	{field: domain.FieldPhone, re: phoneRe, apply: func(_ string, m []string, _ []int, e *domain.Entities) bool {
		e.Phone = "+1" + m[1] + m[2] + m[3]
		return true
	}},
	{field: domain.FieldAddress, re: addressRe, apply: func(_ string, m []string, _ []int, e *domain.Entities) bool {
		e.Address = strings.TrimSuffix(strings.TrimSpace(m[0]), ".")
		return true
	}},
	{field: domain.FieldBudgetRange, re: moneyRangeRe, apply: applyMoneyRange},
	{field: domain.FieldAmount, re: moneyRe, apply: applyMoney},
	{field: "square_footage", re: sqftRe, apply: func(_ string, m []string, _ []int, e *domain.Entities) bool {
		n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
		if err != nil {
			return false
		}
		e.SquareFootage = &n
		return true
	}},
	{field: domain.FieldZip, re: zipRe, apply: func(_ string, m []string, _ []int, e *domain.Entities) bool {
		e.Zip = m[1]
		return true
	}},
	{field: "indoor_temp_f", re: tempRe, apply: func(_ string, m []string, _ []int, e *domain.Entities) bool {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 20 || n > 130 {
			return false
		}
		e.IndoorTempF = &n
		return true
	}},
	{field: "system_age_years", re: ageRe, apply: applyAge},
	{field: "system_age_years", re: ageIsRe, apply: applyAge},
	{field: domain.FieldTimeline, re: timelineRe, apply: applyTimeline},
	{field: domain.FieldTimeline, re: timelineRelRe, apply: applyRelativeTimeline},
	{field: "preferred_time_windows", re: windowPartRe, multi: true, apply: applyWindow},
	{field: "preferred_time_windows", re: windowClockRe, multi: true, apply: applyClockWindow},
	{field: "preferred_time_windows", re: windowDayRe, multi: true, apply: applyWindow},
	{field: domain.FieldName, re: nameRe, apply: applyCapitalizedName},
	{field: domain.FieldName, re: nameLowerRe, apply: applyLowerName},
}

type windowHit struct {
	pos   int
	value string
}

// recognize runs every recognizer over text and fills e. Time windows are
// returned in the order they appear in the text.
func recognize(text string, e *domain.Entities) {
	var taken claims
	var windows []windowHit
	for _, r := range recognizerOrder {
		if !r.multi && e.Has(r.field) {
			continue
		}
		if r.field == "system_age_years" && e.SystemAgeYears != nil {
			continue
		}
		if r.field == "indoor_temp_f" && e.IndoorTempF != nil {
			continue
		}
		if r.field == "square_footage" && e.SquareFootage != nil {
			continue
		}
		for _, loc := range r.re.FindAllStringSubmatchIndex(text, -1) {
			s := span{loc[0], loc[1]}
			if !taken.free(s) {
				continue
			}
			m := submatches(text, loc)
			if r.multi {
				var w domain.Entities
				if !r.apply(text, m, loc, &w) {
					continue
				}
				taken = append(taken, s)
				for _, v := range w.PreferredTimeWindows {
					windows = append(windows, windowHit{pos: s.start, value: v})
				}
				continue
			}
			if r.apply(text, m, loc, e) {
				taken = append(taken, s)
				break
			}
		}
	}
	sort.SliceStable(windows, func(i, j int) bool { return windows[i].pos < windows[j].pos })
	for _, w := range windows {
		e.PreferredTimeWindows = append(e.PreferredTimeWindows, w.value)
	}
}

func submatches(text string, loc []int) []string {
	out := make([]string, len(loc)/2)
	for i := range out {
		if loc[2*i] >= 0 {
			out[i] = text[loc[2*i]:loc[2*i+1]]
		}
	}
	return out
}

func parseCents(number, scale string) (int64, bool) {
	f, err := strconv.ParseFloat(strings.ReplaceAll(number, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(scale) {
	case "k", "thousand":
		f *= 1000
	}
	return int64(f*100 + 0.5), true
}

func formatDollars(cents int64) string {
	dollars := cents / 100
	s := strconv.FormatInt(dollars, 10)
	var b strings.Builder
	for i, ch := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(ch)
	}
	return "$" + b.String()
}

func applyMoneyRange(_ string, m []string, _ []int, e *domain.Entities) bool {
	lowScale, highScale := m[2], m[4]
	if lowScale == "" {
		lowScale = highScale
	}
	low, ok1 := parseCents(m[1], lowScale)
	high, ok2 := parseCents(m[3], highScale)
	if !ok1 || !ok2 || high < low {
		return false
	}
	e.BudgetRange = formatDollars(low) + "-" + formatDollars(high)
	e.BudgetMaxCents = &high
	return true
}

func applyMoney(text string, m []string, loc []int, e *domain.Entities) bool {
	number, scale := m[1], m[2]
	if number == "" {
		number, scale = m[3], m[4]
		if strings.EqualFold(scale, "dollars") || strings.EqualFold(scale, "bucks") {
			scale = ""
		}
	}
	cents, ok := parseCents(number, scale)
	if !ok {
		return false
	}
	start := loc[0] - 40
	if start < 0 {
		start = 0
	}
	if budgetContextRe.MatchString(text[start:loc[0]]) {
		if e.BudgetRange != "" {
			return false
		}
		e.BudgetRange = formatDollars(cents)
		e.BudgetMaxCents = &cents
		return true
	}
	e.AmountCents = &cents
	return true
}

func applyAge(_ string, m []string, _ []int, e *domain.Entities) bool {
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return false
	}
	e.SystemAgeYears = &n
	return true
}

func applyTimeline(_ string, m []string, _ []int, e *domain.Entities) bool {
	qty, ok := numberWords[strings.ToLower(strings.Join(strings.Fields(m[1]), " "))]
	if !ok {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return false
		}
		qty = n
	}
	unit := strings.TrimSuffix(strings.ToLower(m[2]), "s")
	days := qty
	switch unit {
	case "week":
		days = qty * 7
	case "month":
		days = qty * 30
	}
	e.Timeline = strings.ToLower(strings.Join(strings.Fields(m[0]), " "))
	e.TimelineDays = &days
	return true
}

func applyRelativeTimeline(_ string, m []string, _ []int, e *domain.Entities) bool {
	days := 7
	switch strings.ToLower(m[1]) + " " + strings.ToLower(m[2]) {
	case "next week":
		days = 7
	case "this week":
		days = 5
	case "next month":
		days = 30
	case "this month":
		days = 21
	}
	e.Timeline = strings.ToLower(m[1] + " " + m[2])
	e.TimelineDays = &days
	return true
}

func applyWindow(_ string, m []string, _ []int, e *domain.Entities) bool {
	e.PreferredTimeWindows = append(e.PreferredTimeWindows, strings.ToLower(strings.Join(strings.Fields(m[0]), " ")))
	return true
}

func applyClockWindow(_ string, m []string, _ []int, e *domain.Entities) bool {
	hour, err := strconv.Atoi(m[2])
	if err != nil || hour < 1 || hour > 12 {
		return false
	}
	minute := 0
	if m[3] != "" {
		minute, _ = strconv.Atoi(m[3])
	}
	if strings.EqualFold(m[4], "pm") && hour != 12 {
		hour += 12
	}
	if strings.EqualFold(m[4], "am") && hour == 12 {
		hour = 0
	}
	e.PreferredTimeWindows = append(e.PreferredTimeWindows, fmt.Sprintf("%s %02d:%02d", strings.ToLower(m[1]), hour, minute))
	return true
}

func applyCapitalizedName(_ string, m []string, _ []int, e *domain.Entities) bool {
	words := strings.Fields(m[1])
	if len(words) == 0 || nameStopWords[strings.ToLower(words[0])] {
		return false
	}
	if len(words) > 1 && nameStopWords[strings.ToLower(words[1])] {
		words = words[:1]
	}
	e.Name = strings.Join(words, " ")
	return true
}

func applyLowerName(_ string, m []string, _ []int, e *domain.Entities) bool {
	first := strings.ToLower(m[1])
	if nameStopWords[first] {
		return false
	}
	parts := []string{titleCase(first)}
	if second := strings.ToLower(m[2]); second != "" && !nameStopWords[second] {
		parts = append(parts, titleCase(second))
	}
	e.Name = strings.Join(parts, " ")
	return true
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
