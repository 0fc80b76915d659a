package scheduling

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// window is one parsed preference. A zero date matches any day; minutes are
// local minutes after midnight bounding the visit.
type window struct {
	date     time.Time
	fromMin  int
	toMin    int
	hasDate  bool
	original string
}

var (
	clockWindowRe = regexp.MustCompile(`^(after|before) (\d{2}):(\d{2})$`)
	weekdays      = map[string]time.Weekday{
		"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
		"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
	}
	dayParts = map[string][2]int{
		"morning":   {0, 12 * 60},
		"afternoon": {12 * 60, 17 * 60},
		"evening":   {17 * 60, 21 * 60},
	}
)

// parseWindows turns extracted phrases into windows relative to now. Phrases
// that cannot be read are dropped.
func parseWindows(phrases []string, now time.Time) []window {
	var out []window
	for _, p := range phrases {
		if w, ok := parseWindow(strings.ToLower(strings.TrimSpace(p)), now); ok {
			out = append(out, w)
		}
	}
	return out
}

func parseWindow(p string, now time.Time) (window, bool) {
	w := window{fromMin: 0, toMin: 24 * 60, original: p}
	if m := clockWindowRe.FindStringSubmatch(p); m != nil {
		h, _ := strconv.Atoi(m[2])
		minute, _ := strconv.Atoi(m[3])
		if m[1] == "after" {
			w.fromMin = h*60 + minute
		} else {
			w.toMin = h*60 + minute
		}
		return w, true
	}

	words := strings.Fields(p)
	if len(words) == 0 {
		return w, false
	}
	if part, ok := dayParts[words[len(words)-1]]; ok {
		w.fromMin, w.toMin = part[0], part[1]
		words = words[:len(words)-1]
	}
	if len(words) > 0 && words[0] == "next" {
		words = words[1:]
	}
	switch {
	case len(words) == 0:
	case len(words) == 1 && (words[0] == "today" || words[0] == "this"):
		w.date, w.hasDate = dayOf(now), true
	case len(words) == 1 && words[0] == "tonight":
		w.date, w.hasDate = dayOf(now), true
		w.fromMin, w.toMin = dayParts["evening"][0], dayParts["evening"][1]
	case len(words) == 1 && words[0] == "tomorrow":
		w.date, w.hasDate = dayOf(now).AddDate(0, 0, 1), true
	case len(words) == 1:
		wd, ok := weekdays[words[0]]
		if !ok {
			return w, false
		}
		w.date, w.hasDate = nextWeekday(now, wd), true
	default:
		return w, false
	}
	if !w.hasDate && w.fromMin == 0 && w.toMin == 24*60 {
		return w, false
	}
	return w, true
}

func (w window) contains(slotStart, slotEnd time.Time) bool {
	if w.hasDate && !sameDay(w.date, slotStart) {
		return false
	}
	start := minuteOfDay(slotStart)
	end := start + int(slotEnd.Sub(slotStart)/time.Minute)
	return start >= w.fromMin && end <= w.toMin
}

func anyWindow(ws []window) func(start, end time.Time) bool {
	return func(start, end time.Time) bool {
		for _, w := range ws {
			if w.contains(start, end) {
				return true
			}
		}
		return false
	}
}

func dayOf(ts time.Time) time.Time {
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, ts.Location())
}

// nextWeekday returns the first date strictly after now that falls on wd.
func nextWeekday(now time.Time, wd time.Weekday) time.Time {
	day := dayOf(now).AddDate(0, 0, 1)
	for day.Weekday() != wd {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}

func minuteOfDay(ts time.Time) int {
	return ts.Hour()*60 + ts.Minute()
}
