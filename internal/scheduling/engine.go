// Package scheduling proposes appointment slots and assigns a technician for
// Operations requests. Everything it needs comes from the rule tables and the
// request; it never looks up live calendars itself.
package scheduling

import (
	"fmt"
	"time"

	"github.com/spec-kit/dispatch-engine/internal/catalog"
	"github.com/spec-kit/dispatch-engine/internal/domain"
	"github.com/spec-kit/dispatch-engine/pkg/util/errorutil"
)

// Urgency classes driving the earliest allowed start.
const (
	ClassEmergency = "emergency"
	ClassUrgent    = "urgent"
	ClassRoutine   = "routine"
)

// Request is the input to one slot search.
type Request struct {
	Now         time.Time
	ServiceType string
	Urgency     domain.UrgencyLevel
	Emergency   bool
	Zip         string
	// Windows are caller phrases such as "tomorrow morning" or "after 15:00".
	Windows        []string
	PreferredStart *time.Time
	// Busy are existing bookings; each one is padded by the buffer.
	Busy []domain.TimeSlot
}

// Engine runs slot searches against the current tables.
type Engine struct {
	source catalog.Source
}

// New creates a scheduling engine.
func New(source catalog.Source) *Engine {
	return &Engine{source: source}
}

// Class maps an urgency to its scheduling class.
func Class(urgency domain.UrgencyLevel, emergency bool) string {
	switch {
	case emergency || urgency == domain.UrgencyEmergency:
		return ClassEmergency
	case urgency == domain.UrgencyHigh:
		return ClassUrgent
	}
	return ClassRoutine
}

// searchRange is the half-open interval a slot must start in.
type searchRange struct {
	floor time.Time
	until time.Time
}

// Floor returns the earliest allowed start and the end of the search for
// a request made at now. Emergencies search a single business day: today
// before the cutoff, otherwise the next business day.
func Floor(t *catalog.Tables, class string, now time.Time) (time.Time, time.Time) {
	r := floorRange(t, class, now)
	return r.floor, r.until
}

func floorRange(t *catalog.Tables, class string, now time.Time) searchRange {
	loc := t.Location()
	now = now.In(loc)
	horizon := dayOf(now).AddDate(0, 0, 7*max(t.Scheduling.HorizonWeeks, 1)+1)

	switch class {
	case ClassEmergency:
		day := dayOf(now)
		floor := now
		if !t.IsBusinessDay(now) || !now.Before(t.EmergencyCutoff(now)) {
			day = t.NextBusinessDay(now)
			floor = day
		}
		return searchRange{floor: floor, until: day.AddDate(0, 0, 1)}
	case ClassUrgent:
		return searchRange{floor: t.AddBusinessDays(now, t.Scheduling.UrgentFloorBusinessDays), until: horizon}
	default:
		return searchRange{floor: t.AddBusinessDays(now, t.Scheduling.RoutineFloorBusinessDays), until: horizon}
	}
}

// ServiceDuration resolves the visit length, falling back to the default
// service type. A missing default duration is a table bug.
func ServiceDuration(t *catalog.Tables, serviceType string) (string, time.Duration, error) {
	if serviceType != "" {
		if d, ok := t.ServiceDuration(serviceType); ok {
			return serviceType, d, nil
		}
	}
	fallback := t.Scheduling.DefaultServiceType
	if d, ok := t.ServiceDuration(fallback); ok {
		return fallback, d, nil
	}
	return "", 0, errorutil.NewConfigInvariant("no duration for default service type "+fallback, nil)
}

// Schedule runs the slot search. The only error it returns is a table
// invariant violation; business outcomes are carried in the decision.
func (e *Engine) Schedule(req Request) (domain.Decision, error) {
	t := e.source.Current()
	now := req.Now.In(t.Location())

	serviceType, duration, err := ServiceDuration(t, req.ServiceType)
	if err != nil {
		return domain.Decision{}, err
	}
	class := Class(req.Urgency, req.Emergency)
	rng := floorRange(t, class, now)

	sd := &domain.SchedulingDecision{
		State:         domain.AppointmentRequested,
		ServiceType:   serviceType,
		Duration:      duration,
		Urgency:       class,
		EarliestStart: rng.floor,
		Emergency:     class == ClassEmergency,
	}
	decision := domain.Decision{Engine: domain.EngineScheduling, DecidedAt: now, Payload: sd}

	tech, ok := Assign(t, req.Zip)
	if !ok {
		decision.Status = domain.StatusNeedsHuman
		decision.Reason = "no technician available"
		decision.MissingCapabilities = []string{"technician"}
		sd.ContactMessage = contactMessage(t, "No technician is available for this area.")
		return decision, nil
	}
	sd.Assignment = &tech

	s := searcher{tables: t, duration: duration, busy: padded(req.Busy, t.Buffer(), tech.TechnicianID), rng: rng}

	if req.PreferredStart != nil {
		slot := domain.TimeSlot{Start: req.PreferredStart.In(t.Location()), TechnicianID: tech.TechnicianID}
		slot.End = slot.Start.Add(duration)
		reason := s.reject(slot)
		if reason == "" {
			sd.Slots = []domain.TimeSlot{slot}
			sd.PreSelected = true
			sd.SingleOption = true
			sd.State = domain.AppointmentSlotProposed
			decision.Status = domain.StatusCompleted
			return decision, nil
		}
		sd.Note = "requested time not used: " + reason
	}

	var first, second domain.TimeSlot
	var found bool
	if windows := parseWindows(req.Windows, now); len(windows) > 0 {
		match := anyWindow(windows)
		if first, found = s.next(rng.floor, match); found {
			second, ok = s.next(first.End.Add(t.Buffer()), match)
			if !ok {
				second, ok = s.next(first.End.Add(t.Buffer()), nil)
			}
		} else {
			sd.WindowsIgnored = true
		}
	}
	if !found {
		if first, found = s.next(rng.floor, nil); found {
			second, ok = s.next(first.End.Add(t.Buffer()), nil)
		}
	}
	if !found {
		decision.Status = domain.StatusNeedsHuman
		decision.Reason = "no slot within search horizon"
		if class == ClassEmergency {
			sd.ContactMessage = contactMessage(t, fmt.Sprintf("No emergency opening on %s.", dayOf(rng.floor).Format("Mon Jan 2")))
		} else {
			sd.ContactMessage = contactMessage(t, fmt.Sprintf("No opening in the next %d weeks.", max(t.Scheduling.HorizonWeeks, 1)))
		}
		return decision, nil
	}

	first.TechnicianID = tech.TechnicianID
	sd.Slots = []domain.TimeSlot{first}
	if ok {
		second.TechnicianID = tech.TechnicianID
		sd.Slots = append(sd.Slots, second)
	} else {
		sd.SingleOption = true
	}
	sd.State = domain.AppointmentSlotProposed
	decision.Status = domain.StatusCompleted
	return decision, nil
}

func contactMessage(t *catalog.Tables, lead string) string {
	if t.Roster.Dispatcher.Recipient == "" {
		return lead + " A dispatcher will follow up."
	}
	return fmt.Sprintf("%s Please contact dispatch at %s.", lead, t.Roster.Dispatcher.Recipient)
}

// padded widens each booking that concerns tech by buffer on both sides.
func padded(busy []domain.TimeSlot, buffer time.Duration, tech string) []domain.TimeSlot {
	out := make([]domain.TimeSlot, 0, len(busy))
	for _, b := range busy {
		if b.TechnicianID != "" && b.TechnicianID != tech {
			continue
		}
		out = append(out, domain.TimeSlot{Start: b.Start.Add(-buffer), End: b.End.Add(buffer), TechnicianID: b.TechnicianID})
	}
	return out
}

type searcher struct {
	tables   *catalog.Tables
	duration time.Duration
	busy     []domain.TimeSlot
	rng      searchRange
}

// next returns the first free slot starting at or after from, aligned to the
// slot step from opening time. match, when set, filters candidates.
func (s searcher) next(from time.Time, match func(start, end time.Time) bool) (domain.TimeSlot, bool) {
	t := s.tables
	if from.Before(s.rng.floor) {
		from = s.rng.floor
	}
	step := t.SlotStep()
	for day := dayOf(from.In(t.Location())); day.Before(s.rng.until); day = day.AddDate(0, 0, 1) {
		open, close, ok := t.BusinessHours(day)
		if !ok {
			continue
		}
		start := open
		for start.Before(from) {
			start = start.Add(step)
		}
		for ; !start.Add(s.duration).After(close); start = start.Add(step) {
			slot := domain.TimeSlot{Start: start, End: start.Add(s.duration)}
			if s.conflicts(slot) {
				continue
			}
			if match != nil && !match(slot.Start, slot.End) {
				continue
			}
			return slot, true
		}
	}
	return domain.TimeSlot{}, false
}

func (s searcher) conflicts(slot domain.TimeSlot) bool {
	for _, b := range s.busy {
		if slot.Overlaps(b) {
			return true
		}
	}
	return false
}

// reject explains why a caller-chosen slot cannot be used, or returns "".
func (s searcher) reject(slot domain.TimeSlot) string {
	t := s.tables
	open, close, ok := t.BusinessHours(slot.Start)
	switch {
	case !t.IsOperatingDay(slot.Start):
		return "not an operating day"
	case !ok:
		return "not a business day"
	case slot.Start.Before(open) || slot.End.After(close):
		return "outside business hours"
	case slot.Start.Before(s.rng.floor):
		return "earlier than the allowed start " + s.rng.floor.Format(time.RFC3339)
	case !slot.Start.Before(s.rng.until):
		return "later than the search allows"
	case s.conflicts(slot):
		return "conflicts with an existing booking"
	}
	return ""
}
