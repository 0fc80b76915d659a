package domain

import "time"

// TimeSlot is a visit window assigned to one technician.
type TimeSlot struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	TechnicianID string    `json:"technician_id,omitempty"`
}

// Overlaps reports whether two windows share any instant.
func (s TimeSlot) Overlaps(o TimeSlot) bool {
	return s.Start.Before(o.End) && o.Start.Before(s.End)
}

// Duration returns End - Start.
func (s TimeSlot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}
