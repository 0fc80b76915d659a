package scheduling

import (
	"fmt"

	"github.com/spec-kit/dispatch-engine/internal/domain"
)

var transitions = map[domain.AppointmentState][]domain.AppointmentState{
	domain.AppointmentRequested:    {domain.AppointmentSlotProposed},
	domain.AppointmentSlotProposed: {domain.AppointmentConfirmed},
	domain.AppointmentConfirmed:    {domain.AppointmentCompleted, domain.AppointmentRescheduled, domain.AppointmentCanceled},
}

// TransitionError reports a move the lifecycle does not allow.
type TransitionError struct {
	From, To domain.AppointmentState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("appointment cannot move from %s to %s", e.From, e.To)
}

// Transition validates one lifecycle step.
func Transition(from, to domain.AppointmentState) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return &TransitionError{From: from, To: to}
}

// NeedsExternalConfirmation reports whether a valid step is owned by the
// booking system rather than this engine. Only requested to slot_proposed is
// decided here.
func NeedsExternalConfirmation(from, to domain.AppointmentState) bool {
	return !(from == domain.AppointmentRequested && to == domain.AppointmentSlotProposed)
}

// Terminal reports whether no further transition exists.
func Terminal(s domain.AppointmentState) bool {
	_, ok := transitions[s]
	return !ok
}
