// Package policy answers People-domain requests from the policy topics table.
package policy

import (
	"fmt"
	"time"

	"github.com/spec-kit/dispatch-engine/internal/catalog"
	"github.com/spec-kit/dispatch-engine/internal/domain"
)

// Topic names in the policy table.
const (
	TopicHiring  = "hiring"
	TopicTimeOff = "time_off"
)

// TopicFor maps a People intent to its policy topic.
func TopicFor(intent domain.Intent) (string, bool) {
	switch intent {
	case domain.IntentHiringInquiry:
		return TopicHiring, true
	case domain.IntentTimeOffRequest:
		return TopicTimeOff, true
	}
	return "", false
}

type Engine struct {
	source catalog.Source
}

func New(source catalog.Source) *Engine {
	return &Engine{source: source}
}

// Decide evaluates the topic for cmd. Time-off requests must state how far
// out they are and meet the topic's minimum notice.
func (e *Engine) Decide(cmd domain.Command, now time.Time) domain.Decision {
	d := domain.Decision{Engine: domain.EnginePolicy, DecidedAt: now}

	name, ok := TopicFor(cmd.Intent)
	if !ok {
		d.Status = domain.StatusUnsupported
		d.Reason = fmt.Sprintf("no people policy handles %s", cmd.Intent)
		return d
	}
	topic, ok := e.source.Current().Policy.Topics[name]
	if !ok {
		d.Status = domain.StatusNeedsHuman
		d.Reason = fmt.Sprintf("no policy configured for %s", name)
		return d
	}

	pd := &domain.PolicyDecision{
		Topic:        name,
		RouteTo:      topic.RouteTo,
		Assignees:    append([]string(nil), topic.Assignees...),
		Requirements: append([]string(nil), topic.Requirements...),
		Response:     topic.Response,
	}
	d.Payload = pd

	if name == TopicTimeOff && topic.MinNoticeDays > 0 {
		notice := cmd.Entities.TimelineDays
		switch {
		case notice == nil:
			d.Status = domain.StatusNeedsHuman
			d.Reason = "time-off request does not say when"
			d.MissingFields = []string{domain.FieldTimeline}
			pd.Response = ""
			return d
		case *notice < topic.MinNoticeDays:
			d.Status = domain.StatusNeedsHuman
			d.Reason = fmt.Sprintf("time off requested with %d days notice; policy requires %d", *notice, topic.MinNoticeDays)
			pd.Response = ""
			return d
		}
	}
	d.Status = domain.StatusCompleted
	return d
}
