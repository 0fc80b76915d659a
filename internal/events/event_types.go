package events

import (
	"time"

	"github.com/spec-kit/dispatch-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventDecisionCompleted  EventType = "decision_completed"
	EventDecisionNeedsHuman EventType = "decision_needs_human"
)

// Event represents a domain event emitted by the dispatch pipeline.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	RequestID string      `json:"request_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// DecisionPayload describes a processed command. Notifications are the ones
// the handler decided are warranted; subscribers deliver them.
type DecisionPayload struct {
	Intent        domain.Intent                `json:"intent"`
	Domain        domain.TargetDomain          `json:"domain"`
	Engine        domain.Engine                `json:"engine"`
	Status        domain.DecisionStatus        `json:"status"`
	Reason        string                       `json:"reason,omitempty"`
	RecordIDs     []string                     `json:"record_ids,omitempty"`
	Notifications []domain.NotificationRequest `json:"notifications,omitempty"`
}
