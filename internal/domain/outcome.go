package domain

import "time"

// RecordMutation asks the record service to upsert fields for the caller's account.
type RecordMutation struct {
	Domain TargetDomain   `json:"domain"`
	Kind   string         `json:"kind"`
	Fields map[string]any `json:"fields"`
}

// NotificationRequest says a notification is warranted and what it contains.
type NotificationRequest struct {
	Channel   string         `json:"channel"`
	Recipient string         `json:"recipient"`
	Template  string         `json:"template"`
	Data      map[string]any `json:"data,omitempty"`
}

// JobRequest is a declarative job handed to the external scheduler.
type JobRequest struct {
	RunAt   time.Time      `json:"run_at"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Outcome is what a domain handler returns: a decision plus the side effects
// the pipeline should apply before committing it.
type Outcome struct {
	Decision      Decision
	Mutations     []RecordMutation
	Notifications []NotificationRequest
	Jobs          []JobRequest
}

// IdentityAnchor is the identity used to find or create an account.
type IdentityAnchor struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Empty reports whether no anchor member is present.
func (a IdentityAnchor) Empty() bool {
	return a.Name == "" && a.Phone == "" && a.Email == ""
}

// Identity returns the command's identity anchor.
func (c Command) Identity() IdentityAnchor {
	return IdentityAnchor{Name: c.Entities.Name, Phone: c.Entities.Phone, Email: c.Entities.Email}
}
