package domain

import "time"

// AuditEntryKind distinguishes decision entries from appended corrections.
type AuditEntryKind string

const (
	AuditKindDecision   AuditEntryKind = "decision"
	AuditKindCorrection AuditEntryKind = "correction"
)

// AuditEntry is an append-only trail record. Entries are never updated; a
// correction is a new entry that points at the one it corrects.
type AuditEntry struct {
	ID               string         `json:"id"`
	Kind             AuditEntryKind `json:"kind"`
	RequestID        string         `json:"request_id"`
	IdempotencyKey   string         `json:"idempotency_key,omitempty"`
	Intent           Intent         `json:"intent"`
	TargetDomain     TargetDomain   `json:"target_domain"`
	CommandSnapshot  map[string]any `json:"command_snapshot,omitempty"`
	DecisionSnapshot *Decision      `json:"decision_snapshot,omitempty"`
	Status           DecisionStatus `json:"status"`
	RecordIDs        []string       `json:"record_ids,omitempty"`
	CorrectsEntryID  string         `json:"corrects_entry_id,omitempty"`
	Note             string         `json:"note,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}
