package models

import "time"

// Audited actions.
const (
	ActionUpdateRecord      = "update_record"
	ActionResetRecord       = "reset_record"
	ActionUpdateRecordNotes = "update_record_notes"
	ActionDeleteRecord      = "delete_record"
	ActionUpdateProject     = "update_project"
	ActionCleanCollection   = "clean_collection"
	ActionCreateRecord      = "create_record"
)

// AuditEntry records one mutation for forensic reconstruction of edit history.
type AuditEntry struct {
	ID                       string         `json:"_id" firestore:"-" bson:"_id"`
	Action                   string         `json:"action" firestore:"action" bson:"action"`
	User                     string         `json:"user" firestore:"user" bson:"user"`
	TargetIDs                []string       `json:"target_ids" firestore:"target_ids" bson:"target_ids"`
	Delta                    map[string]any `json:"delta,omitempty" firestore:"delta,omitempty" bson:"delta,omitempty"`
	PreviousState            map[string]any `json:"previous_state,omitempty" firestore:"previous_state,omitempty" bson:"previous_state,omitempty"`
	PreviousStateUnavailable bool           `json:"previous_state_unavailable,omitempty" firestore:"previous_state_unavailable,omitempty" bson:"previous_state_unavailable,omitempty"`
	Notes                    string         `json:"notes,omitempty" firestore:"notes,omitempty" bson:"notes,omitempty"`
	Timestamp                time.Time      `json:"timestamp" firestore:"timestamp" bson:"timestamp"`
}
