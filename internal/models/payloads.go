package models

import "encoding/json"

// These structs define the JSON payloads exchanged between the upload
// workflow, the worker Cloud Functions and the record API.

// WorkflowArgument is the argument of a digitization workflow execution.
type WorkflowArgument struct {
	RecordID      string `json:"recordId"`
	RecordGroupID string `json:"recordGroupId"`
	PageCount     int    `json:"pageCount"`
}

// DigitizeRequest is the input for the document-digitizer function.
type DigitizeRequest struct {
	RecordID    string `json:"recordId"`
	ExecutionID string `json:"executionId"`
}

// DigitizeResponse is the output of the document-digitizer function.
type DigitizeResponse struct {
	Status         string `json:"status"`
	AttributeCount int    `json:"attributeCount"`
	CleanedCount   int    `json:"cleanedCount"`
	FailedCount    int    `json:"failedCount"`
}

// UpdateType selects which part of a record an update touches.
type UpdateType string

const (
	UpdateAttributes         UpdateType = "attribute"
	UpdateReviewStatus       UpdateType = "review_status"
	UpdateVerificationStatus UpdateType = "verification_status"
	UpdateName               UpdateType = "name"
	UpdateRecordNotes        UpdateType = "record_notes"

	// UpdateDigitization is written by the extraction pipeline.
	UpdateDigitization UpdateType = "record"
)

// RecordUpdate carries the fields of a partial record update. Nil fields
// are left untouched.
type RecordUpdate struct {
	Name                 *string             `json:"name,omitempty"`
	AttributesList       []Attribute         `json:"attributesList,omitempty"`
	ReviewStatus         *ReviewStatus       `json:"review_status,omitempty"`
	VerificationStatus   *VerificationStatus `json:"verification_status,omitempty"`
	DefectiveCategories  []string            `json:"defective_categories,omitempty"`
	DefectiveDescription *string             `json:"defective_description,omitempty"`
	RecordNotes          []RecordNote        `json:"record_notes,omitempty"`
	Status               *string             `json:"status,omitempty"`
	ErrorDetails         *string             `json:"error_details,omitempty"`
}

// ProjectUpdate carries the editable fields of a project.
type ProjectUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	State       *string `json:"state,omitempty"`
}

// Record API actions.
const (
	APIFetchRecord        = "fetch_record"
	APILockRecord         = "lock_record"
	APIReleaseRecord      = "release_record"
	APIUpdateRecord       = "update_record"
	APIUpdateReviewStatus = "update_review_status"
	APIUpdateRecordNotes  = "update_record_notes"
	APIDeleteRecord       = "delete_record"
	APICleanCollection    = "clean_collection"
	APIUpdateProject      = "update_project"
)

// RecordAPIRequest is the envelope accepted by the record-api function.
type RecordAPIRequest struct {
	Action       string          `json:"action"`
	User         string          `json:"user"`
	RecordID     string          `json:"recordId,omitempty"`
	ProjectID    string          `json:"projectId,omitempty"`
	Type         UpdateType      `json:"type,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	FieldToClean *FieldRef       `json:"fieldToClean,omitempty"`
	Scope        string          `json:"scope,omitempty"`
	ScopeID      string          `json:"scopeId,omitempty"`
}

// RecordAPIResponse wraps every record-api result.
type RecordAPIResponse struct {
	Status string `json:"status"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}
