package models

import "time"

// Record processing states.
const (
	StatusProcessing = "processing"
	StatusDigitized  = "digitized"
	StatusError      = "error"
)

// ReviewStatus is the reviewer-facing state of a record.
type ReviewStatus string

const (
	ReviewUnreviewed ReviewStatus = "unreviewed"
	ReviewIncomplete ReviewStatus = "incomplete"
	ReviewReviewed   ReviewStatus = "reviewed"
	ReviewDefective  ReviewStatus = "defective"
)

// Valid reports whether s is a known review status.
func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewUnreviewed, ReviewIncomplete, ReviewReviewed, ReviewDefective:
		return true
	}
	return false
}

// VerificationStatus runs orthogonally to ReviewStatus. Empty means none.
type VerificationStatus string

const (
	VerificationNone     VerificationStatus = ""
	VerificationRequired VerificationStatus = "required"
	VerificationVerified VerificationStatus = "verified"
)

// Valid reports whether s is a known verification status.
func (s VerificationStatus) Valid() bool {
	switch s {
	case VerificationNone, VerificationRequired, VerificationVerified:
		return true
	}
	return false
}

// Top-level record field names. These are the only keys partial updates touch.
const (
	FieldName                 = "name"
	FieldStatus               = "status"
	FieldErrorDetails         = "error_details"
	FieldReviewStatus         = "review_status"
	FieldVerificationStatus   = "verification_status"
	FieldDefectiveCategories  = "defective_categories"
	FieldDefectiveDescription = "defective_description"
	FieldImageFiles           = "image_files"
	FieldPageCount            = "page_count"
	FieldWorkflowExecutionID  = "workflow_execution_id"
	FieldAttributesList       = "attributesList"
	FieldRecordNotes          = "record_notes"
	FieldHasErrors            = "has_errors"
	FieldDateLastUpdated      = "dateLastUpdated"
	FieldLastUpdatedBy        = "last_updated_by"
)

// Record is one uploaded document and its extracted attributes.
type Record struct {
	ID                   string             `json:"_id" firestore:"-" bson:"_id"`
	Name                 string             `json:"name" firestore:"name" bson:"name"`
	Filename             string             `json:"filename" firestore:"filename" bson:"filename"`
	FileHash             string             `json:"file_hash,omitempty" firestore:"file_hash,omitempty" bson:"file_hash,omitempty"`
	RecordGroupID        string             `json:"record_group_id" firestore:"record_group_id" bson:"record_group_id"`
	ProjectID            string             `json:"project_id,omitempty" firestore:"project_id,omitempty" bson:"project_id,omitempty"`
	Status               string             `json:"status" firestore:"status" bson:"status"`
	ErrorDetails         string             `json:"error_details,omitempty" firestore:"error_details,omitempty" bson:"error_details,omitempty"`
	ReviewStatus         ReviewStatus       `json:"review_status" firestore:"review_status" bson:"review_status"`
	VerificationStatus   VerificationStatus `json:"verification_status,omitempty" firestore:"verification_status" bson:"verification_status"`
	DefectiveCategories  []string           `json:"defective_categories,omitempty" firestore:"defective_categories,omitempty" bson:"defective_categories,omitempty"`
	DefectiveDescription string             `json:"defective_description,omitempty" firestore:"defective_description,omitempty" bson:"defective_description,omitempty"`
	ImageFiles           []string           `json:"image_files" firestore:"image_files" bson:"image_files"`
	PageCount            int                `json:"page_count,omitempty" firestore:"page_count,omitempty" bson:"page_count,omitempty"`
	WorkflowExecutionID  string             `json:"workflow_execution_id,omitempty" firestore:"workflow_execution_id,omitempty" bson:"workflow_execution_id,omitempty"`
	ImageURLs            []string           `json:"img_urls,omitempty" firestore:"-" bson:"-"`
	AttributesList       []Attribute        `json:"attributesList" firestore:"attributesList" bson:"attributesList"`
	RecordNotes          []RecordNote       `json:"record_notes,omitempty" firestore:"record_notes,omitempty" bson:"record_notes,omitempty"`
	HasErrors            bool               `json:"has_errors" firestore:"has_errors" bson:"has_errors"`
	Uploader             string             `json:"uploader,omitempty" firestore:"uploader,omitempty" bson:"uploader,omitempty"`
	DateCreated          time.Time          `json:"dateCreated" firestore:"dateCreated" bson:"dateCreated"`
	DateLastUpdated      time.Time          `json:"dateLastUpdated,omitempty" firestore:"dateLastUpdated,omitempty" bson:"dateLastUpdated,omitempty"`
	LastUpdatedBy        string             `json:"last_updated_by,omitempty" firestore:"last_updated_by,omitempty" bson:"last_updated_by,omitempty"`
}

// RecordNote is a free-text reviewer comment attached to a record.
type RecordNote struct {
	Text      string    `json:"text" firestore:"text" bson:"text"`
	User      string    `json:"user" firestore:"user" bson:"user"`
	Timestamp time.Time `json:"timestamp" firestore:"timestamp" bson:"timestamp"`
	Resolved  bool      `json:"resolved" firestore:"resolved" bson:"resolved"`
}

// DeletedRecord is a record moved out of the live collection for recovery.
type DeletedRecord struct {
	Record      `bson:",inline"`
	DeletedBy   string    `json:"deleted_by" firestore:"deleted_by" bson:"deleted_by"`
	DateDeleted time.Time `json:"date_deleted" firestore:"date_deleted" bson:"date_deleted"`
}
