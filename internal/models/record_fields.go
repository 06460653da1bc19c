package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownField is returned for a field name outside the Field* constants.
var ErrUnknownField = errors.New("unknown record field")

// SetField assigns one top-level field by its stored name. Values must have
// the field's Go type.
func (r *Record) SetField(field string, v any) error {
	var ok bool
	switch field {
	case FieldName:
		r.Name, ok = v.(string)
	case FieldStatus:
		r.Status, ok = v.(string)
	case FieldErrorDetails:
		r.ErrorDetails, ok = v.(string)
	case FieldReviewStatus:
		r.ReviewStatus, ok = v.(ReviewStatus)
	case FieldVerificationStatus:
		r.VerificationStatus, ok = v.(VerificationStatus)
	case FieldDefectiveCategories:
		r.DefectiveCategories, ok = v.([]string)
	case FieldDefectiveDescription:
		r.DefectiveDescription, ok = v.(string)
	case FieldImageFiles:
		r.ImageFiles, ok = v.([]string)
	case FieldPageCount:
		r.PageCount, ok = v.(int)
	case FieldWorkflowExecutionID:
		r.WorkflowExecutionID, ok = v.(string)
	case FieldAttributesList:
		r.AttributesList, ok = v.([]Attribute)
	case FieldRecordNotes:
		r.RecordNotes, ok = v.([]RecordNote)
	case FieldHasErrors:
		r.HasErrors, ok = v.(bool)
	case FieldDateLastUpdated:
		r.DateLastUpdated, ok = v.(time.Time)
	case FieldLastUpdatedBy:
		r.LastUpdatedBy, ok = v.(string)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	if !ok {
		return fmt.Errorf("field %s: unexpected value type %T", field, v)
	}
	return nil
}

// Field returns the current value of a top-level field by its stored name.
func (r *Record) Field(field string) (any, error) {
	switch field {
	case FieldName:
		return r.Name, nil
	case FieldStatus:
		return r.Status, nil
	case FieldErrorDetails:
		return r.ErrorDetails, nil
	case FieldReviewStatus:
		return r.ReviewStatus, nil
	case FieldVerificationStatus:
		return r.VerificationStatus, nil
	case FieldDefectiveCategories:
		return r.DefectiveCategories, nil
	case FieldDefectiveDescription:
		return r.DefectiveDescription, nil
	case FieldImageFiles:
		return r.ImageFiles, nil
	case FieldPageCount:
		return r.PageCount, nil
	case FieldWorkflowExecutionID:
		return r.WorkflowExecutionID, nil
	case FieldAttributesList:
		return CloneAttributes(r.AttributesList), nil
	case FieldRecordNotes:
		return r.RecordNotes, nil
	case FieldHasErrors:
		return r.HasErrors, nil
	case FieldDateLastUpdated:
		return r.DateLastUpdated, nil
	case FieldLastUpdatedBy:
		return r.LastUpdatedBy, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
}
