package store

import (
	"fmt"
	"time"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
)

// The Firestore client has no per-type codec, so attribute lists are written
// and read through these mirrors to keep cleaning_error as false or a message.

type firestoreAttribute struct {
	models.Attribute
	CleaningError any                  `firestore:"cleaning_error"`
	Subattributes []firestoreAttribute `firestore:"subattributes"`
}

type firestoreRecord struct {
	models.Record
	AttributesList []firestoreAttribute `firestore:"attributesList"`
}

type firestoreDeletedRecord struct {
	models.Record
	AttributesList []firestoreAttribute `firestore:"attributesList"`
	DeletedBy      string               `firestore:"deleted_by"`
	DateDeleted    time.Time            `firestore:"date_deleted"`
}

func toFirestoreAttributes(attrs []models.Attribute) []firestoreAttribute {
	if attrs == nil {
		return nil
	}
	out := make([]firestoreAttribute, len(attrs))
	for i, a := range attrs {
		subs := toFirestoreAttributes(a.Subattributes)
		a.Subattributes = nil
		out[i] = firestoreAttribute{Attribute: a, CleaningError: a.CleaningError.Encoded(), Subattributes: subs}
	}
	return out
}

func fromFirestoreAttributes(docs []firestoreAttribute) ([]models.Attribute, error) {
	if docs == nil {
		return nil, nil
	}
	out := make([]models.Attribute, len(docs))
	for i, d := range docs {
		a := d.Attribute
		ce, err := models.ParseCleaningError(d.CleaningError)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", a.Key, err)
		}
		a.CleaningError = ce
		if a.Subattributes, err = fromFirestoreAttributes(d.Subattributes); err != nil {
			return nil, fmt.Errorf("attribute %q: %w", a.Key, err)
		}
		out[i] = a
	}
	return out, nil
}

func newFirestoreRecord(rec *models.Record) firestoreRecord {
	return firestoreRecord{Record: *rec, AttributesList: toFirestoreAttributes(rec.AttributesList)}
}

func (d firestoreRecord) record(id string) (models.Record, error) {
	rec := d.Record
	attrs, err := fromFirestoreAttributes(d.AttributesList)
	if err != nil {
		return rec, fmt.Errorf("failed to decode record %s: %w", id, err)
	}
	rec.AttributesList = attrs
	rec.ID = id
	return rec, nil
}

// encodeFields converts attribute lists in a field map to their stored form.
// The input map is not modified.
func encodeFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if attrs, ok := v.([]models.Attribute); ok {
			out[k] = toFirestoreAttributes(attrs)
			continue
		}
		out[k] = v
	}
	return out
}
