package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// SubattributeSeparator joins a parent key and a sub-attribute key into the
// composite key used for schema lookups ("parent::sub").
const SubattributeSeparator = "::"

// Vertex is one corner of an attribute's bounding box, normalized to the page.
type Vertex struct {
	X float64 `json:"x" firestore:"x" bson:"x"`
	Y float64 `json:"y" firestore:"y" bson:"y"`
}

// UnmarshalJSON accepts {"x":..,"y":..} as well as an [x, y] pair.
func (v *Vertex) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) != 2 {
			return fmt.Errorf("vertex: expected 2 coordinates, got %d", len(pair))
		}
		v.X, v.Y = pair[0], pair[1]
		return nil
	}
	type plain Vertex
	return json.Unmarshal(data, (*plain)(v))
}

// Attribute is a single extracted field of a record, along with its provenance.
// Sub-attributes share the same structure and are looked up in the schema by
// their composite key.
type Attribute struct {
	Key                string        `json:"key" firestore:"key" bson:"key"`
	Value              any           `json:"value" firestore:"value" bson:"value"`
	RawText            string        `json:"raw_text" firestore:"raw_text" bson:"raw_text"`
	TextValue          string        `json:"text_value,omitempty" firestore:"text_value,omitempty" bson:"text_value,omitempty"`
	NormalizedValue    any           `json:"normalized_value" firestore:"normalized_value" bson:"normalized_value"`
	AIConfidence       *float64      `json:"ai_confidence" firestore:"ai_confidence" bson:"ai_confidence"`
	Confidence         *float64      `json:"confidence" firestore:"confidence" bson:"confidence"`
	NormalizedVertices []Vertex      `json:"normalized_vertices" firestore:"normalized_vertices" bson:"normalized_vertices"`
	Page               *int          `json:"page" firestore:"page" bson:"page"`
	Cleaned            bool          `json:"cleaned" firestore:"cleaned" bson:"cleaned"`
	UncleanedValue     any           `json:"uncleaned_value,omitempty" firestore:"uncleaned_value,omitempty" bson:"uncleaned_value,omitempty"`
	CleaningError      CleaningError `json:"cleaning_error" firestore:"cleaning_error" bson:"cleaning_error"`
	LastCleaned        *time.Time    `json:"last_cleaned,omitempty" firestore:"last_cleaned,omitempty" bson:"last_cleaned,omitempty"`
	Edited             bool          `json:"edited" firestore:"edited" bson:"edited"`
	Subattributes      []Attribute   `json:"subattributes" firestore:"subattributes" bson:"subattributes"`
	IsSubattribute     bool          `json:"isSubattribute" firestore:"isSubattribute" bson:"isSubattribute"`
	TopLevelAttribute  string        `json:"topLevelAttribute,omitempty" firestore:"topLevelAttribute,omitempty" bson:"topLevelAttribute,omitempty"`
}

// CleaningError holds the message of the last failed cleaning attempt.
// The zero value means no error. On the wire it is either false or the
// message string.
type CleaningError string

// Failed reports whether a cleaning error is recorded.
func (e CleaningError) Failed() bool {
	return e != ""
}

// Encoded returns the stored form: false when no error is recorded,
// otherwise the message.
func (e CleaningError) Encoded() any {
	if e == "" {
		return false
	}
	return string(e)
}

// ParseCleaningError accepts the decoded forms of cleaning_error found in
// stored records: nil, a bool or a message string.
func ParseCleaningError(v any) (CleaningError, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case bool:
		if v {
			return "cleaning failed", nil
		}
		return "", nil
	case string:
		return CleaningError(v), nil
	default:
		return "", fmt.Errorf("cleaning_error: unexpected type %T", v)
	}
}

func (e CleaningError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Encoded())
}

func (e *CleaningError) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseCleaningError(raw)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

func (e CleaningError) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(e.Encoded())
}

func (e *CleaningError) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	var v any
	switch t {
	case bsontype.Null, bsontype.Undefined:
	case bsontype.Boolean:
		v = raw.Boolean()
	case bsontype.String:
		v = raw.StringValue()
	default:
		return fmt.Errorf("cleaning_error: unexpected BSON type %s", t)
	}
	parsed, err := ParseCleaningError(v)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// NewAttribute returns a placeholder attribute for a schema field the
// extraction did not produce.
func NewAttribute(key string) Attribute {
	return Attribute{Key: key}
}

// SchemaKey returns the key used to look the attribute up in a SchemaDict.
// Top-level attributes use their own key; sub-attributes use "parent::key".
func (a *Attribute) SchemaKey(parentKey string) string {
	if parentKey == "" {
		return a.Key
	}
	return parentKey + SubattributeSeparator + a.Key
}

// Clone returns a deep copy of the attribute, including sub-attributes.
func (a Attribute) Clone() Attribute {
	c := a
	if a.AIConfidence != nil {
		v := *a.AIConfidence
		c.AIConfidence = &v
	}
	if a.Confidence != nil {
		v := *a.Confidence
		c.Confidence = &v
	}
	if a.Page != nil {
		v := *a.Page
		c.Page = &v
	}
	if a.LastCleaned != nil {
		v := *a.LastCleaned
		c.LastCleaned = &v
	}
	if a.NormalizedVertices != nil {
		c.NormalizedVertices = append([]Vertex(nil), a.NormalizedVertices...)
	}
	c.Subattributes = CloneAttributes(a.Subattributes)
	return c
}

// CloneAttributes deep-copies an attribute list. A nil list stays nil.
func CloneAttributes(attrs []Attribute) []Attribute {
	if attrs == nil {
		return nil
	}
	out := make([]Attribute, len(attrs))
	for i := range attrs {
		out[i] = attrs[i].Clone()
	}
	return out
}

// ResetToExtracted rolls the attribute and its sub-attributes back to the
// values produced by the extraction service.
func (a *Attribute) ResetToExtracted() {
	a.Value = a.RawText
	if a.AIConfidence != nil {
		v := *a.AIConfidence
		a.Confidence = &v
	} else {
		a.Confidence = nil
	}
	a.Edited = false
	a.Cleaned = false
	a.CleaningError = ""
	for i := range a.Subattributes {
		a.Subattributes[i].ResetToExtracted()
	}
}

// HasCleaningErrors reports whether any attribute or sub-attribute carries a
// cleaning error.
func HasCleaningErrors(attrs []Attribute) bool {
	for i := range attrs {
		if attrs[i].CleaningError.Failed() {
			return true
		}
		for j := range attrs[i].Subattributes {
			if attrs[i].Subattributes[j].CleaningError.Failed() {
				return true
			}
		}
	}
	return false
}

// FieldRef points at one attribute, or one sub-attribute when SubKey is set.
type FieldRef struct {
	Key    string `json:"key"`
	SubKey string `json:"subKey,omitempty"`
}

// SchemaKey returns the schema lookup key for the referenced field.
func (r FieldRef) SchemaKey() string {
	if r.SubKey == "" {
		return r.Key
	}
	return r.Key + SubattributeSeparator + r.SubKey
}

// FindAttribute returns a pointer into attrs for the referenced field, or nil.
func FindAttribute(attrs []Attribute, ref FieldRef) *Attribute {
	for i := range attrs {
		if attrs[i].Key != ref.Key {
			continue
		}
		if ref.SubKey == "" {
			return &attrs[i]
		}
		for j := range attrs[i].Subattributes {
			if attrs[i].Subattributes[j].Key == ref.SubKey {
				return &attrs[i].Subattributes[j]
			}
		}
		return nil
	}
	return nil
}

// DedupeAttributeKeys makes keys unique within each level by suffixing
// repeats with _2, _3, and so on.
func DedupeAttributeKeys(attrs []Attribute) {
	seen := make(map[string]int, len(attrs))
	for i := range attrs {
		key := attrs[i].Key
		seen[key]++
		if n := seen[key]; n > 1 {
			candidate := fmt.Sprintf("%s_%d", key, n)
			for seen[candidate] > 0 {
				n++
				candidate = fmt.Sprintf("%s_%d", key, n)
			}
			seen[key] = n
			seen[candidate] = 1
			attrs[i].Key = candidate
		}
		if len(attrs[i].Subattributes) > 0 {
			DedupeAttributeKeys(attrs[i].Subattributes)
			for j := range attrs[i].Subattributes {
				attrs[i].Subattributes[j].TopLevelAttribute = attrs[i].Key
			}
		}
	}
}

// IsBlank reports whether a value carries nothing to clean.
func IsBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}
