package models

import (
	"math"
	"sort"
)

// Processor describes an extraction model and the attribute schema its
// records are reconciled against.
type Processor struct {
	ID           string         `json:"id" yaml:"id" firestore:"-" bson:"_id"`
	ModelID      string         `json:"model_id" yaml:"model_id" firestore:"model_id" bson:"model_id"`
	Name         string         `json:"name" yaml:"name" firestore:"name" bson:"name"`
	DocumentType string         `json:"documentType,omitempty" yaml:"document_type,omitempty" firestore:"documentType,omitempty" bson:"documentType,omitempty"`
	Team         string         `json:"team,omitempty" yaml:"team,omitempty" firestore:"team,omitempty" bson:"team,omitempty"`
	Generic      bool           `json:"generic,omitempty" yaml:"generic,omitempty" firestore:"generic,omitempty" bson:"generic,omitempty"`
	Attributes   []AttributeDef `json:"attributes" yaml:"attributes" firestore:"attributes" bson:"attributes"`
}

// AttributeDef is one schema entry. Subattributes are looked up with the
// composite "parent::sub" key.
type AttributeDef struct {
	Name             string         `json:"name" yaml:"name" firestore:"name" bson:"name"`
	Alias            string         `json:"alias,omitempty" yaml:"alias,omitempty" firestore:"alias,omitempty" bson:"alias,omitempty"`
	PageOrderSort    *float64       `json:"page_order_sort,omitempty" yaml:"page_order_sort,omitempty" firestore:"page_order_sort,omitempty" bson:"page_order_sort,omitempty"`
	CleaningFunction string         `json:"cleaning_function,omitempty" yaml:"cleaning_function,omitempty" firestore:"cleaning_function,omitempty" bson:"cleaning_function,omitempty"`
	DataType         string         `json:"database_data_type,omitempty" yaml:"data_type,omitempty" firestore:"database_data_type,omitempty" bson:"database_data_type,omitempty"`
	Subattributes    []AttributeDef `json:"subattributes,omitempty" yaml:"subattributes,omitempty" firestore:"subattributes,omitempty" bson:"subattributes,omitempty"`
}

// SortKey returns the page order used for sorting; entries without one sort last.
func (d AttributeDef) SortKey() float64 {
	if d.PageOrderSort == nil {
		return math.Inf(1)
	}
	return *d.PageOrderSort
}

// OrderedAttributes returns a copy of the schema sorted by page order.
// Entries with equal order keep their relative position.
func (p *Processor) OrderedAttributes() []AttributeDef {
	defs := append([]AttributeDef(nil), p.Attributes...)
	sort.SliceStable(defs, func(i, j int) bool {
		return defs[i].SortKey() < defs[j].SortKey()
	})
	return defs
}

// SchemaDict indexes a processor's attribute definitions by key, with
// sub-attributes under "parent::sub".
type SchemaDict map[string]AttributeDef

// NewSchemaDict flattens a processor schema into a lookup table.
func NewSchemaDict(p *Processor) SchemaDict {
	dict := SchemaDict{}
	if p == nil {
		return dict
	}
	for _, def := range p.Attributes {
		dict[def.Name] = def
		for _, sub := range def.Subattributes {
			dict[def.Name+SubattributeSeparator+sub.Name] = sub
		}
	}
	return dict
}
