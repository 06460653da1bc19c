package cleaning

import (
	"log/slog"
	"strings"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
)

// SortRecordAttributes orders attrs by the processor's page_order_sort.
// Schema fields missing from the record are synthesized as empty
// placeholders, and requiresDBUpdate reports whether that happened.
// With keepUnknown, attributes the schema does not define are appended
// after the schema fields; otherwise they are dropped from the result.
// A nil processor or empty schema returns attrs unchanged.
func SortRecordAttributes(attrs []models.Attribute, processor *models.Processor, keepUnknown bool) ([]models.Attribute, bool) {
	if processor == nil {
		slog.Info("No processor found; attributes left unsorted.")
		return attrs, false
	}
	if len(processor.Attributes) == 0 {
		slog.Info("No processor attributes found; attributes left unsorted.", "processorId", processor.ID)
		return attrs, false
	}

	byKey := make(map[string][]int, len(attrs))
	for i := range attrs {
		byKey[attrs[i].Key] = append(byKey[attrs[i].Key], i)
	}

	requiresDBUpdate := false
	sorted := make([]models.Attribute, 0, len(processor.Attributes))
	for _, def := range processor.OrderedAttributes() {
		if strings.Contains(def.Name, models.SubattributeSeparator) {
			continue
		}
		found := byKey[def.Name]
		if len(found) == 0 {
			slog.Debug("Schema field missing from record; adding placeholder.", "attributeKey", def.Name)
			sorted = append(sorted, models.NewAttribute(def.Name))
			requiresDBUpdate = true
			continue
		}
		for _, i := range found {
			sorted = append(sorted, attrs[i])
		}
	}

	if keepUnknown {
		schema := models.NewSchemaDict(processor)
		for i := range attrs {
			if _, ok := schema[attrs[i].Key]; !ok {
				slog.Debug("Record attribute not in schema; keeping it at the end.", "attributeKey", attrs[i].Key)
				sorted = append(sorted, attrs[i])
			}
		}
	}
	return sorted, requiresDBUpdate
}
