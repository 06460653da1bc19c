package access

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/store"
)

// Scope selects the records CleanCollection works on.
type Scope string

const (
	ScopeRecord      Scope = "record"
	ScopeRecordGroup Scope = "record_group"
	ScopeProject     Scope = "project"
)

// CleanSummary reports what a CleanCollection run did.
type CleanSummary struct {
	Scope   Scope  `json:"scope"`
	ScopeID string `json:"scope_id"`
	Records int    `json:"records"`
	Updated int    `json:"updated"`
	Skipped int    `json:"skipped"`
	Cleaned int    `json:"cleaned"`
	Failed  int    `json:"failed"`
	Schema  int    `json:"schema_fields"`
}

// CleanCollection re-cleans every record of a record group, or one record,
// against the group's current schema and writes the changed records in one
// bulk update.
func (s *Service) CleanCollection(ctx context.Context, scope Scope, id, user string) (*CleanSummary, error) {
	logCtx := slog.With("scope", scope, "scopeId", id, "user", user)

	var (
		records []models.Record
		groupID string
	)
	switch scope {
	case ScopeRecordGroup:
		groupID = id
		recs, err := s.store.ListRecords(ctx, store.RecordFilter{RecordGroupID: id})
		if err != nil {
			return nil, fmt.Errorf("failed to list records of group %s: %w", id, err)
		}
		records = recs
	case ScopeRecord:
		rec, err := s.store.GetRecord(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load record %s: %w", id, err)
		}
		groupID = rec.RecordGroupID
		records = []models.Record{*rec}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScope, scope)
	}

	group, err := s.store.GetRecordGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load record group %s: %w", groupID, err)
	}
	// Read the schema fresh: this usually runs right after a schema change.
	processor, err := s.processor(ctx, group, true)
	if err != nil {
		return nil, err
	}
	schema := models.NewSchemaDict(processor)

	summary := &CleanSummary{Records: len(records), Schema: len(schema), Scope: scope, ScopeID: id}
	if len(schema) == 0 {
		logCtx.Warn("Record group has no schema; nothing to clean.", "recordGroupId", groupID)
		summary.Skipped = len(records)
		return summary, nil
	}

	now := s.now().UTC()
	var updates []store.AttributeUpdate
	for i := range records {
		rec := &records[i]
		attrs := models.CloneAttributes(rec.AttributesList)
		result := s.cleaner.CleanRecord(ctx, schema, attrs)
		summary.Cleaned += result.Cleaned
		summary.Failed += result.Failed
		if reflect.DeepEqual(attrs, rec.AttributesList) {
			summary.Skipped++
			continue
		}
		updates = append(updates, store.AttributeUpdate{
			RecordID:       rec.ID,
			AttributesList: attrs,
			HasErrors:      models.HasCleaningErrors(attrs),
			UpdatedAt:      now,
		})
	}

	if err := s.store.BulkSetAttributes(ctx, updates); err != nil {
		return nil, fmt.Errorf("failed to write cleaned records: %w", err)
	}
	summary.Updated = len(updates)

	targets := make([]string, 0, len(updates)+1)
	targets = append(targets, id)
	for _, u := range updates {
		if u.RecordID != id {
			targets = append(targets, u.RecordID)
		}
	}
	s.recordAudit(ctx, models.AuditEntry{
		Action:    models.ActionCleanCollection,
		User:      user,
		TargetIDs: targets,
		Delta: map[string]any{
			"scope":   string(scope),
			"updated": summary.Updated,
			"cleaned": summary.Cleaned,
			"failed":  summary.Failed,
		},
	})
	logCtx.Info("Collection cleaned.", "records", summary.Records, "updated", summary.Updated, "cleaned", summary.Cleaned, "failed", summary.Failed)
	return summary, nil
}
