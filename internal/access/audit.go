package access

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
)

// previousRecordState reads the current value of each field about to be
// written. It is a separate read so that the caller can decide what a
// failure means; it never blocks the write itself.
func (s *Service) previousRecordState(ctx context.Context, recordID string, fields map[string]any) (map[string]any, error) {
	rec, err := s.store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to read previous state of record %s: %w", recordID, err)
	}
	prev := make(map[string]any, len(fields))
	for field := range fields {
		v, err := rec.Field(field)
		if err != nil {
			return nil, err
		}
		prev[field] = v
	}
	return prev, nil
}

// recordAudit appends an audit entry. Failures are logged and swallowed.
func (s *Service) recordAudit(ctx context.Context, entry models.AuditEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now().UTC()
	}
	if err := s.store.AppendAudit(ctx, entry); err != nil {
		slog.Error("Failed to write audit entry.", "action", entry.Action, "user", entry.User, "targetIds", entry.TargetIDs, "error", err)
	}
}

// auditWithPrevious captures previous state for fields and returns an entry
// ready to be written after the update. A failed capture is folded into the
// entry.
func (s *Service) auditWithPrevious(ctx context.Context, action, user, recordID string, fields map[string]any) models.AuditEntry {
	entry := models.AuditEntry{
		Action:    action,
		User:      user,
		TargetIDs: []string{recordID},
		Delta:     fields,
	}
	prev, err := s.previousRecordState(ctx, recordID, fields)
	if err != nil {
		slog.Warn("Previous state unavailable for audit.", "recordId", recordID, "action", action, "error", err)
		entry.PreviousStateUnavailable = true
		return entry
	}
	entry.PreviousState = prev
	return entry
}
