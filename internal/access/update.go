package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/metrics"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/store"
)

// UpdateRequest is one record update.
type UpdateRequest struct {
	RecordID string
	Type     models.UpdateType
	Data     models.RecordUpdate
	// FieldToClean names one attribute or sub-attribute to clean before
	// the write.
	FieldToClean *models.FieldRef
	User         string
	// Force skips the lock and permission checks. Only the extraction
	// pipeline writing its own result sets it.
	Force bool
}

// UpdateResult describes a completed update.
type UpdateResult struct {
	Record        models.Record `json:"record"`
	UpdatedFields []string      `json:"updated_fields"`
}

// UpdateRecord applies one update under the record lock and writes only the
// fields it changes.
func (s *Service) UpdateRecord(ctx context.Context, req UpdateRequest) (*UpdateResult, error) {
	if req.Type == models.UpdateRecordNotes {
		return s.UpdateRecordNotes(ctx, req.RecordID, req.Data.RecordNotes, req.User)
	}
	logCtx := slog.With("recordId", req.RecordID, "user", req.User, "updateType", req.Type)

	res, err := s.updateRecord(ctx, logCtx, req)
	status := metrics.StatusSuccess
	switch {
	case errors.Is(err, ErrRecordLocked), errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrRecordUnavailable):
		status = metrics.StatusDenied
	case err != nil:
		status = metrics.StatusError
	}
	s.metrics.RecordUpdate(string(req.Type), status)
	return res, err
}

func (s *Service) updateRecord(ctx context.Context, logCtx *slog.Logger, req UpdateRequest) (*UpdateResult, error) {
	var (
		rec   *models.Record
		group *models.RecordGroup
		err   error
	)
	if req.Force {
		rec, err = s.store.GetRecord(ctx, req.RecordID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRecordUnavailable
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load record %s: %w", req.RecordID, err)
		}
	} else {
		if _, err := s.requirePermission(ctx, req.User, models.PermReviewRecord); err != nil {
			return nil, err
		}
		var scope *recordScope
		rec, scope, err = s.loadAuthorized(ctx, req.RecordID, req.User)
		if err != nil {
			return nil, err
		}
		group = scope.group
		if !s.locks.TryLock(ctx, req.RecordID, req.User) {
			logCtx.Info("Update rejected; record is locked by another user.")
			return nil, ErrRecordLocked
		}
	}

	fields, action, err := s.applyUpdate(ctx, logCtx, rec, group, req)
	if err != nil {
		return nil, err
	}
	fields[models.FieldDateLastUpdated] = s.now().UTC()
	fields[models.FieldLastUpdatedBy] = req.User

	entry := s.auditWithPrevious(ctx, action, req.User, req.RecordID, fields)

	if err := s.store.UpdateRecordFields(ctx, req.RecordID, fields); err != nil {
		logCtx.Error("Failed to update record.", "error", err)
		return nil, fmt.Errorf("failed to update record %s: %w", req.RecordID, err)
	}
	s.recordAudit(ctx, entry)

	for field, v := range fields {
		if err := rec.SetField(field, v); err != nil {
			return nil, err
		}
	}
	updated := slices.Sorted(maps.Keys(fields))
	logCtx.Info("Record updated.", "fields", updated)
	return &UpdateResult{Record: *rec, UpdatedFields: updated}, nil
}

// applyUpdate runs the review state machine and returns the top-level
// fields to write and the audit action.
func (s *Service) applyUpdate(ctx context.Context, logCtx *slog.Logger, rec *models.Record, group *models.RecordGroup, req UpdateRequest) (map[string]any, string, error) {
	d := req.Data
	fields := map[string]any{}
	action := models.ActionUpdateRecord

	switch req.Type {
	case models.UpdateAttributes:
		if d.AttributesList == nil {
			return nil, "", fmt.Errorf("%w: attributesList is required", ErrInvalidUpdate)
		}
		attrs := models.CloneAttributes(d.AttributesList)
		if req.FieldToClean != nil {
			if err := s.cleanField(ctx, logCtx, rec, group, attrs, *req.FieldToClean); err != nil {
				return nil, "", err
			}
		}
		fields[models.FieldAttributesList] = attrs
		fields[models.FieldHasErrors] = models.HasCleaningErrors(attrs)
		if rec.ReviewStatus == models.ReviewUnreviewed {
			fields[models.FieldReviewStatus] = models.ReviewIncomplete
		}

	case models.UpdateReviewStatus:
		if d.ReviewStatus == nil || !d.ReviewStatus.Valid() {
			return nil, "", fmt.Errorf("%w: a valid review_status is required", ErrInvalidUpdate)
		}
		status := *d.ReviewStatus
		fields[models.FieldReviewStatus] = status
		switch status {
		case models.ReviewUnreviewed:
			attrs := models.CloneAttributes(rec.AttributesList)
			for i := range attrs {
				attrs[i].ResetToExtracted()
			}
			fields[models.FieldAttributesList] = attrs
			fields[models.FieldHasErrors] = false
			fields[models.FieldVerificationStatus] = models.VerificationNone
			action = models.ActionResetRecord
			logCtx.Info("Resetting record to extracted values.")
		case models.ReviewIncomplete:
			fields[models.FieldVerificationStatus] = models.VerificationNone
		case models.ReviewDefective:
			if d.DefectiveCategories != nil {
				fields[models.FieldDefectiveCategories] = d.DefectiveCategories
			}
			if d.DefectiveDescription != nil {
				fields[models.FieldDefectiveDescription] = *d.DefectiveDescription
			}
		}

	case models.UpdateVerificationStatus:
		if d.VerificationStatus == nil || !d.VerificationStatus.Valid() {
			return nil, "", fmt.Errorf("%w: a valid verification_status is required", ErrInvalidUpdate)
		}
		fields[models.FieldVerificationStatus] = *d.VerificationStatus
		if d.ReviewStatus != nil {
			if !d.ReviewStatus.Valid() {
				return nil, "", fmt.Errorf("%w: unknown review_status %q", ErrInvalidUpdate, *d.ReviewStatus)
			}
			fields[models.FieldReviewStatus] = *d.ReviewStatus
		}

	case models.UpdateName:
		if d.Name == nil {
			return nil, "", fmt.Errorf("%w: name is required", ErrInvalidUpdate)
		}
		fields[models.FieldName] = *d.Name

	case models.UpdateDigitization:
		if !req.Force {
			return nil, "", fmt.Errorf("%w: %s updates are written by the extraction pipeline", ErrPermissionDenied, req.Type)
		}
		if d.AttributesList != nil {
			attrs := models.CloneAttributes(d.AttributesList)
			fields[models.FieldAttributesList] = attrs
			fields[models.FieldHasErrors] = models.HasCleaningErrors(attrs)
		}
		if d.Status != nil {
			fields[models.FieldStatus] = *d.Status
		}
		if d.ErrorDetails != nil {
			fields[models.FieldErrorDetails] = *d.ErrorDetails
		}
		if len(fields) == 0 {
			return nil, "", fmt.Errorf("%w: empty digitization update", ErrInvalidUpdate)
		}

	default:
		return nil, "", fmt.Errorf("%w: unknown update type %q", ErrInvalidUpdate, req.Type)
	}
	return fields, action, nil
}

// cleanField cleans one attribute of attrs in place against the record's
// schema. A missing field is logged and skipped.
func (s *Service) cleanField(ctx context.Context, logCtx *slog.Logger, rec *models.Record, group *models.RecordGroup, attrs []models.Attribute, ref models.FieldRef) error {
	attr := models.FindAttribute(attrs, ref)
	if attr == nil {
		logCtx.Warn("Field to clean not found on record.", "field", ref.SchemaKey())
		return nil
	}
	if group == nil {
		g, err := s.store.GetRecordGroup(ctx, rec.RecordGroupID)
		if err != nil {
			return fmt.Errorf("failed to load record group: %w", err)
		}
		group = g
	}
	processor, err := s.processor(ctx, group, false)
	if err != nil {
		return err
	}
	subKey := ""
	if ref.SubKey != "" {
		subKey = ref.SchemaKey()
	}
	s.cleaner.CleanAttribute(ctx, models.NewSchemaDict(processor), attr, subKey)
	return nil
}

// UpdateRecordReviewStatus moves a record through the review states.
// extra carries the defective details or a verification status.
func (s *Service) UpdateRecordReviewStatus(ctx context.Context, recordID string, status models.ReviewStatus, user string, extra models.RecordUpdate) (*UpdateResult, error) {
	extra.ReviewStatus = &status
	return s.UpdateRecord(ctx, UpdateRequest{
		RecordID: recordID,
		Type:     models.UpdateReviewStatus,
		Data:     extra,
		User:     user,
	})
}

// UpdateRecordNotes replaces a record's notes. Notes do not need the lock.
func (s *Service) UpdateRecordNotes(ctx context.Context, recordID string, notes []models.RecordNote, user string) (*UpdateResult, error) {
	logCtx := slog.With("recordId", recordID, "user", user)
	rec, _, err := s.loadAuthorized(ctx, recordID, user)
	if err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []models.RecordNote{}
	}
	fields := map[string]any{models.FieldRecordNotes: notes}
	entry := models.AuditEntry{
		Action:        models.ActionUpdateRecordNotes,
		User:          user,
		TargetIDs:     []string{recordID},
		Delta:         fields,
		PreviousState: map[string]any{models.FieldRecordNotes: rec.RecordNotes},
	}
	if err := s.store.UpdateRecordFields(ctx, recordID, fields); err != nil {
		logCtx.Error("Failed to update record notes.", "error", err)
		s.metrics.RecordUpdate(string(models.UpdateRecordNotes), metrics.StatusError)
		return nil, fmt.Errorf("failed to update notes of record %s: %w", recordID, err)
	}
	s.recordAudit(ctx, entry)
	s.metrics.RecordUpdate(string(models.UpdateRecordNotes), metrics.StatusSuccess)

	rec.RecordNotes = notes
	return &UpdateResult{Record: *rec, UpdatedFields: []string{models.FieldRecordNotes}}, nil
}

// DeleteRecord moves a record to the deleted collection and frees its lock.
func (s *Service) DeleteRecord(ctx context.Context, recordID, user string) error {
	logCtx := slog.With("recordId", recordID, "user", user)
	if _, err := s.requirePermission(ctx, user, models.PermDelete); err != nil {
		return err
	}
	rec, _, err := s.loadAuthorized(ctx, recordID, user)
	if err != nil {
		return err
	}
	if err := s.store.MoveToDeleted(ctx, recordID, user, s.now().UTC()); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", recordID, err)
	}
	if err := s.locks.Release(ctx, recordID, ""); err != nil {
		logCtx.Warn("Failed to release lock of deleted record.", "error", err)
	}
	s.recordAudit(ctx, models.AuditEntry{
		Action:    models.ActionDeleteRecord,
		User:      user,
		TargetIDs: []string{recordID, rec.RecordGroupID},
		PreviousState: map[string]any{
			models.FieldName:         rec.Name,
			models.FieldReviewStatus: rec.ReviewStatus,
		},
	})
	logCtx.Info("Record deleted.")
	return nil
}

// UpdateProject applies a partial update to a project of the user's team.
func (s *Service) UpdateProject(ctx context.Context, projectID string, update models.ProjectUpdate, user string) (*models.Project, error) {
	logCtx := slog.With("projectId", projectID, "user", user)
	u, err := s.requirePermission(ctx, user, models.PermManageProject)
	if err != nil {
		return nil, err
	}
	project, err := s.store.GetProject(ctx, projectID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("project %s: %w", projectID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project %s: %w", projectID, err)
	}
	if project.Team != u.DefaultTeam && !u.HasPermission(models.PermManageSystem) {
		return nil, fmt.Errorf("%w: project belongs to another team", ErrPermissionDenied)
	}

	fields := map[string]any{}
	prev := map[string]any{}
	if update.Name != nil {
		fields[models.ProjectFieldName] = *update.Name
		prev[models.ProjectFieldName] = project.Name
		project.Name = *update.Name
	}
	if update.Description != nil {
		fields[models.ProjectFieldDescription] = *update.Description
		prev[models.ProjectFieldDescription] = project.Description
		project.Description = *update.Description
	}
	if update.State != nil {
		fields[models.ProjectFieldState] = *update.State
		prev[models.ProjectFieldState] = project.State
		project.State = *update.State
	}
	if len(fields) == 0 {
		return project, nil
	}

	if err := s.store.UpdateProjectFields(ctx, projectID, fields); err != nil {
		logCtx.Error("Failed to update project.", "error", err)
		return nil, fmt.Errorf("failed to update project %s: %w", projectID, err)
	}
	s.recordAudit(ctx, models.AuditEntry{
		Action:        models.ActionUpdateProject,
		User:          user,
		TargetIDs:     []string{projectID},
		Delta:         fields,
		PreviousState: prev,
	})
	return project, nil
}
