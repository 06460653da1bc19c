package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/cleaning"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/store"
)

// RecordView is a record as shown to one reviewer.
type RecordView struct {
	Record          models.Record     `json:"recordData"`
	IsLocked        bool              `json:"is_locked"`
	LockedMessage   string            `json:"lockedMessage,omitempty"`
	RecordGroupName string            `json:"rg_name"`
	ProjectID       string            `json:"project_id"`
	ProjectName     string            `json:"project_name"`
	RecordIndex     int               `json:"recordIndex"`
	PreviousID      string            `json:"previous_id,omitempty"`
	NextID          string            `json:"next_id,omitempty"`
	Schema          models.SchemaDict `json:"recordSchema,omitempty"`
}

// FetchRecordData loads a record for user and tries to lock it. A lock held
// by someone else does not fail the call: the record comes back with
// IsLocked set. Records awaiting or past verification are read-only for
// users who cannot verify.
func (s *Service) FetchRecordData(ctx context.Context, recordID, user string) (*RecordView, error) {
	logCtx := slog.With("recordId", recordID, "user", user)

	rec, scope, err := s.loadAuthorized(ctx, recordID, user)
	if err != nil {
		return nil, err
	}

	view := &RecordView{
		RecordGroupName: scope.group.Name,
		ProjectID:       scope.project.ID,
		ProjectName:     scope.project.Name,
	}

	view.IsLocked = !s.locks.TryLock(ctx, recordID, user)
	if view.IsLocked {
		view.LockedMessage = MsgLockedByTeamMember
	} else if msg := verificationLock(rec); msg != "" && !scope.user.HasPermission(models.PermVerifyRecord) {
		view.IsLocked = true
		view.LockedMessage = msg
		if err := s.locks.Release(ctx, recordID, ""); err != nil {
			logCtx.Warn("Failed to release lock on read-only record.", "error", err)
		}
	}

	if s.images != nil {
		urls, err := s.images.ImageURLs(ctx, rec)
		if err != nil {
			logCtx.Warn("Unable to resolve image URLs.", "error", err)
		}
		rec.ImageURLs = urls
	}

	s.resolveNeighbors(ctx, logCtx, rec, view)

	processor, err := s.processor(ctx, scope.group, false)
	if err != nil {
		return nil, err
	}
	sorted, requiresUpdate := cleaning.SortRecordAttributes(rec.AttributesList, processor, s.keepUnknown)
	rec.AttributesList = sorted
	if requiresUpdate {
		logCtx.Info("Persisting reconciled attribute list.")
		if err := s.store.UpdateRecordFields(ctx, recordID, map[string]any{models.FieldAttributesList: sorted}); err != nil {
			logCtx.Error("Failed to persist reconciled attributes.", "error", err)
		}
	}
	view.Schema = models.NewSchemaDict(processor)
	view.Record = *rec
	return view, nil
}

// verificationLock returns the read-only message for a record's
// verification state, or "" when the record is editable.
func verificationLock(rec *models.Record) string {
	switch rec.VerificationStatus {
	case models.VerificationRequired:
		return MsgAwaitingVerification
	case models.VerificationVerified:
		return fmt.Sprintf(msgVerifiedFormat, rec.ReviewStatus)
	}
	return ""
}

// resolveNeighbors fills the record's index and the previous/next ids,
// wrapping to the last and first records at the ends of the group. Lookup
// failures leave the fields empty.
func (s *Service) resolveNeighbors(ctx context.Context, logCtx *slog.Logger, rec *models.Record, view *RecordView) {
	group := rec.RecordGroupID
	n, err := s.store.CountRecordsUpTo(ctx, group, rec.DateCreated)
	if err != nil {
		logCtx.Warn("Unable to compute record index.", "error", err)
	} else {
		view.RecordIndex = n
	}

	view.PreviousID = s.neighbor(ctx, logCtx, group, rec.DateCreated, true)
	view.NextID = s.neighbor(ctx, logCtx, group, rec.DateCreated, false)
}

func (s *Service) neighbor(ctx context.Context, logCtx *slog.Logger, group string, t time.Time, before bool) string {
	id, err := s.store.NearestRecord(ctx, group, t, before)
	if errors.Is(err, store.ErrNotFound) {
		// Wrap: before the first record is the last one, and vice versa.
		id, err = s.store.EdgeRecord(ctx, group, !before)
	}
	if err != nil {
		logCtx.Warn("Unable to resolve neighboring record.", "before", before, "error", err)
		return ""
	}
	return id
}
