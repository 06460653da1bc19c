package access

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/metrics"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/store"
)

func editAttributes(t *testing.T, f *fixture, id, user string, edit func([]models.Attribute), clean *models.FieldRef) *UpdateResult {
	t.Helper()
	attrs := models.CloneAttributes(f.record(t, id).AttributesList)
	edit(attrs)
	res, err := f.svc.UpdateRecord(context.Background(), UpdateRequest{
		RecordID:     id,
		Type:         models.UpdateAttributes,
		Data:         models.RecordUpdate{AttributesList: attrs},
		FieldToClean: clean,
		User:         user,
	})
	require.NoError(t, err)
	return res
}

func TestUpdateAttributesAdvancesReviewStatus(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.records[0]

	res := editAttributes(t, f, id, alice, func(a []models.Attribute) {
		a[1].Value = "1985-03-07"
		a[1].Edited = true
	}, nil)

	assert.Equal(t, models.ReviewIncomplete, res.Record.ReviewStatus)
	assert.ElementsMatch(t, []string{
		models.FieldAttributesList, models.FieldHasErrors, models.FieldReviewStatus,
		models.FieldDateLastUpdated, models.FieldLastUpdatedBy,
	}, res.UpdatedFields)

	stored := f.record(t, id)
	assert.Equal(t, models.ReviewIncomplete, stored.ReviewStatus)
	assert.Equal(t, alice, stored.LastUpdatedBy)
	assert.Equal(t, f.clock.Now(), stored.DateLastUpdated)
	assert.True(t, stored.AttributesList[1].Edited)

	// A second edit leaves an incomplete record incomplete.
	res = editAttributes(t, f, id, alice, func(a []models.Attribute) { a[0].Value = "99" }, nil)
	assert.NotContains(t, res.UpdatedFields, models.FieldReviewStatus)
}

func TestUpdateAttributesCleansRequestedField(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.records[0]

	res := editAttributes(t, f, id, alice, func(a []models.Attribute) {
		a[1].Value = "March 7th, 1985"
	}, &models.FieldRef{Key: "spud_date"})
	spud := res.Record.AttributesList[1]
	assert.Equal(t, "1985-03-07", spud.Value)
	assert.Equal(t, "March 7th, 1985", spud.UncleanedValue)
	assert.True(t, spud.Cleaned)
	assert.False(t, res.Record.HasErrors)

	// Only the requested field is cleaned.
	assert.Equal(t, "1,234", res.Record.AttributesList[0].Value)

	res = editAttributes(t, f, id, alice, func(a []models.Attribute) {
		a[3].Subattributes[0].Value = "12-1/4\""
	}, &models.FieldRef{Key: "casing", SubKey: "size"})
	assert.InDelta(t, 12.25, res.Record.AttributesList[3].Subattributes[0].Value, 0.0001)

	res = editAttributes(t, f, id, alice, func(a []models.Attribute) {
		a[0].Value = "twelve"
	}, &models.FieldRef{Key: "permit_number"})
	assert.Equal(t, "twelve", res.Record.AttributesList[0].Value)
	assert.True(t, res.Record.AttributesList[0].CleaningError.Failed())
	assert.True(t, res.Record.HasErrors)
	assert.True(t, f.record(t, id).HasErrors)
}

func TestUpdateRecordRejectsLockedRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	id := f.records[0]

	require.True(t, f.svc.TryLockingRecord(ctx, id, alice))
	_, err := f.svc.UpdateRecord(ctx, UpdateRequest{
		RecordID: id,
		Type:     models.UpdateName,
		Data:     models.RecordUpdate{Name: ptr("renamed")},
		User:     bob,
	})
	assert.ErrorIs(t, err, ErrRecordLocked)
	assert.Equal(t, "record", f.record(t, id).Name)

	// The pipeline writes through the lock.
	_, err = f.svc.UpdateRecord(ctx, UpdateRequest{
		RecordID: id,
		Type:     models.UpdateDigitization,
		Data:     models.RecordUpdate{Status: ptr(models.StatusDigitized)},
		User:     "pipeline",
		Force:    true,
	})
	require.NoError(t, err)
}

func TestUpdateRecordPermissions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.store.PutUser(models.User{Email: "viewer@example.com", DefaultTeam: "t1"})

	_, err := f.svc.UpdateRecord(ctx, UpdateRequest{
		RecordID: f.records[0], Type: models.UpdateName, Data: models.RecordUpdate{Name: ptr("x")}, User: "viewer@example.com",
	})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.svc.UpdateRecord(ctx, UpdateRequest{
		RecordID: f.records[0], Type: models.UpdateDigitization, Data: models.RecordUpdate{Status: ptr("digitized")}, User: alice,
	})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.svc.UpdateRecord(ctx, UpdateRequest{
		RecordID: f.records[0], Type: models.UpdateName, Data: models.RecordUpdate{Name: ptr("x")}, User: outsider,
	})
	assert.ErrorIs(t, err, ErrRecordUnavailable)
}

func TestUpdateRecordValidatesData(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	for _, req := range []UpdateRequest{
		{Type: models.UpdateAttributes},
		{Type: models.UpdateReviewStatus, Data: models.RecordUpdate{ReviewStatus: ptr(models.ReviewStatus("done"))}},
		{Type: models.UpdateVerificationStatus},
		{Type: models.UpdateName},
		{Type: "bogus"},
	} {
		req.RecordID = f.records[0]
		req.User = alice
		_, err := f.svc.UpdateRecord(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidUpdate, "type %q", req.Type)
	}
}

func TestResetRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	id := f.records[0]

	editAttributes(t, f, id, alice, func(a []models.Attribute) {
		a[0].Value = "edited"
		a[0].Edited = true
		a[0].Confidence = ptr(1.0)
		a[3].Subattributes[0].Value = "9 5/8"
		a[3].Subattributes[0].Edited = true
	}, &models.FieldRef{Key: "plugged"})
	_, err := f.svc.UpdateRecord(ctx, UpdateRequest{
		RecordID: id,
		Type:     models.UpdateVerificationStatus,
		Data:     models.RecordUpdate{VerificationStatus: ptr(models.VerificationRequired), ReviewStatus: ptr(models.ReviewReviewed)},
		User:     alice,
	})
	require.NoError(t, err)
	require.Equal(t, models.ReviewReviewed, f.record(t, id).ReviewStatus)

	res, err := f.svc.UpdateRecordReviewStatus(ctx, id, models.ReviewUnreviewed, alice, models.RecordUpdate{})
	require.NoError(t, err)

	stored := f.record(t, id)
	assert.Equal(t, models.ReviewUnreviewed, stored.ReviewStatus)
	assert.Equal(t, models.VerificationNone, stored.VerificationStatus)
	assert.False(t, stored.HasErrors)
	for _, a := range stored.AttributesList {
		assert.Equal(t, a.RawText, a.Value, a.Key)
		assert.False(t, a.Edited, a.Key)
		assert.False(t, a.Cleaned, a.Key)
		assert.False(t, a.CleaningError.Failed(), a.Key)
		assert.Equal(t, a.AIConfidence, a.Confidence, a.Key)
		for _, sub := range a.Subattributes {
			assert.Equal(t, sub.RawText, sub.Value, sub.Key)
			assert.False(t, sub.Edited, sub.Key)
		}
	}
	assert.Equal(t, stored.AttributesList, res.Record.AttributesList)

	history, err := f.store.ListAudit(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 3)
	reset := history[2]
	assert.Equal(t, models.ActionResetRecord, reset.Action)
	assert.False(t, reset.PreviousStateUnavailable)
	assert.Equal(t, models.ReviewReviewed, reset.PreviousState[models.FieldReviewStatus])
	assert.Equal(t, models.VerificationRequired, reset.PreviousState[models.FieldVerificationStatus])
}

func TestReviewStatusTransitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	id := f.records[0]

	require.NoError(t, f.store.UpdateRecordFields(ctx, id, map[string]any{
		models.FieldVerificationStatus: models.VerificationVerified,
	}))
	_, err := f.svc.UpdateRecordReviewStatus(ctx, id, models.ReviewIncomplete, lead, models.RecordUpdate{})
	require.NoError(t, err)
	assert.Equal(t, models.VerificationNone, f.record(t, id).VerificationStatus)

	_, err = f.svc.UpdateRecordReviewStatus(ctx, id, models.ReviewDefective, lead, models.RecordUpdate{
		DefectiveCategories:  []string{"illegible"},
		DefectiveDescription: ptr("page 2 missing"),
	})
	require.NoError(t, err)
	stored := f.record(t, id)
	assert.Equal(t, models.ReviewDefective, stored.ReviewStatus)
	assert.Equal(t, []string{"illegible"}, stored.DefectiveCategories)
	assert.Equal(t, "page 2 missing", stored.DefectiveDescription)
}

// failingAuditStore loses audit writes and, after the first few reads,
// every record read.
type failingAuditStore struct {
	*store.MemoryStore
	reads     int
	failAfter int
}

func (s *failingAuditStore) AppendAudit(context.Context, models.AuditEntry) error {
	return errors.New("history unavailable")
}

func (s *failingAuditStore) GetRecord(ctx context.Context, id string) (*models.Record, error) {
	s.reads++
	if s.reads > s.failAfter {
		return nil, errors.New("read replica down")
	}
	return s.MemoryStore.GetRecord(ctx, id)
}

func TestAuditIsBestEffort(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	st := &failingAuditStore{MemoryStore: f.store, failAfter: 1}
	svc := NewService(st, f.svc.locks, f.svc.cleaner, WithClock(f.clock.Now))

	res, err := svc.UpdateRecord(ctx, UpdateRequest{
		RecordID: f.records[0],
		Type:     models.UpdateName,
		Data:     models.RecordUpdate{Name: ptr("renamed")},
		User:     alice,
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", res.Record.Name)
	assert.Equal(t, "renamed", f.record(t, f.records[0]).Name)
}

func TestPreviousStateUnavailableIsRecorded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	st := &failingAuditStore{MemoryStore: f.store, failAfter: 1}

	entry := NewService(st, f.svc.locks, f.svc.cleaner).auditWithPrevious(ctx, models.ActionUpdateRecord, alice, f.records[0], map[string]any{models.FieldName: "x"})
	assert.False(t, entry.PreviousStateUnavailable)
	assert.Equal(t, "record", entry.PreviousState[models.FieldName])

	entry = NewService(st, f.svc.locks, f.svc.cleaner).auditWithPrevious(ctx, models.ActionUpdateRecord, alice, f.records[0], map[string]any{models.FieldName: "x"})
	assert.True(t, entry.PreviousStateUnavailable)
	assert.Nil(t, entry.PreviousState)
}

func TestUpdateRecordNotesNeedsNoLock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	id := f.records[0]

	require.True(t, f.svc.TryLockingRecord(ctx, id, alice))
	notes := []models.RecordNote{{Text: "check page 3", User: bob, Timestamp: f.clock.Now()}}
	res, err := f.svc.UpdateRecord(ctx, UpdateRequest{
		RecordID: id,
		Type:     models.UpdateRecordNotes,
		Data:     models.RecordUpdate{RecordNotes: notes},
		User:     bob,
	})
	require.NoError(t, err)
	assert.Equal(t, notes, res.Record.RecordNotes)
	assert.Equal(t, notes, f.record(t, id).RecordNotes)

	holder, err := f.svc.locks.Holder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, alice, holder)
}

func TestDeleteRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	id := f.records[0]

	require.True(t, f.svc.TryLockingRecord(ctx, id, alice))
	assert.ErrorIs(t, f.svc.DeleteRecord(ctx, id, alice), ErrPermissionDenied)

	require.NoError(t, f.svc.DeleteRecord(ctx, id, lead))
	_, err := f.store.GetRecord(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)

	deleted, ok := f.store.DeletedRecord(id)
	require.True(t, ok)
	assert.Equal(t, lead, deleted.DeletedBy)

	holder, err := f.svc.locks.Holder(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, holder)

	history, err := f.store.ListAudit(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.ActionDeleteRecord, history[0].Action)

	assert.ErrorIs(t, f.svc.DeleteRecord(ctx, id, lead), ErrRecordUnavailable)
}

func TestUpdateProject(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.UpdateProject(ctx, "p1", models.ProjectUpdate{Name: ptr("x")}, alice)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = f.svc.UpdateProject(ctx, "p1", models.ProjectUpdate{Name: ptr("x")}, outsider)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = f.svc.UpdateProject(ctx, "nope", models.ProjectUpdate{Name: ptr("x")}, lead)
	assert.ErrorIs(t, err, store.ErrNotFound)

	p, err := f.svc.UpdateProject(ctx, "p1", models.ProjectUpdate{Name: ptr("Osage County 2"), State: ptr("active")}, lead)
	require.NoError(t, err)
	assert.Equal(t, "Osage County 2", p.Name)

	stored, err := f.store.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Osage County 2", stored.Name)
	assert.Equal(t, "active", stored.State)

	history, err := f.store.ListAudit(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Osage County", history[0].PreviousState[models.ProjectFieldName])
}

func TestUpdateMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	rm, err := metrics.NewRecordMetrics(reg)
	require.NoError(t, err)
	f := newFixture(t, WithMetrics(rm))

	require.True(t, f.svc.TryLockingRecord(ctx, f.records[0], alice))
	_, err = f.svc.UpdateRecord(ctx, UpdateRequest{RecordID: f.records[0], Type: models.UpdateName, Data: models.RecordUpdate{Name: ptr("a")}, User: bob})
	require.ErrorIs(t, err, ErrRecordLocked)
	_, err = f.svc.UpdateRecord(ctx, UpdateRequest{RecordID: f.records[0], Type: models.UpdateName, Data: models.RecordUpdate{Name: ptr("a")}, User: alice})
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "ogrre_record_updates_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
