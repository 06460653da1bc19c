package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// rawRecords reaches below the Store interface to write a record document as
// another writer stored it and to read back the stored cleaning_error values
// of its top-level attributes.
type rawRecords struct {
	put            func(t *testing.T, s Store, id string, doc map[string]any)
	cleaningErrors func(t *testing.T, s Store, id string) []any
}

// runStoreSuite exercises the behavior every backend must share.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store, raw rawRecords) {
	t.Run("RecordLifecycle", func(t *testing.T) {
		testRecordLifecycle(t, newStore(t))
	})
	t.Run("Neighbors", func(t *testing.T) {
		testNeighbors(t, newStore(t))
	})
	t.Run("BulkSetAttributes", func(t *testing.T) {
		testBulkSetAttributes(t, newStore(t))
	})
	t.Run("CompareAndSwapLock", func(t *testing.T) {
		testCompareAndSwapLock(t, newStore(t))
	})
	t.Run("DeleteLocks", func(t *testing.T) {
		testDeleteLocks(t, newStore(t))
	})
	t.Run("ProcessorsAndAudit", func(t *testing.T) {
		testProcessorsAndAudit(t, newStore(t))
	})
	t.Run("StoredCleaningErrors", func(t *testing.T) {
		testStoredCleaningErrors(t, newStore(t), raw)
	})
}

func seedGroup(t *testing.T, s Store, group string, n int) []string {
	t.Helper()
	ctx := context.Background()
	ids := make([]string, n)
	for i := range n {
		id, err := s.CreateRecord(ctx, &models.Record{
			Name:          "record",
			RecordGroupID: group,
			Status:        models.StatusDigitized,
			ReviewStatus:  models.ReviewUnreviewed,
			ImageFiles:    []string{},
			DateCreated:   base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
		ids[i] = id
	}
	return ids
}

func testRecordLifecycle(t *testing.T, s Store) {
	ctx := context.Background()

	id, err := s.CreateRecord(ctx, &models.Record{
		Name:          "well 7",
		Filename:      "well7.pdf",
		FileHash:      "abc",
		RecordGroupID: "rg1",
		Status:        models.StatusProcessing,
		ReviewStatus:  models.ReviewUnreviewed,
		ImageFiles:    []string{},
		DateCreated:   base,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = s.CreateRecord(ctx, &models.Record{ID: id, RecordGroupID: "rg1"})
	assert.ErrorIs(t, err, ErrConflict)

	err = s.UpdateRecordFields(ctx, id, map[string]any{
		models.FieldStatus:       models.StatusDigitized,
		models.FieldReviewStatus: models.ReviewIncomplete,
		models.FieldAttributesList: []models.Attribute{
			{Key: "permit_number", Value: "123", Subattributes: []models.Attribute{}},
		},
	})
	require.NoError(t, err)

	rec, err := s.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, "well 7", rec.Name)
	assert.Equal(t, models.StatusDigitized, rec.Status)
	assert.Equal(t, models.ReviewIncomplete, rec.ReviewStatus)
	require.Len(t, rec.AttributesList, 1)
	assert.Equal(t, "123", rec.AttributesList[0].Value)

	found, err := s.ListRecords(ctx, RecordFilter{RecordGroupID: "rg1", FileHash: "abc"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, id, found[0].ID)

	found, err = s.ListRecords(ctx, RecordFilter{RecordGroupID: "rg1", FileHash: "other"})
	require.NoError(t, err)
	assert.Empty(t, found)

	assert.ErrorIs(t, s.UpdateRecordFields(ctx, "missing", map[string]any{models.FieldName: "x"}), ErrNotFound)

	require.NoError(t, s.MoveToDeleted(ctx, id, "alice@example.com", base.Add(time.Hour)))
	_, err = s.GetRecord(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.MoveToDeleted(ctx, id, "alice@example.com", base), ErrNotFound)
}

func testNeighbors(t *testing.T, s Store) {
	ctx := context.Background()
	ids := seedGroup(t, s, "rg1", 3)
	seedGroup(t, s, "rg2", 2)

	n, err := s.CountRecordsUpTo(ctx, "rg1", base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	prev, err := s.NearestRecord(ctx, "rg1", base.Add(time.Minute), true)
	require.NoError(t, err)
	assert.Equal(t, ids[0], prev)

	next, err := s.NearestRecord(ctx, "rg1", base.Add(time.Minute), false)
	require.NoError(t, err)
	assert.Equal(t, ids[2], next)

	_, err = s.NearestRecord(ctx, "rg1", base, true)
	assert.ErrorIs(t, err, ErrNotFound)

	first, err := s.EdgeRecord(ctx, "rg1", true)
	require.NoError(t, err)
	assert.Equal(t, ids[0], first)
	last, err := s.EdgeRecord(ctx, "rg1", false)
	require.NoError(t, err)
	assert.Equal(t, ids[2], last)

	_, err = s.EdgeRecord(ctx, "empty", true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func testBulkSetAttributes(t *testing.T, s Store) {
	ctx := context.Background()
	ids := seedGroup(t, s, "rg1", 2)

	require.NoError(t, s.BulkSetAttributes(ctx, nil))
	require.NoError(t, s.BulkSetAttributes(ctx, []AttributeUpdate{
		{RecordID: ids[0], AttributesList: []models.Attribute{{Key: "a", CleaningError: "bad"}}, HasErrors: true, UpdatedAt: base},
		{RecordID: ids[1], AttributesList: []models.Attribute{{Key: "b", Value: true}}, UpdatedAt: base},
	}))

	rec, err := s.GetRecord(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, rec.HasErrors)
	assert.Equal(t, models.CleaningError("bad"), rec.AttributesList[0].CleaningError)

	rec, err = s.GetRecord(ctx, ids[1])
	require.NoError(t, err)
	assert.False(t, rec.HasErrors)
	assert.Equal(t, true, rec.AttributesList[0].Value)
}

func testCompareAndSwapLock(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.GetLock(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)

	first := models.Lock{RecordID: "r1", User: "a@example.com", Timestamp: base, Token: "t1"}
	ok, err := s.CompareAndSwapLock(ctx, nil, first)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CompareAndSwapLock(ctx, nil, models.Lock{RecordID: "r1", User: "b@example.com", Timestamp: base, Token: "t2"})
	require.NoError(t, err)
	assert.False(t, ok, "insert must fail when a lock exists")

	stale := models.Lock{RecordID: "r1", Token: "nope"}
	ok, err = s.CompareAndSwapLock(ctx, &stale, models.Lock{RecordID: "r1", User: "b@example.com", Timestamp: base, Token: "t3"})
	require.NoError(t, err)
	assert.False(t, ok, "replace must fail on a token mismatch")

	ok, err = s.CompareAndSwapLock(ctx, &first, models.Lock{RecordID: "r1", User: "b@example.com", Timestamp: base.Add(time.Minute), Token: "t4"})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetLock(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "b@example.com", got.User)
	assert.Equal(t, "t4", got.Token)

	ok, err = s.CompareAndSwapLock(ctx, &first, models.Lock{RecordID: "r2", User: "a@example.com", Token: "t5"})
	require.NoError(t, err)
	assert.False(t, ok, "replace must fail when no lock exists")
}

func testDeleteLocks(t *testing.T, s Store) {
	ctx := context.Background()
	put := func(record, user string, ts time.Time) {
		ok, err := s.CompareAndSwapLock(ctx, nil, models.Lock{RecordID: record, User: user, Timestamp: ts, Token: record})
		require.NoError(t, err)
		require.True(t, ok)
	}
	put("r1", "a@example.com", base)
	put("r2", "a@example.com", base.Add(time.Minute))
	put("r3", "b@example.com", base)
	put("r4", "c@example.com", base.Add(10*time.Minute))

	n, err := s.DeleteLocks(ctx, LockFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.DeleteLocks(ctx, LockFilter{User: "a@example.com", ExceptRecordID: "r2"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.DeleteLocks(ctx, LockFilter{OlderThan: base.Add(5 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	locks, err := s.ListLocks(ctx)
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, "r4", locks[0].RecordID)

	n, err = s.DeleteLocks(ctx, LockFilter{RecordID: "r4", User: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testProcessorsAndAudit(t *testing.T, s Store) {
	ctx := context.Background()

	p := &models.Processor{
		ID:           "proc1",
		Name:         "Completion report",
		DocumentType: "completion",
		Attributes: []models.AttributeDef{
			{Name: "spud_date", CleaningFunction: "clean_date"},
		},
	}
	require.NoError(t, s.SaveProcessor(ctx, p))
	got, err := s.GetProcessor(ctx, "proc1")
	require.NoError(t, err)
	assert.Equal(t, "Completion report", got.Name)
	require.Len(t, got.Attributes, 1)
	assert.Equal(t, "clean_date", got.Attributes[0].CleaningFunction)

	_, err = s.GetProcessor(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.AppendAudit(ctx, models.AuditEntry{Action: models.ActionUpdateRecord, User: "a", TargetIDs: []string{"r1"}, Timestamp: base.Add(time.Minute)}))
	require.NoError(t, s.AppendAudit(ctx, models.AuditEntry{Action: models.ActionDeleteRecord, User: "a", TargetIDs: []string{"r1", "r2"}, Timestamp: base.Add(2 * time.Minute)}))
	require.NoError(t, s.AppendAudit(ctx, models.AuditEntry{Action: models.ActionUpdateRecord, User: "b", TargetIDs: []string{"r3"}, Timestamp: base}))

	entries, err := s.ListAudit(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.ActionUpdateRecord, entries[0].Action)
	assert.Equal(t, models.ActionDeleteRecord, entries[1].Action)
	assert.NotEmpty(t, entries[0].ID)
}

func testStoredCleaningErrors(t *testing.T, s Store, raw rawRecords) {
	ctx := context.Background()

	raw.put(t, s, "stored1", map[string]any{
		"name":            "stored",
		"filename":        "stored.pdf",
		"record_group_id": "rg1",
		"status":          models.StatusDigitized,
		"review_status":   string(models.ReviewUnreviewed),
		"image_files":     []any{},
		"has_errors":      true,
		"dateCreated":     base,
		"attributesList": []any{
			map[string]any{
				"key":            "Well Name",
				"value":          "x",
				"raw_text":       "x",
				"cleaned":        true,
				"cleaning_error": false,
				"subattributes": []any{
					map[string]any{"key": "depth", "value": "ten", "raw_text": "ten", "cleaning_error": "not a number"},
				},
			},
			map[string]any{"key": "API", "value": nil, "raw_text": "", "cleaning_error": nil},
		},
	})

	rec, err := s.GetRecord(ctx, "stored1")
	require.NoError(t, err)
	require.Len(t, rec.AttributesList, 2)
	assert.False(t, rec.AttributesList[0].CleaningError.Failed())
	assert.True(t, rec.AttributesList[0].Cleaned)
	require.Len(t, rec.AttributesList[0].Subattributes, 1)
	assert.Equal(t, models.CleaningError("not a number"), rec.AttributesList[0].Subattributes[0].CleaningError)
	assert.False(t, rec.AttributesList[1].CleaningError.Failed())

	attrs := rec.AttributesList
	attrs[1].CleaningError = "bad api number"
	require.NoError(t, s.UpdateRecordFields(ctx, "stored1", map[string]any{models.FieldAttributesList: attrs}))
	assert.Equal(t, []any{false, "bad api number"}, raw.cleaningErrors(t, s, "stored1"))

	rec, err = s.GetRecord(ctx, "stored1")
	require.NoError(t, err)
	assert.Equal(t, models.CleaningError("bad api number"), rec.AttributesList[1].CleaningError)
	assert.Equal(t, models.CleaningError("not a number"), rec.AttributesList[0].Subattributes[0].CleaningError)

	require.NoError(t, s.BulkSetAttributes(ctx, []AttributeUpdate{
		{RecordID: "stored1", AttributesList: []models.Attribute{{Key: "Well Name"}}, UpdatedAt: base},
	}))
	assert.Equal(t, []any{false}, raw.cleaningErrors(t, s, "stored1"))
}
