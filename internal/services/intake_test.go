package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/store"
)

func newIntakeFixture(t *testing.T) (*IntakeFunction, *store.MemoryStore, *memObjects, *fakeWorkflow) {
	t.Helper()
	st := store.NewMemoryStore()
	seedGroup(st)
	objects := newMemObjects()
	wf := &fakeWorkflow{}
	f := NewIntake(st, objects, wf, nil)
	f.now = func() time.Time { return base }
	return f, st, objects, wf
}

func TestParseIntakeObject(t *testing.T) {
	t.Parallel()

	obj, err := ParseIntakeObject("intake/rg1/alice@example.com/Smith 1 (scan).png")
	require.NoError(t, err)
	assert.Equal(t, IntakeObject{RecordGroupID: "rg1", Uploader: "alice@example.com", Filename: "Smith 1 (scan).png"}, obj)

	for _, name := range []string{"uploads/rg1/r1/00001.pdf", "intake/rg1/file.pdf", "intake//u/f.pdf", "intake/rg1/u/"} {
		_, err := ParseIntakeObject(name)
		assert.ErrorIs(t, err, ErrNotIntakeObject, name)
	}
}

func TestIntakeSinglePageUpload(t *testing.T) {
	t.Parallel()

	f, st, objects, wf := newIntakeFixture(t)
	objects.put("intake/rg1/alice@example.com/smith-1.png", []byte("png bytes"))

	id, err := f.Process(context.Background(), GCSEvent{Bucket: "docs", Name: "intake/rg1/alice@example.com/smith-1.png"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := st.GetRecord(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "smith-1", rec.Name)
	assert.Equal(t, "p1", rec.ProjectID)
	assert.Equal(t, models.StatusProcessing, rec.Status)
	assert.Equal(t, models.ReviewUnreviewed, rec.ReviewStatus)
	assert.Equal(t, "alice@example.com", rec.Uploader)
	assert.Len(t, rec.FileHash, 64)
	assert.Equal(t, 1, rec.PageCount)
	assert.Equal(t, []string{"uploads/rg1/" + id + "/00001.png"}, rec.ImageFiles)
	assert.Equal(t, "executions/e1", rec.WorkflowExecutionID)

	stored, ok := objects.get(rec.ImageFiles[0])
	require.True(t, ok)
	assert.Equal(t, "png bytes", string(stored))

	require.Len(t, wf.args, 1)
	assert.Equal(t, models.WorkflowArgument{RecordID: id, RecordGroupID: "rg1", PageCount: 1}, wf.args[0])

	history, err := st.ListAudit(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.ActionCreateRecord, history[0].Action)
}

func TestIntakeSkipsDuplicates(t *testing.T) {
	t.Parallel()

	f, st, objects, wf := newIntakeFixture(t)
	objects.put("intake/rg1/alice/a.png", []byte("same"))
	objects.put("intake/rg1/bob/b.png", []byte("same"))
	objects.put("intake/rg1/bob/a.png", []byte("different"))

	first, err := f.Process(context.Background(), GCSEvent{Name: "intake/rg1/alice/a.png"})
	require.NoError(t, err)
	require.NotEmpty(t, first)

	byHash, err := f.Process(context.Background(), GCSEvent{Name: "intake/rg1/bob/b.png"})
	require.NoError(t, err)
	assert.Empty(t, byHash)

	byName, err := f.Process(context.Background(), GCSEvent{Name: "intake/rg1/bob/a.png"})
	require.NoError(t, err)
	assert.Empty(t, byName)

	recs, err := st.ListRecords(context.Background(), store.RecordFilter{RecordGroupID: "rg1"})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Len(t, wf.args, 1)
}

func TestIntakeIgnoresOtherObjects(t *testing.T) {
	t.Parallel()

	f, _, _, wf := newIntakeFixture(t)
	id, err := f.Process(context.Background(), GCSEvent{Name: "uploads/rg1/r1/00001.pdf"})
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Empty(t, wf.args)
}

func TestIntakeUnknownGroup(t *testing.T) {
	t.Parallel()

	f, _, objects, _ := newIntakeFixture(t)
	objects.put("intake/missing/alice/a.png", []byte("x"))
	_, err := f.Process(context.Background(), GCSEvent{Name: "intake/missing/alice/a.png"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestIntakeFailuresMarkRecord(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		object  string
		content string
		setup   func(*memObjects, *fakeWorkflow)
		wantErr string
	}{
		{
			name:    "invalid pdf",
			object:  "intake/rg1/alice/broken.pdf",
			content: "this is not a pdf",
			wantErr: "failed to validate/optimize PDF",
		},
		{
			name:    "upload failure",
			object:  "intake/rg1/alice/scan.png",
			content: "png",
			setup:   func(m *memObjects, _ *fakeWorkflow) { m.failWrite = true },
			wantErr: "one or more pages failed to upload",
		},
		{
			name:    "workflow failure",
			object:  "intake/rg1/alice/scan.png",
			content: "png",
			setup:   func(_ *memObjects, w *fakeWorkflow) { w.err = errors.New("quota") },
			wantErr: "failed to trigger workflow execution",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f, st, objects, wf := newIntakeFixture(t)
			objects.put(tt.object, []byte(tt.content))
			if tt.setup != nil {
				tt.setup(objects, wf)
			}

			id, err := f.Process(context.Background(), GCSEvent{Name: tt.object})
			require.ErrorContains(t, err, tt.wantErr)
			require.NotEmpty(t, id)

			rec, err := st.GetRecord(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, models.StatusError, rec.Status)
			assert.Contains(t, rec.ErrorDetails, tt.wantErr)
		})
	}
}
