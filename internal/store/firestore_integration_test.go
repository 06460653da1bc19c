//go:build integration

package store

import (
	"context"
	"fmt"
	"testing"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcfirestore "github.com/testcontainers/testcontainers-go/modules/gcloud/firestore"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:513.0.0-emulators"

// startFirestoreEmulator points the client library at a fresh emulator and
// returns a constructor for stores isolated by project id.
func startFirestoreEmulator(t *testing.T) func(t *testing.T) *FirestoreStore {
	t.Helper()
	ctx := context.Background()

	container, err := tcfirestore.Run(ctx, firestoreEmulatorImage, tcfirestore.WithProjectID("ogrre-test"))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)
	t.Setenv("FIRESTORE_EMULATOR_HOST", container.URI())

	n := 0
	return func(t *testing.T) *FirestoreStore {
		t.Helper()
		n++
		client, err := firestore.NewClient(ctx, fmt.Sprintf("ogrre-test-%d", n))
		require.NoError(t, err)
		s := NewFirestoreStore(client)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}
}

func TestFirestoreStore(t *testing.T) {
	newStore := startFirestoreEmulator(t)
	runStoreSuite(t, func(t *testing.T) Store {
		t.Helper()
		return newStore(t)
	}, firestoreRawRecords)
}

func TestFirestoreDeleteLocksKeepsTakenOverLock(t *testing.T) {
	ctx := context.Background()
	s := startFirestoreEmulator(t)(t)

	first := models.Lock{RecordID: "r1", User: "a@example.com", Timestamp: base, Token: "t1"}
	ok, err := s.CompareAndSwapLock(ctx, nil, first)
	require.NoError(t, err)
	require.True(t, ok)

	snap, err := s.locks().Doc("r1").Get(ctx)
	require.NoError(t, err)

	ok, err = s.CompareAndSwapLock(ctx, &first, models.Lock{RecordID: "r1", User: "b@example.com", Timestamp: base, Token: "t2"})
	require.NoError(t, err)
	require.True(t, ok)

	deleted, err := s.deleteLockSnapshot(ctx, snap)
	require.NoError(t, err)
	assert.False(t, deleted)

	got, err := s.GetLock(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "t2", got.Token)

	n, err := s.DeleteLocks(ctx, LockFilter{RecordID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFirestoreMoveToDeletedKeepsCleaningErrors(t *testing.T) {
	ctx := context.Background()
	s := startFirestoreEmulator(t)(t)

	id, err := s.CreateRecord(ctx, &models.Record{
		Name:          "well 9",
		RecordGroupID: "rg1",
		ImageFiles:    []string{},
		DateCreated:   base,
		AttributesList: []models.Attribute{
			{Key: "spud_date", Value: "13/45/99", CleaningError: "invalid date"},
			{Key: "permit_number", Value: int64(7)},
		},
	})
	require.NoError(t, err)
	require.NoError(t, s.MoveToDeleted(ctx, id, "a@example.com", base))

	snap, err := s.client.Collection(CollectionDeletedRecords).Doc(id).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"invalid date", false}, snapshotCleaningErrors(t, snap))
	assert.Equal(t, "a@example.com", snap.Data()["deleted_by"])
}

var firestoreRawRecords = rawRecords{
	put: func(t *testing.T, s Store, id string, doc map[string]any) {
		t.Helper()
		_, err := s.(*FirestoreStore).records().Doc(id).Set(context.Background(), doc)
		require.NoError(t, err)
	},
	cleaningErrors: func(t *testing.T, s Store, id string) []any {
		t.Helper()
		snap, err := s.(*FirestoreStore).records().Doc(id).Get(context.Background())
		require.NoError(t, err)
		return snapshotCleaningErrors(t, snap)
	},
}

func snapshotCleaningErrors(t *testing.T, snap *firestore.DocumentSnapshot) []any {
	t.Helper()
	attrs, ok := snap.Data()[models.FieldAttributesList].([]any)
	require.True(t, ok, "attributesList is %T", snap.Data()[models.FieldAttributesList])
	out := make([]any, len(attrs))
	for i, a := range attrs {
		m, ok := a.(map[string]any)
		require.True(t, ok)
		out[i] = m["cleaning_error"]
	}
	return out
}
