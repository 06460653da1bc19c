package access

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/cleaning"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/lock"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/store"
)

const (
	alice    = "alice@example.com"
	bob      = "bob@example.com"
	lead     = "lead@example.com"
	outsider = "outsider@example.com"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc     *Service
	store   *store.MemoryStore
	clock   *fakeClock
	records []string
}

func ptr[T any](v T) *T { return &v }

func testProcessor() *models.Processor {
	return &models.Processor{
		ID:   "proc1",
		Name: "Well completion report",
		Attributes: []models.AttributeDef{
			{Name: "permit_number", PageOrderSort: ptr(1.0), CleaningFunction: "string_to_int"},
			{Name: "spud_date", PageOrderSort: ptr(2.0), CleaningFunction: "clean_date"},
			{Name: "plugged", PageOrderSort: ptr(3.0), CleaningFunction: "clean_bool"},
			{Name: "casing", PageOrderSort: ptr(4.0), Subattributes: []models.AttributeDef{
				{Name: "size", CleaningFunction: "convert_hole_size_to_decimal"},
			}},
		},
	}
}

// extracted returns attributes as the extraction pipeline leaves them.
func extracted() []models.Attribute {
	return []models.Attribute{
		{Key: "permit_number", Value: "1,234", RawText: "1,234", AIConfidence: ptr(0.9), Confidence: ptr(0.9)},
		{Key: "spud_date", Value: "3/7/85", RawText: "3/7/85", AIConfidence: ptr(0.8), Confidence: ptr(0.8)},
		{Key: "plugged", Value: "x", RawText: "x", AIConfidence: ptr(0.7), Confidence: ptr(0.7)},
		{Key: "casing", Value: "7 7/8 casing", RawText: "7 7/8 casing", Subattributes: []models.Attribute{
			{Key: "size", Value: "7 7/8", RawText: "7 7/8", IsSubattribute: true, TopLevelAttribute: "casing"},
		}},
	}
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}

	st := store.NewMemoryStore()
	st.PutUser(models.User{Email: alice, DefaultTeam: "t1", Roles: models.UserRoles{Team: []string{models.RoleReviewer}}})
	st.PutUser(models.User{Email: bob, DefaultTeam: "t1", Roles: models.UserRoles{Team: []string{models.RoleReviewer}}})
	st.PutUser(models.User{Email: lead, DefaultTeam: "t1", Roles: models.UserRoles{Team: []string{models.RoleTeamLead}}})
	st.PutUser(models.User{Email: outsider, DefaultTeam: "t2", Roles: models.UserRoles{Team: []string{models.RoleTeamLead}}})
	st.PutProject(models.Project{ID: "p1", Name: "Osage County", Team: "t1"})
	st.PutRecordGroup(models.RecordGroup{ID: "rg1", Name: "Box 12", ProjectID: "p1", ProcessorID: "proc1"})
	require.NoError(t, st.SaveProcessor(ctx, testProcessor()))

	var ids []string
	for i := range 3 {
		id, err := st.CreateRecord(ctx, &models.Record{
			Name:           "record",
			RecordGroupID:  "rg1",
			ProjectID:      "p1",
			Status:         models.StatusDigitized,
			ReviewStatus:   models.ReviewUnreviewed,
			ImageFiles:     []string{},
			AttributesList: extracted(),
			DateCreated:    clock.Now().Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	locks := lock.NewManager(st, lock.WithClock(clock.Now))
	cleaner := cleaning.NewCleaner(nil, cleaning.WithClock(clock.Now))
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	svc := NewService(st, locks, cleaner, opts...)
	return &fixture{svc: svc, store: st, clock: clock, records: ids}
}

func (f *fixture) record(t *testing.T, id string) *models.Record {
	t.Helper()
	rec, err := f.store.GetRecord(context.Background(), id)
	require.NoError(t, err)
	return rec
}
