package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
)

type memoryState struct {
	records      map[string]models.Record
	deleted      map[string]models.DeletedRecord
	locks        map[string]models.Lock
	users        map[string]models.User
	projects     map[string]models.Project
	recordGroups map[string]models.RecordGroup
	processors   map[string]models.Processor
	history      []models.AuditEntry
}

func newMemoryState() memoryState {
	return memoryState{
		records:      map[string]models.Record{},
		deleted:      map[string]models.DeletedRecord{},
		locks:        map[string]models.Lock{},
		users:        map[string]models.User{},
		projects:     map[string]models.Project{},
		recordGroups: map[string]models.RecordGroup{},
		processors:   map[string]models.Processor{},
	}
}

// MemoryStore is a mutex-guarded in-memory Store. Values are copied on the
// way in and out so callers never share state with the store.
type MemoryStore struct {
	mu    sync.RWMutex
	state memoryState
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

func (s *MemoryStore) newID() string { return uuid.NewString() }

func cloneRecord(r models.Record) models.Record {
	c := r
	c.AttributesList = models.CloneAttributes(r.AttributesList)
	c.ImageFiles = append([]string(nil), r.ImageFiles...)
	c.DefectiveCategories = append([]string(nil), r.DefectiveCategories...)
	c.RecordNotes = append([]models.RecordNote(nil), r.RecordNotes...)
	c.ImageURLs = nil
	return c
}

func cloneProcessor(p models.Processor) models.Processor {
	c := p
	c.Attributes = cloneDefs(p.Attributes)
	return c
}

func cloneDefs(defs []models.AttributeDef) []models.AttributeDef {
	if defs == nil {
		return nil
	}
	out := make([]models.AttributeDef, len(defs))
	for i, d := range defs {
		out[i] = d
		if d.PageOrderSort != nil {
			v := *d.PageOrderSort
			out[i].PageOrderSort = &v
		}
		out[i].Subattributes = cloneDefs(d.Subattributes)
	}
	return out
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// --- records ---

func (s *MemoryStore) GetRecord(_ context.Context, id string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.records[id]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	c := cloneRecord(r)
	return &c, nil
}

func (s *MemoryStore) CreateRecord(_ context.Context, rec *models.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := rec.ID
	if id == "" {
		id = s.newID()
	}
	if _, exists := s.state.records[id]; exists {
		return "", fmt.Errorf("record %s: %w", id, ErrConflict)
	}
	c := cloneRecord(*rec)
	c.ID = id
	s.state.records[id] = c
	return id, nil
}

func (s *MemoryStore) UpdateRecordFields(_ context.Context, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.state.records[id]
	if !ok {
		return fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	for field, v := range fields {
		if err := r.SetField(field, v); err != nil {
			return err
		}
	}
	s.state.records[id] = cloneRecord(r)
	return nil
}

func (f RecordFilter) matches(r *models.Record) bool {
	return (f.RecordGroupID == "" || r.RecordGroupID == f.RecordGroupID) &&
		(f.FileHash == "" || r.FileHash == f.FileHash) &&
		(f.Filename == "" || r.Filename == f.Filename) &&
		(f.Status == "" || r.Status == f.Status)
}

// sortedGroup returns the records of a group ordered by creation time, then id.
func (s *MemoryStore) sortedGroup(recordGroupID string) []models.Record {
	var out []models.Record
	for _, r := range s.state.records {
		if r.RecordGroupID == recordGroupID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DateCreated.Equal(out[j].DateCreated) {
			return out[i].DateCreated.Before(out[j].DateCreated)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *MemoryStore) ListRecords(_ context.Context, filter RecordFilter) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Record
	for _, r := range s.state.records {
		if filter.matches(&r) {
			out = append(out, cloneRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DateCreated.Equal(out[j].DateCreated) {
			return out[i].DateCreated.Before(out[j].DateCreated)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) CountRecordsUpTo(_ context.Context, recordGroupID string, t time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.state.records {
		if r.RecordGroupID == recordGroupID && !r.DateCreated.After(t) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) NearestRecord(_ context.Context, recordGroupID string, t time.Time, before bool) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	group := s.sortedGroup(recordGroupID)
	if before {
		for i := len(group) - 1; i >= 0; i-- {
			if group[i].DateCreated.Before(t) {
				return group[i].ID, nil
			}
		}
	} else {
		for i := range group {
			if group[i].DateCreated.After(t) {
				return group[i].ID, nil
			}
		}
	}
	return "", ErrNotFound
}

func (s *MemoryStore) EdgeRecord(_ context.Context, recordGroupID string, first bool) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	group := s.sortedGroup(recordGroupID)
	if len(group) == 0 {
		return "", ErrNotFound
	}
	if first {
		return group[0].ID, nil
	}
	return group[len(group)-1].ID, nil
}

func (s *MemoryStore) BulkSetAttributes(_ context.Context, updates []AttributeUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range updates {
		if _, ok := s.state.records[u.RecordID]; !ok {
			return fmt.Errorf("record %s: %w", u.RecordID, ErrNotFound)
		}
	}
	for _, u := range updates {
		r := s.state.records[u.RecordID]
		r.AttributesList = models.CloneAttributes(u.AttributesList)
		r.HasErrors = u.HasErrors
		r.DateLastUpdated = u.UpdatedAt
		s.state.records[u.RecordID] = r
	}
	return nil
}

func (s *MemoryStore) MoveToDeleted(_ context.Context, id, deletedBy string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.state.records[id]
	if !ok {
		return fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	s.state.deleted[id] = models.DeletedRecord{Record: r, DeletedBy: deletedBy, DateDeleted: at}
	delete(s.state.records, id)
	return nil
}

// DeletedRecord returns a record previously moved out of the live collection.
func (s *MemoryStore) DeletedRecord(id string) (*models.DeletedRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.state.deleted[id]
	if !ok {
		return nil, false
	}
	d.Record = cloneRecord(d.Record)
	return &d, true
}

// --- locks ---

func (s *MemoryStore) GetLock(_ context.Context, recordID string) (*models.Lock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.state.locks[recordID]
	if !ok {
		return nil, ErrNotFound
	}
	return &l, nil
}

func (s *MemoryStore) CompareAndSwapLock(_ context.Context, expected *models.Lock, next models.Lock) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.state.locks[next.RecordID]
	switch {
	case expected == nil && exists:
		return false, nil
	case expected != nil && (!exists || current.Token != expected.Token):
		return false, nil
	}
	s.state.locks[next.RecordID] = next
	return true, nil
}

func (s *MemoryStore) DeleteLocks(_ context.Context, filter LockFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, l := range s.state.locks {
		if filter.Matches(&l) {
			delete(s.state.locks, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListLocks(_ context.Context) ([]models.Lock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Lock, 0, len(s.state.locks))
	for _, l := range s.state.locks {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordID < out[j].RecordID })
	return out, nil
}

// --- tenancy ---

// PutUser adds or replaces a user.
func (s *MemoryStore) PutUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.users[u.Email] = u
}

// PutProject adds or replaces a project.
func (s *MemoryStore) PutProject(p models.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.projects[p.ID] = p
}

// PutRecordGroup adds or replaces a record group.
func (s *MemoryStore) PutRecordGroup(g models.RecordGroup) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.recordGroups[g.ID] = g
}

func (s *MemoryStore) GetUser(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.state.users[email]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	return &u, nil
}

func (s *MemoryStore) GetProject(_ context.Context, id string) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return &p, nil
}

func (s *MemoryStore) UpdateProjectFields(_ context.Context, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.projects[id]
	if !ok {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	for field, v := range fields {
		str, isString := v.(string)
		if !isString {
			return fmt.Errorf("field %s: unexpected value type %T", field, v)
		}
		switch field {
		case models.ProjectFieldName:
			p.Name = str
		case models.ProjectFieldDescription:
			p.Description = str
		case models.ProjectFieldState:
			p.State = str
		default:
			return fmt.Errorf("%w: %s", ErrUnknownField, field)
		}
	}
	s.state.projects[id] = p
	return nil
}

func (s *MemoryStore) GetRecordGroup(_ context.Context, id string) (*models.RecordGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.state.recordGroups[id]
	if !ok {
		return nil, fmt.Errorf("record group %s: %w", id, ErrNotFound)
	}
	return &g, nil
}

func (s *MemoryStore) GetProcessor(_ context.Context, id string) (*models.Processor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.processors[id]
	if !ok {
		return nil, fmt.Errorf("processor %s: %w", id, ErrNotFound)
	}
	c := cloneProcessor(p)
	return &c, nil
}

func (s *MemoryStore) SaveProcessor(_ context.Context, p *models.Processor) error {
	if p.ID == "" {
		return fmt.Errorf("processor id must be set")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.processors[p.ID] = cloneProcessor(*p)
	return nil
}

// --- audit ---

func (s *MemoryStore) AppendAudit(_ context.Context, entry models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = s.newID()
	}
	s.state.history = append(s.state.history, entry)
	return nil
}

func (s *MemoryStore) ListAudit(_ context.Context, targetID string) ([]models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AuditEntry
	for _, e := range s.state.history {
		for _, id := range e.TargetIDs {
			if id == targetID {
				out = append(out, e)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
