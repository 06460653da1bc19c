package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
)

// FirestoreStore is a Store backed by Cloud Firestore. Document ids are the
// model ids; lock documents are keyed by record id.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore wraps an existing client.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

// Close closes the underlying client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (s *FirestoreStore) getDoc(ctx context.Context, collection, id string, out any, what string) error {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if isNotFound(err) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load %s %s: %w", what, id, err)
	}
	if err := snap.DataTo(out); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", what, id, err)
	}
	return nil
}

// --- records ---

func (s *FirestoreStore) records() *firestore.CollectionRef {
	return s.client.Collection(CollectionRecords)
}

func recordFromSnapshot(snap *firestore.DocumentSnapshot) (models.Record, error) {
	var doc firestoreRecord
	if err := snap.DataTo(&doc); err != nil {
		return models.Record{}, fmt.Errorf("failed to decode record %s: %w", snap.Ref.ID, err)
	}
	return doc.record(snap.Ref.ID)
}

func (s *FirestoreStore) GetRecord(ctx context.Context, id string) (*models.Record, error) {
	var doc firestoreRecord
	if err := s.getDoc(ctx, CollectionRecords, id, &doc, "record"); err != nil {
		return nil, err
	}
	rec, err := doc.record(id)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *FirestoreStore) CreateRecord(ctx context.Context, rec *models.Record) (string, error) {
	ref := s.records().NewDoc()
	if rec.ID != "" {
		ref = s.records().Doc(rec.ID)
	}
	if _, err := ref.Create(ctx, newFirestoreRecord(rec)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return "", fmt.Errorf("record %s: %w", ref.ID, ErrConflict)
		}
		return "", fmt.Errorf("failed to create record: %w", err)
	}
	return ref.ID, nil
}

func toUpdates(fields map[string]any) []firestore.Update {
	updates := make([]firestore.Update, 0, len(fields))
	for path, v := range encodeFields(fields) {
		updates = append(updates, firestore.Update{Path: path, Value: v})
	}
	return updates
}

func (s *FirestoreStore) UpdateRecordFields(ctx context.Context, id string, fields map[string]any) error {
	if _, err := s.records().Doc(id).Update(ctx, toUpdates(fields)); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("record %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to update record %s: %w", id, err)
	}
	return nil
}

func (s *FirestoreStore) ListRecords(ctx context.Context, filter RecordFilter) ([]models.Record, error) {
	q := s.records().Query
	if filter.RecordGroupID != "" {
		q = q.Where("record_group_id", "==", filter.RecordGroupID)
	}
	if filter.FileHash != "" {
		q = q.Where("file_hash", "==", filter.FileHash)
	}
	if filter.Filename != "" {
		q = q.Where("filename", "==", filter.Filename)
	}
	if filter.Status != "" {
		q = q.Where("status", "==", filter.Status)
	}
	q = q.OrderBy("dateCreated", firestore.Asc)
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	docs, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	out := make([]models.Record, 0, len(docs))
	for _, doc := range docs {
		rec, err := recordFromSnapshot(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *FirestoreStore) CountRecordsUpTo(ctx context.Context, recordGroupID string, t time.Time) (int, error) {
	q := s.records().
		Where("record_group_id", "==", recordGroupID).
		Where("dateCreated", "<=", t)
	results, err := q.NewAggregationQuery().WithCount("count").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	v, ok := results["count"].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("unexpected count result type %T", results["count"])
	}
	return int(v.GetIntegerValue()), nil
}

func (s *FirestoreStore) firstID(ctx context.Context, q firestore.Query, what string) (string, error) {
	docs, err := q.Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return "", fmt.Errorf("failed to find %s record: %w", what, err)
	}
	if len(docs) == 0 {
		return "", ErrNotFound
	}
	return docs[0].Ref.ID, nil
}

func (s *FirestoreStore) NearestRecord(ctx context.Context, recordGroupID string, t time.Time, before bool) (string, error) {
	q := s.records().Where("record_group_id", "==", recordGroupID)
	if before {
		return s.firstID(ctx, q.Where("dateCreated", "<", t).OrderBy("dateCreated", firestore.Desc), "previous")
	}
	return s.firstID(ctx, q.Where("dateCreated", ">", t).OrderBy("dateCreated", firestore.Asc), "next")
}

func (s *FirestoreStore) EdgeRecord(ctx context.Context, recordGroupID string, first bool) (string, error) {
	dir := firestore.Desc
	if first {
		dir = firestore.Asc
	}
	q := s.records().Where("record_group_id", "==", recordGroupID).OrderBy("dateCreated", dir)
	return s.firstID(ctx, q, "edge")
}

func (s *FirestoreStore) BulkSetAttributes(ctx context.Context, updates []AttributeUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(updates))
	for _, u := range updates {
		job, err := bw.Update(s.records().Doc(u.RecordID), []firestore.Update{
			{Path: models.FieldAttributesList, Value: toFirestoreAttributes(u.AttributesList)},
			{Path: models.FieldHasErrors, Value: u.HasErrors},
			{Path: models.FieldDateLastUpdated, Value: u.UpdatedAt},
		})
		if err != nil {
			bw.End()
			return fmt.Errorf("failed to enqueue update for record %s: %w", u.RecordID, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	var errs []error
	for i, job := range jobs {
		if _, err := job.Results(); err != nil {
			errs = append(errs, fmt.Errorf("record %s: %w", updates[i].RecordID, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("bulk attribute update failed for %d records: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func (s *FirestoreStore) MoveToDeleted(ctx context.Context, id, deletedBy string, at time.Time) error {
	ref := s.records().Doc(id)
	deletedRef := s.client.Collection(CollectionDeletedRecords).Doc(id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		rec, err := recordFromSnapshot(snap)
		if err != nil {
			return err
		}
		deleted := firestoreDeletedRecord{
			Record:         rec,
			AttributesList: toFirestoreAttributes(rec.AttributesList),
			DeletedBy:      deletedBy,
			DateDeleted:    at,
		}
		if err := tx.Set(deletedRef, deleted); err != nil {
			return err
		}
		return tx.Delete(ref)
	})
	if isNotFound(err) {
		return fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to move record %s to deleted records: %w", id, err)
	}
	return nil
}

// --- locks ---

func (s *FirestoreStore) locks() *firestore.CollectionRef {
	return s.client.Collection(CollectionLocks)
}

func (s *FirestoreStore) GetLock(ctx context.Context, recordID string) (*models.Lock, error) {
	var l models.Lock
	if err := s.getDoc(ctx, CollectionLocks, recordID, &l, "lock"); err != nil {
		return nil, err
	}
	return &l, nil
}

// CompareAndSwapLock reads and writes the lock document in one transaction.
func (s *FirestoreStore) CompareAndSwapLock(ctx context.Context, expected *models.Lock, next models.Lock) (bool, error) {
	ref := s.locks().Doc(next.RecordID)
	var swapped bool
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		swapped = false
		snap, err := tx.Get(ref)
		if err != nil && !isNotFound(err) {
			return err
		}
		exists := err == nil && snap.Exists()
		if expected == nil && exists {
			return nil
		}
		if expected != nil {
			if !exists {
				return nil
			}
			var current models.Lock
			if err := snap.DataTo(&current); err != nil {
				return err
			}
			if current.Token != expected.Token {
				return nil
			}
		}
		swapped = true
		return tx.Set(ref, next)
	})
	if err != nil {
		return false, fmt.Errorf("lock transaction failed for record %s: %w", next.RecordID, err)
	}
	return swapped, nil
}

func (s *FirestoreStore) DeleteLocks(ctx context.Context, filter LockFilter) (int, error) {
	if filter.IsEmpty() {
		return 0, nil
	}
	candidates := map[string]*firestore.DocumentSnapshot{}
	collect := func(q firestore.Query) error {
		docs, err := q.Documents(ctx).GetAll()
		if err != nil {
			return err
		}
		for _, doc := range docs {
			candidates[doc.Ref.ID] = doc
		}
		return nil
	}

	if filter.RecordID != "" {
		snap, err := s.locks().Doc(filter.RecordID).Get(ctx)
		switch {
		case err == nil:
			candidates[filter.RecordID] = snap
		case !isNotFound(err):
			return 0, fmt.Errorf("failed to load lock %s: %w", filter.RecordID, err)
		}
	}
	if filter.User != "" {
		if err := collect(s.locks().Where("user", "==", filter.User)); err != nil {
			return 0, fmt.Errorf("failed to query locks for user: %w", err)
		}
	}
	if filter.RecordID == "" && filter.User == "" {
		if err := collect(s.locks().Where("timestamp", "<", filter.OlderThan)); err != nil {
			return 0, fmt.Errorf("failed to query expired locks: %w", err)
		}
	}

	n := 0
	for id, snap := range candidates {
		var l models.Lock
		if err := snap.DataTo(&l); err != nil {
			return n, fmt.Errorf("failed to decode lock %s: %w", id, err)
		}
		if !filter.Matches(&l) {
			continue
		}
		deleted, err := s.deleteLockSnapshot(ctx, snap)
		if err != nil {
			return n, err
		}
		if deleted {
			n++
		}
	}
	return n, nil
}

// deleteLockSnapshot deletes the lock only if it has not been written since
// snap was read. A lock taken over in between is left alone.
func (s *FirestoreStore) deleteLockSnapshot(ctx context.Context, snap *firestore.DocumentSnapshot) (bool, error) {
	_, err := snap.Ref.Delete(ctx, firestore.LastUpdateTime(snap.UpdateTime))
	switch status.Code(err) {
	case codes.OK:
		return true, nil
	case codes.FailedPrecondition, codes.NotFound:
		slog.Debug("Lock changed before delete, keeping it.", "lockId", snap.Ref.ID)
		return false, nil
	}
	return false, fmt.Errorf("failed to delete lock %s: %w", snap.Ref.ID, err)
}

func (s *FirestoreStore) ListLocks(ctx context.Context) ([]models.Lock, error) {
	iter := s.locks().OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx)
	defer iter.Stop()
	var out []models.Lock
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate locks: %w", err)
		}
		var l models.Lock
		if err := doc.DataTo(&l); err != nil {
			slog.Warn("Skipping undecodable lock document.", "lockId", doc.Ref.ID, "error", err)
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// --- tenancy ---

func (s *FirestoreStore) GetUser(ctx context.Context, email string) (*models.User, error) {
	docs, err := s.client.Collection(CollectionUsers).Where("email", "==", email).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query user %s: %w", email, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	var u models.User
	if err := docs[0].DataTo(&u); err != nil {
		return nil, fmt.Errorf("failed to decode user %s: %w", email, err)
	}
	return &u, nil
}

func (s *FirestoreStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	var p models.Project
	if err := s.getDoc(ctx, CollectionProjects, id, &p, "project"); err != nil {
		return nil, err
	}
	p.ID = id
	return &p, nil
}

func (s *FirestoreStore) UpdateProjectFields(ctx context.Context, id string, fields map[string]any) error {
	if _, err := s.client.Collection(CollectionProjects).Doc(id).Update(ctx, toUpdates(fields)); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("project %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to update project %s: %w", id, err)
	}
	return nil
}

func (s *FirestoreStore) GetRecordGroup(ctx context.Context, id string) (*models.RecordGroup, error) {
	var g models.RecordGroup
	if err := s.getDoc(ctx, CollectionRecordGroups, id, &g, "record group"); err != nil {
		return nil, err
	}
	g.ID = id
	return &g, nil
}

func (s *FirestoreStore) GetProcessor(ctx context.Context, id string) (*models.Processor, error) {
	var p models.Processor
	if err := s.getDoc(ctx, CollectionProcessors, id, &p, "processor"); err != nil {
		return nil, err
	}
	p.ID = id
	return &p, nil
}

func (s *FirestoreStore) SaveProcessor(ctx context.Context, p *models.Processor) error {
	if p.ID == "" {
		return fmt.Errorf("processor id must be set")
	}
	if _, err := s.client.Collection(CollectionProcessors).Doc(p.ID).Set(ctx, p); err != nil {
		return fmt.Errorf("failed to save processor %s: %w", p.ID, err)
	}
	return nil
}

// --- audit ---

func (s *FirestoreStore) AppendAudit(ctx context.Context, entry models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.Delta = encodeFields(entry.Delta)
	entry.PreviousState = encodeFields(entry.PreviousState)
	if _, err := s.client.Collection(CollectionHistory).Doc(entry.ID).Set(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

func (s *FirestoreStore) ListAudit(ctx context.Context, targetID string) ([]models.AuditEntry, error) {
	docs, err := s.client.Collection(CollectionHistory).
		Where("target_ids", "array-contains", targetID).
		OrderBy("timestamp", firestore.Asc).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	out := make([]models.AuditEntry, 0, len(docs))
	for _, doc := range docs {
		var e models.AuditEntry
		if err := doc.DataTo(&e); err != nil {
			return nil, fmt.Errorf("failed to decode audit entry %s: %w", doc.Ref.ID, err)
		}
		e.ID = doc.Ref.ID
		out = append(out, e)
	}
	return out, nil
}

var _ Store = (*FirestoreStore)(nil)
