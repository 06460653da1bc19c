package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
)

// MongoStore is a Store backed by a MongoDB database.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore connects to uri, pings the server and ensures indexes.
func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := &MongoStore{client: client, db: client.Database(dbName)}
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	slog.Info("Connected to MongoDB.", "database", dbName)
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(CollectionRecords).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "record_group_id", Value: 1}, {Key: "dateCreated", Value: 1}}},
		{Keys: bson.D{{Key: "record_group_id", Value: 1}, {Key: "file_hash", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create record indexes: %w", err)
	}
	_, err = s.db.Collection(CollectionLocks).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create lock indexes: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) findOne(ctx context.Context, collection string, filter any, out any, what string) error {
	err := s.db.Collection(collection).FindOne(ctx, filter).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", what, err)
	}
	return nil
}

// --- records ---

func (s *MongoStore) GetRecord(ctx context.Context, id string) (*models.Record, error) {
	var rec models.Record
	if err := s.findOne(ctx, CollectionRecords, bson.M{"_id": id}, &rec, "record "+id); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *MongoStore) CreateRecord(ctx context.Context, rec *models.Record) (string, error) {
	doc := *rec
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if _, err := s.db.Collection(CollectionRecords).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("record %s: %w", doc.ID, ErrConflict)
		}
		return "", fmt.Errorf("failed to insert record: %w", err)
	}
	return doc.ID, nil
}

func (s *MongoStore) UpdateRecordFields(ctx context.Context, id string, fields map[string]any) error {
	res, err := s.db.Collection(CollectionRecords).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("failed to update record %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	return nil
}

func recordFilterDoc(f RecordFilter) bson.M {
	filter := bson.M{}
	if f.RecordGroupID != "" {
		filter["record_group_id"] = f.RecordGroupID
	}
	if f.FileHash != "" {
		filter["file_hash"] = f.FileHash
	}
	if f.Filename != "" {
		filter["filename"] = f.Filename
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	return filter
}

func (s *MongoStore) ListRecords(ctx context.Context, filter RecordFilter) ([]models.Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "dateCreated", Value: 1}, {Key: "_id", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	cursor, err := s.db.Collection(CollectionRecords).Find(ctx, recordFilterDoc(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	var out []models.Record
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	return out, nil
}

func (s *MongoStore) CountRecordsUpTo(ctx context.Context, recordGroupID string, t time.Time) (int, error) {
	n, err := s.db.Collection(CollectionRecords).CountDocuments(ctx, bson.M{
		"record_group_id": recordGroupID,
		"dateCreated":     bson.M{"$lte": t},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return int(n), nil
}

type idOnly struct {
	ID string `bson:"_id"`
}

func (s *MongoStore) firstID(ctx context.Context, filter bson.M, direction int, what string) (string, error) {
	opts := options.FindOne().
		SetSort(bson.D{{Key: "dateCreated", Value: direction}, {Key: "_id", Value: direction}}).
		SetProjection(bson.M{"_id": 1})
	var doc idOnly
	err := s.db.Collection(CollectionRecords).FindOne(ctx, filter, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to find %s record: %w", what, err)
	}
	return doc.ID, nil
}

func (s *MongoStore) NearestRecord(ctx context.Context, recordGroupID string, t time.Time, before bool) (string, error) {
	if before {
		return s.firstID(ctx, bson.M{"record_group_id": recordGroupID, "dateCreated": bson.M{"$lt": t}}, -1, "previous")
	}
	return s.firstID(ctx, bson.M{"record_group_id": recordGroupID, "dateCreated": bson.M{"$gt": t}}, 1, "next")
}

func (s *MongoStore) EdgeRecord(ctx context.Context, recordGroupID string, first bool) (string, error) {
	if first {
		return s.firstID(ctx, bson.M{"record_group_id": recordGroupID}, 1, "first")
	}
	return s.firstID(ctx, bson.M{"record_group_id": recordGroupID}, -1, "last")
}

func (s *MongoStore) BulkSetAttributes(ctx context.Context, updates []AttributeUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(updates))
	for _, u := range updates {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": u.RecordID}).
			SetUpdate(bson.M{"$set": bson.M{
				models.FieldAttributesList:  u.AttributesList,
				models.FieldHasErrors:       u.HasErrors,
				models.FieldDateLastUpdated: u.UpdatedAt,
			}}))
	}
	res, err := s.db.Collection(CollectionRecords).BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("bulk attribute update failed: %w", err)
	}
	slog.Info("Bulk attribute update complete.", "matched", res.MatchedCount, "modified", res.ModifiedCount)
	return nil
}

func (s *MongoStore) MoveToDeleted(ctx context.Context, id, deletedBy string, at time.Time) error {
	rec, err := s.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	deleted := models.DeletedRecord{Record: *rec, DeletedBy: deletedBy, DateDeleted: at}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.db.Collection(CollectionDeletedRecords).ReplaceOne(ctx, bson.M{"_id": id}, deleted, opts); err != nil {
		return fmt.Errorf("failed to copy record %s to deleted records: %w", id, err)
	}
	if _, err := s.db.Collection(CollectionRecords).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return nil
}

// --- locks ---

func (s *MongoStore) GetLock(ctx context.Context, recordID string) (*models.Lock, error) {
	var l models.Lock
	if err := s.findOne(ctx, CollectionLocks, bson.M{"_id": recordID}, &l, "lock "+recordID); err != nil {
		return nil, err
	}
	return &l, nil
}

// CompareAndSwapLock relies on _id uniqueness for creation and on a token
// filter for replacement; both are single-document atomic operations.
func (s *MongoStore) CompareAndSwapLock(ctx context.Context, expected *models.Lock, next models.Lock) (bool, error) {
	locks := s.db.Collection(CollectionLocks)
	if expected == nil {
		_, err := locks.InsertOne(ctx, next)
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to insert lock: %w", err)
		}
		return true, nil
	}
	res, err := locks.ReplaceOne(ctx, bson.M{"_id": next.RecordID, "token": expected.Token}, next)
	if err != nil {
		return false, fmt.Errorf("failed to replace lock: %w", err)
	}
	return res.MatchedCount == 1, nil
}

func lockFilterDoc(f LockFilter) bson.M {
	filter := bson.M{}
	var or bson.A
	if f.RecordID != "" {
		or = append(or, bson.M{"_id": f.RecordID})
	}
	if f.User != "" {
		or = append(or, bson.M{"user": f.User})
	}
	if len(or) > 0 {
		filter["$or"] = or
	}
	if f.ExceptRecordID != "" {
		filter["_id"] = bson.M{"$ne": f.ExceptRecordID}
	}
	if !f.OlderThan.IsZero() {
		filter["timestamp"] = bson.M{"$lt": f.OlderThan}
	}
	return filter
}

func (s *MongoStore) DeleteLocks(ctx context.Context, filter LockFilter) (int, error) {
	if filter.IsEmpty() {
		return 0, nil
	}
	res, err := s.db.Collection(CollectionLocks).DeleteMany(ctx, lockFilterDoc(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to delete locks: %w", err)
	}
	return int(res.DeletedCount), nil
}

func (s *MongoStore) ListLocks(ctx context.Context) ([]models.Lock, error) {
	cursor, err := s.db.Collection(CollectionLocks).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query locks: %w", err)
	}
	var out []models.Lock
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode locks: %w", err)
	}
	return out, nil
}

// --- tenancy ---

func (s *MongoStore) GetUser(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.findOne(ctx, CollectionUsers, bson.M{"email": email}, &u, "user "+email); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *MongoStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	var p models.Project
	if err := s.findOne(ctx, CollectionProjects, bson.M{"_id": id}, &p, "project "+id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *MongoStore) UpdateProjectFields(ctx context.Context, id string, fields map[string]any) error {
	res, err := s.db.Collection(CollectionProjects).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("failed to update project %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *MongoStore) GetRecordGroup(ctx context.Context, id string) (*models.RecordGroup, error) {
	var g models.RecordGroup
	if err := s.findOne(ctx, CollectionRecordGroups, bson.M{"_id": id}, &g, "record group "+id); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *MongoStore) GetProcessor(ctx context.Context, id string) (*models.Processor, error) {
	var p models.Processor
	if err := s.findOne(ctx, CollectionProcessors, bson.M{"_id": id}, &p, "processor "+id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *MongoStore) SaveProcessor(ctx context.Context, p *models.Processor) error {
	if p.ID == "" {
		return fmt.Errorf("processor id must be set")
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.db.Collection(CollectionProcessors).ReplaceOne(ctx, bson.M{"_id": p.ID}, p, opts); err != nil {
		return fmt.Errorf("failed to save processor %s: %w", p.ID, err)
	}
	return nil
}

// --- audit ---

func (s *MongoStore) AppendAudit(ctx context.Context, entry models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if _, err := s.db.Collection(CollectionHistory).InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

func (s *MongoStore) ListAudit(ctx context.Context, targetID string) ([]models.AuditEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cursor, err := s.db.Collection(CollectionHistory).Find(ctx, bson.M{"target_ids": targetID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	var out []models.AuditEntry
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return out, nil
}

var _ Store = (*MongoStore)(nil)
