// Package store persists records, locks, tenancy data and audit entries.
//
// Three backends implement Store: an in-memory store for tests and local
// runs, Firestore, and MongoDB. All of them implement CompareAndSwapLock
// atomically, so two processes racing for the same record cannot both win.
package store

import (
	"context"
	"time"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
)

// Collection names shared by the document backends.
const (
	CollectionRecords        = "records"
	CollectionDeletedRecords = "deleted_records"
	CollectionLocks          = "record_locks"
	CollectionUsers          = "users"
	CollectionProjects       = "projects"
	CollectionRecordGroups   = "record_groups"
	CollectionProcessors     = "processors"
	CollectionHistory        = "history"
)

// RecordFilter selects records by field equality. Empty fields are ignored.
type RecordFilter struct {
	RecordGroupID string
	FileHash      string
	Filename      string
	Status        string
	Limit         int
}

// AttributeUpdate is one entry of a bulk attribute rewrite.
type AttributeUpdate struct {
	RecordID       string
	AttributesList []models.Attribute
	HasErrors      bool
	UpdatedAt      time.Time
}

// RecordStore holds records and their deleted counterparts.
type RecordStore interface {
	GetRecord(ctx context.Context, id string) (*models.Record, error)
	CreateRecord(ctx context.Context, rec *models.Record) (string, error)
	// UpdateRecordFields sets only the given top-level fields.
	UpdateRecordFields(ctx context.Context, id string, fields map[string]any) error
	ListRecords(ctx context.Context, filter RecordFilter) ([]models.Record, error)
	// CountRecordsUpTo counts records of a group created at or before t.
	CountRecordsUpTo(ctx context.Context, recordGroupID string, t time.Time) (int, error)
	// NearestRecord returns the id of the closest record created strictly
	// before (or after) t, or ErrNotFound.
	NearestRecord(ctx context.Context, recordGroupID string, t time.Time, before bool) (string, error)
	// EdgeRecord returns the id of the first (or last) record of a group.
	EdgeRecord(ctx context.Context, recordGroupID string, first bool) (string, error)
	BulkSetAttributes(ctx context.Context, updates []AttributeUpdate) error
	// MoveToDeleted removes a record from the live collection and keeps a copy
	// in the deleted collection.
	MoveToDeleted(ctx context.Context, id, deletedBy string, at time.Time) error
}

// LockFilter selects locks held on RecordID or by User. ExceptRecordID and
// OlderThan narrow the match further. A filter with neither RecordID, User
// nor OlderThan matches nothing.
type LockFilter struct {
	RecordID       string
	User           string
	ExceptRecordID string
	OlderThan      time.Time
}

// IsEmpty reports whether the filter matches nothing.
func (f LockFilter) IsEmpty() bool {
	return f.RecordID == "" && f.User == "" && f.OlderThan.IsZero()
}

// Matches reports whether l is selected by the filter.
func (f LockFilter) Matches(l *models.Lock) bool {
	if f.IsEmpty() {
		return false
	}
	if f.ExceptRecordID != "" && l.RecordID == f.ExceptRecordID {
		return false
	}
	if !f.OlderThan.IsZero() && !l.Timestamp.Before(f.OlderThan) {
		return false
	}
	if f.RecordID == "" && f.User == "" {
		return true
	}
	return (f.RecordID != "" && l.RecordID == f.RecordID) || (f.User != "" && l.User == f.User)
}

// LockStore holds record locks.
type LockStore interface {
	GetLock(ctx context.Context, recordID string) (*models.Lock, error)
	// CompareAndSwapLock writes next only if the stored lock for
	// next.RecordID still has expected's token, or is absent when expected
	// is nil. It reports whether the write happened.
	CompareAndSwapLock(ctx context.Context, expected *models.Lock, next models.Lock) (bool, error)
	// DeleteLocks removes matching locks and returns how many were removed.
	DeleteLocks(ctx context.Context, filter LockFilter) (int, error)
	ListLocks(ctx context.Context) ([]models.Lock, error)
}

// TenancyStore holds users, projects, record groups and processors.
type TenancyStore interface {
	GetUser(ctx context.Context, email string) (*models.User, error)
	GetProject(ctx context.Context, id string) (*models.Project, error)
	UpdateProjectFields(ctx context.Context, id string, fields map[string]any) error
	GetRecordGroup(ctx context.Context, id string) (*models.RecordGroup, error)
	GetProcessor(ctx context.Context, id string) (*models.Processor, error)
	SaveProcessor(ctx context.Context, p *models.Processor) error
}

// AuditStore holds the mutation history.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry models.AuditEntry) error
	ListAudit(ctx context.Context, targetID string) ([]models.AuditEntry, error)
}

// Store is everything the access layer needs from a backend.
type Store interface {
	RecordStore
	LockStore
	TenancyStore
	AuditStore
	Close() error
}
