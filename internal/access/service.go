// Package access is the record API's business layer: fetching records with
// a lock, applying review updates, and batch re-cleaning. Every operation
// takes plain structs and is independent of the transport.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/cleaning"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/lock"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/metrics"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/store"
)

var (
	// ErrRecordUnavailable covers both a missing record and one the user
	// may not see, so callers cannot probe for existence.
	ErrRecordUnavailable = errors.New("record not found or access denied")

	// ErrRecordLocked is returned when another user holds the record lock.
	ErrRecordLocked = errors.New("record is locked by another user")

	// ErrPermissionDenied is returned when the user's roles do not allow the
	// operation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUnsupportedScope is returned by CleanCollection for scopes it does
	// not batch over.
	ErrUnsupportedScope = errors.New("unsupported clean scope")

	// ErrInvalidUpdate is returned when an update is missing the data its
	// type requires.
	ErrInvalidUpdate = errors.New("invalid update")
)

// Messages shown to a user who receives a record read-only.
const (
	MsgLockedByTeamMember   = "This record is currently being reviewed by a team member."
	MsgAwaitingVerification = "This record is awaiting verification by a team lead."
	msgVerifiedFormat       = "This record has been verified as %s, and can only be edited by a team lead."
)

// ImageResolver turns a record's stored image paths into URLs a browser can load.
type ImageResolver interface {
	ImageURLs(ctx context.Context, rec *models.Record) ([]string, error)
}

// Service implements the record operations on top of a Store.
type Service struct {
	store       store.Store
	locks       *lock.Manager
	cleaner     *cleaning.Cleaner
	images      ImageResolver
	keepUnknown bool
	metrics     *metrics.RecordMetrics
	schemas     *cache.Cache
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithImageResolver sets the image URL resolver used by FetchRecordData.
func WithImageResolver(r ImageResolver) Option {
	return func(s *Service) { s.images = r }
}

// WithKeepUnknownAttributes controls whether attributes missing from the
// schema survive reconciliation.
func WithKeepUnknownAttributes(keep bool) Option {
	return func(s *Service) { s.keepUnknown = keep }
}

// WithMetrics records update outcomes.
func WithMetrics(m *metrics.RecordMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the clock used for update timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires a Service. Unknown attributes are kept by default.
func NewService(st store.Store, locks *lock.Manager, cleaner *cleaning.Cleaner, opts ...Option) *Service {
	s := &Service{
		store:       st,
		locks:       locks,
		cleaner:     cleaner,
		keepUnknown: true,
		schemas:     cache.New(5*time.Minute, 10*time.Minute),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// recordScope is what a user must be able to see to open a record.
type recordScope struct {
	user    *models.User
	group   *models.RecordGroup
	project *models.Project
}

// authorize loads the user and checks that the record's group belongs to a
// project of the user's team. System managers see every team.
func (s *Service) authorize(ctx context.Context, rec *models.Record, email string) (*recordScope, error) {
	user, err := s.store.GetUser(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	group, err := s.store.GetRecordGroup(ctx, rec.RecordGroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load record group: %w", err)
	}
	project, err := s.store.GetProject(ctx, group.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if project.Team != user.DefaultTeam && !user.HasPermission(models.PermManageSystem) {
		return nil, fmt.Errorf("user %s is not on team %s", email, project.Team)
	}
	return &recordScope{user: user, group: group, project: project}, nil
}

// loadAuthorized reads a record and checks the user may see it. Missing
// records and denied access both collapse into ErrRecordUnavailable; other
// store errors are returned wrapped.
func (s *Service) loadAuthorized(ctx context.Context, recordID, email string) (*models.Record, *recordScope, error) {
	logCtx := slog.With("recordId", recordID, "user", email)
	rec, err := s.store.GetRecord(ctx, recordID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrRecordUnavailable
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load record %s: %w", recordID, err)
	}
	scope, err := s.authorize(ctx, rec, email)
	if err != nil {
		logCtx.Info("Record access denied.", "reason", err)
		return nil, nil, ErrRecordUnavailable
	}
	return rec, scope, nil
}

// requirePermission loads the user and checks one permission.
func (s *Service) requirePermission(ctx context.Context, email, perm string) (*models.User, error) {
	user, err := s.store.GetUser(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown user %s", ErrPermissionDenied, email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.HasPermission(perm) {
		return nil, fmt.Errorf("%w: %s requires %s", ErrPermissionDenied, email, perm)
	}
	return user, nil
}

// processor returns the processor schema for a record group, cached by id.
// A group without a processor yields nil.
func (s *Service) processor(ctx context.Context, group *models.RecordGroup, fresh bool) (*models.Processor, error) {
	if group.ProcessorID == "" {
		return nil, nil
	}
	if !fresh {
		if p, ok := s.schemas.Get(group.ProcessorID); ok {
			return p.(*models.Processor), nil
		}
	}
	p, err := s.store.GetProcessor(ctx, group.ProcessorID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("Record group references a missing processor.", "recordGroupId", group.ID, "processorId", group.ProcessorID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load processor %s: %w", group.ProcessorID, err)
	}
	s.schemas.SetDefault(group.ProcessorID, p)
	return p, nil
}

// TryLockingRecord acquires or refreshes the user's lock on a record.
func (s *Service) TryLockingRecord(ctx context.Context, recordID, user string) bool {
	return s.locks.TryLock(ctx, recordID, user)
}

// ReleaseRecord drops the lock on recordID and any lock user holds.
func (s *Service) ReleaseRecord(ctx context.Context, recordID, user string) error {
	if err := s.locks.Release(ctx, recordID, user); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// RequirePermission fails with ErrPermissionDenied unless user holds perm.
func (s *Service) RequirePermission(ctx context.Context, user, perm string) error {
	_, err := s.requirePermission(ctx, user, perm)
	return err
}
