package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/metrics"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/store"
)

// Object prefixes in the documents bucket.
const (
	IntakePrefix  = "intake"
	UploadsPrefix = "uploads"
)

// ErrNotIntakeObject is returned for objects outside intake/<rg>/<uploader>/<file>.
var ErrNotIntakeObject = errors.New("object is not an intake upload")

// GCSEvent is the payload of a storage object finalize event.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}

// ObjectStorage is the bucket access the pipeline needs.
type ObjectStorage interface {
	Download(ctx context.Context, object, destPath string) error
	Upload(ctx context.Context, localPath, destObject string) error
	Read(ctx context.Context, object string) ([]byte, string, error)
	SaveAtomically(ctx context.Context, object string, content []byte) error
}

// WorkflowStarter starts the digitization workflow for a record.
type WorkflowStarter interface {
	Trigger(ctx context.Context, arg models.WorkflowArgument) (string, error)
}

// IntakeFunction turns an uploaded file into a record with one stored file
// per page and hands it to the digitization workflow.
type IntakeFunction struct {
	store    store.Store
	objects  ObjectStorage
	workflow WorkflowStarter
	metrics  *metrics.RecordMetrics
	now      func() time.Time
	// uploadLimit bounds concurrent page uploads.
	uploadLimit int
}

// NewIntake wires an intake function. m may be nil.
func NewIntake(st store.Store, objects ObjectStorage, workflow WorkflowStarter, m *metrics.RecordMetrics) *IntakeFunction {
	return &IntakeFunction{
		store:       st,
		objects:     objects,
		workflow:    workflow,
		metrics:     m,
		now:         time.Now,
		uploadLimit: 10,
	}
}

// IntakeObject is a parsed intake object name.
type IntakeObject struct {
	RecordGroupID string
	Uploader      string
	Filename      string
}

// ParseIntakeObject splits intake/<rgId>/<uploader>/<filename>.
func ParseIntakeObject(name string) (IntakeObject, error) {
	parts := strings.SplitN(name, "/", 4)
	if len(parts) != 4 || parts[0] != IntakePrefix || parts[1] == "" || parts[2] == "" || parts[3] == "" {
		return IntakeObject{}, fmt.Errorf("%w: %s", ErrNotIntakeObject, name)
	}
	return IntakeObject{RecordGroupID: parts[1], Uploader: parts[2], Filename: parts[3]}, nil
}

// Process handles one finalized upload. It returns the new record's id, or
// an empty id when the upload was skipped.
func (f *IntakeFunction) Process(ctx context.Context, e GCSEvent) (string, error) {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)

	obj, err := ParseIntakeObject(e.Name)
	if err != nil {
		logCtx.Info("Ignoring object outside the intake prefix.")
		return "", nil
	}
	logCtx = logCtx.With("recordGroupId", obj.RecordGroupID, "user", obj.Uploader)
	logCtx.Info("Processing new upload.")

	group, err := f.store.GetRecordGroup(ctx, obj.RecordGroupID)
	if err != nil {
		logCtx.Error("Failed to load record group", "error", err)
		return "", fmt.Errorf("failed to load record group %s: %w", obj.RecordGroupID, err)
	}

	tempDir, err := os.MkdirTemp("", "document-intake-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	ext := strings.ToLower(filepath.Ext(obj.Filename))
	sourcePath := filepath.Join(tempDir, "source"+ext)
	if err := f.objects.Download(ctx, e.Name, sourcePath); err != nil {
		logCtx.Error("Failed to download upload", "error", err)
		return "", err
	}

	fileHash, err := calculateFileHash(sourcePath)
	if err != nil {
		logCtx.Error("Failed to calculate file hash", "error", err)
		return "", fmt.Errorf("failed to calculate file hash: %w", err)
	}
	logCtx = logCtx.With("fileHash", fileHash)

	existing, err := f.findDuplicate(ctx, group.ID, fileHash, obj.Filename)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return "", err
	}
	if existing != "" {
		logCtx.Info("Duplicate file detected. Skipping.", "existingRecordId", existing)
		return "", nil
	}

	rec, err := f.createRecord(ctx, group, obj, fileHash)
	if err != nil {
		logCtx.Error("Failed to create record", "error", err)
		return "", err
	}
	logCtx = logCtx.With("recordId", rec.ID)
	logCtx.Info("Created record.")

	pages, err := f.preparePages(ctx, logCtx, rec, sourcePath, ext)
	if err != nil {
		return rec.ID, err
	}

	imageFiles, err := f.uploadPages(ctx, logCtx, rec, pages, ext)
	if err != nil {
		return rec.ID, err
	}

	if err := f.triggerWorkflow(ctx, logCtx, rec, imageFiles); err != nil {
		return rec.ID, err
	}

	logCtx.Info("Hand-off to workflow complete.", "pageCount", len(imageFiles))
	return rec.ID, nil
}

func (f *IntakeFunction) findDuplicate(ctx context.Context, recordGroupID, fileHash, filename string) (string, error) {
	for _, filter := range []store.RecordFilter{
		{RecordGroupID: recordGroupID, FileHash: fileHash, Limit: 1},
		{RecordGroupID: recordGroupID, Filename: filename, Limit: 1},
	} {
		recs, err := f.store.ListRecords(ctx, filter)
		if err != nil {
			return "", fmt.Errorf("failed to query for duplicates: %w", err)
		}
		if len(recs) > 0 {
			return recs[0].ID, nil
		}
	}
	return "", nil
}

func (f *IntakeFunction) createRecord(ctx context.Context, group *models.RecordGroup, obj IntakeObject, fileHash string) (*models.Record, error) {
	rec := &models.Record{
		Name:          strings.TrimSuffix(obj.Filename, filepath.Ext(obj.Filename)),
		Filename:      obj.Filename,
		FileHash:      fileHash,
		RecordGroupID: group.ID,
		ProjectID:     group.ProjectID,
		Status:        models.StatusProcessing,
		ReviewStatus:  models.ReviewUnreviewed,
		ImageFiles:    []string{},
		Uploader:      obj.Uploader,
		DateCreated:   f.now().UTC(),
	}
	id, err := f.store.CreateRecord(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to create record: %w", err)
	}
	rec.ID = id

	entry := models.AuditEntry{
		Action:    models.ActionCreateRecord,
		User:      obj.Uploader,
		TargetIDs: []string{id, group.ID},
		Delta:     map[string]any{models.FieldName: rec.Name, "filename": rec.Filename},
		Timestamp: rec.DateCreated,
	}
	if err := f.store.AppendAudit(ctx, entry); err != nil {
		slog.Warn("Failed to record audit entry.", "recordId", id, "error", err)
	}
	return rec, nil
}

// preparePages returns the local file of every page. PDFs are optimized and
// split; any other upload is a single page.
func (f *IntakeFunction) preparePages(ctx context.Context, logCtx *slog.Logger, rec *models.Record, sourcePath, ext string) ([]string, error) {
	if ext != ".pdf" {
		return []string{sourcePath}, nil
	}

	optimized := filepath.Join(filepath.Dir(sourcePath), "optimized.pdf")
	if err := optimizePDF(sourcePath, optimized); err != nil {
		return nil, f.handleError(ctx, logCtx, rec.ID, "failed to validate/optimize PDF", err)
	}
	pageCount, err := api.PageCountFile(optimized)
	if err != nil {
		return nil, f.handleError(ctx, logCtx, rec.ID, "failed to get page count", err)
	}
	if err := api.SplitFile(optimized, filepath.Dir(optimized), 1, nil); err != nil {
		return nil, f.handleError(ctx, logCtx, rec.ID, "failed to split PDF", err)
	}
	logCtx.Info("PDF optimized and split locally.", "pageCount", pageCount)

	base := strings.TrimSuffix(optimized, filepath.Ext(optimized))
	pages := make([]string, pageCount)
	for i := range pages {
		pages[i] = fmt.Sprintf("%s_%d.pdf", base, i+1)
	}
	return pages, nil
}

// PageObject is the object name of one stored page.
func PageObject(recordGroupID, recordID string, page int, ext string) string {
	return path.Join(UploadsPrefix, recordGroupID, recordID, fmt.Sprintf("%05d%s", page, ext))
}

func (f *IntakeFunction) uploadPages(ctx context.Context, logCtx *slog.Logger, rec *models.Record, pages []string, ext string) ([]string, error) {
	logCtx.Info("Starting concurrent upload of pages.", "pageCount", len(pages))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(f.uploadLimit)

	objects := make([]string, len(pages))
	for i, local := range pages {
		objects[i] = PageObject(rec.RecordGroupID, rec.ID, i+1, ext)
		eg.Go(func() error {
			if err := f.objects.Upload(gctx, local, objects[i]); err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, f.handleError(ctx, logCtx, rec.ID, "one or more pages failed to upload", err)
	}
	f.metrics.RecordPagesUploaded(len(objects))

	fields := map[string]any{
		models.FieldImageFiles: objects,
		models.FieldPageCount:  len(objects),
	}
	if err := f.store.UpdateRecordFields(ctx, rec.ID, fields); err != nil {
		return nil, f.handleError(ctx, logCtx, rec.ID, "failed to store page files", err)
	}
	logCtx.Info("All pages uploaded successfully.")
	return objects, nil
}

func (f *IntakeFunction) triggerWorkflow(ctx context.Context, logCtx *slog.Logger, rec *models.Record, imageFiles []string) error {
	logCtx.Info("Triggering workflow.")
	execution, err := f.workflow.Trigger(ctx, models.WorkflowArgument{
		RecordID:      rec.ID,
		RecordGroupID: rec.RecordGroupID,
		PageCount:     len(imageFiles),
	})
	if err != nil {
		return f.handleError(ctx, logCtx, rec.ID, "failed to trigger workflow execution", err)
	}
	if err := f.store.UpdateRecordFields(ctx, rec.ID, map[string]any{models.FieldWorkflowExecutionID: execution}); err != nil {
		logCtx.Warn("Failed to store workflow execution id.", "execution", execution, "error", err)
	}
	return nil
}

// handleError marks the record as failed and returns the combined error.
func (f *IntakeFunction) handleError(ctx context.Context, logCtx *slog.Logger, recordID, message string, originalErr error) error {
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	logCtx.Error(message, "error", originalErr)
	fields := map[string]any{
		models.FieldStatus:       models.StatusError,
		models.FieldErrorDetails: fullError,
	}
	if err := f.store.UpdateRecordFields(ctx, recordID, fields); err != nil {
		logCtx.Error("CRITICAL: Failed to set record status to error after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}

func optimizePDF(inPath, outPath string) error {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return api.OptimizeFile(inPath, outPath, cfg)
}

func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
