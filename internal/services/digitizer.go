package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/access"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/cleaning"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/extraction"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/metrics"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/store"
)

// PipelineUser is recorded as the author of pipeline writes.
const PipelineUser = "digitization-pipeline"

// ExtractionsPrefix holds the raw extraction output of every execution.
const ExtractionsPrefix = "extractions"

// DigitizerConfig selects the optional steps of a digitization run.
type DigitizerConfig struct {
	Backend              string
	KeepUnknown          bool
	RunCleaningFunctions bool
}

// DigitizerFunction runs extraction on a record's pages and stores the
// reconciled attributes.
type DigitizerFunction struct {
	store     store.Store
	records   *access.Service
	objects   ObjectStorage
	extractor extraction.Extractor
	cleaner   *cleaning.Cleaner
	metrics   *metrics.RecordMetrics
	config    DigitizerConfig
	now       func() time.Time
	// extractLimit bounds concurrent page extractions.
	extractLimit int
}

// NewDigitizer wires a digitizer. m may be nil.
func NewDigitizer(st store.Store, records *access.Service, objects ObjectStorage, extractor extraction.Extractor, cleaner *cleaning.Cleaner, m *metrics.RecordMetrics, cfg DigitizerConfig) *DigitizerFunction {
	return &DigitizerFunction{
		store:        st,
		records:      records,
		objects:      objects,
		extractor:    extractor,
		cleaner:      cleaner,
		metrics:      m,
		config:       cfg,
		now:          time.Now,
		extractLimit: 4,
	}
}

// Process digitizes one record. A failure is also written to the record's
// status before it is returned.
func (f *DigitizerFunction) Process(ctx context.Context, req *models.DigitizeRequest) (*models.DigitizeResponse, error) {
	logCtx := slog.With("recordId", req.RecordID, "executionId", req.ExecutionID)
	logCtx.Info("Starting digitization.")

	rec, err := f.store.GetRecord(ctx, req.RecordID)
	if err != nil {
		logCtx.Error("Failed to load record", "error", err)
		return nil, fmt.Errorf("failed to load record %s: %w", req.RecordID, err)
	}
	if len(rec.ImageFiles) == 0 {
		return nil, f.handleError(ctx, logCtx, rec.ID, "record has no page files", errors.New("nothing to extract"))
	}

	processor, err := f.processorFor(ctx, rec)
	if err != nil {
		return nil, f.handleError(ctx, logCtx, rec.ID, "failed to load processor", err)
	}
	logCtx = logCtx.With("processorId", processor.ID)

	start := f.now()
	attrs, err := f.extractPages(ctx, rec, processor)
	f.metrics.RecordExtractionDuration(f.config.Backend, f.now().Sub(start).Seconds())
	if err != nil {
		return nil, f.handleError(ctx, logCtx, rec.ID, "extraction failed", err)
	}
	f.archive(ctx, logCtx, rec, req.ExecutionID, attrs)

	models.DedupeAttributeKeys(attrs)
	attrs, _ = cleaning.SortRecordAttributes(attrs, processor, f.config.KeepUnknown)

	var summary cleaning.Summary
	if f.config.RunCleaningFunctions && f.cleaner != nil {
		summary = f.cleaner.CleanRecord(ctx, models.NewSchemaDict(processor), attrs)
	}

	status := models.StatusDigitized
	if _, err := f.records.UpdateRecord(ctx, access.UpdateRequest{
		RecordID: rec.ID,
		Type:     models.UpdateDigitization,
		Data:     models.RecordUpdate{AttributesList: attrs, Status: &status},
		User:     PipelineUser,
		Force:    true,
	}); err != nil {
		return nil, f.handleError(ctx, logCtx, rec.ID, "failed to store extracted attributes", err)
	}

	logCtx.Info("Digitization complete.", "attributeCount", len(attrs), "cleaned", summary.Cleaned, "failed", summary.Failed)
	return &models.DigitizeResponse{
		Status:         "success",
		AttributeCount: len(attrs),
		CleanedCount:   summary.Cleaned,
		FailedCount:    summary.Failed,
	}, nil
}

func (f *DigitizerFunction) processorFor(ctx context.Context, rec *models.Record) (*models.Processor, error) {
	group, err := f.store.GetRecordGroup(ctx, rec.RecordGroupID)
	if err != nil {
		return nil, fmt.Errorf("record group %s: %w", rec.RecordGroupID, err)
	}
	if group.ProcessorID == "" {
		return nil, fmt.Errorf("record group %s has no processor", group.ID)
	}
	return f.store.GetProcessor(ctx, group.ProcessorID)
}

// extractPages runs extraction on every page and concatenates the results
// in page order. Page numbers are offset to the page's position in the record.
func (f *DigitizerFunction) extractPages(ctx context.Context, rec *models.Record, processor *models.Processor) ([]models.Attribute, error) {
	ref := extraction.ProcessorRef{
		ProcessorID:      processor.ID,
		ModelID:          processor.ModelID,
		GenericProcessor: processor.Generic,
	}
	perPage := make([][]models.Attribute, len(rec.ImageFiles))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(f.extractLimit)
	for i, object := range rec.ImageFiles {
		eg.Go(func() error {
			content, contentType, err := f.objects.Read(gctx, object)
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			attrs, err := f.extractor.Extract(gctx, extraction.Document{
				Content:  content,
				MimeType: mimeType(object, contentType),
			}, ref)
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			offsetPages(attrs, i)
			perPage[i] = attrs
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var all []models.Attribute
	for _, attrs := range perPage {
		all = append(all, attrs...)
	}
	if all == nil {
		all = []models.Attribute{}
	}
	return all, nil
}

func offsetPages(attrs []models.Attribute, offset int) {
	for i := range attrs {
		p := offset
		if attrs[i].Page != nil {
			p += *attrs[i].Page
		}
		attrs[i].Page = &p
		offsetPages(attrs[i].Subattributes, offset)
	}
}

func mimeType(object, contentType string) string {
	if contentType != "" {
		return contentType
	}
	if t := mime.TypeByExtension(filepath.Ext(object)); t != "" {
		return t
	}
	return "application/pdf"
}

// archive keeps the raw extraction output next to the pages. Failures are logged.
func (f *DigitizerFunction) archive(ctx context.Context, logCtx *slog.Logger, rec *models.Record, executionID string, attrs []models.Attribute) {
	if executionID == "" {
		executionID = "manual"
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		logCtx.Warn("Failed to encode extraction output.", "error", err)
		return
	}
	object := path.Join(ExtractionsPrefix, rec.RecordGroupID, rec.ID, path.Base(executionID)+".json")
	if err := f.objects.SaveAtomically(ctx, object, data); err != nil {
		logCtx.Warn("Failed to archive extraction output.", "gcsObject", object, "error", err)
	}
}

func (f *DigitizerFunction) handleError(ctx context.Context, logCtx *slog.Logger, recordID, message string, originalErr error) error {
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	logCtx.Error(message, "error", originalErr)
	status := models.StatusError
	if _, err := f.records.UpdateRecord(ctx, access.UpdateRequest{
		RecordID: recordID,
		Type:     models.UpdateDigitization,
		Data:     models.RecordUpdate{Status: &status, ErrorDetails: &fullError},
		User:     PipelineUser,
		Force:    true,
	}); err != nil {
		logCtx.Error("CRITICAL: Failed to set record status to error after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}
