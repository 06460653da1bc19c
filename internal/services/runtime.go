package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/access"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/cleaning"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/config"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/extraction"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/gcp"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/lock"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/metrics"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/store"
)

// Runtime holds the clients shared by every entry point.
type Runtime struct {
	Config   *config.Config
	Store    store.Store
	Locks    *lock.Manager
	Cleaner  *cleaning.Cleaner
	Records  *access.Service
	Metrics  *metrics.RecordMetrics
	Registry *prometheus.Registry

	storageClient *storage.Client
	closers       []func() error
}

// OpenStore connects the backend selected by STORE_BACKEND.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return store.NewMemoryStore(), nil
	case config.BackendMongo:
		return store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case config.BackendFirestore:
		client, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID, cfg.FirestoreDatabase)
		if err != nil {
			return nil, err
		}
		return store.NewFirestoreStore(client), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// NewRuntime opens the store and builds the record services. Optional
// clients (storage, Vertex AI) are created only when configured.
func NewRuntime(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	rt := &Runtime{Config: cfg, Store: st, Registry: prometheus.NewRegistry()}
	rt.closers = append(rt.closers, st.Close)

	rt.Metrics, err = metrics.NewRecordMetrics(rt.Registry)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	var llm cleaning.LLMCleaner
	if cfg.ProjectID != "" && cfg.VertexAIRegion != "" {
		vertexClient, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexAIRegion)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("failed to create vertex client: %w", err)
		}
		rt.closers = append(rt.closers, vertexClient.Close)
		llm = vertexClient
	}

	rt.Locks = lock.NewManager(st, lock.WithDuration(cfg.LockDuration), lock.WithMetrics(rt.Metrics))
	rt.Cleaner = cleaning.NewCleaner(llm, cleaning.WithMetrics(rt.Metrics))

	opts := []access.Option{
		access.WithKeepUnknownAttributes(cfg.KeepUnknownAttributes),
		access.WithMetrics(rt.Metrics),
	}
	if cfg.StorageBucketName != "" {
		client, err := rt.storage(ctx)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		bucket := client.Bucket(cfg.StorageBucketName)
		opts = append(opts, access.WithImageResolver(gcp.NewSignedURLResolver(bucket, cfg.SignedURLExpiry)))
	}
	rt.Records = access.NewService(st, rt.Locks, rt.Cleaner, opts...)

	slog.Info("Runtime initialized.", "storeBackend", cfg.StoreBackend, "llmCleaning", llm != nil)
	return rt, nil
}

func (rt *Runtime) storage(ctx context.Context) (*storage.Client, error) {
	if rt.storageClient != nil {
		return rt.storageClient, nil
	}
	client, err := gcp.NewStorageClient(ctx, rt.Config.StorageServiceKey)
	if err != nil {
		return nil, err
	}
	rt.storageClient = client
	rt.closers = append(rt.closers, client.Close)
	return client, nil
}

func (rt *Runtime) bucket(ctx context.Context) (*gcp.Bucket, error) {
	if rt.Config.StorageBucketName == "" {
		return nil, fmt.Errorf("STORAGE_BUCKET_NAME environment variable must be set")
	}
	client, err := rt.storage(ctx)
	if err != nil {
		return nil, err
	}
	return gcp.NewBucket(client, rt.Config.StorageBucketName), nil
}

// NewIntakeFromRuntime wires the intake function with the documents bucket
// and the digitization workflow.
func NewIntakeFromRuntime(ctx context.Context, rt *Runtime) (*IntakeFunction, error) {
	bucket, err := rt.bucket(ctx)
	if err != nil {
		return nil, err
	}
	workflow, err := gcp.NewWorkflowTrigger(ctx, rt.Config.ProjectID, rt.Config.WorkflowLocation, rt.Config.WorkflowID)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, workflow.Close)
	slog.Info("Document intake initialized.", "workflowId", rt.Config.WorkflowID)
	return NewIntake(rt.Store, bucket, workflow, rt.Metrics), nil
}

// NewDigitizerFromRuntime wires the digitizer with the configured extraction backend.
func NewDigitizerFromRuntime(ctx context.Context, rt *Runtime) (*DigitizerFunction, error) {
	bucket, err := rt.bucket(ctx)
	if err != nil {
		return nil, err
	}
	extractor, err := extraction.New(ctx, rt.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to create extractor: %w", err)
	}
	if c, ok := extractor.(interface{ Close() error }); ok {
		rt.closers = append(rt.closers, c.Close)
	}
	slog.Info("Document digitizer initialized.", "extractionBackend", rt.Config.DocumentAIBackend)
	return NewDigitizer(rt.Store, rt.Records, bucket, extractor, rt.Cleaner, rt.Metrics, DigitizerConfig{
		Backend:              rt.Config.DocumentAIBackend,
		KeepUnknown:          rt.Config.KeepUnknownAttributes,
		RunCleaningFunctions: rt.Config.RunCleaningFunctions,
	}), nil
}

// Close releases every client in reverse order of creation.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	rt.closers = nil
	return errors.Join(errs...)
}
