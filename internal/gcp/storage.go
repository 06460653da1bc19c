package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// NewStorageClient creates a Cloud Storage client. A service account key file
// is needed to sign URLs outside of GCP; without one the default credentials
// are used.
func NewStorageClient(ctx context.Context, serviceKeyPath string) (*storage.Client, error) {
	var opts []option.ClientOption
	if serviceKeyPath != "" {
		opts = append(opts, option.WithCredentialsFile(serviceKeyPath))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	return client, nil
}

// SaveToGCSAtomically writes content to a GCS object only if it doesn't already exist.
// An existing object is not an error.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName string, content []byte) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)

	if _, err := io.Copy(writer, bytes.NewReader(content)); err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			slog.Info("Object already exists, skipping write.", "gcsObject", objectName)
			return nil
		}
		slog.Error("Failed to copy content to GCS object.", "gcsObject", objectName, "error", err)
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			slog.Info("Object already exists, skipping write.", "gcsObject", objectName)
			return nil
		}
		slog.Error("Failed to close GCS writer.", "gcsObject", objectName, "error", err)
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

// Upload retry policy.
const (
	uploadMaxRetries   = 4
	uploadInitialWait  = 1 * time.Second
	uploadAttemptLimit = 50 * time.Second
)

// UploadFile copies a local file to destObject, retrying with exponential backoff.
func UploadFile(ctx context.Context, bucket *storage.BucketHandle, localPath, destObject string) error {
	backoff := uploadInitialWait
	var lastErr error

	for i := 0; i < uploadMaxRetries; i++ {
		err := func() error {
			f, err := os.Open(localPath)
			if err != nil {
				return fmt.Errorf("could not open local file %s: %w", localPath, err)
			}
			defer f.Close()

			writeCtx, cancel := context.WithTimeout(ctx, uploadAttemptLimit)
			defer cancel()

			w := bucket.Object(destObject).NewWriter(writeCtx)
			if _, err := io.Copy(w, f); err != nil {
				_ = w.Close()
				return fmt.Errorf("io.Copy to GCS failed: %w", err)
			}
			if err := w.Close(); err != nil {
				return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
			}
			return nil
		}()
		if err == nil {
			return nil
		}

		lastErr = err
		slog.Warn("Upload failed, will retry.",
			"gcsObject", destObject,
			"attempt", i+1,
			"maxRetries", uploadMaxRetries,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			slog.Error("Context cancelled during backoff. Aborting retries.", "gcsObject", destObject, "error", ctx.Err())
			return ctx.Err()
		}
	}
	slog.Error("Upload failed after all retries.", "gcsObject", destObject, "error", lastErr)
	return fmt.Errorf("upload for %s failed after all retries: %w", destObject, lastErr)
}

// DownloadObject streams an object into a local file.
func DownloadObject(ctx context.Context, bucket *storage.BucketHandle, object, destPath string) error {
	r, err := bucket.Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to get GCS object reader for %s: %w", object, err)
	}
	defer r.Close()

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file at %s: %w", destPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("failed to copy GCS object to local file: %w", err)
	}
	return nil
}

// ReadObject returns an object's content and content type.
func ReadObject(ctx context.Context, bucket *storage.BucketHandle, object string) ([]byte, string, error) {
	r, err := bucket.Object(object).NewReader(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get GCS object reader for %s: %w", object, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read GCS object %s: %w", object, err)
	}
	return data, r.Attrs.ContentType, nil
}

// Bucket binds the helpers above to one bucket.
type Bucket struct {
	handle *storage.BucketHandle
}

// NewBucket returns a Bucket for name.
func NewBucket(client *storage.Client, name string) *Bucket {
	return &Bucket{handle: client.Bucket(name)}
}

// Handle returns the underlying bucket handle.
func (b *Bucket) Handle() *storage.BucketHandle { return b.handle }

func (b *Bucket) Download(ctx context.Context, object, destPath string) error {
	return DownloadObject(ctx, b.handle, object, destPath)
}

func (b *Bucket) Upload(ctx context.Context, localPath, destObject string) error {
	return UploadFile(ctx, b.handle, localPath, destObject)
}

func (b *Bucket) Read(ctx context.Context, object string) ([]byte, string, error) {
	return ReadObject(ctx, b.handle, object)
}

func (b *Bucket) SaveAtomically(ctx context.Context, object string, content []byte) error {
	return SaveToGCSAtomically(ctx, b.handle, object, content)
}
