package gcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
)

// NewFirestoreClient opens a Firestore database. An empty databaseID selects
// the project's default database. FIRESTORE_EMULATOR_HOST is honored.
func NewFirestoreClient(ctx context.Context, projectID, databaseID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, errors.New("PROJECT_ID must be set to open Firestore")
	}
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to open Firestore database %s in %s: %w", databaseID, projectID, err)
	}
	slog.Info("Opened Firestore client.", "projectId", projectID, "database", databaseID)
	return client, nil
}
