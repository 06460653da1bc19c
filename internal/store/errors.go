package store

import (
	"errors"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
)

var (
	// ErrNotFound is returned when a document doesn't exist.
	ErrNotFound = errors.New("store: document not found")

	// ErrConflict is returned when creating a document with an existing id.
	ErrConflict = errors.New("store: document already exists")

	// ErrUnknownField is returned when a partial update names a field the
	// backend does not know how to set.
	ErrUnknownField = models.ErrUnknownField
)
