// Package extraction turns a document's bytes into attributes using an
// entity-extraction service.
package extraction

import (
	"context"
	"fmt"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/config"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
)

// Document is the raw input of one extraction call.
type Document struct {
	Content  []byte
	MimeType string
}

// ProcessorRef identifies the trained processor version to run. Generic
// processors return a single entity whose properties are the attributes.
type ProcessorRef struct {
	ProcessorID      string
	ModelID          string
	GenericProcessor bool
}

// Extractor runs entity extraction on a document.
type Extractor interface {
	Extract(ctx context.Context, doc Document, ref ProcessorRef) ([]models.Attribute, error)
}

// New returns the extractor selected by DOCUMENT_AI_BACKEND.
func New(ctx context.Context, cfg *config.Config) (Extractor, error) {
	if cfg.DocumentAIBackend == config.BackendGoogle {
		return NewDocumentAIExtractor(ctx, cfg.ProjectID, cfg.DocumentAILocation)
	}
	if cfg.DocumentAIURL == "" {
		return nil, fmt.Errorf("DOCUMENT_AI_URL is required for extraction backend %q", cfg.DocumentAIBackend)
	}
	return NewHTTPExtractor(cfg.DocumentAIURL, cfg.DocumentAITimeout), nil
}

// linkSubattributes sets the back-references on every sub-attribute.
func linkSubattributes(attrs []models.Attribute) {
	for i := range attrs {
		for j := range attrs[i].Subattributes {
			attrs[i].Subattributes[j].IsSubattribute = true
			attrs[i].Subattributes[j].TopLevelAttribute = attrs[i].Key
		}
	}
}
