package extraction

import (
	"context"
	"fmt"
	"log/slog"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
)

// DocumentAIExtractor calls a Document AI processor version.
type DocumentAIExtractor struct {
	projectID string
	location  string
	client    *documentai.DocumentProcessorClient
	process   func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.ProcessResponse, error)
}

// NewDocumentAIExtractor creates a client for the regional endpoint.
func NewDocumentAIExtractor(ctx context.Context, projectID, location string) (*DocumentAIExtractor, error) {
	if projectID == "" || location == "" {
		return nil, fmt.Errorf("NewDocumentAIExtractor: projectID and location cannot be empty")
	}
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)
	client, err := documentai.NewDocumentProcessorClient(ctx, option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create Document AI client: %w", err)
	}
	e := &DocumentAIExtractor{projectID: projectID, location: location, client: client}
	e.process = func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.ProcessResponse, error) {
		return client.ProcessDocument(ctx, req)
	}
	return e, nil
}

// Close releases the underlying client.
func (e *DocumentAIExtractor) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

func (e *DocumentAIExtractor) processorVersion(ref ProcessorRef) string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s/processorVersions/%s",
		e.projectID, e.location, ref.ProcessorID, ref.ModelID)
}

// Extract runs the processor version on doc.
func (e *DocumentAIExtractor) Extract(ctx context.Context, doc Document, ref ProcessorRef) ([]models.Attribute, error) {
	name := e.processorVersion(ref)
	logCtx := slog.With("processorVersion", name)

	resp, err := e.process(ctx, &documentaipb.ProcessRequest{
		Name: name,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{Content: doc.Content, MimeType: doc.MimeType},
		},
	})
	if err != nil {
		logCtx.Error("Document AI request failed.", "error", err)
		return nil, fmt.Errorf("failed to process document: %w", err)
	}

	entities := resp.GetDocument().GetEntities()
	if ref.GenericProcessor {
		if len(entities) == 0 {
			return []models.Attribute{}, nil
		}
		logCtx.Info("Generic processor; reading attributes from the first entity's properties.")
		entities = entities[0].GetProperties()
	}
	attrs := make([]models.Attribute, 0, len(entities))
	for _, ent := range entities {
		attrs = append(attrs, entityToAttribute(ent))
	}
	linkSubattributes(attrs)
	logCtx.Info("Document processed.", "attributeCount", len(attrs))
	return attrs, nil
}

// entityToAttribute maps one entity and its properties. The normalized value
// is preferred over the mention text when present.
func entityToAttribute(ent *documentaipb.Document_Entity) models.Attribute {
	confidence := float64(ent.GetConfidence())
	normalized := ent.GetNormalizedValue().GetText()
	raw := ent.GetMentionText()

	attr := models.Attribute{
		Key:                ent.GetType(),
		RawText:            raw,
		TextValue:          ent.GetTextAnchor().GetContent(),
		AIConfidence:       &confidence,
		Confidence:         &confidence,
		NormalizedVertices: vertices(ent),
		Page:               page(ent),
	}
	if normalized != "" {
		attr.Value = normalized
		attr.NormalizedValue = normalized
	} else {
		attr.Value = raw
	}

	for _, prop := range ent.GetProperties() {
		attr.Subattributes = append(attr.Subattributes, entityToAttribute(prop))
	}
	return attr
}

func vertices(ent *documentaipb.Document_Entity) []models.Vertex {
	refs := ent.GetPageAnchor().GetPageRefs()
	if len(refs) == 0 {
		return nil
	}
	nv := refs[0].GetBoundingPoly().GetNormalizedVertices()
	if len(nv) == 0 {
		return nil
	}
	out := make([]models.Vertex, len(nv))
	for i, v := range nv {
		out[i] = models.Vertex{X: float64(v.GetX()), Y: float64(v.GetY())}
	}
	return out
}

func page(ent *documentaipb.Document_Entity) *int {
	refs := ent.GetPageAnchor().GetPageRefs()
	if len(refs) == 0 {
		return nil
	}
	p := int(refs[0].GetPage())
	return &p
}
