package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
)

// HTTPExtractor posts documents to a self-hosted extraction service.
type HTTPExtractor struct {
	url    string
	client *http.Client
}

// NewHTTPExtractor returns an extractor for url with the given request timeout.
func NewHTTPExtractor(url string, timeout time.Duration) *HTTPExtractor {
	return &HTTPExtractor{url: url, client: &http.Client{Timeout: timeout}}
}

type httpExtractRequest struct {
	ImageContentBase64    string `json:"image_content_base64"`
	MimeType              string `json:"mime_type"`
	ProcessorID           string `json:"processor_id"`
	ModelID               string `json:"model_id"`
	UsingDefaultProcessor bool   `json:"using_default_processor"`
}

// Extract posts doc and accepts either a bare attribute list or an object
// with an attributes_list field.
func (e *HTTPExtractor) Extract(ctx context.Context, doc Document, ref ProcessorRef) ([]models.Attribute, error) {
	logCtx := slog.With("url", e.url, "processorId", ref.ProcessorID)

	body, err := json.Marshal(httpExtractRequest{
		ImageContentBase64:    base64.StdEncoding.EncodeToString(doc.Content),
		MimeType:              doc.MimeType,
		ProcessorID:           ref.ProcessorID,
		ModelID:               ref.ModelID,
		UsingDefaultProcessor: ref.GenericProcessor,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode extraction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		logCtx.Error("Extraction request failed.", "error", err)
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read extraction response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logCtx.Error("Extraction service returned an error.", "status", resp.StatusCode)
		return nil, fmt.Errorf("extraction service returned status %d", resp.StatusCode)
	}

	attrs, err := decodeAttributes(data)
	if err != nil {
		return nil, err
	}
	linkSubattributes(attrs)
	return attrs, nil
}

func decodeAttributes(data []byte) ([]models.Attribute, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var attrs []models.Attribute
		if err := json.Unmarshal(trimmed, &attrs); err != nil {
			return nil, fmt.Errorf("failed to decode attribute list: %w", err)
		}
		return attrs, nil
	}
	var wrapped struct {
		AttributesList *[]models.Attribute `json:"attributes_list"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode extraction response: %w", err)
	}
	if wrapped.AttributesList == nil {
		return nil, fmt.Errorf("extraction response is missing attributes_list")
	}
	return *wrapped.AttributesList, nil
}
