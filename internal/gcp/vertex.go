package gcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

const cleanerModelName = "gemini-1.5-pro"

const CleanerSystemPrompt = "You normalize single values transcribed from scanned oil and gas well records. You fix OCR mistakes and formatting, and you never invent information."

const CleanerUserPrompt = `Clean the following value that was read from a well record form.

Rules:
1.  Fix obvious OCR character errors (for example 'O' read as '0' inside a word, or 'l' read as '1' inside a number).
2.  Remove stray punctuation, line breaks and repeated whitespace.
3.  Keep units, abbreviations and numbers exactly as written unless they are clearly OCR errors.
4.  If the value is unreadable, return it unchanged.

Return ONLY the cleaned value, with no explanation and no surrounding quotes.

Value:
`

// ErrRefusal is returned when the model declines to answer.
var ErrRefusal = errors.New("model response indicates refusal")

var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"as a large language model",
}

// VertexClient holds the generative model used by the llm_clean cleaning function.
type VertexClient struct {
	CleanerModel *genai.GenerativeModel
	baseClient   *genai.Client
	generate     func(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// NewVertexClient creates a new client with the cleaner model configured.
func NewVertexClient(ctx context.Context, projectID, region string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	cleanerModel := baseClient.GenerativeModel(cleanerModelName)
	cleanerModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(CleanerSystemPrompt)},
	}
	cleanerModel.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}
	cleanerModel.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	return &VertexClient{
		CleanerModel: cleanerModel,
		baseClient:   baseClient,
		generate:     cleanerModel.GenerateContent,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

// CleanValue asks the cleaner model to normalize one value.
func (c *VertexClient) CleanValue(ctx context.Context, value string) (string, error) {
	resp, err := c.generate(ctx, genai.Text(CleanerUserPrompt+value))
	if err != nil {
		slog.Error("Call to Vertex AI for cleaning failed", "error", err)
		return "", fmt.Errorf("failed to generate cleaned value: %w", err)
	}

	cleaned := extractText(resp)
	lower := strings.ToLower(cleaned)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			slog.Error("LLM refusal detected", "response", cleaned)
			return "", ErrRefusal
		}
	}
	if cleaned == "" {
		return "", fmt.Errorf("model returned no text")
	}
	return cleaned, nil
}

// extractText concatenates the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	out := strings.TrimSpace(b.String())
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")
	return strings.TrimSpace(out)
}
