// Package cleaning normalizes extracted attribute values against a
// processor schema.
package cleaning

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/metrics"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
)

// Cleaner applies schema cleaning functions to attributes in place.
type Cleaner struct {
	registry *Registry
	metrics  *metrics.RecordMetrics
	now      func() time.Time
}

// Option configures a Cleaner.
type Option func(*Cleaner)

// WithMetrics records cleaning outcomes.
func WithMetrics(m *metrics.RecordMetrics) Option {
	return func(c *Cleaner) { c.metrics = m }
}

// WithClock overrides the clock used for last_cleaned.
func WithClock(now func() time.Time) Option {
	return func(c *Cleaner) { c.now = now }
}

// NewCleaner returns a Cleaner backed by the built-in functions. llm may be nil.
func NewCleaner(llm LLMCleaner, opts ...Option) *Cleaner {
	c := &Cleaner{
		registry: NewRegistry(llm),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Summary counts cleaning outcomes across attributes and sub-attributes.
type Summary struct {
	Cleaned int `json:"cleaned"`
	Failed  int `json:"failed"`
}

// CleanAttribute cleans attr in place using the schema entry for its key, or
// for subattributeKey when given, then recurses into its sub-attributes.
// A failing function is recorded on the attribute and never returned.
// It reports whether attr itself was cleaned.
func (c *Cleaner) CleanAttribute(ctx context.Context, schema models.SchemaDict, attr *models.Attribute, subattributeKey string) bool {
	key := attr.Key
	if subattributeKey != "" {
		key = subattributeKey
	}
	logCtx := slog.With("attributeKey", key)

	cleaned := false
	if def, ok := schema[key]; ok {
		cleaned = c.cleanValue(ctx, logCtx, def, attr)
	} else {
		logCtx.Debug("No schema entry for attribute.")
	}

	for i := range attr.Subattributes {
		sub := &attr.Subattributes[i]
		c.CleanAttribute(ctx, schema, sub, key+models.SubattributeSeparator+sub.Key)
	}
	return cleaned
}

func (c *Cleaner) cleanValue(ctx context.Context, logCtx *slog.Logger, def models.AttributeDef, attr *models.Attribute) bool {
	if def.CleaningFunction == "" {
		attr.Cleaned = false
		return false
	}
	fn := FunctionName(def.CleaningFunction)

	if models.IsBlank(attr.Value) {
		attr.Cleaned = false
		attr.CleaningError = ""
		c.metrics.RecordCleaning(string(fn), metrics.CleanSkipped)
		return false
	}

	result, err := c.registry.Apply(ctx, fn, attr.Value)
	switch {
	case errors.Is(err, ErrUnknownFunction):
		logCtx.Info("No cleaning function with this name.", "cleaningFunction", fn)
		c.metrics.RecordCleaning(string(fn), metrics.CleanUnknown)
		return false
	case err != nil:
		logCtx.Warn("Unable to clean attribute.", "cleaningFunction", fn, "value", attr.Value, "error", err)
		attr.CleaningError = models.CleaningError(err.Error())
		attr.Cleaned = false
		c.metrics.RecordCleaning(string(fn), metrics.CleanError)
		return false
	}

	now := c.now().UTC()
	attr.UncleanedValue = attr.Value
	attr.Value = result
	attr.NormalizedValue = result
	attr.Cleaned = true
	attr.CleaningError = ""
	attr.LastCleaned = &now
	c.metrics.RecordCleaning(string(fn), metrics.CleanSuccess)
	return true
}

// CleanRecord cleans every top-level attribute, and through them every
// sub-attribute, in place.
func (c *Cleaner) CleanRecord(ctx context.Context, schema models.SchemaDict, attrs []models.Attribute) Summary {
	for i := range attrs {
		c.CleanAttribute(ctx, schema, &attrs[i], "")
	}
	var s Summary
	countOutcomes(attrs, &s)
	return s
}

func countOutcomes(attrs []models.Attribute, s *Summary) {
	for i := range attrs {
		if attrs[i].Cleaned {
			s.Cleaned++
		}
		if attrs[i].CleaningError.Failed() {
			s.Failed++
		}
		countOutcomes(attrs[i].Subattributes, s)
	}
}
