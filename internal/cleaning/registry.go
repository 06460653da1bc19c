package cleaning

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// FunctionName is a cleaning function name as it appears in a processor schema.
type FunctionName string

const (
	FnCleanBool                FunctionName = "clean_bool"
	FnStringToInt              FunctionName = "string_to_int"
	FnStringToFloat            FunctionName = "string_to_float"
	FnStringToDate             FunctionName = "string_to_date"
	FnCleanDate                FunctionName = "clean_date"
	FnConvertHoleSizeToDecimal FunctionName = "convert_hole_size_to_decimal"
	FnLLMClean                 FunctionName = "llm_clean"
)

var (
	// ErrUnknownFunction is returned for names outside the registry.
	ErrUnknownFunction = errors.New("unknown cleaning function")
	// ErrLLMUnavailable is returned by llm_clean when no model is configured.
	ErrLLMUnavailable = errors.New("llm cleaner is not configured")
)

// Functions lists every registered cleaning function.
var Functions = []FunctionName{
	FnCleanBool,
	FnStringToInt,
	FnStringToFloat,
	FnStringToDate,
	FnCleanDate,
	FnConvertHoleSizeToDecimal,
	FnLLMClean,
}

// Known reports whether name is a registered cleaning function.
func (name FunctionName) Known() bool {
	for _, fn := range Functions {
		if fn == name {
			return true
		}
	}
	return false
}

// LLMCleaner normalizes free text with a language model.
type LLMCleaner interface {
	CleanValue(ctx context.Context, value string) (string, error)
}

// Registry dispatches schema function names to cleaning functions.
type Registry struct {
	llm LLMCleaner
}

// NewRegistry returns a registry. llm may be nil, in which case llm_clean fails.
func NewRegistry(llm LLMCleaner) *Registry {
	return &Registry{llm: llm}
}

// Apply runs the named function on v.
func (r *Registry) Apply(ctx context.Context, name FunctionName, v any) (any, error) {
	switch name {
	case FnCleanBool:
		return CleanBool(v)
	case FnStringToInt:
		return StringToInt(v)
	case FnStringToFloat:
		return StringToFloat(v)
	case FnStringToDate:
		return StringToDate(v)
	case FnCleanDate:
		return CleanDate(v)
	case FnConvertHoleSizeToDecimal:
		return ConvertHoleSizeToDecimal(v)
	case FnLLMClean:
		return r.llmClean(ctx, v)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, string(name))
	}
}

func (r *Registry) llmClean(ctx context.Context, v any) (any, error) {
	if r.llm == nil {
		return nil, ErrLLMUnavailable
	}
	var text string
	switch t := v.(type) {
	case string:
		text = strings.TrimSpace(t)
	default:
		text = fmt.Sprint(t)
	}
	if text == "" {
		return nil, ErrEmptyValue
	}
	out, err := r.llm.CleanValue(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("llm clean: %w", err)
	}
	return strings.TrimSpace(out), nil
}
