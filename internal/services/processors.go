package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/cleaning"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/store"
)

// processorFile is the layout of a processor import file.
type processorFile struct {
	Processors []models.Processor `yaml:"processors"`
}

// ParseProcessors reads processor schemas from YAML and validates them.
// Unknown cleaning functions are rejected.
func ParseProcessors(r io.Reader) ([]models.Processor, error) {
	var file processorFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse processor file: %w", err)
	}
	if len(file.Processors) == 0 {
		return nil, errors.New("processor file defines no processors")
	}

	var errs []error
	seen := map[string]bool{}
	for _, p := range file.Processors {
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("processor %q: id is required", p.Name))
			continue
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("processor %s: defined twice", p.ID))
		}
		seen[p.ID] = true
		errs = append(errs, validateDefs(p.ID, "", p.Attributes)...)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return file.Processors, nil
}

func validateDefs(processorID, parent string, defs []models.AttributeDef) []error {
	var errs []error
	names := map[string]bool{}
	for _, def := range defs {
		key := def.Name
		if parent != "" {
			key = parent + models.SubattributeSeparator + def.Name
		}
		switch {
		case def.Name == "":
			errs = append(errs, fmt.Errorf("processor %s: attribute without a name", processorID))
		case names[def.Name]:
			errs = append(errs, fmt.Errorf("processor %s: attribute %s defined twice", processorID, key))
		}
		names[def.Name] = true
		if fn := cleaning.FunctionName(def.CleaningFunction); fn != "" && !fn.Known() {
			errs = append(errs, fmt.Errorf("processor %s: attribute %s: %w: %q", processorID, key, cleaning.ErrUnknownFunction, fn))
		}
		if parent == "" {
			errs = append(errs, validateDefs(processorID, def.Name, def.Subattributes)...)
		}
	}
	return errs
}

// ImportProcessors saves every processor and returns how many were written.
func ImportProcessors(ctx context.Context, st store.TenancyStore, processors []models.Processor) (int, error) {
	for i := range processors {
		p := &processors[i]
		if err := st.SaveProcessor(ctx, p); err != nil {
			return i, fmt.Errorf("failed to save processor %s: %w", p.ID, err)
		}
		slog.Info("Processor imported.", "processorId", p.ID, "attributes", len(p.Attributes))
	}
	return len(processors), nil
}
