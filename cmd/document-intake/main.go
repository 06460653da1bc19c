package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/config"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/services"
)

var (
	intakeInstance *services.IntakeFunction
	once           sync.Once
	initErr        error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("IntakeDocument", intakeDocument)
}

// main is required by the Go Functions Framework.
func main() {}

func setup(ctx context.Context) (*services.IntakeFunction, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	rt, err := services.NewRuntime(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return services.NewIntakeFromRuntime(ctx, rt)
}

// intakeDocument handles storage object finalize events.
func intakeDocument(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		intakeInstance, initErr = setup(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	_, err := intakeInstance.Process(ctx, gcsEvent)
	return err
}
