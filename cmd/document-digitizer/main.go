package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/config"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/services"
)

var (
	digitizerInstance *services.DigitizerFunction
	once              sync.Once
	initErr           error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleDigitize", handleDigitize)
}

// main is required by the Go Functions Framework.
func main() {}

func setup(ctx context.Context) (*services.DigitizerFunction, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	rt, err := services.NewRuntime(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return services.NewDigitizerFromRuntime(ctx, rt)
}

// handleDigitize is called by the digitization workflow once per record.
func handleDigitize(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		digitizerInstance, initErr = setup(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.DigitizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}
	if req.RecordID == "" {
		http.Error(w, "Bad Request: recordId is required", http.StatusBadRequest)
		return
	}

	res, err := digitizerInstance.Process(r.Context(), &req)
	if err != nil {
		http.Error(w, "Internal Server Error: processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
