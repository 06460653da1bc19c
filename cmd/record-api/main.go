package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/config"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/services"
)

var (
	recordAPI *services.RecordAPI
	once      sync.Once
	initErr   error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleRecordAPI", handleRecordAPI)
}

// main is required by the Go Functions Framework.
func main() {}

func setup(ctx context.Context) (*services.RecordAPI, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	rt, err := services.NewRuntime(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return services.NewRecordAPI(rt.Records, rt.Registry), nil
}

func handleRecordAPI(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		recordAPI, initErr = setup(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	recordAPI.ServeHTTP(w, r)
}
