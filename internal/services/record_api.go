package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/access"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/store"
)

// ErrBadRequest marks a malformed record API request.
var ErrBadRequest = errors.New("bad request")

// RecordAPI dispatches record API envelopes to the access layer.
type RecordAPI struct {
	records *access.Service
	metrics http.Handler
}

// NewRecordAPI serves records and, on /metrics, the given registry.
func NewRecordAPI(records *access.Service, registry *prometheus.Registry) *RecordAPI {
	api := &RecordAPI{records: records}
	if registry != nil {
		api.metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}
	return api
}

// Handle runs one request and returns its result payload.
func (a *RecordAPI) Handle(ctx context.Context, req models.RecordAPIRequest) (any, error) {
	if req.User == "" {
		return nil, fmt.Errorf("%w: user is required", ErrBadRequest)
	}

	switch req.Action {
	case models.APIFetchRecord:
		return a.records.FetchRecordData(ctx, req.RecordID, req.User)

	case models.APILockRecord:
		return map[string]bool{"locked": a.records.TryLockingRecord(ctx, req.RecordID, req.User)}, nil

	case models.APIReleaseRecord:
		return nil, a.records.ReleaseRecord(ctx, req.RecordID, req.User)

	case models.APIUpdateRecord, models.APIUpdateReviewStatus, models.APIUpdateRecordNotes:
		var data models.RecordUpdate
		if err := decodeData(req.Data, &data); err != nil {
			return nil, err
		}
		switch req.Action {
		case models.APIUpdateReviewStatus:
			if data.ReviewStatus == nil {
				return nil, fmt.Errorf("%w: review_status is required", ErrBadRequest)
			}
			return a.records.UpdateRecordReviewStatus(ctx, req.RecordID, *data.ReviewStatus, req.User, data)
		case models.APIUpdateRecordNotes:
			return a.records.UpdateRecordNotes(ctx, req.RecordID, data.RecordNotes, req.User)
		}
		if req.Type == models.UpdateDigitization {
			return nil, fmt.Errorf("%w: %s updates are not accepted over the API", access.ErrPermissionDenied, req.Type)
		}
		return a.records.UpdateRecord(ctx, access.UpdateRequest{
			RecordID:     req.RecordID,
			Type:         req.Type,
			Data:         data,
			FieldToClean: req.FieldToClean,
			User:         req.User,
		})

	case models.APIDeleteRecord:
		return nil, a.records.DeleteRecord(ctx, req.RecordID, req.User)

	case models.APICleanCollection:
		if err := a.records.RequirePermission(ctx, req.User, models.PermManageProject); err != nil {
			return nil, err
		}
		return a.records.CleanCollection(ctx, access.Scope(req.Scope), req.ScopeID, req.User)

	case models.APIUpdateProject:
		var update models.ProjectUpdate
		if err := decodeData(req.Data, &update); err != nil {
			return nil, err
		}
		return a.records.UpdateProject(ctx, req.ProjectID, update, req.User)
	}
	return nil, fmt.Errorf("%w: unknown action %q", ErrBadRequest, req.Action)
}

func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: invalid data: %v", ErrBadRequest, err)
	}
	return nil
}

// HTTPStatus maps access errors to response codes.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrBadRequest), errors.Is(err, access.ErrInvalidUpdate), errors.Is(err, access.ErrUnsupportedScope):
		return http.StatusBadRequest
	case errors.Is(err, access.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, access.ErrRecordUnavailable), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, access.ErrRecordLocked), errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// ServeHTTP accepts POSTed RecordAPIRequest envelopes.
func (a *RecordAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/metrics" && a.metrics != nil {
		a.metrics.ServeHTTP(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.RecordAPIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Could not decode request body", "error", err)
		writeResponse(w, http.StatusBadRequest, models.RecordAPIResponse{Status: "error", Error: "could not parse JSON"})
		return
	}

	result, err := a.Handle(r.Context(), req)
	code := HTTPStatus(err)
	if err != nil {
		if code == http.StatusInternalServerError {
			slog.Error("Record API request failed", "action", req.Action, "recordId", req.RecordID, "user", req.User, "error", err)
		}
		writeResponse(w, code, models.RecordAPIResponse{Status: "error", Error: err.Error()})
		return
	}
	writeResponse(w, code, models.RecordAPIResponse{Status: "success", Result: result})
}

func writeResponse(w http.ResponseWriter, code int, resp models.RecordAPIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
