package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/notegraphhq/notegraph/internal/api/response"
	"github.com/notegraphhq/notegraph/internal/store"
	"github.com/notegraphhq/notegraph/pkg/models"
)

// ReportService defines the interface the report handlers depend on.
type ReportService interface {
	Start(ctx context.Context, conversationID, query string) (*models.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
	Latest(ctx context.Context, conversationID string) (*models.Job, error)
	Cancel(id uuid.UUID) bool
}

// NewStartReportHandler returns an http.HandlerFunc for POST /api/v1/reports.
// The job runs in the background; the response carries the record to poll.
func NewStartReportHandler(svc ReportService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ConversationID string `json:"conversation_id"`
			Query          string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Query == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "query is required", nil)
			return
		}
		if req.ConversationID == "" {
			req.ConversationID = uuid.NewString()
		}

		rec, err := svc.Start(r.Context(), req.ConversationID, req.Query)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to start the report job", nil)
			return
		}

		response.Accepted(w, rec)
	}
}

// NewGetReportHandler returns an http.HandlerFunc for GET /api/v1/reports/{jobID}.
func NewGetReportHandler(svc ReportService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a UUID", nil)
			return
		}

		rec, err := svc.Get(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "No such report job", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load the report job", nil)
			return
		}

		response.JSON(w, rec)
	}
}

// NewLatestReportHandler returns an http.HandlerFunc for
// GET /api/v1/conversations/{conversationID}/report, used to re-attach to a
// running job after a reconnect or restart.
func NewLatestReportHandler(svc ReportService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conversationID := chi.URLParam(r, "conversationID")
		if conversationID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "conversationID is required", nil)
			return
		}

		rec, err := svc.Latest(r.Context(), conversationID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "No report job for this conversation", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load the report job", nil)
			return
		}

		response.JSON(w, rec)
	}
}

// NewCancelReportHandler returns an http.HandlerFunc for
// DELETE /api/v1/reports/{jobID}. Cancellation is cooperative: the background
// goroutine observes the signal and records the terminal state.
func NewCancelReportHandler(svc ReportService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a UUID", nil)
			return
		}

		if !svc.Cancel(id) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "No active report job with this id", nil)
			return
		}

		response.Accepted(w, map[string]any{"id": id, "status": models.JobStatusCancelled})
	}
}
