// Package handler contains the HTTP handlers for the NoteGraph API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/notegraphhq/notegraph/internal/api/response"
	"github.com/notegraphhq/notegraph/internal/extract"
	"github.com/notegraphhq/notegraph/internal/insight"
	"github.com/notegraphhq/notegraph/pkg/models"
)

// maxExtractChars bounds the accepted note text; anything larger should be
// split client-side into separate notes.
const maxExtractChars = 200_000

// Extractor defines the interface the extract handler depends on.
type Extractor interface {
	Run(ctx context.Context, text string) (*extract.Result, error)
}

type extractResponse struct {
	Entities     []models.Entity `json:"entities"`
	TotalChunks  int             `json:"total_chunks"`
	FailedChunks []int           `json:"failed_chunks,omitempty"`
}

// NewExtractHandler returns an http.HandlerFunc for POST /api/v1/extract.
// Extraction runs synchronously within the request; partial success (some
// chunks skipped) is still a 200.
func NewExtractHandler(svc Extractor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Text == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "text is required", nil)
			return
		}
		if len(req.Text) > maxExtractChars {
			response.Error(w, http.StatusRequestEntityTooLarge, "TEXT_TOO_LARGE",
				"text exceeds the maximum accepted size", nil)
			return
		}

		result, err := svc.Run(r.Context(), req.Text)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		response.JSON(w, extractResponse{
			Entities:     result.Entities,
			TotalChunks:  result.TotalChunks,
			FailedChunks: result.FailedChunks,
		})
	}
}

// writeEngineError maps client-layer failures onto API status codes, carrying
// the remediation hint through to the caller.
func writeEngineError(w http.ResponseWriter, err error) {
	var ie *insight.Error
	if errors.As(err, &ie) {
		switch ie.Category {
		case insight.CategoryRateLimited:
			response.Error(w, http.StatusTooManyRequests, "ENGINE_RATE_LIMITED", ie.Hint, nil)
		case insight.CategoryTimeout, insight.CategoryGatewayTimeout:
			response.Error(w, http.StatusGatewayTimeout, "ENGINE_TIMEOUT", ie.Hint, nil)
		case insight.CategoryClientFatal:
			response.Error(w, http.StatusBadGateway, "ENGINE_REJECTED", ie.Hint, nil)
		case insight.CategoryCancelled:
			response.Error(w, http.StatusConflict, "CANCELLED", ie.Hint, nil)
		default:
			response.Error(w, http.StatusBadGateway, "ENGINE_UNAVAILABLE", ie.Hint, nil)
		}
		return
	}

	switch {
	case errors.Is(err, extract.ErrNoEntities):
		response.Error(w, http.StatusUnprocessableEntity, "NO_ENTITIES",
			"No entities could be extracted from the text", nil)
	case insight.IsCancelled(err):
		response.Error(w, http.StatusConflict, "CANCELLED", "The operation was cancelled", nil)
	default:
		response.Error(w, http.StatusBadGateway, "ENGINE_ERROR",
			"Extraction failed; try again later", nil)
	}
}
