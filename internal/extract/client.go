// Package extract drives entity extraction over chunked note text, merging
// per-chunk results with cross-chunk deduplication and context.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/notegraphhq/notegraph/internal/insight"
	"github.com/notegraphhq/notegraph/pkg/models"
)

// ErrInvalidResponse is returned when the engine's extraction payload cannot
// be interpreted.
var ErrInvalidResponse = errors.New("engine returned invalid extraction response")

// Extractor produces entities for one chunk of note text. known carries the
// entities already accepted from earlier chunks so the engine can reference
// and disambiguate them.
type Extractor interface {
	ExtractChunk(ctx context.Context, text string, known []models.Entity) ([]models.Entity, error)
}

// EngineExtractor calls the insight engine's extraction endpoint through the
// retrying executor.
type EngineExtractor struct {
	exec *insight.Executor
	path string
}

// NewEngineExtractor creates an extractor posting to path (the engine's
// extract endpoint).
func NewEngineExtractor(exec *insight.Executor, path string) *EngineExtractor {
	return &EngineExtractor{exec: exec, path: path}
}

type extractRequest struct {
	Text          string          `json:"text"`
	KnownEntities []models.Entity `json:"known_entities,omitempty"`
}

func (x *EngineExtractor) ExtractChunk(ctx context.Context, text string, known []models.Entity) ([]models.Entity, error) {
	resp, err := x.exec.Do(ctx, insight.Request{
		Method: http.MethodPost,
		Path:   x.path,
		Body:   extractRequest{Text: text, KnownEntities: known},
	})
	if err != nil {
		return nil, err
	}
	return parseEntities(resp)
}

// parseEntities reads the entity list out of a normalized response. The
// engine nests it under "entities"; re-marshalling through json keeps the
// parsing lenient about extra fields.
func parseEntities(resp *insight.Response) ([]models.Entity, error) {
	if resp.JSON == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrInvalidResponse)
	}
	raw, ok := resp.JSON["entities"]
	if !ok {
		return nil, fmt.Errorf("%w: missing entities field", ErrInvalidResponse)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	var entities []models.Entity
	if err := json.Unmarshal(b, &entities); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return entities, nil
}

// Compile-time check that EngineExtractor implements Extractor.
var _ Extractor = (*EngineExtractor)(nil)
