package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/notegraphhq/notegraph/internal/chunk"
	"github.com/notegraphhq/notegraph/internal/insight"
	"github.com/notegraphhq/notegraph/pkg/models"
)

// ErrNoEntities is returned when every chunk failed or the whole run produced
// zero entities.
var ErrNoEntities = errors.New("extraction produced no entities")

// Config bounds a single extraction run.
type Config struct {
	ChunkSize      int
	ChunkThreshold int
}

// DefaultConfig returns the chunking defaults for note extraction.
func DefaultConfig() Config {
	return Config{ChunkSize: 8000, ChunkThreshold: 10000}
}

// Result is the merged output of one extraction run. FailedChunks lists the
// zero-based indexes of chunks that were skipped; a run with some failures
// and at least one entity is still a success.
type Result struct {
	Entities     []models.Entity
	TotalChunks  int
	FailedChunks []int
}

// Merger splits oversized input, extracts each chunk sequentially, and merges
// the results. Chunk i+1 never starts before chunk i is merged: its context
// depends on the accumulated entity set.
type Merger struct {
	extractor Extractor
	cfg       Config
	logger    *slog.Logger
}

// NewMerger creates a Merger. Zero-valued config fields fall back to defaults.
func NewMerger(extractor Extractor, cfg Config, logger *slog.Logger) *Merger {
	def := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.ChunkThreshold <= 0 {
		cfg.ChunkThreshold = def.ChunkThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{extractor: extractor, cfg: cfg, logger: logger}
}

// Run extracts entities from text. Duplicate entities (same dedup key) from
// later chunks are dropped silently. A single chunk's failure is logged and
// skipped; the run fails only when every chunk failed or nothing was
// extracted. Cancellation aborts immediately between chunks.
func (m *Merger) Run(ctx context.Context, text string) (*Result, error) {
	chunks := chunk.Split(text, m.cfg.ChunkSize, m.cfg.ChunkThreshold)
	if len(chunks) == 0 {
		return nil, ErrNoEntities
	}

	seen := make(map[string]struct{})
	var accepted []models.Entity
	var failed []int
	var lastErr error

	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", insight.ErrCancelled, err)
		}

		entities, err := m.extractor.ExtractChunk(ctx, c, accepted)
		if err != nil {
			if insight.IsCancelled(err) {
				return nil, err
			}
			m.logger.Warn("chunk extraction failed, skipping",
				"chunk", i+1,
				"total_chunks", len(chunks),
				"error", err,
			)
			failed = append(failed, i)
			lastErr = err
			continue
		}

		for _, ent := range entities {
			key := ent.DedupKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			ent.TempID = fmt.Sprintf("tmp-%d", len(accepted)+1)
			accepted = append(accepted, ent)
		}
	}

	if len(failed) == len(chunks) {
		return nil, fmt.Errorf("all %d chunks failed: %w", len(chunks), lastErr)
	}
	if len(accepted) == 0 {
		return nil, ErrNoEntities
	}

	if len(failed) > 0 {
		m.logger.Info("extraction completed with skipped chunks",
			"entities", len(accepted),
			"failed_chunks", len(failed),
			"total_chunks", len(chunks),
		)
	}

	return &Result{Entities: accepted, TotalChunks: len(chunks), FailedChunks: failed}, nil
}
