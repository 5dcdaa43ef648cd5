// Package extract turns chunks of document text into validated extraction results,
// going through the response cache before calling the model.
package extract

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aileks/realm-sync/internal/apperr"
	"github.com/aileks/realm-sync/internal/chunker"
	"github.com/aileks/realm-sync/internal/llmcache"
	"github.com/aileks/realm-sync/internal/metrics"
	"github.com/aileks/realm-sync/internal/models"
	"github.com/aileks/realm-sync/pkg/tokenizer"
)

// Response token budget defaults.
const (
	DefaultMinResponseTokens = 1024
	DefaultMaxResponseTokens = 8192

	// responseFactor scales the chunk's token estimate into a response budget.
	responseFactor = 2.0
	// rawLogBudget bounds how much of an invalid response is logged.
	rawLogBudget = 256
)

// Extractor runs the cache-then-model extraction for single chunks.
type Extractor struct {
	completer Completer
	cache     *llmcache.Cache
	logger    *slog.Logger
	minTokens int
	maxTokens int
}

// NewExtractor creates an Extractor. Token bounds <= 0 use the defaults.
func NewExtractor(completer Completer, cache *llmcache.Cache, logger *slog.Logger, minTokens, maxTokens int) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if minTokens <= 0 {
		minTokens = DefaultMinResponseTokens
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxResponseTokens
	}
	if maxTokens < minTokens {
		maxTokens = minTokens
	}
	return &Extractor{completer: completer, cache: cache, logger: logger, minTokens: minTokens, maxTokens: maxTokens}
}

// ExtractChunk returns the extraction for chunk with chunk-local evidence offsets.
// A cached result for the same text and prompt version is returned without calling
// the model. Nothing is cached when the response fails validation.
func (e *Extractor) ExtractChunk(ctx context.Context, chunk chunker.Chunk, promptVersion string) (*models.ExtractionResult, error) {
	hash := llmcache.ComputeHash(chunk.Text)

	cached, err := e.cache.Check(ctx, hash, promptVersion)
	if err != nil {
		e.logger.Warn("extract: cache check failed, calling model", "chunk", chunk.Index, "error", err)
	}
	if cached != nil {
		e.logger.Debug("extract: cache hit", "chunk", chunk.Index, "hash", hash)
		return cached, nil
	}

	maxTokens := tokenizer.Budget(chunk.Text, responseFactor, e.minTokens, e.maxTokens)
	raw, err := e.completer.Complete(ctx, systemPrompt, BuildPrompt(chunk.Text), int64(maxTokens))
	if err != nil {
		return nil, fmt.Errorf("extracting chunk %d: %w", chunk.Index, err)
	}
	metrics.Inc(metrics.ExtractionsTotal)

	result, err := parse(raw, func(name, typ string) {
		e.logger.Warn("extract: unknown entity type, defaulting to concept", "name", name, "type", typ)
	})
	if err != nil {
		e.logger.Warn("extract: invalid model response",
			"chunk", chunk.Index, "error", err, "raw", tokenizer.TruncateToTokenBudget(raw, rawLogBudget))
		return nil, apperr.Wrap(apperr.CodeAPI, err, "model returned an invalid extraction")
	}

	if _, err := e.cache.Save(ctx, hash, promptVersion, e.completer.Model(), result); err != nil {
		e.logger.Warn("extract: caching result failed", "chunk", chunk.Index, "error", err)
	}

	e.logger.Info("extract: chunk extracted", "chunk", chunk.Index,
		"entities", len(result.Entities), "facts", len(result.Facts), "relationships", len(result.Relationships))
	return result, nil
}
