// Package app wires the realm-sync services together for the HTTP API, the MCP
// server and the CLI.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/aileks/realm-sync/internal/apperr"
	"github.com/aileks/realm-sync/internal/blob"
	"github.com/aileks/realm-sync/internal/extract"
	"github.com/aileks/realm-sync/internal/graph"
	"github.com/aileks/realm-sync/internal/lifecycle"
	"github.com/aileks/realm-sync/internal/llmcache"
	"github.com/aileks/realm-sync/internal/materialize"
	"github.com/aileks/realm-sync/internal/pipeline"
	"github.com/aileks/realm-sync/internal/projects"
	"github.com/aileks/realm-sync/internal/resolve"
	"github.com/aileks/realm-sync/internal/review"
	"github.com/aileks/realm-sync/internal/store"
)

// Deps are the external collaborators. Only Store is required.
type Deps struct {
	Store     store.Store
	Blobs     blob.Store
	Projector graph.Projector
	Completer extract.Completer
	Logger    *slog.Logger
}

// Options tunes extraction.
type Options struct {
	PromptVersion     string
	MaxChunkSize      int
	Concurrency       int
	CacheTTL          time.Duration
	MinResponseTokens int
	MaxResponseTokens int
}

// Services holds every owner-gated service.
type Services struct {
	Store         store.Store
	Projects      *projects.Projects
	Documents     *projects.Documents
	Entities      *review.Entities
	Facts         *review.Facts
	Resolver      *resolve.Resolver
	Processor     *pipeline.Processor
	Cache         *llmcache.Cache
	Lifecycle     *lifecycle.Manager
	PromptVersion string
}

// New builds the services. Without a Completer, document processing fails with a
// configuration error; everything else works.
func New(d Deps, o Options) *Services {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	projector := d.Projector
	if projector == nil {
		projector = graph.Nop{}
	}
	completer := d.Completer
	if completer == nil {
		completer = unconfigured{}
	}
	if o.PromptVersion == "" {
		o.PromptVersion = extract.DefaultPromptVersion
	}

	var cacheOpts []llmcache.Option
	if o.CacheTTL > 0 {
		cacheOpts = append(cacheOpts, llmcache.WithTTL(o.CacheTTL))
	}
	cache := llmcache.New(d.Store, logger, cacheOpts...)
	resolver := resolve.New(d.Store, logger)
	docs := projects.NewDocuments(d.Store, d.Blobs, projector, logger)
	extractor := extract.NewExtractor(completer, cache, logger, o.MinResponseTokens, o.MaxResponseTokens)
	mat := materialize.New(d.Store, resolver, logger)

	return &Services{
		Store:     d.Store,
		Projects:  projects.NewProjects(d.Store, d.Blobs, projector, logger),
		Documents: docs,
		Entities:  review.NewEntities(d.Store, projector, logger),
		Facts:     review.NewFacts(d.Store, projector, logger),
		Resolver:  resolver,
		Processor: pipeline.NewProcessor(d.Store, docs, extractor, mat, logger, pipeline.Options{
			PromptVersion: o.PromptVersion,
			MaxChunkSize:  o.MaxChunkSize,
			Concurrency:   o.Concurrency,
		}),
		Cache:         cache,
		Lifecycle:     lifecycle.NewManager(d.Store, cache, logger),
		PromptVersion: o.PromptVersion,
	}
}

// unconfigured stands in for the model when no API key is set.
type unconfigured struct{}

func (unconfigured) Model() string { return "" }

func (unconfigured) Complete(context.Context, string, string, int64) (string, error) {
	return "", apperr.New(apperr.CodeConfiguration, "claude.api_key is not set")
}
