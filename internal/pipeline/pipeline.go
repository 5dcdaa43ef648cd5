// Package pipeline drives a document through chunking, extraction and
// materialization.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aileks/realm-sync/internal/apperr"
	"github.com/aileks/realm-sync/internal/auth"
	"github.com/aileks/realm-sync/internal/chunker"
	"github.com/aileks/realm-sync/internal/extract"
	"github.com/aileks/realm-sync/internal/materialize"
	"github.com/aileks/realm-sync/internal/metrics"
	"github.com/aileks/realm-sync/internal/models"
	"github.com/aileks/realm-sync/internal/projects"
	"github.com/aileks/realm-sync/internal/store"
)

// DefaultConcurrency bounds concurrent extraction calls per document.
const DefaultConcurrency = 4

// Options tunes a Processor.
type Options struct {
	PromptVersion string
	MaxChunkSize  int
	Concurrency   int
}

func (o Options) withDefaults() Options {
	if o.PromptVersion == "" {
		o.PromptVersion = extract.DefaultPromptVersion
	}
	if o.MaxChunkSize <= 0 {
		o.MaxChunkSize = chunker.DefaultMaxChunkSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	return o
}

// ChunkExtractor extracts one chunk. *extract.Extractor implements it.
type ChunkExtractor interface {
	ExtractChunk(ctx context.Context, chunk chunker.Chunk, promptVersion string) (*models.ExtractionResult, error)
}

// Processor extracts canon from documents.
type Processor struct {
	st        store.Store
	docs      *projects.Documents
	extractor ChunkExtractor
	mat       *materialize.Materializer
	logger    *slog.Logger
	opts      Options
	now       func() time.Time

	mu      sync.Mutex
	running map[string]struct{}
}

// NewProcessor creates a Processor.
func NewProcessor(st store.Store, docs *projects.Documents, extractor ChunkExtractor, mat *materialize.Materializer, logger *slog.Logger, opts Options) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		st:        st,
		docs:      docs,
		extractor: extractor,
		mat:       mat,
		logger:    logger,
		opts:      opts.withDefaults(),
		now:       time.Now,
		running:   make(map[string]struct{}),
	}
}

// ChunkFailure records a chunk whose extraction failed.
type ChunkFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// Report summarizes one ProcessDocument run.
type Report struct {
	DocumentID           string                  `json:"document_id"`
	Chunks               int                     `json:"chunks"`
	StalePendingReplaced int                     `json:"stale_pending_replaced"`
	Summary              materialize.Summary     `json:"summary"`
	Failed               []ChunkFailure          `json:"failed,omitempty"`
	Status               models.ProcessingStatus `json:"status"`
}

// ProcessDocument extracts and materializes a document the caller owns. Chunks are
// extracted concurrently and written in document order, one transaction each. When
// any chunk fails the successful chunks stay written, the document stays processing,
// and the returned error lists the failures alongside the partial report.
//
// Pending facts left from an earlier run are replaced region by region: a chunk that
// is written drops the earlier pending facts whose evidence falls inside it, and the
// rest go when the document completes. A failed chunk keeps its earlier facts.
//
// A document already in processing is rejected with a conflict; use Retry to restart
// a run that failed or stalled.
func (p *Processor) ProcessDocument(ctx context.Context, caller auth.Caller, documentID string) (*Report, error) {
	return p.run(ctx, caller, documentID, false)
}

// Retry is ProcessDocument for a document left in processing by a failed or
// abandoned run. A run still active in this process is rejected all the same.
func (p *Processor) Retry(ctx context.Context, caller auth.Caller, documentID string) (*Report, error) {
	return p.run(ctx, caller, documentID, true)
}

func (p *Processor) run(ctx context.Context, caller auth.Caller, documentID string, retry bool) (*Report, error) {
	rep := &Report{DocumentID: documentID}
	doc, stale, err := p.begin(ctx, caller, documentID, retry)
	if err != nil {
		return nil, err
	}
	if !p.acquire(documentID) {
		return nil, errAlreadyProcessing
	}
	defer p.release(documentID)

	content, err := p.docs.Content(ctx, doc)
	if err != nil {
		return nil, err
	}
	chunks, err := chunker.Split(content, p.opts.MaxChunkSize)
	if err != nil {
		return nil, err
	}
	rep.Chunks = len(chunks)
	p.logger.Info("pipeline: processing document", "document_id", documentID,
		"chunks", len(chunks), "stale_pending", len(stale), "retry", retry)

	results := make([]*models.ExtractionResult, len(chunks))
	errs := make([]error, len(chunks))
	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i := range chunks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			results[i], errs[i] = p.extractor.ExtractChunk(ctx, chunks[i], p.opts.PromptVersion)
			return nil
		})
	}
	_ = g.Wait()

	byChunk, rest := assignStale(stale, chunks)
	for i := range chunks {
		if errs[i] != nil {
			rep.Failed = append(rep.Failed, ChunkFailure{Index: i, Error: errs[i].Error()})
			continue
		}
		sum, err := p.mat.ApplyChunk(ctx, documentID, extract.Rebase(results[i], chunks[i].Start), byChunk[i])
		if err != nil {
			errs[i] = fmt.Errorf("materializing chunk %d: %w", i, err)
			rep.Failed = append(rep.Failed, ChunkFailure{Index: i, Error: errs[i].Error()})
			continue
		}
		rep.Summary.Add(sum)
	}
	rep.StalePendingReplaced = rep.Summary.FactsReplaced

	if len(rep.Failed) > 0 {
		metrics.Add(metrics.ChunkFailures, len(rep.Failed))
		rep.Status = models.ProcessingProcessing
		p.logger.Warn("pipeline: document left in processing", "document_id", documentID,
			"failed_chunks", len(rep.Failed), "chunks", len(chunks))
		return rep, fmt.Errorf("processing document %s: %d of %d chunks failed: %w",
			documentID, len(rep.Failed), len(chunks), errors.Join(errs...))
	}

	dropped, err := p.mat.Complete(ctx, documentID, rest)
	if err != nil {
		return nil, err
	}
	rep.StalePendingReplaced += dropped
	rep.Status = models.ProcessingCompleted
	p.logger.Info("pipeline: document completed", "document_id", documentID,
		"entities_created", rep.Summary.EntitiesCreated, "facts_created", rep.Summary.FactsCreated,
		"stale_pending_replaced", rep.StalePendingReplaced)
	return rep, nil
}

var errAlreadyProcessing = apperr.Conflict("document is already being processed")

func (p *Processor) acquire(documentID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.running[documentID]; ok {
		return false
	}
	p.running[documentID] = struct{}{}
	return true
}

func (p *Processor) release(documentID string) {
	p.mu.Lock()
	delete(p.running, documentID)
	p.mu.Unlock()
}

// begin checks access, claims the document by moving it to processing and lists the
// pending facts earlier runs left behind.
func (p *Processor) begin(ctx context.Context, caller auth.Caller, documentID string, retry bool) (*models.Document, []models.Fact, error) {
	var (
		doc   *models.Document
		stale []models.Fact
	)
	err := p.st.Update(ctx, func(tx store.Tx) error {
		d, _, err := projects.OwnedDocument(ctx, tx, caller, documentID)
		if err != nil {
			return err
		}
		if p.opts.MaxChunkSize < chunker.MinChunkSize {
			return apperr.Validation("max chunk size %d is below the minimum of %d bytes",
				p.opts.MaxChunkSize, chunker.MinChunkSize)
		}
		if d.ProcessingStatus == models.ProcessingProcessing && !retry {
			return apperr.Conflict("document is already being processed; retry it if the previous run failed")
		}
		facts, err := tx.FactsByDocument(ctx, documentID)
		if err != nil {
			return err
		}
		for i := range facts {
			if facts[i].Status == models.FactStatusPending {
				stale = append(stale, facts[i])
			}
		}
		doc, err = projects.SetProcessingStatus(ctx, tx, documentID, models.ProcessingProcessing, p.now())
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return doc, stale, nil
}

// assignStale maps each stale fact to the chunk containing the start of its evidence.
// Facts with no evidence position, or evidence outside every chunk, are returned in
// rest.
func assignStale(stale []models.Fact, chunks []chunker.Chunk) (byChunk [][]string, rest []string) {
	byChunk = make([][]string, len(chunks))
	for _, f := range stale {
		i := -1
		if f.EvidencePosition != nil {
			at := f.EvidencePosition.Start
			i = sort.Search(len(chunks), func(j int) bool { return chunks[j].End > at })
			if i < len(chunks) && chunks[i].Start > at {
				i = -1
			}
		}
		if i < 0 || i >= len(chunks) {
			rest = append(rest, f.ID)
			continue
		}
		byChunk[i] = append(byChunk[i], f.ID)
	}
	return byChunk, rest
}
