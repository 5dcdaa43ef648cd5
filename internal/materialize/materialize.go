// Package materialize writes extraction results into the record store as pending
// entities and facts and keeps the project counters in step.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aileks/realm-sync/internal/metrics"
	"github.com/aileks/realm-sync/internal/models"
	"github.com/aileks/realm-sync/internal/projects"
	"github.com/aileks/realm-sync/internal/resolve"
	"github.com/aileks/realm-sync/internal/stats"
	"github.com/aileks/realm-sync/internal/store"
)

// relationshipConfidence is assigned to facts derived from relationships.
const relationshipConfidence = 1.0

// Summary counts what one materialization wrote.
type Summary struct {
	EntitiesCreated int `json:"entities_created"`
	EntitiesMatched int `json:"entities_matched"`
	FactsCreated    int `json:"facts_created"`
	FactsSkipped    int `json:"facts_skipped"`
	FactsReplaced   int `json:"facts_replaced"`
}

// Add accumulates o into s.
func (s *Summary) Add(o *Summary) {
	if o == nil {
		return
	}
	s.EntitiesCreated += o.EntitiesCreated
	s.EntitiesMatched += o.EntitiesMatched
	s.FactsCreated += o.FactsCreated
	s.FactsSkipped += o.FactsSkipped
	s.FactsReplaced += o.FactsReplaced
}

// Materializer applies extraction results.
type Materializer struct {
	st       store.Store
	resolver *resolve.Resolver
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Materializer.
func New(st store.Store, resolver *resolve.Resolver, logger *slog.Logger) *Materializer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{st: st, resolver: resolver, logger: logger, now: time.Now}
}

// ProcessExtractionResult writes result for documentID and marks the document
// completed, all in one transaction. An empty result still completes the document.
func (m *Materializer) ProcessExtractionResult(ctx context.Context, documentID string, result *models.ExtractionResult) (*Summary, error) {
	var sum *Summary
	err := m.st.Update(ctx, func(tx store.Tx) error {
		var err error
		if sum, err = m.apply(ctx, tx, documentID, result); err != nil {
			return err
		}
		_, err = projects.SetProcessingStatus(ctx, tx, documentID, models.ProcessingCompleted, m.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	m.record(documentID, sum)
	return sum, nil
}

// ApplyChunk writes one chunk's result without changing the document status. The
// facts named in replace are deleted in the same transaction if they are still
// pending, so a re-read chunk swaps its earlier output for the new one.
func (m *Materializer) ApplyChunk(ctx context.Context, documentID string, result *models.ExtractionResult, replace []string) (*Summary, error) {
	var sum *Summary
	err := m.st.Update(ctx, func(tx store.Tx) error {
		dropped, err := dropPending(ctx, tx, replace)
		if err != nil {
			return err
		}
		if sum, err = m.apply(ctx, tx, documentID, result); err != nil {
			return err
		}
		sum.FactsReplaced = dropped
		return m.adjustFacts(ctx, tx, documentID, -int64(dropped))
	})
	if err != nil {
		return nil, err
	}
	m.record(documentID, sum)
	return sum, nil
}

// Complete deletes the facts in replace that are still pending, then marks the
// document completed and stamps ProcessedAt. It returns how many facts it deleted.
func (m *Materializer) Complete(ctx context.Context, documentID string, replace []string) (int, error) {
	var dropped int
	err := m.st.Update(ctx, func(tx store.Tx) error {
		var err error
		if dropped, err = dropPending(ctx, tx, replace); err != nil {
			return err
		}
		if err := m.adjustFacts(ctx, tx, documentID, -int64(dropped)); err != nil {
			return err
		}
		_, err = projects.SetProcessingStatus(ctx, tx, documentID, models.ProcessingCompleted, m.now())
		return err
	})
	return dropped, err
}

func (m *Materializer) adjustFacts(ctx context.Context, tx store.Tx, documentID string, delta int64) error {
	if delta == 0 {
		return nil
	}
	doc, err := tx.GetDocument(ctx, documentID)
	if err != nil {
		return projects.Missing(err, "document", documentID)
	}
	return stats.Apply(ctx, tx, doc.ProjectID, stats.Delta{Facts: delta})
}

// dropPending deletes the listed facts that still exist and are still pending.
// Facts reviewed in the meantime are left alone.
func dropPending(ctx context.Context, tx store.Tx, ids []string) (int, error) {
	var n int
	for _, id := range ids {
		f, err := tx.GetFact(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if f.Status != models.FactStatusPending {
			continue
		}
		if err := tx.DeleteFact(ctx, id); err != nil {
			return 0, fmt.Errorf("replacing fact %s: %w", id, err)
		}
		n++
	}
	return n, nil
}

func (m *Materializer) record(documentID string, sum *Summary) {
	metrics.Add(metrics.EntitiesCreated, sum.EntitiesCreated)
	metrics.Add(metrics.FactsCreated, sum.FactsCreated)
	metrics.Add(metrics.FactsSkipped, sum.FactsSkipped)
	m.logger.Info("materialize: extraction applied", "document_id", documentID,
		"entities_created", sum.EntitiesCreated, "entities_matched", sum.EntitiesMatched,
		"facts_created", sum.FactsCreated, "facts_skipped", sum.FactsSkipped,
		"facts_replaced", sum.FactsReplaced)
}

func (m *Materializer) apply(ctx context.Context, tx store.Tx, documentID string, result *models.ExtractionResult) (*Summary, error) {
	doc, err := tx.GetDocument(ctx, documentID)
	if err != nil {
		return nil, projects.Missing(err, "document", documentID)
	}
	sum := &Summary{}
	if result.Empty() {
		return sum, nil
	}

	idx, err := resolve.LoadIndex(ctx, tx, doc.ProjectID)
	if err != nil {
		return nil, err
	}

	for _, e := range result.Entities {
		res, err := m.resolver.ResolveEntity(ctx, tx, idx, resolve.Request{
			ProjectID:        doc.ProjectID,
			SourceDocumentID: documentID,
			Name:             e.Name,
			Type:             e.Type,
			Description:      e.Description,
			Aliases:          e.Aliases,
		})
		if err != nil {
			return nil, err
		}
		if res.IsNew {
			sum.EntitiesCreated++
		} else {
			sum.EntitiesMatched++
		}
	}

	now := m.now().UTC()
	newFact := func(entityID string) *models.Fact {
		return &models.Fact{
			ID:         uuid.New().String(),
			ProjectID:  doc.ProjectID,
			EntityID:   entityID,
			DocumentID: documentID,
			Status:     models.FactStatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}

	for _, f := range result.Facts {
		entityID, ok := idx.Lookup(f.EntityName)
		if !ok {
			sum.FactsSkipped++
			m.logger.Debug("materialize: fact references unknown entity, skipping",
				"document_id", documentID, "entity_name", f.EntityName)
			continue
		}
		fact := newFact(entityID)
		fact.Subject, fact.Predicate, fact.Object = f.Subject, f.Predicate, f.Object
		fact.Confidence = f.Confidence
		fact.Evidence = f.Evidence
		fact.EvidencePosition = f.EvidencePosition
		fact.TemporalBound = f.TemporalBound
		if err := tx.PutFact(ctx, fact); err != nil {
			return nil, fmt.Errorf("creating fact: %w", err)
		}
		sum.FactsCreated++
	}

	for _, r := range result.Relationships {
		sourceID, okSource := idx.Lookup(r.SourceEntity)
		_, okTarget := idx.Lookup(r.TargetEntity)
		if !okSource || !okTarget {
			sum.FactsSkipped++
			m.logger.Debug("materialize: relationship references unknown entity, skipping",
				"document_id", documentID, "source", r.SourceEntity, "target", r.TargetEntity)
			continue
		}
		fact := newFact(sourceID)
		fact.Subject, fact.Predicate, fact.Object = r.SourceEntity, r.RelationshipType, r.TargetEntity
		fact.Confidence = relationshipConfidence
		fact.Evidence = r.Evidence
		fact.EvidencePosition = r.EvidencePosition
		if err := tx.PutFact(ctx, fact); err != nil {
			return nil, fmt.Errorf("creating relationship fact: %w", err)
		}
		sum.FactsCreated++
	}

	err = stats.Apply(ctx, tx, doc.ProjectID, stats.Delta{
		Entities: int64(sum.EntitiesCreated),
		Facts:    int64(sum.FactsCreated),
	})
	if err != nil {
		return nil, err
	}
	return sum, nil
}
