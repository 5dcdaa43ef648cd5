package review

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aileks/realm-sync/internal/apperr"
	"github.com/aileks/realm-sync/internal/auth"
	"github.com/aileks/realm-sync/internal/graph"
	"github.com/aileks/realm-sync/internal/models"
	"github.com/aileks/realm-sync/internal/projects"
	"github.com/aileks/realm-sync/internal/stats"
	"github.com/aileks/realm-sync/internal/store"
)

// Facts is the owner-gated fact review service.
type Facts struct {
	st        store.Store
	projector graph.Projector
	logger    *slog.Logger
	now       func() time.Time
}

// NewFacts creates the fact service. projector may be nil.
func NewFacts(st store.Store, projector graph.Projector, logger *slog.Logger) *Facts {
	if logger == nil {
		logger = slog.Default()
	}
	if projector == nil {
		projector = graph.Nop{}
	}
	return &Facts{st: st, projector: projector, logger: logger, now: time.Now}
}

// CreateFactInput holds the fields of a user-asserted fact. Confidence defaults to 1.
type CreateFactInput struct {
	ProjectID        string                `json:"project_id"`
	EntityID         string                `json:"entity_id,omitempty"`
	DocumentID       string                `json:"document_id,omitempty"`
	Subject          string                `json:"subject"`
	Predicate        string                `json:"predicate"`
	Object           string                `json:"object"`
	Confidence       *float64              `json:"confidence,omitempty"`
	Evidence         string                `json:"evidence,omitempty"`
	EvidencePosition *models.Span          `json:"evidence_position,omitempty"` // byte span into the document's content
	TemporalBound    *models.TemporalBound `json:"temporal_bound,omitempty"`
	Status           models.FactStatus     `json:"status,omitempty"`
}

// Create adds a fact to a project.
func (s *Facts) Create(ctx context.Context, caller auth.Caller, in CreateFactInput) (*models.Fact, error) {
	var (
		out         *models.Fact
		projectable = true
	)
	err := s.st.Update(ctx, func(tx store.Tx) error {
		p, err := projects.Owned(ctx, tx, caller, in.ProjectID)
		if err != nil {
			return err
		}
		if in.EntityID != "" {
			e, err := tx.GetEntity(ctx, in.EntityID)
			if err != nil {
				return projects.Missing(err, "entity", in.EntityID)
			}
			if e.ProjectID != p.ID {
				return apperr.Validation("entity %s belongs to another project", in.EntityID)
			}
			projectable = e.Status == models.EntityStatusConfirmed
		}
		if in.DocumentID != "" {
			d, err := tx.GetDocument(ctx, in.DocumentID)
			if err != nil {
				return projects.Missing(err, "document", in.DocumentID)
			}
			if d.ProjectID != p.ID {
				return apperr.Validation("document %s belongs to another project", in.DocumentID)
			}
		}

		subject := strings.TrimSpace(in.Subject)
		predicate := strings.TrimSpace(in.Predicate)
		object := strings.TrimSpace(in.Object)
		if subject == "" || predicate == "" || object == "" {
			return apperr.Validation("subject, predicate and object are required")
		}
		confidence := 1.0
		if in.Confidence != nil {
			confidence = *in.Confidence
		}
		if confidence < 0 || confidence > 1 {
			return apperr.Validation("confidence must be between 0 and 1")
		}
		status := in.Status
		if status == "" {
			status = models.FactStatusPending
		}
		if status != models.FactStatusPending && status != models.FactStatusConfirmed {
			return apperr.Validation("new facts must be pending or confirmed")
		}
		if tb := in.TemporalBound; tb != nil && !tb.Type.IsValid() {
			return apperr.Validation("invalid temporal bound type %q", tb.Type)
		}
		if sp := in.EvidencePosition; sp != nil {
			if in.DocumentID == "" {
				return apperr.Validation("evidence_position needs a document_id")
			}
			if sp.Start < 0 || sp.End < sp.Start {
				return apperr.Validation("invalid evidence position [%d, %d)", sp.Start, sp.End)
			}
		}

		now := s.now().UTC()
		f := &models.Fact{
			ID:            uuid.New().String(),
			ProjectID:     p.ID,
			EntityID:      in.EntityID,
			DocumentID:    in.DocumentID,
			Subject:       subject,
			Predicate:     predicate,
			Object:        object,
			Confidence:    confidence,
			Evidence:      in.Evidence,
			TemporalBound: in.TemporalBound,
			Status:        status,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if sp := in.EvidencePosition; sp != nil {
			f.EvidencePosition = &models.Span{Start: sp.Start, End: sp.End}
		}
		if err := tx.PutFact(ctx, f); err != nil {
			return fmt.Errorf("creating fact: %w", err)
		}
		out = f
		return stats.Apply(ctx, tx, p.ID, stats.Delta{Facts: 1})
	})
	if err != nil {
		return nil, err
	}
	if out.Status == models.FactStatusConfirmed && projectable {
		graph.Report(s.logger, s.projector.UpsertFact(ctx, *out), "fact_id", out.ID)
	}
	s.logger.Info("fact created", "fact_id", out.ID, "project_id", out.ProjectID)
	return out, nil
}

// Get returns one fact.
func (s *Facts) Get(ctx context.Context, caller auth.Caller, id string) (*models.Fact, error) {
	var out *models.Fact
	err := s.st.View(ctx, func(tx store.Tx) error {
		var err error
		out, _, err = projects.OwnedFact(ctx, tx, caller, id)
		return err
	})
	return out, err
}

// FactFilter narrows List. Zero fields match everything.
type FactFilter struct {
	EntityID   string            `json:"entity_id,omitempty"`
	DocumentID string            `json:"document_id,omitempty"`
	Status     models.FactStatus `json:"status,omitempty"`
}

func (f FactFilter) match(fact *models.Fact) bool {
	return (f.EntityID == "" || fact.EntityID == f.EntityID) &&
		(f.DocumentID == "" || fact.DocumentID == f.DocumentID) &&
		(f.Status == "" || fact.Status == f.Status)
}

// List returns a project's facts in creation order.
func (s *Facts) List(ctx context.Context, caller auth.Caller, projectID string, filter FactFilter) ([]models.Fact, error) {
	out := []models.Fact{}
	err := s.st.View(ctx, func(tx store.Tx) error {
		if _, err := projects.Owned(ctx, tx, caller, projectID); err != nil {
			return err
		}
		if filter.Status != "" && !filter.Status.IsValid() {
			return apperr.Validation("invalid fact status %q", filter.Status)
		}

		var (
			facts []models.Fact
			err   error
		)
		switch {
		case filter.EntityID != "":
			facts, err = tx.FactsByEntity(ctx, filter.EntityID)
		case filter.DocumentID != "":
			facts, err = tx.FactsByDocument(ctx, filter.DocumentID)
		default:
			facts, err = tx.FactsByProject(ctx, projectID)
		}
		if err != nil {
			return err
		}
		for i := range facts {
			if facts[i].ProjectID == projectID && filter.match(&facts[i]) {
				out = append(out, facts[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Confirm accepts a fact into canon. Confirming a rejected fact counts it again.
// A fact about a pending entity reaches the graph when the entity is confirmed.
func (s *Facts) Confirm(ctx context.Context, caller auth.Caller, id string) (*models.Fact, error) {
	var projectable bool
	f, changed, err := s.transition(ctx, caller, id, models.FactStatusConfirmed, func(tx store.Tx, f *models.Fact) error {
		if f.EntityID == "" {
			projectable = true
			return nil
		}
		e, err := tx.GetEntity(ctx, f.EntityID)
		if err != nil {
			return projects.Missing(err, "entity", f.EntityID)
		}
		projectable = e.Status == models.EntityStatusConfirmed
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		if projectable {
			graph.Report(s.logger, s.projector.UpsertFact(ctx, *f), "fact_id", f.ID)
		}
		s.logger.Info("fact confirmed", "fact_id", f.ID, "project_id", f.ProjectID)
	}
	return f, nil
}

// Reject marks a fact rejected. It stays stored but no longer counts.
func (s *Facts) Reject(ctx context.Context, caller auth.Caller, id string) (*models.Fact, error) {
	f, changed, err := s.transition(ctx, caller, id, models.FactStatusRejected, nil)
	if err != nil {
		return nil, err
	}
	if changed {
		graph.Report(s.logger, s.projector.DeleteFact(ctx, f.ID), "fact_id", f.ID)
		s.logger.Info("fact rejected", "fact_id", f.ID, "project_id", f.ProjectID)
	}
	return f, nil
}

// transition moves a fact to status, adjusting factCount when the fact enters or
// leaves the counted set. Moving to the current status is a no-op. inspect, when
// set, runs in the same transaction after a change.
func (s *Facts) transition(ctx context.Context, caller auth.Caller, id string, status models.FactStatus, inspect func(store.Tx, *models.Fact) error) (*models.Fact, bool, error) {
	var out *models.Fact
	changed := false
	err := s.st.Update(ctx, func(tx store.Tx) error {
		f, p, err := projects.OwnedFact(ctx, tx, caller, id)
		if err != nil {
			return err
		}
		out = f
		if f.Status == status {
			return nil
		}
		var d stats.Delta
		switch {
		case f.Status.Counted() && !status.Counted():
			d.Facts = -1
		case !f.Status.Counted() && status.Counted():
			d.Facts = 1
		}
		f.Status = status
		f.UpdatedAt = s.now().UTC()
		changed = true
		if err := tx.PutFact(ctx, f); err != nil {
			return fmt.Errorf("updating fact: %w", err)
		}
		if inspect != nil {
			if err := inspect(tx, f); err != nil {
				return err
			}
		}
		return stats.Apply(ctx, tx, p.ID, d)
	})
	if err != nil {
		return nil, false, err
	}
	return out, changed, nil
}

// Remove deletes a fact.
func (s *Facts) Remove(ctx context.Context, caller auth.Caller, id string) error {
	err := s.st.Update(ctx, func(tx store.Tx) error {
		f, p, err := projects.OwnedFact(ctx, tx, caller, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteFact(ctx, f.ID); err != nil {
			return fmt.Errorf("deleting fact: %w", err)
		}
		if !f.Status.Counted() {
			return nil
		}
		return stats.Apply(ctx, tx, p.ID, stats.Delta{Facts: -1})
	})
	if err != nil {
		return err
	}
	graph.Report(s.logger, s.projector.DeleteFact(ctx, id), "fact_id", id)
	s.logger.Info("fact removed", "fact_id", id)
	return nil
}
