// Package review implements the confirmation workflow for extracted canon: entities
// move from pending to confirmed or are removed, facts move from pending to confirmed
// or rejected. Every mutation is one store transaction and keeps the project counters
// in step through stats.Apply.
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
	"github.com/aileks/realm-sync/internal/resolve"
	"github.com/aileks/realm-sync/internal/stats"
	"github.com/aileks/realm-sync/internal/store"
)

// Entities is the owner-gated entity review service.
type Entities struct {
	st        store.Store
	projector graph.Projector
	logger    *slog.Logger
	now       func() time.Time
}

// NewEntities creates the entity service. projector may be nil.
func NewEntities(st store.Store, projector graph.Projector, logger *slog.Logger) *Entities {
	if logger == nil {
		logger = slog.Default()
	}
	if projector == nil {
		projector = graph.Nop{}
	}
	return &Entities{st: st, projector: projector, logger: logger, now: time.Now}
}

// CreateEntityInput holds the fields of a user-created entity.
type CreateEntityInput struct {
	ProjectID         string              `json:"project_id"`
	Name              string              `json:"name"`
	Type              models.EntityType   `json:"type"`
	Description       string              `json:"description,omitempty"`
	Aliases           []string            `json:"aliases,omitempty"`
	Status            models.EntityStatus `json:"status,omitempty"`
	RevealedToViewers bool                `json:"revealed_to_viewers,omitempty"`
}

// Create adds an entity to a project. Status defaults to pending.
func (s *Entities) Create(ctx context.Context, caller auth.Caller, in CreateEntityInput) (*models.Entity, error) {
	var out *models.Entity
	err := s.st.Update(ctx, func(tx store.Tx) error {
		p, err := projects.Owned(ctx, tx, caller, in.ProjectID)
		if err != nil {
			return err
		}
		name := strings.TrimSpace(in.Name)
		if name == "" {
			return apperr.Validation("entity name is required")
		}
		if !in.Type.IsValid() {
			return apperr.Validation("invalid entity type %q", in.Type)
		}
		status := in.Status
		if status == "" {
			status = models.EntityStatusPending
		}
		if !status.IsValid() {
			return apperr.Validation("invalid entity status %q", status)
		}
		if in.RevealedToViewers && p.Type != models.ProjectTypeTTRPG {
			return apperr.Validation("revealed_to_viewers is only available on ttrpg projects")
		}
		aliases := dedupAliases(name, in.Aliases)
		if err := namesFree(ctx, tx, p.ID, "", name, aliases); err != nil {
			return err
		}

		now := s.now().UTC()
		e := &models.Entity{
			ID:                uuid.New().String(),
			ProjectID:         p.ID,
			Name:              name,
			Type:              in.Type,
			Description:       in.Description,
			Aliases:           aliases,
			Status:            status,
			RevealedToViewers: in.RevealedToViewers,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := tx.PutEntity(ctx, e); err != nil {
			return fmt.Errorf("creating entity: %w", err)
		}
		out = e
		return stats.Apply(ctx, tx, p.ID, stats.Delta{Entities: 1})
	})
	if err != nil {
		return nil, err
	}
	if out.Status == models.EntityStatusConfirmed {
		graph.Report(s.logger, s.projector.UpsertEntity(ctx, *out), "entity_id", out.ID)
	}
	s.logger.Info("entity created", "entity_id", out.ID, "project_id", out.ProjectID)
	return out, nil
}

// UpdateEntityInput is a partial update; nil fields are left unchanged.
type UpdateEntityInput struct {
	Name              *string            `json:"name,omitempty"`
	Type              *models.EntityType `json:"type,omitempty"`
	Description       *string            `json:"description,omitempty"`
	Aliases           *[]string          `json:"aliases,omitempty"`
	RevealedToViewers *bool              `json:"revealed_to_viewers,omitempty"`
}

// Update patches an entity.
func (s *Entities) Update(ctx context.Context, caller auth.Caller, id string, in UpdateEntityInput) (*models.Entity, error) {
	var out *models.Entity
	err := s.st.Update(ctx, func(tx store.Tx) error {
		e, p, err := projects.OwnedEntity(ctx, tx, caller, id)
		if err != nil {
			return err
		}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return apperr.Validation("entity name cannot be empty")
			}
			e.Name = name
		}
		if in.Type != nil {
			if !in.Type.IsValid() {
				return apperr.Validation("invalid entity type %q", *in.Type)
			}
			e.Type = *in.Type
		}
		if in.Description != nil {
			e.Description = *in.Description
		}
		aliases := e.Aliases
		if in.Aliases != nil {
			aliases = *in.Aliases
		}
		e.Aliases = dedupAliases(e.Name, aliases)
		if in.Name != nil || in.Aliases != nil {
			if err := namesFree(ctx, tx, p.ID, e.ID, e.Name, e.Aliases); err != nil {
				return err
			}
		}
		if in.RevealedToViewers != nil {
			if p.Type != models.ProjectTypeTTRPG {
				return apperr.Validation("revealed_to_viewers is only available on ttrpg projects")
			}
			e.RevealedToViewers = *in.RevealedToViewers
		}
		e.UpdatedAt = s.now().UTC()
		out = e
		return tx.PutEntity(ctx, e)
	})
	if err != nil {
		return nil, err
	}
	if out.Status == models.EntityStatusConfirmed {
		graph.Report(s.logger, s.projector.UpsertEntity(ctx, *out), "entity_id", out.ID)
	}
	return out, nil
}

// Get returns one entity.
func (s *Entities) Get(ctx context.Context, caller auth.Caller, id string) (*models.Entity, error) {
	var out *models.Entity
	err := s.st.View(ctx, func(tx store.Tx) error {
		var err error
		out, _, err = projects.OwnedEntity(ctx, tx, caller, id)
		return err
	})
	return out, err
}

// List returns a project's entities in creation order. An empty status lists all.
func (s *Entities) List(ctx context.Context, caller auth.Caller, projectID string, status models.EntityStatus) ([]models.Entity, error) {
	out := []models.Entity{}
	err := s.st.View(ctx, func(tx store.Tx) error {
		if _, err := projects.Owned(ctx, tx, caller, projectID); err != nil {
			return err
		}
		if status != "" && !status.IsValid() {
			return apperr.Validation("invalid entity status %q", status)
		}
		ents, err := tx.EntitiesByProject(ctx, projectID)
		if err != nil {
			return err
		}
		for i := range ents {
			if status == "" || ents[i].Status == status {
				out = append(out, ents[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Confirm marks an entity confirmed. Confirming twice is a no-op. Facts about the
// entity that were confirmed while it was pending are projected along with it.
func (s *Entities) Confirm(ctx context.Context, caller auth.Caller, id string) (*models.Entity, error) {
	var (
		out       *models.Entity
		confirmed []models.Fact
	)
	changed := false
	err := s.st.Update(ctx, func(tx store.Tx) error {
		e, _, err := projects.OwnedEntity(ctx, tx, caller, id)
		if err != nil {
			return err
		}
		out = e
		if e.Status == models.EntityStatusConfirmed {
			return nil
		}
		e.Status = models.EntityStatusConfirmed
		e.UpdatedAt = s.now().UTC()
		changed = true
		if err := tx.PutEntity(ctx, e); err != nil {
			return err
		}
		confirmed, err = confirmedFacts(ctx, tx, e.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.project(ctx, *out, confirmed)
		s.logger.Info("entity confirmed", "entity_id", out.ID, "project_id", out.ProjectID,
			"facts_projected", len(confirmed))
	}
	return out, nil
}

// project upserts a confirmed entity and then its confirmed facts.
func (s *Entities) project(ctx context.Context, e models.Entity, facts []models.Fact) {
	graph.Report(s.logger, s.projector.UpsertEntity(ctx, e), "entity_id", e.ID)
	for i := range facts {
		graph.Report(s.logger, s.projector.UpsertFact(ctx, facts[i]), "fact_id", facts[i].ID)
	}
}

func confirmedFacts(ctx context.Context, tx store.Tx, entityID string) ([]models.Fact, error) {
	facts, err := tx.FactsByEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	out := facts[:0]
	for i := range facts {
		if facts[i].Status == models.FactStatusConfirmed {
			out = append(out, facts[i])
		}
	}
	return out, nil
}

// Removal reports what an entity delete cascaded to.
type Removal struct {
	EntityID     string `json:"entity_id"`
	FactsDeleted int    `json:"facts_deleted"`
}

// Reject discards an extracted entity together with every fact about it.
func (s *Entities) Reject(ctx context.Context, caller auth.Caller, id string) (*Removal, error) {
	return s.remove(ctx, caller, id, "entity rejected")
}

// Remove deletes an entity together with every fact about it.
func (s *Entities) Remove(ctx context.Context, caller auth.Caller, id string) (*Removal, error) {
	return s.remove(ctx, caller, id, "entity removed")
}

func (s *Entities) remove(ctx context.Context, caller auth.Caller, id, msg string) (*Removal, error) {
	out := &Removal{EntityID: id}
	var projectID string
	err := s.st.Update(ctx, func(tx store.Tx) error {
		e, p, err := projects.OwnedEntity(ctx, tx, caller, id)
		if err != nil {
			return err
		}
		projectID = p.ID
		facts, err := tx.FactsByEntity(ctx, e.ID)
		if err != nil {
			return err
		}
		var counted int64
		for i := range facts {
			if facts[i].Status.Counted() {
				counted++
			}
			if err := tx.DeleteFact(ctx, facts[i].ID); err != nil {
				return fmt.Errorf("deleting fact %s: %w", facts[i].ID, err)
			}
		}
		out.FactsDeleted = len(facts)
		if err := tx.DeleteEntity(ctx, e.ID); err != nil {
			return fmt.Errorf("deleting entity: %w", err)
		}
		return stats.Apply(ctx, tx, p.ID, stats.Delta{Entities: -1, Facts: -counted})
	})
	if err != nil {
		return nil, err
	}
	graph.Report(s.logger, s.projector.DeleteEntity(ctx, id), "entity_id", id)
	s.logger.Info(msg, "entity_id", id, "project_id", projectID, "facts_deleted", out.FactsDeleted)
	return out, nil
}

// Merge folds source into target: the source's name and aliases become target
// aliases, its facts move to the target, and the source is deleted. Both entities
// must belong to the same project.
func (s *Entities) Merge(ctx context.Context, caller auth.Caller, sourceID, targetID string) (*models.Entity, error) {
	var (
		out       *models.Entity
		confirmed []models.Fact
	)
	moved := 0
	err := s.st.Update(ctx, func(tx store.Tx) error {
		src, _, err := projects.OwnedEntity(ctx, tx, caller, sourceID)
		if err != nil {
			return err
		}
		dst, _, err := projects.OwnedEntity(ctx, tx, caller, targetID)
		if err != nil {
			return err
		}
		if src.ID == dst.ID {
			return apperr.Validation("cannot merge an entity into itself")
		}
		if src.ProjectID != dst.ProjectID {
			return apperr.Validation("cannot merge entities from different projects")
		}

		now := s.now().UTC()
		names := append([]string{src.Name}, src.Aliases...)
		dst.Aliases = dedupAliases(dst.Name, append(names, dst.Aliases...))
		if dst.FirstMentionedIn == "" {
			dst.FirstMentionedIn = src.FirstMentionedIn
		}
		dst.UpdatedAt = now

		facts, err := tx.FactsByEntity(ctx, src.ID)
		if err != nil {
			return err
		}
		for i := range facts {
			f := facts[i]
			f.EntityID = dst.ID
			f.UpdatedAt = now
			if err := tx.PutFact(ctx, &f); err != nil {
				return fmt.Errorf("moving fact %s: %w", f.ID, err)
			}
		}
		moved = len(facts)
		if err := tx.DeleteEntity(ctx, src.ID); err != nil {
			return fmt.Errorf("deleting merged entity: %w", err)
		}
		if err := tx.PutEntity(ctx, dst); err != nil {
			return fmt.Errorf("updating merge target: %w", err)
		}
		out = dst
		if dst.Status == models.EntityStatusConfirmed {
			if confirmed, err = confirmedFacts(ctx, tx, dst.ID); err != nil {
				return err
			}
		}
		return stats.Apply(ctx, tx, dst.ProjectID, stats.Delta{Entities: -1})
	})
	if err != nil {
		return nil, err
	}
	graph.Report(s.logger, s.projector.MergeEntities(ctx, sourceID, targetID), "source_id", sourceID, "target_id", targetID)
	if out.Status == models.EntityStatusConfirmed {
		s.project(ctx, *out, confirmed)
	}
	s.logger.Info("entities merged", "source_id", sourceID, "target_id", targetID, "facts_moved", moved)
	return out, nil
}

// namesFree fails with a conflict when name or any alias already names another
// entity of the project, by name or by alias. self is skipped.
func namesFree(ctx context.Context, tx store.Tx, projectID, self, name string, aliases []string) error {
	idx, err := resolve.LoadIndex(ctx, tx, projectID)
	if err != nil {
		return err
	}
	if other, taken := idx.Lookup(name); taken && other != self {
		return apperr.Conflict("an entity named %q already exists", name)
	}
	for _, a := range aliases {
		if other, taken := idx.Lookup(a); taken && other != self {
			return apperr.Conflict("alias %q already names another entity", a)
		}
	}
	return nil
}

// dedupAliases trims and case-insensitively deduplicates aliases, dropping blanks
// and anything equal to name. First spelling wins.
func dedupAliases(name string, aliases []string) []string {
	out := make([]string, 0, len(aliases))
	seen := map[string]bool{strings.ToLower(strings.TrimSpace(name)): true}
	for _, a := range aliases {
		a = strings.TrimSpace(a)
		k := strings.ToLower(a)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, a)
	}
	return out
}
