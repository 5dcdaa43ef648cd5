package projects

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aileks/realm-sync/internal/apperr"
	"github.com/aileks/realm-sync/internal/auth"
	"github.com/aileks/realm-sync/internal/blob"
	"github.com/aileks/realm-sync/internal/graph"
	"github.com/aileks/realm-sync/internal/models"
	"github.com/aileks/realm-sync/internal/stats"
	"github.com/aileks/realm-sync/internal/store"
)

// Projects is the owner-gated project service.
type Projects struct {
	st        store.Store
	blobs     blob.Store
	projector graph.Projector
	logger    *slog.Logger
	now       func() time.Time
}

// NewProjects creates the project service. blobs and projector may be nil.
func NewProjects(st store.Store, blobs blob.Store, projector graph.Projector, logger *slog.Logger) *Projects {
	if logger == nil {
		logger = slog.Default()
	}
	if projector == nil {
		projector = graph.Nop{}
	}
	return &Projects{st: st, blobs: blobs, projector: projector, logger: logger, now: time.Now}
}

// CreateProjectInput holds the fields of a new project.
type CreateProjectInput struct {
	Name            string             `json:"name"`
	Description     string             `json:"description,omitempty"`
	Type            models.ProjectType `json:"type,omitempty"`
	RevealToPlayers bool               `json:"reveal_to_players,omitempty"`
}

// Create adds a project owned by the caller. Stats start absent.
func (s *Projects) Create(ctx context.Context, caller auth.Caller, in CreateProjectInput) (*models.Project, error) {
	if err := auth.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("project name is required")
	}
	if in.Type == "" {
		in.Type = models.ProjectTypeGeneral
	}
	if !in.Type.IsValid() {
		return nil, apperr.Validation("unknown project type %q", in.Type)
	}

	now := s.now().UTC()
	p := &models.Project{
		ID:              uuid.New().String(),
		UserID:          caller.UserID,
		Name:            name,
		Description:     in.Description,
		Type:            in.Type,
		RevealToPlayers: in.RevealToPlayers,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.st.Update(ctx, func(tx store.Tx) error { return tx.PutProject(ctx, p) }); err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}
	s.logger.Info("project created", "project_id", p.ID, "user_id", caller.UserID)
	return p, nil
}

// Get returns a project the caller owns.
func (s *Projects) Get(ctx context.Context, caller auth.Caller, id string) (*models.Project, error) {
	var p *models.Project
	err := s.st.View(ctx, func(tx store.Tx) error {
		var err error
		p, err = Owned(ctx, tx, caller, id)
		return err
	})
	return p, err
}

// List returns the caller's projects in creation order.
func (s *Projects) List(ctx context.Context, caller auth.Caller) ([]models.Project, error) {
	if err := auth.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	var out []models.Project
	err := s.st.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ProjectsByUser(ctx, caller.UserID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	return out, nil
}

// UpdateProjectInput is a partial update; nil fields are left unchanged.
type UpdateProjectInput struct {
	Name            *string `json:"name,omitempty"`
	Description     *string `json:"description,omitempty"`
	RevealToPlayers *bool   `json:"reveal_to_players,omitempty"`
}

// Update patches a project's descriptive fields.
func (s *Projects) Update(ctx context.Context, caller auth.Caller, id string, in UpdateProjectInput) (*models.Project, error) {
	var out *models.Project
	err := s.st.Update(ctx, func(tx store.Tx) error {
		p, err := Owned(ctx, tx, caller, id)
		if err != nil {
			return err
		}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return apperr.Validation("project name cannot be empty")
			}
			p.Name = name
		}
		if in.Description != nil {
			p.Description = *in.Description
		}
		if in.RevealToPlayers != nil {
			p.RevealToPlayers = *in.RevealToPlayers
		}
		p.UpdatedAt = s.now().UTC()
		out = p
		return tx.PutProject(ctx, p)
	})
	return out, err
}

// Delete removes a project with all of its documents, entities and facts.
func (s *Projects) Delete(ctx context.Context, caller auth.Caller, id string) error {
	var blobKeys []string
	err := s.st.Update(ctx, func(tx store.Tx) error {
		if _, err := Owned(ctx, tx, caller, id); err != nil {
			return err
		}
		facts, err := tx.FactsByProject(ctx, id)
		if err != nil {
			return err
		}
		for i := range facts {
			if err := tx.DeleteFact(ctx, facts[i].ID); err != nil {
				return err
			}
		}
		ents, err := tx.EntitiesByProject(ctx, id)
		if err != nil {
			return err
		}
		for i := range ents {
			if err := tx.DeleteEntity(ctx, ents[i].ID); err != nil {
				return err
			}
		}
		docs, err := tx.DocumentsByProject(ctx, id)
		if err != nil {
			return err
		}
		for i := range docs {
			if docs[i].StorageID != "" {
				blobKeys = append(blobKeys, docs[i].StorageID)
			}
			if err := tx.DeleteDocument(ctx, docs[i].ID); err != nil {
				return err
			}
		}
		return tx.DeleteProject(ctx, id)
	})
	if err != nil {
		return err
	}

	for _, key := range blobKeys {
		deleteBlob(ctx, s.blobs, s.logger, key)
	}
	graph.Report(s.logger, s.projector.DeleteProject(ctx, id), "project_id", id)
	s.logger.Info("project deleted", "project_id", id)
	return nil
}

// Stats returns the project's counters, zero when never written.
func (s *Projects) Stats(ctx context.Context, caller auth.Caller, id string) (models.ProjectStats, error) {
	p, err := s.Get(ctx, caller, id)
	if err != nil {
		return models.ProjectStats{}, err
	}
	return p.StatsOrZero(), nil
}

// Reconcile recounts the project's counters from its rows.
func (s *Projects) Reconcile(ctx context.Context, caller auth.Caller, id string, dryRun bool) (*stats.Report, error) {
	if _, err := s.Get(ctx, caller, id); err != nil {
		return nil, err
	}
	rep, err := stats.Reconcile(ctx, s.st, id, dryRun)
	if err != nil {
		return nil, err
	}
	if rep.Drifted {
		s.logger.Warn("project stats drifted", "project_id", id, "before", rep.Before, "after", rep.After, "dry_run", dryRun)
	}
	return rep, nil
}

func deleteBlob(ctx context.Context, blobs blob.Store, logger *slog.Logger, key string) {
	if blobs == nil {
		return
	}
	if err := blobs.Delete(ctx, key); err != nil {
		logger.Warn("blob delete failed (continuing)", "error", err, "key", key)
	}
}
