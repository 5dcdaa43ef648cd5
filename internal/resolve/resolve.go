// Package resolve deduplicates extracted entity mentions against a project's
// existing entities by case-insensitive name and alias match.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aileks/realm-sync/internal/apperr"
	"github.com/aileks/realm-sync/internal/auth"
	"github.com/aileks/realm-sync/internal/models"
	"github.com/aileks/realm-sync/internal/projects"
	"github.com/aileks/realm-sync/internal/store"
)

// fold normalizes a name for comparison.
func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Index maps folded names and aliases of a project's entities to entity ids. The
// first entity to claim a name keeps it.
type Index struct {
	projectID string
	ids       map[string]string
}

// LoadIndex builds the index for projectID inside tx.
func LoadIndex(ctx context.Context, tx store.Tx, projectID string) (*Index, error) {
	ents, err := tx.EntitiesByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("loading entity index: %w", err)
	}
	idx := &Index{projectID: projectID, ids: make(map[string]string, len(ents)*2)}
	for i := range ents {
		idx.Add(&ents[i])
	}
	return idx, nil
}

// Add registers e's name and aliases.
func (idx *Index) Add(e *models.Entity) {
	for _, n := range e.Names() {
		k := fold(n)
		if k == "" {
			continue
		}
		if _, taken := idx.ids[k]; !taken {
			idx.ids[k] = e.ID
		}
	}
}

// Lookup returns the id of the entity known by name.
func (idx *Index) Lookup(name string) (string, bool) {
	id, ok := idx.ids[fold(name)]
	return id, ok
}

// Match returns the first entity matching any of names.
func (idx *Index) Match(names ...string) (string, bool) {
	for _, n := range names {
		if id, ok := idx.Lookup(n); ok {
			return id, true
		}
	}
	return "", false
}

// Request describes one extracted entity mention.
type Request struct {
	ProjectID        string
	SourceDocumentID string
	Name             string
	Type             models.EntityType
	Description      string
	Aliases          []string
}

// Resolution is the outcome of ResolveEntity.
type Resolution struct {
	EntityID string
	IsNew    bool
}

// Resolver matches or creates entities.
type Resolver struct {
	st     store.Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Resolver.
func New(st store.Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{st: st, logger: logger, now: time.Now}
}

// ResolveEntity returns the existing entity matching req's name or any alias, leaving
// it untouched, or inserts a new pending entity and adds it to idx.
func (r *Resolver) ResolveEntity(ctx context.Context, tx store.Tx, idx *Index, req Request) (Resolution, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Resolution{}, apperr.Validation("entity name is required")
	}
	if id, ok := idx.Match(append([]string{name}, req.Aliases...)...); ok {
		return Resolution{EntityID: id}, nil
	}

	et := req.Type
	if !et.IsValid() {
		et = models.EntityTypeConcept
	}
	aliases := make([]string, 0, len(req.Aliases))
	seen := map[string]bool{fold(name): true}
	for _, a := range req.Aliases {
		if k := fold(a); k != "" && !seen[k] {
			seen[k] = true
			aliases = append(aliases, strings.TrimSpace(a))
		}
	}

	now := r.now().UTC()
	e := &models.Entity{
		ID:               uuid.New().String(),
		ProjectID:        req.ProjectID,
		Name:             name,
		Type:             et,
		Description:      req.Description,
		Aliases:          aliases,
		Status:           models.EntityStatusPending,
		FirstMentionedIn: req.SourceDocumentID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := tx.PutEntity(ctx, e); err != nil {
		return Resolution{}, fmt.Errorf("creating entity %q: %w", name, err)
	}
	idx.Add(e)
	r.logger.Debug("resolve: new entity", "entity_id", e.ID, "name", name, "project_id", req.ProjectID)
	return Resolution{EntityID: e.ID, IsNew: true}, nil
}

// FindSimilar lists the project's entities whose name or an alias contains, or is
// contained in, name (case-insensitive), excluding excludeID.
func (r *Resolver) FindSimilar(ctx context.Context, caller auth.Caller, projectID, name, excludeID string) ([]models.Entity, error) {
	out := []models.Entity{}
	err := r.st.View(ctx, func(tx store.Tx) error {
		if _, err := projects.Owned(ctx, tx, caller, projectID); err != nil {
			return err
		}
		q := fold(name)
		if q == "" {
			return apperr.Validation("name is required")
		}
		ents, err := tx.EntitiesByProject(ctx, projectID)
		if err != nil {
			return err
		}
		for i := range ents {
			if ents[i].ID == excludeID {
				continue
			}
			for _, n := range ents[i].Names() {
				k := fold(n)
				if k != "" && (strings.Contains(k, q) || strings.Contains(q, k)) {
					out = append(out, ents[i])
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
