// Package projects manages projects and their documents and provides the ownership
// checks shared by every project-scoped service.
package projects

import (
	"context"
	"errors"
	"fmt"

	"github.com/aileks/realm-sync/internal/apperr"
	"github.com/aileks/realm-sync/internal/auth"
	"github.com/aileks/realm-sync/internal/models"
	"github.com/aileks/realm-sync/internal/store"
)

// Missing translates store.ErrNotFound into a not_found error for kind/id and wraps
// anything else.
func Missing(err error, kind, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(kind, id)
	}
	return fmt.Errorf("loading %s %s: %w", kind, id, err)
}

// Owned loads a project the caller owns. Checks run in order: identity, existence,
// ownership.
func Owned(ctx context.Context, tx store.Tx, caller auth.Caller, projectID string) (*models.Project, error) {
	if err := auth.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	p, err := tx.GetProject(ctx, projectID)
	if err != nil {
		return nil, Missing(err, "project", projectID)
	}
	if err := auth.RequireOwner(caller, p); err != nil {
		return nil, err
	}
	return p, nil
}

// OwnedEntity loads an entity and the project that owns it.
func OwnedEntity(ctx context.Context, tx store.Tx, caller auth.Caller, entityID string) (*models.Entity, *models.Project, error) {
	if err := auth.RequireAuthenticated(caller); err != nil {
		return nil, nil, err
	}
	e, err := tx.GetEntity(ctx, entityID)
	if err != nil {
		return nil, nil, Missing(err, "entity", entityID)
	}
	p, err := Owned(ctx, tx, caller, e.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return e, p, nil
}

// OwnedFact loads a fact and the project that owns it.
func OwnedFact(ctx context.Context, tx store.Tx, caller auth.Caller, factID string) (*models.Fact, *models.Project, error) {
	if err := auth.RequireAuthenticated(caller); err != nil {
		return nil, nil, err
	}
	f, err := tx.GetFact(ctx, factID)
	if err != nil {
		return nil, nil, Missing(err, "fact", factID)
	}
	p, err := Owned(ctx, tx, caller, f.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return f, p, nil
}

// OwnedDocument loads a document and the project that owns it.
func OwnedDocument(ctx context.Context, tx store.Tx, caller auth.Caller, documentID string) (*models.Document, *models.Project, error) {
	if err := auth.RequireAuthenticated(caller); err != nil {
		return nil, nil, err
	}
	d, err := tx.GetDocument(ctx, documentID)
	if err != nil {
		return nil, nil, Missing(err, "document", documentID)
	}
	p, err := Owned(ctx, tx, caller, d.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return d, p, nil
}
