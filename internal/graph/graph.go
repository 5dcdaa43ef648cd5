// Package graph mirrors the reviewed canon into a graph database so downstream tools
// can traverse entities and their facts.
package graph

import (
	"context"
	"log/slog"

	"github.com/aileks/realm-sync/internal/metrics"
	"github.com/aileks/realm-sync/internal/models"
)

// Projector receives canon changes after they commit. Implementations are
// best-effort mirrors; the record store stays authoritative.
type Projector interface {
	UpsertEntity(ctx context.Context, e models.Entity) error
	DeleteEntity(ctx context.Context, entityID string) error
	// MergeEntities moves the source's facts to the target and removes the source.
	MergeEntities(ctx context.Context, sourceID, targetID string) error
	UpsertFact(ctx context.Context, f models.Fact) error
	DeleteFact(ctx context.Context, factID string) error
	DeleteProject(ctx context.Context, projectID string) error
}

// Nop discards every change.
type Nop struct{}

func (Nop) UpsertEntity(context.Context, models.Entity) error { return nil }

func (Nop) DeleteEntity(context.Context, string) error { return nil }

func (Nop) MergeEntities(context.Context, string, string) error { return nil }

func (Nop) UpsertFact(context.Context, models.Fact) error { return nil }

func (Nop) DeleteFact(context.Context, string) error { return nil }

func (Nop) DeleteProject(context.Context, string) error { return nil }

var _ Projector = Nop{}

// Report logs a failed projection and counts it. It never fails the caller: the
// record store has already committed.
func Report(logger *slog.Logger, err error, attrs ...any) {
	if err == nil {
		return
	}
	metrics.Inc(metrics.GraphSyncFailures)
	logger.Warn("graph sync failed (continuing)", append([]any{"error", err}, attrs...)...)
}
