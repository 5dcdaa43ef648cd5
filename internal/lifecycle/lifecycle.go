// Package lifecycle runs periodic maintenance: expired response cache entries are
// purged and project counters are reconciled against their rows.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aileks/realm-sync/internal/llmcache"
	"github.com/aileks/realm-sync/internal/models"
	"github.com/aileks/realm-sync/internal/stats"
	"github.com/aileks/realm-sync/internal/store"
)

// DefaultStuckAfter is how long a document may sit in processing before it is
// reported as stuck.
const DefaultStuckAfter = time.Hour

// Report summarizes the results of a lifecycle run.
type Report struct {
	CachePurged        int      `json:"cache_purged"`
	ProjectsReconciled int      `json:"projects_reconciled"`
	ProjectsDrifted    int      `json:"projects_drifted"`
	StuckDocuments     []string `json:"stuck_documents,omitempty"`
}

// Manager handles maintenance operations.
type Manager struct {
	store      store.Store
	cache      *llmcache.Cache
	logger     *slog.Logger
	stuckAfter time.Duration
	now        func() time.Time
}

// NewManager creates a new lifecycle manager.
func NewManager(st store.Store, cache *llmcache.Cache, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:      st,
		cache:      cache,
		logger:     logger,
		stuckAfter: DefaultStuckAfter,
		now:        time.Now,
	}
}

// Run executes all lifecycle operations. With dryRun nothing is written and the
// report counts what would change. A failing step is logged and the rest still run.
func (m *Manager) Run(ctx context.Context, dryRun bool) (*Report, error) {
	report := &Report{}

	// 1. Expired cache entries
	purged, err := m.purgeCache(ctx, dryRun)
	if err != nil {
		m.logger.Error("cache purge failed", "error", err)
	}
	report.CachePurged = purged

	// 2. Counter reconciliation and stuck documents
	projects, err := m.listProjects(ctx)
	if err != nil {
		return report, err
	}
	for i := range projects {
		p := &projects[i]
		rep, err := stats.Reconcile(ctx, m.store, p.ID, dryRun)
		if err != nil {
			m.logger.Error("reconciling project stats", "project_id", p.ID, "error", err)
			continue
		}
		report.ProjectsReconciled++
		if rep.Drifted {
			report.ProjectsDrifted++
			m.logger.Warn("project stats drifted", "project_id", p.ID, "before", rep.Before, "after", rep.After, "dry_run", dryRun)
		}

		stuck, err := m.stuckDocuments(ctx, p.ID)
		if err != nil {
			m.logger.Error("listing stuck documents", "project_id", p.ID, "error", err)
			continue
		}
		report.StuckDocuments = append(report.StuckDocuments, stuck...)
	}

	return report, nil
}

func (m *Manager) purgeCache(ctx context.Context, dryRun bool) (int, error) {
	if m.cache == nil {
		return 0, nil
	}
	if dryRun {
		return m.cache.CountExpired(ctx)
	}
	return m.cache.PurgeExpired(ctx)
}

func (m *Manager) listProjects(ctx context.Context) ([]models.Project, error) {
	var out []models.Project
	err := m.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.AllProjects(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	return out, nil
}

// stuckDocuments returns documents of projectID that have been processing for longer
// than stuckAfter. They need a retry; nothing resets them automatically.
func (m *Manager) stuckDocuments(ctx context.Context, projectID string) ([]string, error) {
	cutoff := m.now().UTC().Add(-m.stuckAfter)
	var out []string
	err := m.store.View(ctx, func(tx store.Tx) error {
		docs, err := tx.DocumentsByProject(ctx, projectID)
		if err != nil {
			return err
		}
		for i := range docs {
			if docs[i].ProcessingStatus == models.ProcessingProcessing && docs[i].UpdatedAt.Before(cutoff) {
				m.logger.Info("document stuck in processing", "document_id", docs[i].ID, "since", docs[i].UpdatedAt)
				out = append(out, docs[i].ID)
			}
		}
		return nil
	})
	return out, err
}
