package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aileks/realm-sync/internal/llmcache"
	"github.com/aileks/realm-sync/internal/models"
	"github.com/aileks/realm-sync/internal/store"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T) (*store.MemoryStore, *llmcache.Cache) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()

	old := llmcache.New(st, nil, llmcache.WithClock(func() time.Time { return now.Add(-8 * 24 * time.Hour) }))
	_, err := old.Save(ctx, "h1", "canon-v1", "claude-test", &models.ExtractionResult{})
	require.NoError(t, err)
	_, err = old.Save(ctx, "h2", "canon-v1", "claude-test", &models.ExtractionResult{})
	require.NoError(t, err)
	cache := llmcache.New(st, nil, llmcache.WithClock(func() time.Time { return now }))
	_, err = cache.Save(ctx, "h3", "canon-v1", "claude-test", &models.ExtractionResult{})
	require.NoError(t, err)

	require.NoError(t, st.Update(ctx, func(tx store.Tx) error {
		// p1 claims three entities but has one.
		_ = tx.PutProject(ctx, &models.Project{ID: "p1", UserID: "alice", Name: "Westeros",
			Stats: &models.ProjectStats{EntityCount: 3, DocumentCount: 1}})
		_ = tx.PutProject(ctx, &models.Project{ID: "p2", UserID: "bob", Name: "Essos",
			Stats: &models.ProjectStats{DocumentCount: 1}})
		_ = tx.PutEntity(ctx, &models.Entity{ID: "jon", ProjectID: "p1", Name: "Jon Snow", Type: models.EntityTypeCharacter})
		_ = tx.PutDocument(ctx, &models.Document{ID: "d1", ProjectID: "p1", Title: "ch1",
			ProcessingStatus: models.ProcessingProcessing, UpdatedAt: now.Add(-2 * time.Hour)})
		return tx.PutDocument(ctx, &models.Document{ID: "d2", ProjectID: "p2", Title: "ch1",
			ProcessingStatus: models.ProcessingProcessing, UpdatedAt: now.Add(-time.Minute)})
	}))
	return st, cache
}

func newTestManager(st store.Store, cache *llmcache.Cache) *Manager {
	m := NewManager(st, cache, nil)
	m.now = func() time.Time { return now }
	return m
}

func TestRun_DryRunChangesNothing(t *testing.T) {
	st, cache := seed(t)
	ctx := context.Background()
	m := newTestManager(st, cache)

	rep, err := m.Run(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.CachePurged)
	assert.Equal(t, 2, rep.ProjectsReconciled)
	assert.Equal(t, 1, rep.ProjectsDrifted)
	assert.Equal(t, []string{"d1"}, rep.StuckDocuments)

	n, err := cache.CountExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, st.View(ctx, func(tx store.Tx) error {
		p, err := tx.GetProject(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), p.Stats.EntityCount)
		return nil
	}))
}

func TestRun_PurgesAndReconciles(t *testing.T) {
	st, cache := seed(t)
	ctx := context.Background()
	m := newTestManager(st, cache)

	rep, err := m.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.CachePurged)
	assert.Equal(t, 1, rep.ProjectsDrifted)

	res, err := cache.Check(ctx, "h3", "canon-v1")
	require.NoError(t, err)
	assert.NotNil(t, res, "unexpired entries survive")
	require.NoError(t, st.View(ctx, func(tx store.Tx) error {
		p, err := tx.GetProject(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), p.Stats.EntityCount)
		assert.Equal(t, int64(1), p.Stats.DocumentCount)
		return nil
	}))

	rep, err = m.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.CachePurged)
	assert.Equal(t, 0, rep.ProjectsDrifted)
}

func TestRun_WithoutCache(t *testing.T) {
	st, _ := seed(t)
	rep, err := newTestManager(st, nil).Run(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.CachePurged)
	assert.Equal(t, 2, rep.ProjectsReconciled)
}
