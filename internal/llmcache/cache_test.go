package llmcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aileks/realm-sync/internal/apperr"
	"github.com/aileks/realm-sync/internal/models"
	"github.com/aileks/realm-sync/internal/store"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(t *testing.T) (*Cache, *fakeClock, store.Store) {
	t.Helper()
	clk := &fakeClock{t: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
	st := store.NewMemoryStore()
	return New(st, nil, WithClock(clk.now)), clk, st
}

func sampleResult(name string) *models.ExtractionResult {
	return &models.ExtractionResult{
		Entities:      []models.ExtractedEntity{{Name: name, Type: models.EntityTypeCharacter}},
		Facts:         []models.ExtractedFact{},
		Relationships: []models.ExtractedRelationship{},
	}
}

func TestComputeHash(t *testing.T) {
	h := ComputeHash("Jon Snow is a member of the Night's Watch.")
	assert.Len(t, h, 64)
	assert.Equal(t, h, ComputeHash("Jon Snow is a member of the Night's Watch."))
	assert.NotEqual(t, h, ComputeHash("Jon Snow is a member of the Night's Watch"))
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ComputeHash(""))
}

func TestCheck_MissThenHit(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCache(t)
	h := ComputeHash("chunk")

	got, err := c.Check(ctx, h, "v1")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = c.Save(ctx, h, "v1", "claude-test", sampleResult("Jon Snow"))
	require.NoError(t, err)

	got, err = c.Check(ctx, h, "v1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Jon Snow", got.Entities[0].Name)

	got, err = c.Check(ctx, h, "v2")
	require.NoError(t, err)
	assert.Nil(t, got, "different prompt version is a miss")
}

func TestCheck_ExpiredIsMiss(t *testing.T) {
	ctx := context.Background()
	c, clk, _ := newTestCache(t)
	h := ComputeHash("chunk")
	_, err := c.Save(ctx, h, "v1", "m", sampleResult("Jon Snow"))
	require.NoError(t, err)

	clk.advance(DefaultTTL - time.Millisecond)
	got, err := c.Check(ctx, h, "v1")
	require.NoError(t, err)
	assert.NotNil(t, got)

	clk.advance(time.Millisecond)
	got, err = c.Check(ctx, h, "v1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCheck_FirstUnexpiredDuplicateWins(t *testing.T) {
	ctx := context.Background()
	c, clk, _ := newTestCache(t)
	h := ComputeHash("chunk")

	_, err := c.Save(ctx, h, "v1", "m", sampleResult("Old"))
	require.NoError(t, err)
	clk.advance(DefaultTTL / 2)
	_, err = c.Save(ctx, h, "v1", "m", sampleResult("Middle"))
	require.NoError(t, err)
	_, err = c.Save(ctx, h, "v1", "m", sampleResult("New"))
	require.NoError(t, err)

	got, err := c.Check(ctx, h, "v1")
	require.NoError(t, err)
	assert.Equal(t, "Old", got.Entities[0].Name)

	clk.advance(DefaultTTL / 2)
	got, err = c.Check(ctx, h, "v1")
	require.NoError(t, err)
	assert.Equal(t, "Middle", got.Entities[0].Name)
}

func TestCheck_UndecodableEntryIsSkipped(t *testing.T) {
	ctx := context.Background()
	c, clk, st := newTestCache(t)
	h := ComputeHash("chunk")
	require.NoError(t, st.Update(ctx, func(tx store.Tx) error {
		return tx.InsertCacheEntry(ctx, &models.CacheEntry{
			ID: "broken", InputHash: h, PromptVersion: "v1", Response: "{not json",
			CreatedAt: clk.t, ExpiresAt: clk.t.Add(time.Hour),
		})
	}))
	got, err := c.Check(ctx, h, "v1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCache(t)
	h1, h2 := ComputeHash("a"), ComputeHash("b")
	for _, h := range []string{h1, h2} {
		_, err := c.Save(ctx, h, "v1", "m", sampleResult("x"))
		require.NoError(t, err)
	}
	_, err := c.Save(ctx, h1, "v2", "m", sampleResult("x"))
	require.NoError(t, err)

	n, err := c.Invalidate(ctx, "v1", h1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, _ := c.Check(ctx, h1, "v1")
	assert.Nil(t, got)
	got, _ = c.Check(ctx, h2, "v1")
	assert.NotNil(t, got)

	n, err = c.Invalidate(ctx, "v1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, _ = c.Check(ctx, h2, "v1")
	assert.Nil(t, got)
	got, _ = c.Check(ctx, h1, "v2")
	assert.NotNil(t, got, "other versions survive")

	_, err = c.Invalidate(ctx, "", h1)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestPurgeExpired(t *testing.T) {
	ctx := context.Background()
	c, clk, _ := newTestCache(t)
	_, err := c.Save(ctx, ComputeHash("a"), "v1", "m", sampleResult("x"))
	require.NoError(t, err)
	clk.advance(time.Hour)
	_, err = c.Save(ctx, ComputeHash("b"), "v1", "m", sampleResult("y"))
	require.NoError(t, err)

	clk.advance(DefaultTTL - time.Minute)
	n, err := c.CountExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = c.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = c.CountExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWithTTL(t *testing.T) {
	c := New(store.NewMemoryStore(), nil, WithTTL(time.Minute))
	assert.Equal(t, time.Minute, c.ttl)
	c = New(store.NewMemoryStore(), nil, WithTTL(0))
	assert.Equal(t, DefaultTTL, c.ttl)
}
