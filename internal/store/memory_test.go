package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aileks/realm-sync/internal/models"
)

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		return tx.PutEntity(ctx, &models.Entity{ID: "e1", ProjectID: "p1", Name: "Jon", Aliases: []string{"Lord Snow"}})
	}))

	_ = s.View(ctx, func(tx Tx) error {
		e, err := tx.GetEntity(ctx, "e1")
		require.NoError(t, err)
		e.Aliases[0] = "mutated"
		e2, err := tx.GetEntity(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, "Lord Snow", e2.Aliases[0])
		return nil
	})
}

func TestMemoryStore_PanicRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	assert.Panics(t, func() {
		_ = s.Update(ctx, func(tx Tx) error {
			_ = tx.PutProject(ctx, &models.Project{ID: "p1", UserID: "u1"})
			panic("boom")
		})
	})
	_ = s.View(ctx, func(tx Tx) error {
		ps, err := tx.AllProjects(ctx)
		require.NoError(t, err)
		assert.Empty(t, ps)
		return nil
	})
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewMemoryStore()
	err := s.Update(ctx, func(Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTable_RestoreAfterReplaceAndDelete(t *testing.T) {
	tb := newTable(func(s string) string { return s[:1] })
	tb.put("a", "apple")
	prev, existed := tb.put("a", "avocado")
	tb.restore("a", prev, existed)
	v, ok := tb.get("a")
	require.True(t, ok)
	assert.Equal(t, "apple", v)

	prev, existed = tb.del("a")
	require.True(t, existed)
	assert.Empty(t, tb.lookup(0, "a"))
	tb.restore("a", prev, true)
	assert.Equal(t, []string{"apple"}, tb.lookup(0, "a"))
}
