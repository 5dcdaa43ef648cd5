package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aileks/realm-sync/internal/apperr"
	"github.com/aileks/realm-sync/internal/auth"
	"github.com/aileks/realm-sync/internal/models"
	"github.com/aileks/realm-sync/internal/store"
)

func seed(t *testing.T) store.Store {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.Update(ctx, func(tx store.Tx) error {
		_ = tx.PutProject(ctx, &models.Project{ID: "p1", UserID: "alice", Name: "Westeros"})
		_ = tx.PutProject(ctx, &models.Project{ID: "p2", UserID: "alice", Name: "Essos"})
		_ = tx.PutEntity(ctx, &models.Entity{ID: "jon", ProjectID: "p1", Name: "Jon Snow", Type: models.EntityTypeCharacter,
			Aliases: []string{"Lord Snow"}, Status: models.EntityStatusConfirmed, Description: "King in the North"})
		_ = tx.PutEntity(ctx, &models.Entity{ID: "arya", ProjectID: "p1", Name: "Arya Stark", Type: models.EntityTypeCharacter})
		return tx.PutEntity(ctx, &models.Entity{ID: "dany", ProjectID: "p2", Name: "Daenerys", Type: models.EntityTypeCharacter})
	}))
	return st
}

func resolveOne(t *testing.T, st store.Store, req Request) Resolution {
	t.Helper()
	ctx := context.Background()
	r := New(st, nil)
	var res Resolution
	require.NoError(t, st.Update(ctx, func(tx store.Tx) error {
		idx, err := LoadIndex(ctx, tx, req.ProjectID)
		if err != nil {
			return err
		}
		res, err = r.ResolveEntity(ctx, tx, idx, req)
		return err
	}))
	return res
}

func TestResolveEntity_MatchesNameCaseInsensitively(t *testing.T) {
	st := seed(t)
	res := resolveOne(t, st, Request{ProjectID: "p1", Name: "  jon SNOW ", Type: models.EntityTypeCharacter, Description: "a crow"})
	assert.Equal(t, Resolution{EntityID: "jon"}, res)

	ctx := context.Background()
	_ = st.View(ctx, func(tx store.Tx) error {
		e, err := tx.GetEntity(ctx, "jon")
		require.NoError(t, err)
		assert.Equal(t, "King in the North", e.Description, "existing descriptions are never overwritten")
		return nil
	})
}

func TestResolveEntity_MatchesAliasesBothWays(t *testing.T) {
	st := seed(t)
	assert.Equal(t, "jon", resolveOne(t, st, Request{ProjectID: "p1", Name: "Lord Snow"}).EntityID)
	assert.Equal(t, "arya", resolveOne(t, st, Request{ProjectID: "p1", Name: "No One", Aliases: []string{"arya stark"}}).EntityID)
}

func TestResolveEntity_CreatesPendingEntity(t *testing.T) {
	st := seed(t)
	res := resolveOne(t, st, Request{
		ProjectID: "p1", SourceDocumentID: "doc1", Name: "Ghost", Type: "wolf",
		Aliases: []string{"ghost", "The White Wolf", "the white wolf"},
	})
	require.True(t, res.IsNew)

	ctx := context.Background()
	_ = st.View(ctx, func(tx store.Tx) error {
		e, err := tx.GetEntity(ctx, res.EntityID)
		require.NoError(t, err)
		assert.Equal(t, models.EntityStatusPending, e.Status)
		assert.Equal(t, models.EntityTypeConcept, e.Type)
		assert.Equal(t, "doc1", e.FirstMentionedIn)
		assert.Equal(t, []string{"The White Wolf"}, e.Aliases)
		return nil
	})
}

func TestResolveEntity_ScopedToProject(t *testing.T) {
	st := seed(t)
	res := resolveOne(t, st, Request{ProjectID: "p1", Name: "Daenerys"})
	assert.True(t, res.IsNew)
}

func TestResolveEntity_IndexSeesNewEntities(t *testing.T) {
	ctx := context.Background()
	st := seed(t)
	r := New(st, nil)
	require.NoError(t, st.Update(ctx, func(tx store.Tx) error {
		idx, err := LoadIndex(ctx, tx, "p1")
		require.NoError(t, err)
		first, err := r.ResolveEntity(ctx, tx, idx, Request{ProjectID: "p1", Name: "Winterfell", Type: models.EntityTypeLocation})
		require.NoError(t, err)
		second, err := r.ResolveEntity(ctx, tx, idx, Request{ProjectID: "p1", Name: "WINTERFELL", Type: models.EntityTypeLocation})
		require.NoError(t, err)
		assert.True(t, first.IsNew)
		assert.False(t, second.IsNew)
		assert.Equal(t, first.EntityID, second.EntityID)
		return nil
	}))
}

func TestResolveEntity_RequiresName(t *testing.T) {
	ctx := context.Background()
	st := seed(t)
	err := st.Update(ctx, func(tx store.Tx) error {
		idx, _ := LoadIndex(ctx, tx, "p1")
		_, err := New(st, nil).ResolveEntity(ctx, tx, idx, Request{ProjectID: "p1", Name: " "})
		return err
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestFindSimilar(t *testing.T) {
	ctx := context.Background()
	st := seed(t)
	r := New(st, nil)

	got, err := r.FindSimilar(ctx, auth.User("alice"), "p1", "snow", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "jon", got[0].ID)

	got, err = r.FindSimilar(ctx, auth.User("alice"), "p1", "Arya Stark of Winterfell", "")
	require.NoError(t, err)
	require.Len(t, got, 1, "query containing the name matches")

	got, err = r.FindSimilar(ctx, auth.User("alice"), "p1", "snow", "jon")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = r.FindSimilar(ctx, auth.User("bob"), "p1", "snow", "")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = r.FindSimilar(ctx, auth.User("alice"), "p1", "", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
