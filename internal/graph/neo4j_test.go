package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aileks/realm-sync/internal/models"
)

type statement struct {
	cypher string
	params map[string]any
}

func recordingProjector(fail error) (*Neo4jProjector, *[]statement) {
	var got []statement
	p := &Neo4jProjector{run: func(_ context.Context, cypher string, params map[string]any) error {
		got = append(got, statement{cypher, params})
		return fail
	}}
	return p, &got
}

func TestNeo4jProjector_UpsertEntity(t *testing.T) {
	p, got := recordingProjector(nil)
	err := p.UpsertEntity(context.Background(), models.Entity{
		ID: "e1", ProjectID: "p1", Name: "Jon Snow", Type: models.EntityTypeCharacter,
	})
	require.NoError(t, err)
	require.Len(t, *got, 1)
	st := (*got)[0]
	assert.Equal(t, cypherUpsertEntity, st.cypher)
	assert.Equal(t, "character", st.params["type"])
	assert.Equal(t, []string{}, st.params["aliases"])
}

func TestNeo4jProjector_MergeRunsTwoStatements(t *testing.T) {
	p, got := recordingProjector(nil)
	require.NoError(t, p.MergeEntities(context.Background(), "src", "dst"))
	require.Len(t, *got, 2)
	assert.Equal(t, cypherMoveFacts, (*got)[0].cypher)
	assert.Equal(t, "dst", (*got)[0].params["targetId"])
	assert.Equal(t, cypherDeleteSource, (*got)[1].cypher)
}

func TestNeo4jProjector_FactWithoutEntityIsSkipped(t *testing.T) {
	p, got := recordingProjector(nil)
	require.NoError(t, p.UpsertFact(context.Background(), models.Fact{ID: "f1"}))
	assert.Empty(t, *got)

	require.NoError(t, p.UpsertFact(context.Background(), models.Fact{ID: "f2", EntityID: "e1", Confidence: 0.5}))
	require.Len(t, *got, 1)
	assert.Equal(t, 0.5, (*got)[0].params["confidence"])
}

func TestNeo4jProjector_WrapsErrors(t *testing.T) {
	boom := errors.New("connection refused")
	p, _ := recordingProjector(boom)
	err := p.DeleteFact(context.Background(), "f1")
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "neo4j delete fact")
}

func TestNewNeo4jProjector_RequiresURI(t *testing.T) {
	_, err := NewNeo4jProjector(context.Background(), Neo4jConfig{})
	assert.Error(t, err)
}

func TestReport_IgnoresNil(t *testing.T) {
	assert.NotPanics(t, func() { Report(nil, nil) })
}
