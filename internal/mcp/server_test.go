package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aileks/realm-sync/internal/app"
	"github.com/aileks/realm-sync/internal/auth"
	"github.com/aileks/realm-sync/internal/models"
	"github.com/aileks/realm-sync/internal/projects"
	"github.com/aileks/realm-sync/internal/review"
	"github.com/aileks/realm-sync/internal/store"
)

type fixture struct {
	srv     *Server
	svc     *app.Services
	project *models.Project
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := app.New(app.Deps{Store: store.NewMemoryStore(), Logger: logger}, app.Options{})
	p, err := svc.Projects.Create(context.Background(), auth.User("alice"), projects.CreateProjectInput{Name: "Westeros"})
	require.NoError(t, err)
	return fixture{srv: NewServer(svc, "alice", logger), svc: svc, project: p}
}

// makeReq builds a CallToolRequest with the given arguments.
func makeReq(toolName string, args map[string]any) mcpgo.CallToolRequest {
	req := mcpgo.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = args
	return req
}

// textContent extracts the first TextContent string from a CallToolResult.
func textContent(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content item")
	tc, ok := result.Content[0].(mcpgo.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func call(t *testing.T, f fixture, name string, args map[string]any, out any) *mcpgo.CallToolResult {
	t.Helper()
	res, err := f.srv.Handle(context.Background(), makeReq(name, args))
	require.NoError(t, err)
	require.NotNil(t, res)
	if out != nil {
		require.False(t, res.IsError, textContent(t, res))
		require.NoError(t, json.Unmarshal([]byte(textContent(t, res)), out))
	}
	return res
}

func TestEntityTools(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := auth.User("alice")

	jon, err := f.svc.Entities.Create(ctx, alice, review.CreateEntityInput{ProjectID: f.project.ID, Name: "Jon Snow", Type: models.EntityTypeCharacter})
	require.NoError(t, err)
	lord, err := f.svc.Entities.Create(ctx, alice, review.CreateEntityInput{ProjectID: f.project.ID, Name: "Lord Snow", Type: models.EntityTypeCharacter})
	require.NoError(t, err)

	var listed struct {
		Entities []models.Entity `json:"entities"`
		Count    int             `json:"count"`
	}
	call(t, f, "list_entities", map[string]any{"project_id": f.project.ID, "status": "pending"}, &listed)
	assert.Equal(t, 2, listed.Count)

	var similar struct {
		Entities []models.Entity `json:"entities"`
	}
	call(t, f, "find_similar", map[string]any{"project_id": f.project.ID, "name": "snow", "exclude_id": jon.ID}, &similar)
	require.Len(t, similar.Entities, 1)
	assert.Equal(t, lord.ID, similar.Entities[0].ID)

	var merged models.Entity
	call(t, f, "merge_entities", map[string]any{"source_id": lord.ID, "target_id": jon.ID}, &merged)
	assert.Equal(t, []string{"Lord Snow"}, merged.Aliases)

	var confirmed models.Entity
	call(t, f, "confirm_entity", map[string]any{"id": jon.ID}, &confirmed)
	assert.Equal(t, models.EntityStatusConfirmed, confirmed.Status)

	var st models.ProjectStats
	call(t, f, "project_stats", map[string]any{"id": f.project.ID}, &st)
	assert.Equal(t, int64(1), st.EntityCount)

	var rm review.Removal
	call(t, f, "remove_entity", map[string]any{"id": jon.ID}, &rm)
	assert.Equal(t, jon.ID, rm.EntityID)
}

func TestFactTools(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := auth.User("alice")

	fact, err := f.svc.Facts.Create(ctx, alice, review.CreateFactInput{
		ProjectID: f.project.ID, Subject: "Winterfell", Predicate: "is ruled by", Object: "House Stark",
	})
	require.NoError(t, err)

	var confirmed models.Fact
	call(t, f, "confirm_fact", map[string]any{"id": fact.ID}, &confirmed)
	assert.Equal(t, models.FactStatusConfirmed, confirmed.Status)

	var rejected models.Fact
	call(t, f, "reject_fact", map[string]any{"id": fact.ID}, &rejected)
	assert.Equal(t, models.FactStatusRejected, rejected.Status)

	var listed struct {
		Facts []models.Fact `json:"facts"`
	}
	call(t, f, "list_facts", map[string]any{"project_id": f.project.ID, "status": "rejected"}, &listed)
	require.Len(t, listed.Facts, 1)

	var deleted map[string]bool
	call(t, f, "remove_fact", map[string]any{"id": fact.ID}, &deleted)
	assert.True(t, deleted["deleted"])
}

func TestToolErrors(t *testing.T) {
	f := newFixture(t)

	res := call(t, f, "confirm_entity", map[string]any{}, nil)
	assert.True(t, res.IsError)
	assert.Contains(t, textContent(t, res), "id is required")

	res = call(t, f, "confirm_fact", map[string]any{"id": "missing"}, nil)
	assert.True(t, res.IsError)
	assert.Contains(t, textContent(t, res), "not_found")

	res = call(t, f, "no_such_tool", nil, nil)
	assert.True(t, res.IsError)

	bob := NewServer(f.svc, "bob", nil)
	res, err := bob.Handle(context.Background(), makeReq("project_stats", map[string]any{"id": f.project.ID}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, textContent(t, res), "unauthorized")
}

func TestProcessDocumentWithoutCompleter(t *testing.T) {
	f := newFixture(t)
	doc, err := f.svc.Documents.Create(context.Background(), auth.User("alice"), projects.CreateDocumentInput{
		ProjectID: f.project.ID, Title: "Prologue", Content: "Winter is coming.",
	})
	require.NoError(t, err)

	res := call(t, f, "process_document", map[string]any{"id": doc.ID}, nil)
	assert.True(t, res.IsError)
	assert.Contains(t, textContent(t, res), "configuration")

	res = call(t, f, "process_document", map[string]any{"id": doc.ID}, nil)
	assert.True(t, res.IsError)
	assert.Contains(t, textContent(t, res), "conflict")

	res = call(t, f, "process_document", map[string]any{"id": doc.ID, "retry": true}, nil)
	assert.True(t, res.IsError)
	assert.Contains(t, textContent(t, res), "configuration")
}

func TestNilServices(t *testing.T) {
	srv := NewServer(nil, "alice", nil)
	for _, name := range []string{"list_entities", "reject_entity", "confirm_fact", "project_stats"} {
		res, err := srv.Handle(context.Background(), makeReq(name, map[string]any{"id": "x", "project_id": "p"}))
		require.NoError(t, err)
		assert.True(t, res.IsError, name)
	}
	assert.NotNil(t, srv.MCPServer())
}
