package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aileks/realm-sync/internal/apperr"
	"github.com/aileks/realm-sync/internal/models"
	"github.com/aileks/realm-sync/internal/store"
)

// sandbox points config and the SQLite store at a temp dir and returns the
// database path.
func sandbox(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("REALM_SYNC_LOGGING_LEVEL", "error")
	dbPath := filepath.Join(dir, "data", "canon.db")
	t.Setenv("REALM_SYNC_STORE_PATH", dbPath)
	return dbPath
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetContext(context.Background())
	return cmd.Execute()
}

func projectsOf(t *testing.T, dbPath string) []models.Project {
	t.Helper()
	st, err := store.OpenSQLite(dbPath)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	var out []models.Project
	require.NoError(t, st.View(context.Background(), func(tx store.Tx) error {
		var err error
		out, err = tx.AllProjects(context.Background())
		return err
	}))
	return out
}

func TestProjectCommands(t *testing.T) {
	dbPath := sandbox(t)

	require.NoError(t, run(t, "project", "create", "Westeros", "--user", "alice", "--type", "ttrpg"))

	list := projectsOf(t, dbPath)
	require.Len(t, list, 1)
	assert.Equal(t, "Westeros", list[0].Name)
	assert.Equal(t, "alice", list[0].UserID)
	assert.Equal(t, models.ProjectTypeTTRPG, list[0].Type)

	require.NoError(t, run(t, "project", "stats", list[0].ID, "--user", "alice"))

	err := run(t, "project", "stats", list[0].ID, "--user", "bob")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeUnauthorized, apperr.CodeOf(err))

	err = run(t, "project", "list")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeUnauthenticated, apperr.CodeOf(err))

	require.NoError(t, run(t, "project", "delete", list[0].ID, "--user", "alice"))
	assert.Empty(t, projectsOf(t, dbPath))
}

func TestDocumentProcessRequiresAPIKey(t *testing.T) {
	dbPath := sandbox(t)
	t.Setenv("REALM_SYNC_CLI_USER_ID", "alice")

	require.NoError(t, run(t, "project", "create", "Westeros"))
	p := projectsOf(t, dbPath)[0]

	file := filepath.Join(t.TempDir(), "prologue.md")
	require.NoError(t, os.WriteFile(file, []byte("Winter is coming."), 0o600))
	require.NoError(t, run(t, "document", "add", p.ID, file))

	st, err := store.OpenSQLite(dbPath)
	require.NoError(t, err)
	var docs []models.Document
	require.NoError(t, st.View(context.Background(), func(tx store.Tx) error {
		docs, err = tx.DocumentsByProject(context.Background(), p.ID)
		return err
	}))
	require.NoError(t, st.Close())
	require.Len(t, docs, 1)
	assert.Equal(t, "prologue", docs[0].Title)

	err = run(t, "document", "process", docs[0].ID)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeConfiguration, apperr.CodeOf(err))

	err = run(t, "document", "process", docs[0].ID)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err), "the failed run left the document in processing")
	err = run(t, "document", "process", "--retry", docs[0].ID)
	assert.Equal(t, apperr.CodeConfiguration, apperr.CodeOf(err))
}

func TestMigrateCheck(t *testing.T) {
	sandbox(t)
	require.NoError(t, run(t, "migrate"))
	require.NoError(t, run(t, "migrate", "--check"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b", truncate("a\nb", 10))
	assert.Equal(t, "Winte...", truncate("Winterfell", 5))
}
