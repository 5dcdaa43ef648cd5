package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aileks/realm-sync/internal/apperr"
	"github.com/aileks/realm-sync/internal/auth"
	"github.com/aileks/realm-sync/internal/blob"
	"github.com/aileks/realm-sync/internal/graph"
	"github.com/aileks/realm-sync/internal/models"
	"github.com/aileks/realm-sync/internal/projects"
	"github.com/aileks/realm-sync/internal/store"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func manuscript(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "02-winterfell.md"), "## Winterfell\n\nJon Snow rides north.")
	writeFile(t, filepath.Join(dir, "01-prologue.md"), "Winter is coming.")
	writeFile(t, filepath.Join(dir, "part2", "03-wall.txt"), "The Wall is cold.")
	writeFile(t, filepath.Join(dir, "notes.json"), "{}")
	writeFile(t, filepath.Join(dir, ".drafts", "00-cut.md"), "deleted scene")
	return dir
}

func setup(t *testing.T) (*projects.Documents, *models.Project) {
	t.Helper()
	st := store.NewMemoryStore()
	ps := projects.NewProjects(st, nil, graph.Nop{}, nil)
	p, err := ps.Create(context.Background(), auth.User("alice"), projects.CreateProjectInput{Name: "Westeros"})
	require.NoError(t, err)
	return projects.NewDocuments(st, blob.NewMemoryStore(), graph.Nop{}, nil), p
}

func TestFindManuscriptFiles(t *testing.T) {
	dir := manuscript(t)
	files, err := FindManuscriptFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "01-prologue.md"),
		filepath.Join(dir, "02-winterfell.md"),
		filepath.Join(dir, "part2", "03-wall.txt"),
	}, files)
}

func TestFirstHeading(t *testing.T) {
	assert.Equal(t, "Winterfell", FirstHeading("intro\n## Winterfell \nbody"))
	assert.Equal(t, "", FirstHeading("#hashtag\nno headings here"))
	assert.Equal(t, "", FirstHeading("#  \n"))
}

func TestImportDirectory(t *testing.T) {
	docs, p := setup(t)
	im := New(docs, false, nil)

	res, err := im.ImportDirectory(context.Background(), auth.User("alice"), p.ID, manuscript(t))
	require.NoError(t, err)
	require.Len(t, res.Documents, 3)
	assert.Empty(t, res.Failed)

	assert.Equal(t, "01-prologue", res.Documents[0].Title)
	assert.Equal(t, "Winterfell", res.Documents[1].Title)
	assert.Equal(t, "03-wall", res.Documents[2].Title)
	for i, d := range res.Documents {
		assert.Equal(t, i, d.OrderIndex)
		assert.Equal(t, models.ProcessingPending, d.ProcessingStatus)
	}
	assert.Equal(t, "text/markdown", res.Documents[0].ContentType)
	assert.Equal(t, "text/plain", res.Documents[2].ContentType)
}

func TestImportDirectory_Upload(t *testing.T) {
	docs, p := setup(t)
	im := New(docs, true, nil)

	res, err := im.ImportDirectory(context.Background(), auth.User("alice"), p.ID, manuscript(t))
	require.NoError(t, err)
	require.Len(t, res.Documents, 3)
	for _, d := range res.Documents {
		assert.NotEmpty(t, d.StorageID)
		assert.Empty(t, d.Content)
	}
}

func TestImportDirectory_RecordsBadFiles(t *testing.T) {
	docs, p := setup(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.md"), "fine")
	writeFile(t, filepath.Join(dir, "b.md"), "\xff\xfe broken")

	res, err := New(docs, false, nil).ImportDirectory(context.Background(), auth.User("alice"), p.ID, dir)
	require.NoError(t, err)
	assert.Len(t, res.Documents, 1)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, filepath.Join(dir, "b.md"), res.Failed[0].Path)
}

func TestImportDirectory_StopsOnAccessErrors(t *testing.T) {
	docs, p := setup(t)

	res, err := New(docs, false, nil).ImportDirectory(context.Background(), auth.User("bob"), p.ID, manuscript(t))
	require.Error(t, err)
	assert.Equal(t, apperr.CodeUnauthorized, apperr.CodeOf(err))
	assert.Empty(t, res.Documents)
}
