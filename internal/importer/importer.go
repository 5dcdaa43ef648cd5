// Package importer loads a directory of manuscript files into a project as
// ordered documents.
package importer

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aileks/realm-sync/internal/apperr"
	"github.com/aileks/realm-sync/internal/auth"
	"github.com/aileks/realm-sync/internal/models"
	"github.com/aileks/realm-sync/internal/projects"
)

// Creator is the subset of projects.Documents the importer needs.
type Creator interface {
	Create(ctx context.Context, caller auth.Caller, in projects.CreateDocumentInput) (*models.Document, error)
	CreateFromFile(ctx context.Context, caller auth.Caller, projectID, title, contentType string, data []byte) (*models.Document, error)
}

// Importer creates one document per manuscript file.
type Importer struct {
	docs   Creator
	upload bool
	logger *slog.Logger
}

// New returns an Importer. With upload set, bodies go to blob storage instead of
// being stored inline.
func New(docs Creator, upload bool, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{docs: docs, upload: upload, logger: logger}
}

// Failure records a file that could not be imported.
type Failure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Result lists what an import created.
type Result struct {
	Documents []models.Document `json:"documents"`
	Failed    []Failure         `json:"failed,omitempty"`
}

// ImportDirectory walks dir and imports every manuscript file in path order, so
// "01-prologue.md" precedes "02-winterfell.md". A file that fails is recorded and
// the walk continues. Cancellation stops the import.
func (im *Importer) ImportDirectory(ctx context.Context, caller auth.Caller, projectID, dir string) (*Result, error) {
	files, err := FindManuscriptFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("finding manuscript files in %s: %w", dir, err)
	}
	im.logger.Info("found manuscript files", "count", len(files), "dir", dir)

	res := &Result{Documents: []models.Document{}}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		d, err := im.ImportFile(ctx, caller, projectID, file)
		if err != nil {
			// Ownership and auth failures repeat for every file.
			switch apperr.CodeOf(err) {
			case apperr.CodeUnauthenticated, apperr.CodeUnauthorized, apperr.CodeNotFound:
				return res, err
			}
			im.logger.Error("importing file", "file", file, "error", err)
			res.Failed = append(res.Failed, Failure{Path: file, Error: err.Error()})
			continue
		}
		res.Documents = append(res.Documents, *d)
	}
	return res, nil
}

// ImportFile creates a single document. The title is the file's first heading,
// falling back to the file name.
func (im *Importer) ImportFile(ctx context.Context, caller auth.Caller, projectID, path string) (*models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	title := FirstHeading(string(data))
	if title == "" {
		base := filepath.Base(path)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	contentType := ContentType(path)

	if im.upload {
		return im.docs.CreateFromFile(ctx, caller, projectID, title, contentType, data)
	}
	return im.docs.Create(ctx, caller, projects.CreateDocumentInput{
		ProjectID:   projectID,
		Title:       title,
		Content:     string(data),
		ContentType: contentType,
	})
}

var manuscriptExts = []string{".md", ".markdown", ".txt"}

// ContentType maps a manuscript file name to its media type.
func ContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return "text/markdown"
	default:
		return "text/plain"
	}
}

// FindManuscriptFiles returns the markdown and text files under dir, sorted by
// path. Hidden files and directories are skipped.
func FindManuscriptFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && slices.Contains(manuscriptExts, strings.ToLower(filepath.Ext(path))) {
			files = append(files, path)
		}
		return nil
	})
	slices.Sort(files)
	return files, err
}

// FirstHeading returns the text of the first markdown heading in content.
func FirstHeading(content string) string {
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if title, ok := parseHeader(scanner.Text()); ok {
			return title
		}
	}
	return ""
}

func parseHeader(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, "#")
	depth := len(line) - len(trimmed)
	if depth == 0 || depth > 6 || !strings.HasPrefix(trimmed, " ") {
		return "", false
	}
	title := strings.TrimSpace(trimmed)
	return title, title != ""
}
