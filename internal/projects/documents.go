package projects

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/aileks/realm-sync/internal/apperr"
	"github.com/aileks/realm-sync/internal/auth"
	"github.com/aileks/realm-sync/internal/blob"
	"github.com/aileks/realm-sync/internal/graph"
	"github.com/aileks/realm-sync/internal/models"
	"github.com/aileks/realm-sync/internal/stats"
	"github.com/aileks/realm-sync/internal/store"
)

// Documents is the owner-gated document service.
type Documents struct {
	st        store.Store
	blobs     blob.Store
	projector graph.Projector
	logger    *slog.Logger
	now       func() time.Time
}

// NewDocuments creates the document service. blobs may be nil, in which case only
// inline documents are supported. projector may be nil.
func NewDocuments(st store.Store, blobs blob.Store, projector graph.Projector, logger *slog.Logger) *Documents {
	if logger == nil {
		logger = slog.Default()
	}
	if projector == nil {
		projector = graph.Nop{}
	}
	return &Documents{st: st, blobs: blobs, projector: projector, logger: logger, now: time.Now}
}

// CreateDocumentInput holds the fields of a new document. Content and StorageID are
// mutually exclusive.
type CreateDocumentInput struct {
	ProjectID   string `json:"project_id"`
	Title       string `json:"title"`
	Content     string `json:"content,omitempty"`
	StorageID   string `json:"storage_id,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	OrderIndex  *int   `json:"order_index,omitempty"`
}

// Create adds a pending document and increments the project's document count.
func (s *Documents) Create(ctx context.Context, caller auth.Caller, in CreateDocumentInput) (*models.Document, error) {
	return s.create(ctx, caller, in, models.CountWords(in.Content))
}

func (s *Documents) create(ctx context.Context, caller auth.Caller, in CreateDocumentInput, words int) (*models.Document, error) {
	var out *models.Document
	err := s.st.Update(ctx, func(tx store.Tx) error {
		if _, err := Owned(ctx, tx, caller, in.ProjectID); err != nil {
			return err
		}
		title := strings.TrimSpace(in.Title)
		if title == "" {
			return apperr.Validation("document title is required")
		}
		if in.Content != "" && in.StorageID != "" {
			return apperr.Validation("document cannot have both content and a storage id")
		}
		if !utf8.ValidString(in.Content) {
			return apperr.Validation("document content must be UTF-8 text")
		}

		existing, err := tx.DocumentsByProject(ctx, in.ProjectID)
		if err != nil {
			return err
		}
		order := len(existing)
		if in.OrderIndex != nil {
			order = *in.OrderIndex
		}
		contentType := in.ContentType
		if contentType == "" {
			contentType = "text/plain"
		}

		now := s.now().UTC()
		d := &models.Document{
			ID:               uuid.New().String(),
			ProjectID:        in.ProjectID,
			Title:            title,
			Content:          in.Content,
			StorageID:        in.StorageID,
			ContentType:      contentType,
			ProcessingStatus: models.ProcessingPending,
			WordCount:        words,
			OrderIndex:       order,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := tx.PutDocument(ctx, d); err != nil {
			return err
		}
		out = d
		return stats.Apply(ctx, tx, in.ProjectID, stats.Delta{Documents: 1})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("document created", "document_id", out.ID, "project_id", out.ProjectID, "blob", out.StorageID != "")
	return out, nil
}

// BlobKey is the object key for a document body.
func BlobKey(projectID, documentID string) string {
	return fmt.Sprintf("projects/%s/documents/%s", projectID, documentID)
}

// CreateFromFile uploads data to blob storage and creates a document referencing it.
// The upload is removed again if the record cannot be created.
func (s *Documents) CreateFromFile(ctx context.Context, caller auth.Caller, projectID, title, contentType string, data []byte) (*models.Document, error) {
	if s.blobs == nil {
		return nil, apperr.New(apperr.CodeConfiguration, "blob storage is not configured")
	}
	if err := s.st.View(ctx, func(tx store.Tx) error {
		_, err := Owned(ctx, tx, caller, projectID)
		return err
	}); err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, apperr.Validation("document content must be UTF-8 text")
	}

	key := BlobKey(projectID, uuid.New().String())
	if err := s.blobs.Put(ctx, key, data, contentType); err != nil {
		return nil, fmt.Errorf("storing document body: %w", err)
	}
	d, err := s.create(ctx, caller, CreateDocumentInput{
		ProjectID: projectID, Title: title, StorageID: key, ContentType: contentType,
	}, models.CountWords(string(data)))
	if err != nil {
		deleteBlob(ctx, s.blobs, s.logger, key)
		return nil, err
	}
	return d, nil
}

// Get returns a document the caller owns.
func (s *Documents) Get(ctx context.Context, caller auth.Caller, id string) (*models.Document, error) {
	var d *models.Document
	err := s.st.View(ctx, func(tx store.Tx) error {
		var err error
		d, _, err = OwnedDocument(ctx, tx, caller, id)
		return err
	})
	return d, err
}

// List returns a project's documents in creation order.
func (s *Documents) List(ctx context.Context, caller auth.Caller, projectID string) ([]models.Document, error) {
	var out []models.Document
	err := s.st.View(ctx, func(tx store.Tx) error {
		if _, err := Owned(ctx, tx, caller, projectID); err != nil {
			return err
		}
		var err error
		out, err = tx.DocumentsByProject(ctx, projectID)
		return err
	})
	return out, err
}

// Content returns the text of d, reading blob storage for uploaded documents.
func (s *Documents) Content(ctx context.Context, d *models.Document) (string, error) {
	if d.StorageID == "" {
		return d.Content, nil
	}
	if s.blobs == nil {
		return "", apperr.New(apperr.CodeConfiguration, "blob storage is not configured")
	}
	data, err := s.blobs.Get(ctx, d.StorageID)
	if err != nil {
		return "", fmt.Errorf("reading document %s body: %w", d.ID, err)
	}
	return string(data), nil
}

// UpdateProcessingStatus sets a document's processing status on behalf of its owner.
func (s *Documents) UpdateProcessingStatus(ctx context.Context, caller auth.Caller, id string, status models.ProcessingStatus) (*models.Document, error) {
	var out *models.Document
	err := s.st.Update(ctx, func(tx store.Tx) error {
		if _, _, err := OwnedDocument(ctx, tx, caller, id); err != nil {
			return err
		}
		if !status.IsValid() {
			return apperr.Validation("unknown processing status %q", status)
		}
		var err error
		out, err = SetProcessingStatus(ctx, tx, id, status, s.now())
		return err
	})
	return out, err
}

// SetProcessingStatus moves a document to status inside tx. Completing stamps
// ProcessedAt; other transitions leave it as is.
func SetProcessingStatus(ctx context.Context, tx store.Tx, id string, status models.ProcessingStatus, now time.Time) (*models.Document, error) {
	d, err := tx.GetDocument(ctx, id)
	if err != nil {
		return nil, Missing(err, "document", id)
	}
	d.ProcessingStatus = status
	d.UpdatedAt = now.UTC()
	if status == models.ProcessingCompleted {
		ts := now.UTC()
		d.ProcessedAt = &ts
	}
	if err := tx.PutDocument(ctx, d); err != nil {
		return nil, fmt.Errorf("updating document status: %w", err)
	}
	return d, nil
}

// Delete removes a document and the facts extracted from it. Entities first
// mentioned in the document stay but lose that reference.
func (s *Documents) Delete(ctx context.Context, caller auth.Caller, id string) error {
	var (
		storageID string
		removed   []string
	)
	err := s.st.Update(ctx, func(tx store.Tx) error {
		d, _, err := OwnedDocument(ctx, tx, caller, id)
		if err != nil {
			return err
		}
		storageID = d.StorageID

		facts, err := tx.FactsByDocument(ctx, id)
		if err != nil {
			return err
		}
		delta := stats.Delta{Documents: -1}
		for i := range facts {
			if facts[i].Status.Counted() {
				delta.Facts--
			}
			if err := tx.DeleteFact(ctx, facts[i].ID); err != nil {
				return err
			}
			removed = append(removed, facts[i].ID)
		}

		ents, err := tx.EntitiesByProject(ctx, d.ProjectID)
		if err != nil {
			return err
		}
		for i := range ents {
			if ents[i].FirstMentionedIn != id {
				continue
			}
			ents[i].FirstMentionedIn = ""
			if err := tx.PutEntity(ctx, &ents[i]); err != nil {
				return err
			}
		}

		if err := tx.DeleteDocument(ctx, id); err != nil {
			return err
		}
		return stats.Apply(ctx, tx, d.ProjectID, delta)
	})
	if err != nil {
		return err
	}
	if storageID != "" {
		deleteBlob(ctx, s.blobs, s.logger, storageID)
	}
	for _, factID := range removed {
		graph.Report(s.logger, s.projector.DeleteFact(ctx, factID), "fact_id", factID)
	}
	s.logger.Info("document deleted", "document_id", id, "facts_removed", len(removed))
	return nil
}
