package api

import (
	"io"
	"net/http"

	"github.com/aileks/realm-sync/internal/apperr"
	"github.com/aileks/realm-sync/internal/auth"
	"github.com/aileks/realm-sync/internal/models"
	"github.com/aileks/realm-sync/internal/projects"
)

// createDocumentRequest is the body accepted by POST /v1/projects/{id}/documents.
type createDocumentRequest struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
	OrderIndex  *int   `json:"order_index"`
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	var req createDocumentRequest
	if !s.decode(w, r, &req) {
		return
	}
	d, err := s.svc.Documents.Create(r.Context(), caller, projects.CreateDocumentInput{
		ProjectID:   r.PathValue("id"),
		Title:       req.Title,
		Content:     req.Content,
		ContentType: req.ContentType,
		OrderIndex:  req.OrderIndex,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, d)
}

// handleUploadDocument stores the raw request body in blob storage. The title comes
// from the ?title= query parameter.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		s.fail(w, apperr.New(apperr.CodeLimit, "upload exceeds %d bytes", maxUploadBytes))
		return
	}
	contentType := r.Header.Get("Content-Type")
	d, err := s.svc.Documents.CreateFromFile(r.Context(), caller, r.PathValue("id"), r.URL.Query().Get("title"), contentType, data)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	list, err := s.svc.Documents.List(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	d, err := s.svc.Documents.Get(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	if err := s.svc.Documents.Delete(r.Context(), caller, r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// documentStatusRequest is the body accepted by PUT /v1/documents/{id}/status.
type documentStatusRequest struct {
	Status models.ProcessingStatus `json:"status"`
}

func (s *Server) handleDocumentStatus(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	var req documentStatusRequest
	if !s.decode(w, r, &req) {
		return
	}
	d, err := s.svc.Documents.UpdateProcessingStatus(r.Context(), caller, r.PathValue("id"), req.Status)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

// handleProcessDocument runs extraction synchronously. A partial failure answers
// with the error status and the partial report. ?retry=true restarts a document
// left in processing.
func (s *Server) handleProcessDocument(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	process := s.svc.Processor.ProcessDocument
	if queryBool(r, "retry") {
		process = s.svc.Processor.Retry
	}
	rep, err := process(r.Context(), caller, r.PathValue("id"))
	switch {
	case err != nil && rep != nil:
		s.failWith(w, err, rep)
	case err != nil:
		s.fail(w, err)
	default:
		s.writeJSON(w, http.StatusOK, rep)
	}
}
