package api

import (
	"net/http"

	"github.com/aileks/realm-sync/internal/auth"
	"github.com/aileks/realm-sync/internal/models"
	"github.com/aileks/realm-sync/internal/review"
)

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	status := models.EntityStatus(r.URL.Query().Get("status"))
	list, err := s.svc.Entities.List(r.Context(), caller, r.PathValue("id"), status)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateEntity(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	var req review.CreateEntityInput
	if !s.decode(w, r, &req) {
		return
	}
	req.ProjectID = r.PathValue("id")
	e, err := s.svc.Entities.Create(r.Context(), caller, req)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleSimilarEntities(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	q := r.URL.Query()
	list, err := s.svc.Resolver.FindSimilar(r.Context(), caller, r.PathValue("id"), q.Get("name"), q.Get("exclude"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	e, err := s.svc.Entities.Get(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleUpdateEntity(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	var req review.UpdateEntityInput
	if !s.decode(w, r, &req) {
		return
	}
	e, err := s.svc.Entities.Update(r.Context(), caller, r.PathValue("id"), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleConfirmEntity(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	e, err := s.svc.Entities.Confirm(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleRejectEntity(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	rm, err := s.svc.Entities.Reject(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rm)
}

func (s *Server) handleRemoveEntity(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	rm, err := s.svc.Entities.Remove(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rm)
}

// mergeRequest is the body accepted by POST /v1/entities/{id}/merge.
type mergeRequest struct {
	TargetID string `json:"target_id"`
}

func (s *Server) handleMergeEntity(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	var req mergeRequest
	if !s.decode(w, r, &req) {
		return
	}
	e, err := s.svc.Entities.Merge(r.Context(), caller, r.PathValue("id"), req.TargetID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleListFacts(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	q := r.URL.Query()
	filter := review.FactFilter{
		EntityID:   q.Get("entity_id"),
		DocumentID: q.Get("document_id"),
		Status:     models.FactStatus(q.Get("status")),
	}
	list, err := s.svc.Facts.List(r.Context(), caller, r.PathValue("id"), filter)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateFact(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	var req review.CreateFactInput
	if !s.decode(w, r, &req) {
		return
	}
	req.ProjectID = r.PathValue("id")
	f, err := s.svc.Facts.Create(r.Context(), caller, req)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, f)
}

func (s *Server) handleGetFact(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	f, err := s.svc.Facts.Get(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleConfirmFact(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	f, err := s.svc.Facts.Confirm(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleRejectFact(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	f, err := s.svc.Facts.Reject(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleRemoveFact(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	if err := s.svc.Facts.Remove(r.Context(), caller, r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
