package api

import (
	"net/http"

	"github.com/aileks/realm-sync/internal/auth"
	"github.com/aileks/realm-sync/internal/projects"
)

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	var req projects.CreateProjectInput
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.svc.Projects.Create(r.Context(), caller, req)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	list, err := s.svc.Projects.List(r.Context(), caller)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	p, err := s.svc.Projects.Get(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	var req projects.UpdateProjectInput
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.svc.Projects.Update(r.Context(), caller, r.PathValue("id"), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	if err := s.svc.Projects.Delete(r.Context(), caller, r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleProjectStats(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	st, err := s.svc.Projects.Stats(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	rep, err := s.svc.Projects.Reconcile(r.Context(), caller, r.PathValue("id"), queryBool(r, "dry_run"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}
