// Package api exposes the realm-sync services over HTTP/JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/aileks/realm-sync/internal/app"
	"github.com/aileks/realm-sync/internal/apperr"
	"github.com/aileks/realm-sync/internal/auth"
)

const (
	maxBodyBytes   = 1 << 20  // 1 MB
	maxUploadBytes = 10 << 20 // 10 MB
)

// Server is an HTTP API server over the realm-sync services.
type Server struct {
	svc    *app.Services
	authn  *auth.TokenAuthenticator
	logger *slog.Logger
}

// Auth configures bearer-token authentication.
type Auth struct {
	Tokens map[string]string // token -> user id
	Admins []string          // user ids allowed on operator routes
}

// NewServer creates a new Server.
func NewServer(svc *app.Services, authCfg Auth, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		svc:    svc,
		authn:  auth.NewTokenAuthenticator(authCfg.Tokens, authCfg.Admins),
		logger: logger,
	}
}

// handlerFunc is a handler that receives the authenticated caller.
type handlerFunc func(w http.ResponseWriter, r *http.Request, caller auth.Caller)

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check and metrics: no auth required.
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /debug/vars", expvar.Handler())

	mux.HandleFunc("POST /v1/projects", s.auth(s.handleCreateProject))
	mux.HandleFunc("GET /v1/projects", s.auth(s.handleListProjects))
	mux.HandleFunc("GET /v1/projects/{id}", s.auth(s.handleGetProject))
	mux.HandleFunc("PATCH /v1/projects/{id}", s.auth(s.handleUpdateProject))
	mux.HandleFunc("DELETE /v1/projects/{id}", s.auth(s.handleDeleteProject))
	mux.HandleFunc("GET /v1/projects/{id}/stats", s.auth(s.handleProjectStats))
	mux.HandleFunc("POST /v1/projects/{id}/reconcile", s.auth(s.handleReconcile))

	mux.HandleFunc("POST /v1/projects/{id}/documents", s.auth(s.handleCreateDocument))
	mux.HandleFunc("POST /v1/projects/{id}/documents/upload", s.auth(s.handleUploadDocument))
	mux.HandleFunc("GET /v1/projects/{id}/documents", s.auth(s.handleListDocuments))
	mux.HandleFunc("GET /v1/documents/{id}", s.auth(s.handleGetDocument))
	mux.HandleFunc("DELETE /v1/documents/{id}", s.auth(s.handleDeleteDocument))
	mux.HandleFunc("PUT /v1/documents/{id}/status", s.auth(s.handleDocumentStatus))
	mux.HandleFunc("POST /v1/documents/{id}/process", s.auth(s.handleProcessDocument))

	mux.HandleFunc("GET /v1/projects/{id}/entities", s.auth(s.handleListEntities))
	mux.HandleFunc("POST /v1/projects/{id}/entities", s.auth(s.handleCreateEntity))
	mux.HandleFunc("GET /v1/projects/{id}/entities/similar", s.auth(s.handleSimilarEntities))
	mux.HandleFunc("GET /v1/entities/{id}", s.auth(s.handleGetEntity))
	mux.HandleFunc("PATCH /v1/entities/{id}", s.auth(s.handleUpdateEntity))
	mux.HandleFunc("DELETE /v1/entities/{id}", s.auth(s.handleRemoveEntity))
	mux.HandleFunc("POST /v1/entities/{id}/confirm", s.auth(s.handleConfirmEntity))
	mux.HandleFunc("POST /v1/entities/{id}/reject", s.auth(s.handleRejectEntity))
	mux.HandleFunc("POST /v1/entities/{id}/merge", s.auth(s.handleMergeEntity))

	mux.HandleFunc("GET /v1/projects/{id}/facts", s.auth(s.handleListFacts))
	mux.HandleFunc("POST /v1/projects/{id}/facts", s.auth(s.handleCreateFact))
	mux.HandleFunc("GET /v1/facts/{id}", s.auth(s.handleGetFact))
	mux.HandleFunc("DELETE /v1/facts/{id}", s.auth(s.handleRemoveFact))
	mux.HandleFunc("POST /v1/facts/{id}/confirm", s.auth(s.handleConfirmFact))
	mux.HandleFunc("POST /v1/facts/{id}/reject", s.auth(s.handleRejectFact))

	mux.HandleFunc("DELETE /v1/cache", s.auth(s.handleInvalidateCache))

	return mux
}

// --- middleware ---

// auth resolves the bearer token to a caller. Unknown tokens yield an anonymous
// caller, which every service rejects as unauthenticated.
func (s *Server) auth(next handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		next(w, r, s.authn.Authenticate(r))
	}
}

// --- handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleInvalidateCache drops cached extraction responses. The cache is shared by
// every project, so only admins may call it.
func (s *Server) handleInvalidateCache(w http.ResponseWriter, r *http.Request, caller auth.Caller) {
	if err := auth.RequireAdmin(caller); err != nil {
		s.fail(w, err)
		return
	}
	q := r.URL.Query()
	n, err := s.svc.Cache.Invalidate(r.Context(), q.Get("prompt_version"), q.Get("input_hash"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

// --- helpers ---

// decode reads a JSON body of at most maxBodyBytes into v. It writes the error
// response itself and reports whether decoding succeeded.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		s.fail(w, apperr.Validation("invalid request body"))
		return false
	}
	return true
}

// queryBool parses a boolean query parameter, defaulting to false.
func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

// writeJSON encodes v as JSON and writes it to w with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(v); encErr != nil {
		s.logger.Error("failed to encode response", "error", encErr)
	}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string      `json:"error"`
	Code  apperr.Code `json:"code"`
	Extra any         `json:"report,omitempty"`
}

// fail writes err as a JSON error response. Internal errors are logged and never
// shown to the client.
func (s *Server) fail(w http.ResponseWriter, err error) {
	s.failWith(w, err, nil)
}

func (s *Server) failWith(w http.ResponseWriter, err error, extra any) {
	code := apperr.CodeOf(err)
	if code == apperr.CodeInternal {
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, apperr.HTTPStatus(code), errorBody{Error: apperr.PublicMessage(err), Code: code, Extra: extra})
}

// Shutdown gracefully shuts down an http.Server with the given timeout.
// This is a convenience helper used by the serve command.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
