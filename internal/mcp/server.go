// Package mcp implements the Model Context Protocol server for realm-sync.
// It exposes the canon review workflow as tools so an assistant can triage
// extracted entities and facts on behalf of a single configured user.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/aileks/realm-sync/internal/app"
	"github.com/aileks/realm-sync/internal/apperr"
	"github.com/aileks/realm-sync/internal/auth"
	"github.com/aileks/realm-sync/internal/models"
	"github.com/aileks/realm-sync/internal/review"
)

// Server wraps an MCPServer with realm-sync dependencies.
type Server struct {
	mcp    *mcpserver.MCPServer
	svc    *app.Services
	caller auth.Caller
	logger *slog.Logger
}

// NewServer creates a new MCP server acting as userID. If svc is nil every
// tool call returns an error result instead of panicking.
func NewServer(svc *app.Services, userID string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:    svc,
		caller: auth.User(userID),
		logger: logger,
	}

	mcpSrv := mcpserver.NewMCPServer(
		"realm-sync",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
	)

	for _, t := range s.tools() {
		mcpSrv.AddTool(t.def, t.handler)
	}

	s.mcp = mcpSrv
	return s
}

// MCPServer returns the underlying mcp-go MCPServer for use with ServeStdio.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

// Handle dispatches a tool call by name without the mcp-go transport layer.
func (s *Server) Handle(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	for _, t := range s.tools() {
		if t.def.Name == req.Params.Name {
			return t.handler(ctx, req)
		}
	}
	return mcpgo.NewToolResultErrorf("unknown tool %q", req.Params.Name), nil
}

type tool struct {
	def     mcpgo.Tool
	handler mcpserver.ToolHandlerFunc
}

func (s *Server) tools() []tool {
	return []tool{
		{buildListEntitiesTool(), s.handleListEntities},
		{buildFindSimilarTool(), s.handleFindSimilar},
		{idTool("confirm_entity", "Confirm a pending entity as canon."), s.handleConfirmEntity},
		{idTool("reject_entity", "Reject an entity. Deletes it and every fact attached to it."), s.handleRejectEntity},
		{buildMergeTool(), s.handleMergeEntities},
		{idTool("remove_entity", "Delete an entity and every fact attached to it."), s.handleRemoveEntity},
		{buildListFactsTool(), s.handleListFacts},
		{idTool("confirm_fact", "Confirm a fact as canon."), s.handleConfirmFact},
		{idTool("reject_fact", "Mark a fact as rejected. The row is kept."), s.handleRejectFact},
		{idTool("remove_fact", "Delete a fact."), s.handleRemoveFact},
		{buildProcessDocumentTool(), s.handleProcessDocument},
		{idTool("project_stats", "Get a project's document, entity and fact counters."), s.handleProjectStats},
	}
}

// --- helpers ---

// toolResultJSON marshals v to JSON and returns it as a tool text result.
func toolResultJSON(v any) (*mcpgo.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshaling result: %w", err)
	}
	return mcpgo.NewToolResultText(string(b)), nil
}

// toolError turns a service error into a tool error result. Internal errors are
// logged and reported without detail.
func (s *Server) toolError(op string, err error) *mcpgo.CallToolResult {
	code := apperr.CodeOf(err)
	if code == apperr.CodeInternal {
		s.logger.Error("mcp: tool failed", "tool", op, "error", err)
	}
	return mcpgo.NewToolResultErrorf("%s: %s (%s)", op, apperr.PublicMessage(err), code)
}

// required reads a non-blank string argument.
func required(req mcpgo.CallToolRequest, key string) (string, *mcpgo.CallToolResult) {
	v := strings.TrimSpace(req.GetString(key, ""))
	if v == "" {
		return "", mcpgo.NewToolResultErrorf("%s is required and must not be empty", key)
	}
	return v, nil
}

func (s *Server) ready() *mcpgo.CallToolResult {
	if s.svc == nil {
		return mcpgo.NewToolResultError("services are unavailable")
	}
	return nil
}

// --- tool definitions ---

func idTool(name, desc string) mcpgo.Tool {
	return mcpgo.NewTool(name,
		mcpgo.WithDescription(desc),
		mcpgo.WithString("id",
			mcpgo.Required(),
			mcpgo.Description("The ID of the record"),
		),
	)
}

func buildProcessDocumentTool() mcpgo.Tool {
	return mcpgo.NewTool("process_document",
		mcpgo.WithDescription("Run extraction over a document and materialize the results as pending canon."),
		mcpgo.WithString("id",
			mcpgo.Required(),
			mcpgo.Description("The ID of the document"),
		),
		mcpgo.WithBoolean("retry",
			mcpgo.Description("Restart a document left in processing by a failed run"),
		),
	)
}

func buildListEntitiesTool() mcpgo.Tool {
	return mcpgo.NewTool("list_entities",
		mcpgo.WithDescription("List a project's entities, optionally filtered by review status."),
		mcpgo.WithString("project_id",
			mcpgo.Required(),
			mcpgo.Description("The project to list"),
		),
		mcpgo.WithString("status",
			mcpgo.Description("pending or confirmed (default: all)"),
		),
	)
}

func buildFindSimilarTool() mcpgo.Tool {
	return mcpgo.NewTool("find_similar",
		mcpgo.WithDescription("Find entities whose name or alias overlaps the given name. Use before merging duplicates."),
		mcpgo.WithString("project_id",
			mcpgo.Required(),
			mcpgo.Description("The project to search"),
		),
		mcpgo.WithString("name",
			mcpgo.Required(),
			mcpgo.Description("Name to compare against"),
		),
		mcpgo.WithString("exclude_id",
			mcpgo.Description("Entity to leave out of the results"),
		),
	)
}

func buildMergeTool() mcpgo.Tool {
	return mcpgo.NewTool("merge_entities",
		mcpgo.WithDescription("Merge the source entity into the target. The source name becomes an alias and its facts move to the target."),
		mcpgo.WithString("source_id",
			mcpgo.Required(),
			mcpgo.Description("Entity to merge away"),
		),
		mcpgo.WithString("target_id",
			mcpgo.Required(),
			mcpgo.Description("Entity that survives"),
		),
	)
}

func buildListFactsTool() mcpgo.Tool {
	return mcpgo.NewTool("list_facts",
		mcpgo.WithDescription("List a project's facts, optionally filtered by entity, document or status."),
		mcpgo.WithString("project_id",
			mcpgo.Required(),
			mcpgo.Description("The project to list"),
		),
		mcpgo.WithString("entity_id", mcpgo.Description("Only facts about this entity")),
		mcpgo.WithString("document_id", mcpgo.Description("Only facts from this document")),
		mcpgo.WithString("status", mcpgo.Description("pending, confirmed or rejected (default: all)")),
	)
}

// --- tool handlers ---

func (s *Server) handleListEntities(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if r := s.ready(); r != nil {
		return r, nil
	}
	projectID, bad := required(req, "project_id")
	if bad != nil {
		return bad, nil
	}
	list, err := s.svc.Entities.List(ctx, s.caller, projectID, models.EntityStatus(req.GetString("status", "")))
	if err != nil {
		return s.toolError("list_entities", err), nil
	}
	return toolResultJSON(map[string]any{"entities": list, "count": len(list)})
}

func (s *Server) handleFindSimilar(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if r := s.ready(); r != nil {
		return r, nil
	}
	projectID, bad := required(req, "project_id")
	if bad != nil {
		return bad, nil
	}
	name, bad := required(req, "name")
	if bad != nil {
		return bad, nil
	}
	list, err := s.svc.Resolver.FindSimilar(ctx, s.caller, projectID, name, req.GetString("exclude_id", ""))
	if err != nil {
		return s.toolError("find_similar", err), nil
	}
	return toolResultJSON(map[string]any{"entities": list, "count": len(list)})
}

func (s *Server) handleConfirmEntity(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if r := s.ready(); r != nil {
		return r, nil
	}
	id, bad := required(req, "id")
	if bad != nil {
		return bad, nil
	}
	e, err := s.svc.Entities.Confirm(ctx, s.caller, id)
	if err != nil {
		return s.toolError("confirm_entity", err), nil
	}
	return toolResultJSON(e)
}

func (s *Server) handleRejectEntity(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if r := s.ready(); r != nil {
		return r, nil
	}
	return s.removeEntity(ctx, req, "reject_entity", s.svc.Entities.Reject)
}

func (s *Server) handleRemoveEntity(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if r := s.ready(); r != nil {
		return r, nil
	}
	return s.removeEntity(ctx, req, "remove_entity", s.svc.Entities.Remove)
}

func (s *Server) removeEntity(ctx context.Context, req mcpgo.CallToolRequest, op string,
	fn func(context.Context, auth.Caller, string) (*review.Removal, error)) (*mcpgo.CallToolResult, error) {
	id, bad := required(req, "id")
	if bad != nil {
		return bad, nil
	}
	rm, err := fn(ctx, s.caller, id)
	if err != nil {
		return s.toolError(op, err), nil
	}
	s.logger.Info("mcp: entity removed", "tool", op, "entity_id", id, "facts_deleted", rm.FactsDeleted)
	return toolResultJSON(rm)
}

func (s *Server) handleMergeEntities(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if r := s.ready(); r != nil {
		return r, nil
	}
	src, bad := required(req, "source_id")
	if bad != nil {
		return bad, nil
	}
	dst, bad := required(req, "target_id")
	if bad != nil {
		return bad, nil
	}
	e, err := s.svc.Entities.Merge(ctx, s.caller, src, dst)
	if err != nil {
		return s.toolError("merge_entities", err), nil
	}
	return toolResultJSON(e)
}

func (s *Server) handleListFacts(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if r := s.ready(); r != nil {
		return r, nil
	}
	projectID, bad := required(req, "project_id")
	if bad != nil {
		return bad, nil
	}
	filter := review.FactFilter{
		EntityID:   req.GetString("entity_id", ""),
		DocumentID: req.GetString("document_id", ""),
		Status:     models.FactStatus(req.GetString("status", "")),
	}
	list, err := s.svc.Facts.List(ctx, s.caller, projectID, filter)
	if err != nil {
		return s.toolError("list_facts", err), nil
	}
	return toolResultJSON(map[string]any{"facts": list, "count": len(list)})
}

func (s *Server) handleConfirmFact(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if r := s.ready(); r != nil {
		return r, nil
	}
	return s.transitionFact(ctx, req, "confirm_fact", s.svc.Facts.Confirm)
}

func (s *Server) handleRejectFact(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if r := s.ready(); r != nil {
		return r, nil
	}
	return s.transitionFact(ctx, req, "reject_fact", s.svc.Facts.Reject)
}

func (s *Server) transitionFact(ctx context.Context, req mcpgo.CallToolRequest, op string,
	fn func(context.Context, auth.Caller, string) (*models.Fact, error)) (*mcpgo.CallToolResult, error) {
	id, bad := required(req, "id")
	if bad != nil {
		return bad, nil
	}
	f, err := fn(ctx, s.caller, id)
	if err != nil {
		return s.toolError(op, err), nil
	}
	return toolResultJSON(f)
}

func (s *Server) handleRemoveFact(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if r := s.ready(); r != nil {
		return r, nil
	}
	id, bad := required(req, "id")
	if bad != nil {
		return bad, nil
	}
	if err := s.svc.Facts.Remove(ctx, s.caller, id); err != nil {
		return s.toolError("remove_fact", err), nil
	}
	return toolResultJSON(map[string]any{"deleted": true})
}

// handleProcessDocument runs the extraction pipeline. A partial failure still
// returns the report so the caller can see which chunks to retry.
func (s *Server) handleProcessDocument(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if r := s.ready(); r != nil {
		return r, nil
	}
	id, bad := required(req, "id")
	if bad != nil {
		return bad, nil
	}
	process := s.svc.Processor.ProcessDocument
	if req.GetBool("retry", false) {
		process = s.svc.Processor.Retry
	}
	rep, err := process(ctx, s.caller, id)
	if err != nil {
		res := s.toolError("process_document", err)
		if rep != nil {
			if b, mErr := json.Marshal(rep); mErr == nil {
				res.Content = append(res.Content, mcpgo.NewTextContent(string(b)))
			}
		}
		return res, nil
	}
	return toolResultJSON(rep)
}

func (s *Server) handleProjectStats(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if r := s.ready(); r != nil {
		return r, nil
	}
	id, bad := required(req, "id")
	if bad != nil {
		return bad, nil
	}
	st, err := s.svc.Projects.Stats(ctx, s.caller, id)
	if err != nil {
		return s.toolError("project_stats", err), nil
	}
	return toolResultJSON(st)
}
