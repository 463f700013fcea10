package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/recallhq/memory-api/internal/apperr"
	"github.com/recallhq/memory-api/internal/auth"
	"github.com/recallhq/memory-api/internal/memory"
	"github.com/recallhq/memory-api/internal/models"
)

const (
	resourceRecentURI = "memory://recent"
	resourceAllURI    = "memory://all"

	recentResourceLimit = 50
	allResourceLimit    = 1000
)

// Authenticator validates a raw API key and enforces its rate limit.
type Authenticator interface {
	Authenticate(ctx context.Context, rawKey string) (*models.APIKey, error)
}

// Server dispatches MCP JSON-RPC calls onto the memory service. initialize
// and the tools/resources listings are public; everything that touches data
// authenticates first.
type Server struct {
	memories memory.Service
	auth     Authenticator
	resolver KeyResolver
	recorder auth.UsageRecorder
}

func NewServer(memories memory.Service, authn Authenticator, resolver KeyResolver, recorder auth.UsageRecorder) *Server {
	return &Server{memories: memories, auth: authn, resolver: resolver, recorder: recorder}
}

// ServeHTTP handles POST /mcp-server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, errorResponse(nil, apperr.RPCCodeParse, "Parse error"))
		return
	}

	resp := s.dispatch(r, &req)
	writeResponse(w, resp)
}

func (s *Server) dispatch(r *http.Request, req *Request) Response {
	ctx := r.Context()

	switch req.Method {
	case "initialize":
		return result(req.ID, map[string]any{
			"protocolVersion": ProtocolVersion,
			"capabilities": map[string]any{
				"tools":     map[string]any{},
				"resources": map[string]any{},
			},
			"serverInfo": map[string]any{
				"name":    serverName,
				"version": serverVersion,
			},
		})

	case "tools/list":
		return result(req.ID, map[string]any{"tools": toolDefinitions()})

	case "resources/list":
		return result(req.ID, map[string]any{"resources": resourceDefinitions()})

	case "tools/call":
		key, errResp := s.authenticate(r, req.ID)
		if errResp != nil {
			return *errResp
		}
		resp, status := s.callTool(ctx, req, key)
		s.recorder.Record(key.ID, "/mcp-server", http.MethodPost, status)
		return resp

	case "resources/read":
		key, errResp := s.authenticate(r, req.ID)
		if errResp != nil {
			return *errResp
		}
		resp, status := s.readResource(ctx, req, key)
		s.recorder.Record(key.ID, "/mcp-server", http.MethodPost, status)
		return resp

	default:
		return errorResponse(req.ID, apperr.RPCCodeMethodNotFound,
			fmt.Sprintf("Method not found: %s", req.Method))
	}
}

// authenticate resolves the API key for this request. An explicit key in the
// header or query string always wins; otherwise the resolver may provision a
// demo service key.
func (s *Server) authenticate(r *http.Request, id json.RawMessage) (*models.APIKey, *Response) {
	ctx := r.Context()

	raw := keyFromRequest(r)
	if raw == "" {
		resolved, err := s.resolver.Key(ctx)
		if err != nil {
			resp := errorFromErr(id, err)
			return nil, &resp
		}
		raw = resolved
	}

	key, err := s.auth.Authenticate(ctx, raw)
	if err != nil {
		if key != nil {
			s.recorder.Record(key.ID, "/mcp-server", http.MethodPost, apperr.HTTPStatus(err))
		}
		resp := errorFromErr(id, err)
		return nil, &resp
	}
	return key, nil
}

func keyFromRequest(r *http.Request) string {
	if v := r.Header.Get("X-API-Key"); v != "" {
		return v
	}
	q := r.URL.Query()
	if v := q.Get("api_key"); v != "" {
		return v
	}
	return q.Get("apikey")
}

// callTool returns the JSON-RPC response plus the HTTP-equivalent status the
// call is recorded under, so usage stats distinguish 4xx from 5xx failures.
func (s *Server) callTool(ctx context.Context, req *Request, key *models.APIKey) (Response, int) {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, apperr.RPCCodeDomain, "Invalid tool call parameters"),
			http.StatusBadRequest
	}

	switch params.Name {
	case "store_memory":
		var args struct {
			Content  string                 `json:"content"`
			Metadata map[string]interface{} `json:"metadata"`
		}
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			return errorResponse(req.ID, apperr.RPCCodeDomain, "Invalid arguments for store_memory"),
				http.StatusBadRequest
		}
		m, err := s.memories.Store(ctx, key.ID, args.Content, args.Metadata)
		if err != nil {
			return errorFromErr(req.ID, err), apperr.HTTPStatus(err)
		}
		return result(req.ID, toolResult(fmt.Sprintf(
			"✓ Memory stored successfully\nID: %s\nContent: %s", m.ID, m.Content))), http.StatusOK

	case "search_memory":
		var args struct {
			Query string `json:"query"`
			Limit int    `json:"limit"`
		}
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			return errorResponse(req.ID, apperr.RPCCodeDomain, "Invalid arguments for search_memory"),
				http.StatusBadRequest
		}
		results, err := s.memories.Search(ctx, key.ID, args.Query, args.Limit)
		if err != nil {
			return errorFromErr(req.ID, err), apperr.HTTPStatus(err)
		}
		return result(req.ID, toolResult(formatSearchResults(results))), http.StatusOK

	case "list_memories":
		var args struct {
			Limit int `json:"limit"`
		}
		if len(params.Arguments) > 0 {
			if err := json.Unmarshal(params.Arguments, &args); err != nil {
				return errorResponse(req.ID, apperr.RPCCodeDomain, "Invalid arguments for list_memories"),
					http.StatusBadRequest
			}
		}
		memories, err := s.memories.List(ctx, key.ID, args.Limit)
		if err != nil {
			return errorFromErr(req.ID, err), apperr.HTTPStatus(err)
		}
		return result(req.ID, toolResult(formatMemoryList(memories))), http.StatusOK

	case "delete_memory":
		var args struct {
			MemoryID string `json:"memory_id"`
		}
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			return errorResponse(req.ID, apperr.RPCCodeDomain, "Invalid arguments for delete_memory"),
				http.StatusBadRequest
		}
		memoryID, err := uuid.Parse(args.MemoryID)
		if err != nil {
			return errorResponse(req.ID, apperr.RPCCodeDomain, "memory_id must be a valid UUID"),
				http.StatusBadRequest
		}
		if !key.HasScope(models.ScopeWrite) {
			return errorResponse(req.ID, apperr.RPCCodeDomain, "Insufficient permissions. Write scope required."),
				http.StatusForbidden
		}
		if err := s.memories.Delete(ctx, key.ID, memoryID); err != nil {
			return errorFromErr(req.ID, err), apperr.HTTPStatus(err)
		}
		return result(req.ID, toolResult(fmt.Sprintf("✓ Memory %s deleted successfully", memoryID))),
			http.StatusOK

	default:
		return errorResponse(req.ID, apperr.RPCCodeMethodNotFound,
			fmt.Sprintf("Unknown tool: %s", params.Name)), http.StatusBadRequest
	}
}

func (s *Server) readResource(ctx context.Context, req *Request, key *models.APIKey) (Response, int) {
	var params resourceReadParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, apperr.RPCCodeDomain, "Invalid resource read parameters"),
			http.StatusBadRequest
	}

	var limit int
	switch params.URI {
	case resourceRecentURI:
		limit = recentResourceLimit
	case resourceAllURI:
		limit = allResourceLimit
	default:
		return errorResponse(req.ID, apperr.RPCCodeDomain,
			fmt.Sprintf("Unknown resource: %s", params.URI)), http.StatusBadRequest
	}

	memories, err := s.memories.List(ctx, key.ID, limit)
	if err != nil {
		return errorFromErr(req.ID, err), apperr.HTTPStatus(err)
	}
	text, err := json.MarshalIndent(memories, "", "  ")
	if err != nil {
		return errorResponse(req.ID, apperr.RPCCodeInternal, "Internal error"),
			http.StatusInternalServerError
	}
	return result(req.ID, map[string]any{
		"contents": []map[string]any{{
			"uri":      params.URI,
			"mimeType": "application/json",
			"text":     string(text),
		}},
	}), http.StatusOK
}

func formatSearchResults(results []memory.SearchResult) string {
	if len(results) == 0 {
		return "No relevant memories found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d relevant memories:\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. [Similarity: %.1f%%]\n%s\n", i+1, r.Similarity*100, r.Content)
	}
	return b.String()
}

func formatMemoryList(memories []models.Memory) string {
	if len(memories) == 0 {
		return "No memories stored yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Recent memories (%d):\n", len(memories))
	for i, m := range memories {
		content := m.Content
		if len(content) > 100 {
			content = content[:100] + "..."
		}
		fmt.Fprintf(&b, "\n%d. [%s] %s\n", i+1, m.CreatedAt.Format("2006-01-02"), content)
	}
	return b.String()
}

func toolDefinitions() []map[string]any {
	return []map[string]any{
		{
			"name":        "store_memory",
			"description": "Store a new memory with semantic embedding for later retrieval",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"content": map[string]any{
						"type":        "string",
						"description": "The content of the memory to store",
					},
					"metadata": map[string]any{
						"type":        "object",
						"description": "Optional metadata to attach to the memory",
					},
				},
				"required": []string{"content"},
			},
		},
		{
			"name":        "search_memory",
			"description": "Search stored memories by semantic similarity to a query",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The search query",
					},
					"limit": map[string]any{
						"type":        "number",
						"description": "Maximum number of results to return (default 5)",
					},
				},
				"required": []string{"query"},
			},
		},
		{
			"name":        "list_memories",
			"description": "List the most recently stored memories",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"limit": map[string]any{
						"type":        "number",
						"description": "Maximum number of memories to return (default 50)",
					},
				},
			},
		},
		{
			"name":        "delete_memory",
			"description": "Delete a stored memory by its id",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"memory_id": map[string]any{
						"type":        "string",
						"description": "The id of the memory to delete",
					},
				},
				"required": []string{"memory_id"},
			},
		},
	}
}

func resourceDefinitions() []map[string]any {
	return []map[string]any{
		{
			"uri":         resourceRecentURI,
			"name":        "Recent Memories",
			"description": "The 50 most recently stored memories",
			"mimeType":    "application/json",
		},
		{
			"uri":         resourceAllURI,
			"name":        "All Memories",
			"description": "All stored memories, newest first",
			"mimeType":    "application/json",
		},
	}
}

func result(id json.RawMessage, payload any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: payload}
}

func errorResponse(id json.RawMessage, code int, message string) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
}

// errorFromErr maps a service error to its JSON-RPC representation. Internal
// detail stays in the logs.
func errorFromErr(id json.RawMessage, err error) Response {
	code := apperr.RPCCode(err)
	if code == apperr.RPCCodeInternal {
		slog.Error("mcp request failed", "error", err)
		return errorResponse(id, code, "Internal error")
	}
	return errorResponse(id, code, apperr.Message(err))
}

func writeResponse(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode MCP response", "error", err)
	}
}
