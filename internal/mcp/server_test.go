package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/memory-api/internal/apperr"
	"github.com/recallhq/memory-api/internal/memory"
	"github.com/recallhq/memory-api/internal/models"
)

type fakeService struct {
	stored    []string
	deleted   []uuid.UUID
	searchRes []memory.SearchResult
	listRes   []models.Memory
	listLimit int
	err       error
}

func (f *fakeService) Store(_ context.Context, _ uuid.UUID, content string, _ map[string]interface{}) (*models.Memory, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.stored = append(f.stored, content)
	return &models.Memory{ID: uuid.New(), Content: content}, nil
}

func (f *fakeService) Search(_ context.Context, _ uuid.UUID, _ string, _ int) ([]memory.SearchResult, error) {
	return f.searchRes, f.err
}

func (f *fakeService) List(_ context.Context, _ uuid.UUID, limit int) ([]models.Memory, error) {
	f.listLimit = limit
	return f.listRes, f.err
}

func (f *fakeService) Delete(_ context.Context, _ uuid.UUID, memoryID uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, memoryID)
	return nil
}

type fakeAuth struct {
	key *models.APIKey
	err error
}

func (f *fakeAuth) Authenticate(_ context.Context, raw string) (*models.APIKey, error) {
	if f.err != nil {
		return nil, f.err
	}
	if raw == "" {
		return nil, apperr.New(apperr.Unauthorized, "API key is required")
	}
	return f.key, nil
}

type fakeResolver struct {
	key string
	err error
}

func (f *fakeResolver) Key(context.Context) (string, error) { return f.key, f.err }

type recordedCall struct {
	endpoint string
	status   int
}

type fakeRecorder struct{ calls []recordedCall }

func (f *fakeRecorder) Record(_ uuid.UUID, endpoint, _ string, statusCode int) {
	f.calls = append(f.calls, recordedCall{endpoint: endpoint, status: statusCode})
}

func testKey(scopes ...string) *models.APIKey {
	if len(scopes) == 0 {
		scopes = []string{models.ScopeRead, models.ScopeWrite}
	}
	return &models.APIKey{ID: uuid.New(), Key: "sk_mem_test", IsActive: true, Scopes: scopes}
}

func call(t *testing.T, s *Server, body string) Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp-server", strings.NewReader(body))
	req.Header.Set("X-API-Key", "sk_mem_test")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2.0", resp.JSONRPC)
	return resp
}

func TestInitialize(t *testing.T) {
	s := NewServer(&fakeService{}, &fakeAuth{}, &fakeResolver{}, &fakeRecorder{})

	resp := call(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)

	require.Nil(t, resp.Error)
	res := resp.Result.(map[string]any)
	assert.Equal(t, ProtocolVersion, res["protocolVersion"])
	info := res["serverInfo"].(map[string]any)
	assert.Equal(t, serverName, info["name"])
	assert.Equal(t, "1", string(resp.ID))
}

func TestToolsListIsPublic(t *testing.T) {
	// No key and a failing resolver: listing tools must still work.
	s := NewServer(&fakeService{}, &fakeAuth{}, &fakeResolver{err: apperr.New(apperr.Unauthorized, "no key")}, &fakeRecorder{})

	req := httptest.NewRequest(http.MethodPost, "/mcp-server",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.Error)

	tools := resp.Result.(map[string]any)["tools"].([]any)
	require.Len(t, tools, 4)
	names := make([]string, 0, len(tools))
	for _, tl := range tools {
		names = append(names, tl.(map[string]any)["name"].(string))
	}
	assert.ElementsMatch(t,
		[]string{"store_memory", "search_memory", "list_memories", "delete_memory"}, names)
}

func TestParseError(t *testing.T) {
	s := NewServer(&fakeService{}, &fakeAuth{}, &fakeResolver{}, &fakeRecorder{})

	resp := call(t, s, `{not json`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, apperr.RPCCodeParse, resp.Error.Code)
	assert.Equal(t, "null", string(resp.ID))
}

func TestMethodNotFound(t *testing.T) {
	s := NewServer(&fakeService{}, &fakeAuth{}, &fakeResolver{}, &fakeRecorder{})

	resp := call(t, s, `{"jsonrpc":"2.0","id":7,"method":"prompts/list"}`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, apperr.RPCCodeMethodNotFound, resp.Error.Code)
}

func TestStoreMemoryTool(t *testing.T) {
	svc := &fakeService{}
	rec := &fakeRecorder{}
	s := NewServer(svc, &fakeAuth{key: testKey()}, &fakeResolver{}, rec)

	resp := call(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/call",
		"params":{"name":"store_memory","arguments":{"content":"remember this"}}}`)

	require.Nil(t, resp.Error)
	assert.Equal(t, []string{"remember this"}, svc.stored)

	content := resp.Result.(map[string]any)["content"].([]any)
	text := content[0].(map[string]any)["text"].(string)
	assert.Contains(t, text, "Memory stored successfully")

	require.Len(t, rec.calls, 1)
	assert.Equal(t, "/mcp-server", rec.calls[0].endpoint)
	assert.Equal(t, http.StatusOK, rec.calls[0].status)
}

func TestSearchMemoryFormatting(t *testing.T) {
	svc := &fakeService{searchRes: []memory.SearchResult{
		{Memory: models.Memory{Content: "go uses goroutines"}, Similarity: 0.93},
	}}
	s := NewServer(svc, &fakeAuth{key: testKey()}, &fakeResolver{}, &fakeRecorder{})

	resp := call(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/call",
		"params":{"name":"search_memory","arguments":{"query":"concurrency"}}}`)

	require.Nil(t, resp.Error)
	content := resp.Result.(map[string]any)["content"].([]any)
	text := content[0].(map[string]any)["text"].(string)
	assert.Contains(t, text, "Found 1 relevant memories")
	assert.Contains(t, text, "93.0%")
	assert.Contains(t, text, "go uses goroutines")
}

func TestSearchMemoryEmpty(t *testing.T) {
	s := NewServer(&fakeService{}, &fakeAuth{key: testKey()}, &fakeResolver{}, &fakeRecorder{})

	resp := call(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/call",
		"params":{"name":"search_memory","arguments":{"query":"anything"}}}`)

	require.Nil(t, resp.Error)
	content := resp.Result.(map[string]any)["content"].([]any)
	text := content[0].(map[string]any)["text"].(string)
	assert.Equal(t, "No relevant memories found.", text)
}

func TestDeleteMemoryRequiresWriteScope(t *testing.T) {
	svc := &fakeService{}
	rec := &fakeRecorder{}
	s := NewServer(svc, &fakeAuth{key: testKey(models.ScopeRead)}, &fakeResolver{}, rec)

	id := uuid.New()
	resp := call(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/call",
		"params":{"name":"delete_memory","arguments":{"memory_id":"`+id.String()+`"}}}`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, apperr.RPCCodeDomain, resp.Error.Code)
	assert.Empty(t, svc.deleted)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, http.StatusForbidden, rec.calls[0].status)
}

func TestDeleteMemoryTool(t *testing.T) {
	svc := &fakeService{}
	s := NewServer(svc, &fakeAuth{key: testKey()}, &fakeResolver{}, &fakeRecorder{})

	id := uuid.New()
	resp := call(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/call",
		"params":{"name":"delete_memory","arguments":{"memory_id":"`+id.String()+`"}}}`)

	require.Nil(t, resp.Error)
	assert.Equal(t, []uuid.UUID{id}, svc.deleted)
}

func TestDeleteMemoryRejectsBadUUID(t *testing.T) {
	s := NewServer(&fakeService{}, &fakeAuth{key: testKey()}, &fakeResolver{}, &fakeRecorder{})

	resp := call(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/call",
		"params":{"name":"delete_memory","arguments":{"memory_id":"not-a-uuid"}}}`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, apperr.RPCCodeDomain, resp.Error.Code)
}

func TestUnknownTool(t *testing.T) {
	s := NewServer(&fakeService{}, &fakeAuth{key: testKey()}, &fakeResolver{}, &fakeRecorder{})

	resp := call(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/call",
		"params":{"name":"drop_tables","arguments":{}}}`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, apperr.RPCCodeMethodNotFound, resp.Error.Code)
}

func TestResolverSuppliesKeyWhenHeaderAbsent(t *testing.T) {
	svc := &fakeService{}
	auth := &fakeAuth{key: testKey()}
	s := NewServer(svc, auth, &fakeResolver{key: "sk_mem_demo"}, &fakeRecorder{})

	req := httptest.NewRequest(http.MethodPost, "/mcp-server",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/call",
			"params":{"name":"store_memory","arguments":{"content":"hi"}}}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.Error)
	assert.Equal(t, []string{"hi"}, svc.stored)
}

func TestMissingKeyWithoutDemoMode(t *testing.T) {
	s := NewServer(&fakeService{}, &fakeAuth{key: testKey()},
		&fakeResolver{err: apperr.New(apperr.Unauthorized, "API key required in X-API-Key header")},
		&fakeRecorder{})

	req := httptest.NewRequest(http.MethodPost, "/mcp-server",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/call",
			"params":{"name":"list_memories","arguments":{}}}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, apperr.RPCCodeDomain, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "API key required")
}

func TestQueryParamKeyAccepted(t *testing.T) {
	svc := &fakeService{}
	s := NewServer(svc, &fakeAuth{key: testKey()}, &fakeResolver{}, &fakeRecorder{})

	req := httptest.NewRequest(http.MethodPost, "/mcp-server?api_key=sk_mem_test",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/call",
			"params":{"name":"store_memory","arguments":{"content":"via query"}}}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.Error)
	assert.Equal(t, []string{"via query"}, svc.stored)
}

func TestResourceRead(t *testing.T) {
	svc := &fakeService{listRes: []models.Memory{{ID: uuid.New(), Content: "alpha"}}}
	s := NewServer(svc, &fakeAuth{key: testKey()}, &fakeResolver{}, &fakeRecorder{})

	resp := call(t, s, `{"jsonrpc":"2.0","id":1,"method":"resources/read",
		"params":{"uri":"memory://recent"}}`)

	require.Nil(t, resp.Error)
	assert.Equal(t, recentResourceLimit, svc.listLimit)

	contents := resp.Result.(map[string]any)["contents"].([]any)
	entry := contents[0].(map[string]any)
	assert.Equal(t, resourceRecentURI, entry["uri"])
	assert.Equal(t, "application/json", entry["mimeType"])
	assert.Contains(t, entry["text"].(string), "alpha")
}

func TestResourceReadAllUsesLargerLimit(t *testing.T) {
	svc := &fakeService{}
	s := NewServer(svc, &fakeAuth{key: testKey()}, &fakeResolver{}, &fakeRecorder{})

	resp := call(t, s, `{"jsonrpc":"2.0","id":1,"method":"resources/read",
		"params":{"uri":"memory://all"}}`)

	require.Nil(t, resp.Error)
	assert.Equal(t, allResourceLimit, svc.listLimit)
}

func TestUnknownResource(t *testing.T) {
	s := NewServer(&fakeService{}, &fakeAuth{key: testKey()}, &fakeResolver{}, &fakeRecorder{})

	resp := call(t, s, `{"jsonrpc":"2.0","id":1,"method":"resources/read",
		"params":{"uri":"memory://secret"}}`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, apperr.RPCCodeDomain, resp.Error.Code)
}

func TestServiceErrorMapping(t *testing.T) {
	svc := &fakeService{err: apperr.New(apperr.EmbeddingFailed, "failed to generate embedding")}
	rec := &fakeRecorder{}
	s := NewServer(svc, &fakeAuth{key: testKey()}, &fakeResolver{}, rec)

	resp := call(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/call",
		"params":{"name":"store_memory","arguments":{"content":"x"}}}`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, apperr.RPCCodeDomain, resp.Error.Code)
	assert.Equal(t, "failed to generate embedding", resp.Error.Message)

	// Usage stats must see the failure as a server error, not a generic 400.
	require.Len(t, rec.calls, 1)
	assert.Equal(t, http.StatusInternalServerError, rec.calls[0].status)
}

func TestValidationErrorRecordedAsClientError(t *testing.T) {
	svc := &fakeService{err: apperr.New(apperr.InvalidArgument, "query is required and must be a non-empty string")}
	rec := &fakeRecorder{}
	s := NewServer(svc, &fakeAuth{key: testKey()}, &fakeResolver{}, rec)

	resp := call(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/call",
		"params":{"name":"search_memory","arguments":{"query":""}}}`)

	require.NotNil(t, resp.Error)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, http.StatusBadRequest, rec.calls[0].status)
}

func TestInternalErrorIsOpaque(t *testing.T) {
	svc := &fakeService{err: apperr.Wrap(apperr.Internal, "connection refused to 10.0.0.3", assert.AnError)}
	s := NewServer(svc, &fakeAuth{key: testKey()}, &fakeResolver{}, &fakeRecorder{})

	resp := call(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/call",
		"params":{"name":"store_memory","arguments":{"content":"x"}}}`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, apperr.RPCCodeInternal, resp.Error.Code)
	assert.Equal(t, "Internal error", resp.Error.Message)
}
