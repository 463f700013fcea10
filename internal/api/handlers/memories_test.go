package handlers

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
	"github.com/recallhq/memory-api/internal/auth"
	"github.com/recallhq/memory-api/internal/memory"
	"github.com/recallhq/memory-api/internal/models"
)

type stubService struct {
	stored  []string
	deleted []uuid.UUID
	results []memory.SearchResult
	listed  []models.Memory
	err     error
}

func (s *stubService) Store(_ context.Context, _ uuid.UUID, content string, _ map[string]interface{}) (*models.Memory, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.stored = append(s.stored, content)
	return &models.Memory{ID: uuid.New(), Content: content}, nil
}

func (s *stubService) Search(_ context.Context, _ uuid.UUID, _ string, _ int) ([]memory.SearchResult, error) {
	return s.results, s.err
}

func (s *stubService) List(_ context.Context, _ uuid.UUID, _ int) ([]models.Memory, error) {
	return s.listed, s.err
}

func (s *stubService) Delete(_ context.Context, _ uuid.UUID, id uuid.UUID) error {
	if s.err != nil {
		return s.err
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func keyedRequest(method, path, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	key := &models.APIKey{ID: uuid.New(), IsActive: true, Scopes: []string{models.ScopeRead, models.ScopeWrite}}
	return req.WithContext(auth.WithAPIKey(req.Context(), key))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestStoreMemory(t *testing.T) {
	svc := &stubService{}
	h := NewMemoryHandler(svc)

	rec := httptest.NewRecorder()
	h.Store(rec, keyedRequest(http.MethodPost, "/store-memory", `{"content":"User prefers Rust"}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	mem := body["memory"].(map[string]interface{})
	assert.Equal(t, "User prefers Rust", mem["content"])
	assert.Equal(t, []string{"User prefers Rust"}, svc.stored)
}

func TestStoreMemoryValidationError(t *testing.T) {
	svc := &stubService{err: apperr.New(apperr.InvalidArgument, "content is required and must be a non-empty string")}
	h := NewMemoryHandler(svc)

	rec := httptest.NewRecorder()
	h.Store(rec, keyedRequest(http.MethodPost, "/store-memory", `{"content":""}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Contains(t, body["error"], "content is required")
}

func TestStoreMemoryEmbeddingFailure(t *testing.T) {
	svc := &stubService{err: apperr.New(apperr.EmbeddingFailed, "failed to generate embedding")}
	h := NewMemoryHandler(svc)

	rec := httptest.NewRecorder()
	h.Store(rec, keyedRequest(http.MethodPost, "/store-memory", `{"content":"x"}`))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "failed to generate embedding", body["error"])
}

func TestRetrieveMemories(t *testing.T) {
	svc := &stubService{results: []memory.SearchResult{
		{Memory: models.Memory{ID: uuid.New(), Content: "go has goroutines"}, Similarity: 0.91},
	}}
	h := NewMemoryHandler(svc)

	rec := httptest.NewRecorder()
	h.Retrieve(rec, keyedRequest(http.MethodPost, "/retrieve-memories", `{"query":"concurrency"}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "concurrency", body["query"])
	assert.Equal(t, float64(1), body["count"])
	memories := body["memories"].([]interface{})
	first := memories[0].(map[string]interface{})
	assert.Equal(t, "go has goroutines", first["content"])
	assert.InDelta(t, 0.91, first["similarity"], 1e-9)
}

func TestListMemories(t *testing.T) {
	svc := &stubService{listed: []models.Memory{
		{ID: uuid.New(), Content: "newest"},
		{ID: uuid.New(), Content: "older"},
	}}
	h := NewMemoryHandler(svc)

	rec := httptest.NewRecorder()
	h.List(rec, keyedRequest(http.MethodGet, "/list-memories?limit=10", ""))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["count"])
}

func TestDeleteMemory(t *testing.T) {
	svc := &stubService{}
	h := NewMemoryHandler(svc)

	id := uuid.New()
	rec := httptest.NewRecorder()
	h.Delete(rec, keyedRequest(http.MethodPost, "/delete-memory", `{"memoryId":"`+id.String()+`"}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Memory deleted successfully", body["message"])
	assert.Equal(t, []uuid.UUID{id}, svc.deleted)
}

func TestDeleteMemoryMissingID(t *testing.T) {
	h := NewMemoryHandler(&stubService{})

	rec := httptest.NewRecorder()
	h.Delete(rec, keyedRequest(http.MethodPost, "/delete-memory", `{}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "memoryId is required", body["error"])
}

func TestDeleteMemoryBadID(t *testing.T) {
	h := NewMemoryHandler(&stubService{})

	rec := httptest.NewRecorder()
	h.Delete(rec, keyedRequest(http.MethodPost, "/delete-memory", `{"memoryId":"nope"}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
