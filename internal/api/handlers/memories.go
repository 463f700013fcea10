package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/recallhq/memory-api/internal/auth"
	"github.com/recallhq/memory-api/internal/memory"
)

// MemoryHandler serves the four key-scoped memory endpoints. The API key
// middleware has already bound the caller's key to the request context.
type MemoryHandler struct {
	svc memory.Service
}

func NewMemoryHandler(svc memory.Service) *MemoryHandler {
	return &MemoryHandler{svc: svc}
}

// Store handles POST /store-memory.
func (h *MemoryHandler) Store(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content  string                 `json:"content"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	key := auth.APIKeyFromContext(r.Context())
	m, err := h.svc.Store(r.Context(), key.ID, req.Content, req.Metadata)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"memory":  m,
	})
}

// Retrieve handles POST /retrieve-memories.
func (h *MemoryHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	key := auth.APIKeyFromContext(r.Context())
	results, err := h.svc.Search(r.Context(), key.ID, req.Query, req.Limit)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"query":    req.Query,
		"count":    len(results),
		"memories": results,
	})
}

// List handles GET /list-memories.
func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	key := auth.APIKeyFromContext(r.Context())
	memories, err := h.svc.List(r.Context(), key.ID, limit)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"count":    len(memories),
		"memories": memories,
	})
}

// Delete handles POST /delete-memory. Deletion is idempotent: an unknown or
// foreign-owned id still reports success.
func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemoryID string `json:"memoryId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MemoryID == "" {
		writeError(w, http.StatusBadRequest, "memoryId is required")
		return
	}
	memoryID, err := uuid.Parse(req.MemoryID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "memoryId must be a valid UUID")
		return
	}

	key := auth.APIKeyFromContext(r.Context())
	if err := h.svc.Delete(r.Context(), key.ID, memoryID); err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Memory deleted successfully",
	})
}
