package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/recallhq/memory-api/internal/auth"
	"github.com/recallhq/memory-api/internal/usage"
)

// APIKeyHandler serves the dashboard key-management endpoints. These are
// session-scoped: the session middleware has already resolved the cookie.
type APIKeyHandler struct {
	store *auth.Store
	usage *usage.Service
}

func NewAPIKeyHandler(store *auth.Store, usageSvc *usage.Service) *APIKeyHandler {
	return &APIKeyHandler{store: store, usage: usageSvc}
}

// Generate handles POST /generate-api-key. The raw key appears in this
// response and nowhere else afterwards; listings are always masked.
func (h *APIKeyHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string   `json:"name"`
		ExpiresInDays int      `json:"expiresInDays"`
		RateLimit     int      `json:"rateLimit"`
		Scopes        []string `json:"scopes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess := auth.SessionFromContext(r.Context())
	key, err := h.store.CreateAPIKey(r.Context(), sess.UserID, auth.CreateKeyParams{
		Name:          req.Name,
		ExpiresInDays: req.ExpiresInDays,
		RateLimit:     req.RateLimit,
		Scopes:        req.Scopes,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"apiKey":    key.Key,
		"keyId":     key.ID,
		"name":      key.Name,
		"rateLimit": key.RateLimit,
		"scopes":    key.Scopes,
		"expiresAt": key.ExpiresAt,
		"message":   "Store this API key securely - it will not be shown again",
	})
}

// Manage handles GET/POST/DELETE /manage-api-keys, dispatching on the action
// parameter the way the dashboard drives it.
func (h *APIKeyHandler) Manage(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.manageGet(w, r)
	case http.MethodPost:
		h.managePost(w, r)
	case http.MethodDelete:
		h.manageDelete(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *APIKeyHandler) manageGet(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFromContext(r.Context())
	action := r.URL.Query().Get("action")
	if action == "" {
		action = "list"
	}

	switch action {
	case "list":
		keys, err := h.store.ListAPIKeys(r.Context(), sess.UserID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"count":   len(keys),
			"keys":    keys,
		})

	case "stats":
		keyID, ok := parseKeyID(w, r.URL.Query().Get("keyId"))
		if !ok {
			return
		}
		key, err := h.store.GetAPIKey(r.Context(), sess.UserID, keyID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		stats, err := h.usage.Stats(r.Context(), key)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"keyId":   key.ID,
			"name":    key.Name,
			"stats":   stats,
		})

	default:
		writeError(w, http.StatusBadRequest, "unknown action: "+action)
	}
}

func (h *APIKeyHandler) managePost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
		KeyID  string `json:"keyId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Action != "rotate" {
		writeError(w, http.StatusBadRequest, "unknown action: "+req.Action)
		return
	}
	keyID, ok := parseKeyID(w, req.KeyID)
	if !ok {
		return
	}

	sess := auth.SessionFromContext(r.Context())
	rotated, err := h.store.RotateAPIKey(r.Context(), sess.UserID, keyID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	// Same show-once contract as key generation.
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"apiKey":    rotated.Key,
		"keyId":     rotated.ID,
		"name":      rotated.Name,
		"rateLimit": rotated.RateLimit,
		"scopes":    rotated.Scopes,
		"expiresAt": rotated.ExpiresAt,
		"message":   "Store this API key securely - it will not be shown again",
	})
}

func (h *APIKeyHandler) manageDelete(w http.ResponseWriter, r *http.Request) {
	keyID, ok := parseKeyID(w, r.URL.Query().Get("keyId"))
	if !ok {
		return
	}

	sess := auth.SessionFromContext(r.Context())
	if err := h.store.DeleteAPIKey(r.Context(), sess.UserID, keyID); err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "API key deleted successfully",
	})
}

func parseKeyID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	if raw == "" {
		writeError(w, http.StatusBadRequest, "keyId is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "keyId must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
