package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/recallhq/memory-api/internal/auth"
)

// AuthHandler serves signup/login/logout and the session introspection
// endpoint for the dashboard.
type AuthHandler struct {
	store *auth.Store
}

func NewAuthHandler(store *auth.Store) *AuthHandler {
	return &AuthHandler{store: store}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	userID, err := h.store.CreateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAppError(w, err)
		return
	}

	h.issueSession(w, r, userID)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	userID, err := h.store.VerifyCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAppError(w, err)
		return
	}

	h.issueSession(w, r, userID)
}

func (h *AuthHandler) issueSession(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	token, expiresAt, err := h.store.CreateSession(r.Context(), userID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	http.SetCookie(w, sessionCookie(token, expiresAt))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"expiresAt": expiresAt,
	})
}

// Me handles GET /auth/me. It never errors: an absent or expired session is
// reported, not rejected.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(auth.SessionCookieName)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"authenticated": false})
		return
	}

	sess, err := h.store.ResolveSession(r.Context(), cookie.Value)
	if err != nil || sess == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"authenticated": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"authenticated": true,
		"user":          map[string]interface{}{"id": sess.UserID, "email": sess.Email},
		"expiresAt":     sess.ExpiresAt,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.SessionCookieName); err == nil {
		// Best effort: a missing or already-deleted session still logs out.
		_ = h.store.DeleteSession(r.Context(), cookie.Value)
	}

	expired := sessionCookie("", time.Unix(0, 0))
	expired.MaxAge = -1
	http.SetCookie(w, expired)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return req, false
	}
	return req, true
}

// sessionCookie builds the dashboard session cookie. SameSite=None with
// Secure lets the hosted dashboard call the API cross-origin.
func sessionCookie(token string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	}
}
