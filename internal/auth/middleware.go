package auth

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/recallhq/memory-api/internal/apperr"
	"github.com/recallhq/memory-api/internal/models"
	"github.com/recallhq/memory-api/internal/ratelimit"
)

const SessionCookieName = "session"

// UsageRecorder receives one record per authenticated call, success or
// failure. Implementations must not block and must never fail the request.
type UsageRecorder interface {
	Record(apiKeyID uuid.UUID, endpoint, method string, statusCode int)
}

// APIKeyMiddleware guards the memory endpoints.
type APIKeyMiddleware struct {
	authenticator *Authenticator
	store         *Store
	headerName    string
	recorder      UsageRecorder
}

func NewAPIKeyMiddleware(authenticator *Authenticator, store *Store, headerName string, recorder UsageRecorder) *APIKeyMiddleware {
	if headerName == "" {
		headerName = "X-API-Key"
	}
	return &APIKeyMiddleware{
		authenticator: authenticator,
		store:         store,
		headerName:    headerName,
		recorder:      recorder,
	}
}

// Authenticate runs the key state machine, binds the key to the request
// context and records usage for any call where the key was identified. A
// dashboard session cookie, when present, must belong to the key's owner.
func (m *APIKeyMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, err := m.authenticator.Authenticate(r.Context(), r.Header.Get(m.headerName))
		if err != nil {
			status := apperr.HTTPStatus(err)
			if apperr.KindOf(err) == apperr.TooManyRequests {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(err)))
			}
			m.record(key, r, status)
			writeError(w, status, apperr.Message(err))
			return
		}

		if cookie, cerr := r.Cookie(SessionCookieName); cerr == nil {
			sess, serr := m.store.ResolveSession(r.Context(), cookie.Value)
			if serr == nil && sess != nil && sess.UserID != key.UserID {
				m.record(key, r, http.StatusUnauthorized)
				writeError(w, http.StatusUnauthorized, "invalid or inactive API key")
				return
			}
		}

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(WithAPIKey(r.Context(), key)))
		m.record(key, r, ww.Status())
	})
}

// RequireScope gates a route on a capability tag; the wildcard scope passes.
func (m *APIKeyMiddleware) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := APIKeyFromContext(r.Context())
			if key == nil {
				writeError(w, http.StatusUnauthorized, "invalid or inactive API key")
				return
			}
			if !key.HasScope(scope) {
				m.record(key, r, http.StatusForbidden)
				writeError(w, http.StatusForbidden, "Insufficient permissions. "+scopeLabel(scope)+" scope required.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *APIKeyMiddleware) record(key *models.APIKey, r *http.Request, status int) {
	// Pre-identification failures have no key to attribute the call to.
	if key == nil || m.recorder == nil {
		return
	}
	m.recorder.Record(key.ID, r.URL.Path, r.Method, status)
}

// retryAfterSeconds rounds the limiter's hint up to whole seconds; a missing
// hint falls back to the full window length.
func retryAfterSeconds(err error) int {
	if d := apperr.RetryAfterOf(err); d > 0 {
		return int((d + time.Second - 1) / time.Second)
	}
	return int(ratelimit.Window / time.Second)
}

func scopeLabel(scope string) string {
	switch scope {
	case models.ScopeWrite:
		return "Write"
	case models.ScopeRead:
		return "Read"
	default:
		return scope
	}
}

// SessionMiddleware guards the dashboard key-management endpoints.
type SessionMiddleware struct {
	store *Store
}

func NewSessionMiddleware(store *Store) *SessionMiddleware {
	return &SessionMiddleware{store: store}
}

func (m *SessionMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		sess, err := m.store.ResolveSession(r.Context(), cookie.Value)
		if err != nil {
			writeError(w, apperr.HTTPStatus(err), apperr.Message(err))
			return
		}
		if sess == nil {
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
