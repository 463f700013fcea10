package mcp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/recallhq/memory-api/internal/apperr"
)

var heartbeatInterval = 30 * time.Second

// ServeStream handles GET /mcp-stream: a server-sent events channel that
// announces the server identity and then heartbeats until the client or the
// server shuts the connection down.
func (s *Server) ServeStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw := keyFromRequest(r)
	if raw == "" {
		resolved, err := s.resolver.Key(ctx)
		if err != nil {
			writeStreamError(w, err)
			return
		}
		raw = resolved
	}
	key, err := s.auth.Authenticate(ctx, raw)
	if err != nil {
		writeStreamError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// The stream outlives the server's per-request write deadline; without
	// this the first heartbeat past WriteTimeout tears the connection down.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	info, _ := json.Marshal(map[string]any{
		"name":            serverName,
		"version":         serverVersion,
		"protocolVersion": ProtocolVersion,
	})
	fmt.Fprintf(w, "event: server/info\ndata: %s\n\n", info)
	flusher.Flush()

	s.recorder.Record(key.ID, "/mcp-stream", http.MethodGet, http.StatusOK)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeStreamError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(map[string]string{"error": apperr.Message(err)})
}
