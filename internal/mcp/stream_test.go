package mcp

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/memory-api/internal/apperr"
)

func TestStreamOutlivesServerWriteTimeout(t *testing.T) {
	old := heartbeatInterval
	heartbeatInterval = 50 * time.Millisecond
	defer func() { heartbeatInterval = old }()

	s := NewServer(&fakeService{}, &fakeAuth{key: testKey()}, &fakeResolver{}, &fakeRecorder{})

	srv := httptest.NewUnstartedServer(http.HandlerFunc(s.ServeStream))
	srv.Config.WriteTimeout = 200 * time.Millisecond
	srv.Start()
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "sk_mem_test")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var mu sync.Mutex
	var lines []string
	closed := false
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			mu.Lock()
			lines = append(lines, sc.Text())
			mu.Unlock()
		}
		mu.Lock()
		closed = true
		mu.Unlock()
	}()

	// Read well past the server's write deadline: heartbeats must keep
	// arriving instead of the connection being torn down at 200ms.
	time.Sleep(600 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, closed, "stream closed before the client went away")

	var sawInfo bool
	var pings int
	for _, line := range lines {
		if strings.HasPrefix(line, "event: server/info") {
			sawInfo = true
		}
		if strings.HasPrefix(line, ": ping") {
			pings++
		}
	}
	assert.True(t, sawInfo)
	assert.GreaterOrEqual(t, pings, 6)
}

func TestStreamRejectsMissingKey(t *testing.T) {
	s := NewServer(&fakeService{}, &fakeAuth{key: testKey()},
		&fakeResolver{err: apperr.New(apperr.Unauthorized, "API key required in X-API-Key header")},
		&fakeRecorder{})

	rec := httptest.NewRecorder()
	s.ServeStream(rec, httptest.NewRequest(http.MethodGet, "/mcp-stream", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
