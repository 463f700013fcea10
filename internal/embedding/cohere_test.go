package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/memory-api/internal/apperr"
)

func TestCohereEmbedSendsInputType(t *testing.T) {
	var got cohereEmbedReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embed", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(cohereEmbedResp{
			Embeddings: [][]float32{{0.1, 0.2}},
		})
	}))
	defer srv.Close()

	p := NewCohereProvider("test-key", srv.URL, "embed-english-v3.0", time.Second)

	_, err := p.Embed(context.Background(), []string{"remember this"}, ModeDocument)
	require.NoError(t, err)
	assert.Equal(t, "search_document", got.InputType)
	assert.Equal(t, []string{"remember this"}, got.Texts)
	assert.Equal(t, "embed-english-v3.0", got.Model)

	_, err = p.Embed(context.Background(), []string{"what was that?"}, ModeQuery)
	require.NoError(t, err)
	assert.Equal(t, "search_query", got.InputType)
}

func TestCohereEmbedPreservesOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(cohereEmbedResp{
			Embeddings: [][]float32{{1}, {2}, {3}},
		})
	}))
	defer srv.Close()

	p := NewCohereProvider("k", srv.URL, "", time.Second)
	vecs, err := p.Embed(context.Background(), []string{"a", "b", "c"}, ModeDocument)
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{1}, vecs[0])
	assert.Equal(t, []float32{3}, vecs[2])
}

func TestCohereEmbedMapsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid api token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewCohereProvider("bad-key", srv.URL, "", time.Second)
	_, err := p.Embed(context.Background(), []string{"x"}, ModeQuery)
	require.Error(t, err)
	assert.Equal(t, apperr.EmbeddingFailed, apperr.KindOf(err))

	// Transport failure maps the same way.
	srv.Close()
	_, err = p.Embed(context.Background(), []string{"x"}, ModeQuery)
	require.Error(t, err)
	assert.Equal(t, apperr.EmbeddingFailed, apperr.KindOf(err))
}

func TestCohereEmbedCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(cohereEmbedResp{Embeddings: [][]float32{{1}}})
	}))
	defer srv.Close()

	p := NewCohereProvider("k", srv.URL, "", time.Second)
	_, err := p.Embed(context.Background(), []string{"a", "b"}, ModeDocument)
	require.Error(t, err)
	assert.Equal(t, apperr.EmbeddingFailed, apperr.KindOf(err))
}

func TestCohereEmbedEmptyInput(t *testing.T) {
	p := NewCohereProvider("k", "http://127.0.0.1:1", "", time.Second)
	vecs, err := p.Embed(context.Background(), nil, ModeDocument)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}
