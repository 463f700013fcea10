package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/memory-api/internal/apperr"
	"github.com/recallhq/memory-api/internal/embedding"
	"github.com/recallhq/memory-api/internal/models"
)

type stubEmbedder struct {
	vectors [][]float32
	err     error
	calls   int
	mode    embedding.Mode
}

func (s *stubEmbedder) Name() string { return "stub" }

func (s *stubEmbedder) Embed(_ context.Context, texts []string, mode embedding.Mode) ([][]float32, error) {
	s.calls++
	s.mode = mode
	if s.err != nil {
		return nil, s.err
	}
	return s.vectors, nil
}

func TestStoreRejectsEmptyContentBeforeEmbedding(t *testing.T) {
	emb := &stubEmbedder{}
	svc := NewPGService(nil, emb, 4)

	for _, content := range []string{"", "   ", "\n\t"} {
		_, err := svc.Store(context.Background(), uuid.New(), content, nil)
		require.Error(t, err)
		assert.Equal(t, apperr.InvalidArgument, apperr.KindOf(err))
	}
	assert.Zero(t, emb.calls, "no embedding call may happen for invalid input")
}

func TestStoreRejectsDimensionMismatch(t *testing.T) {
	emb := &stubEmbedder{vectors: [][]float32{{1, 2, 3}}}
	svc := NewPGService(nil, emb, 4)

	_, err := svc.Store(context.Background(), uuid.New(), "hello", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidArgument, apperr.KindOf(err))
}

func TestStoreSurfacesEmbeddingFailure(t *testing.T) {
	emb := &stubEmbedder{err: apperr.New(apperr.EmbeddingFailed, "failed to generate embedding")}
	svc := NewPGService(nil, emb, 4)

	_, err := svc.Store(context.Background(), uuid.New(), "hello", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.EmbeddingFailed, apperr.KindOf(err))
}

func TestSearchRejectsEmptyQueryBeforeEmbedding(t *testing.T) {
	emb := &stubEmbedder{}
	svc := NewPGService(nil, emb, 4)

	_, err := svc.Search(context.Background(), uuid.New(), "  ", 5)
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidArgument, apperr.KindOf(err))
	assert.Zero(t, emb.calls)
}

func TestFilterAboveThresholdIsStrict(t *testing.T) {
	mk := func(sim float64) SearchResult {
		return SearchResult{Memory: models.Memory{ID: uuid.New()}, Similarity: sim}
	}

	results := []SearchResult{mk(0.93), mk(0.51), mk(0.50), mk(0.49)}
	filtered := filterAboveThreshold(results)

	require.Len(t, filtered, 2)
	assert.Equal(t, 0.93, filtered[0].Similarity)
	assert.Equal(t, 0.51, filtered[1].Similarity, "0.51 is included")
	for _, r := range filtered {
		assert.Greater(t, r.Similarity, SimilarityThreshold, "0.50 exactly is excluded")
	}
}

func TestFilterAboveThresholdEmpty(t *testing.T) {
	assert.Empty(t, filterAboveThreshold(nil))
	assert.Empty(t, filterAboveThreshold([]SearchResult{{Similarity: 0.5}}))
}
