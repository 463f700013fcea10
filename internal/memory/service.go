// Package memory persists content+embedding+metadata records scoped to one
// API key. Both the REST handlers and the MCP dispatcher call the same
// Service; the transports only translate request and response shapes.
package memory

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/recallhq/memory-api/internal/apperr"
	"github.com/recallhq/memory-api/internal/embedding"
	"github.com/recallhq/memory-api/internal/models"
)

const (
	// SimilarityThreshold excludes weak matches: strictly greater than,
	// a hit at exactly 0.5 is filtered out.
	SimilarityThreshold = 0.5

	DefaultSearchLimit = 5
	DefaultListLimit   = 50
)

type SearchResult struct {
	models.Memory
	Similarity float64 `json:"similarity"`
}

type Service interface {
	Store(ctx context.Context, apiKeyID uuid.UUID, content string, metadata map[string]interface{}) (*models.Memory, error)
	Search(ctx context.Context, apiKeyID uuid.UUID, query string, limit int) ([]SearchResult, error)
	List(ctx context.Context, apiKeyID uuid.UUID, limit int) ([]models.Memory, error)
	Delete(ctx context.Context, apiKeyID, memoryID uuid.UUID) error
}

type PGService struct {
	db        *pgxpool.Pool
	embedder  embedding.Provider
	dimension int
}

func NewPGService(db *pgxpool.Pool, embedder embedding.Provider, dimension int) *PGService {
	return &PGService{db: db, embedder: embedder, dimension: dimension}
}

// Store validates first so invalid input never costs an embedding call.
func (s *PGService) Store(ctx context.Context, apiKeyID uuid.UUID, content string, metadata map[string]interface{}) (*models.Memory, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.New(apperr.InvalidArgument, "content is required and must be a non-empty string")
	}

	vectors, err := s.embedder.Embed(ctx, []string{content}, embedding.ModeDocument)
	if err != nil {
		return nil, err
	}
	vector, err := s.checkDimension(vectors)
	if err != nil {
		return nil, err
	}

	var metadataJSON []byte
	if metadata != nil {
		metadataJSON, err = json.Marshal(metadata)
		if err != nil {
			return nil, apperr.Wrap(apperr.InvalidArgument, "invalid metadata", err)
		}
	}

	m := &models.Memory{
		Content:  content,
		Metadata: metadata,
		APIKeyID: apiKeyID,
	}
	err = s.db.QueryRow(ctx,
		`INSERT INTO memories (content, embedding, metadata, api_key_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		content, pgvector.NewVector(vector), metadataJSON, apiKeyID,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, apperr.Wrap(apperr.Database, "failed to store memory", err)
	}

	return m, nil
}

// Search embeds the query with the asymmetric query mode, ranks the key's
// memories by cosine similarity and drops anything at or below the threshold.
func (s *PGService) Search(ctx context.Context, apiKeyID uuid.UUID, query string, limit int) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperr.New(apperr.InvalidArgument, "query is required and must be a non-empty string")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	vectors, err := s.embedder.Embed(ctx, []string{query}, embedding.ModeQuery)
	if err != nil {
		return nil, err
	}
	vector, err := s.checkDimension(vectors)
	if err != nil {
		return nil, err
	}

	queryVec := pgvector.NewVector(vector)
	rows, err := s.db.Query(ctx,
		`SELECT id, content, metadata, api_key_id, created_at, updated_at,
		        1 - (embedding <=> $1) AS similarity
		 FROM memories
		 WHERE api_key_id = $2
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		queryVec, apiKeyID, limit,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.Database, "failed to search memories", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var metadataJSON []byte
		if err := rows.Scan(&r.ID, &r.Content, &metadataJSON, &r.APIKeyID, &r.CreatedAt, &r.UpdatedAt, &r.Similarity); err != nil {
			return nil, apperr.Wrap(apperr.Database, "failed to search memories", err)
		}
		if err := unmarshalMetadata(metadataJSON, &r.Memory); err != nil {
			return nil, apperr.Wrap(apperr.Database, "failed to search memories", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Database, "failed to search memories", err)
	}

	return filterAboveThreshold(results), nil
}

func (s *PGService) List(ctx context.Context, apiKeyID uuid.UUID, limit int) ([]models.Memory, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, content, metadata, api_key_id, created_at, updated_at
		 FROM memories
		 WHERE api_key_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		apiKeyID, limit,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.Database, "failed to list memories", err)
	}
	defer rows.Close()

	var memories []models.Memory
	for rows.Next() {
		var m models.Memory
		var metadataJSON []byte
		if err := rows.Scan(&m.ID, &m.Content, &metadataJSON, &m.APIKeyID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, apperr.Wrap(apperr.Database, "failed to list memories", err)
		}
		if err := unmarshalMetadata(metadataJSON, &m); err != nil {
			return nil, apperr.Wrap(apperr.Database, "failed to list memories", err)
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Database, "failed to list memories", err)
	}

	return memories, nil
}

// Delete removes the memory only when owned by apiKeyID. Missing or
// foreign-owned ids are a no-op success, so delete is idempotent and reveals
// nothing about other tenants' data.
func (s *PGService) Delete(ctx context.Context, apiKeyID, memoryID uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		"DELETE FROM memories WHERE id = $1 AND api_key_id = $2",
		memoryID, apiKeyID,
	)
	if err != nil {
		return apperr.Wrap(apperr.Database, "failed to delete memory", err)
	}
	return nil
}

func (s *PGService) checkDimension(vectors [][]float32) ([]float32, error) {
	if len(vectors) != 1 {
		return nil, apperr.New(apperr.EmbeddingFailed, "failed to generate embedding")
	}
	if len(vectors[0]) != s.dimension {
		return nil, apperr.Newf(apperr.InvalidArgument,
			"embedding dimension mismatch: got %d, want %d", len(vectors[0]), s.dimension)
	}
	return vectors[0], nil
}

func filterAboveThreshold(results []SearchResult) []SearchResult {
	filtered := results[:0]
	for _, r := range results {
		if r.Similarity > SimilarityThreshold {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

func unmarshalMetadata(raw []byte, m *models.Memory) error {
	if len(raw) == 0 {
		m.Metadata = nil
		return nil
	}
	return json.Unmarshal(raw, &m.Metadata)
}
