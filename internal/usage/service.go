// Package usage keeps the append-only per-key call log and derives rolling
// statistics from it. All writes are best-effort: a failed usage write is a
// server-side diagnostic, never a caller-visible error.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/recallhq/memory-api/internal/models"
)

type Service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

// Append inserts one usage row and bumps the key's monotonic counters.
func (s *Service) Append(ctx context.Context, apiKeyID uuid.UUID, endpoint, method string, statusCode int) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO api_key_usage (api_key_id, endpoint, method, status_code)
		 VALUES ($1, $2, $3, $4)`,
		apiKeyID, endpoint, method, statusCode,
	)
	if err != nil {
		return fmt.Errorf("insert usage log: %w", err)
	}

	_, err = s.db.Exec(ctx,
		"UPDATE api_keys SET usage_count = usage_count + 1, last_used_at = NOW() WHERE id = $1",
		apiKeyID,
	)
	if err != nil {
		return fmt.Errorf("update key usage counters: %w", err)
	}

	return nil
}

// Stats computes the dashboard view: lifetime request count plus request and
// error totals over the trailing 24 hours.
func (s *Service) Stats(ctx context.Context, key *models.APIKey) (*models.KeyStats, error) {
	since := time.Now().Add(-24 * time.Hour)

	var total, errors int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE status_code >= 400)
		 FROM api_key_usage
		 WHERE api_key_id = $1 AND timestamp >= $2`,
		key.ID, since,
	).Scan(&total, &errors)
	if err != nil {
		return nil, fmt.Errorf("query usage stats: %w", err)
	}

	errorRate := "0.00%"
	if total > 0 {
		errorRate = fmt.Sprintf("%.2f%%", float64(errors)/float64(total)*100)
	}

	return &models.KeyStats{
		TotalRequests:   key.UsageCount,
		Last24hRequests: total,
		ErrorRate:       errorRate,
		LastUsed:        key.LastUsedAt,
		IsActive:        key.IsActive,
		RateLimit:       key.RateLimit,
		ExpiresAt:       key.ExpiresAt,
	}, nil
}
