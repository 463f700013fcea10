package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageEntry is one append-only row per authenticated API call.
type UsageEntry struct {
	ID        uuid.UUID `json:"id" db:"id"`
	APIKeyID  uuid.UUID `json:"api_key_id" db:"api_key_id"`
	Endpoint  string    `json:"endpoint" db:"endpoint"`
	Method    string    `json:"method" db:"method"`
	StatusCode int      `json:"status_code" db:"status_code"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// KeyStats summarizes a key's recent traffic for the dashboard.
type KeyStats struct {
	TotalRequests  int        `json:"totalRequests"`
	Last24hRequests int       `json:"last24hRequests"`
	ErrorRate      string     `json:"errorRate"`
	LastUsed       *time.Time `json:"lastUsed"`
	IsActive       bool       `json:"isActive"`
	RateLimit      int        `json:"rateLimit"`
	ExpiresAt      *time.Time `json:"expiresAt"`
}
