package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey is the programmatic credential every memory operation is scoped to.
// A key is usable only while IsActive is true and ExpiresAt (when set) lies in
// the future. Key carries the raw value on creation and a masked form on
// listing; it is never returned in full after creation.
type APIKey struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	Key        string     `json:"key,omitempty" db:"key"`
	UserID     uuid.UUID  `json:"user_id" db:"user_id"`
	Name       string     `json:"name" db:"name"`
	IsActive   bool       `json:"is_active" db:"is_active"`
	RateLimit  int        `json:"rate_limit" db:"rate_limit"`
	UsageCount int        `json:"usage_count" db:"usage_count"`
	Scopes     []string   `json:"scopes" db:"scopes"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// ScopeWildcard passes every scope check.
const ScopeWildcard = "*"

const (
	ScopeRead  = "read"
	ScopeWrite = "write"
)

// HasScope reports whether the key carries the required scope or the wildcard.
func (k *APIKey) HasScope(required string) bool {
	for _, s := range k.Scopes {
		if s == required || s == ScopeWildcard {
			return true
		}
	}
	return false
}
