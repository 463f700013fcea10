package models

import (
	"time"

	"github.com/google/uuid"
)

// Memory is a stored note: content plus a server-computed embedding and
// optional metadata, owned by exactly one API key. Write-once: no update
// operation exists, only delete.
type Memory struct {
	ID        uuid.UUID              `json:"id" db:"id"`
	Content   string                 `json:"content" db:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	APIKeyID  uuid.UUID              `json:"-" db:"api_key_id"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt time.Time              `json:"updated_at" db:"updated_at"`
}
