package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ScopeGenerate = "generate"
	ScopeHistory  = "history"
)

// APIKey grants access to the generation and job history endpoints when
// authentication is enabled. Only the bcrypt hash of the raw key is stored.
type APIKey struct {
	ID         uuid.UUID  `db:"id"           json:"id"`
	Name       string     `db:"name"         json:"name"`
	KeyHash    string     `db:"key_hash"     json:"-"`
	KeyPrefix  string     `db:"key_prefix"   json:"keyPrefix"`
	Scopes     []string   `db:"scopes"       json:"scopes"`
	LastUsedAt *time.Time `db:"last_used_at" json:"lastUsedAt,omitempty"`
	RevokedAt  *time.Time `db:"revoked_at"   json:"-"`
	CreatedAt  time.Time  `db:"created_at"   json:"createdAt"`
}
