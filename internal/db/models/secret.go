// Package models - secret.go defines the Secret model for stored secrets and the
// derived status/stats types returned by the dashboard endpoints.
package models

import "time"

// SecretStatus is the derived lifecycle state of a secret. It is never stored;
// it is computed from expires_at and is_viewed at read time.
type SecretStatus string

const (
	SecretStatusActive  SecretStatus = "active"
	SecretStatusViewed  SecretStatus = "viewed"
	SecretStatusExpired SecretStatus = "expired"
)

// Secret represents a stored secret owned by a user
type Secret struct {
	ID            string     `json:"id" db:"id"`
	OwnerID       string     `json:"owner_id" db:"owner_id"`
	Content       string     `json:"content" db:"content"`
	PasswordHash  *string    `json:"-" db:"password_hash"` // never serialized, compared via bcrypt only
	OneTimeAccess bool       `json:"one_time_access" db:"one_time_access"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	IsViewed      bool       `json:"is_viewed" db:"is_viewed"`
	ViewedAt      *time.Time `json:"viewed_at,omitempty" db:"viewed_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// IsExpired returns true if the secret has an expiry in the past. A nil
// ExpiresAt means the secret never expires.
func (s *Secret) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// HasPassword returns true if the secret requires a password to view
func (s *Secret) HasPassword() bool {
	return s.PasswordHash != nil && *s.PasswordHash != ""
}

// Status derives the lifecycle state. Expiry takes precedence over viewed:
// a secret that was viewed and later expired reports expired.
func (s *Secret) Status(now time.Time) SecretStatus {
	if s.IsExpired(now) {
		return SecretStatusExpired
	}
	if s.IsViewed {
		return SecretStatusViewed
	}
	return SecretStatusActive
}

// SecretStats aggregates an owner's secrets for the dashboard. The buckets
// overlap on purpose: a viewed one-time secret counts under both Viewed and
// OneTimeAccess, so the buckets do not sum to Total.
type SecretStats struct {
	Total         int64 `json:"total" db:"total"`
	Active        int64 `json:"active" db:"active"`
	Viewed        int64 `json:"viewed" db:"viewed"`
	Expired       int64 `json:"expired" db:"expired"`
	OneTimeAccess int64 `json:"one_time_access" db:"one_time_access"`
	RecentSecrets int64 `json:"recent_secrets" db:"recent_secrets"` // created within the last 30 days
}

// SecretFilter holds the listing parameters for an owner's secrets
type SecretFilter struct {
	Search    string // case-insensitive substring match on content
	Status    SecretStatus
	SortBy    string // created_at or expires_at
	SortOrder string // asc or desc
	Limit     int
	Offset    int
}
