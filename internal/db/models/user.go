// Package models - user.go defines the User model for owner accounts with email,
// display name, and bcrypt password hash.
package models

import "time"

// User represents an account that owns secrets
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"` // bcrypt hash, never serialized
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
