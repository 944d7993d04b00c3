// Package models defines server-side data models persisted in PostgreSQL.
package models

import "time"

// User is an account. PasswordHash is empty for accounts created through an
// identity provider.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
