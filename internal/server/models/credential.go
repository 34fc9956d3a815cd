// Package models defines server-side data models persisted in the database.
package models

// Credential is the projection of a users row needed to authorise a
// destructive account operation.
type Credential struct {
	UserID       string
	UserName     string
	PasswordHash string
}
