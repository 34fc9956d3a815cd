// Package users is the record-store accessor for account rows.
package users

import (
	"context"

	"github.com/dmitrijs2005/triox/internal/server/models"
)

// Repository reads and destroys account records keyed by username.
type Repository interface {
	// FetchCredential returns the stored credential for userName, or
	// common.ErrorNotFound when no such account exists.
	FetchCredential(ctx context.Context, userName string) (*models.Credential, error)

	// Delete removes the account row. It returns common.ErrorNotFound when
	// no row matched, e.g. because a concurrent request deleted it first.
	Delete(ctx context.Context, userName string) error
}
