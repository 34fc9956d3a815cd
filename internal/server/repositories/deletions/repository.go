// Package deletions stores account-deletion tombstones. A tombstone is
// written in the same transaction that removes the account row and records
// whether the account's owned data has been purged.
package deletions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/triox/internal/server/models"
)

type Repository interface {
	// Create inserts d and returns it with ID and CreatedAt populated.
	Create(ctx context.Context, d *models.AccountDeletion) (*models.AccountDeletion, error)

	// UpdateStatus sets the purge status of tombstone id. purgeErr is stored
	// verbatim and should be empty for PurgeCompleted.
	UpdateStatus(ctx context.Context, id, status, purgeErr string) error

	// ListUnfinished returns up to limit tombstones whose purge has not
	// completed, oldest first. Failed tombstones are always included; pending
	// ones only when last updated before pendingBefore, so a purge still
	// running inside DeleteAccount is left alone.
	ListUnfinished(ctx context.Context, limit int, pendingBefore time.Time) ([]*models.AccountDeletion, error)
}
