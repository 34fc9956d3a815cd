package models

import "time"

// Purge states recorded on an AccountDeletion.
const (
	PurgePending   = "pending"
	PurgeCompleted = "completed"
	PurgeFailed    = "failed"
)

// AccountDeletion is the tombstone written when an account record is
// removed. It outlives the user row and tracks whether the account's owned
// data has been purged from object storage.
type AccountDeletion struct {
	ID          string
	UserID      string
	UserName    string
	Namespace   string
	PurgeStatus string
	PurgeError  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
