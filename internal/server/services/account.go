// Package services contains server-side business logic. This file implements
// AccountService, which permanently deletes an authenticated user's account:
// the credential is re-verified, the account record is removed, the user's
// owned data is purged and the current session is revoked.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/triox/internal/common"
	"github.com/dmitrijs2005/triox/internal/dbx"
	"github.com/dmitrijs2005/triox/internal/logging"
	"github.com/dmitrijs2005/triox/internal/server/auth"
	"github.com/dmitrijs2005/triox/internal/server/events"
	"github.com/dmitrijs2005/triox/internal/server/models"
	"github.com/dmitrijs2005/triox/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/triox/internal/server/storage"
)

// Verifier checks a candidate secret against a stored hash. A hash that
// cannot be parsed is an error, never a mismatch.
type Verifier interface {
	Verify(storedHash, candidate string) (bool, error)
}

// SessionRevoker invalidates a session. It does not report failures.
type SessionRevoker interface {
	Revoke(ctx context.Context, s auth.Session)
}

// AccountService deletes accounts. It is safe for concurrent use.
type AccountService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	verifier    Verifier
	purger      storage.Purger
	sessions    SessionRevoker
	events      events.Publisher
	log         logging.Logger
	now         func() time.Time
}

// NewAccountService wires an AccountService. publisher may be nil, in which
// case no events are emitted.
func NewAccountService(
	db *sql.DB,
	m repomanager.RepositoryManager,
	verifier Verifier,
	purger storage.Purger,
	sessions SessionRevoker,
	publisher events.Publisher,
	l logging.Logger,
) *AccountService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &AccountService{
		db:          db,
		repomanager: m,
		verifier:    verifier,
		purger:      purger,
		sessions:    sessions,
		events:      publisher,
		log:         l.With("module", "account"),
		now:         time.Now,
	}
}

// DeleteAccount removes the account identified by session after checking
// candidate against its stored credential.
//
// It returns common.ErrAccountNotFound when no account matches the session,
// common.ErrInvalidCredentials when candidate is wrong, and
// common.ErrorInternal for any other failure before the record is deleted.
// Once the record is gone the call succeeds: purge, revocation and event
// failures are logged and recorded on the deletion tombstone.
func (s *AccountService) DeleteAccount(ctx context.Context, session auth.Session, candidate string) error {
	log := s.log.With("username", session.UserName)

	cred, err := s.repomanager.Users(s.db).FetchCredential(ctx, session.UserName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrAccountNotFound
		}
		log.Error(ctx, "fetch credential failed", "error", err)
		return common.ErrorInternal
	}
	// A token minted for an earlier account with the same name must not
	// delete its successor.
	if session.UserID != "" && cred.UserID != session.UserID {
		log.Warn(ctx, "session does not belong to current account", "session_user_id", session.UserID)
		return common.ErrAccountNotFound
	}

	ok, err := s.verifier.Verify(cred.PasswordHash, candidate)
	if err != nil {
		log.Error(ctx, "verify credential failed", "user_id", cred.UserID, "error", err)
		return common.ErrorInternal
	}
	if !ok {
		return common.ErrInvalidCredentials
	}

	ns, nsErr := storage.Namespace(cred.UserName)

	var tombstone *models.AccountDeletion
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).Delete(ctx, cred.UserName); err != nil {
			return err
		}
		var err error
		tombstone, err = s.repomanager.Deletions(tx).Create(ctx, &models.AccountDeletion{
			UserID:      cred.UserID,
			UserName:    cred.UserName,
			Namespace:   ns,
			PurgeStatus: models.PurgePending,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrAccountNotFound
		}
		log.Error(ctx, "delete account record failed", "user_id", cred.UserID, "error", err)
		return common.ErrorInternal
	}
	log.Info(ctx, "account record deleted", "user_id", cred.UserID, "deletion_id", tombstone.ID)

	purgeErr := nsErr
	if purgeErr == nil {
		purgeErr = s.purger.Purge(ctx, cred.UserName)
	}
	s.recordPurge(ctx, log, tombstone, purgeErr)

	s.sessions.Revoke(ctx, session)

	if err := s.events.PublishAccountDeleted(ctx, events.AccountDeleted{
		UserID:     cred.UserID,
		UserName:   cred.UserName,
		Namespace:  ns,
		Purged:     purgeErr == nil,
		DeletedAt:  s.now().UTC(),
		DeletionID: tombstone.ID,
	}); err != nil {
		log.Warn(ctx, "publish account deleted event failed", "user_id", cred.UserID, "error", err)
	}

	return nil
}

// recordPurge logs the purge outcome and stores it on the tombstone.
func (s *AccountService) recordPurge(ctx context.Context, log logging.Logger, d *models.AccountDeletion, purgeErr error) {
	status, msg := models.PurgeCompleted, ""
	if purgeErr != nil {
		status, msg = models.PurgeFailed, purgeErr.Error()
		log.Error(ctx, "owned data purge failed",
			"username", d.UserName, "namespace", d.Namespace, "deletion_id", d.ID, "error", purgeErr)
	}

	if err := s.repomanager.Deletions(s.db).UpdateStatus(ctx, d.ID, status, msg); err != nil {
		log.Warn(ctx, "update deletion status failed", "deletion_id", d.ID, "status", status, "error", err)
	}
}

// RetryResult summarises a RetryFailedPurges run.
type RetryResult struct {
	Attempted int
	Completed int
	Failed    int
}

// PendingPurgeGrace is how long a pending tombstone is left to the
// DeleteAccount call that created it before RetryFailedPurges picks it up.
const PendingPurgeGrace = 5 * time.Minute

// ErrNamespaceReclaimed marks a tombstone whose username belongs to a live
// account again. Its namespace now holds the new account's data and is never
// purged on retry.
var ErrNamespaceReclaimed = errors.New("namespace reclaimed by live account")

// RetryFailedPurges re-runs the purge for up to limit tombstones whose purge
// failed, or is pending for longer than PendingPurgeGrace, oldest first, and
// records each outcome. It stops early when ctx is done.
func (s *AccountService) RetryFailedPurges(ctx context.Context, limit int) (RetryResult, error) {
	var res RetryResult

	cutoff := s.now().Add(-PendingPurgeGrace)
	pending, err := s.repomanager.Deletions(s.db).ListUnfinished(ctx, limit, cutoff)
	if err != nil {
		s.log.Error(ctx, "list unfinished deletions failed", "error", err)
		return res, common.ErrorInternal
	}

	for _, d := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Attempted++

		log := s.log.With("username", d.UserName)
		purgeErr := s.checkNamespaceFree(ctx, d)
		if purgeErr == nil {
			purgeErr = s.purger.Purge(ctx, d.UserName)
		}
		s.recordPurge(ctx, log, d, purgeErr)
		if purgeErr != nil {
			res.Failed++
			continue
		}
		res.Completed++
		log.Info(ctx, "owned data purged on retry", "deletion_id", d.ID, "namespace", d.Namespace)
	}

	return res, nil
}

// checkNamespaceFree reports whether d's namespace may still be purged: only
// when no account with d.UserName exists any more.
func (s *AccountService) checkNamespaceFree(ctx context.Context, d *models.AccountDeletion) error {
	cred, err := s.repomanager.Users(s.db).FetchCredential(ctx, d.UserName)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("check account: %w", err)
	default:
		return fmt.Errorf("%w: user_id %s", ErrNamespaceReclaimed, cred.UserID)
	}
}
