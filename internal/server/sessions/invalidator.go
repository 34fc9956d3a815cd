package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/triox/internal/logging"
	"github.com/dmitrijs2005/triox/internal/server/auth"
)

// minTTL keeps a denylist entry alive across small clock skews for tokens
// that are about to expire.
const minTTL = time.Second

// RefreshTokenDeleter removes a user's refresh tokens.
type RefreshTokenDeleter interface {
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

// Invalidator revokes sessions. Revocation never fails from the caller's
// point of view; problems are logged.
type Invalidator struct {
	denylist Denylist
	refresh  RefreshTokenDeleter
	log      logging.Logger
	now      func() time.Time
}

func NewInvalidator(denylist Denylist, refresh RefreshTokenDeleter, l logging.Logger) *Invalidator {
	return &Invalidator{
		denylist: denylist,
		refresh:  refresh,
		log:      l.With("module", "sessions"),
		now:      time.Now,
	}
}

// Revoke denylists the session's access token for the rest of its lifetime
// and deletes the user's refresh tokens.
func (i *Invalidator) Revoke(ctx context.Context, s auth.Session) {
	ttl := s.ExpiresAt.Sub(i.now())
	if ttl > 0 {
		if err := i.denylist.Add(ctx, s.TokenID, max(ttl, minTTL)); err != nil {
			i.log.Warn(ctx, "denylist token failed", "user_id", s.UserID, "token_id", s.TokenID, "error", err)
		}
	}

	if i.refresh == nil {
		return
	}
	n, err := i.refresh.DeleteByUser(ctx, s.UserID)
	if err != nil {
		i.log.Warn(ctx, "delete refresh tokens failed", "user_id", s.UserID, "error", err)
		return
	}
	if n > 0 {
		i.log.Debug(ctx, "refresh tokens deleted", "user_id", s.UserID, "count", n)
	}
}

// IsRevoked reports whether tokenID has been revoked.
func (i *Invalidator) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	return i.denylist.Contains(ctx, tokenID)
}
