// Package refreshtokens declares the server-side repository contract for
// refresh tokens, the long-lived half of a login session.
package refreshtokens

import "context"

// Repository revokes refresh tokens.
type Repository interface {
	// DeleteByUser removes every refresh token issued to userID and reports
	// how many were removed. Zero is not an error.
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}
