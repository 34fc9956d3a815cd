// Package storage removes the data an account owns in the object store.
//
// Every account owns exactly one namespace, users/<username>/, either as an
// S3 key prefix or as a directory below the local storage root.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/dmitrijs2005/triox/internal/common"
)

// ErrInvalidNamespace is returned when a username cannot be mapped to a
// namespace without escaping it.
var ErrInvalidNamespace = errors.New("invalid namespace")

// Purger removes every object in a user's namespace. A namespace that does
// not exist is treated as already purged.
type Purger interface {
	Purge(ctx context.Context, userName string) error
}

// PurgeError reports a failed purge of Namespace.
type PurgeError struct {
	Namespace string
	Err       error
}

func (e *PurgeError) Error() string {
	return fmt.Sprintf("purge %s: %v", e.Namespace, e.Err)
}

func (e *PurgeError) Unwrap() error { return e.Err }

// Namespace returns the key prefix owned by userName, with a trailing slash.
func Namespace(userName string) (string, error) {
	if err := validateUserName(userName); err != nil {
		return "", err
	}
	return path.Join(common.UserNamespacePrefix, userName) + "/", nil
}

func validateUserName(userName string) error {
	switch {
	case userName == "", userName == ".", userName == "..":
		return fmt.Errorf("%w: %q", ErrInvalidNamespace, userName)
	case strings.ContainsAny(userName, "/\\\x00"), strings.Contains(userName, ".."):
		return fmt.Errorf("%w: %q", ErrInvalidNamespace, userName)
	}
	return nil
}
