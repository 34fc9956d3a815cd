package storage

import (
	"context"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/triox/internal/common"
)

// FSPurger purges namespaces stored as directories below Root.
type FSPurger struct {
	Root string
}

func NewFSPurger(root string) *FSPurger {
	return &FSPurger{Root: root}
}

// removeAll is a seam for testing filesystem failures.
var removeAll = os.RemoveAll

func (p *FSPurger) Purge(ctx context.Context, userName string) error {
	ns, err := Namespace(userName)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &PurgeError{Namespace: ns, Err: err}
	}

	dir := filepath.Join(p.Root, common.UserNamespacePrefix, userName)
	// RemoveAll returns nil for a missing path.
	if err := removeAll(dir); err != nil {
		return &PurgeError{Namespace: ns, Err: err}
	}
	return nil
}
