// Package cli implements the interactive delete-account command.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/triox/internal/client/client"
	"github.com/dmitrijs2005/triox/internal/client/config"
)

// AccountClient is the remote operation the command drives.
type AccountClient interface {
	DeleteAccount(ctx context.Context, password string) error
}

// ErrAborted is returned when the user declines the confirmation prompt.
var ErrAborted = errors.New("aborted")

const confirmWord = "delete"

type App struct {
	config *config.Config
	client AccountClient
	reader *bufio.Reader
	out    io.Writer
}

func NewApp(cfg *config.Config, c AccountClient) *App {
	return &App{
		config: cfg,
		client: c,
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}
}

// Run asks for confirmation and the current password, then deletes the
// account bound to the configured access token.
func (a *App) Run(ctx context.Context) error {
	if !a.config.AssumeYes {
		answer, err := GetSimpleText(a.reader,
			fmt.Sprintf("This permanently deletes your account and all stored files. Type %q to continue", confirmWord), a.out)
		if err != nil {
			return err
		}
		if !strings.EqualFold(answer, confirmWord) {
			return ErrAborted
		}
	}

	pw, err := GetPassword(a.out)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	defer wipe(pw)

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	if err := a.client.DeleteAccount(ctx, string(pw)); err != nil {
		return describe(err)
	}

	fmt.Fprintln(a.out, "Account deleted.")
	return nil
}

func describe(err error) error {
	switch {
	case errors.Is(err, client.ErrInvalidCredentials):
		return errors.New("wrong password, nothing was deleted")
	case errors.Is(err, client.ErrAccountNotFound):
		return errors.New("account does not exist")
	case errors.Is(err, client.ErrUnauthorized):
		return fmt.Errorf("session rejected, log in again: %w", err)
	case errors.Is(err, client.ErrUnavailable):
		return errors.New("server unavailable, try again later")
	default:
		return err
	}
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
