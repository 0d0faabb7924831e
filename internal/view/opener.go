package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

// ErrUnsupported is returned by an Opener that cannot show a mode.
var ErrUnsupported = errors.New("view: mode not supported")

// Opener renders a note in a new, independently synced view context.
type Opener interface {
	Open(ctx context.Context, noteID string, mode Mode) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, noteID string, mode Mode) error

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context, noteID string, mode Mode) error {
	return f(ctx, noteID, mode)
}

// ProcessOpener opens a popup view by launching "<Executable> <Args...> edit
// <note-id>" as a detached child process. Terminals have no always-on-top
// windows, so picture-in-picture is reported as unsupported.
type ProcessOpener struct {
	Executable string
	Args       []string
	// Env is appended to the current environment.
	Env []string
}

var _ Opener = (*ProcessOpener)(nil)

// NewProcessOpener returns an opener that re-runs the current binary.
func NewProcessOpener(args ...string) (*ProcessOpener, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	return &ProcessOpener{Executable: exe, Args: args}, nil
}

// Open implements Opener.
func (o *ProcessOpener) Open(ctx context.Context, noteID string, mode Mode) error {
	if mode != ModePopup {
		return fmt.Errorf("open %s view: %w", mode, ErrUnsupported)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	args := append(append([]string(nil), o.Args...), "edit", noteID)
	cmd := exec.Command(o.Executable, args...)
	cmd.Env = append(os.Environ(), o.Env...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start view process: %w", err)
	}

	slog.Info("opened popup view", "note_id", noteID, "pid", cmd.Process.Pid)
	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Debug("view process exited", "note_id", noteID, "error", err)
		}
	}()
	return nil
}
