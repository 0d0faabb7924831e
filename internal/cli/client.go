package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/notesync/internal/config"
	"github.com/roach88/notesync/internal/localcache"
	"github.com/roach88/notesync/internal/model"
	"github.com/roach88/notesync/internal/reminder"
	"github.com/roach88/notesync/internal/remote"
	"github.com/roach88/notesync/internal/session"
	"github.com/roach88/notesync/internal/state"
	"github.com/roach88/notesync/internal/workspace"
)

// clientEnv is a signed-in workspace backed by the configured server.
type clientEnv struct {
	gw    *remote.Client
	cache *localcache.FileCache
	ws    *workspace.Workspace
	owner string
}

// promptIO is where the calendar consent prompt is shown and answered.
type promptIO struct {
	in  io.Reader
	out io.Writer
}

// openClient builds the stores for the configured user and loads them.
// The caller must Close the env.
func openClient(ctx context.Context, cfg config.Config, prompt promptIO) (*clientEnv, error) {
	if cfg.Client.UserID == "" {
		return nil, NewExitError(ExitCommandError, "client.user_id is not configured")
	}

	gw, err := remote.New(cfg.Client.ServerURL)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid server url", err)
	}
	cache, err := localcache.OpenFile(cfg.Client.CachePath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open local cache", err)
	}

	notes := state.NewNoteStore(gw)
	tasks := state.NewTaskStore(gw, newReminders(cfg.Calendar, cache, prompt))
	prefs := state.NewPreferenceStore(gw, cache, state.ThemeFunc(func(t model.Theme) {
		slog.Debug("theme applied", "theme", t)
	}))

	provider := session.NewStaticProvider(session.User{
		ID:    cfg.Client.UserID,
		Email: cfg.Client.Email,
	}, true)
	sess := session.NewStore(provider, cache)

	ws := workspace.New(workspace.Deps{
		Session: sess,
		Notes:   notes,
		Tasks:   tasks,
		Prefs:   prefs,
		Cache:   cache,
	})
	env := &clientEnv{gw: gw, cache: cache, ws: ws, owner: cfg.Client.UserID}

	if err := sess.Initialize(ctx); err != nil {
		return nil, WrapExitError(ExitFailure, "failed to read session", err)
	}
	if err := ws.Start(ctx); err != nil {
		_ = ws.Close()
		return nil, WrapExitError(ExitFailure, "failed to load workspace", err)
	}
	return env, nil
}

// Close stops the streams and waits for reminder jobs.
func (e *clientEnv) Close() {
	if err := e.ws.Close(); err != nil {
		slog.Warn("failed to close workspace", "error", err)
	}
}

// note looks up a loaded note, reporting a command error for unknown ids.
func (e *clientEnv) note(id string) (model.Note, error) {
	n, ok := e.ws.Notes().Note(id)
	if !ok {
		return model.Note{}, NewExitError(ExitCommandError, fmt.Sprintf("no note %q", id))
	}
	return n, nil
}

// task looks up a loaded task of a note.
func (e *clientEnv) task(noteID, taskID string) (model.Task, error) {
	t, ok := e.ws.Tasks().Task(noteID, taskID)
	if !ok {
		return model.Task{}, NewExitError(ExitCommandError, fmt.Sprintf("no task %q on note %q", taskID, noteID))
	}
	return t, nil
}

// withClient opens the client, runs fn and prints its result.
func withClient(cmd *cobra.Command, opts *RootOptions, fn func(env *clientEnv) (any, error)) error {
	env, err := openClient(cmd.Context(), opts.Config, promptIO{in: cmd.InOrStdin(), out: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer env.Close()

	result, err := fn(env)
	if err != nil {
		return err
	}
	return opts.formatter(cmd).Success(result)
}

// newReminders returns the calendar adapter, or Disabled when calendar sync
// is off.
func newReminders(cfg config.CalendarConfig, cache localcache.Cache, prompt promptIO) reminder.Adapter {
	if !cfg.Enabled {
		return reminder.Disabled{}
	}
	auth := &reminder.OAuthAuthorizer{
		Config: reminder.NewOAuthConfig(cfg.ClientID, cfg.ClientSecret, cfg.RedirectURL),
		Prompt: prompt.ask,
	}
	tokens := reminder.NewTokenSource(cache, auth, reminder.TokenInfoValidator{})

	opts := []reminder.CalendarOption{reminder.WithCalendarID(cfg.CalendarID)}
	if cfg.BaseURL != "" {
		opts = append(opts, reminder.WithBaseURL(cfg.BaseURL))
	}
	return reminder.NewCalendar(tokens, opts...)
}

// ask shows the consent URL and reads the pasted authorization code.
func (p promptIO) ask(ctx context.Context, authURL string) (string, error) {
	if p.in == nil {
		return "", reminder.ErrUnavailable
	}
	fmt.Fprintf(p.out, "Open this URL to allow calendar reminders:\n  %s\nAuthorization code: ", authURL)

	lines := make(chan string, 1)
	errc := make(chan error, 1)
	go func() {
		line, err := bufio.NewReader(p.in).ReadString('\n')
		if err != nil && line == "" {
			errc <- err
			return
		}
		lines <- strings.TrimSpace(line)
	}()

	select {
	case line := <-lines:
		return line, nil
	case err := <-errc:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
