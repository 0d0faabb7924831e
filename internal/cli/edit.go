package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/notesync/internal/model"
	"github.com/roach88/notesync/internal/view"
)

const editHelp = `commands:
  title <text>            set the title
  body <text>             set the body (\n starts a new line)
  color <value>           set the card color
  task <label>            add a task
  toggle <n>              flip task n
  due <n> <RFC3339|none>  set or clear the due date of task n
  rm <n>                  delete task n
  flush                   write pending edits now
  show                    print the note
  popout                  open the note in a separate window
  quit                    write pending edits and exit`

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <note-id>",
		Short: "Edit a note interactively",
		Long: `Edit a note line by line. The note is printed again whenever it changes,
including changes made from other views or sessions. Title and body edits
are written once typing pauses.

` + editHelp,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(rootOpts, args[0], cmd)
		},
	}
}

// editSession is one interactive editor.
type editSession struct {
	mgr    *view.Manager
	editor *view.Editor
	note   model.Note
	out    *OutputFormatter

	mu sync.Mutex
}

func runEdit(opts *RootOptions, noteID string, cmd *cobra.Command) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	// stdin belongs to the editor, so calendar consent cannot be prompted.
	env, err := openClient(ctx, opts.Config, promptIO{})
	if err != nil {
		return err
	}
	defer env.Close()

	n, err := env.note(noteID)
	if err != nil {
		return err
	}

	var opener view.Opener
	if po, err := view.NewProcessOpener(opts.childArgs()...); err == nil {
		opener = po
	}
	mgr := view.NewManager(env.ws.Notes(), env.ws.Tasks(), opener,
		view.WithQuietPeriod(opts.Config.Client.Quiet()))
	defer mgr.CloseAll()

	v, err := mgr.Open(ctx, n, view.ModeMain)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to open note", err)
	}

	s := &editSession{mgr: mgr, editor: v.Editor, note: n, out: opts.formatter(cmd)}
	s.show(s.editor.State())
	stop := s.editor.OnChange(func(st view.EditorState) {
		if !st.Dirty {
			s.show(st)
		}
	})
	defer stop()

	return s.loop(ctx, cmd.InOrStdin())
}

func (s *editSession) loop(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	closed := time.NewTicker(200 * time.Millisecond)
	defer closed.Stop()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return s.finish(ctx)
			}
			quit, err := s.exec(ctx, line)
			if err != nil {
				_ = s.out.Error("EDIT", err.Error(), nil)
			}
			if quit {
				return s.finish(ctx)
			}
		case <-closed.C:
			if s.editor.Closed() {
				return NewExitError(ExitFailure, fmt.Sprintf("note %s was deleted", s.note.ID))
			}
		case <-ctx.Done():
			return s.finish(context.WithoutCancel(ctx))
		}
	}
}

// exec runs one command line and reports whether the session should end.
func (s *editSession) exec(ctx context.Context, line string) (bool, error) {
	verb, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)
	ed := s.editor

	switch verb {
	case "":
		return false, nil
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		s.print(editHelp)
	case "title":
		ed.SetTitle(rest)
	case "body":
		ed.SetBody(strings.ReplaceAll(rest, `\n`, "\n"))
	case "color":
		return false, ed.SetColor(ctx, rest)
	case "task":
		_, err := ed.AddTask(ctx, rest)
		return false, err
	case "toggle":
		i, err := taskIndex(rest)
		if err != nil {
			return false, err
		}
		return false, ed.ToggleTask(ctx, i)
	case "due":
		n, value, _ := strings.Cut(rest, " ")
		i, err := taskIndex(n)
		if err != nil {
			return false, err
		}
		due, err := parseDue(strings.TrimSpace(value))
		if err != nil {
			return false, err
		}
		return false, ed.SetTaskDue(ctx, i, due)
	case "rm":
		i, err := taskIndex(rest)
		if err != nil {
			return false, err
		}
		return false, ed.DeleteTask(ctx, i)
	case "flush":
		return false, ed.Flush(ctx)
	case "show":
		s.show(ed.State())
	case "popout":
		if err := ed.Flush(ctx); err != nil {
			return false, err
		}
		if _, err := s.mgr.Open(ctx, s.note, view.ModePopup); err != nil {
			return false, err
		}
		s.print("opened in a separate window")
	default:
		return false, fmt.Errorf("unknown command %q (try help)", verb)
	}
	return false, nil
}

// finish writes pending edits before the session ends.
func (s *editSession) finish(ctx context.Context) error {
	if err := s.editor.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "failed to save note", err)
	}
	return nil
}

func (s *editSession) show(st view.EditorState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.out.Stream(editorView(st))
}

func (s *editSession) print(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out.Writer, text)
}

// taskIndex parses a 1-based task number.
func taskIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("task number must be 1 or more, got %q", s)
	}
	return n - 1, nil
}
