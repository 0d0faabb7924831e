package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/notesync/internal/view"
)

// NewOpenCommand creates the open command.
func NewOpenCommand(rootOpts *RootOptions) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "open <note-id>",
		Short: "Open a note in a separate synced editor",
		Long: `Open a note in a separate editor process that stays in sync with every
other view of the note. Picture-in-picture falls back to a separate window
when it is not available.

Example:
  notesync open <note-id>
  notesync open <note-id> --mode pip`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := view.ParseMode(mode)
			if err != nil || !m.External() {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid mode %q: must be popup or pip", mode))
			}

			opener, err := view.NewProcessOpener(rootOpts.childArgs()...)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to locate executable", err)
			}

			return withClient(cmd, rootOpts, func(env *clientEnv) (any, error) {
				n, err := env.note(args[0])
				if err != nil {
					return nil, err
				}
				mgr := view.NewManager(env.ws.Notes(), env.ws.Tasks(), opener,
					view.WithQuietPeriod(rootOpts.Config.Client.Quiet()))
				defer mgr.CloseAll()

				v, err := mgr.Open(cmd.Context(), n, m)
				if errors.Is(err, view.ErrUnsupported) {
					return nil, WrapExitError(ExitFailure, "separate windows are not available", err)
				}
				if err != nil {
					return nil, WrapExitError(ExitFailure, "failed to open note", err)
				}
				return opened{NoteID: n.ID, Mode: v.Mode}, nil
			})
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", string(view.ModePopup), "popup or pip")
	return cmd
}

// childArgs are the global flags handed to a spawned editor process.
func (o *RootOptions) childArgs() []string {
	args := []string{"--config", o.configFile}
	if o.Verbose {
		args = append(args, "--verbose")
	}
	return args
}

type opened struct {
	NoteID string    `json:"note_id"`
	Mode   view.Mode `json:"mode"`
}

func (o opened) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Opened note %s (%s)\n", o.NoteID, o.Mode)
	return err
}
