package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/notesync/internal/model"
)

// NewNotesCommand creates the notes command group.
func NewNotesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "List, create, edit and delete notes",
	}
	cmd.AddCommand(newNotesListCommand(rootOpts))
	cmd.AddCommand(newNotesShowCommand(rootOpts))
	cmd.AddCommand(newNotesCreateCommand(rootOpts))
	cmd.AddCommand(newNotesUpdateCommand(rootOpts))
	cmd.AddCommand(newNotesRemoveCommand(rootOpts))
	return cmd
}

func newNotesListCommand(opts *RootOptions) *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notes, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(env *clientEnv) (any, error) {
				env.ws.Notes().SetSearch(search)
				notes := env.ws.Notes().Filtered()
				out := make(noteList, 0, len(notes))
				for _, n := range notes {
					out = append(out, noteSummary{Note: n, Tasks: env.ws.Tasks().Counts(n.ID)})
				}
				return out, nil
			})
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "only notes whose title or body contains this text")
	return cmd
}

func newNotesShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <note-id>",
		Short: "Show a note and its checklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(env *clientEnv) (any, error) {
				n, err := env.note(args[0])
				if err != nil {
					return nil, err
				}
				return noteDetail{Note: n, Tasks: env.ws.Tasks().Tasks(n.ID)}, nil
			})
		},
	}
}

func newNotesCreateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create an empty note",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(env *clientEnv) (any, error) {
				n, err := env.ws.Notes().Create(cmd.Context(), env.owner)
				if err != nil {
					return nil, WrapExitError(ExitFailure, "failed to create note", err)
				}
				return noteDetail{Note: n, Tasks: []model.Task{}}, nil
			})
		},
	}
}

func newNotesUpdateCommand(opts *RootOptions) *cobra.Command {
	var title, body, color string
	cmd := &cobra.Command{
		Use:   "update <note-id>",
		Short: "Change the title, body or color of a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch model.NotePatch
			if cmd.Flags().Changed("title") {
				patch.Title = &title
			}
			if cmd.Flags().Changed("body") {
				patch.Body = &body
			}
			if cmd.Flags().Changed("color") {
				patch.Color = &color
			}
			if patch.IsEmpty() {
				return NewExitError(ExitCommandError, "nothing to update: pass --title, --body or --color")
			}

			return withClient(cmd, opts, func(env *clientEnv) (any, error) {
				if _, err := env.note(args[0]); err != nil {
					return nil, err
				}
				if err := env.ws.Notes().Update(cmd.Context(), args[0], patch); err != nil {
					return nil, WrapExitError(ExitFailure, "failed to update note", err)
				}
				n, err := env.note(args[0])
				if err != nil {
					return nil, err
				}
				return noteDetail{Note: n, Tasks: env.ws.Tasks().Tasks(n.ID)}, nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&body, "body", "", "new body")
	cmd.Flags().StringVar(&color, "color", "", "new card color, empty to unset")
	return cmd
}

func newNotesRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <note-id>",
		Aliases: []string{"delete"},
		Short:   "Delete a note and its tasks",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(env *clientEnv) (any, error) {
				if err := env.ws.Notes().Delete(cmd.Context(), args[0]); err != nil {
					return nil, WrapExitError(ExitFailure, "failed to delete note", err)
				}
				return deleted{Kind: "note", ID: args[0]}, nil
			})
		},
	}
}
