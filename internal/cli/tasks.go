package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewTasksCommand creates the tasks command group.
func NewTasksCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Manage the checklist of a note",
	}
	cmd.AddCommand(newTasksListCommand(rootOpts))
	cmd.AddCommand(newTasksAddCommand(rootOpts))
	cmd.AddCommand(newTasksToggleCommand(rootOpts))
	cmd.AddCommand(newTasksDueCommand(rootOpts))
	cmd.AddCommand(newTasksRemoveCommand(rootOpts))
	return cmd
}

func newTasksListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <note-id>",
		Short: "List the tasks of a note in creation order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(env *clientEnv) (any, error) {
				if _, err := env.note(args[0]); err != nil {
					return nil, err
				}
				return taskList(env.ws.Tasks().Tasks(args[0])), nil
			})
		},
	}
}

func newTasksAddCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <note-id> <label>...",
		Short: "Add a task to a note",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			label := strings.Join(args[1:], " ")
			return withClient(cmd, opts, func(env *clientEnv) (any, error) {
				if _, err := env.note(args[0]); err != nil {
					return nil, err
				}
				t, err := env.ws.Tasks().Create(cmd.Context(), args[0], env.owner, label)
				if err != nil {
					return nil, WrapExitError(ExitFailure, "failed to add task", err)
				}
				return taskDetail(t), nil
			})
		},
	}
}

func newTasksToggleCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <note-id> <task-id>",
		Short: "Flip the completion of a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(env *clientEnv) (any, error) {
				t, err := env.task(args[0], args[1])
				if err != nil {
					return nil, err
				}
				if err := env.ws.Tasks().ToggleCompletion(cmd.Context(), t); err != nil {
					return nil, WrapExitError(ExitFailure, "failed to update task", err)
				}
				return env.settledTask(args[0], args[1])
			})
		},
	}
}

func newTasksDueCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "due <note-id> <task-id> <RFC3339|none>",
		Short: "Set or clear the due date of a task",
		Long: `Set or clear the due date of a task. When calendar reminders are
enabled, a reminder event follows the due date.

Example:
  notesync tasks due <note-id> <task-id> 2026-03-01T09:00:00+01:00
  notesync tasks due <note-id> <task-id> none`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			due, err := parseDue(args[2])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid due date", err)
			}
			return withClient(cmd, opts, func(env *clientEnv) (any, error) {
				t, err := env.task(args[0], args[1])
				if err != nil {
					return nil, err
				}
				if err := env.ws.Tasks().SetDueDate(cmd.Context(), t, due); err != nil {
					return nil, WrapExitError(ExitFailure, "failed to update task", err)
				}
				return env.settledTask(args[0], args[1])
			})
		},
	}
}

func newTasksRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <note-id> <task-id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(env *clientEnv) (any, error) {
				if _, err := env.task(args[0], args[1]); err != nil {
					return nil, err
				}
				if err := env.ws.Tasks().Delete(cmd.Context(), args[1], args[0]); err != nil {
					return nil, WrapExitError(ExitFailure, "failed to delete task", err)
				}
				return deleted{Kind: "task", ID: args[1]}, nil
			})
		},
	}
}

// settledTask waits for reminder work and returns the task as it stands.
func (e *clientEnv) settledTask(noteID, taskID string) (taskDetail, error) {
	e.ws.Tasks().Wait()
	t, err := e.task(noteID, taskID)
	return taskDetail(t), err
}

func parseDue(s string) (*time.Time, error) {
	if s == "none" || s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("%q is not RFC3339 or none", s)
	}
	return &t, nil
}
