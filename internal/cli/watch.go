package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/notesync/internal/model"
	"github.com/roach88/notesync/internal/remote"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var table string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print change events until interrupted",
		Long: `Print the change events of the configured user as they happen.

Example:
  notesync watch
  notesync watch --table tasks --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(rootOpts, table, cmd)
		},
	}
	cmd.Flags().StringVarP(&table, "table", "t", "*", "notes, tasks, user_preferences or *")
	return cmd
}

func runWatch(opts *RootOptions, table string, cmd *cobra.Command) error {
	topic := model.Topic{OwnerID: opts.Config.Client.UserID}
	if table != "*" && table != "" {
		t, err := model.ParseTable(table)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid table", err)
		}
		topic.Table = t
	}

	gw, err := remote.New(opts.Config.Client.ServerURL)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid server url", err)
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	sub, err := gw.Subscribe(ctx, topic)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to subscribe", err)
	}
	defer sub.Close()

	out := opts.formatter(cmd)
	out.VerboseLog("watching %s", topic.Pattern())
	for {
		select {
		case c, ok := <-sub.Changes():
			if !ok {
				return NewExitError(ExitFailure, "change stream ended")
			}
			if err := out.Stream(newChangeLine(c)); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
