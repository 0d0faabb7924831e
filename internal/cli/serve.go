package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/notesync/internal/server"
	"github.com/roach88/notesync/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr     string
	Database string
	Driver   string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the NoteSync backend",
		Long: `Run the NoteSync backend: a SQLite database exposed over HTTP, with
row changes streamed to subscribers over WebSocket.

Example:
  notesync serve
  notesync serve --addr :8750 --db ./notesync.db --driver sqlite`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Driver, "driver", "", "database driver: sqlite3 or sqlite (default from config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg := opts.Config.Server
	if opts.Addr != "" {
		cfg.Addr = opts.Addr
	}
	if opts.Database != "" {
		cfg.DBPath = opts.Database
	}
	if opts.Driver != "" {
		cfg.Driver = opts.Driver
	}

	slog.Info("opening database", "path", cfg.DBPath, "driver", cfg.Driver)
	st, err := store.Open(cfg.DBPath, store.WithDriver(cfg.Driver))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s. Press Ctrl-C to stop.\n", cfg.Addr)
	if err := server.New(st).ListenAndServe(ctx, cfg.Addr); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	return nil
}
