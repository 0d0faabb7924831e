package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/notesync/internal/model"
)

// NewPrefsCommand creates the prefs command group.
func NewPrefsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change display preferences",
	}
	cmd.AddCommand(newPrefsShowCommand(rootOpts))
	cmd.AddCommand(newPrefsSetCommand(rootOpts))
	return cmd
}

func newPrefsShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(env *clientEnv) (any, error) {
				return prefsView(env.ws.Prefs().Current()), nil
			})
		},
	}
}

func newPrefsSetCommand(opts *RootOptions) *cobra.Command {
	var theme, color, gradient string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change the theme or background",
		Long: `Change the theme or background. A background color and a background
gradient exclude each other; setting one clears the other. Pass an empty
value to clear a background.

Example:
  notesync prefs set --theme dark
  notesync prefs set --background-gradient "linear-gradient(#fff, #eee)"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var update model.PreferencesUpdate
			if cmd.Flags().Changed("theme") {
				t, err := model.ParseTheme(theme)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid theme", err)
				}
				update.Theme = &t
			}
			if cmd.Flags().Changed("background-color") {
				update.BackgroundColor = optional(color)
			}
			if cmd.Flags().Changed("background-gradient") {
				update.BackgroundGradient = optional(gradient)
			}

			return withClient(cmd, opts, func(env *clientEnv) (any, error) {
				if err := env.ws.Prefs().Save(cmd.Context(), env.owner, update); err != nil {
					return nil, WrapExitError(ExitFailure, "failed to save preferences", err)
				}
				return prefsView(env.ws.Prefs().Current()), nil
			})
		},
	}
	cmd.Flags().StringVar(&theme, "theme", "", "light or dark")
	cmd.Flags().StringVar(&color, "background-color", "", "background color")
	cmd.Flags().StringVar(&gradient, "background-gradient", "", "background gradient")
	return cmd
}

// optional maps an empty flag value to a cleared column.
func optional(s string) model.Nullable[string] {
	if s == "" {
		return model.Null[string]()
	}
	return model.Set(s)
}
