// Package cli implements the drinklog command line.
package cli

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "text" | "json" | "yaml"

	// Open wires the commands to a store; Now is the wall clock. Both are replaced
	// in tests.
	Open func(ctx context.Context, opts *RootOptions) (*App, error)
	Now  func() time.Time
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command of the drinklog CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{Open: openApp, Now: time.Now})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drinklog",
		Short: "drinklog - a shared drink log",
		Long: `Log drinks, browse your history and compare with friends.

Every command works on the live drink log of the configured store daemon
(DRINKLOG_STORE_ADDR) or, when none is reachable, on the local database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")

	cmd.AddCommand(newNameCommand(opts))
	cmd.AddCommand(newLogCommand(opts))
	cmd.AddCommand(newRemoveCommand(opts))
	cmd.AddCommand(newHistoryCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))
	cmd.AddCommand(newFriendsCommand(opts))
	cmd.AddCommand(newRecentCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newCollectionsCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))

	return cmd
}

func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// withApp opens the app for one command and closes it afterwards.
func withApp(opts *RootOptions, cmd *cobra.Command, run func(ctx context.Context, app *App) error) error {
	ctx := cmd.Context()
	app, err := opts.Open(ctx, opts)
	if err != nil {
		return err
	}
	defer app.Close()
	return run(ctx, app)
}

// requireIdentity fails when no local name was chosen yet.
func requireIdentity(app *App) (string, error) {
	id := app.Session.Identity()
	if id == "" {
		return "", NewExitError(ExitCommandError, "no name set, run `drinklog name NAME` first")
	}
	return id, nil
}
