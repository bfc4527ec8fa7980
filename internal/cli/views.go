package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/celerix-dev/drinklog/internal/tracker"
)

// dashboard waits for the mirror and computes every view.
func dashboard(ctx context.Context, app *App, filter string) (tracker.Dashboard, error) {
	if err := app.Ready(ctx); err != nil {
		return tracker.Dashboard{}, err
	}
	d, err := app.Session.Dashboard(filter)
	if err != nil {
		return d, WrapExitError(ExitCommandError, "invalid filter", err)
	}
	return d, nil
}

func newHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List your drinks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App) error {
				if _, err := requireIdentity(app); err != nil {
					return err
				}
				d, err := dashboard(ctx, app, filter)
				if err != nil {
					return err
				}
				return formatter(rootOpts, cmd).Success(d.History, func(w io.Writer) error {
					return renderHistory(w, d, rootOpts.Now())
				})
			})
		},
	}
	cmd.Flags().StringVarP(&filter, "type", "t", tracker.FilterAll, "only show one type (all|beer|wine|cocktail)")
	return cmd
}

func newStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show your statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App) error {
				if _, err := requireIdentity(app); err != nil {
					return err
				}
				d, err := dashboard(ctx, app, "")
				if err != nil {
					return err
				}
				return formatter(rootOpts, cmd).Success(d.Stats, func(w io.Writer) error {
					return renderStats(w, d.Identity, d.Stats)
				})
			})
		},
	}
}

func newFriendsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "friends",
		Aliases: []string{"leaderboard"},
		Short:   "Rank everyone by number of drinks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App) error {
				d, err := dashboard(ctx, app, "")
				if err != nil {
					return err
				}
				return formatter(rootOpts, cmd).Success(d.Leaderboard, func(w io.Writer) error {
					return renderLeaderboard(w, d.Leaderboard, rootOpts.Now())
				})
			})
		},
	}
}

func newRecentCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recent",
		Short: "Show the latest drinks of everyone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App) error {
				d, err := dashboard(ctx, app, "")
				if err != nil {
					return err
				}
				return formatter(rootOpts, cmd).Success(d.Recent, func(w io.Writer) error {
					return renderRecent(w, d.Recent, rootOpts.Now())
				})
			})
		},
	}
}

func newWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the drink log live",
		Long: `Render every view and re-render whenever anyone logs or deletes a drink.

Runs until interrupted. When the connection to the store is lost the last
known data stays on screen and the command exits with an error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App) error {
				return runWatch(ctx, rootOpts, app, filter, cmd)
			})
		},
	}
	cmd.Flags().StringVarP(&filter, "type", "t", tracker.FilterAll, "only show one type in the history")
	return cmd
}

func runWatch(ctx context.Context, rootOpts *RootOptions, app *App, filter string, cmd *cobra.Command) error {
	out := formatter(rootOpts, cmd)
	if err := app.Ready(ctx); err != nil {
		return err
	}
	mirror := app.Session.Mirror()
	for {
		d, err := app.Session.Dashboard(filter)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid filter", err)
		}
		out.VerboseLog("render version %d", d.Version)
		if err := out.Stream(d, func(w io.Writer) error {
			if rootOpts.Format == "text" {
				io.WriteString(w, "\n")
			}
			return renderDashboard(w, d, rootOpts.Now())
		}); err != nil {
			return err
		}
		if snap := mirror.Snapshot(); snap.Err != nil {
			return WrapExitError(ExitFailure, "lost the drink log", snap.Err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-mirror.Updated():
		case <-app.Notice.Changed():
		}
	}
}
