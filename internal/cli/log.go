package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/celerix-dev/drinklog/internal/tracker"
	"github.com/celerix-dev/drinklog/pkg/schema"
)

// mutationFailed maps a tracker error to an exit code.
func mutationFailed(msg string, err error) error {
	if tracker.IsValidationError(err) {
		return WrapExitError(ExitCommandError, msg, err)
	}
	return WrapExitError(ExitFailure, msg, err)
}

func newNameCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "name [NAME]",
		Short: "Show or set your name",
		Long: `Show the name your drinks are logged under, or change it.

The name is stored on this device only.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(_ context.Context, app *App) error {
				out := formatter(rootOpts, cmd)
				if len(args) == 1 {
					if err := app.Session.SetIdentity(args[0]); err != nil {
						return mutationFailed("cannot set name", err)
					}
				}
				name := app.Session.Identity()
				return out.Success(map[string]string{"userName": name}, func(w io.Writer) error {
					if name == "" {
						_, err := fmt.Fprintln(w, "No name set.")
						return err
					}
					_, err := fmt.Fprintf(w, "You are %s.\n", name)
					return err
				})
			})
		},
	}
}

type logOptions struct {
	category string
	name     string
	location string
	date     string
	clock    string
}

func newLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &logOptions{}
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Log a drink",
		Long: `Log a drink under your name.

Date and time default to now. The drink is checked before anything is sent.`,
		Example: `  drinklog log --name IPA --location "The Pub"
  drinklog log --type wine --name Merlot --location Cellar --date 2026-03-01 --time 21:00`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App) error {
				return runLog(ctx, rootOpts, opts, app, cmd)
			})
		},
	}
	cmd.Flags().StringVarP(&opts.category, "type", "t", string(schema.Beer), "drink type (beer|wine|cocktail)")
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "what you drink")
	cmd.Flags().StringVarP(&opts.location, "location", "l", "", "where you drink it")
	cmd.Flags().StringVar(&opts.date, "date", "", "date as YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&opts.clock, "time", "", "time as HH:MM (default now)")
	return cmd
}

func runLog(ctx context.Context, rootOpts *RootOptions, opts *logOptions, app *App, cmd *cobra.Command) error {
	if _, err := requireIdentity(app); err != nil {
		return err
	}
	draft := app.Session.NewDraft(rootOpts.Now())
	draft.Type = schema.Category(strings.ToLower(strings.TrimSpace(opts.category)))
	draft.Name = opts.name
	draft.Location = opts.location
	if opts.date != "" {
		draft.Date = opts.date
	}
	if opts.clock != "" {
		draft.Time = opts.clock
	}

	id, err := app.Gateway.Submit(ctx, draft)
	if err != nil {
		return mutationFailed("cannot log drink", err)
	}
	message := app.Notice.State().Message
	return formatter(rootOpts, cmd).Success(map[string]string{"id": id, "message": message}, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, message)
		return err
	})
}

func newRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm ID",
		Short: "Delete a logged drink",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App) error {
				if err := app.Gateway.Remove(ctx, args[0]); err != nil {
					return mutationFailed("cannot delete drink", err)
				}
				return formatter(rootOpts, cmd).Success(map[string]string{"id": args[0]}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Deleted %s.\n", args[0])
					return err
				})
			})
		},
	}
}
