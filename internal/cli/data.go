package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/celerix-dev/drinklog/internal/engine"
	"github.com/celerix-dev/drinklog/pkg/schema"
)

func newCollectionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List the collections of the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App) error {
				names, err := app.Store.Collections(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "cannot list collections", err)
				}
				return formatter(rootOpts, cmd).Success(names, func(w io.Writer) error {
					for _, n := range names {
						if _, err := fmt.Fprintln(w, n); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}
}

func newExportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export [COLLECTION]",
		Short: "Dump a collection, newest first",
		Long: `Dump every document of a collection (default "drinks") ordered by timestamp,
newest first. Text output is one JSON document per line.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := schema.Query{
				Collection: schema.DrinksCollection,
				OrderBy:    schema.TimestampField,
				Direction:  schema.Desc,
			}
			if len(args) == 1 {
				q.Collection = args[0]
			}
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App) error {
				docs, err := app.Store.Snapshot(ctx, q)
				if err != nil {
					return WrapExitError(ExitFailure, "cannot export "+q.Collection, err)
				}
				return formatter(rootOpts, cmd).Success(docs, func(w io.Writer) error {
					enc := json.NewEncoder(w)
					for _, d := range docs {
						if err := enc.Encode(d); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}
}

type migrateOptions struct {
	fromJSON string
	toSQLite string
}

func newMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &migrateOptions{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy a JSON data directory into a SQLite database",
		Long: `Copy every collection of a JSON data directory into a SQLite database.

Run it while the store daemon is stopped, then start the daemon with
DRINKLOG_BACKEND=sqlite.`,
		Example: "  drinklog migrate --from-json ./data --to-sqlite ./data/drinklog.db",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(rootOpts, opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.fromJSON, "from-json", "", "source JSON data directory")
	cmd.Flags().StringVar(&opts.toSQLite, "to-sqlite", "", "destination SQLite file")
	cmd.MarkFlagRequired("from-json")
	cmd.MarkFlagRequired("to-sqlite")
	return cmd
}

func runMigrate(rootOpts *RootOptions, opts *migrateOptions, cmd *cobra.Command) error {
	out := formatter(rootOpts, cmd)

	src, err := engine.NewPersistence(opts.fromJSON)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot open source", err)
	}
	dst, err := engine.OpenSQLite(opts.toSQLite)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot open destination", err)
	}
	defer dst.Close()

	out.VerboseLog("migrating %s -> %s", opts.fromJSON, opts.toSQLite)
	n, err := engine.Migrate(src, dst)
	if err != nil {
		return WrapExitError(ExitFailure, "migration failed", err)
	}
	return out.Success(map[string]any{"collections": n, "destination": opts.toSQLite}, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Migrated %d collection(s) to %s.\n", n, opts.toSQLite)
		return err
	})
}
