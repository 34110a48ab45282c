package cli

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"conduit/internal/platform/database"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back schema migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := rootOpts.load()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.MigrateUp(db); err != nil {
				return err
			}
			return printVersion(cmd, rootOpts, db)
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := rootOpts.load()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.MigrateDown(db, steps); err != nil {
				return err
			}
			return printVersion(cmd, rootOpts, db)
		},
	}
	down.Flags().IntVarP(&steps, "steps", "n", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := rootOpts.load()
			if err != nil {
				return err
			}
			defer db.Close()
			return printVersion(cmd, rootOpts, db)
		},
	})

	return cmd
}

func printVersion(cmd *cobra.Command, opts *RootOptions, db *sqlx.DB) error {
	version, dirty, err := database.Version(db)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("schema version %d", version)
	if dirty {
		text += " (dirty)"
	}
	return opts.print(cmd.OutOrStdout(), map[string]any{"version": version, "dirty": dirty}, text)
}
