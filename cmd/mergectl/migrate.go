package main

import (
	"fmt"

	"number_merge_game/internal/db"
	"number_merge_game/internal/migrations"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Inspect and apply schema migrations",
}

var migrateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List migrations and whether they are applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := openPool(cmd)
		if err != nil {
			return err
		}
		defer pool.Close()

		list, err := db.ListMigrations(cmd.Context(), pool, migrations.FS)
		if err != nil {
			return err
		}
		for _, m := range list {
			state := "pending"
			if m.Applied {
				state = "applied"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", state, m.Name)
		}
		return nil
	},
}

var migrateApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply every pending migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := openPool(cmd)
		if err != nil {
			return err
		}
		defer pool.Close()

		n, err := db.Migrate(cmd.Context(), pool, migrations.FS)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateListCmd, migrateApplyCmd)
	rootCmd.AddCommand(migrateCmd)
}
