package main

import (
	"fmt"

	"github.com/ahmedmhosni/roastify/internal/db"

	"github.com/spf13/cobra"
)

func newDBCmd() *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	var target string
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			conn, err := connectTarget(cmd.Context(), cfg, target)
			if err != nil {
				return err
			}
			defer conn.Close()

			version, err := db.RunMigrations(cmd.Context(), conn.Pool)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s database at schema version %d\n", target, version)
			return nil
		},
	}
	migrateCmd.Flags().StringVar(&target, "target", "local", "database to migrate (local or remote)")

	dbCmd.AddCommand(migrateCmd)
	return dbCmd
}
