package main

import (
	"fmt"

	"github.com/ahmedmhosni/roastify/internal/repository"
	"github.com/ahmedmhosni/roastify/internal/seed"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

func newSeedAdminCmd() *cobra.Command {
	var (
		req    seed.AdminRequest
		target string
	)
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create or reset the admin account",
		Long: `Create or reset the admin account.

When --password is omitted a random password is generated and printed once.`,
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

			sqlDB := sqlx.NewDb(stdlib.OpenDBFromPool(conn.Pool), "pgx")
			defer sqlDB.Close()

			creds, err := seed.Admin(cmd.Context(), repository.NewUserRepository(sqlDB), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "admin account ready on %s database\n", target)
			fmt.Fprintf(out, "  id:       %d\n", creds.User.ID)
			fmt.Fprintf(out, "  email:    %s\n", creds.User.Email)
			fmt.Fprintf(out, "  password: %s\n", creds.Password)
			if creds.Generated {
				fmt.Fprintln(out, "store this password now; it is not shown again")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "admin email (required)")
	cmd.Flags().StringVar(&req.Name, "name", "", "admin display name (required)")
	cmd.Flags().StringVar(&req.Password, "password", "", "admin password (generated when empty)")
	cmd.Flags().StringVar(&target, "target", "remote", "database to seed (local or remote)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
