package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ahmedmhosni/roastify/internal/mirror"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	var (
		manifestPath string
		xlsxPath     string
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare row counts of every manifest table on both databases",
		Long: `Compare row counts of every manifest table on both databases.

Equal counts do not prove equal content. Exit status is 2 when any table
does not match.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if manifestPath != "" {
				cfg.Mirror.Manifest = manifestPath
			}
			manifest, err := mirror.LoadManifest(cfg.Mirror.Manifest)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			localConn, err := connectTarget(ctx, cfg, "local")
			if err != nil {
				return err
			}
			defer localConn.Close()
			remoteConn, err := connectTarget(ctx, cfg, "remote")
			if err != nil {
				return err
			}
			defer remoteConn.Close()

			started := time.Now()
			v := mirror.Verify(ctx,
				mirror.NewPostgresStore("local", localConn),
				mirror.NewPostgresStore("remote", remoteConn),
				manifest.Tables(),
			)
			if err := v.Print(cmd.OutOrStdout()); err != nil {
				return err
			}

			if xlsxPath != "" {
				report := &mirror.Report{
					RunID:        uuid.New(),
					Strategy:     "verify",
					StartedAt:    started,
					FinishedAt:   time.Now(),
					Verification: v,
				}
				if err := writeXLSXFile(xlsxPath, report); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", xlsxPath)
			}

			return verifyExit(v)
		},
	}
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "table manifest (default from mirror.manifest)")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "also write the report to this .xlsx file")
	return cmd
}

func writeXLSXFile(path string, report *mirror.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := report.WriteXLSX(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// verifyExit returns exit 2 when any table does not match.
func verifyExit(v mirror.Verification) error {
	if v.Matched != v.Total {
		return &exitError{code: 2, err: fmt.Errorf("%d of %d tables differ", v.Total-v.Matched, v.Total)}
	}
	return nil
}
