package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ahmedmhosni/roastify/internal/config"
	"github.com/ahmedmhosni/roastify/internal/logger"
	"github.com/ahmedmhosni/roastify/internal/mirror"
	"github.com/ahmedmhosni/roastify/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

const mirrorLongHelp = `Reconcile the local and remote databases in one pass:

  1. create tables listed under create_missing that exist only on the remote
  2. overwrite each critical table on the remote when local is ahead
  3. fill remaining tables insert-only in their declared direction
  4. print a row-count verification report

With the default row-count strategy a table is "ahead" only when it has
strictly more rows. Equal counts hide divergent content, and a critical
overwrite drops rows that exist only on the remote. Use --strategy timestamp
or --strategy checksum when that matters.

Exit status is 2 when the run completed with table or row failures.`

type mirrorFlags struct {
	manifest  string
	strategy  string
	dryRun    bool
	record    bool
	batchSize int
}

func newMirrorCmd() *cobra.Command {
	var flags mirrorFlags
	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Mirror tables between the local and remote databases",
		Long:  mirrorLongHelp,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMirror(cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.manifest, "manifest", "", "table manifest (default from mirror.manifest)")
	cmd.Flags().StringVar(&flags.strategy, "strategy", "", "sync strategy: row-count, timestamp or checksum")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "report what would change without writing")
	cmd.Flags().BoolVar(&flags.record, "record", false, "store the run summary in the local mirror_runs table")
	cmd.Flags().IntVar(&flags.batchSize, "batch-size", 0, "rows fetched per page (default from mirror.batch_size)")

	cmd.AddCommand(newMirrorHistoryCmd())
	return cmd
}

func applyMirrorFlags(cfg *config.Config, flags mirrorFlags) {
	if flags.manifest != "" {
		cfg.Mirror.Manifest = flags.manifest
	}
	if flags.strategy != "" {
		cfg.Mirror.Strategy = flags.strategy
	}
	if flags.batchSize > 0 {
		cfg.Mirror.BatchSize = flags.batchSize
	}
}

func runMirror(cmd *cobra.Command, flags mirrorFlags) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyMirrorFlags(&cfg, flags)

	manifest, err := mirror.LoadManifest(cfg.Mirror.Manifest)
	if err != nil {
		return err
	}
	strategy, err := mirror.NewStrategy(cfg.Mirror.Strategy, cfg.Mirror.TimestampColumn)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Mirror.Timeout)
	defer cancel()

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

	local := mirror.NewPostgresStore("local", localConn)
	remote := mirror.NewPostgresStore("remote", remoteConn)

	m := mirror.New(local, remote,
		mirror.WithStrategy(strategy),
		mirror.WithBatchSize(cfg.Mirror.BatchSize),
		mirror.WithDryRun(flags.dryRun),
		mirror.WithLogger(logger.Default),
		mirror.WithLock(remote, cfg.Mirror.LockKey),
	)

	report, runErr := m.Run(ctx, manifest)
	if report != nil {
		if err := report.Print(cmd.OutOrStdout()); err != nil {
			return err
		}
		if flags.record && !flags.dryRun {
			recordRun(localConn.Pool, report)
		}
	}
	return mirrorExit(report, runErr)
}

// mirrorExit maps a run outcome to the command error: exit 1 for an aborted
// run, exit 2 for a run that finished with table or row failures.
func mirrorExit(report *mirror.Report, runErr error) error {
	if runErr != nil {
		return fmt.Errorf("mirror run aborted: %w", runErr)
	}
	if report != nil && report.Partial() {
		return &exitError{code: 2, err: fmt.Errorf("mirror run %s completed with failures", report.RunID)}
	}
	return nil
}

// recordRun stores the run summary. A failure here does not fail the run.
func recordRun(pool *pgxpool.Pool, report *mirror.Report) {
	run, err := report.Run()
	if err != nil {
		logger.Default.Warn("could not record mirror run: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := repository.NewMirrorRunRepository(pool).Record(ctx, run); err != nil {
		logger.Default.Warn("could not record mirror run: %v", err)
		return
	}
	logger.Default.Info("recorded mirror run %s", run.ID)
}

func newMirrorHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded mirror runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			conn, err := connectTarget(cmd.Context(), cfg, "local")
			if err != nil {
				return err
			}
			defer conn.Close()

			runs, err := repository.NewMirrorRunRepository(conn.Pool).List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSTARTED\tDURATION\tSTRATEGY\tSYNCED\tROWS\tFAILED\tMATCH")
			for _, run := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%d\t%d\t%.1f%%\n",
					run.ID, run.StartedAt.Local().Format("2006-01-02 15:04"), run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond),
					run.Strategy, run.TablesSynced, run.TablesChecked, run.RowsWritten, run.RowFailures, run.MatchPercentage)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}
