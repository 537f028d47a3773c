package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/listing-geocoder/internal/backfill"
	"github.com/sells-group/listing-geocoder/internal/config"
	"github.com/sells-group/listing-geocoder/internal/db"
	"github.com/sells-group/listing-geocoder/internal/monitoring"
	"github.com/sells-group/listing-geocoder/pkg/geocode"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Geocode listings missing coordinates",
	Long:  "Selects every listing with a NULL latitude or longitude, geocodes its address through Google and writes the coordinates back. All updates are committed together, any database error rolls back the whole run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("backfill"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		limit, _ := cmd.Flags().GetInt("limit")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		showBar, _ := cmd.Flags().GetBool("progress-bar")
		metricsFile, _ := cmd.Flags().GetString("metrics-file")

		opts := backfill.OptionsFromConfig(cfg.Backfill)
		opts.Limit = limit
		opts.DryRun = dryRun

		gc := geocode.NewClient(cfg.Google.APIKey,
			geocode.WithBaseURL(cfg.Google.BaseURL),
			geocode.WithTimeout(time.Duration(cfg.Google.TimeoutSecs)*time.Second),
			geocode.WithRateLimit(cfg.Google.RateLimit),
		)

		var runnerOpts []backfill.RunnerOption
		if showBar && isatty.IsTerminal(os.Stderr.Fd()) {
			runnerOpts = append(runnerOpts, backfill.WithProgress(backfill.NewBarProgress(os.Stderr)))
		}

		return runBackfill(ctx, db.Connect, cfg, gc, opts, metricsFile, cmd.OutOrStdout(), runnerOpts...)
	},
}

// runBackfill executes one run and prints the summary line on success. The
// metrics file, when set, is written whether or not the run succeeded.
func runBackfill(ctx context.Context, connect db.ConnectFunc, c *config.Config, gc geocode.Client, opts backfill.Options, metricsFile string, out io.Writer, runnerOpts ...backfill.RunnerOption) error {
	metrics := monitoring.NewMetrics()
	runnerOpts = append(runnerOpts, backfill.WithMetrics(metrics))
	runner := backfill.NewRunner(connect, c.Store.DatabaseURL, gc, opts, runnerOpts...)

	summary, err := runner.Run(ctx)

	if metricsFile != "" {
		if mErr := metrics.WriteTextfile(metricsFile); mErr != nil {
			zap.L().Warn("failed to write metrics file", zap.String("path", metricsFile), zap.Error(mErr))
		}
	}

	if err != nil {
		return err
	}

	printSummary(out, summary, opts.DryRun)
	return nil
}

func printSummary(w io.Writer, s backfill.Summary, dryRun bool) {
	if dryRun {
		fmt.Fprintf(w, "Dry run complete, nothing written: %s\n", s)
		return
	}
	fmt.Fprintf(w, "Backfill complete: %s\n", s)
}

func init() {
	backfillCmd.Flags().Int("limit", 0, "maximum number of listings to process (0 = all)")
	backfillCmd.Flags().Bool("dry-run", false, "geocode and write inside the transaction, then roll back")
	backfillCmd.Flags().Bool("progress-bar", false, "show a progress bar when stderr is a terminal")
	backfillCmd.Flags().String("metrics-file", "", "write Prometheus metrics to this file at the end of the run")
	rootCmd.AddCommand(backfillCmd)
}
