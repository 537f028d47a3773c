package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/listing-geocoder/internal/db"
	"github.com/sells-group/listing-geocoder/internal/listing"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show coordinate coverage",
	Long:  "Display how many listings have coordinates and how many are still missing them. Read-only.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("status"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runStatus(ctx, db.Connect, cfg.Store.DatabaseURL, cmd.OutOrStdout())
	},
}

func runStatus(ctx context.Context, connect db.ConnectFunc, dsn string, out io.Writer) error {
	conn, err := connect(ctx, dsn)
	if err != nil {
		return eris.Wrap(err, "status: connect")
	}
	defer func() {
		if closeErr := conn.Close(context.WithoutCancel(ctx)); closeErr != nil {
			zap.L().Warn("failed to close database connection", zap.Error(closeErr))
		}
	}()

	st, err := listing.CountStatus(ctx, conn)
	if err != nil {
		return eris.Wrap(err, "status: count listings")
	}

	formatStatus(out, db.Host(dsn), st)
	return nil
}

func formatStatus(w io.Writer, host string, st listing.Status) {
	pct := 0.0
	if st.Total > 0 {
		pct = float64(st.WithCoords) / float64(st.Total) * 100
	}

	fmt.Fprintln(w, "=== Listing Coordinates ===")
	fmt.Fprintf(w, "Database: %s\n", host)
	fmt.Fprintf(w, "Table:    %s\n\n", listing.Table)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Total listings:\t%d\n", st.Total)
	fmt.Fprintf(tw, "With coordinates:\t%d (%.1f%%)\n", st.WithCoords, pct)
	fmt.Fprintf(tw, "Missing coordinates:\t%d\n", st.Missing())
	_ = tw.Flush()
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
