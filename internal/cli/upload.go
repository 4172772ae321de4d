package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/hkracing/racesync/internal/normalize"
	"github.com/hkracing/racesync/internal/observability"
	"github.com/hkracing/racesync/internal/reconcile"
	"github.com/hkracing/racesync/internal/runner"
	"github.com/hkracing/racesync/internal/source"
	"github.com/hkracing/racesync/internal/telemetry"

	catalogpkg "github.com/hkracing/racesync/internal/catalog"
)

// UploadOptions holds flags for the upload command.
type UploadOptions struct {
	*RootOptions
	dateFilters
	AllowUpcoming bool
}

// NewUploadCommand creates the upload command.
func NewUploadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UploadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Fetch, normalize, and reconcile race records into the sink",
		Long: `Upload runs the full sync pipeline for every catalog date surviving the
filters. Dates with upcoming status are dropped unless --allow-upcoming is
set; results for a race must not be written before the race has been run.

Example:
  racesync upload --status completed --month 2025/07
  racesync upload --limit 5 --sink memory --verbose`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, opts)
		},
	}

	opts.dateFilters.register(cmd)
	cmd.Flags().BoolVar(&opts.AllowUpcoming, "allow-upcoming", false, "permit writing records for dates that have not run yet")

	return cmd
}

func runUpload(cmd *cobra.Command, opts *UploadOptions) error {
	cfg, err := loadSettings(opts.RootOptions)
	if err != nil {
		return err
	}
	dates, err := loadDates(opts.RootOptions, opts.dateFilters)
	if err != nil {
		return err
	}
	dates = catalogpkg.FilterFinal(dates, opts.AllowUpcoming)
	if len(dates) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no dates to process")
		return nil
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	provider, err := telemetry.NewProvider(ctx, telemetry.DefaultConfig())
	if err != nil {
		return err
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			observability.Log().Error("telemetry shutdown",
				observability.Field{Key: "error", Value: err.Error()})
		}
	}()
	metrics, err := telemetry.NewPipelineMetrics(provider.Meter("racesync.pipeline"))
	if err != nil {
		return err
	}

	store, closeSink, err := buildSink(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSink()

	sourceLimiter := rate.NewLimiter(rate.Limit(cfg.Source.RatePerSecond), cfg.Source.RateBurst)
	src := source.NewHTTPSource(cfg.Source, sourceLimiter)
	uploader := reconcile.NewUploader(store, sinkLimiter(cfg), reconcile.NewPolicy(cfg.Runner), cfg.Runner.Workers)
	pipeline := runner.New(src, normalize.New(), uploader, metrics, cfg.Runner)

	result, runErr := pipeline.Run(ctx, dates)
	printSummary(cmd, result)
	return runErr
}

func printSummary(cmd *cobra.Command, result runner.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s\n", result.RunID)
	for _, day := range result.Days {
		switch {
		case day.Skipped:
			fmt.Fprintf(out, "  %s %s: skipped (%s)\n", day.Day.Date, day.Day.Venue, day.Reason)
		case day.Err != nil:
			fmt.Fprintf(out, "  %s %s: failed: %v\n", day.Day.Date, day.Day.Venue, day.Err)
		default:
			fmt.Fprintf(out, "  %s %s: %d outcomes\n", day.Day.Date, day.Day.Venue, len(day.Outcomes))
		}
	}
	for _, collection := range result.Summary.Collections() {
		counts := result.Summary.ByCollection[collection]
		fmt.Fprintf(out, "  %-28s created=%d updated=%d skipped=%d failed=%d\n",
			collection, counts.Created, counts.Updated, counts.Skipped, counts.Failed)
	}
	if !result.Summary.Clean() {
		fmt.Fprintf(out, "%d records failed\n", len(result.Summary.Failures))
	}
}

// signalContext derives a context cancelled by SIGINT/SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			observability.Log().Info("received signal, shutting down",
				observability.Field{Key: "signal", Value: sig.String()})
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}
