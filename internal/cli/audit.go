package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hkracing/racesync/internal/audit"
	"github.com/hkracing/racesync/internal/observability"
	"github.com/hkracing/racesync/internal/route"
	"github.com/hkracing/racesync/internal/telemetry"
)

// AuditOptions holds flags for the audit command.
type AuditOptions struct {
	*RootOptions
	Collection  string
	SweepVenues bool
	Remove      bool
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Remove duplicate records sharing one logical key",
		Long: `Audit lists every record in the destination collections, recomputes each
record's logical key from its identity fields, and deletes all but the newest
copy in every duplicate group. Running it twice is safe; the second pass finds
nothing to remove.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Collection, "collection", "", "sweep only this collection (default: all)")
	cmd.Flags().BoolVar(&opts.SweepVenues, "sweep-venues", false, "report records whose venue conflicts with the date catalog")
	cmd.Flags().BoolVar(&opts.Remove, "remove", false, "delete venue-conflicted records (with --sweep-venues)")

	return cmd
}

func runAudit(cmd *cobra.Command, opts *AuditOptions) error {
	cfg, err := loadSettings(opts.RootOptions)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd)
	defer cancel()

	store, closeSink, err := buildSink(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSink()

	auditor := audit.New(store)
	if opts.SweepVenues {
		return runVenueSweep(ctx, cmd, opts, auditor)
	}

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

	var reports []audit.Report
	if opts.Collection != "" {
		if _, err := route.StrategyFor(opts.Collection); err != nil {
			return err
		}
		report, err := auditor.Sweep(ctx, opts.Collection)
		if err != nil {
			return err
		}
		reports = []audit.Report{report}
	} else {
		reports, err = auditor.SweepAll(ctx)
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	var totalRemoved int
	for _, report := range reports {
		totalRemoved += report.Removed
		metrics.RecordDuplicatesRemoved(ctx, report.Collection, report.Removed)
		fmt.Fprintf(out, "%-28s examined=%d groups=%d removed=%d miskeyed=%d unkeyed=%d\n",
			report.Collection, report.Examined, report.DuplicateGroups,
			report.Removed, report.Miskeyed, report.Unkeyed)
	}
	fmt.Fprintf(out, "removed %d duplicate records\n", totalRemoved)
	return nil
}

func runVenueSweep(ctx context.Context, cmd *cobra.Command, opts *AuditOptions, auditor *audit.Auditor) error {
	dates, err := loadDates(opts.RootOptions, dateFilters{})
	if err != nil {
		return err
	}
	reports, err := auditor.SweepVenues(ctx, dates, opts.Remove)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	var conflicted, removed int
	for _, report := range reports {
		if report.Conflicted == 0 {
			continue
		}
		conflicted += report.Conflicted
		removed += report.Removed
		fmt.Fprintf(out, "%s %s: %d venue-conflicted records, %d removed\n",
			report.Date, report.Venue, report.Conflicted, report.Removed)
	}
	fmt.Fprintf(out, "%d venue-conflicted records, %d removed\n", conflicted, removed)
	return nil
}
