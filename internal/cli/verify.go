package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hkracing/racesync/internal/verify"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	dateFilters
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Cross-check stored record counts against the date catalog",
		Long: `Verify compares what each race day should have produced with what the
destination actually holds, flagging missing records, excess duplicates, and
dates whose records claim the wrong venue. It never writes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, opts)
		},
	}

	opts.dateFilters.register(cmd)

	return cmd
}

func runVerify(cmd *cobra.Command, opts *VerifyOptions) error {
	cfg, err := loadSettings(opts.RootOptions)
	if err != nil {
		return err
	}
	dates, err := loadDates(opts.RootOptions, opts.dateFilters)
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

	reports, err := verify.New(store).Verify(ctx, dates)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var anomalies int
	for _, report := range reports {
		if report.Clean() {
			fmt.Fprintf(out, "%s %s: ok\n", report.Date, report.Venue)
			continue
		}
		anomalies++
		fmt.Fprintf(out, "%s %s: anomalies\n", report.Date, report.Venue)
		if report.VenueConflict {
			fmt.Fprintf(out, "  venue conflict: records stored under another venue\n")
		}
		for _, finding := range report.Findings {
			if finding.Ok() {
				continue
			}
			if len(finding.Missing) > 0 {
				fmt.Fprintf(out, "  %-28s missing %s\n", finding.Collection, strings.Join(finding.Missing, ", "))
			}
			if finding.Excess > 0 {
				fmt.Fprintf(out, "  %-28s %d excess rows\n", finding.Collection, finding.Excess)
			}
		}
	}
	fmt.Fprintf(out, "%d/%d dates verified clean\n", len(reports)-anomalies, len(reports))
	return nil
}
