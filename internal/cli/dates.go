package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewDatesCommand creates the dates command.
func NewDatesCommand(rootOpts *RootOptions) *cobra.Command {
	filters := dateFilters{}

	cmd := &cobra.Command{
		Use:   "dates",
		Short: "List catalog dates with venue and status",
		Long: `Dates classifies every catalog entry against today's date and prints the
result. The same filters the upload command accepts apply here, so the listing
previews exactly what an upload run would process.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dates, err := loadDates(rootOpts, filters)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, day := range dates {
				fmt.Fprintf(out, "%s  %-2s %-12s races=%d\n",
					day.Date, day.Venue, day.Status, day.TotalRaces)
			}
			fmt.Fprintf(out, "%d dates\n", len(dates))
			return nil
		},
	}

	filters.register(cmd)

	return cmd
}
