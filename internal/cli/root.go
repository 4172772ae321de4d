// Package cli assembles the racesync command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/hkracing/racesync/internal/observability"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose    bool
	ConfigPath string
	DatesFile  string
	SinkKind   string
}

// NewRootCommand creates the root command for the racesync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "racesync",
		Short: "Synchronize race results into a keyed document store",
		Long: `racesync pulls per-race result payloads from the upstream source,
normalizes them into typed records, and reconciles them into the configured
destination collections. Audit and verify passes read the same destination
without writing through the upload path.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			observability.SetLogger(observability.NewStdLogger("racesync ", opts.Verbose))
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.DatesFile, "dates-file", "race_dates.json", "path to the race dates catalog")
	cmd.PersistentFlags().StringVar(&opts.SinkKind, "sink", "", "destination backend (memory|pocketbase|postgres)")

	cmd.AddCommand(NewUploadCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewDatesCommand(opts))

	return cmd
}
