package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/hkracing/racesync/config"
	"github.com/hkracing/racesync/errs"
	"github.com/hkracing/racesync/internal/catalog"
	"github.com/hkracing/racesync/internal/schema"
	"github.com/hkracing/racesync/internal/sink"
	"github.com/hkracing/racesync/internal/sink/pocketbase"
	"github.com/hkracing/racesync/internal/sink/postgres"
)

// loadSettings layers the optional YAML file over environment overrides, then
// applies command-line overrides on top.
func loadSettings(opts *RootOptions) (config.Settings, error) {
	cfg := config.FromEnv()
	if opts.ConfigPath != "" {
		loaded, found, err := config.LoadOrDefault(opts.ConfigPath)
		if err != nil {
			return cfg, err
		}
		if !found {
			return cfg, fmt.Errorf("config file %s not found", opts.ConfigPath)
		}
		cfg = loaded
	}
	if opts.SinkKind != "" {
		cfg = config.Apply(cfg, config.WithSinkKind(config.SinkKind(opts.SinkKind)))
	}
	return cfg, nil
}

// buildSink constructs the configured destination backend and its closer.
func buildSink(ctx context.Context, cfg config.Settings) (sink.Sink, func(), error) {
	switch cfg.Sink.Kind {
	case config.SinkMemory:
		return sink.NewMemory(), func() {}, nil
	case config.SinkPocketBase:
		return pocketbase.New(cfg.Sink.PocketBase), func() {}, nil
	case config.SinkPostgres:
		store, err := postgres.Connect(ctx, cfg.Sink.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, errs.New("cli", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("unknown sink kind %q", cfg.Sink.Kind)))
	}
}

func sinkLimiter(cfg config.Settings) *rate.Limiter {
	perSecond := cfg.Sink.RatePerSecond
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := cfg.Sink.RateBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// dateFilters holds the date-narrowing flags shared by upload, verify, and
// dates commands.
type dateFilters struct {
	Status string
	Month  string
	Limit  int
}

func (f *dateFilters) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Status, "status", "", "only dates with this status (completed|today|upcoming)")
	cmd.Flags().StringVar(&f.Month, "month", "", "only dates in this month (YYYY/MM)")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "process at most N dates")
}

// loadDates reads the catalog file, classifies entries against today, and
// applies the narrowing flags.
func loadDates(opts *RootOptions, filters dateFilters) ([]schema.RaceDate, error) {
	entries, err := catalog.LoadDatesFile(opts.DatesFile)
	if err != nil {
		return nil, err
	}
	dates, err := catalog.Classify(entries, schema.DateOf(time.Now()))
	if err != nil {
		return nil, err
	}
	filterOpts := catalog.FilterOptions{Month: filters.Month, Limit: filters.Limit}
	if filters.Status != "" {
		status, err := schema.ParseStatus(filters.Status)
		if err != nil {
			return nil, err
		}
		filterOpts.Status = status
	}
	return catalog.Filter(dates, filterOpts)
}
