// Package config centralises runtime configuration helpers for racesync services.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment identifies the runtime environment where racesync operates.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

// SinkKind names a destination store implementation.
type SinkKind string

const (
	// SinkMemory selects the in-memory destination, used for tests and dry runs.
	SinkMemory SinkKind = "memory"
	// SinkPocketBase selects the PocketBase REST destination.
	SinkPocketBase SinkKind = "pocketbase"
	// SinkPostgres selects the Postgres document destination.
	SinkPostgres SinkKind = "postgres"
)

// Credentials captures destination credentials used for authenticated requests.
type Credentials struct {
	Email    string
	Password string
}

// SourceSettings configures the upstream results source.
type SourceSettings struct {
	BaseURL       string
	HTTPTimeout   time.Duration
	RatePerSecond float64
	RateBurst     int
	RetentionDays int
}

// PocketBaseSettings configures the PocketBase destination.
type PocketBaseSettings struct {
	URL         string
	Credentials Credentials
	HTTPTimeout time.Duration
}

// PostgresSettings configures the Postgres destination.
type PostgresSettings struct {
	DSN string
}

// SinkSettings aggregates destination transport configuration.
type SinkSettings struct {
	Kind          SinkKind
	PocketBase    PocketBaseSettings
	Postgres      PostgresSettings
	RatePerSecond float64
	RateBurst     int
}

// RunnerSettings bounds pipeline concurrency and retry behaviour.
type RunnerSettings struct {
	Workers     int
	QueueDepth  int
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Settings contains the racesync configuration tree loaded from defaults and overrides.
type Settings struct {
	Environment Environment
	Source      SourceSettings
	Sink        SinkSettings
	Runner      RunnerSettings
}

// Default returns the default racesync configuration.
func Default() Settings {
	return Settings{
		Environment: EnvProd,
		Source: SourceSettings{
			BaseURL:       "https://racing.hkjc.com",
			HTTPTimeout:   30 * time.Second,
			RatePerSecond: 2,
			RateBurst:     1,
			RetentionDays: 60,
		},
		Sink: SinkSettings{
			Kind: SinkPocketBase,
			PocketBase: PocketBaseSettings{
				URL:         "http://127.0.0.1:8090",
				Credentials: Credentials{Email: "", Password: ""},
				HTTPTimeout: 15 * time.Second,
			},
			Postgres:      PostgresSettings{DSN: ""},
			RatePerSecond: 10,
			RateBurst:     4,
		},
		Runner: RunnerSettings{
			Workers:     4,
			QueueDepth:  32,
			MaxAttempts: 5,
			BaseBackoff: 500 * time.Millisecond,
			MaxBackoff:  30 * time.Second,
		},
	}
}

// FromEnv loads configuration values from environment variables, overriding defaults.
func FromEnv() Settings {
	cfg := Default()
	if env := strings.TrimSpace(os.Getenv("RACESYNC_ENV")); env != "" {
		cfg.Environment = Environment(strings.ToLower(env))
	}
	if v := strings.TrimSpace(os.Getenv("RACESYNC_SOURCE_BASE_URL")); v != "" {
		cfg.Source.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("RACESYNC_SOURCE_TIMEOUT")); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			cfg.Source.HTTPTimeout = dur
		}
	}
	if v := strings.TrimSpace(os.Getenv("RACESYNC_SOURCE_RATE")); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil && rate > 0 {
			cfg.Source.RatePerSecond = rate
		}
	}
	if v := strings.TrimSpace(os.Getenv("RACESYNC_SINK")); v != "" {
		cfg.Sink.Kind = SinkKind(strings.ToLower(v))
	}
	if v := strings.TrimSpace(os.Getenv("POCKETBASE_URL")); v != "" {
		cfg.Sink.PocketBase.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("POCKETBASE_EMAIL")); v != "" {
		cfg.Sink.PocketBase.Credentials.Email = v
	}
	if v := strings.TrimSpace(os.Getenv("POCKETBASE_PASSWORD")); v != "" {
		cfg.Sink.PocketBase.Credentials.Password = v
	}
	if v := strings.TrimSpace(os.Getenv("RACESYNC_PG_DSN")); v != "" {
		cfg.Sink.Postgres.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("RACESYNC_SINK_RATE")); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil && rate > 0 {
			cfg.Sink.RatePerSecond = rate
		}
	}
	if v := strings.TrimSpace(os.Getenv("RACESYNC_WORKERS")); v != "" {
		if workers, err := strconv.Atoi(v); err == nil && workers > 0 {
			cfg.Runner.Workers = workers
		}
	}
	if v := strings.TrimSpace(os.Getenv("RACESYNC_MAX_ATTEMPTS")); v != "" {
		if attempts, err := strconv.Atoi(v); err == nil && attempts > 0 {
			cfg.Runner.MaxAttempts = attempts
		}
	}
	return cfg
}

// Option mutates Settings when applied via Apply.
type Option func(*Settings)

// Apply applies the provided Option set to a copy of the base Settings.
func Apply(base Settings, opts ...Option) Settings {
	cfg := base
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithEnvironment configures the top-level environment.
func WithEnvironment(env Environment) Option {
	return func(s *Settings) {
		if env != "" {
			s.Environment = env
		}
	}
}

// WithSourceBaseURL overrides the upstream base URL.
func WithSourceBaseURL(baseURL string) Option {
	trimmed := strings.TrimSpace(baseURL)
	return func(s *Settings) {
		if trimmed != "" {
			s.Source.BaseURL = trimmed
		}
	}
}

// WithSinkKind selects the destination store implementation.
func WithSinkKind(kind SinkKind) Option {
	return func(s *Settings) {
		if kind != "" {
			s.Sink.Kind = kind
		}
	}
}

// WithPocketBase overrides the PocketBase endpoint and credentials.
func WithPocketBase(url, email, password string) Option {
	url = strings.TrimSpace(url)
	email = strings.TrimSpace(email)
	password = strings.TrimSpace(password)
	return func(s *Settings) {
		if url != "" {
			s.Sink.PocketBase.URL = url
		}
		if email != "" {
			s.Sink.PocketBase.Credentials.Email = email
		}
		if password != "" {
			s.Sink.PocketBase.Credentials.Password = password
		}
	}
}

// WithPostgresDSN overrides the Postgres destination DSN.
func WithPostgresDSN(dsn string) Option {
	trimmed := strings.TrimSpace(dsn)
	return func(s *Settings) {
		if trimmed != "" {
			s.Sink.Postgres.DSN = trimmed
		}
	}
}

// WithWorkers overrides the pipeline worker count.
func WithWorkers(workers int) Option {
	return func(s *Settings) {
		if workers > 0 {
			s.Runner.Workers = workers
		}
	}
}

// WithRetry overrides retry bounds for the upload reconciler.
func WithRetry(maxAttempts int, base, max time.Duration) Option {
	return func(s *Settings) {
		if maxAttempts > 0 {
			s.Runner.MaxAttempts = maxAttempts
		}
		if base > 0 {
			s.Runner.BaseBackoff = base
		}
		if max > 0 {
			s.Runner.MaxBackoff = max
		}
	}
}
