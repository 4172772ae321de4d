package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileSettings mirrors the YAML configuration document. Zero values leave the
// corresponding Settings field untouched.
type fileSettings struct {
	Environment string `yaml:"environment"`
	Source      struct {
		BaseURL       string        `yaml:"baseUrl"`
		HTTPTimeout   time.Duration `yaml:"httpTimeout"`
		RatePerSecond float64       `yaml:"ratePerSecond"`
		RateBurst     int           `yaml:"rateBurst"`
		RetentionDays int           `yaml:"retentionDays"`
	} `yaml:"source"`
	Sink struct {
		Kind       string `yaml:"kind"`
		PocketBase struct {
			URL         string        `yaml:"url"`
			Email       string        `yaml:"email"`
			Password    string        `yaml:"password"`
			HTTPTimeout time.Duration `yaml:"httpTimeout"`
		} `yaml:"pocketbase"`
		Postgres struct {
			DSN string `yaml:"dsn"`
		} `yaml:"postgres"`
		RatePerSecond float64 `yaml:"ratePerSecond"`
		RateBurst     int     `yaml:"rateBurst"`
	} `yaml:"sink"`
	Runner struct {
		Workers     int           `yaml:"workers"`
		QueueDepth  int           `yaml:"queueDepth"`
		MaxAttempts int           `yaml:"maxAttempts"`
		BaseBackoff time.Duration `yaml:"baseBackoff"`
		MaxBackoff  time.Duration `yaml:"maxBackoff"`
	} `yaml:"runner"`
}

// LoadOrDefault reads YAML configuration from path layered over FromEnv
// defaults. The second return reports whether the file existed.
func LoadOrDefault(path string) (Settings, bool, error) {
	cfg := FromEnv()
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, false, nil
		}
		return cfg, false, fmt.Errorf("read config %s: %w", path, err)
	}

	var file fileSettings
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return cfg, true, fmt.Errorf("parse config %s: %w", path, err)
	}

	merge(&cfg, file)
	return cfg, true, nil
}

func merge(cfg *Settings, file fileSettings) {
	if file.Environment != "" {
		cfg.Environment = Environment(file.Environment)
	}
	if file.Source.BaseURL != "" {
		cfg.Source.BaseURL = file.Source.BaseURL
	}
	if file.Source.HTTPTimeout > 0 {
		cfg.Source.HTTPTimeout = file.Source.HTTPTimeout
	}
	if file.Source.RatePerSecond > 0 {
		cfg.Source.RatePerSecond = file.Source.RatePerSecond
	}
	if file.Source.RateBurst > 0 {
		cfg.Source.RateBurst = file.Source.RateBurst
	}
	if file.Source.RetentionDays > 0 {
		cfg.Source.RetentionDays = file.Source.RetentionDays
	}
	if file.Sink.Kind != "" {
		cfg.Sink.Kind = SinkKind(file.Sink.Kind)
	}
	if file.Sink.PocketBase.URL != "" {
		cfg.Sink.PocketBase.URL = file.Sink.PocketBase.URL
	}
	if file.Sink.PocketBase.Email != "" {
		cfg.Sink.PocketBase.Credentials.Email = file.Sink.PocketBase.Email
	}
	if file.Sink.PocketBase.Password != "" {
		cfg.Sink.PocketBase.Credentials.Password = file.Sink.PocketBase.Password
	}
	if file.Sink.PocketBase.HTTPTimeout > 0 {
		cfg.Sink.PocketBase.HTTPTimeout = file.Sink.PocketBase.HTTPTimeout
	}
	if file.Sink.Postgres.DSN != "" {
		cfg.Sink.Postgres.DSN = file.Sink.Postgres.DSN
	}
	if file.Sink.RatePerSecond > 0 {
		cfg.Sink.RatePerSecond = file.Sink.RatePerSecond
	}
	if file.Sink.RateBurst > 0 {
		cfg.Sink.RateBurst = file.Sink.RateBurst
	}
	if file.Runner.Workers > 0 {
		cfg.Runner.Workers = file.Runner.Workers
	}
	if file.Runner.QueueDepth > 0 {
		cfg.Runner.QueueDepth = file.Runner.QueueDepth
	}
	if file.Runner.MaxAttempts > 0 {
		cfg.Runner.MaxAttempts = file.Runner.MaxAttempts
	}
	if file.Runner.BaseBackoff > 0 {
		cfg.Runner.BaseBackoff = file.Runner.BaseBackoff
	}
	if file.Runner.MaxBackoff > 0 {
		cfg.Runner.MaxBackoff = file.Runner.MaxBackoff
	}
}
