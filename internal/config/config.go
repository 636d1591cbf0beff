package config

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Registry  RegistryConfig  `yaml:"registry" mapstructure:"registry"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Input     InputConfig     `yaml:"input" mapstructure:"input"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Publish   PublishConfig   `yaml:"publish" mapstructure:"publish"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite, postgres, or none
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RegistryConfig points at an alternative naming registry.
type RegistryConfig struct {
	// Path to a YAML definition. Empty uses the built-in registry.
	Path string `yaml:"path" mapstructure:"path"`
}

// ReconcileConfig tunes the reconciler.
type ReconcileConfig struct {
	Workers         int    `yaml:"workers" mapstructure:"workers"`
	ChunkSize       int    `yaml:"chunk_size" mapstructure:"chunk_size"`
	DuplicatePolicy string `yaml:"duplicate_policy" mapstructure:"duplicate_policy"`
}

// InputConfig describes how cost tables are read.
type InputConfig struct {
	Delimiter string `yaml:"delimiter" mapstructure:"delimiter"`
	Encoding  string `yaml:"encoding" mapstructure:"encoding"`
	Sheet     string `yaml:"sheet" mapstructure:"sheet"`
}

// OutputConfig describes how results are written.
type OutputConfig struct {
	Backup bool `yaml:"backup" mapstructure:"backup"`
	// ReportDir receives report.json and report.md. Empty writes next to
	// the output file.
	ReportDir string `yaml:"report_dir" mapstructure:"report_dir"`
}

// PublishConfig configures writing the canonical table to Postgres.
type PublishConfig struct {
	DatabaseURL string      `yaml:"database_url" mapstructure:"database_url"`
	Table       string      `yaml:"table" mapstructure:"table"`
	Retry       RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// RetryConfig mirrors resilience.RetryConfig in plain values.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TECHMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "techmap.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("registry.path", "")
	v.SetDefault("reconcile.workers", 1)
	v.SetDefault("reconcile.chunk_size", 256)
	v.SetDefault("reconcile.duplicate_policy", "warn")
	v.SetDefault("input.delimiter", ",")
	v.SetDefault("input.encoding", "utf-8")
	v.SetDefault("input.sheet", "")
	v.SetDefault("output.backup", true)
	v.SetDefault("output.report_dir", "")
	v.SetDefault("publish.database_url", "")
	v.SetDefault("publish.table", "technology_costs")
	v.SetDefault("publish.retry.max_attempts", 4)
	v.SetDefault("publish.retry.initial_backoff_ms", 250)
	v.SetDefault("publish.retry.max_backoff_ms", 10000)
	v.SetDefault("publish.retry.multiplier", 2.0)
	v.SetDefault("publish.retry.jitter_fraction", 0.2)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks values that Load cannot type-check.
func (c *Config) Validate() error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite", "none":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, "store.driver must be sqlite, postgres, or none, got "+strconv.Quote(c.Store.Driver))
	}

	switch strings.ToLower(c.Reconcile.DuplicatePolicy) {
	case "", "warn", "fail":
	default:
		problems = append(problems, "reconcile.duplicate_policy must be warn or fail, got "+strconv.Quote(c.Reconcile.DuplicatePolicy))
	}
	if c.Reconcile.Workers < 0 || c.Reconcile.Workers > 64 {
		problems = append(problems, "reconcile.workers must be between 0 and 64")
	}

	if _, err := c.Input.DelimiterRune(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid: %s", strings.Join(problems, "; "))
	}
	return nil
}

// DelimiterRune returns the configured field delimiter. "\t" and "tab" both
// select a tab.
func (c InputConfig) DelimiterRune() (rune, error) {
	switch c.Delimiter {
	case "":
		return ',', nil
	case `\t`, "tab":
		return '\t', nil
	}
	if utf8.RuneCountInString(c.Delimiter) != 1 {
		return 0, eris.Errorf("input.delimiter must be a single character, got %s", strconv.Quote(c.Delimiter))
	}
	r, _ := utf8.DecodeRuneInString(c.Delimiter)
	return r, nil
}

// PublishURL returns the publish database URL, falling back to the store's
// when the store is Postgres.
func (c *Config) PublishURL() string {
	if c.Publish.DatabaseURL != "" {
		return c.Publish.DatabaseURL
	}
	if c.Store.Driver == "postgres" {
		return c.Store.DatabaseURL
	}
	return ""
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
