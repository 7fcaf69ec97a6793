// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cliparse

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable; the bare name is accepted
// too (TALLY_PORT or PORT).
const EnvPrefix = "tally"

type Config struct {
	Port int `yaml:"port" envconfig:"PORT"`

	// badger, postgres or sqlite
	DatabaseType string `yaml:"database_type" envconfig:"DATABASE_TYPE"`
	DatabaseURL  string `yaml:"database_url" envconfig:"DATABASE_URL"`
	// Badger directory, in-memory when empty
	DataDir string `yaml:"data_dir" envconfig:"DATA_DIR"`

	ActorSalt string `yaml:"actor_salt" envconfig:"ACTOR_SALT"`

	HierarchyPath string `yaml:"hierarchy_path" envconfig:"HIERARCHY_PATH"`
	ElectorsPath  string `yaml:"electors_path" envconfig:"ELECTORS_PATH"`

	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`

	QueueWorkers    int           `yaml:"queue_workers" envconfig:"QUEUE_WORKERS"`
	QueueMaxRetries int           `yaml:"queue_max_retries" envconfig:"QUEUE_MAX_RETRIES"`
	QueueMinBackoff time.Duration `yaml:"queue_min_backoff" envconfig:"QUEUE_MIN_BACKOFF"`
	QueueMaxBackoff time.Duration `yaml:"queue_max_backoff" envconfig:"QUEUE_MAX_BACKOFF"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout" envconfig:"DELIVERY_TIMEOUT"`
	// Deliver propagation inline instead of through the queue
	SyncDelivery bool `yaml:"sync_delivery" envconfig:"SYNC_DELIVERY"`
	// Apply uploads and reviews through the queue
	AsyncIntake bool `yaml:"async_intake" envconfig:"ASYNC_INTAKE"`

	// none, gsu or gcs
	ImageResolver      string `yaml:"image_resolver" envconfig:"IMAGE_RESOLVER"`
	GSUEndpoint        string `yaml:"gsu_endpoint" envconfig:"GSU_ENDPOINT"`
	ImageBucket        string `yaml:"image_bucket" envconfig:"IMAGE_BUCKET"`
	GCSCredentialsFile string `yaml:"gcs_credentials_file" envconfig:"GCS_CREDENTIALS_FILE"`

	TraceExporter string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER"`
	LogLevel      string  `yaml:"log_level" envconfig:"LOG_LEVEL"`
	ActorQPS      float64 `yaml:"actor_qps" envconfig:"ACTOR_QPS"`
	ActorBurst    int     `yaml:"actor_burst" envconfig:"ACTOR_BURST"`

	// Positional arguments left after flag parsing
	Args []string `yaml:"-" ignored:"true"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	return Config{
		Port:            3318,
		DatabaseType:    "badger",
		HierarchyPath:   "data/hierarchy.json",
		QueueWorkers:    6,
		QueueMaxRetries: 5,
		QueueMinBackoff: 60 * time.Second,
		QueueMaxBackoff: time.Hour,
		DeliveryTimeout: 5 * time.Minute,
		ImageResolver:   "none",
		TraceExporter:   "none",
		LogLevel:        "info",
		ActorQPS:        5,
		ActorBurst:      20,
	}
}

func newFlagSet(cfg *Config, configPath, envFile *string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("quickly-tally", pflag.ContinueOnError)

	fs.StringVarP(configPath, "config", "c", *configPath, "YAML config file")
	fs.StringVar(envFile, "env-file", *envFile, "dotenv file, ignored when missing")

	// Network and storage
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "Server port")
	fs.StringVarP(&cfg.DatabaseType, "db-type", "t", cfg.DatabaseType, "Database type (badger, postgres or sqlite)")
	fs.StringVarP(&cfg.DatabaseURL, "database-url", "d", cfg.DatabaseURL, "Database URL for postgres or sqlite")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Badger data directory (in-memory when empty)")
	fs.StringSliceVar(&cfg.AllowedOrigins, "allowed-origins", cfg.AllowedOrigins, "CORS origins")

	// Secrets (prefer env variables, but allow CLI for dev)
	fs.StringVar(&cfg.ActorSalt, "actor-salt", cfg.ActorSalt, "Actor token salt (prefer env)")

	// Reference data
	fs.StringVar(&cfg.HierarchyPath, "hierarchy", cfg.HierarchyPath, "Hierarchy JSON")
	fs.StringVar(&cfg.ElectorsPath, "electors", cfg.ElectorsPath, "Per-village elector JSON")

	// Delivery
	fs.IntVar(&cfg.QueueWorkers, "workers", cfg.QueueWorkers, "Concurrent deliveries")
	fs.IntVar(&cfg.QueueMaxRetries, "max-retries", cfg.QueueMaxRetries, "Retries per task")
	fs.DurationVar(&cfg.QueueMinBackoff, "min-backoff", cfg.QueueMinBackoff, "First retry delay")
	fs.DurationVar(&cfg.QueueMaxBackoff, "max-backoff", cfg.QueueMaxBackoff, "Retry delay ceiling")
	fs.DurationVar(&cfg.DeliveryTimeout, "delivery-timeout", cfg.DeliveryTimeout, "Deadline of one attempt")
	fs.BoolVar(&cfg.SyncDelivery, "sync", cfg.SyncDelivery, "Propagate inline instead of queueing")
	fs.BoolVar(&cfg.AsyncIntake, "async-intake", cfg.AsyncIntake, "Apply uploads through the queue")

	// Images
	fs.StringVar(&cfg.ImageResolver, "image-resolver", cfg.ImageResolver, "Image URL resolver (none, gsu or gcs)")
	fs.StringVar(&cfg.GSUEndpoint, "gsu-endpoint", cfg.GSUEndpoint, "Serving URL endpoint")
	fs.StringVar(&cfg.ImageBucket, "bucket", cfg.ImageBucket, "Image bucket")
	fs.StringVar(&cfg.GCSCredentialsFile, "gcs-credentials", cfg.GCSCredentialsFile, "GCS service account file")

	// Observability and throttling
	fs.StringVar(&cfg.TraceExporter, "trace-exporter", cfg.TraceExporter, "Trace exporter (none or stdout)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	fs.Float64Var(&cfg.ActorQPS, "actor-qps", cfg.ActorQPS, "Requests per second per actor")
	fs.IntVar(&cfg.ActorBurst, "actor-burst", cfg.ActorBurst, "Burst per actor")

	return fs
}

// ParseFlags builds the configuration from defaults, the YAML file, the
// dotenv file, the environment and finally the flags given in args, each
// layer overriding the previous one.
func ParseFlags(args []string) (Config, error) {
	cfg := Defaults()
	configPath, envFile := "", ".env"

	// First pass only locates the config and dotenv files
	scratch := cfg
	pre := newFlagSet(&scratch, &configPath, &envFile)
	if err := pre.Parse(args); err != nil {
		return Config{}, err
	}

	if configPath != "" {
		buf, err := os.ReadFile(configPath)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if envFile != "" {
		// Never overrides variables already set
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid environment: %w", err)
	}

	// Flags bound to the layered values change only what was given
	flags := newFlagSet(&cfg, &configPath, &envFile)
	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.Args = flags.Args()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the combination of settings.
func (c Config) Validate() error {
	// Secrets - MUST be provided
	if c.ActorSalt == "" {
		return errors.New("ACTOR_SALT required")
	}

	switch c.DatabaseType {
	case "badger":
	case "postgres", "sqlite":
		if c.DatabaseURL == "" {
			return errors.New("database URL required (use -d or DATABASE_URL env)")
		}
	default:
		return fmt.Errorf("unknown database type %q", c.DatabaseType)
	}

	if c.QueueWorkers <= 0 {
		return errors.New("queue workers must be positive")
	}
	if c.QueueMaxRetries < 0 {
		return errors.New("queue retries must not be negative")
	}
	if c.QueueMinBackoff <= 0 || c.QueueMaxBackoff < c.QueueMinBackoff {
		return errors.New("queue backoff must be positive and min <= max")
	}
	if c.DeliveryTimeout <= 0 {
		return errors.New("delivery timeout must be positive")
	}

	switch c.ImageResolver {
	case "none":
	case "gsu":
		if c.GSUEndpoint == "" {
			return errors.New("gsu image resolver needs GSU_ENDPOINT")
		}
	case "gcs":
		if c.ImageBucket == "" {
			return errors.New("gcs image resolver needs IMAGE_BUCKET")
		}
	default:
		return fmt.Errorf("unknown image resolver %q", c.ImageResolver)
	}

	switch c.TraceExporter {
	case "none", "stdout":
	default:
		return fmt.Errorf("unknown trace exporter %q", c.TraceExporter)
	}

	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.ActorQPS <= 0 || c.ActorBurst <= 0 {
		return errors.New("actor rate limit must be positive")
	}
	return nil
}

func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return level, nil
}
