package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/23skdu/vdbload/internal/dataset"
	"github.com/23skdu/vdbload/internal/limiter"
	"github.com/23skdu/vdbload/internal/logging"
)

// envPrefix is prepended to every environment variable, e.g. VDBLOAD_HOST.
const envPrefix = "VDBLOAD"

// Config validation errors
var (
	ErrInvalidHost         = errors.New("host must be an http or https URL")
	ErrInvalidCollection   = errors.New("collection cannot be empty")
	ErrInvalidDimension    = errors.New("dimension must be positive")
	ErrInvalidBatchSize    = errors.New("batch_size must be positive")
	ErrInvalidBatchCount   = errors.New("batch_count must be positive")
	ErrInvalidTxnCount     = errors.New("txn_count must not be negative")
	ErrInvalidWorkers      = errors.New("workers must be at least 1")
	ErrInvalidPerturbation = errors.New("perturbation must be within [0, 2]")
	ErrInvalidMode         = errors.New("mode must be 'uniform' or 'clustered'")
	ErrInvalidLogFormat    = errors.New("log_format must be 'json' or 'console'")
	ErrInvalidLogLevel     = errors.New("log_level must be debug, info, warn, or error")
	ErrInvalidSearchK      = errors.New("search_k must be positive")
)

// Config holds every setting of a load run. Values come from defaults, an
// optional .env file, VDBLOAD_* environment variables and finally flags.
//
// Field names map to variables through split_words (BatchSize reads
// VDBLOAD_BATCH_SIZE). Leaf fields carry no envconfig tag: a tagged field
// would also be read from its unprefixed name when the prefixed one is unset.
type Config struct {
	Host     string        `split_words:"true" default:"http://127.0.0.1:8443"`
	Username string        `split_words:"true" default:"admin"`
	Password string        `split_words:"true" default:"admin"`
	Insecure bool          `split_words:"true" default:"true"` // skip TLS verification
	Timeout  time.Duration `split_words:"true" default:"60s"`

	Collection  string `split_words:"true" default:"testdb"`
	Description string `split_words:"true" default:"Test collection for vector database"`
	CreateIndex bool   `split_words:"true" default:"false"`

	Dimension    int     `split_words:"true" default:"1024"`
	BatchSize    int     `split_words:"true" default:"256"`
	BatchCount   int     `split_words:"true" default:"977"`
	TxnCount     int     `split_words:"true" default:"2"`
	Workers      int     `split_words:"true" default:"64"`
	Mode         string  `split_words:"true" default:"uniform"`
	Perturbation float64 `split_words:"true" default:"0.25"`
	Seed         uint64  `split_words:"true" default:"1"`
	// Dataset is a Parquet file to read vectors from instead of generating them.
	Dataset string `split_words:"true"`

	AbortTimeout time.Duration `split_words:"true" default:"30s"`

	SearchK       int `split_words:"true" default:"5"`
	SearchQueries int `split_words:"true" default:"5"` // 0 disables the sanity check after a run

	LogFormat   string `split_words:"true" default:"json"`
	LogLevel    string `split_words:"true" default:"info"`
	MetricsAddr string `split_words:"true"` // empty disables /metrics

	limiter.Config `envconfig:"RATE_LIMIT"`
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		Host:          "http://127.0.0.1:8443",
		Username:      "admin",
		Password:      "admin",
		Insecure:      true,
		Timeout:       60 * time.Second,
		Collection:    "testdb",
		Description:   "Test collection for vector database",
		Dimension:     1024,
		BatchSize:     256,
		BatchCount:    977,
		TxnCount:      2,
		Workers:       64,
		Mode:          string(dataset.ModeUniform),
		Perturbation:  0.25,
		Seed:          1,
		AbortTimeout:  30 * time.Second,
		SearchK:       5,
		SearchQueries: 5,
		LogFormat:     "json",
		LogLevel:      "info",
	}
}

// LoadConfig reads envFile (or ./.env when envFile is empty and the file
// exists) into the environment and then processes VDBLOAD_* variables.
// Variables already set in the environment win over the file.
func LoadConfig(envFile string) (Config, error) {
	switch {
	case envFile != "":
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	default:
		if _, err := os.Stat(".env"); err == nil {
			if err := godotenv.Load(); err != nil {
				return Config{}, fmt.Errorf("load .env: %w", err)
			}
		}
	}

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}
	return cfg, nil
}

// ValidateConfig validates the configuration and returns an error if invalid
func ValidateConfig(cfg *Config) error {
	u, err := url.Parse(cfg.Host)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidHost
	}
	if cfg.Collection == "" {
		return ErrInvalidCollection
	}
	if cfg.Dimension <= 0 {
		return ErrInvalidDimension
	}
	if cfg.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if cfg.BatchCount <= 0 {
		return ErrInvalidBatchCount
	}
	if cfg.TxnCount < 0 {
		return ErrInvalidTxnCount
	}
	if cfg.Workers < 1 {
		return ErrInvalidWorkers
	}
	if cfg.Perturbation < 0 || cfg.Perturbation > 2 {
		return ErrInvalidPerturbation
	}
	if _, err := dataset.ParseMode(cfg.Mode); err != nil {
		return ErrInvalidMode
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return ErrInvalidLogFormat
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil || cfg.LogLevel == "" {
		return ErrInvalidLogLevel
	}
	if cfg.SearchK <= 0 {
		return ErrInvalidSearchK
	}
	return nil
}

// PerTransaction is the number of vectors in one transaction.
func (c *Config) PerTransaction() int {
	return c.BatchCount * c.BatchSize
}

// Generator builds the synthetic vector source described by the config.
func (c *Config) Generator() *dataset.Generator {
	return &dataset.Generator{
		Dimension:    c.Dimension,
		BatchCount:   c.BatchCount,
		BatchSize:    c.BatchSize,
		Mode:         dataset.Mode(c.Mode),
		Perturbation: c.Perturbation,
		Seed:         c.Seed,
	}
}

// LoggingConfig maps the log settings onto internal/logging.
func (c *Config) LoggingConfig() logging.Config {
	lc := logging.DefaultConfig()
	lc.Format = c.LogFormat
	lc.Level = c.LogLevel
	return lc
}
