package main

import (
	"time"

	"github.com/spf13/cobra"
)

func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vdbload",
		Short: "Load test a vector database",
		Long: `Load test a vector database over its REST API: transactional batch upserts
with a bounded worker pool, timed per transaction, plus an ANN sanity search.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	addPersistentFlags(rootCmd)
	rootCmd.AddCommand(
		NewRunCmd(),
		NewSearchCmd(),
		NewGenerateCmd(),
	)
	return rootCmd
}

func addPersistentFlags(cmd *cobra.Command) {
	def := DefaultConfig()
	f := cmd.PersistentFlags()

	f.String("env-file", "", "Load environment from this file (default ./.env when present)")

	f.String("host", def.Host, "Vector database base URL")
	f.String("username", def.Username, "Login user")
	f.String("password", def.Password, "Login password")
	f.Bool("insecure", def.Insecure, "Skip TLS certificate verification")
	f.Duration("timeout", def.Timeout, "Per-request timeout")
	f.Int("rps", 0, "Client-side request rate limit (0 disables)")

	f.String("collection", def.Collection, "Collection name")
	f.Int("dimension", def.Dimension, "Vector dimension")
	f.Int("batch-size", def.BatchSize, "Vectors per upsert call")
	f.Int("batch-count", def.BatchCount, "Batches per transaction")
	f.Int("txns", def.TxnCount, "Number of transactions")
	f.String("mode", def.Mode, "Synthetic data mode (uniform|clustered)")
	f.Float64("perturbation", def.Perturbation, "Noise amplitude for clustered mode")
	f.Uint64("seed", def.Seed, "Random seed for synthetic vectors")
	f.String("dataset", "", "Read vectors from this Parquet file instead of generating them")
	f.Int("search-k", def.SearchK, "Neighbours requested per sanity query")

	f.String("log-format", def.LogFormat, "Log format (json|console)")
	f.String("log-level", def.LogLevel, "Log level (debug|info|warn|error)")
}

// loadCommandConfig resolves the effective config: defaults, .env,
// environment, then flags the user set explicitly.
func loadCommandConfig(cmd *cobra.Command) (Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := LoadConfig(envFile)
	if err != nil {
		return Config{}, err
	}
	applyFlags(cmd, &cfg)
	if err := ValidateConfig(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *Config) {
	flags := cmd.Flags()
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	num := func(name string, dst *int) {
		if flags.Changed(name) {
			*dst, _ = flags.GetInt(name)
		}
	}
	boolean := func(name string, dst *bool) {
		if flags.Changed(name) {
			*dst, _ = flags.GetBool(name)
		}
	}
	duration := func(name string, dst *time.Duration) {
		if flags.Changed(name) {
			*dst, _ = flags.GetDuration(name)
		}
	}

	str("host", &cfg.Host)
	str("username", &cfg.Username)
	str("password", &cfg.Password)
	boolean("insecure", &cfg.Insecure)
	duration("timeout", &cfg.Timeout)
	num("rps", &cfg.RPS)

	str("collection", &cfg.Collection)
	num("dimension", &cfg.Dimension)
	num("batch-size", &cfg.BatchSize)
	num("batch-count", &cfg.BatchCount)
	num("txns", &cfg.TxnCount)
	str("mode", &cfg.Mode)
	if flags.Changed("perturbation") {
		cfg.Perturbation, _ = flags.GetFloat64("perturbation")
	}
	if flags.Changed("seed") {
		cfg.Seed, _ = flags.GetUint64("seed")
	}
	str("dataset", &cfg.Dataset)
	num("search-k", &cfg.SearchK)

	str("log-format", &cfg.LogFormat)
	str("log-level", &cfg.LogLevel)

	// command-local flags
	num("workers", &cfg.Workers)
	boolean("create-index", &cfg.CreateIndex)
	num("search-queries", &cfg.SearchQueries)
	str("metrics-addr", &cfg.MetricsAddr)
	duration("abort-timeout", &cfg.AbortTimeout)
}
