package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Unit tests for config.go

func TestValidateConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := ValidateConfig(&cfg); err != nil {
		t.Errorf("ValidateConfig() error = %v, want nil", err)
	}
}

func TestValidateConfig_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"empty host", func(c *Config) { c.Host = "" }, ErrInvalidHost},
		{"host without scheme", func(c *Config) { c.Host = "127.0.0.1:8443" }, ErrInvalidHost},
		{"ftp host", func(c *Config) { c.Host = "ftp://example.com" }, ErrInvalidHost},
		{"empty collection", func(c *Config) { c.Collection = "" }, ErrInvalidCollection},
		{"zero dimension", func(c *Config) { c.Dimension = 0 }, ErrInvalidDimension},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }, ErrInvalidBatchSize},
		{"negative batch count", func(c *Config) { c.BatchCount = -1 }, ErrInvalidBatchCount},
		{"negative txn count", func(c *Config) { c.TxnCount = -1 }, ErrInvalidTxnCount},
		{"zero workers", func(c *Config) { c.Workers = 0 }, ErrInvalidWorkers},
		{"negative perturbation", func(c *Config) { c.Perturbation = -0.5 }, ErrInvalidPerturbation},
		{"huge perturbation", func(c *Config) { c.Perturbation = 3 }, ErrInvalidPerturbation},
		{"unknown mode", func(c *Config) { c.Mode = "gaussian" }, ErrInvalidMode},
		{"xml log format", func(c *Config) { c.LogFormat = "xml" }, ErrInvalidLogFormat},
		{"trace log level", func(c *Config) { c.LogLevel = "trace" }, ErrInvalidLogLevel},
		{"empty log level", func(c *Config) { c.LogLevel = "" }, ErrInvalidLogLevel},
		{"zero search k", func(c *Config) { c.SearchK = 0 }, ErrInvalidSearchK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := ValidateConfig(&cfg); err != tt.want {
				t.Errorf("ValidateConfig() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateConfig_ZeroTransactionsAllowed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TxnCount = 0
	if err := ValidateConfig(&cfg); err != nil {
		t.Errorf("ValidateConfig() error = %v, want nil", err)
	}
}

func TestValidateConfig_ValidLogFormats(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		cfg := DefaultConfig()
		cfg.LogFormat = format
		if err := ValidateConfig(&cfg); err != nil {
			t.Errorf("ValidateConfig() with format %q error = %v", format, err)
		}
	}
}

func TestDefaultConfig_ReferenceRun(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.PerTransaction(); got != 977*256 {
		t.Errorf("PerTransaction() = %d, want %d", got, 977*256)
	}
	if got := cfg.TxnCount * cfg.PerTransaction(); got != 500_224 {
		t.Errorf("total vectors = %d, want 500224", got)
	}
	if cfg.Workers != 64 {
		t.Errorf("Workers = %d, want 64", cfg.Workers)
	}
}

func TestLoadConfig_DefaultsMatchDefaultConfig(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg != DefaultConfig() {
		t.Errorf("LoadConfig() = %+v, want %+v", cfg, DefaultConfig())
	}
}

func TestLoadConfig_EnvVars(t *testing.T) {
	t.Setenv("VDBLOAD_HOST", "https://vdb.example.com:8443")
	t.Setenv("VDBLOAD_COLLECTION", "bench")
	t.Setenv("VDBLOAD_DIMENSION", "128")
	t.Setenv("VDBLOAD_WORKERS", "8")
	t.Setenv("VDBLOAD_MODE", "clustered")
	t.Setenv("VDBLOAD_TIMEOUT", "5s")
	t.Setenv("VDBLOAD_SEED", "99")
	t.Setenv("VDBLOAD_RATE_LIMIT_RPS", "100")
	t.Setenv("VDBLOAD_RATE_LIMIT_BURST", "10")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Host != "https://vdb.example.com:8443" {
		t.Errorf("Host = %q", cfg.Host)
	}
	if cfg.Collection != "bench" {
		t.Errorf("Collection = %q", cfg.Collection)
	}
	if cfg.Dimension != 128 {
		t.Errorf("Dimension = %d, want 128", cfg.Dimension)
	}
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Workers)
	}
	if cfg.Mode != "clustered" {
		t.Errorf("Mode = %q", cfg.Mode)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Timeout)
	}
	if cfg.Seed != 99 {
		t.Errorf("Seed = %d, want 99", cfg.Seed)
	}
	if cfg.RPS != 100 || cfg.Burst != 10 {
		t.Errorf("rate limit = %d/%d, want 100/10", cfg.RPS, cfg.Burst)
	}
	if err := ValidateConfig(&cfg); err != nil {
		t.Errorf("ValidateConfig() error = %v", err)
	}
}

func TestLoadConfig_IgnoresUnprefixedEnvVars(t *testing.T) {
	t.Setenv("USERNAME", "alice")
	t.Setenv("PASSWORD", "secret")
	t.Setenv("HOST", "http://elsewhere:1")
	t.Setenv("MODE", "bogus")
	t.Setenv("TIMEOUT", "1s")
	t.Setenv("SEED", "7")
	t.Setenv("RPS", "5")
	t.Setenv("RATE_LIMIT_RPS", "5")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg != DefaultConfig() {
		t.Errorf("LoadConfig() = %+v, want defaults %+v", cfg, DefaultConfig())
	}
}

func TestLoadConfig_SplitWordNames(t *testing.T) {
	t.Setenv("VDBLOAD_TXN_COUNT", "3")
	t.Setenv("VDBLOAD_SEARCH_K", "9")
	t.Setenv("VDBLOAD_ABORT_TIMEOUT", "2s")
	t.Setenv("VDBLOAD_CREATE_INDEX", "true")
	t.Setenv("VDBLOAD_METRICS_ADDR", ":9100")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.TxnCount != 3 || cfg.SearchK != 9 {
		t.Errorf("TxnCount/SearchK = %d/%d, want 3/9", cfg.TxnCount, cfg.SearchK)
	}
	if cfg.AbortTimeout != 2*time.Second {
		t.Errorf("AbortTimeout = %v, want 2s", cfg.AbortTimeout)
	}
	if !cfg.CreateIndex || cfg.MetricsAddr != ":9100" {
		t.Errorf("CreateIndex/MetricsAddr = %v/%q", cfg.CreateIndex, cfg.MetricsAddr)
	}
}

func TestLoadConfig_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "VDBLOAD_COLLECTION=fromfile\nVDBLOAD_BATCH_SIZE=64\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	// the process environment wins over the file
	t.Setenv("VDBLOAD_BATCH_SIZE", "32")
	t.Cleanup(func() { _ = os.Unsetenv("VDBLOAD_COLLECTION") })

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Collection != "fromfile" {
		t.Errorf("Collection = %q, want fromfile", cfg.Collection)
	}
	if cfg.BatchSize != 32 {
		t.Errorf("BatchSize = %d, want 32", cfg.BatchSize)
	}
}

func TestLoadConfig_MissingEnvFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("LoadConfig() with missing file should fail")
	}
}

func TestLoadConfig_BadValue(t *testing.T) {
	t.Setenv("VDBLOAD_DIMENSION", "lots")
	if _, err := LoadConfig(""); err == nil {
		t.Error("LoadConfig() with non-numeric dimension should fail")
	}
}

func TestConfig_Generator(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = "clustered"
	g := cfg.Generator()
	if g.Dimension != cfg.Dimension || g.BatchCount != cfg.BatchCount || g.BatchSize != cfg.BatchSize {
		t.Errorf("Generator() shape = %d/%d/%d", g.Dimension, g.BatchCount, g.BatchSize)
	}
	if string(g.Mode) != "clustered" || g.Perturbation != cfg.Perturbation || g.Seed != cfg.Seed {
		t.Errorf("Generator() = %+v", g)
	}
	if err := g.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}
