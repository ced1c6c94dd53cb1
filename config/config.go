package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"triage/internal/domain"
)

// Config holds all configuration for the triage service.
type Config struct {
	Embedding  EmbeddingConfig   `yaml:"embedding"`
	Cache      CacheConfig       `yaml:"cache"`
	Provider   ProviderConfig    `yaml:"provider"`
	Retry      RetryConfig       `yaml:"retry"`
	Store      StoreConfig       `yaml:"store"`
	Worker     WorkerConfig      `yaml:"worker"`
	Ingest     IngestConfig      `yaml:"ingest"`
	Categories []domain.Category `yaml:"categories"`
	Logging    LoggingConfig     `yaml:"logging"`
	Metrics    MetricsConfig     `yaml:"metrics"`
}

// EmbeddingConfig selects the embedding model. Changing provider, model or
// dimension invalidates the stored memory.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // "hashing", "openai", "ollama"
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"`
	Dimension int    `yaml:"dimension"` // 0 uses the model default
}

// CacheConfig tunes the semantic cache.
type CacheConfig struct {
	Threshold      float64       `yaml:"threshold"`  // hit when nearest distance <= threshold; negative disables the cache
	FewShotK       int           `yaml:"few_shot_k"` // examples handed to the provider on a miss
	EmbedCacheSize int           `yaml:"embed_cache_size"`
	EmbedCacheTTL  time.Duration `yaml:"embed_cache_ttl"`
	MaxExampleLen  int           `yaml:"max_example_chars"`
}

type ProviderConfig struct {
	Name        string        `yaml:"name"` // "ollama", "anthropic", "openai"
	Model       string        `yaml:"model"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
}

type RetryConfig struct {
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	MaxAttempts int           `yaml:"max_attempts"`
}

type StoreConfig struct {
	Backend string `yaml:"backend"` // "bolt", "sqlite", "memory"
	Dir     string `yaml:"dir"`     // relative paths resolve against the root directory
}

type WorkerConfig struct {
	Concurrency   int    `yaml:"concurrency"`
	SweepSchedule string `yaml:"sweep_schedule"` // cron spec, seconds field optional
	SweepBatch    int    `yaml:"sweep_batch"`
}

// IngestConfig selects inbox files for batch ingestion.
type IngestConfig struct {
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // "json" or "console"
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// MetricsConfig controls the Prometheus registry. Metrics are written in the
// text exposition format to Textfile when a command exits, for pickup by a
// node_exporter textfile collector.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Textfile  string `yaml:"textfile"` // default <store.dir>/metrics.prom
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:  "hashing",
			Model:     "hashing",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 0,
		},
		Cache: CacheConfig{
			Threshold:      0.5,
			FewShotK:       3,
			EmbedCacheSize: 1024,
			EmbedCacheTTL:  time.Hour,
			MaxExampleLen:  500,
		},
		Provider: ProviderConfig{
			Name:        "ollama",
			Model:       "llama3",
			APIKeyEnv:   "ANTHROPIC_API_KEY",
			Timeout:     60 * time.Second,
			Temperature: 0,
			MaxTokens:   64,
		},
		Retry: RetryConfig{
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    30 * time.Second,
			MaxAttempts: 5,
		},
		Store: StoreConfig{
			Backend: "bolt",
			Dir:     ".triage",
		},
		Worker: WorkerConfig{
			Concurrency:   4,
			SweepSchedule: "@every 1m",
			SweepBatch:    100,
		},
		Ingest: IngestConfig{
			Includes: []string{"**/*.txt", "**/*.eml", "**/*.md", "**/*.jsonl"},
			Excludes: []string{"**/.git/**", "**/.triage/**", "**/processed/**"},
		},
		Categories: []domain.Category{
			{Name: "Hardware", Description: "Laptops, monitors, printers, peripherals and other physical devices"},
			{Name: "Software", Description: "Application errors, installs, updates and licensing"},
			{Name: "Network", Description: "VPN, Wi-Fi, connectivity, DNS and bandwidth"},
			{Name: "Access", Description: "Accounts, passwords, permissions and MFA"},
			{Name: "Security", Description: "Phishing, malware, suspicious activity and data exposure"},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "triage",
		},
	}
}

// Load loads configuration from a YAML file and applies environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for triage.yaml,
// then .triage/config.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "triage.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".triage", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return Load(filepath.Join(dir, "triage.yaml"))
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Cache.Threshold > 2:
		return fmt.Errorf("cache.threshold must not exceed 2, got %v", c.Cache.Threshold)
	case c.Cache.FewShotK < 0:
		return fmt.Errorf("cache.few_shot_k must not be negative, got %d", c.Cache.FewShotK)
	case c.Retry.MaxAttempts < 1:
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	case c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < c.Retry.BaseDelay:
		return fmt.Errorf("retry delays must satisfy 0 <= base_delay <= max_delay")
	case c.Worker.Concurrency < 1:
		return fmt.Errorf("worker.concurrency must be at least 1, got %d", c.Worker.Concurrency)
	}
	switch c.Store.Backend {
	case "bolt", "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported store backend: %s", c.Store.Backend)
	}
	if _, err := domain.NewCategorySet(c.Categories); err != nil {
		return fmt.Errorf("categories: %w", err)
	}
	return nil
}

// CategorySet returns the configured categories. Validate has already
// rejected an unusable list.
func (c *Config) CategorySet() (domain.CategorySet, error) {
	return domain.NewCategorySet(c.Categories)
}

// DataDir resolves the store directory against root.
func (c *Config) DataDir(root string) string {
	if filepath.IsAbs(c.Store.Dir) {
		return c.Store.Dir
	}
	return filepath.Join(root, c.Store.Dir)
}

// EnsureDataDir ensures the store directory exists.
func (c *Config) EnsureDataDir(root string) error {
	return os.MkdirAll(c.DataDir(root), 0755)
}

func (c *Config) applyEnv() error {
	envOverride(&c.Embedding.Provider, "TRIAGE_EMBEDDING_PROVIDER")
	envOverride(&c.Embedding.Model, "TRIAGE_EMBEDDING_MODEL")
	envOverride(&c.Embedding.BaseURL, "TRIAGE_EMBEDDING_BASE_URL")
	envOverride(&c.Provider.Name, "TRIAGE_PROVIDER")
	envOverride(&c.Provider.Model, "TRIAGE_MODEL")
	envOverride(&c.Provider.BaseURL, "TRIAGE_PROVIDER_BASE_URL")
	envOverride(&c.Store.Backend, "TRIAGE_STORE")
	envOverride(&c.Store.Dir, "TRIAGE_DATA_DIR")
	envOverride(&c.Logging.Level, "TRIAGE_LOG_LEVEL")
	envOverride(&c.Worker.SweepSchedule, "TRIAGE_SWEEP_SCHEDULE")

	if err := envOverrideFloat(&c.Cache.Threshold, "TRIAGE_THRESHOLD"); err != nil {
		return err
	}
	if err := envOverrideInt(&c.Cache.FewShotK, "TRIAGE_FEW_SHOT_K"); err != nil {
		return err
	}
	if err := envOverrideInt(&c.Retry.MaxAttempts, "TRIAGE_MAX_ATTEMPTS"); err != nil {
		return err
	}
	if err := envOverrideInt(&c.Worker.Concurrency, "TRIAGE_CONCURRENCY"); err != nil {
		return err
	}
	if err := envOverrideDuration(&c.Retry.BaseDelay, "TRIAGE_RETRY_BASE_DELAY"); err != nil {
		return err
	}
	return envOverrideDuration(&c.Retry.MaxDelay, "TRIAGE_RETRY_MAX_DELAY")
}

func envOverride(field *string, envKey string) {
	if val := strings.TrimSpace(os.Getenv(envKey)); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideFloat(field *float64, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideDuration(field *time.Duration, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}
