package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// expandTilde expands ~ or ~/ at the start of a path to the user's home directory
func expandTilde(path string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// Config holds all configuration for the partition migration tool
type Config struct {
	Database   DatabaseConfig  `yaml:"database"`
	Tables     TablesConfig    `yaml:"tables"`
	Partitions PartitionConfig `yaml:"partitions"`
	Migration  MigrationConfig `yaml:"migration"`
	Benchmark  BenchmarkConfig `yaml:"benchmark"`
	Slack      SlackConfig     `yaml:"slack"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"` // disable, require, verify-ca, verify-full (default: require)
	MaxConns int    `yaml:"max_conns"`
}

// TablesConfig names the monolithic source and partitioned destination
type TablesConfig struct {
	Schema      string `yaml:"schema"`
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
}

// PartitionConfig controls partition provisioning
type PartitionConfig struct {
	Start string `yaml:"start"` // first period, YYYY-MM
	Count int    `yaml:"count"` // number of consecutive periods
	Unit  string `yaml:"unit"`  // only "month" is supported
}

// MigrationConfig holds migration behavior settings
type MigrationConfig struct {
	BatchSize           int    `yaml:"batch_size"`
	DataDir             string `yaml:"data_dir"`
	AdvisoryLockKey     int64  `yaml:"advisory_lock_key"`
	TruncateDestination bool   `yaml:"truncate_destination"` // clear destination before a fresh run
}

// BenchmarkConfig holds latency benchmark settings
type BenchmarkConfig struct {
	WarmupRuns   int `yaml:"warmup_runs"`
	MeasuredRuns int `yaml:"measured_runs"`
}

// SlackConfig holds Slack notification settings
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
	Username   string `yaml:"username"`
	Enabled    bool   `yaml:"enabled"`
}

// LoadOptions controls configuration loading behavior.
type LoadOptions struct {
	SuppressWarnings bool
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	return LoadWithOptions(path, LoadOptions{})
}

// LoadWithOptions reads configuration from a YAML file with options.
func LoadWithOptions(path string, opts LoadOptions) (*Config, error) {
	// Check file permissions before reading (warns if insecure)
	if warning := checkFilePermissions(path); warning != "" && !opts.SuppressWarnings {
		fmt.Fprint(os.Stderr, warning)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return LoadBytes(data)
}

// LoadBytes reads configuration from YAML bytes.
func LoadBytes(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// DefaultDataDir returns the default data directory for run state storage.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".pg-partition-migrate")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	if err := os.Chmod(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "require" // Secure default
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 8
	}

	if c.Tables.Schema == "" {
		c.Tables.Schema = "public"
	}
	if c.Tables.Source == "" {
		c.Tables.Source = "viewing_events"
	}
	if c.Tables.Destination == "" {
		c.Tables.Destination = "viewing_events_partitioned"
	}

	if c.Partitions.Unit == "" {
		c.Partitions.Unit = "month"
	}
	if c.Partitions.Count == 0 {
		c.Partitions.Count = 3
	}

	if c.Migration.BatchSize == 0 {
		c.Migration.BatchSize = 50000
	}
	if c.Migration.DataDir == "" {
		home, _ := os.UserHomeDir()
		c.Migration.DataDir = filepath.Join(home, ".pg-partition-migrate")
	} else {
		c.Migration.DataDir = expandTilde(c.Migration.DataDir)
	}
	if c.Migration.AdvisoryLockKey == 0 {
		c.Migration.AdvisoryLockKey = 815001
	}

	if c.Benchmark.WarmupRuns == 0 {
		c.Benchmark.WarmupRuns = 1
	}
	if c.Benchmark.MeasuredRuns == 0 {
		c.Benchmark.MeasuredRuns = 5
	}
}

func (c *Config) validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database.database is required")
	}
	if c.Migration.BatchSize < 1 {
		return fmt.Errorf("migration.batch_size must be >= 1")
	}
	if c.Partitions.Unit != "month" {
		return fmt.Errorf("partitions.unit must be 'month', got '%s'", c.Partitions.Unit)
	}
	if c.Partitions.Count < 1 {
		return fmt.Errorf("partitions.count must be >= 1")
	}
	if c.Partitions.Start != "" {
		if _, err := c.PartitionStart(); err != nil {
			return err
		}
	}
	if c.Tables.Source == c.Tables.Destination {
		return fmt.Errorf("tables.source and tables.destination must differ")
	}
	if c.Benchmark.MeasuredRuns < 1 {
		return fmt.Errorf("benchmark.measured_runs must be >= 1")
	}
	return nil
}

// PartitionStart parses the configured first period. An empty value
// defaults to the first day of the month two months ago, matching a
// three-month backfill window ending in the current month.
func (c *Config) PartitionStart() (time.Time, error) {
	if c.Partitions.Start == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -2, 0), nil
	}
	t, err := time.Parse("2006-01", c.Partitions.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("partitions.start must be YYYY-MM, got '%s'", c.Partitions.Start)
	}
	return t, nil
}

// DSN returns the PostgreSQL connection string
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User, c.Database.Password,
		c.Database.Host, c.Database.Port, c.Database.Database, c.Database.SSLMode)
}

// Sanitized returns a copy of the config with sensitive fields redacted
func (c *Config) Sanitized() *Config {
	sanitized := *c // shallow copy

	sanitized.Database.Password = "[REDACTED]"
	if sanitized.Slack.WebhookURL != "" {
		sanitized.Slack.WebhookURL = "[REDACTED]"
	}

	return &sanitized
}
