// Package config loads shardsearch configuration for shard, coordinator
// and client processes.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	serrors "github.com/Aman-CERP/shardsearch/internal/errors"
	"github.com/Aman-CERP/shardsearch/internal/logging"
)

// Backend names accepted by shard.backend.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// DefaultFileNames are searched, in order, in the working directory when
// no --config flag is given.
var DefaultFileNames = []string{"shardsearch.yaml", "shardsearch.yml"}

// Config represents the complete shardsearch configuration.
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	Shard       ShardConfig       `yaml:"shard" json:"shard"`
	Coordinator CoordinatorConfig `yaml:"coordinator" json:"coordinator"`
	Client      ClientConfig      `yaml:"client" json:"client"`
	Log         LogConfig         `yaml:"log" json:"log"`
}

// ShardConfig configures a single shard service.
type ShardConfig struct {
	// InstanceID names the shard in every response it produces.
	InstanceID string `yaml:"instance_id" json:"instance_id"`
	Listen     string `yaml:"listen" json:"listen"`
	// Database is the SQLite index file for this shard.
	Database string `yaml:"database" json:"database"`
	// Backend is "sqlite" (query the file directly) or "memory"
	// (load a snapshot and serve from RAM).
	Backend string `yaml:"backend" json:"backend"`
	// DefaultLimit applies when a request has no limit parameter.
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`
	// CacheSize bounds the vocabulary lookup cache. 0 disables it.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
	// Watch reloads the memory snapshot when the database file changes.
	Watch         bool          `yaml:"watch" json:"watch"`
	WatchDebounce time.Duration `yaml:"watch_debounce" json:"watch_debounce"`
	// MetricsDB persists query telemetry. Empty keeps it in memory only.
	MetricsDB string `yaml:"metrics_db" json:"metrics_db"`
}

// ShardEndpoint is one entry of the coordinator's shard list.
type ShardEndpoint struct {
	ID  string `yaml:"id" json:"id"`
	URL string `yaml:"url" json:"url"`
}

// BreakerConfig configures the per-shard circuit breaker.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures" json:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout" json:"reset_timeout"`
}

// CoordinatorConfig configures the partition coordinator.
type CoordinatorConfig struct {
	Listen string          `yaml:"listen" json:"listen"`
	Shards []ShardEndpoint `yaml:"shards" json:"shards"`
	// ShardTimeout bounds each individual shard call.
	ShardTimeout time.Duration `yaml:"shard_timeout" json:"shard_timeout"`
	// RequestTimeout bounds a whole coordinator request.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
	// RateLimit is requests per second accepted by the HTTP surface. 0 disables.
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`
	RateBurst int     `yaml:"rate_burst" json:"rate_burst"`
	// MaxInFlight bounds concurrent fan-outs.
	MaxInFlight int           `yaml:"max_in_flight" json:"max_in_flight"`
	Breaker     BreakerConfig `yaml:"breaker" json:"breaker"`
	// MetricsDB persists query and per-shard telemetry. Empty keeps it in memory only.
	MetricsDB string `yaml:"metrics_db" json:"metrics_db"`
}

// ClientConfig configures the query/pattern CLI commands.
type ClientConfig struct {
	CoordinatorURL string        `yaml:"coordinator_url" json:"coordinator_url"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
	// File overrides the default ~/.shardsearch/logs/<component>.log.
	File string `yaml:"file" json:"file"`
}

// NewConfig returns a Config with defaults applied.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Shard: ShardConfig{
			InstanceID:    defaultInstanceID(),
			Listen:        ":8081",
			Database:      "index.db",
			Backend:       BackendSQLite,
			DefaultLimit:  20,
			CacheSize:     1000,
			WatchDebounce: 500 * time.Millisecond,
		},
		Coordinator: CoordinatorConfig{
			Listen:         ":8080",
			ShardTimeout:   2 * time.Second,
			RequestTimeout: 10 * time.Second,
			RateLimit:      50,
			RateBurst:      100,
			MaxInFlight:    64,
			Breaker: BreakerConfig{
				MaxFailures:  5,
				ResetTimeout: 30 * time.Second,
			},
		},
		Client: ClientConfig{
			CoordinatorURL: "http://localhost:8080",
			Timeout:        15 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "shard-1"
	}
	return host
}

// Load builds the configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. The file at explicitPath, or shardsearch.yaml in dir
//  3. Environment variables (SHARDSEARCH_*, DATABASE_PATH, API_BASE_URL)
//
// Command-line flags are applied by the caller afterwards.
func Load(explicitPath, dir string) (*Config, error) {
	cfg := NewConfig()

	path, err := resolvePath(explicitPath, dir)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func resolvePath(explicitPath, dir string) (string, error) {
	if explicitPath != "" {
		if !fileExists(explicitPath) {
			return "", serrors.New(serrors.ErrCodeConfigNotFound,
				fmt.Sprintf("config file not found: %s", explicitPath), nil)
		}
		return explicitPath, nil
	}

	for _, name := range DefaultFileNames {
		p := filepath.Join(dir, name)
		if fileExists(p) {
			return p, nil
		}
	}
	return "", nil
}

// loadYAML merges a YAML file over the current values. Keys absent from
// the file keep their current value.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return serrors.New(serrors.ErrCodeConfigInvalid,
			fmt.Sprintf("failed to parse config file %s", path), err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("SHARDSEARCH_INSTANCE_ID"); v != "" {
		c.Shard.InstanceID = v
	}
	if v := os.Getenv("SHARDSEARCH_SHARD_LISTEN"); v != "" {
		c.Shard.Listen = v
	}
	// DATABASE_PATH is the variable older deployments set.
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Shard.Database = v
	}
	if v := os.Getenv("SHARDSEARCH_DATABASE"); v != "" {
		c.Shard.Database = v
	}
	if v := os.Getenv("SHARDSEARCH_BACKEND"); v != "" {
		c.Shard.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("SHARDSEARCH_CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("SHARDSEARCH_CACHE_SIZE", v, err)
		}
		c.Shard.CacheSize = n
	}

	if v := os.Getenv("SHARDSEARCH_COORDINATOR_LISTEN"); v != "" {
		c.Coordinator.Listen = v
	}
	if v := os.Getenv("SHARDSEARCH_SHARDS"); v != "" {
		shards, err := ParseShardList(v)
		if err != nil {
			return err
		}
		c.Coordinator.Shards = shards
	}
	if v := os.Getenv("SHARDSEARCH_SHARD_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return envError("SHARDSEARCH_SHARD_TIMEOUT", v, err)
		}
		c.Coordinator.ShardTimeout = d
	}

	// API_BASE_URL is read by the console client.
	if v := os.Getenv("API_BASE_URL"); v != "" {
		c.Client.CoordinatorURL = v
	}
	if v := os.Getenv("SHARDSEARCH_COORDINATOR_URL"); v != "" {
		c.Client.CoordinatorURL = v
	}

	if v := os.Getenv("SHARDSEARCH_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

func envError(name, value string, err error) error {
	return serrors.New(serrors.ErrCodeConfigInvalid,
		fmt.Sprintf("invalid %s=%q", name, value), err)
}

// ParseShardList parses "id=url,id=url". An entry without "id=" gets its
// position as id ("shard-1", "shard-2", ...).
func ParseShardList(s string) ([]ShardEndpoint, error) {
	var shards []ShardEndpoint
	for i, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		id, u, found := strings.Cut(part, "=")
		if !found {
			id, u = fmt.Sprintf("shard-%d", i+1), part
		}
		shards = append(shards, ShardEndpoint{ID: strings.TrimSpace(id), URL: strings.TrimSpace(u)})
	}

	if len(shards) == 0 {
		return nil, serrors.New(serrors.ErrCodeConfigInvalid, "shard list is empty", nil)
	}
	return shards, nil
}

// Validate checks the settings shared by every role.
func (c *Config) Validate() error {
	switch c.Shard.Backend {
	case BackendSQLite, BackendMemory:
	default:
		return invalid("shard.backend must be 'sqlite' or 'memory', got %q", c.Shard.Backend)
	}
	if c.Shard.DefaultLimit < 0 {
		return invalid("shard.default_limit must be non-negative, got %d", c.Shard.DefaultLimit)
	}
	if c.Shard.CacheSize < 0 {
		return invalid("shard.cache_size must be non-negative, got %d", c.Shard.CacheSize)
	}
	if c.Coordinator.ShardTimeout <= 0 {
		return invalid("coordinator.shard_timeout must be positive, got %s", c.Coordinator.ShardTimeout)
	}
	if c.Coordinator.RequestTimeout <= 0 {
		return invalid("coordinator.request_timeout must be positive, got %s", c.Coordinator.RequestTimeout)
	}
	if c.Coordinator.RateLimit < 0 {
		return invalid("coordinator.rate_limit must be non-negative, got %g", c.Coordinator.RateLimit)
	}
	if c.Coordinator.MaxInFlight < 1 {
		return invalid("coordinator.max_in_flight must be at least 1, got %d", c.Coordinator.MaxInFlight)
	}
	if c.Coordinator.Breaker.MaxFailures < 1 {
		return invalid("coordinator.breaker.max_failures must be at least 1, got %d", c.Coordinator.Breaker.MaxFailures)
	}
	if !logging.ValidLevel(c.Log.Level) {
		return invalid("log.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Log.Level)
	}

	seen := make(map[string]bool, len(c.Coordinator.Shards))
	for _, s := range c.Coordinator.Shards {
		if s.ID == "" {
			return invalid("coordinator.shards: entry %q has no id", s.URL)
		}
		if seen[s.ID] {
			return invalid("coordinator.shards: duplicate id %q", s.ID)
		}
		seen[s.ID] = true
		if err := validURL(s.URL); err != nil {
			return invalid("coordinator.shards[%s]: %v", s.ID, err)
		}
	}
	return nil
}

// ValidateShard checks the settings a shard process needs.
func (c *Config) ValidateShard() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Shard.InstanceID) == "" {
		return invalid("shard.instance_id is required")
	}
	if c.Shard.Database == "" {
		return invalid("shard.database is required")
	}
	return nil
}

// ValidateCoordinator checks the settings a coordinator process needs.
func (c *Config) ValidateCoordinator() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.Coordinator.Shards) == 0 {
		return invalid("coordinator.shards must list at least one shard")
	}
	return nil
}

func validURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return serrors.New(serrors.ErrCodeConfigInvalid, fmt.Sprintf(format, args...), nil)
}

// LoggingConfig converts the log section into a logging.Config for component.
func (c *Config) LoggingConfig(component string, debug bool) logging.Config {
	lc := logging.DefaultConfig(component)
	lc.Level = c.Log.Level
	if debug {
		lc.Level = "debug"
	}
	if c.Log.File != "" {
		lc.FilePath = c.Log.File
	}
	return lc
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
