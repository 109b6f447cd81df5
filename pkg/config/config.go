package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the harvester
type Config struct {
	// Remote API access
	Riot RiotConfig `yaml:"riot" json:"riot"`

	// Request pacing
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Transient failure handling
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Persistence
	Database DatabaseConfig `yaml:"database" json:"database"`

	// Worker behaviour
	Ladder LadderConfig `yaml:"ladder" json:"ladder"`
	Match  MatchConfig  `yaml:"match" json:"match"`

	// Regions maps a macro-region routing value to the shards it owns
	Regions map[string][]string `yaml:"regions" json:"regions"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// RiotConfig holds remote API configuration
type RiotConfig struct {
	APIKey         string        `yaml:"api_key" json:"-"`
	BaseURLPattern string        `yaml:"base_url_pattern" json:"base_url_pattern"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	Queue          string        `yaml:"queue" json:"queue"`
}

// RateLimitConfig holds the rolling-window ceilings applied per routing host
type RateLimitConfig struct {
	ShortRequests int           `yaml:"short_requests" json:"short_requests"`
	ShortWindow   time.Duration `yaml:"short_window" json:"short_window"`
	LongRequests  int           `yaml:"long_requests" json:"long_requests"`
	LongWindow    time.Duration `yaml:"long_window" json:"long_window"`

	// Backend is "memory" (per process) or "redis" (shared by every process using the key)
	Backend   string `yaml:"backend" json:"backend"`
	RedisAddr string `yaml:"redis_addr" json:"redis_addr"`
	RedisDB   int    `yaml:"redis_db" json:"redis_db"`

	// MethodLimits are per-endpoint ceilings on top of the host windows
	MethodLimits map[string]MethodLimit `yaml:"method_limits" json:"method_limits"`
}

// MethodLimit is a request count allowed per period for one endpoint kind
type MethodLimit struct {
	Requests int           `yaml:"requests" json:"requests"`
	Per      time.Duration `yaml:"per" json:"per"`
}

// RetryConfig holds backoff settings for transient failures
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay    time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
	JitterFactor float64       `yaml:"jitter_factor" json:"jitter_factor"`
}

// DatabaseConfig holds the persistence connection settings
type DatabaseConfig struct {
	DSN      string `yaml:"dsn" json:"-"`
	MaxConns int    `yaml:"max_conns" json:"max_conns"`
}

// LadderConfig holds ladder worker settings
type LadderConfig struct {
	IdleInterval  time.Duration `yaml:"idle_interval" json:"idle_interval"`
	HighTiers     []string      `yaml:"high_tiers" json:"high_tiers"`
	Tiers         []string      `yaml:"tiers" json:"tiers"`
	Divisions     []string      `yaml:"divisions" json:"divisions"`
	CheckpointDir string        `yaml:"checkpoint_dir" json:"checkpoint_dir"`
	// HighTierSource selects how apex tiers are read: "paged" or "apex" (whole league in one call)
	HighTierSource string `yaml:"high_tier_source" json:"high_tier_source"`
}

// MatchConfig holds match worker settings
type MatchConfig struct {
	BootstrapPoll time.Duration `yaml:"bootstrap_poll" json:"bootstrap_poll"`
	PassDelay     time.Duration `yaml:"pass_delay" json:"pass_delay"`
	PageSize      int           `yaml:"page_size" json:"page_size"`
	QueueID       int           `yaml:"queue_id" json:"queue_id"`
	// StartTime is the earliest match start considered for players never fetched
	StartTime time.Time `yaml:"start_time" json:"start_time"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	File   string `yaml:"file" json:"file"`
	Format string `yaml:"format" json:"format"`
}

// DefaultRegions is the macro-region to shard mapping used when none is configured
func DefaultRegions() map[string][]string {
	return map[string][]string{
		"americas": {"na1", "br1", "la1", "la2"},
		"asia":     {"kr", "jp1"},
		"europe":   {"eun1", "euw1", "tr1", "ru"},
		"sea":      {"oc1", "ph2", "sg2", "th2", "tw2", "vn2"},
	}
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Riot: RiotConfig{
			BaseURLPattern: "https://%s.api.riotgames.com",
			Timeout:        10 * time.Second,
			Queue:          "RANKED_SOLO_5x5",
		},
		RateLimit: RateLimitConfig{
			ShortRequests: 20,
			ShortWindow:   time.Second,
			LongRequests:  100,
			LongWindow:    2 * time.Minute,
			Backend:       "memory",
			RedisAddr:     "localhost:6379",
			MethodLimits: map[string]MethodLimit{
				"league_entries":    {Requests: 50, Per: 10 * time.Second},
				"high_tier_entries": {Requests: 50, Per: 10 * time.Second},
				"summoner_by_id":    {Requests: 1600, Per: time.Minute},
				"match_ids":         {Requests: 2000, Per: 10 * time.Second},
				"match_detail":      {Requests: 2000, Per: 10 * time.Second},
			},
		},
		Retry: RetryConfig{
			MaxAttempts:  5,
			BaseDelay:    time.Second,
			MaxDelay:     3 * time.Minute,
			Multiplier:   2.0,
			JitterFactor: 0.2,
		},
		Database: DatabaseConfig{
			DSN:      "ladderharvest.db",
			MaxConns: 20,
		},
		Ladder: LadderConfig{
			IdleInterval:   30 * time.Minute,
			HighTiers:      []string{"CHALLENGER", "GRANDMASTER", "MASTER"},
			Tiers:          []string{"DIAMOND", "EMERALD", "PLATINUM", "GOLD", "SILVER", "BRONZE", "IRON"},
			Divisions:      []string{"I", "II", "III", "IV"},
			HighTierSource: "paged",
		},
		Match: MatchConfig{
			BootstrapPoll: 15 * time.Second,
			PassDelay:     time.Minute,
			PageSize:      100,
			QueueID:       420,
			StartTime:     time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
		},
		Regions: DefaultRegions(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if key := os.Getenv("RIOT_API_KEY"); key != "" {
		c.Riot.APIKey = key
	}
	if key := os.Getenv("LADDERHARVEST_API_KEY"); key != "" {
		c.Riot.APIKey = key
	}

	// CONNECTION_STRING is kept for deployments configured before the prefixed name existed
	if dsn := os.Getenv("CONNECTION_STRING"); dsn != "" {
		c.Database.DSN = dsn
	}
	if dsn := os.Getenv("LADDERHARVEST_DATABASE_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}

	intVars := map[string]*int{
		"LADDERHARVEST_RATE_SHORT":   &c.RateLimit.ShortRequests,
		"LADDERHARVEST_RATE_LONG":    &c.RateLimit.LongRequests,
		"LADDERHARVEST_MAX_ATTEMPTS": &c.Retry.MaxAttempts,
		"LADDERHARVEST_DB_MAX_CONNS": &c.Database.MaxConns,
	}
	for name, dst := range intVars {
		raw := os.Getenv(name)
		if raw == "" {
			continue
		}
		val, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		*dst = val
	}

	if backend := os.Getenv("LADDERHARVEST_RATE_BACKEND"); backend != "" {
		c.RateLimit.Backend = backend
	}
	if addr := os.Getenv("LADDERHARVEST_REDIS_ADDR"); addr != "" {
		c.RateLimit.RedisAddr = addr
	}
	if dir := os.Getenv("LADDERHARVEST_CHECKPOINT_DIR"); dir != "" {
		c.Ladder.CheckpointDir = dir
	}
	if logLevel := os.Getenv("LADDERHARVEST_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFile := os.Getenv("LADDERHARVEST_LOG_FILE"); logFile != "" {
		c.Logging.File = logFile
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// A regions block replaces the default mapping rather than merging into it
	var probe struct {
		Regions map[string][]string `yaml:"regions"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if probe.Regions != nil {
		c.Regions = nil
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		"ladderharvest.yaml",
		"ladderharvest.yml",
		filepath.Join(home, ".config", "ladderharvest", "config.yaml"),
		filepath.Join(home, ".config", "ladderharvest", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Riot.APIKey == "" {
		errs = append(errs, errors.New("riot API key is required"))
	}
	if !strings.Contains(c.Riot.BaseURLPattern, "%s") {
		errs = append(errs, errors.New("base URL pattern must contain %s for the routing host"))
	}
	if c.Riot.Timeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	if c.RateLimit.ShortRequests <= 0 || c.RateLimit.LongRequests <= 0 {
		errs = append(errs, errors.New("rate limit request counts must be positive"))
	}
	if c.RateLimit.ShortWindow <= 0 || c.RateLimit.LongWindow <= 0 {
		errs = append(errs, errors.New("rate limit windows must be positive"))
	}
	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.RateLimit.RedisAddr == "" {
			errs = append(errs, errors.New("redis rate limit backend requires redis_addr"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown rate limit backend %q", c.RateLimit.Backend))
	}
	for kind, ml := range c.RateLimit.MethodLimits {
		if ml.Requests <= 0 || ml.Per <= 0 {
			errs = append(errs, fmt.Errorf("method limit %s must have positive requests and period", kind))
		}
	}

	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry max attempts must be positive"))
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, errors.New("retry delays must be positive with max_delay >= base_delay"))
	}

	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database DSN is required"))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, errors.New("database max connections must be positive"))
	}

	if c.Ladder.IdleInterval <= 0 {
		errs = append(errs, errors.New("ladder idle interval must be positive"))
	}
	if len(c.Ladder.HighTiers) == 0 && len(c.Ladder.Tiers) == 0 {
		errs = append(errs, errors.New("at least one ladder tier is required"))
	}
	if len(c.Ladder.Tiers) > 0 && len(c.Ladder.Divisions) == 0 {
		errs = append(errs, errors.New("ladder divisions are required for non-apex tiers"))
	}
	switch c.Ladder.HighTierSource {
	case "", "paged", "apex":
	default:
		errs = append(errs, fmt.Errorf("unknown ladder high tier source %q (want paged or apex)", c.Ladder.HighTierSource))
	}

	if c.Match.BootstrapPoll <= 0 {
		errs = append(errs, errors.New("match bootstrap poll interval must be positive"))
	}
	if c.Match.PassDelay < 0 {
		errs = append(errs, errors.New("match pass delay cannot be negative"))
	}
	if c.Match.PageSize <= 0 || c.Match.PageSize > 100 {
		errs = append(errs, errors.New("match page size must be between 1 and 100"))
	}

	if len(c.Regions) == 0 {
		errs = append(errs, errors.New("at least one region is required"))
	}
	seen := make(map[string]string)
	for region, shards := range c.Regions {
		for _, shard := range shards {
			if owner, ok := seen[shard]; ok {
				errs = append(errs, fmt.Errorf("shard %s is mapped to both %s and %s", shard, owner, region))
			}
			seen[shard] = region
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	if c.Logging.Format != "" && c.Logging.Format != "console" && c.Logging.Format != "json" {
		errs = append(errs, errors.New("log format must be console or json"))
	}

	return errors.Join(errs...)
}

// RegionNames returns the configured macro-regions in a stable order
func (c *Config) RegionNames() []string {
	names := make([]string, 0, len(c.Regions))
	for name := range c.Regions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if dsn, ok := flags["dsn"].(string); ok && dsn != "" {
		c.Database.DSN = dsn
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if backend, ok := flags["rate-backend"].(string); ok && backend != "" {
		c.RateLimit.Backend = backend
	}
	if dir, ok := flags["checkpoint-dir"].(string); ok && dir != "" {
		c.Ladder.CheckpointDir = dir
	}
	if regions, ok := flags["regions"].([]string); ok && len(regions) > 0 {
		c.restrictRegions(regions)
	}
}

// restrictRegions keeps only the named macro-regions
func (c *Config) restrictRegions(names []string) {
	keep := make(map[string][]string, len(names))
	for _, name := range names {
		if shards, ok := c.Regions[strings.ToLower(name)]; ok {
			keep[strings.ToLower(name)] = shards
		}
	}
	c.Regions = keep
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
// Validation is left to the caller because the API key may still come from the credential store.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// credentials.env is the file name older deployments shipped the key in
	_ = godotenv.Load(".env")
	_ = godotenv.Load("credentials.env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".ladderharvest.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	return config, nil
}
