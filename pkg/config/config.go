package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment variable the tool reads.
const EnvPrefix = "MASTOSCRAPE_"

// Config holds all configuration options for the profile scraper
type Config struct {
	// Home server and credentials
	Mastodon MastodonConfig `yaml:"mastodon" json:"mastodon"`

	// Collection behaviour
	Scrape ScrapeConfig `yaml:"scrape" json:"scrape"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// MastodonConfig holds server-specific configuration
type MastodonConfig struct {
	DefaultInstance string        `yaml:"default_instance" json:"default_instance"`
	AccessToken     string        `yaml:"access_token" json:"-"`
	UserAgent       string        `yaml:"user_agent" json:"user_agent"`
	RequestTimeout  time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// ScrapeConfig controls pagination, batching and enrichment
type ScrapeConfig struct {
	MaxPosts          int           `yaml:"max_posts" json:"max_posts"`
	DownloadMedia     bool          `yaml:"download_media" json:"download_media"`
	FetchReplies      bool          `yaml:"fetch_replies" json:"fetch_replies"`
	FetchEngagement   bool          `yaml:"fetch_engagement" json:"fetch_engagement"`
	PostBatchSize     int           `yaml:"post_batch_size" json:"post_batch_size"`
	AccountBatchSize  int           `yaml:"account_batch_size" json:"account_batch_size"`
	RequestDelay      time.Duration `yaml:"request_delay" json:"request_delay"`
	PostsPageLimit    int           `yaml:"posts_page_limit" json:"posts_page_limit"`
	AccountsPageLimit int           `yaml:"accounts_page_limit" json:"accounts_page_limit"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	DefaultRetryAfter      time.Duration `yaml:"default_retry_after" json:"default_retry_after"`
	AdvisoryThreshold      float64       `yaml:"advisory_threshold" json:"advisory_threshold"`
	MediaRequestsPerMinute int           `yaml:"media_requests_per_minute" json:"media_requests_per_minute"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory     string `yaml:"base_directory" json:"base_directory"`
	OverwriteExisting bool   `yaml:"overwrite_existing" json:"overwrite_existing"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Mastodon: MastodonConfig{
			DefaultInstance: "mastodon.social",
			UserAgent:       "mastoscrape/1.0 (+https://github.com/mastoscrape)",
			RequestTimeout:  30 * time.Second,
		},
		Scrape: ScrapeConfig{
			MaxPosts:          0, // 0 means no limit
			DownloadMedia:     true,
			FetchReplies:      true,
			FetchEngagement:   true,
			PostBatchSize:     20,
			AccountBatchSize:  100,
			RequestDelay:      500 * time.Millisecond,
			PostsPageLimit:    40,
			AccountsPageLimit: 80,
		},
		RateLimit: RateLimitConfig{
			DefaultRetryAfter:      60 * time.Second,
			AdvisoryThreshold:      0.10,
			MediaRequestsPerMinute: 120,
		},
		Output: OutputConfig{
			BaseDirectory: ".",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := getenv("INSTANCE"); v != "" {
		c.Mastodon.DefaultInstance = v
	}
	if v := getenv("ACCESS_TOKEN"); v != "" {
		c.Mastodon.AccessToken = v
	}
	if v := getenv("USER_AGENT"); v != "" {
		c.Mastodon.UserAgent = v
	}
	if v := getenv("OUTPUT_DIR"); v != "" {
		c.Output.BaseDirectory = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("LOG_FILE"); v != "" {
		c.Logging.File = v
	}

	if v := getenv("MAX_POSTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sMAX_POSTS: %w", EnvPrefix, err))
		} else {
			c.Scrape.MaxPosts = n
		}
	}
	if v := getenv("DOWNLOAD_MEDIA"); v != "" {
		c.Scrape.DownloadMedia = strings.ToLower(v) == "true"
	}
	if v := getenv("REQUEST_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sREQUEST_DELAY: %w", EnvPrefix, err))
		} else {
			c.Scrape.RequestDelay = d
		}
	}

	return errors.Join(errs...)
}

func getenv(name string) string {
	return os.Getenv(EnvPrefix + name)
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

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".mastoscrape.yaml",
		".mastoscrape.yml",
		filepath.Join(home, ".config", "mastoscrape", "config.yaml"),
		filepath.Join(home, ".config", "mastoscrape", "config.yml"),
		filepath.Join(home, ".mastoscrape.yaml"),
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

	if c.Mastodon.DefaultInstance == "" {
		errs = append(errs, errors.New("default instance is required"))
	}
	if strings.Contains(c.Mastodon.DefaultInstance, "/") {
		errs = append(errs, errors.New("default instance must be a host name, not a URL"))
	}
	if c.Mastodon.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	if c.Scrape.MaxPosts < 0 {
		errs = append(errs, errors.New("max posts cannot be negative"))
	}
	if c.Scrape.PostBatchSize <= 0 {
		errs = append(errs, errors.New("post batch size must be positive"))
	}
	if c.Scrape.AccountBatchSize <= 0 {
		errs = append(errs, errors.New("account batch size must be positive"))
	}
	if c.Scrape.RequestDelay < 0 {
		errs = append(errs, errors.New("request delay cannot be negative"))
	}
	if c.Scrape.PostsPageLimit <= 0 || c.Scrape.PostsPageLimit > 40 {
		errs = append(errs, errors.New("posts page limit must be between 1 and 40"))
	}
	if c.Scrape.AccountsPageLimit <= 0 || c.Scrape.AccountsPageLimit > 80 {
		errs = append(errs, errors.New("accounts page limit must be between 1 and 80"))
	}

	if c.RateLimit.DefaultRetryAfter <= 0 {
		errs = append(errs, errors.New("default retry-after must be positive"))
	}
	if c.RateLimit.AdvisoryThreshold <= 0 || c.RateLimit.AdvisoryThreshold >= 1 {
		errs = append(errs, errors.New("advisory threshold must be between 0 and 1"))
	}
	if c.RateLimit.MediaRequestsPerMinute <= 0 {
		errs = append(errs, errors.New("media requests per minute must be positive"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Zero values mean "not set" and leave the existing value in place.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["instance"].(string); ok && v != "" {
		c.Mastodon.DefaultInstance = v
	}
	if v, ok := flags["token"].(string); ok && v != "" {
		c.Mastodon.AccessToken = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.BaseDirectory = v
	}
	if v, ok := flags["max-posts"].(int); ok && v > 0 {
		c.Scrape.MaxPosts = v
	}
	if v, ok := flags["batch-size"].(int); ok && v > 0 {
		c.Scrape.PostBatchSize = v
	}
	if v, ok := flags["no-media"].(bool); ok && v {
		c.Scrape.DownloadMedia = false
	}
	if v, ok := flags["no-replies"].(bool); ok && v {
		c.Scrape.FetchReplies = false
	}
	if v, ok := flags["no-engagement"].(bool); ok && v {
		c.Scrape.FetchEngagement = false
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// .env files are optional
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".mastoscrape.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
