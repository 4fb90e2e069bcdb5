package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// isolate points HOME and the working directory at a fresh temp dir so no
// developer config or .env file leaks into a test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	oldDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(oldDir) })
	return dir
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "mastodon.social", cfg.Mastodon.DefaultInstance)
	assert.Equal(t, 20, cfg.Scrape.PostBatchSize)
	assert.Equal(t, 100, cfg.Scrape.AccountBatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Scrape.RequestDelay)
	assert.Equal(t, 40, cfg.Scrape.PostsPageLimit)
	assert.Equal(t, 80, cfg.Scrape.AccountsPageLimit)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.DefaultRetryAfter)
	assert.Equal(t, 0.10, cfg.RateLimit.AdvisoryThreshold)
	assert.True(t, cfg.Scrape.DownloadMedia)
	assert.Equal(t, ".", cfg.Output.BaseDirectory)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MASTOSCRAPE_INSTANCE", "fosstodon.org")
	t.Setenv("MASTOSCRAPE_ACCESS_TOKEN", "env-token")
	t.Setenv("MASTOSCRAPE_OUTPUT_DIR", "/tmp/out")
	t.Setenv("MASTOSCRAPE_MAX_POSTS", "150")
	t.Setenv("MASTOSCRAPE_DOWNLOAD_MEDIA", "false")
	t.Setenv("MASTOSCRAPE_REQUEST_DELAY", "250ms")
	t.Setenv("MASTOSCRAPE_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "fosstodon.org", cfg.Mastodon.DefaultInstance)
	assert.Equal(t, "env-token", cfg.Mastodon.AccessToken)
	assert.Equal(t, "/tmp/out", cfg.Output.BaseDirectory)
	assert.Equal(t, 150, cfg.Scrape.MaxPosts)
	assert.False(t, cfg.Scrape.DownloadMedia)
	assert.Equal(t, 250*time.Millisecond, cfg.Scrape.RequestDelay)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvRejectsGarbage(t *testing.T) {
	t.Setenv("MASTOSCRAPE_MAX_POSTS", "lots")
	t.Setenv("MASTOSCRAPE_REQUEST_DELAY", "soon")

	err := DefaultConfig().LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MASTOSCRAPE_MAX_POSTS")
	assert.Contains(t, err.Error(), "MASTOSCRAPE_REQUEST_DELAY")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
mastodon:
  default_instance: hachyderm.io
  request_timeout: 10s
scrape:
  max_posts: 200
  post_batch_size: 10
  request_delay: 1s
rate_limit:
  default_retry_after: 90s
output:
  base_directory: /data/exports
logging:
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "hachyderm.io", cfg.Mastodon.DefaultInstance)
	assert.Equal(t, 10*time.Second, cfg.Mastodon.RequestTimeout)
	assert.Equal(t, 200, cfg.Scrape.MaxPosts)
	assert.Equal(t, 10, cfg.Scrape.PostBatchSize)
	assert.Equal(t, time.Second, cfg.Scrape.RequestDelay)
	assert.Equal(t, 90*time.Second, cfg.RateLimit.DefaultRetryAfter)
	assert.Equal(t, "/data/exports", cfg.Output.BaseDirectory)
	assert.Equal(t, "warn", cfg.Logging.Level)
	// untouched keys keep their defaults
	assert.Equal(t, 100, cfg.Scrape.AccountBatchSize)

	t.Run("missing file", func(t *testing.T) {
		err := DefaultConfig().LoadFromFile(filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("scrape: [unclosed"), 0644))
		assert.Error(t, DefaultConfig().LoadFromFile(bad))
	})
}

func TestFindConfigFile(t *testing.T) {
	dir := isolate(t)

	cfg := DefaultConfig()
	assert.Empty(t, cfg.findConfigFile())

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".mastoscrape.yaml"), []byte("logging:\n  level: info\n"), 0644))
	assert.Equal(t, ".mastoscrape.yaml", cfg.findConfigFile())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"empty instance", func(c *Config) { c.Mastodon.DefaultInstance = "" }, "default instance is required"},
		{"instance as url", func(c *Config) { c.Mastodon.DefaultInstance = "https://mastodon.social/" }, "host name"},
		{"zero batch", func(c *Config) { c.Scrape.PostBatchSize = 0 }, "post batch size"},
		{"page limit too large", func(c *Config) { c.Scrape.PostsPageLimit = 100 }, "posts page limit"},
		{"negative max posts", func(c *Config) { c.Scrape.MaxPosts = -1 }, "max posts"},
		{"threshold out of range", func(c *Config) { c.RateLimit.AdvisoryThreshold = 1.5 }, "advisory threshold"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scrape.PostBatchSize = 0
	cfg.Output.BaseDirectory = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "post batch size")
	assert.Contains(t, err.Error(), "output directory")
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"instance":   "social.example",
		"token":      "flag-token",
		"output":     "/flag/out",
		"max-posts":  50,
		"batch-size": 5,
		"no-media":   true,
		"log-level":  "error",
	})

	assert.Equal(t, "social.example", cfg.Mastodon.DefaultInstance)
	assert.Equal(t, "flag-token", cfg.Mastodon.AccessToken)
	assert.Equal(t, "/flag/out", cfg.Output.BaseDirectory)
	assert.Equal(t, 50, cfg.Scrape.MaxPosts)
	assert.Equal(t, 5, cfg.Scrape.PostBatchSize)
	assert.False(t, cfg.Scrape.DownloadMedia)
	assert.True(t, cfg.Scrape.FetchReplies)
	assert.Equal(t, "error", cfg.Logging.Level)

	// zero values leave the config alone
	before := *cfg
	cfg.MergeCommandLineFlags(map[string]interface{}{"max-posts": 0, "output": "", "no-media": false})
	assert.Equal(t, before, *cfg)
}

func TestSaveAndLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Mastodon.DefaultInstance = "saved.example"
	cfg.Scrape.RequestDelay = 2 * time.Second
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, "saved.example", loaded.Mastodon.DefaultInstance)
	assert.Equal(t, 2*time.Second, loaded.Scrape.RequestDelay)
}

func TestLoad(t *testing.T) {
	t.Run("precedence order", func(t *testing.T) {
		dir := isolate(t)
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
mastodon:
  default_instance: file.example
  access_token: file-token
output:
  base_directory: /file/output
`), 0644))

		t.Setenv("MASTOSCRAPE_OUTPUT_DIR", "/env/output")
		t.Setenv("MASTOSCRAPE_ACCESS_TOKEN", "env-token")

		cfg, err := Load(path, map[string]interface{}{"token": "flag-token"})
		require.NoError(t, err)

		assert.Equal(t, "flag-token", cfg.Mastodon.AccessToken)
		assert.Equal(t, "/env/output", cfg.Output.BaseDirectory)
		assert.Equal(t, "file.example", cfg.Mastodon.DefaultInstance)
	})

	t.Run("validation failure", func(t *testing.T) {
		isolate(t)
		cfg, err := Load("", map[string]interface{}{"log-level": "chatty"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration validation failed")
		assert.Nil(t, cfg)
	})

	t.Run("loads .env file", func(t *testing.T) {
		isolate(t)
		require.NoError(t, os.WriteFile(".env", []byte("MASTOSCRAPE_INSTANCE=dotenv.example\n"), 0644))
		t.Cleanup(func() { _ = os.Unsetenv("MASTOSCRAPE_INSTANCE") })

		cfg, err := Load("", nil)
		require.NoError(t, err)
		assert.Equal(t, "dotenv.example", cfg.Mastodon.DefaultInstance)
	})
}

func TestDurationParsing(t *testing.T) {
	var cfg Config
	err := yaml.Unmarshal([]byte(`
scrape:
  request_delay: 750ms
rate_limit:
  default_retry_after: 1m30s
`), &cfg)
	require.NoError(t, err)

	assert.Equal(t, 750*time.Millisecond, cfg.Scrape.RequestDelay)
	assert.Equal(t, 90*time.Second, cfg.RateLimit.DefaultRetryAfter)
}
