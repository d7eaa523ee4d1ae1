package tscommunity

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t testing.TB, dir, name, contents string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
	return path
}

func TestDefaultSettings(t *testing.T) {
	settings, err := DefaultConfig().Settings()
	require.NoError(t, err)

	require.Equal(t, "community.tradestation.com", settings.BaseUrl.Host)
	require.Equal(t, 2*time.Second, settings.Transport.MinInterval)
	require.Equal(t, 30*time.Second, settings.Transport.Timeout)
	require.Equal(t, 3, settings.Transport.RetryCount)
	require.Equal(t, 213, settings.Forum.ForumId)
	require.Equal(t, 1, settings.Forum.FollowPages)
	require.Equal(t, time.Minute, settings.PerfStatsInterval)
	require.False(t, settings.Forum.BrowseFallback)
}

func TestLoadConfigMissingFile(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), ConfigFile))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig().BaseUrl, config.BaseUrl)
}

func TestLoadConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, ConfigFile, `{
		// slower for a shared network
		min_interval: "5s",
		browse_fallback: true,
		follow_pages: 3,
	}`)
	writeConfig(t, dir, "tscommunity.local.json5", `{
		cookie_file: "/secrets/cookies.json",
		retry_count: 0,
	}`)
	t.Setenv("TSCOMMUNITY_COOKIES", "")
	t.Setenv("TSCOMMUNITY_DEBUG", "")

	config, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "/secrets/cookies.json", config.CookieFile)

	settings, err := config.Settings()
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, settings.Transport.MinInterval)
	require.Equal(t, 0, settings.Transport.RetryCount)
	require.True(t, settings.Forum.BrowseFallback)
	require.Equal(t, 3, settings.Forum.FollowPages)
	// untouched fields keep their defaults
	require.Equal(t, 30*time.Second, settings.Transport.Timeout)
}

func TestLocalOverrideTurnsSwitchesOff(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, ConfigFile, `{
		browse_fallback: true,
		include_post_html: true,
		debug: true,
	}`)
	writeConfig(t, dir, "tscommunity.local.json5", `{
		browse_fallback: false,
		debug: false,
	}`)
	t.Setenv("TSCOMMUNITY_COOKIES", "")
	t.Setenv("TSCOMMUNITY_DEBUG", "")

	config, err := LoadConfig(path)
	require.NoError(t, err)
	settings, err := config.Settings()
	require.NoError(t, err)

	require.False(t, settings.Forum.BrowseFallback)
	require.False(t, settings.Debug)
	require.True(t, settings.Forum.IncludePostHtml)
}

func TestEnvironmentOverrides(t *testing.T) {
	config := DefaultConfig()
	env := map[string]string{
		"TSCOMMUNITY_COOKIES": "/tmp/bundle.json",
		"TSCOMMUNITY_DEBUG":   "1",
	}
	config.applyEnv(func(key string) string { return env[key] })
	require.Equal(t, "/tmp/bundle.json", config.CookieFile)
	require.True(t, *config.Debug)

	config = DefaultConfig()
	config.applyEnv(func(key string) string {
		if key == "TSCOMMUNITY_DEBUG" {
			return "false"
		}
		return ""
	})
	require.False(t, *config.Debug)
	require.Equal(t, DefaultConfig().CookieFile, config.CookieFile)
}

func TestSettingsValidation(t *testing.T) {
	negative := -1
	cases := []struct {
		name   string
		modify func(c *Config)
	}{
		{"relative base url", func(c *Config) { c.BaseUrl = "/Discussions" }},
		{"non http base url", func(c *Config) { c.BaseUrl = "ftp://community.tradestation.com" }},
		{"zero interval", func(c *Config) { c.MinInterval = "0s" }},
		{"bad duration", func(c *Config) { c.Timeout = "soon" }},
		{"negative retries", func(c *Config) { c.RetryCount = &negative }},
		{"no pages", func(c *Config) { c.FollowPages = 0 }},
		{"no forum", func(c *Config) { c.ForumId = 0 }},
		{"negative perf interval", func(c *Config) { c.PerfStatsInterval = "-1s" }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			config := DefaultConfig()
			c.modify(&config)
			_, err := config.Settings()
			require.Error(t, err)
		})
	}
}

func TestCredentialsFromEnv(t *testing.T) {
	t.Setenv("TRADESTATION_USERNAME", "trader")
	t.Setenv("TRADESTATION_PASSWORD", "")
	_, ok := CredentialsFromEnv()
	require.False(t, ok)

	t.Setenv("TRADESTATION_PASSWORD", "hunter2")
	creds, ok := CredentialsFromEnv()
	require.True(t, ok)
	require.Equal(t, Credentials{Username: "trader", Password: "hunter2"}, creds)
}
