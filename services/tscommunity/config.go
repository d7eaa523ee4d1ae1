package tscommunity

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"tscommunity/lib/configutil"
	"tscommunity/lib/scrapers/tscommunity/core"
	"tscommunity/lib/scrapers/tscommunity/forum"
	"tscommunity/lib/telemetry"
)

const ConfigFile = "tscommunity.json5"

type Config struct {
	BaseUrl    string `json:"base_url"`
	ForumId    int    `json:"forum_id"`
	CookieFile string `json:"cookie_file"`
	UserAgent  string `json:"user_agent"`

	// durations are Go duration strings, "2s", "500ms"
	MinInterval  string `json:"min_interval"`
	Timeout      string `json:"timeout"`
	RetryCount   *int   `json:"retry_count"`
	RetryWait    string `json:"retry_wait"`
	RetryMaxWait string `json:"retry_max_wait"`

	// switches are pointers so that a .local file can turn one back off
	BrowseFallback  *bool `json:"browse_fallback"`
	IncludePostHtml *bool `json:"include_post_html"`
	FollowPages     int   `json:"follow_pages"`

	Debug       *bool  `json:"debug"`
	HttpDumpDir string `json:"http_dump_dir"`
	// how often process cpu and memory gauges are sampled, "0s" disables
	PerfStatsInterval string `json:"perf_stats_interval"`

	Telemetry telemetry.Config `json:"telemetry"`
}

func enabled(v *bool) bool {
	return v != nil && *v
}

func DefaultConfig() Config {
	retries := 3
	off := func() *bool {
		v := false
		return &v
	}
	return Config{
		BaseUrl:           "https://community.tradestation.com",
		ForumId:           forum.DefaultForumId,
		CookieFile:        ".session_cookies.json",
		UserAgent:         core.DefaultUserAgent,
		MinInterval:       "2s",
		Timeout:           "30s",
		RetryCount:        &retries,
		RetryWait:         "500ms",
		RetryMaxWait:      "5s",
		BrowseFallback:    off(),
		IncludePostHtml:   off(),
		FollowPages:       1,
		Debug:             off(),
		PerfStatsInterval: "1m",
	}
}

// LoadConfig reads path (and its .local override) over the defaults, then
// applies the environment. A missing file is fine.
func LoadConfig(path string) (Config, error) {
	config, err := configutil.ReadConfigOr(path, DefaultConfig())
	if err != nil {
		return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	config.applyEnv(os.Getenv)
	return config, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("TSCOMMUNITY_COOKIES"); v != "" {
		c.CookieFile = v
	}
	if v := getenv("TSCOMMUNITY_DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		debug = err != nil || debug
		c.Debug = &debug
	}
}

type Settings struct {
	BaseUrl           *url.URL
	CookieFile        string
	Debug             bool
	HttpDumpDir       string
	PerfStatsInterval time.Duration
	Transport         core.Options
	Forum             forum.Options
	Telemetry         telemetry.Config
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

// Settings validates the config and resolves it into the options of each
// component.
func (c Config) Settings() (Settings, error) {
	baseUrl, err := url.Parse(c.BaseUrl)
	if err != nil {
		return Settings{}, fmt.Errorf("base_url: %w", err)
	}
	if (baseUrl.Scheme != "https" && baseUrl.Scheme != "http") || baseUrl.Host == "" {
		return Settings{}, fmt.Errorf("base_url must be an absolute http(s) url, got %q", c.BaseUrl)
	}

	var minInterval, timeout, retryWait, retryMaxWait, perfInterval time.Duration
	var errList []error
	for _, d := range []struct {
		field string
		value string
		out   *time.Duration
	}{
		{"min_interval", c.MinInterval, &minInterval},
		{"timeout", c.Timeout, &timeout},
		{"retry_wait", c.RetryWait, &retryWait},
		{"retry_max_wait", c.RetryMaxWait, &retryMaxWait},
		{"perf_stats_interval", c.PerfStatsInterval, &perfInterval},
	} {
		parsed, err := parseDuration(d.field, d.value)
		if err != nil {
			errList = append(errList, err)
			continue
		}
		*d.out = parsed
	}
	if err := errors.Join(errList...); err != nil {
		return Settings{}, err
	}

	retries := 0
	if c.RetryCount != nil {
		retries = *c.RetryCount
	}

	switch {
	case minInterval <= 0:
		return Settings{}, fmt.Errorf("min_interval must be positive, got %s", minInterval)
	case timeout <= 0:
		return Settings{}, fmt.Errorf("timeout must be positive, got %s", timeout)
	case retries < 0:
		return Settings{}, fmt.Errorf("retry_count must not be negative, got %d", retries)
	case c.FollowPages < 1:
		return Settings{}, fmt.Errorf("follow_pages must be at least 1, got %d", c.FollowPages)
	case c.ForumId < 1:
		return Settings{}, fmt.Errorf("forum_id must be positive, got %d", c.ForumId)
	case perfInterval < 0:
		return Settings{}, fmt.Errorf("perf_stats_interval must not be negative, got %s", perfInterval)
	}

	return Settings{
		BaseUrl:           baseUrl,
		CookieFile:        c.CookieFile,
		Debug:             enabled(c.Debug),
		HttpDumpDir:       c.HttpDumpDir,
		PerfStatsInterval: perfInterval,
		Transport: core.Options{
			BaseUrl:      baseUrl.String(),
			UserAgent:    c.UserAgent,
			Timeout:      timeout,
			MinInterval:  minInterval,
			RetryCount:   retries,
			RetryWait:    retryWait,
			RetryMaxWait: retryMaxWait,
		},
		Forum: forum.Options{
			BaseUrl:         baseUrl,
			ForumId:         c.ForumId,
			BrowseFallback:  enabled(c.BrowseFallback),
			IncludePostHtml: enabled(c.IncludePostHtml),
			FollowPages:     c.FollowPages,
		},
		Telemetry: c.Telemetry,
	}, nil
}

type Credentials struct {
	Username string
	Password string
}

// CredentialsFromEnv reads the optional login credentials, they only feed
// the best effort login at start up.
func CredentialsFromEnv() (Credentials, bool) {
	creds := Credentials{
		Username: os.Getenv("TRADESTATION_USERNAME"),
		Password: os.Getenv("TRADESTATION_PASSWORD"),
	}
	return creds, creds.Username != "" && creds.Password != ""
}
