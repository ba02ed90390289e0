package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/licentra/licentra-go/licentra"
)

const (
	DefaultBaseURL  = "http://localhost:3000"
	DefaultProxyURL = "http://localhost:4000/validate-license"
	DefaultPort     = 4000
)

// Config holds all configuration shared by the commands
type Config struct {
	// Upstream validation API
	Upstream UpstreamConfig

	// Proxy server and proxy client
	Proxy ProxyConfig

	// Client input
	LicenseKey string
	HWID       string

	Log LogConfig
}

// UpstreamConfig holds the validation API location and credentials
type UpstreamConfig struct {
	BaseURL   string
	AppID     string
	AppSecret string
}

// ProxyConfig holds proxy configuration
type ProxyConfig struct {
	URL         string
	Port        int
	MetricsAddr string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Upstream: UpstreamConfig{
			BaseURL:   getEnvString("LICENTRA_BASE_URL", DefaultBaseURL),
			AppID:     os.Getenv("LICENTRA_APP_ID"),
			AppSecret: os.Getenv("LICENTRA_APP_SECRET"),
		},
		Proxy: ProxyConfig{
			URL:         getEnvString("PROXY_URL", DefaultProxyURL),
			Port:        getEnvInt("PORT", DefaultPort),
			MetricsAddr: os.Getenv("METRICS_ADDR"),
		},
		LicenseKey: strings.TrimSpace(os.Getenv("LICENTRA_LICENSE_KEY")),
		HWID:       os.Getenv(licentra.HWIDEnv),
		Log: LogConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "text"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Proxy.Port <= 0 || c.Proxy.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Proxy.Port)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Credentials returns the configured credentials as-is; the proxy requires both.
func (c *Config) Credentials() licentra.Credentials {
	return licentra.Credentials{
		AppID:     c.Upstream.AppID,
		APISecret: c.Upstream.AppSecret,
	}
}

// ClientCredentials substitutes template placeholders for unset values so the
// direct client reports a configuration reminder rather than a missing value.
func (c *Config) ClientCredentials() licentra.Credentials {
	creds := c.Credentials()
	if creds.AppID == "" {
		creds.AppID = licentra.PlaceholderAppID
	}
	if creds.APISecret == "" {
		creds.APISecret = licentra.PlaceholderAPISecret
	}
	return creds
}

// ListenAddr returns the proxy listen address
func (c *Config) ListenAddr() string {
	return ":" + strconv.Itoa(c.Proxy.Port)
}

// getEnvString returns the environment variable value or a default
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns the environment variable as int or a default
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
