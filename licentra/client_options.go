package licentra

import (
	"net/http"
	"time"
)

// ClientOption configures a Client or a ProxyClient.
type ClientOption func(*clientConfig)

type clientConfig struct {
	httpClient *http.Client
	timeout    time.Duration // applied after all options
	userAgent  string
	hwid       string
}

func newClientConfig(opts []ClientOption) clientConfig {
	cfg := clientConfig{
		timeout:   defaultTimeout,
		userAgent: "licentra-go/1.0",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{}
	}
	cfg.httpClient.Timeout = cfg.timeout
	return cfg
}

// WithHTTPClient sets a custom HTTP client.
// The client's Timeout will be overridden by WithTimeout (or the default 10s).
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *clientConfig) {
		o.httpClient = c
	}
}

// WithTimeout sets the HTTP client timeout. Default is 10 seconds.
// Option ordering does not matter: timeout is always applied after all options.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientConfig) {
		o.timeout = d
	}
}

// WithUserAgent sets the User-Agent header sent with requests.
func WithUserAgent(ua string) ClientOption {
	return func(o *clientConfig) {
		o.userAgent = ua
	}
}

// WithHWID binds Client.Validate calls to a hardware id (see GenerateFingerprint).
// It has no effect on Client.Relay or on a ProxyClient.
func WithHWID(hwid string) ClientOption {
	return func(o *clientConfig) {
		o.hwid = hwid
	}
}
