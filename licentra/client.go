package licentra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 1 << 20 // 1 MB

	// ValidatePath is the validation endpoint of the Licentra API.
	ValidatePath = "/api/licenses/validate"
)

// Client calls the validation API directly with application credentials.
type Client struct {
	baseURL string
	creds   Credentials
	cfg     clientConfig
}

// NewClient creates a client for the Licentra API.
// baseURL is the base URL (e.g. "http://localhost:3000").
func NewClient(baseURL string, creds Credentials, opts ...ClientOption) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		cfg:     newClientConfig(opts),
	}
}

// Endpoint returns the URL requests are posted to.
func (c *Client) Endpoint() string {
	return c.baseURL + ValidatePath
}

// Validate checks whether a license key is valid.
// A completed call returns a Result even when the license is invalid;
// non-2xx answers are returned as *UpstreamError.
func (c *Client) Validate(ctx context.Context, licenseKey string) (*Result, error) {
	licenseKey = strings.TrimSpace(licenseKey)
	if licenseKey == "" {
		return nil, ErrLicenseKeyRequired
	}
	resp, err := postJSON(ctx, c.cfg, c.Endpoint(), ValidateRequest{
		AppID:      c.creds.AppID,
		APISecret:  c.creds.APISecret,
		LicenseKey: licenseKey,
		HWID:       c.cfg.hwid,
	})
	if err != nil {
		return nil, err
	}
	return decodeResult(resp)
}

// Relay sends the three-field validation payload and returns the answer
// whatever its status. It only fails on transport errors.
func (c *Client) Relay(ctx context.Context, licenseKey string) (*Response, error) {
	return postJSON(ctx, c.cfg, c.Endpoint(), ValidateRequest{
		AppID:      c.creds.AppID,
		APISecret:  c.creds.APISecret,
		LicenseKey: licenseKey,
	})
}

// ProxyClient validates license keys through a credential-hiding proxy.
type ProxyClient struct {
	proxyURL string
	cfg      clientConfig
}

// NewProxyClient creates a client posting to proxyURL
// (e.g. "http://localhost:4000/validate-license").
func NewProxyClient(proxyURL string, opts ...ClientOption) *ProxyClient {
	return &ProxyClient{
		proxyURL: proxyURL,
		cfg:      newClientConfig(opts),
	}
}

// Endpoint returns the URL requests are posted to.
func (c *ProxyClient) Endpoint() string {
	return c.proxyURL
}

// Validate sends only the license key to the proxy.
func (c *ProxyClient) Validate(ctx context.Context, licenseKey string) (*Result, error) {
	licenseKey = strings.TrimSpace(licenseKey)
	if licenseKey == "" {
		return nil, ErrLicenseKeyRequired
	}
	resp, err := postJSON(ctx, c.cfg, c.proxyURL, ProxyRequest{LicenseKey: licenseKey})
	if err != nil {
		return nil, err
	}
	return decodeResult(resp)
}

// postJSON performs a POST request with JSON body and reads the whole answer.
func postJSON(ctx context.Context, cfg clientConfig, url string, body interface{}) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if cfg.userAgent != "" {
		req.Header.Set("User-Agent", cfg.userAgent)
	}

	resp, err := cfg.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       respBody,
	}, nil
}

func decodeResult(resp *Response) (*Result, error) {
	if !resp.OK() {
		return nil, newUpstreamError(resp)
	}
	res, err := ParseResult(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return res, nil
}
