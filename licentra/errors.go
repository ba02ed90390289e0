package licentra

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for configuration and input problems detected before a
// request is sent.
var (
	ErrMissingCredentials     = errors.New("app id and app secret must be set")
	ErrPlaceholderCredentials = errors.New("app id or app secret still holds a placeholder value")
	ErrLicenseKeyRequired     = errors.New("license key is required")
)

// UpstreamError represents a non-2xx answer from the validation API or the proxy.
// Both return errors in the format: {"success": false, "message": "..."}.
type UpstreamError struct {
	StatusCode int
	Status     string
	Message    string
	Body       []byte
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream error %s: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("upstream error %s", e.Status)
}

// JSON returns the body when it is valid JSON.
func (e *UpstreamError) JSON() (json.RawMessage, bool) {
	if !json.Valid(e.Body) {
		return nil, false
	}
	return json.RawMessage(e.Body), true
}

// newUpstreamError parses the error envelope on a best-effort basis; bodies
// that are not JSON keep an empty Message.
func newUpstreamError(resp *Response) *UpstreamError {
	ue := &UpstreamError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       resp.Body,
	}
	var errResp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body, &errResp); err == nil {
		ue.Message = errResp.Message
	}
	return ue
}
