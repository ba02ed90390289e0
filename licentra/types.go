package licentra

import (
	"encoding/json"
	"strings"
	"time"
)

// Placeholder values shipped in templates. Credentials containing
// PlaceholderMarker are rejected by Credentials.Validate.
const (
	PlaceholderMarker    = "<"
	PlaceholderAppID     = "<your-app-id>"
	PlaceholderAPISecret = "<your-app-secret>"
)

// Credentials identify an application to the validation API.
type Credentials struct {
	AppID     string
	APISecret string
}

// Validate reports whether the credentials can be sent upstream.
func (c Credentials) Validate() error {
	if c.AppID == "" || c.APISecret == "" {
		return ErrMissingCredentials
	}
	if strings.Contains(c.AppID, PlaceholderMarker) || strings.Contains(c.APISecret, PlaceholderMarker) {
		return ErrPlaceholderCredentials
	}
	return nil
}

// String never includes the secret.
func (c Credentials) String() string {
	return "app " + c.AppID
}

// ValidateRequest is the request body for /api/licenses/validate.
type ValidateRequest struct {
	AppID      string `json:"appId"`
	APISecret  string `json:"apiSecret"`
	LicenseKey string `json:"licenseKey"`
	HWID       string `json:"hwid,omitempty"`
}

// ProxyRequest is the only body a proxy caller may send.
type ProxyRequest struct {
	LicenseKey string `json:"licenseKey"`
}

// Response is a completed HTTP exchange with the validation API, whatever its status.
type Response struct {
	StatusCode int
	Status     string
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Result is a decoded validation answer. Raw keeps the body exactly as received.
type Result struct {
	Raw     json.RawMessage `json:"-"`
	Success bool            `json:"success"`
	Data    ResultData      `json:"data"`
}

// ResultData is the "data" object of a validation answer.
// Reason is set when Valid is false (e.g. "license_expired", "hwid_mismatch").
type ResultData struct {
	Valid   bool     `json:"valid"`
	Reason  string   `json:"reason,omitempty"`
	License *License `json:"license,omitempty"`
}

// License is returned alongside a valid answer.
type License struct {
	ID         string     `json:"id"`
	Key        string     `json:"key"`
	Note       string     `json:"note,omitempty"`
	Status     string     `json:"status"`
	ExpiryDate *time.Time `json:"expiryDate,omitempty"`
	HWIDLocked bool       `json:"hwidLocked"`
	HWIDLimit  int        `json:"hwidLimit"`
	HWIDs      []string   `json:"hwids,omitempty"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
	UpdatedAt  *time.Time `json:"updatedAt,omitempty"`
}

// ParseResult decodes a validation answer. The body must be JSON, but its
// shape is not guaranteed: a missing or ill-typed "data" object yields an
// invalid result rather than an error.
func ParseResult(body []byte) (*Result, error) {
	var doc json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	res := &Result{Raw: doc}

	var envelope struct {
		Success json.RawMessage `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(doc, &envelope); err != nil {
		return res, nil
	}
	_ = json.Unmarshal(envelope.Success, &res.Success)

	var data struct {
		Valid   json.RawMessage `json:"valid"`
		Reason  json.RawMessage `json:"reason"`
		License json.RawMessage `json:"license"`
	}
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return res, nil
	}
	_ = json.Unmarshal(data.Valid, &res.Data.Valid)
	_ = json.Unmarshal(data.Reason, &res.Data.Reason)
	if len(data.License) > 0 && string(data.License) != "null" {
		var lic License
		if err := json.Unmarshal(data.License, &lic); err == nil {
			res.Data.License = &lic
		}
	}
	return res, nil
}
