package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/licentra/licentra-go/licentra"
)

var testCreds = licentra.Credentials{AppID: "app-0123456789", APISecret: "secret-abcdefghij"}

// fakeUpstream records relayed keys and answers with a canned response.
type fakeUpstream struct {
	mu    sync.Mutex
	keys  []string
	resp  *licentra.Response
	err   error
	calls int
}

func (f *fakeUpstream) Relay(ctx context.Context, licenseKey string) (*licentra.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.keys = append(f.keys, licenseKey)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func okUpstream(body string) *fakeUpstream {
	return &fakeUpstream{resp: &licentra.Response{StatusCode: http.StatusOK, Status: "200 OK", Body: []byte(body)}}
}

func newTestServer(up Upstream, opts ...Option) http.Handler {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewServer(up, testCreds, opts...).Routes()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestServer_RelaysUpstreamAnswer(t *testing.T) {
	up := okUpstream(`{"data":{"valid":true}}`)
	rec := do(t, newTestServer(up), http.MethodPost, ValidatePath, `{"licenseKey":"  LIC-1 "}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"data":{"valid":true}}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, []string{"LIC-1"}, up.keys)
}

func TestServer_RelaysUpstreamStatus(t *testing.T) {
	up := &fakeUpstream{resp: &licentra.Response{
		StatusCode: http.StatusUnauthorized,
		Body:       []byte(`{"success":false,"message":"invalid credentials"}`),
	}}
	rec := do(t, newTestServer(up), http.MethodPost, ValidatePath, `{"licenseKey":"LIC"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"invalid credentials"}`, rec.Body.String())
}

func TestServer_NotFound(t *testing.T) {
	up := okUpstream(`{}`)
	h := newTestServer(up)

	cases := []struct{ method, path string }{
		{http.MethodPost, "/"},
		{http.MethodPost, "/validate"},
		{http.MethodPost, "/validate-license/"},
		{http.MethodGet, "/metrics"},
		{http.MethodGet, ValidatePath},
		{http.MethodPut, ValidatePath},
	}
	for _, c := range cases {
		rec := do(t, h, c.method, c.path, `{"licenseKey":"LIC"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s", c.method, c.path)
		assert.Equal(t, ErrorBody{Success: false, Message: MsgNotFound}, decodeError(t, rec))
	}
	assert.Zero(t, up.calls)
}

func TestServer_DeclaredBodyTooLarge(t *testing.T) {
	up := okUpstream(`{}`)
	body := `{"licenseKey":"` + strings.Repeat("k", MaxBodyBytes) + `"}`
	rec := do(t, newTestServer(up), http.MethodPost, ValidatePath, body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, MsgPayloadTooLarge, decodeError(t, rec).Message)
	assert.Zero(t, up.calls)
}

func TestServer_UndeclaredBodyTooLarge(t *testing.T) {
	up := okUpstream(`{}`)
	body := `{"licenseKey":"` + strings.Repeat("k", MaxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, ValidatePath, io.NopCloser(strings.NewReader(body)))
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	newTestServer(up).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, MsgPayloadTooLarge, decodeError(t, rec).Message)
	assert.Zero(t, up.calls)
}

func TestServer_BodyAtLimit(t *testing.T) {
	up := okUpstream(`{"data":{"valid":false}}`)
	key := strings.Repeat("k", MaxBodyBytes-len(`{"licenseKey":""}`))
	rec := do(t, newTestServer(up), http.MethodPost, ValidatePath, `{"licenseKey":"`+key+`"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, up.calls)
}

func TestServer_InvalidJSON(t *testing.T) {
	up := okUpstream(`{}`)
	h := newTestServer(up)

	for _, body := range []string{`not json`, `{"licenseKey":`, `[]`, `"LIC"`, `{"licenseKey":5}`} {
		rec := do(t, h, http.MethodPost, ValidatePath, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, ErrorBody{Success: false, Message: MsgInvalidJSON}, decodeError(t, rec), body)
	}
	assert.Zero(t, up.calls)
}

func TestServer_LicenseKeyRequired(t *testing.T) {
	up := okUpstream(`{}`)
	h := newTestServer(up)

	for _, body := range []string{``, `{}`, `null`, `{"licenseKey":""}`, `{"licenseKey":"   "}`, `{"licenseKey":null}`} {
		rec := do(t, h, http.MethodPost, ValidatePath, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, ErrorBody{Success: false, Message: MsgKeyRequired}, decodeError(t, rec), body)
	}
	assert.Zero(t, up.calls)
}

func TestServer_UpstreamTransportError(t *testing.T) {
	up := &fakeUpstream{err: errors.New("dial tcp: connection refused")}
	rec := do(t, newTestServer(up), http.MethodPost, ValidatePath, `{"licenseKey":"LIC"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ErrorBody{Success: false, Message: MsgProxyError}, decodeError(t, rec))
}

func TestServer_UpstreamNonJSON(t *testing.T) {
	up := &fakeUpstream{resp: &licentra.Response{StatusCode: http.StatusBadGateway, Body: []byte("<html>bad gateway</html>")}}
	rec := do(t, newTestServer(up), http.MethodPost, ValidatePath, `{"licenseKey":"LIC"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, MsgProxyError, decodeError(t, rec).Message)
}

func TestServer_UpstreamEchoingSecretIsNotRelayed(t *testing.T) {
	up := okUpstream(`{"debug":{"apiSecret":"` + testCreds.APISecret + `"}}`)
	rec := do(t, newTestServer(up), http.MethodPost, ValidatePath, `{"licenseKey":"LIC"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), testCreds.APISecret)
}

func TestServer_KeepsCallerRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, ValidatePath, strings.NewReader(`{"licenseKey":"LIC"}`))
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	newTestServer(okUpstream(`{}`)).ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	h := newTestServer(okUpstream(`{"data":{"valid":true}}`), WithMetrics(m))

	do(t, h, http.MethodPost, ValidatePath, `{"licenseKey":"LIC"}`)
	do(t, h, http.MethodPost, ValidatePath, `{"licenseKey":""}`)
	do(t, h, http.MethodGet, "/nope", ``)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(OutcomeRelayed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(OutcomeMissingKey)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(OutcomeNotFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamResponses.WithLabelValues("200")))
}

// Whatever the caller sends, the upstream receives exactly the three-field
// payload with the configured credentials, and no answer carries them.
func TestServer_ForwardedPayloadProperty(t *testing.T) {
	var (
		mu       sync.Mutex
		received []map[string]any
	)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		mu.Lock()
		received = append(received, payload)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"success":true,"data":{"valid":false,"reason":"license_not_found"}}`)
	}))
	defer upstream.Close()

	client := licentra.NewClient(upstream.URL, testCreds)
	h := newTestServer(client)

	rapid.Check(t, func(t *rapid.T) {
		key := rapid.StringMatching(`[A-Za-z0-9 \-]{0,40}`).Draw(t, "key")
		extra := rapid.MapOf(
			rapid.SampledFrom([]string{"appId", "apiSecret", "hwid", "extra"}),
			rapid.StringMatching(`[a-z]{0,10}`),
		).Draw(t, "extra")

		body := map[string]any{"licenseKey": key}
		for k, v := range extra {
			body[k] = v
		}
		raw, _ := json.Marshal(body)

		mu.Lock()
		received = nil
		mu.Unlock()

		req := httptest.NewRequest(http.MethodPost, ValidatePath, strings.NewReader(string(raw)))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if strings.Contains(rec.Body.String(), testCreds.APISecret) || strings.Contains(rec.Body.String(), testCreds.AppID) {
			t.Fatalf("credentials leaked in %s", rec.Body.String())
		}

		trimmed := strings.TrimSpace(key)
		mu.Lock()
		defer mu.Unlock()
		if trimmed == "" {
			if rec.Code != http.StatusBadRequest || len(received) != 0 {
				t.Fatalf("empty key: got %d, %d upstream calls", rec.Code, len(received))
			}
			return
		}
		if rec.Code != http.StatusOK || len(received) != 1 {
			t.Fatalf("got %d, %d upstream calls", rec.Code, len(received))
		}
		want := map[string]any{
			"appId":      testCreds.AppID,
			"apiSecret":  testCreds.APISecret,
			"licenseKey": trimmed,
		}
		got := received[0]
		if len(got) != len(want) {
			t.Fatalf("forwarded %v, want %v", got, want)
		}
		for k, v := range want {
			if got[k] != v {
				t.Fatalf("forwarded %s=%v, want %v", k, got[k], v)
			}
		}
	})
}
