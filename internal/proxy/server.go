// Package proxy implements an HTTP proxy that validates license keys against
// the Licentra API with server-held credentials, so callers only ever send a
// license key.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/licentra/licentra-go/licentra"
)

const (
	// ValidatePath is the only route the proxy serves.
	ValidatePath = "/validate-license"

	// MaxBodyBytes caps the request body.
	MaxBodyBytes = 10_000
)

// Messages of the proxy's own error answers.
const (
	MsgNotFound        = "Not found"
	MsgPayloadTooLarge = "Payload too large"
	MsgInvalidJSON     = "invalid json"
	MsgKeyRequired     = "licenseKey required"
	MsgProxyError      = "proxy error"
)

// Upstream forwards a license key to the validation API. *licentra.Client
// implements it.
type Upstream interface {
	Relay(ctx context.Context, licenseKey string) (*licentra.Response, error)
}

// ErrorBody is the body of every answer the proxy produces itself.
type ErrorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Server handles POST /validate-license.
type Server struct {
	upstream Upstream
	secrets  [][]byte
	logger   *slog.Logger
	metrics  *Metrics
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer creates a proxy forwarding to upstream. creds are the values the
// upstream client sends; an upstream answer containing either of them is
// never relayed.
func NewServer(upstream Upstream, creds licentra.Credentials, opts ...Option) *Server {
	s := &Server{
		upstream: upstream,
		logger:   slog.Default(),
	}
	for _, v := range []string{creds.AppID, creds.APISecret} {
		if v != "" {
			s.secrets = append(s.secrets, []byte(v))
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the router. Every path other than ValidatePath, and every
// method other than POST on it, answers 404.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(s.logger))
	r.Use(middleware.Recoverer)

	r.NotFound(s.notFound)
	r.MethodNotAllowed(s.notFound)
	r.Post(ValidatePath, s.handleValidate)
	return r
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.metrics.recordOutcome(OutcomeNotFound)
	writeError(w, http.StatusNotFound, MsgNotFound)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > MaxBodyBytes {
		s.reject(w, OutcomeTooLarge, http.StatusBadRequest, MsgPayloadTooLarge)
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.reject(w, OutcomeTooLarge, http.StatusBadRequest, MsgPayloadTooLarge)
			return
		}
		s.logger.Warn("read request body", "error", err, "request_id", RequestIDFrom(r.Context()))
		s.reject(w, OutcomeInvalidJSON, http.StatusBadRequest, MsgInvalidJSON)
		return
	}

	licenseKey, err := decodeLicenseKey(raw)
	if err != nil {
		s.reject(w, OutcomeInvalidJSON, http.StatusBadRequest, MsgInvalidJSON)
		return
	}
	if licenseKey == "" {
		s.reject(w, OutcomeMissingKey, http.StatusBadRequest, MsgKeyRequired)
		return
	}

	start := time.Now()
	resp, err := s.upstream.Relay(r.Context(), licenseKey)
	if err != nil {
		s.logger.Error("proxy error", "error", err, "request_id", RequestIDFrom(r.Context()))
		s.reject(w, OutcomeProxyError, http.StatusInternalServerError, MsgProxyError)
		return
	}
	s.metrics.recordUpstream(resp.StatusCode, time.Since(start))

	if !json.Valid(resp.Body) {
		s.logger.Error("proxy error", "error", "upstream answered with a non-JSON body",
			"status", resp.StatusCode, "request_id", RequestIDFrom(r.Context()))
		s.reject(w, OutcomeProxyError, http.StatusInternalServerError, MsgProxyError)
		return
	}
	if s.leaksCredentials(resp.Body) {
		s.logger.Error("proxy error", "error", "upstream answer contains application credentials",
			"status", resp.StatusCode, "request_id", RequestIDFrom(r.Context()))
		s.reject(w, OutcomeProxyError, http.StatusInternalServerError, MsgProxyError)
		return
	}

	s.metrics.recordOutcome(OutcomeRelayed)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}

func (s *Server) reject(w http.ResponseWriter, outcome string, status int, msg string) {
	s.metrics.recordOutcome(outcome)
	writeError(w, status, msg)
}

func (s *Server) leaksCredentials(body []byte) bool {
	for _, secret := range s.secrets {
		if bytes.Contains(body, secret) {
			return true
		}
	}
	return false
}

// decodeLicenseKey parses a proxy request. An empty body counts as {}.
// Only licenseKey is read; any other field is ignored.
func decodeLicenseKey(raw []byte) (string, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", nil
	}
	var req licentra.ProxyRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return "", err
	}
	return strings.TrimSpace(req.LicenseKey), nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorBody{Success: false, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
