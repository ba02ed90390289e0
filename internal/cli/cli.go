// Package cli holds the flow shared by the license validation commands:
// banner, license key input, one validation call and the printed verdict.
package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/licentra/licentra-go/licentra"
)

// Validator is implemented by *licentra.Client and *licentra.ProxyClient.
type Validator interface {
	Validate(ctx context.Context, licenseKey string) (*licentra.Result, error)
}

// Setting is one line of the banner.
type Setting struct {
	Name  string
	Value string
}

// Runner performs a single validation and reports it on Out.
type Runner struct {
	Title     string
	Settings  []Setting
	Heading   string // printed above the JSON answer
	Validator Validator
	In        io.Reader
	Out       io.Writer
	Logger    *slog.Logger
}

// reportedError marks an error whose message was already printed.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// Reported reports whether err was already printed for the user.
func Reported(err error) bool {
	var re *reportedError
	return errors.As(err, &re)
}

// Fail prints msg and returns err marked as reported.
func Fail(out io.Writer, msg string, err error) error {
	fmt.Fprintln(out, msg)
	return &reportedError{err: err}
}

// Banner prints the title and the effective settings.
func (r *Runner) Banner() {
	fmt.Fprintln(r.Out, r.Title)
	width := 0
	for _, s := range r.Settings {
		width = max(width, len(s.Name))
	}
	for _, s := range r.Settings {
		fmt.Fprintf(r.Out, "  %-*s: %s\n", width, s.Name, s.Value)
	}
}

// Run validates presetKey, prompting for a key when it is empty. A nil error
// means the call completed, whether or not the license is valid.
func (r *Runner) Run(ctx context.Context, presetKey string) error {
	key, err := r.licenseKey(presetKey)
	if err != nil {
		return Fail(r.Out, "License key is required.", err)
	}

	res, err := r.Validator.Validate(ctx, key)
	if err != nil {
		return r.reportError(err)
	}

	fmt.Fprintln(r.Out, r.Heading)
	fmt.Fprintln(r.Out, prettyJSON(res.Raw))
	if res.Data.Valid {
		fmt.Fprintln(r.Out, "License is valid.")
	} else {
		reason := res.Data.Reason
		if reason == "" {
			reason = "unknown"
		}
		fmt.Fprintf(r.Out, "License invalid: %s\n", reason)
	}
	return nil
}

func (r *Runner) licenseKey(preset string) (string, error) {
	if key := strings.TrimSpace(preset); key != "" {
		return key, nil
	}
	fmt.Fprint(r.Out, "Enter license key: ")
	line, err := bufio.NewReader(r.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read license key: %w", err)
	}
	key := strings.TrimSpace(line)
	if key == "" {
		return "", licentra.ErrLicenseKeyRequired
	}
	return key, nil
}

func (r *Runner) reportError(err error) error {
	if errors.Is(err, licentra.ErrLicenseKeyRequired) {
		return Fail(r.Out, "License key is required.", err)
	}

	var ue *licentra.UpstreamError
	if !errors.As(err, &ue) {
		r.logger().Debug("validation failed", "error", err)
		return Fail(r.Out, fmt.Sprintf("Unexpected error: %v", err), err)
	}

	fmt.Fprintf(r.Out, "HTTP error: %s\n", ue.Status)
	if body, ok := ue.JSON(); ok {
		fmt.Fprintf(r.Out, "Response body: %s\n", compactJSON(body))
	} else {
		fmt.Fprintf(r.Out, "Raw body: %s\n", ue.Body)
	}
	return &reportedError{err: err}
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func prettyJSON(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func compactJSON(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
