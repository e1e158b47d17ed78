package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/kozaktomas/checkpoint/internal/config"
	"github.com/kozaktomas/checkpoint/internal/metrics"
)

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = 1 << 20

// FacePlusPlus calls the Face++ compare API.
type FacePlusPlus struct {
	endpoint string
	key      string
	secret   string
	client   *http.Client
	metrics  *metrics.Metrics
}

// New creates a Face++ client. It returns ErrNotConfigured when key or secret is missing.
func New(cfg config.OracleConfig, m *metrics.Metrics) (*FacePlusPlus, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}
	parsed, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid comparison endpoint: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid comparison endpoint scheme %q: must be http or https", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("invalid comparison endpoint: missing host")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &FacePlusPlus{
		endpoint: parsed.String(),
		key:      cfg.Key,
		secret:   cfg.Secret,
		client:   &http.Client{Timeout: timeout},
		metrics:  m,
	}, nil
}

// Configured reports whether the client holds credentials. Safe on a nil client.
func (f *FacePlusPlus) Configured() bool {
	return f != nil && f.key != "" && f.secret != ""
}

// Compare submits probe and target and returns the reported confidence.
func (f *FacePlusPlus) Compare(ctx context.Context, probe, target []byte) (float64, error) {
	if !f.Configured() {
		return 0, ErrNotConfigured
	}

	start := time.Now()
	confidence, err := f.compare(ctx, probe, target)
	f.metrics.ObserveOracleCall(outcome(err), time.Since(start))
	return confidence, err
}

func (f *FacePlusPlus) compare(ctx context.Context, probe, target []byte) (float64, error) {
	body, contentType, err := buildForm(f.key, f.secret, probe, target)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, body)
	if err != nil {
		return 0, fmt.Errorf("create comparison request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := f.client.Do(req) //nolint:gosec // endpoint from trusted server config
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, fmt.Errorf("%w: read response: %w", ErrTransport, err)
	}
	return parseResponse(resp.StatusCode, data)
}

func buildForm(key, secret string, probe, target []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for name, value := range map[string]string{"api_key": key, "api_secret": secret} {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", name, err)
		}
	}
	files := []struct {
		field, name string
		data        []byte
	}{
		{"image_file1", "probe.jpg", probe},
		{"image_file2", "target.jpg", target},
	}
	for _, file := range files {
		part, err := w.CreateFormFile(file.field, file.name)
		if err != nil {
			return nil, "", fmt.Errorf("create form file %s: %w", file.field, err)
		}
		if _, err := part.Write(file.data); err != nil {
			return nil, "", fmt.Errorf("write form file %s: %w", file.field, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// parseResponse normalizes a compare response body into a confidence or an error.
func parseResponse(status int, data []byte) (float64, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return 0, fmt.Errorf("%w: response is not JSON (status %d): %w", ErrTransport, status, err)
	}

	if msg, ok := raw["error_message"]; ok {
		var text string
		if err := json.Unmarshal(msg, &text); err != nil || text == "" {
			text = string(msg)
		}
		return 0, &ServiceError{Status: status, Message: text}
	}
	if status < 200 || status >= 300 {
		return 0, fmt.Errorf("%w: status %d", ErrTransport, status)
	}

	value, ok := raw["confidence"]
	if !ok || bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
		return 0, ErrNoConfidence
	}
	var confidence float64
	if err := json.Unmarshal(value, &confidence); err != nil {
		return 0, ErrNoConfidence
	}
	return confidence, nil
}

func outcome(err error) string {
	var svc *ServiceError
	switch {
	case err == nil:
		return metrics.OracleOK
	case errors.As(err, &svc):
		return metrics.OracleServiceError
	case errors.Is(err, ErrNoConfidence):
		return metrics.OracleNoConfidence
	default:
		return metrics.OracleTransportError
	}
}
