package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/felixgeelhaar/fortify/timeout"

	"github.com/okian/framecoach/internal/domain/model"
	"github.com/okian/framecoach/pkg/logger"
	"github.com/okian/framecoach/pkg/metrics"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 1 << 20
)

// HTTPAnalyzer POSTs the image to a remote analysis endpoint.
type HTTPAnalyzer struct {
	url          string
	token        string
	client       *http.Client
	timeout      time.Duration
	maxBodyBytes int64
	logger       logger.Logger
}

// Option configures an HTTPAnalyzer.
type Option func(*HTTPAnalyzer)

// WithToken sends token as a bearer credential.
func WithToken(token string) Option {
	return func(a *HTTPAnalyzer) { a.token = token }
}

// WithTimeout bounds each call.
func WithTimeout(d time.Duration) Option {
	return func(a *HTTPAnalyzer) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithMaxBodyBytes caps the accepted response size.
func WithMaxBodyBytes(n int64) Option {
	return func(a *HTTPAnalyzer) {
		if n > 0 {
			a.maxBodyBytes = n
		}
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *HTTPAnalyzer) {
		if c != nil {
			a.client = c
		}
	}
}

// WithLogger sets the analyzer logger.
func WithLogger(l logger.Logger) Option {
	return func(a *HTTPAnalyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewHTTP returns an analyzer posting to url.
func NewHTTP(url string, opts ...Option) (*HTTPAnalyzer, error) {
	if url == "" {
		return nil, ErrNoURL
	}
	a := &HTTPAnalyzer{
		url:          url,
		client:       &http.Client{},
		timeout:      defaultTimeout,
		maxBodyBytes: defaultMaxBodyBytes,
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

type analyzeBody struct {
	Image          string          `json:"image"`
	Mode           string          `json:"mode"`
	ActiveTemplate *model.Template `json:"activeTemplate"`
}

// Analyze sends one request. There are no retries; a newer request for the
// same session replaces a failed one.
func (a *HTTPAnalyzer) Analyze(ctx context.Context, req Request) ([]byte, error) {
	start := time.Now()
	defer func() {
		metrics.RecordAnalyzerLatency(float64(time.Since(start).Milliseconds()))
	}()

	body, err := json.Marshal(analyzeBody{Image: req.Image, Mode: req.Mode.String(), ActiveTemplate: req.Template})
	if err != nil {
		return nil, fmt.Errorf("encode analyzer request: %w", err)
	}

	t := timeout.New[[]byte](timeout.Config{DefaultTimeout: a.timeout})
	return t.Execute(ctx, a.timeout, func(ctx context.Context) ([]byte, error) {
		return a.post(ctx, body)
	})
}

func (a *HTTPAnalyzer) post(ctx context.Context, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build analyzer request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if a.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call analyzer: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, a.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read analyzer response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		a.logger.Debug(ctx, "analyzer rejected request",
			logger.Int("status", resp.StatusCode), logger.String("body", truncate(raw, 256)))
		return nil, fmt.Errorf("%w: %s", ErrStatus, resp.Status)
	}
	if int64(len(raw)) > a.maxBodyBytes {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrTooLarge, a.maxBodyBytes)
	}
	return raw, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
