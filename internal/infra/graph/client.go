package graph

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/vietddude/inboxd/internal/auth"
	"github.com/vietddude/inboxd/internal/core/domain"
	"github.com/vietddude/inboxd/internal/ingest/metrics"
	"github.com/vietddude/inboxd/internal/retry"
)

// Config holds mail API client settings.
type Config struct {
	Endpoint          string        `yaml:"endpoint"`
	Mailbox           string        `yaml:"mailbox"`
	Folder            string        `yaml:"folder"`
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	MaxAttachmentSize int64         `yaml:"max_attachment_size"`
	// AllowedContentTypes restricts attachment downloads by MIME type.
	// Empty means every type is accepted.
	AllowedContentTypes []string `yaml:"allowed_content_types"`
}

// TokenSource supplies and invalidates bearer credentials.
type TokenSource interface {
	Token(ctx context.Context) (auth.Credential, error)
	Invalidate()
}

// Request describes one outbound API call.
type Request struct {
	Method string
	URL    string
	Query  url.Values
	Header http.Header
	Body   []byte
	// Label names the logical endpoint for metrics; defaults to URL.
	Label string
}

// Response is a fully read API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client is the resilient request executor for the mail API. Each
// status class gets its own recovery policy: 401 invalidates the
// credential and retries immediately, 429 honors Retry-After, 5xx and
// transport errors back off, other 4xx surface at once.
type Client struct {
	cfg        Config
	httpClient *http.Client
	tokens     TokenSource
	backoff    retry.Policy
	log        *slog.Logger

	// Overridable in tests to avoid real sleeps.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a mail API client.
func NewClient(cfg Config, tokens TokenSource) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://graph.microsoft.com/v1.0"
	}
	if cfg.Folder == "" {
		cfg.Folder = "inbox"
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = 1 * time.Second
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 60 * time.Second
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxAttachmentSize == 0 {
		cfg.MaxAttachmentSize = 25 << 20
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		tokens: tokens,
		backoff: retry.Policy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.BaseDelay,
			MaxDelay:    cfg.MaxDelay,
			Multiplier:  2.0,
		},
		log:   slog.Default().With("component", "graph"),
		sleep: retry.Sleep,
	}
}

// Execute performs the request under the client's attempt budget.
func (c *Client) Execute(ctx context.Context, req Request) (*Response, error) {
	endpoint := req.URL
	if req.Query != nil {
		endpoint = req.URL + "?" + req.Query.Encode()
	}
	label := req.Label
	if label == "" {
		label = req.URL
	}

	var (
		lastErr    error
		lastStatus int
	)

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			metrics.RetriesTotal.WithLabelValues(label).Inc()
		}
		resp, err := c.do(ctx, req, endpoint, label)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Token failures are never retried here; the caller's
			// policy owns that decision.
			var authErr *domain.AuthError
			if errors.As(err, &authErr) {
				return nil, err
			}

			lastErr = err
			lastStatus = 0
			metrics.APICallsTotal.WithLabelValues(label, "transport_error").Inc()
			c.log.Warn("Request failed, backing off",
				"url", req.URL, "attempt", attempt, "error", err)
			if attempt < c.cfg.MaxAttempts {
				if err := c.sleep(ctx, c.backoff.Delay(attempt)); err != nil {
					return nil, err
				}
			}
			continue
		}

		metrics.APICallsTotal.WithLabelValues(label, strconv.Itoa(resp.StatusCode)).Inc()

		switch {
		case resp.StatusCode < 300:
			return resp, nil

		case resp.StatusCode == http.StatusUnauthorized:
			// Stale credential: invalidate and retry immediately.
			// Consumes an attempt but no backoff slot.
			c.tokens.Invalidate()
			lastErr = fmt.Errorf("unauthorized (401)")
			lastStatus = resp.StatusCode
			c.log.Warn("Credential rejected, refreshing", "url", req.URL, "attempt", attempt)

		case resp.StatusCode == http.StatusTooManyRequests:
			delay := c.retryAfter(resp, attempt)
			lastErr = fmt.Errorf("rate limited (429)")
			lastStatus = resp.StatusCode
			c.log.Warn("Rate limited, waiting",
				"url", req.URL, "attempt", attempt, "delay", delay)
			if attempt < c.cfg.MaxAttempts {
				if err := c.sleep(ctx, delay); err != nil {
					return nil, err
				}
			}

		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error (%d)", resp.StatusCode)
			lastStatus = resp.StatusCode
			c.log.Warn("Server error, backing off",
				"url", req.URL, "attempt", attempt, "status", resp.StatusCode)
			if attempt < c.cfg.MaxAttempts {
				if err := c.sleep(ctx, c.backoff.Delay(attempt)); err != nil {
					return nil, err
				}
			}

		default:
			// Remaining 4xx are client mistakes; retrying cannot help.
			return nil, &domain.ClientError{
				Endpoint:   req.URL,
				StatusCode: resp.StatusCode,
				Body:       truncate(string(resp.Body), 512),
			}
		}
	}

	return nil, &domain.FetchError{
		Endpoint:   req.URL,
		StatusCode: lastStatus,
		Attempts:   c.cfg.MaxAttempts,
		Err:        lastErr,
	}
}

// do issues a single attempt. The Authorization header is recomputed
// from the current credential on every call, never cached.
func (c *Client) do(ctx context.Context, req Request, endpoint, label string) (*Response, error) {
	cred, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Authorization", "Bearer "+cred.Token)
	if httpReq.Header.Get("Content-Type") == "" && len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()
	metrics.APILatency.WithLabelValues(label).Observe(time.Since(start).Seconds())

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// retryAfter honors the Retry-After header (seconds or HTTP-date),
// falling back to the computed backoff for this attempt.
func (c *Client) retryAfter(resp *Response, attempt int) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header != "" {
		if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(header); err == nil {
			if d := time.Until(at); d > 0 {
				return d
			}
		}
	}
	return c.backoff.Delay(attempt)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
