// Package polygon fetches daily aggregates and news articles from the
// Polygon.io REST API.
package polygon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"newsoverlay/internal/util"
)

// ErrStatus is returned when the API answers with a non-success HTTP status
// or a non-OK status field.
var ErrStatus = errors.New("polygon: unexpected response")

// Config holds everything the client needs. It is passed in explicitly so no
// credentials live in package state.
type Config struct {
	APIKey          string
	BaseURL         string
	RateLimitPerMin int
	Timeout         time.Duration
	MaxRetries      int
	NewsLimit       int
}

// Client talks to the Polygon REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *util.RateLimiter
	log        *slog.Logger
	now        func() time.Time
	retryDelay time.Duration
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config, log *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.polygon.io"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.NewsLimit <= 0 || cfg.NewsLimit > 1000 {
		cfg.NewsLimit = 1000
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    util.NewRateLimiter(cfg.RateLimitPerMin),
		log:        log.With("source", "polygon"),
		now:        time.Now,
		retryDelay: time.Second,
	}
}

// Name returns the source identifier.
func (c *Client) Name() string { return "polygon" }

// envelope is the part of every Polygon response the client inspects.
type envelope struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	NextURL   string `json:"next_url"`
}

func (e envelope) ok() bool {
	return e.Status == "OK" || e.Status == "DELAYED"
}

func (e envelope) problem() string {
	if e.Error != "" {
		return e.Error
	}
	if e.Message != "" {
		return e.Message
	}
	return "status " + e.Status
}

// get performs a rate-limited, retried GET of rawURL with the API key
// attached, decoding the JSON body into v.
func (c *Client) get(ctx context.Context, rawURL string, v any) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parsing url: %w", err)
	}
	q := u.Query()
	q.Set("apiKey", c.cfg.APIKey)
	u.RawQuery = q.Encode()

	return util.Retry(ctx, max(c.cfg.MaxRetries, 1), c.retryDelay, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return &util.Permanent{Err: err}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return &util.Permanent{Err: err}
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.log.Warn("request failed", "path", u.Path, "error", err)
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode != http.StatusOK {
			var env envelope
			_ = json.Unmarshal(body, &env)
			err := fmt.Errorf("%w: %s %s: %s", ErrStatus, resp.Status, u.Path, env.problem())
			// Only throttling and server errors are worth another attempt.
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				c.log.Warn("retrying", "path", u.Path, "status", resp.StatusCode)
				return err
			}
			return &util.Permanent{Err: err}
		}

		if err := json.Unmarshal(body, v); err != nil {
			return &util.Permanent{Err: fmt.Errorf("decoding %s: %w", u.Path, err)}
		}
		return nil
	})
}
