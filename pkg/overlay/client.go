// Package overlay is a Go client for the newsoverlay dashboard API.
package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// ErrNotFound is returned when the server has no data for the request.
var ErrNotFound = errors.New("not found")

// Client provides a Go SDK for interacting with the overlay-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new overlay API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Tickers returns the symbols available for charting.
func (c *Client) Tickers(ctx context.Context) (*TickersResponse, error) {
	var resp TickersResponse
	if err := c.do(ctx, http.MethodGet, "/api/tickers", &resp); err != nil {
		return nil, fmt.Errorf("Tickers: %w", err)
	}
	return &resp, nil
}

// Chart returns candles and sentiment markers for symbol.
func (c *Client) Chart(ctx context.Context, symbol string) (*ChartResponse, error) {
	var resp ChartResponse
	if err := c.do(ctx, http.MethodGet, "/api/chart/"+url.PathEscape(symbol), &resp); err != nil {
		return nil, fmt.Errorf("Chart %s: %w", symbol, err)
	}
	return &resp, nil
}

// News returns the news detail rows for symbol on date.
func (c *Client) News(ctx context.Context, symbol string, date civil.Date) (*NewsResponse, error) {
	path := "/api/news/" + url.PathEscape(symbol) + "?date=" + url.QueryEscape(date.String())
	var resp NewsResponse
	if err := c.do(ctx, http.MethodGet, path, &resp); err != nil {
		return nil, fmt.Errorf("News %s %s: %w", symbol, date, err)
	}
	return &resp, nil
}

// Refresh forces the server to reload its data.
func (c *Client) Refresh(ctx context.Context) (*RefreshResponse, error) {
	var resp RefreshResponse
	if err := c.do(ctx, http.MethodPost, "/api/refresh", &resp); err != nil {
		return nil, fmt.Errorf("Refresh: %w", err)
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, msg)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
