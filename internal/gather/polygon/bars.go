package polygon

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"newsoverlay/internal/domain"
)

type aggsResponse struct {
	envelope
	Ticker  string    `json:"ticker"`
	Results []aggsBar `json:"results"`
}

// aggsBar mirrors one element of the aggregates "results" array.
type aggsBar struct {
	Timestamp int64   `json:"t"` // Unix ms
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
	VWAP      float64 `json:"vw"`
	Trades    int64   `json:"n"`
}

// DailyBars fetches adjusted daily bars for symbol between start and end
// inclusive, ascending by time.
func (c *Client) DailyBars(ctx context.Context, symbol string, start, end civil.Date) ([]domain.Bar, error) {
	symbol = strings.ToUpper(symbol)
	next := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/1/day/%s/%s?adjusted=true&sort=asc&limit=50000",
		c.cfg.BaseURL, url.PathEscape(symbol), start, end)

	var bars []domain.Bar
	for next != "" {
		var resp aggsResponse
		if err := c.get(ctx, next, &resp); err != nil {
			return bars, fmt.Errorf("fetching bars for %s: %w", symbol, err)
		}
		if !resp.ok() {
			return bars, fmt.Errorf("fetching bars for %s: %w: %s", symbol, ErrStatus, resp.problem())
		}
		for _, r := range resp.Results {
			bars = append(bars, domain.Bar{
				Symbol:     symbol,
				Timestamp:  time.UnixMilli(r.Timestamp).UTC(),
				Open:       r.Open,
				High:       r.High,
				Low:        r.Low,
				Close:      r.Close,
				Volume:     r.Volume,
				VWAP:       r.VWAP,
				TradeCount: r.Trades,
			})
		}
		next = resp.NextURL
	}

	c.log.Info("fetched bars", "symbol", symbol, "rows", len(bars))
	return bars, nil
}
