// Package alpaca adapts the Alpaca market-data API as an alternative source
// of daily price bars.
package alpaca

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"newsoverlay/internal/domain"
	"newsoverlay/internal/util"
)

// BarSource fetches daily bars from Alpaca.
type BarSource struct {
	client *marketdata.Client
	feed   string
	log    *slog.Logger
}

// NewBarSource creates a BarSource with the given Alpaca credentials. An
// empty dataURL selects the SDK default endpoint.
func NewBarSource(apiKey, apiSecret, dataURL, feed string, log *slog.Logger) *BarSource {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if log == nil {
		log = slog.Default()
	}

	return &BarSource{
		client: marketdata.NewClient(opts),
		feed:   feed,
		log:    log.With("source", "alpaca"),
	}
}

// Name returns the source identifier.
func (s *BarSource) Name() string { return "alpaca" }

// DailyBars fetches split-adjusted daily bars for symbol between start and
// end inclusive.
func (s *BarSource) DailyBars(ctx context.Context, symbol string, start, end civil.Date) ([]domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	symbol = strings.ToUpper(symbol)
	req := marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Start:      util.StartOfDay(start),
		End:        util.EndOfDay(end),
		Adjustment: marketdata.Split,
	}
	if s.feed != "" {
		req.Feed = marketdata.Feed(s.feed)
	}

	alpacaBars, err := s.client.GetBars(symbol, req)
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", symbol, err)
	}

	bars := convertBars(symbol, alpacaBars)
	s.log.Info("fetched bars", "symbol", symbol, "rows", len(bars))
	return bars, nil
}

func convertBars(symbol string, alpacaBars []marketdata.Bar) []domain.Bar {
	bars := make([]domain.Bar, 0, len(alpacaBars))
	for _, ab := range alpacaBars {
		bars = append(bars, domain.Bar{
			Symbol:     symbol,
			Timestamp:  ab.Timestamp.UTC(),
			Open:       ab.Open,
			High:       ab.High,
			Low:        ab.Low,
			Close:      ab.Close,
			Volume:     float64(ab.Volume),
			VWAP:       ab.VWAP,
			TradeCount: int64(ab.TradeCount),
		})
	}
	return bars
}
