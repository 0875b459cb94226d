package sentiment

import (
	"fmt"
	"slices"

	"cloud.google.com/go/civil"

	"newsoverlay/internal/domain"
)

// Result is the output of one pipeline run. It is never mutated after Build
// returns, so it can be shared between concurrent readers.
type Result struct {
	Merged   []domain.MergedRow
	Insights []domain.InsightRow
	Daily    map[domain.SentimentKey]domain.DailySentiment
}

// Build runs normalize, aggregate and join over fully materialized inputs.
func Build(bars []domain.Bar, articles []domain.NewsArticle) (*Result, error) {
	insights := NormalizeAll(articles)

	daily := Aggregate(slices.Values(insights))

	merged, err := Join(bars, daily)
	if err != nil {
		return nil, fmt.Errorf("joining bars with sentiment: %w", err)
	}

	return &Result{
		Merged:   merged,
		Insights: insights,
		Daily:    daily,
	}, nil
}

// Tickers returns the distinct bar symbols in first-seen order.
func (r *Result) Tickers() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range r.Merged {
		if _, ok := seen[m.Symbol]; ok {
			continue
		}
		seen[m.Symbol] = struct{}{}
		out = append(out, m.Symbol)
	}
	return out
}

// Chart returns the merged rows for one symbol, in input order.
func (r *Result) Chart(symbol string) []domain.MergedRow {
	var out []domain.MergedRow
	for _, m := range r.Merged {
		if m.Symbol == symbol {
			out = append(out, m)
		}
	}
	return out
}

// DayNews returns the insight rows for ticker on date.
func (r *Result) DayNews(ticker string, date civil.Date) []domain.InsightRow {
	var out []domain.InsightRow
	for _, row := range r.Insights {
		if row.Ticker == ticker && row.Date == date {
			out = append(out, row)
		}
	}
	return out
}
