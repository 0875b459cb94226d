package sentiment

import (
	"iter"

	"newsoverlay/internal/domain"
)

// Aggregate groups rows by (ticker, date). Each group's score is the number
// of positive insights minus the number of negative ones; its count is the
// group size, neutral and unrecognised labels included. Only keys with at
// least one row appear in the result.
func Aggregate(rows iter.Seq[domain.InsightRow]) map[domain.SentimentKey]domain.DailySentiment {
	daily := make(map[domain.SentimentKey]domain.DailySentiment)
	for r := range rows {
		k := domain.SentimentKey{Ticker: r.Ticker, Date: r.Date}
		d := daily[k]
		d.Score += r.Sentiment.Weight()
		d.NewsCount++
		daily[k] = d
	}
	return daily
}
