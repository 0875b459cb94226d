// Package domain defines the core value types shared across newsoverlay:
// daily price bars, news articles with their sentiment insights, and the
// rows produced by the sentiment pipeline.
package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/guregu/null/v6"
)

// ---------------------------------------------------------------------------
// Price data
// ---------------------------------------------------------------------------

// Bar is one daily OHLCV bar for a symbol.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	VWAP       float64
	TradeCount int64
}

// Date returns the UTC calendar date of the bar.
func (b Bar) Date() civil.Date {
	return DateOf(b.Timestamp)
}

// ---------------------------------------------------------------------------
// News data
// ---------------------------------------------------------------------------

// Sentiment is the label attached to an insight.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Weight returns the contribution of the label to a daily sentiment score:
// +1 for positive, -1 for negative, 0 for anything else.
func (s Sentiment) Weight() int {
	switch s {
	case SentimentPositive:
		return 1
	case SentimentNegative:
		return -1
	default:
		return 0
	}
}

// Publisher describes the outlet that published an article.
type Publisher struct {
	Name        string
	HomepageURL string
	LogoURL     string
	FaviconURL  string
}

// Insight is a per-ticker sentiment judgement carried by a news article.
// Upstream data may omit any of the fields, so all of them are nullable.
type Insight struct {
	Ticker    null.String
	Sentiment null.String
	Reasoning null.String
}

// TickerValue returns the insight ticker and whether it is present.
func (i Insight) TickerValue() (string, bool) {
	return i.Ticker.String, i.Ticker.Valid
}

// SentimentValue returns the insight sentiment and whether it is present.
func (i Insight) SentimentValue() (Sentiment, bool) {
	return Sentiment(i.Sentiment.String), i.Sentiment.Valid
}

// NewsArticle is a single news article with its insights.
type NewsArticle struct {
	ID          string
	Title       string
	Author      string
	Description string
	ArticleURL  string
	AMPURL      string
	ImageURL    string
	PublishedAt time.Time
	Publisher   Publisher
	Tickers     []string
	Keywords    []string
	Insights    []Insight

	// IngestedAt is when the article was fetched. Stores return articles in
	// ingestion order so that "first seen" means "first fetched".
	IngestedAt time.Time
}

// ---------------------------------------------------------------------------
// Pipeline rows
// ---------------------------------------------------------------------------

// InsightRow is one (article, insight) pair whose insight has both a ticker
// and a sentiment.
type InsightRow struct {
	ArticleID     string
	Title         string
	ArticleURL    string
	PublisherName string
	PublishedAt   time.Time
	Date          civil.Date
	Ticker        string
	Sentiment     Sentiment
	Reasoning     string
}

// SentimentKey identifies one ticker on one calendar day.
type SentimentKey struct {
	Ticker string
	Date   civil.Date
}

// DailySentiment is the aggregate of all insights for a SentimentKey.
type DailySentiment struct {
	Score     int
	NewsCount int
}

// MergedRow is a price bar enriched with that day's sentiment aggregate.
type MergedRow struct {
	Bar
	Date           civil.Date
	SentimentScore int
	NewsCount      int
}

// DateOf returns the calendar date of t interpreted in UTC.
func DateOf(t time.Time) civil.Date {
	return civil.DateOf(t.UTC())
}
