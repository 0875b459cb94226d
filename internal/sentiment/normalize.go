// Package sentiment turns raw news articles into per-day sentiment scores and
// joins them onto daily price bars.
//
// The pipeline has three stages, all pure and in-memory:
//
//	Normalize: articles -> one InsightRow per usable (article, insight) pair
//	Aggregate: InsightRows -> (ticker, date) -> score/count
//	Join:      bars + aggregates -> one MergedRow per bar
package sentiment

import (
	"iter"
	"slices"

	"newsoverlay/internal/domain"
)

// DedupeArticles returns the articles with duplicate IDs removed, keeping the
// first occurrence of each ID in input order.
func DedupeArticles(articles []domain.NewsArticle) []domain.NewsArticle {
	seen := make(map[string]struct{}, len(articles))
	out := make([]domain.NewsArticle, 0, len(articles))
	for _, a := range articles {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	return out
}

// Normalize lazily flattens articles into InsightRows. Articles are
// deduplicated by ID (first occurrence wins) and insights missing a ticker or
// a sentiment are skipped. Malformed insights are never an error.
func Normalize(articles []domain.NewsArticle) iter.Seq[domain.InsightRow] {
	return func(yield func(domain.InsightRow) bool) {
		for _, a := range DedupeArticles(articles) {
			date := domain.DateOf(a.PublishedAt)
			for _, ins := range a.Insights {
				ticker, ok := ins.TickerValue()
				if !ok {
					continue
				}
				label, ok := ins.SentimentValue()
				if !ok {
					continue
				}
				row := domain.InsightRow{
					ArticleID:     a.ID,
					Title:         a.Title,
					ArticleURL:    a.ArticleURL,
					PublisherName: a.Publisher.Name,
					PublishedAt:   a.PublishedAt,
					Date:          date,
					Ticker:        ticker,
					Sentiment:     label,
					Reasoning:     ins.Reasoning.ValueOrZero(),
				}
				if !yield(row) {
					return
				}
			}
		}
	}
}

// NormalizeAll is Normalize collected into a slice.
func NormalizeAll(articles []domain.NewsArticle) []domain.InsightRow {
	return slices.Collect(Normalize(articles))
}
