package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/guregu/null/v6"

	"newsoverlay/internal/domain"
)

type newsResponse struct {
	envelope
	Count   int           `json:"count"`
	Results []newsArticle `json:"results"`
}

type newsArticle struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Author       string            `json:"author"`
	Description  string            `json:"description"`
	ArticleURL   string            `json:"article_url"`
	AMPURL       string            `json:"amp_url"`
	ImageURL     string            `json:"image_url"`
	PublishedUTC string            `json:"published_utc"`
	Publisher    newsPublisher     `json:"publisher"`
	Tickers      []string          `json:"tickers"`
	Keywords     []string          `json:"keywords"`
	Insights     []json.RawMessage `json:"insights"`
}

type newsPublisher struct {
	Name        string `json:"name"`
	HomepageURL string `json:"homepage_url"`
	LogoURL     string `json:"logo_url"`
	FaviconURL  string `json:"favicon_url"`
}

type newsInsight struct {
	Ticker    null.String `json:"ticker"`
	Sentiment null.String `json:"sentiment"`
	Reasoning null.String `json:"sentiment_reasoning"`
}

// News fetches every article mentioning symbol published on or after start
// and before the end of end, following next_url pagination.
func (c *Client) News(ctx context.Context, symbol string, start, end civil.Date) ([]domain.NewsArticle, error) {
	symbol = strings.ToUpper(symbol)

	q := url.Values{}
	q.Set("ticker", symbol)
	q.Set("published_utc.gte", start.String())
	q.Set("published_utc.lt", end.AddDays(1).String())
	q.Set("order", "asc")
	q.Set("sort", "published_utc")
	q.Set("limit", strconv.Itoa(c.cfg.NewsLimit))
	next := c.cfg.BaseURL + "/v2/reference/news?" + q.Encode()

	ingested := c.now().UTC()
	var (
		articles []domain.NewsArticle
		pages    int
		dropped  int
	)
	for next != "" {
		var resp newsResponse
		if err := c.get(ctx, next, &resp); err != nil {
			return articles, fmt.Errorf("fetching news for %s: %w", symbol, err)
		}
		if !resp.ok() {
			return articles, fmt.Errorf("fetching news for %s: %w: %s", symbol, ErrStatus, resp.problem())
		}
		pages++

		for _, r := range resp.Results {
			a, ok := convertArticle(r, ingested)
			if !ok {
				dropped++
				c.log.Warn("dropping article with unparseable published_utc",
					"id", r.ID, "published_utc", r.PublishedUTC)
				continue
			}
			articles = append(articles, a)
		}
		next = resp.NextURL
	}

	c.log.Info("fetched news", "symbol", symbol, "articles", len(articles), "pages", pages, "dropped", dropped)
	return articles, nil
}

// convertArticle maps the wire shape onto domain.NewsArticle. It reports
// false when the publication time cannot be parsed.
func convertArticle(r newsArticle, ingested time.Time) (domain.NewsArticle, bool) {
	published, err := time.Parse(time.RFC3339, r.PublishedUTC)
	if err != nil {
		return domain.NewsArticle{}, false
	}

	insights := make([]domain.Insight, 0, len(r.Insights))
	for _, raw := range r.Insights {
		insights = append(insights, decodeInsight(raw))
	}

	return domain.NewsArticle{
		ID:          r.ID,
		Title:       r.Title,
		Author:      r.Author,
		Description: r.Description,
		ArticleURL:  r.ArticleURL,
		AMPURL:      r.AMPURL,
		ImageURL:    r.ImageURL,
		PublishedAt: published.UTC(),
		Publisher: domain.Publisher{
			Name:        r.Publisher.Name,
			HomepageURL: r.Publisher.HomepageURL,
			LogoURL:     r.Publisher.LogoURL,
			FaviconURL:  r.Publisher.FaviconURL,
		},
		Tickers:    r.Tickers,
		Keywords:   r.Keywords,
		Insights:   insights,
		IngestedAt: ingested,
	}, true
}

// decodeInsight decodes one insight entry. Entries that are not JSON objects
// with string fields are kept as an all-null insight, which the sentiment
// pipeline later skips.
func decodeInsight(raw json.RawMessage) domain.Insight {
	var in newsInsight
	if err := json.Unmarshal(raw, &in); err != nil {
		return domain.Insight{}
	}
	return domain.Insight{
		Ticker:    in.Ticker,
		Sentiment: in.Sentiment,
		Reasoning: in.Reasoning,
	}
}
