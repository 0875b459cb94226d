package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/guregu/null/v6"
	"github.com/parquet-go/parquet-go"

	"newsoverlay/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ NewsStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore and NewsStore using Parquet files on disk.
// It serves as the raw archive next to the warehouse.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for daily bar data.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     float64 `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

// NewsRecord is the Parquet schema for a news article.
type NewsRecord struct {
	ID           string          `parquet:"id"`
	Title        string          `parquet:"title"`
	Author       string          `parquet:"author"`
	Description  string          `parquet:"description"`
	ArticleURL   string          `parquet:"article_url"`
	AMPURL       string          `parquet:"amp_url"`
	ImageURL     string          `parquet:"image_url"`
	PublishedUTC int64           `parquet:"published_utc,timestamp(millisecond)"`
	Publisher    PublisherRecord `parquet:"publisher"`
	Tickers      []string        `parquet:"tickers"`
	Keywords     []string        `parquet:"keywords"`
	Insights     []InsightRecord `parquet:"insights"`
	IngestedAt   int64           `parquet:"ingested_at,timestamp(millisecond)"`
}

// PublisherRecord is the nested publisher group of a NewsRecord.
type PublisherRecord struct {
	Name        string `parquet:"name"`
	HomepageURL string `parquet:"homepage_url"`
	LogoURL     string `parquet:"logo_url"`
	FaviconURL  string `parquet:"favicon_url"`
}

// InsightRecord is one repeated insight of a NewsRecord. Missing values are
// stored as nulls.
type InsightRecord struct {
	Ticker    *string `parquet:"ticker,optional"`
	Sentiment *string `parquet:"sentiment,optional"`
	Reasoning *string `parquet:"sentiment_reasoning,optional"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bar data to Parquet files organized by symbol and year.
// Each symbol+year combination produces a separate file at:
//
//	<DataDir>/us/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) WriteBars(_ context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		ts := b.Timestamp.UTC()
		k := key{symbol: strings.ToUpper(b.Symbol), year: ts.Year()}
		groups[k] = append(groups[k], BarRecord{
			Symbol:     k.symbol,
			Timestamp:  ts.UnixMilli(),
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
			TradeCount: b.TradeCount,
			VWAP:       b.VWAP,
		})
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, k.year)

		existing, err := readExisting[BarRecord](path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bars from the archive. An empty symbol reads every archived
// symbol.
func (s *ParquetStore) ReadBars(ctx context.Context, symbol string, start, end civil.Date) ([]domain.Bar, error) {
	symbols := []string{strings.ToUpper(symbol)}
	if symbol == "" {
		var err error
		if symbols, err = s.ListSymbols(ctx); err != nil {
			return nil, err
		}
	}

	lo, hi := timeBounds(start, end)
	var bars []domain.Bar
	for _, sym := range symbols {
		files, err := filepath.Glob(filepath.Join(s.DataDir, "us", "daily", sym, "*.parquet"))
		if err != nil {
			return nil, err
		}
		sort.Strings(files)

		for _, path := range files {
			if !yearOverlaps(path, lo, hi) {
				continue
			}
			records, err := readParquetFile[BarRecord](path)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", path, err)
			}
			for _, r := range records {
				ts := time.UnixMilli(r.Timestamp).UTC()
				if !inBounds(ts, lo, hi) {
					continue
				}
				bars = append(bars, domain.Bar{
					Symbol:     r.Symbol,
					Timestamp:  ts,
					Open:       r.Open,
					High:       r.High,
					Low:        r.Low,
					Close:      r.Close,
					Volume:     r.Volume,
					TradeCount: r.TradeCount,
					VWAP:       r.VWAP,
				})
			}
		}
	}
	return bars, nil
}

// ListSymbols lists all symbols that have archived bar data.
func (s *ParquetStore) ListSymbols(_ context.Context) ([]string, error) {
	dir := filepath.Join(s.DataDir, "us", "daily")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// NewsStore implementation
// ---------------------------------------------------------------------------

// WriteNews appends articles to per-day files keyed by publication date:
//
//	<DataDir>/us/news/<YYYY-MM-DD>.parquet
//
// Articles already present in a day file are kept as first written.
func (s *ParquetStore) WriteNews(_ context.Context, articles []domain.NewsArticle) error {
	if len(articles) == 0 {
		return nil
	}

	groups := make(map[civil.Date][]NewsRecord)
	var days []civil.Date
	for _, a := range articles {
		d := domain.DateOf(a.PublishedAt)
		if _, ok := groups[d]; !ok {
			days = append(days, d)
		}
		groups[d] = append(groups[d], toNewsRecord(a))
	}

	for _, d := range days {
		path := s.newsPath(d)

		existing, err := readExisting[NewsRecord](path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		merged := mergeNewsRecords(existing, groups[d])

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing news for %s: %w", d, err)
		}
	}
	return nil
}

// ReadNews reads archived articles published within [start, end], ordered by
// ingestion time.
func (s *ParquetStore) ReadNews(_ context.Context, start, end civil.Date) ([]domain.NewsArticle, error) {
	files, err := filepath.Glob(filepath.Join(s.DataDir, "us", "news", "*.parquet"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	lo, hi := timeBounds(start, end)
	var articles []domain.NewsArticle
	for _, path := range files {
		day, err := civil.ParseDate(strings.TrimSuffix(filepath.Base(path), ".parquet"))
		if err != nil {
			continue
		}
		if (start != (civil.Date{}) && day.Before(start)) || (end != (civil.Date{}) && day.After(end)) {
			continue
		}

		records, err := readParquetFile[NewsRecord](path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		for _, r := range records {
			a := fromNewsRecord(r)
			if inBounds(a.PublishedAt, lo, hi) {
				articles = append(articles, a)
			}
		}
	}

	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].IngestedAt.Before(articles[j].IngestedAt)
	})
	return articles, nil
}

func toNewsRecord(a domain.NewsArticle) NewsRecord {
	r := NewsRecord{
		ID:           a.ID,
		Title:        a.Title,
		Author:       a.Author,
		Description:  a.Description,
		ArticleURL:   a.ArticleURL,
		AMPURL:       a.AMPURL,
		ImageURL:     a.ImageURL,
		PublishedUTC: a.PublishedAt.UnixMilli(),
		Publisher: PublisherRecord{
			Name:        a.Publisher.Name,
			HomepageURL: a.Publisher.HomepageURL,
			LogoURL:     a.Publisher.LogoURL,
			FaviconURL:  a.Publisher.FaviconURL,
		},
		Tickers:    slices.Clone(a.Tickers),
		Keywords:   slices.Clone(a.Keywords),
		IngestedAt: a.IngestedAt.UnixMilli(),
	}
	for _, in := range a.Insights {
		r.Insights = append(r.Insights, InsightRecord{
			Ticker:    in.Ticker.Ptr(),
			Sentiment: in.Sentiment.Ptr(),
			Reasoning: in.Reasoning.Ptr(),
		})
	}
	return r
}

func fromNewsRecord(r NewsRecord) domain.NewsArticle {
	a := domain.NewsArticle{
		ID:          r.ID,
		Title:       r.Title,
		Author:      r.Author,
		Description: r.Description,
		ArticleURL:  r.ArticleURL,
		AMPURL:      r.AMPURL,
		ImageURL:    r.ImageURL,
		PublishedAt: time.UnixMilli(r.PublishedUTC).UTC(),
		Publisher: domain.Publisher{
			Name:        r.Publisher.Name,
			HomepageURL: r.Publisher.HomepageURL,
			LogoURL:     r.Publisher.LogoURL,
			FaviconURL:  r.Publisher.FaviconURL,
		},
		Tickers:    r.Tickers,
		Keywords:   r.Keywords,
		IngestedAt: time.UnixMilli(r.IngestedAt).UTC(),
	}
	for _, in := range r.Insights {
		a.Insights = append(a.Insights, domain.Insight{
			Ticker:    null.StringFromPtr(in.Ticker),
			Sentiment: null.StringFromPtr(in.Sentiment),
			Reasoning: null.StringFromPtr(in.Reasoning),
		})
	}
	return a
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/us/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol string, year int) string {
	return filepath.Join(s.DataDir, "us", "daily", strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

// newsPath returns the filesystem path for a news Parquet file.
// Layout: <dataDir>/us/news/<YYYY-MM-DD>.parquet
func (s *ParquetStore) newsPath(d civil.Date) string {
	return filepath.Join(s.DataDir, "us", "news", d.String()+".parquet")
}

// yearOverlaps reports whether the <YYYY>.parquet file at path can hold
// timestamps within [lo, hi].
func yearOverlaps(path string, lo, hi time.Time) bool {
	var year int
	if _, err := fmt.Sscanf(filepath.Base(path), "%d.parquet", &year); err != nil {
		return false
	}
	if !lo.IsZero() && year < lo.Year() {
		return false
	}
	if !hi.IsZero() && year > hi.Year() {
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

// readExisting reads path for a merge, treating a missing file as empty.
func readExisting[T any](path string) ([]T, error) {
	rows, err := readParquetFile[T](path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return rows, err
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp), preferring
// new records over existing ones.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}

// mergeNewsRecords appends incoming records whose ID is not yet present,
// keeping the existing order.
func mergeNewsRecords(existing, incoming []NewsRecord) []NewsRecord {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged := make([]NewsRecord, 0, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.ID] = struct{}{}
		merged = append(merged, r)
	}
	for _, r := range incoming {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		merged = append(merged, r)
	}
	return merged
}
