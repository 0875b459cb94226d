// Package store defines storage interfaces for persisting and retrieving
// daily bars and news articles, and the backends that implement them: a
// SQLite or BigQuery warehouse and a Parquet archive.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"

	"newsoverlay/internal/domain"
	"newsoverlay/internal/util"
)

// Table names shared by every warehouse backend.
const (
	BarsTable = "stock_daily"
	NewsTable = "stock_news"
)

// BarStore persists and retrieves daily bar data.
type BarStore interface {
	// WriteBars persists a batch of bars. Bars are keyed by (symbol, day):
	// after the same key is written twice, ReadBars returns a single bar for it.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for symbol within [start, end] ordered by symbol
	// then time. An empty symbol selects every symbol and a zero date leaves
	// that side of the range open.
	ReadBars(ctx context.Context, symbol string, start, end civil.Date) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols with stored bars.
	ListSymbols(ctx context.Context) ([]string, error)
}

// NewsStore persists and retrieves news articles.
type NewsStore interface {
	// WriteNews persists a batch of articles. An article whose ID is already
	// stored is ignored.
	WriteNews(ctx context.Context, articles []domain.NewsArticle) error

	// ReadNews returns articles published within [start, end] in ingestion
	// order. A zero date leaves that side of the range open.
	ReadNews(ctx context.Context, start, end civil.Date) ([]domain.NewsArticle, error)
}

// Warehouse is the queryable store the dashboard reads from.
type Warehouse interface {
	BarStore
	NewsStore

	// Provision creates the dataset and tables. Existing objects are kept.
	Provision(ctx context.Context) error

	Close() error
}

// Options selects and configures a Warehouse backend.
type Options struct {
	Driver          string // "sqlite" or "bigquery"
	SQLitePath      string
	Project         string
	Dataset         string
	Location        string
	CredentialsFile string
	Log             *slog.Logger
}

// Open returns the Warehouse named by opts.Driver.
func Open(ctx context.Context, opts Options) (Warehouse, error) {
	switch opts.Driver {
	case "", "sqlite":
		return NewSQLiteStore(opts.SQLitePath, opts.Log)
	case "bigquery":
		return NewBigQueryStore(ctx, opts.Project, opts.Dataset, opts.Location, opts.CredentialsFile, opts.Log)
	default:
		return nil, fmt.Errorf("unknown warehouse driver %q", opts.Driver)
	}
}

// timeBounds converts an inclusive date range into instants. Zero dates map
// to zero times, meaning unbounded.
func timeBounds(start, end civil.Date) (lo, hi time.Time) {
	if start != (civil.Date{}) {
		lo = util.StartOfDay(start)
	}
	if end != (civil.Date{}) {
		hi = util.EndOfDay(end)
	}
	return lo, hi
}

// inBounds reports whether t lies within [lo, hi], treating zero bounds as
// open.
func inBounds(t, lo, hi time.Time) bool {
	if !lo.IsZero() && t.Before(lo) {
		return false
	}
	if !hi.IsZero() && t.After(hi) {
		return false
	}
	return true
}
